// Copyright 2024 by the Authors
// This file is part of the bvm2 library.
//
// The bvm2 library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The bvm2 library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the bvm2 library. If not, see <http://www.gnu.org/licenses/>.

package bvm

// memoryLimit bounds a single frame's linear memory; grown lazily on first
// touch, like the reference interpreter's Memory type, but capped rather
// than unbounded since BVM2 has no gas-for-memory-expansion charge of its
// own (MemoryOpCost already charges per word touched).
const memoryLimit = 1 << 20 // 1 MiB

// Memory is a far-call frame's linear byte addressable scratch space: the
// writable region a contract uses for scratch buffers passed to host calls.
// The module's Data section is not mapped into it, and no opcode or host
// call reads Data at run time.
type Memory struct {
	store []byte
}

func newMemory() *Memory {
	return &Memory{}
}

func (m *Memory) len() int { return len(m.store) }

// resize grows the backing array to at least n bytes, zero-filling the
// extension. It never shrinks.
func (m *Memory) resize(n int) error {
	if n <= len(m.store) {
		return nil
	}
	if n > memoryLimit {
		return NewError(KindBoundsViolation, "linear memory growth to %d exceeds limit %d", n, memoryLimit)
	}
	grown := make([]byte, n)
	copy(grown, m.store)
	m.store = grown
	return nil
}

// slice returns a bounds-checked [offset:offset+size) view, growing the
// backing store first if necessary. Every memory operand of a host call
// (memcpy/memset/LoadVar/SaveVar and the rest) resolves through here before
// touching Go memory.
func (m *Memory) slice(offset, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	end := offset + size
	if end < offset || end > memoryLimit {
		return nil, NewError(KindBoundsViolation, "linear address [%d:%d) out of range", offset, end)
	}
	if err := m.resize(int(end)); err != nil {
		return nil, err
	}
	return m.store[offset:end], nil
}

func (m *Memory) set(offset uint64, data []byte) error {
	dst, err := m.slice(offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (m *Memory) get(offset, size uint64) ([]byte, error) {
	src, err := m.slice(offset, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, src)
	return out, nil
}
