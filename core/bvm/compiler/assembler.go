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

// Package compiler turns a method's instruction stream into linked BVM2
// bytecode. There is no WASM-parsing library anywhere in the dependency
// surface this project draws from, so the front end here is hand-written
// against the standard library only (see DESIGN.md); everything downstream
// of "here is a sequence of opcodes and host-call names" still goes
// through the same link-time binding resolution a WASM toolchain would
// perform on an import section.
package compiler

import (
	"encoding/binary"

	"github.com/bvm2/bvm2/core/bvm"
)

// Assembler accumulates one method's instruction stream, resolving forward
// label references to code offsets once the method is finished. It mirrors
// the two-pass label-fixup shape every hand-rolled assembler in the
// retrieved examples uses: emit placeholders, record fixup sites, then
// patch.
type Assembler struct {
	code    []byte
	labels  map[string]int
	fixups  []fixup
	imports []string // host-call names referenced by Host(), in call order
}

// fixup records a deferred immediate: width is 4 for CALL/HOSTCALL targets,
// 8 for PUSH8-based label references (JUMP/JUMPI destinations).
type fixup struct {
	pos   int
	width int
	label string
}

// NewAssembler returns an empty instruction-stream builder.
func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

func (a *Assembler) emit(b byte) *Assembler {
	a.code = append(a.code, b)
	return a
}

func (a *Assembler) reserve(width int) int {
	pos := len(a.code)
	a.code = append(a.code, make([]byte, width)...)
	return pos
}

// Label marks the current code offset under name, resolvable by later
// Jump/JumpIf/Call/Host fixup references regardless of emission order.
func (a *Assembler) Label(name string) *Assembler {
	a.labels[name] = len(a.code)
	return a.emit(byte(bvm.JUMPDEST))
}

// Push emits PUSH8 with the given immediate value.
func (a *Assembler) Push(v uint64) *Assembler {
	a.emit(byte(bvm.PUSH8))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	a.code = append(a.code, buf[:]...)
	return a
}

// Op emits a single opcode with no immediate.
func (a *Assembler) Op(op bvm.OpCode) *Assembler {
	return a.emit(byte(op))
}

// pushLabel emits PUSH8 with an 8-byte placeholder resolved to label's
// offset at Finish, the mechanism JUMP/JUMPI destinations rely on since the
// VM pops its jump target off the operand stack rather than reading an
// immediate.
func (a *Assembler) pushLabel(label string) *Assembler {
	a.emit(byte(bvm.PUSH8))
	pos := a.reserve(8)
	a.fixups = append(a.fixups, fixup{pos: pos, width: 8, label: label})
	return a
}

// Jump emits an unconditional jump to label (resolved at link time).
func (a *Assembler) Jump(label string) *Assembler {
	a.pushLabel(label)
	return a.emit(byte(bvm.JUMP))
}

// JumpIf pops a condition already on the stack and jumps to label if it is
// non-zero (resolved at link time). Caller must push the condition, then
// call JumpIf, matching JUMPI's (dest, cond) pop order.
func (a *Assembler) JumpIf(label string) *Assembler {
	a.pushLabel(label)
	return a.emit(byte(bvm.JUMPI))
}

// Call emits a local call to label (resolved at link time).
func (a *Assembler) Call(label string) *Assembler {
	a.emit(byte(bvm.CALL))
	pos := a.reserve(4)
	a.fixups = append(a.fixups, fixup{pos: pos, width: 4, label: label})
	return a
}

// Host emits a HOSTCALL to the named import (e.g. "env.memcpy"). The
// immediate is fixed up twice downstream, never here: buildSourceModule
// resolves it to this method's source-module import index, and Compile's
// lower step rewrites that index to the BindingID the real §4.3 pipeline
// validated it against. Assembler itself never needs to know either table.
func (a *Assembler) Host(name string) *Assembler {
	a.emit(byte(bvm.HOSTCALL))
	a.imports = append(a.imports, name)
	pos := a.reserve(4)
	a.fixups = append(a.fixups, fixup{pos: pos, width: 4, label: "@host:" + name})
	return a
}

func (a *Assembler) Ret() *Assembler  { return a.emit(byte(bvm.RET)) }
func (a *Assembler) Stop() *Assembler { return a.emit(byte(bvm.STOP)) }

// Imports returns the host-call names referenced, in call order; a name
// appears once per Host call, so repeated calls repeat it.
func (a *Assembler) Imports() []string { return a.imports }

// finish resolves label and import fixups against bindings (mapping
// "@host:name" markers to whatever numeric ID the caller supplies —
// buildSourceModule passes source-module import indices here, not
// BindingIDs; those are assigned later, by Compile) and this Assembler's
// own labels map, returning the finished code slice.
func (a *Assembler) finish(bindings map[string]uint32) []byte {
	out := make([]byte, len(a.code))
	copy(out, a.code)
	for _, fu := range a.fixups {
		var target uint64
		if id, ok := bindings[fu.label]; ok {
			target = uint64(id)
		} else if off, ok := a.labels[fu.label]; ok {
			target = uint64(off)
		}
		switch fu.width {
		case 4:
			binary.BigEndian.PutUint32(out[fu.pos:fu.pos+4], uint32(target))
		case 8:
			binary.BigEndian.PutUint64(out[fu.pos:fu.pos+8], target)
		}
	}
	return out
}
