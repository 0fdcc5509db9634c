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

import (
	"bytes"
	"sort"

	"github.com/bvm2/bvm2/common"
	"github.com/holiman/uint256"
)

// ManagerDoc is the structured document a read-only manager-persona
// invocation produces instead of mutating the Store. It is a small nested
// tree of groups, arrays, and scalar leaves, deliberately simpler than a
// general-purpose JSON value (no floats, no arbitrary nesting depth
// limits) because it only ever needs to describe one contract's view of
// its own variable-store state for a wallet or explorer to render.
//
// Numeric leaves are held as *uint256.Int (via the alternate
// github.com/holiman/uint256 fork, distinct from the contract persona's
// core-coin/uint256 Amount type) so the manager side can format u64/u256
// values identically regardless of which width the underlying variable
// happened to be stored as.
type ManagerDoc struct {
	kind  docKind
	name  string
	text  string
	num   *uint256.Int
	blob  []byte
	items []*ManagerDoc
}

type docKind int

const (
	docGroup docKind = iota
	docArray
	docText
	docBlob
	docNum
)

// NewManagerDoc returns the root group of a fresh document.
func NewManagerDoc() *ManagerDoc {
	return &ManagerDoc{kind: docGroup}
}

// DocGroup appends a named nested group to d and returns it.
func (d *ManagerDoc) DocGroup(name string) *ManagerDoc {
	child := &ManagerDoc{kind: docGroup, name: name}
	d.items = append(d.items, child)
	return child
}

// DocArray appends a named nested array to d and returns it.
func (d *ManagerDoc) DocArray(name string) *ManagerDoc {
	child := &ManagerDoc{kind: docArray, name: name}
	d.items = append(d.items, child)
	return child
}

// DocAddText appends a named text leaf.
func (d *ManagerDoc) DocAddText(name, value string) {
	d.items = append(d.items, &ManagerDoc{kind: docText, name: name, text: value})
}

// DocAddBlob appends a named binary leaf holding a copy of value.
func (d *ManagerDoc) DocAddBlob(name string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	d.items = append(d.items, &ManagerDoc{kind: docBlob, name: name, blob: cp})
}

// DocAddNum32 appends a named numeric leaf holding value.
func (d *ManagerDoc) DocAddNum32(name string, value uint32) {
	d.items = append(d.items, &ManagerDoc{kind: docNum, name: name, num: uint256.NewInt(uint64(value))})
}

// DocAddNum64 appends a named numeric leaf holding value.
func (d *ManagerDoc) DocAddNum64(name string, value uint64) {
	d.items = append(d.items, &ManagerDoc{kind: docNum, name: name, num: uint256.NewInt(value)})
}

// DocAddNum256 appends a named leaf holding a full 256-bit value, used to
// surface a contract's Amount fields without lossy narrowing.
func (d *ManagerDoc) DocAddNum256(name string, value *Amount) {
	n := new(uint256.Int).SetBytes(amountBytes(value))
	d.items = append(d.items, &ManagerDoc{kind: docNum, name: name, num: n})
}

// find locates a direct child by name, or nil.
func (d *ManagerDoc) find(name string) *ManagerDoc {
	for _, it := range d.items {
		if it.name == name {
			return it
		}
	}
	return nil
}

// DocGetText returns the text leaf named name, or ok=false if absent or of
// a different kind.
func (d *ManagerDoc) DocGetText(name string) (string, bool) {
	it := d.find(name)
	if it == nil || it.kind != docText {
		return "", false
	}
	return it.text, true
}

// DocGetBlob returns the binary leaf named name.
func (d *ManagerDoc) DocGetBlob(name string) ([]byte, bool) {
	it := d.find(name)
	if it == nil || it.kind != docBlob {
		return nil, false
	}
	return it.blob, true
}

// DocGetNum32 returns the numeric leaf named name, truncated to 32 bits.
func (d *ManagerDoc) DocGetNum32(name string) (uint32, bool) {
	it := d.find(name)
	if it == nil || it.kind != docNum {
		return 0, false
	}
	return uint32(it.num.Uint64()), true
}

// DocGetNum64 returns the numeric leaf named name.
func (d *ManagerDoc) DocGetNum64(name string) (uint64, bool) {
	it := d.find(name)
	if it == nil || it.kind != docNum {
		return 0, false
	}
	return it.num.Uint64(), true
}

// varsEntry is one (key, value) pair held by a VarsCursor, in the order
// VarsMoveNext delivers it.
type varsEntry struct {
	key VarKey
	val []byte
}

// VarsCursor enumerates every (tag, subkey) entry held against one
// ContractID, backing the manager persona's VarsEnum/VarsMoveNext pair. A
// production Store typically supports this natively (a range scan prefixed
// by the ContractID); MemStore's implementation below is a linear scan
// suitable for tests and the standalone CLI.
type VarsCursor struct {
	entries []varsEntry
	pos     int
}

// VarsEnum opens a cursor over every variable held against cid in store.
// Entries come back in lexicographic order of their full key bytes (§6: the
// range-enumerate primitive is the one part of the variable-store protocol
// that promises ordering). Only MemStore is supported directly; production
// Store implementations should provide their own range-scan-backed
// enumerator.
func VarsEnum(store *MemStore, cid common.ContractID) *VarsCursor {
	prefix := cid.Bytes()
	var entries []varsEntry
	for k, v := range store.data {
		kb := []byte(k)
		if len(kb) < common.HashLength+1 {
			continue
		}
		match := true
		for i, b := range prefix {
			if kb[i] != b {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		val := make([]byte, len(v))
		copy(val, v)
		entries = append(entries, varsEntry{
			key: VarKey{
				Contract: cid,
				Tag:      VarTag(kb[common.HashLength]),
				Subkey:   append([]byte(nil), kb[common.HashLength+1:]...),
			},
			val: val,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key.Bytes(), entries[j].key.Bytes()) < 0
	})
	return &VarsCursor{entries: entries}
}

// VarsMoveNext advances the cursor, returning the next (key, value) pair and
// whether one was available.
func (c *VarsCursor) VarsMoveNext() (VarKey, []byte, bool) {
	if c.pos >= len(c.entries) {
		return VarKey{}, nil, false
	}
	e := c.entries[c.pos]
	c.pos++
	return e.key, e.val, true
}
