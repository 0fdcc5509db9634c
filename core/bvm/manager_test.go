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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerDocGroupRoundTrip(t *testing.T) {
	doc := NewManagerDoc()
	doc.DocAddText("name", "vault")
	doc.DocAddNum64("balance", 1234)
	doc.DocAddBlob("owner", []byte{0xAA, 0xBB})

	group := doc.DocGroup("nested")
	group.DocAddNum32("count", 7)

	name, ok := doc.DocGetText("name")
	assert.True(t, ok)
	assert.Equal(t, "vault", name)

	bal, ok := doc.DocGetNum64("balance")
	assert.True(t, ok)
	assert.Equal(t, uint64(1234), bal)

	owner, ok := doc.DocGetBlob("owner")
	assert.True(t, ok)
	assert.Equal(t, []byte{0xAA, 0xBB}, owner)

	_, ok = doc.DocGetText("missing")
	assert.False(t, ok)

	count, ok := group.DocGetNum32("count")
	assert.True(t, ok)
	assert.Equal(t, uint32(7), count)
}

func TestManagerDocGetWrongKindFails(t *testing.T) {
	doc := NewManagerDoc()
	doc.DocAddText("label", "x")

	_, ok := doc.DocGetNum64("label")
	assert.False(t, ok, "a text leaf must not be readable as a number")
}

func TestManagerDocAddNum256PreservesFullWidth(t *testing.T) {
	doc := NewManagerDoc()
	big := new(Amount).SetUint64(1)
	big.Lsh(big, 200) // well beyond 64 bits
	doc.DocAddNum256("wide", big)

	// DocGetNum64 truncates; confirm the leaf round-trips through the
	// blob-free but full-width uint256 path by re-deriving its bytes.
	it := doc.find("wide")
	if assert.NotNil(t, it) {
		assert.Equal(t, docNum, it.kind)
		assert.Equal(t, big.Bytes32(), it.num.Bytes32())
	}
}

func TestVarsEnumOnlyMatchesOwningContract(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	a := testCID(0xAA)
	b := testCID(0xBB)

	setVar(store, log, (VarKey{Contract: a, Tag: TagInternal, Subkey: []byte("k1")}).Bytes(), []byte("v1"))
	setVar(store, log, (VarKey{Contract: a, Tag: TagLockedAmount, Subkey: nil}).Bytes(), []byte("v2"))
	setVar(store, log, (VarKey{Contract: b, Tag: TagInternal, Subkey: []byte("k1")}).Bytes(), []byte("v3"))

	cur := VarsEnum(store, a)
	seen := map[VarTag]bool{}
	var keyBytes [][]byte
	count := 0
	for {
		k, v, ok := cur.VarsMoveNext()
		if !ok {
			break
		}
		assert.Equal(t, a, k.Contract)
		seen[k.Tag] = true
		keyBytes = append(keyBytes, k.Bytes())
		if k.Tag == TagInternal {
			assert.Equal(t, []byte("v1"), v)
		}
		count++
	}
	assert.Equal(t, 2, count)
	assert.True(t, seen[TagInternal])
	assert.True(t, seen[TagLockedAmount])
	if assert.Len(t, keyBytes, 2) {
		assert.True(t, bytes.Compare(keyBytes[0], keyBytes[1]) < 0, "VarsMoveNext must deliver keys in lexicographic order")
	}
}
