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

package compiler

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvm2/bvm2/core/bvm"
)

func TestLinkRejectsUnresolvedHostImport(t *testing.T) {
	body := NewAssembler()
	body.Push(0).Host("env.nonexistent_binding").Stop()

	_, err := Link([]Method{{Name: "run", Body: body}}, nil)
	require.Error(t, err)
	assert.Equal(t, bvm.KindLinkError, err.(*bvm.Error).Kind)
}

func TestLinkSynthesizesTrivialCtorDtor(t *testing.T) {
	body := NewAssembler()
	body.Stop()

	code, err := Link([]Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)

	mod, err := bvm.LoadModule(code)
	require.NoError(t, err)
	assert.Len(t, mod.MethodEntries, 3) // ctor, dtor, run
}

// TestLinkOrdersExplicitCtorDtorFirst exercises orderMethods: declaration
// order among ctor/dtor/others must not matter, only ctor-then-dtor-first.
func TestLinkOrdersExplicitCtorDtorFirst(t *testing.T) {
	run := NewAssembler()
	run.Stop()
	dtor := NewAssembler()
	dtor.Stop()
	ctor := NewAssembler()
	ctor.Push(1).Op(bvm.POP).Stop()

	code, err := Link([]Method{
		{Name: "run", Body: run},
		{Name: "dtor", Body: dtor},
		{Name: "ctor", Body: ctor},
	}, nil)
	require.NoError(t, err)

	mod, err := bvm.LoadModule(code)
	require.NoError(t, err)
	require.Len(t, mod.MethodEntries, 3)
	// ctor's entry must come first regardless of its position in the
	// declaration list, and its body (longer than a bare STOP) must be the
	// one found at that entry point.
	assert.Less(t, mod.MethodEntries[0], mod.MethodEntries[2])
	assert.Equal(t, byte(bvm.PUSH8), mod.Code[mod.MethodEntries[0]], "entry 0 must be ctor's body, the only one not starting with STOP")
}

// minimalSource returns a well-formed §4.3 source module with a trivial
// Ctor and Dtor (both STOP-only bodies, no imports) and nothing else, for
// tests that mutate one specific field to exercise a single validation
// rule in Compile's pipeline.
func minimalSource() *sourceModule {
	stop := []byte{byte(bvm.STOP)}
	return &sourceModule{
		Types: []srcType{{}},
		Funcs: []uint32{0, 0},
		Code:  [][]byte{stop, stop},
		Exports: []srcExport{
			{Name: "Ctor", Kind: exportKindFunc, Index: 0},
			{Name: "Dtor", Kind: exportKindFunc, Index: 1},
		},
	}
}

func TestCompileAcceptsMinimalWellFormedModule(t *testing.T) {
	code, err := Compile(encodeSource(minimalSource()))
	require.NoError(t, err)

	mod, err := bvm.LoadModule(code)
	require.NoError(t, err)
	assert.Len(t, mod.MethodEntries, 2)
}

func TestCompileRejectsWrongMagic(t *testing.T) {
	src := encodeSource(minimalSource())
	src[0] = 'X'
	_, err := Compile(src)
	require.Error(t, err)
	assert.Equal(t, bvm.KindMalformedModule, err.(*bvm.Error).Kind)
}

func TestCompileRejectsMissingDtorExport(t *testing.T) {
	mod := minimalSource()
	mod.Exports = mod.Exports[:1] // Ctor only
	_, err := Compile(encodeSource(mod))
	require.Error(t, err)
	assert.Equal(t, bvm.KindMalformedModule, err.(*bvm.Error).Kind)
}

func TestCompileRejectsGapInMethodSequence(t *testing.T) {
	mod := minimalSource()
	mod.Types = append(mod.Types, srcType{})
	mod.Funcs = append(mod.Funcs, 0)
	mod.Code = append(mod.Code, []byte{byte(bvm.STOP)})
	// Method_3 exported with no Method_2: the required sequence has a gap.
	mod.Exports = append(mod.Exports, srcExport{Name: "Method_3", Kind: exportKindFunc, Index: 2})

	_, err := Compile(encodeSource(mod))
	require.Error(t, err)
	assert.Equal(t, bvm.KindMalformedModule, err.(*bvm.Error).Kind)
}

func TestCompileRejectsExportOfAnImportedFunction(t *testing.T) {
	mod := minimalSource()
	mod.Types = append(mod.Types, typeOfSignature(hostABI["halt"].Sig))
	mod.Imports = append(mod.Imports, srcImport{Module: "env", Field: "halt", TypeIdx: 1})
	// index 0 now names the import, not a defined function; Ctor must not
	// resolve to it.
	mod.Exports[0] = srcExport{Name: "Ctor", Kind: exportKindFunc, Index: 0}

	_, err := Compile(encodeSource(mod))
	require.Error(t, err)
	assert.Equal(t, bvm.KindMalformedModule, err.(*bvm.Error).Kind)
}

func TestCompileRejectsImportFromWrongModule(t *testing.T) {
	mod := minimalSource()
	mod.Types = append(mod.Types, typeOfSignature(hostABI["halt"].Sig))
	mod.Imports = append(mod.Imports, srcImport{Module: "not_env", Field: "halt", TypeIdx: 1})
	// shift Ctor/Dtor's exported indices past the new import.
	mod.Exports[0].Index = 1
	mod.Exports[1].Index = 2

	_, err := Compile(encodeSource(mod))
	require.Error(t, err)
	assert.Equal(t, bvm.KindLinkError, err.(*bvm.Error).Kind)
}

func TestCompileRejectsImportSignatureMismatch(t *testing.T) {
	mod := minimalSource()
	// "halt" takes one i64 argument; declare it with zero instead.
	mod.Types = append(mod.Types, srcType{HasResult: true, Result: TypeI64})
	mod.Imports = append(mod.Imports, srcImport{Module: "env", Field: "halt", TypeIdx: 1})
	mod.Exports[0].Index = 1
	mod.Exports[1].Index = 2

	_, err := Compile(encodeSource(mod))
	require.Error(t, err)
	assert.Equal(t, bvm.KindLinkError, err.(*bvm.Error).Kind)
}

func TestCompileRejectsUnresolvedHostImportName(t *testing.T) {
	mod := minimalSource()
	mod.Types = append(mod.Types, srcType{HasResult: true, Result: TypeI64})
	mod.Imports = append(mod.Imports, srcImport{Module: "env", Field: "not_a_real_binding", TypeIdx: 1})
	mod.Exports[0].Index = 1
	mod.Exports[1].Index = 2

	_, err := Compile(encodeSource(mod))
	require.Error(t, err)
	assert.Equal(t, bvm.KindLinkError, err.(*bvm.Error).Kind)
}

func TestCompileRejectsTruncatedSection(t *testing.T) {
	src := encodeSource(minimalSource())
	_, err := Compile(src[:len(src)-1])
	require.Error(t, err)
	assert.Equal(t, bvm.KindMalformedModule, err.(*bvm.Error).Kind)
}

// TestLinkAdjustsLabelOffsetsAcrossMethods exercises the cross-method
// offset fixup in Link: a later method's own internal jump must land inside
// its own body, not at the absolute offset it would have had if assembled
// alone, since Link concatenates every method's code into one section.
func TestLinkAdjustsLabelOffsetsAcrossMethods(t *testing.T) {
	first := NewAssembler()
	first.Push(1).Op(bvm.POP).Stop() // non-trivial, so "second" starts at a nonzero offset

	second := NewAssembler()
	second.
		Jump("skip").
		Push(1).Push(0).Op(bvm.DIV). // dead code if the jump lands correctly
		Label("skip").
		Push(7).
		Stop()

	code, err := Link([]Method{
		{Name: "first", Body: first},
		{Name: "second", Body: second},
	}, nil)
	require.NoError(t, err)

	mod, err := bvm.LoadModule(code)
	require.NoError(t, err)
	// entries: ctor, dtor, first, second
	require.Len(t, mod.MethodEntries, 4)
	secondEntry := mod.MethodEntries[3]
	assert.Equal(t, byte(bvm.PUSH8), mod.Code[secondEntry], "second's entry point must still be its own first opcode")
	// "skip" sits 29 bytes into second's body: PUSH8+JUMP (10), two PUSH8s
	// (18) and DIV (1) precede it.
	dest := binary.BigEndian.Uint64(mod.Code[secondEntry+1 : secondEntry+9])
	assert.Equal(t, uint64(secondEntry)+29, dest, "second's jump must target its own label, shifted by its entry offset")
	assert.Equal(t, byte(bvm.JUMPDEST), mod.Code[dest])
}
