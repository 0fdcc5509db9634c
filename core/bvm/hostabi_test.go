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

// These tests exercise the host ABI bindings that scenarios_test.go's
// shader fixtures don't reach directly: raw memory ops, ref counting, and
// far calls. Hand-assembled bodies, so every Push/Host sequence below is
// ordered against each binding's documented pop order in hostabi.go (pops
// happen top-of-stack first, i.e. in reverse of push order).
package bvm_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvm2/bvm2/common"
	"github.com/bvm2/bvm2/core/bvm"
	"github.com/bvm2/bvm2/core/bvm/compiler"
	"github.com/bvm2/bvm2/core/bvm/runtime"
	"github.com/bvm2/bvm2/params"
)

func TestMemSetAndMemCmpDetectEqualRegions(t *testing.T) {
	cfg := runtime.NewConfig()
	body := compiler.NewAssembler()
	body.
		Push(0).Push(7).Push(4).Host("env.memset").Op(bvm.POP). // mem[0:4] = 7,7,7,7
		Push(8).Push(7).Push(4).Host("env.memset").Op(bvm.POP). // mem[8:12] = 7,7,7,7
		Push(0).Push(8).Push(4).Host("env.memcmp").             // offA=0, offB=8, size=4
		Stop()

	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	out, _, err := runtime.Invoke(cfg, cid, runMethod, nil)
	require.NoError(t, err)
	want := make([]byte, 8)
	want[7] = 1
	assert.Equal(t, want, out)
}

func TestMemCpyCopiesBytesThenMemIs0DetectsNonZero(t *testing.T) {
	cfg := runtime.NewConfig()
	body := compiler.NewAssembler()
	body.
		Push(0).Push(5).Push(4).Host("env.memset").Op(bvm.POP). // mem[0:4] = 5,5,5,5
		Push(16).Push(0).Push(4).Host("env.memcpy").Op(bvm.POP). // dst=16, src=0, size=4
		Push(16).Push(4).Host("env.memis0"). // off=16, size=4
		Stop()

	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	out, _, err := runtime.Invoke(cfg, cid, runMethod, nil)
	require.NoError(t, err)
	want := make([]byte, 8) // 0: the copied region is non-zero
	assert.Equal(t, want, out)
}

func TestMemIs0TrueForUntouchedMemory(t *testing.T) {
	cfg := runtime.NewConfig()
	body := compiler.NewAssembler()
	body.Push(64).Push(8).Host("env.memis0").Stop() // fresh memory reads as zero
	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	out, _, err := runtime.Invoke(cfg, cid, runMethod, nil)
	require.NoError(t, err)
	want := make([]byte, 8)
	want[7] = 1
	assert.Equal(t, want, out)
}

func TestRefAddThenReleaseThroughInterpreterSucceeds(t *testing.T) {
	cfg := runtime.NewConfig()

	target := compiler.NewAssembler()
	target.Stop()
	targetCode, err := compiler.Link([]compiler.Method{{Name: "run", Body: target}}, nil)
	require.NoError(t, err)
	targetCID := cfg.Code.Deploy(targetCode, nil)

	body := compiler.NewAssembler()
	writeContractID(body, targetCID)
	body.
		Push(0).Push(32).Host("env.ref_add").Op(bvm.POP).
		Push(0).Push(32).Host("env.ref_release").Op(bvm.POP).
		Stop()

	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	_, _, err = runtime.Invoke(cfg, cid, runMethod, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bvm.RefsHeld(cfg.Store, targetCID))
}

func TestRefAddAgainstUndeployedContractFailsThroughInterpreter(t *testing.T) {
	cfg := runtime.NewConfig()

	var ghost common.ContractID
	ghost[0] = 0xEE

	body := compiler.NewAssembler()
	writeContractID(body, ghost)
	body.Push(0).Push(32).Host("env.ref_add").Stop()

	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	_, _, err = runtime.Invoke(cfg, cid, runMethod, nil)
	require.Error(t, err)
	assert.Equal(t, bvm.KindLinkError, err.(*bvm.Error).Kind)
}

func TestRefReleaseWithoutPriorAddFailsThroughInterpreter(t *testing.T) {
	cfg := runtime.NewConfig()

	target := compiler.NewAssembler()
	target.Stop()
	targetCode, err := compiler.Link([]compiler.Method{{Name: "run", Body: target}}, nil)
	require.NoError(t, err)
	targetCID := cfg.Code.Deploy(targetCode, nil)

	body := compiler.NewAssembler()
	writeContractID(body, targetCID)
	body.Push(0).Push(32).Host("env.ref_release").Stop()

	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	_, _, err = runtime.Invoke(cfg, cid, runMethod, nil)
	require.Error(t, err)
	assert.Equal(t, bvm.KindInvariantViolation, err.(*bvm.Error).Kind)
}

func TestCallFarInvokesCalleeAndReturnsItsOutput(t *testing.T) {
	cfg := runtime.NewConfig()

	callee := compiler.NewAssembler()
	callee.Push(99).Stop()
	calleeCode, err := compiler.Link([]compiler.Method{{Name: "run", Body: callee}}, nil)
	require.NoError(t, err)
	calleeCID := cfg.Code.Deploy(calleeCode, nil)

	caller := compiler.NewAssembler()
	writeContractID(caller, calleeCID)
	caller.
		Push(0).Push(uint64(runMethod)).Push(64).Push(0).Host("env.call_far").Op(bvm.POP).
		Push(64).Op(bvm.MLOAD).
		Stop()

	callerCode, err := compiler.Link([]compiler.Method{{Name: "run", Body: caller}}, nil)
	require.NoError(t, err)
	callerCID := cfg.Code.Deploy(callerCode, nil)

	out, _, err := runtime.Invoke(cfg, callerCID, runMethod, nil)
	require.NoError(t, err)
	want := make([]byte, 8)
	want[7] = 99
	assert.Equal(t, want, out)
}

func TestCallFarRejectsCtorAndDtorAsTargets(t *testing.T) {
	cfg := runtime.NewConfig()

	callee := compiler.NewAssembler()
	callee.Stop()
	calleeCode, err := compiler.Link([]compiler.Method{{Name: "run", Body: callee}}, nil)
	require.NoError(t, err)
	calleeCID := cfg.Code.Deploy(calleeCode, nil)

	for _, target := range []uint64{params.MethodCtor, params.MethodDtor} {
		caller := compiler.NewAssembler()
		writeContractID(caller, calleeCID)
		caller.
			Push(0).Push(target).Push(64).Push(0).Host("env.call_far").
			Stop()

		callerCode, err := compiler.Link([]compiler.Method{{Name: "run", Body: caller}}, nil)
		require.NoError(t, err)
		callerCID := cfg.Code.Deploy(callerCode, nil)

		_, _, err = runtime.Invoke(cfg, callerCID, runMethod, nil)
		require.Error(t, err)
		assert.Equal(t, bvm.KindLinkError, err.(*bvm.Error).Kind)
	}
}

// writeContractID emits four MSTOREs writing cid's 32 bytes, big-endian
// word by word, into memory starting at offset 0 — the layout CallFar
// expects for its 32-byte calleeOff operand.
func writeContractID(a *compiler.Assembler, cid interface{ Bytes() []byte }) {
	raw := cid.Bytes()
	for i := 0; i < 4; i++ {
		word := binary.BigEndian.Uint64(raw[i*8 : i*8+8])
		a.Push(word).Push(uint64(i * 8)).Op(bvm.MSTORE)
	}
}
