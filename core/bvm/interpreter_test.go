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

package bvm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvm2/bvm2/core/bvm"
	"github.com/bvm2/bvm2/core/bvm/compiler"
	"github.com/bvm2/bvm2/core/bvm/runtime"
)

// runMethod is the method index every fixture in this file links its sole
// non-ctor/dtor method to (ctor/dtor are synthesized trivially by
// compiler.Link, occupying indices 0 and 1).
const runMethod uint32 = 2

func TestDivisionByZeroIsFatalAndRollsBack(t *testing.T) {
	cfg := runtime.NewConfig()

	// save_var(tag=Internal, subkey="", value=mem[0:8]) before the division,
	// so a rollback has something concrete to undo.
	body := compiler.NewAssembler()
	body.
		Push(0).Push(0).Push(0).Push(0).Push(8).
		Host("env.save_var").
		Op(bvm.POP).
		Push(5).Push(0). // dividend=5 pushed first; divisor=0 pushed last, on top (popped first)
		Op(bvm.DIV).
		Stop()

	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	before := cfg.Store.Snapshot()
	_, _, err = runtime.Invoke(cfg, cid, runMethod, nil)
	require.Error(t, err)
	assert.Equal(t, bvm.KindInvariantViolation, err.(*bvm.Error).Kind)
	assert.Equal(t, before, cfg.Store.Snapshot())
}

func TestModByZeroIsFatal(t *testing.T) {
	cfg := runtime.NewConfig()
	body := compiler.NewAssembler()
	body.Push(5).Push(0).Op(bvm.MOD).Stop() // dividend=5, divisor=0 on top
	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	_, _, err = runtime.Invoke(cfg, cid, runMethod, nil)
	require.Error(t, err)
	assert.Equal(t, bvm.KindInvariantViolation, err.(*bvm.Error).Kind)
}

func TestChargeExhaustionIsFatal(t *testing.T) {
	cfg := runtime.NewConfig()
	cfg.ChargeLimit = 1 // lower than the first PUSH's cost (CycleCost 1 + its constant 1)

	body := compiler.NewAssembler()
	body.Push(1).Push(1).Op(bvm.ADD).Stop()
	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	_, _, err = runtime.Invoke(cfg, cid, runMethod, nil)
	require.Error(t, err)
	assert.Equal(t, bvm.KindChargeExceeded, err.(*bvm.Error).Kind)
}

func TestArithmeticIsDeterministicAcrossRepeatedInvocations(t *testing.T) {
	cfg := runtime.NewConfig()
	body := compiler.NewAssembler()
	// (7 * 6) - 2 = 40, returned as the method's sole stack value. SUB
	// computes a-b where b is whichever operand was pushed last (the pop
	// order is b,a := st.pop(), st.pop()), so the subtrahend 2 must be
	// pushed after the product is on the stack.
	body.Push(7).Push(6).Op(bvm.MUL).Push(2).Op(bvm.SUB).Stop()
	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	out1, used1, err := runtime.Invoke(cfg, cid, runMethod, nil)
	require.NoError(t, err)
	out2, used2, err := runtime.Invoke(cfg, cid, runMethod, nil)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Equal(t, used1, used2)
}

func TestJumpSkipsDeadCode(t *testing.T) {
	cfg := runtime.NewConfig()
	body := compiler.NewAssembler()
	body.
		Jump("done").
		Push(999).Op(bvm.DIV). // dead: DIV would fault on stack underflow if ever reached
		Label("done").
		Push(42).
		Stop()
	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	out, _, err := runtime.Invoke(cfg, cid, runMethod, nil)
	require.NoError(t, err)
	want := make([]byte, 8)
	want[7] = 42
	assert.Equal(t, want, out)
}

// TestLocalCallReturnsToCallSite exercises CALL/RET: a RET must only end
// the whole method when it fires with no enclosing local call outstanding.
// A RET that pops a non-empty local-call stack has to resume execution
// right after the CALL, not terminate the method with whatever the callee
// left on the stack.
func TestLocalCallReturnsToCallSite(t *testing.T) {
	cfg := runtime.NewConfig()
	body := compiler.NewAssembler()
	body.
		Push(10).
		Call("double").
		Push(1).Op(bvm.ADD). // only reached if control resumes after the call
		Stop()
	body.
		Label("double").
		Op(bvm.DUP1).Op(bvm.ADD).
		Ret()

	code, err := compiler.Link([]compiler.Method{{Name: "run", Body: body}}, nil)
	require.NoError(t, err)
	cid := cfg.Code.Deploy(code, nil)

	out, _, err := runtime.Invoke(cfg, cid, runMethod, nil)
	require.NoError(t, err)
	want := make([]byte, 8)
	want[7] = 21 // (10*2) + 1
	assert.Equal(t, want, out)
}
