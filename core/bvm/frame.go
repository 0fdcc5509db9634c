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

import "github.com/bvm2/bvm2/common"

// localFrame is one entry of the intra-contract call/return stack: a
// return program counter and the operand-stack depth at call time. RET
// restores only the program counter; the recorded depth is not checked.
type localFrame struct {
	returnPC  uint32
	stackBase int
}

// Frame is one level of the far-call stack: a loaded contract module together
// with its own linear memory and local call stack. CallFar pushes a new
// Frame and transfers control to the callee's entrypoint; runMethod pops it
// once the callee's method ends (STOP, or RET at local call depth zero).
type Frame struct {
	ContractID common.ContractID
	Module     *Module
	Mem        *Memory
	Locals     []localFrame
	PC         uint32
	Depth      int // far-call depth of this frame, 0 for the top-level invocation
}

func newFrame(cid common.ContractID, mod *Module, depth int) *Frame {
	return &Frame{
		ContractID: cid,
		Module:     mod,
		Mem:        newMemory(),
		PC:         0,
		Depth:      depth,
	}
}

func (f *Frame) pushLocal(returnPC uint32, stackBase int) error {
	if len(f.Locals) >= localCallDepthLimit {
		return NewError(KindBoundsViolation, "local call stack overflow")
	}
	f.Locals = append(f.Locals, localFrame{returnPC: returnPC, stackBase: stackBase})
	return nil
}

func (f *Frame) popLocal() (localFrame, bool) {
	n := len(f.Locals)
	if n == 0 {
		return localFrame{}, false
	}
	lf := f.Locals[n-1]
	f.Locals = f.Locals[:n-1]
	return lf, true
}

// localCallDepthLimit bounds the local (non-far) call nesting within a
// single frame independently of the far-call stack; a contract that recurses
// locally without ever crossing a contract boundary must still be bounded.
const localCallDepthLimit = 1024
