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
	"sync"

	"github.com/bvm2/bvm2/params"
)

// maxStackDepth is the operand-stack budget expressed in 8-byte words.
const maxStackDepth = params.StackSize / 8

var stackPool = sync.Pool{
	New: func() interface{} {
		s := make([]uint64, 0, 16)
		return &s
	},
}

// Stack is the operand stack of one far-call frame: run allocates a fresh
// one per frame, so a nested call_far gets its own StackSize budget rather
// than sharing the caller's. Every opcode's operands and results flow
// through it; the jump table enforces minStack/maxStack before Execute ever
// touches it (HOSTCALL checks its binding's operand count itself), so pop
// here never needs to return an error. Overflow is still checked explicitly because a single
// PUSH never underflows but can overflow.
type Stack struct {
	data []uint64
}

func newStack() *Stack {
	return &Stack{data: *stackPool.Get().(*[]uint64)}
}

func (st *Stack) free() {
	st.data = st.data[:0]
	stackPool.Put(&st.data)
}

func (st *Stack) push(v uint64) error {
	if len(st.data) >= maxStackDepth {
		return NewError(KindBoundsViolation, "operand stack overflow (depth %d)", len(st.data))
	}
	st.data = append(st.data, v)
	return nil
}

func (st *Stack) pop() uint64 {
	n := len(st.data) - 1
	v := st.data[n]
	st.data = st.data[:n]
	return v
}

// peek returns the value n items below the top without popping (0 = top).
func (st *Stack) peek(n int) uint64 {
	return st.data[len(st.data)-1-n]
}

func (st *Stack) swap(n int) {
	top := len(st.data) - 1
	st.data[top], st.data[top-n] = st.data[top-n], st.data[top]
}

func (st *Stack) dup(n int) error {
	return st.push(st.peek(n - 1))
}

func (st *Stack) len() int { return len(st.data) }

func (st *Stack) data64() []uint64 { return st.data }
