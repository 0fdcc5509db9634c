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

import "encoding/binary"

// opStop halts the current method; run returns whatever is left on the
// operand stack as the method's output.
func opStop(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	return nil
}

// opArith lifts a binary uint64 operator into an executionFunc: pop b, pop
// a (a pushed first), push op(a, b).
func opArith(op func(a, b uint64) uint64) executionFunc {
	return func(pc *uint32, p *Processor, f *Frame, st *Stack) error {
		b, a := st.pop(), st.pop()
		return st.push(op(a, b))
	}
}

func opBool(op func(a, b uint64) bool) executionFunc {
	return func(pc *uint32, p *Processor, f *Frame, st *Stack) error {
		b, a := st.pop(), st.pop()
		if op(a, b) {
			return st.push(1)
		}
		return st.push(0)
	}
}

func opDiv(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	b, a := st.pop(), st.pop()
	if b == 0 {
		return NewError(KindInvariantViolation, "division by zero")
	}
	return st.push(a / b)
}

func opSDiv(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	b, a := st.pop(), st.pop()
	if b == 0 {
		return NewError(KindInvariantViolation, "division by zero")
	}
	return st.push(uint64(int64(a) / int64(b)))
}

func opMod(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	b, a := st.pop(), st.pop()
	if b == 0 {
		return NewError(KindInvariantViolation, "modulo by zero")
	}
	return st.push(a % b)
}

func opSMod(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	b, a := st.pop(), st.pop()
	if b == 0 {
		return NewError(KindInvariantViolation, "modulo by zero")
	}
	return st.push(uint64(int64(a) % int64(b)))
}

func opNot(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	return st.push(^st.pop())
}

func opIsZero(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	if st.pop() == 0 {
		return st.push(1)
	}
	return st.push(0)
}

func opPop(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	st.pop()
	return nil
}

func opDup(n int) executionFunc {
	return func(pc *uint32, p *Processor, f *Frame, st *Stack) error {
		return st.dup(n)
	}
}

func opSwap(n int) executionFunc {
	return func(pc *uint32, p *Processor, f *Frame, st *Stack) error {
		st.swap(n)
		return nil
	}
}

// opPush returns an executionFunc reading an n-byte big-endian immediate
// from the code stream following the opcode byte, pushing it, and advancing
// pc past the immediate.
func opPush(n int) executionFunc {
	return func(pc *uint32, p *Processor, f *Frame, st *Stack) error {
		start := *pc + 1
		end := start + uint32(n)
		if end > uint32(len(f.Module.Code)) {
			return NewError(KindBoundsViolation, "PUSH%d immediate runs past code end", n)
		}
		var buf [8]byte
		copy(buf[8-n:], f.Module.Code[start:end])
		if err := st.push(binary.BigEndian.Uint64(buf[:])); err != nil {
			return err
		}
		*pc = end
		return nil
	}
}

func opJump(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	dest := st.pop()
	return jumpTo(pc, f, dest)
}

func opJumpi(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	dest, cond := st.pop(), st.pop()
	if cond != 0 {
		return jumpTo(pc, f, dest)
	}
	*pc++
	return nil
}

func jumpTo(pc *uint32, f *Frame, dest uint64) error {
	if dest >= uint64(len(f.Module.Code)) || OpCode(f.Module.Code[dest]) != JUMPDEST {
		return NewError(KindBoundsViolation, "jump to invalid destination %d", dest)
	}
	*pc = uint32(dest)
	return nil
}

func opJumpdest(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	return nil
}

func opPC(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	return st.push(uint64(*pc))
}

func opMload(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	offset := st.pop()
	b, err := f.Mem.get(offset, 8)
	if err != nil {
		return err
	}
	return st.push(binary.BigEndian.Uint64(b))
}

func opMstore(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	offset, val := st.pop(), st.pop()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], val)
	return f.Mem.set(offset, buf[:])
}

func opMstore8(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	offset, val := st.pop(), st.pop()
	return f.Mem.set(offset, []byte{byte(val)})
}

func opMsize(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	return st.push(uint64(f.Mem.len()))
}

// opCall implements a local (intra-module) call: push a return frame and
// jump to the 4-byte big-endian target immediately following the opcode.
func opCall(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	start := *pc + 1
	end := start + 4
	if end > uint32(len(f.Module.Code)) {
		return NewError(KindBoundsViolation, "CALL immediate runs past code end")
	}
	target := binary.BigEndian.Uint32(f.Module.Code[start:end])
	if err := p.charge(p.cfg.Charge.CallCost); err != nil {
		return err
	}
	if err := f.pushLocal(end, st.len()); err != nil {
		return err
	}
	return jumpTo(pc, f, uint64(target))
}

// opRet returns from the innermost local call, or halts the method if the
// local call stack is empty.
func opRet(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	lf, ok := f.popLocal()
	if !ok {
		return nil // halts: true handles the rest
	}
	*pc = lf.returnPC
	return nil
}

// opHostCall reads the 4-byte BindingID immediate and dispatches to the
// host ABI table (hostabi.go).
func opHostCall(pc *uint32, p *Processor, f *Frame, st *Stack) error {
	start := *pc + 1
	end := start + 4
	if end > uint32(len(f.Module.Code)) {
		return NewError(KindBoundsViolation, "HOSTCALL immediate runs past code end")
	}
	id := BindingID(binary.BigEndian.Uint32(f.Module.Code[start:end]))
	// Operands each binding pops, indexed by BindingID; the jump table's
	// minStack cannot express this per-binding arity.
	argCount := [bindCount]int{3, 3, 3, 2, 5, 5, 1, 3, 1, 1, 2, 2, 4, 4, 2, 4, 2}
	if id < bindCount && st.len() < argCount[id] {
		return NewError(KindBoundsViolation, "stack underflow executing HOSTCALL binding %d", id)
	}
	*pc = end
	return p.dispatchHostCall(id, f, st)
}
