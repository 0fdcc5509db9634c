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
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/bvm2/bvm2/common"
	"github.com/bvm2/bvm2/internal/blog"
	"github.com/bvm2/bvm2/params"
)

// CodeSource resolves a ContractID to the module bytes deployed at it,
// backing CallFar. Kept separate from Store (which holds variable-store
// bytes, not code) because in a production deployment code typically lives
// in a different, append-only table.
type CodeSource interface {
	CodeOf(cid common.ContractID) ([]byte, bool)
}

// CodeDeleter is the optional capability a CodeSource implements to support
// Dtor's code-record deletion effect (§4.6: "Completed => if method was
// Dtor, the contract's code record is also deleted"). A CodeSource that
// doesn't implement it can still serve CallFar/Invoke; Dtor invocations
// against it just fail, since there's no way to honor the deletion.
type CodeDeleter interface {
	DeleteCode(cid common.ContractID) error
}

// BlockSource answers get_Hdr: the hash of the block at a given height.
// HeaderHash returns ok=false when the requested height has no header yet
// (e.g. a height in the future of the invocation's own block), which the
// host call surfaces as KindBlockNotReady.
type BlockSource interface {
	HeaderHash(height uint64) (common.Hash, bool)
}

// Config bundles everything a Processor needs that isn't per-invocation
// state: the cost schedule, the code/header sources, and a logger. It is
// constructed once per host process and shared across invocations, mirroring
// vm.Config in the reference chain client.
type Config struct {
	Charge params.ChargeParams
	Code   CodeSource
	Blocks BlockSource
	Log    *blog.Logger
}

// Processor drives one top-level invocation of BVM2: it owns the far-call
// stack, the charge meter, the undo log and the signature accumulator for
// the duration of that invocation, and is discarded afterward. It is the
// direct analogue of the reference interpreter's EVM/Interpreter pair,
// collapsed into one type because BVM2 has no separate "world state"
// object distinct from the Store.
type Processor struct {
	cfg   Config
	store Store

	frames    []*Frame
	undo      *undoLog
	sigAcc    *SigAccumulator
	jumpTable [256]operation

	chargeUsed  uint64
	chargeLimit uint64
}

// NewProcessor constructs a Processor for a single top-level invocation
// against store, metered by chargeLimit.
func NewProcessor(cfg Config, store Store, chargeLimit uint64) *Processor {
	if cfg.Log == nil {
		cfg.Log = blog.Root()
	}
	return &Processor{
		cfg:         cfg,
		store:       store,
		undo:        newUndoLog(),
		sigAcc:      newSigAccumulator(),
		jumpTable:   newBVMInstructionSet(),
		chargeLimit: chargeLimit,
	}
}

// charge debits n units from the invocation's charge budget, failing fatally
// (and therefore triggering a full rollback) if the budget is exhausted.
func (p *Processor) charge(n uint64) error {
	if p.chargeUsed+n < p.chargeUsed || p.chargeUsed+n > p.chargeLimit {
		return NewError(KindChargeExceeded, "charge limit %d exceeded (used %d, requested %d)", p.chargeLimit, p.chargeUsed, n)
	}
	p.chargeUsed += n
	return nil
}

// ChargeUsed reports the total charge debited so far.
func (p *Processor) ChargeUsed() uint64 { return p.chargeUsed }

// Invoke runs a top-level invocation of the contract at cid, method
// methodIdx, with the given calldata, verifying sig against every AddSig
// call the invocation made (and every far call it made, transitively) once
// execution completes. It establishes an undo checkpoint before executing
// and rewinds the Store to it on any fatal error (including a failed
// signature verification or a refused Dtor), so the caller always observes
// either full success or no state change at all. sig may be nil when the
// invocation is expected to make no AddSig calls.
func (p *Processor) Invoke(cid common.ContractID, methodIdx uint32, calldata []byte, sig *schnorr.Signature) ([]byte, error) {
	code, ok := p.cfg.Code.CodeOf(cid)
	if !ok {
		return nil, NewError(KindLinkError, "no code deployed at contract %s", cid)
	}
	mod, err := LoadModule(code)
	if err != nil {
		return nil, err
	}

	mark := p.undo.checkpoint()
	out, err := p.runMethod(cid, mod, methodIdx, calldata)
	if err == nil {
		err = p.sigAcc.Finalize(sig)
	}
	if err == nil && methodIdx == params.MethodDtor {
		err = p.deleteCode(cid)
	}
	if err != nil {
		p.undo.rewind(p.store, mark)
		p.cfg.Log.Debug("invocation rolled back", "contract", cid, "method", methodIdx, "err", err)
		return nil, err
	}
	return out, nil
}

// deleteCode enforces §8's invariant that a contract's code record cannot
// be deleted while its Refs counter is > 0, then removes cid's code
// record, honoring Dtor's completion effect (§4.6).
func (p *Processor) deleteCode(cid common.ContractID) error {
	if held := RefsHeld(p.store, cid); held > 0 {
		return NewError(KindInvariantViolation, "dtor refused: %d references outstanding", held)
	}
	deleter, ok := p.cfg.Code.(CodeDeleter)
	if !ok {
		return NewError(KindLinkError, "code source does not support dtor's code deletion")
	}
	return deleter.DeleteCode(cid)
}

// runMethod pushes the top-level frame, jumps to methodIdx's entry, and
// drives the fetch-decode-execute loop until the method halts.
func (p *Processor) runMethod(cid common.ContractID, mod *Module, methodIdx uint32, calldata []byte) ([]byte, error) {
	if int(methodIdx) >= len(mod.MethodEntries) {
		return nil, NewError(KindLinkError, "method index %d out of range", methodIdx)
	}
	frame := newFrame(cid, mod, len(p.frames))
	if len(p.frames) >= params.FarCallDepth {
		return nil, NewError(KindFarCallTooDeep, "far-call stack depth %d", len(p.frames))
	}
	if err := frame.Mem.set(0, calldata); err != nil {
		return nil, err
	}
	frame.PC = mod.MethodEntries[methodIdx]

	p.frames = append(p.frames, frame)
	defer func() { p.frames = p.frames[:len(p.frames)-1] }()

	return p.run(frame)
}

// run is the fetch-decode-execute loop for the topmost frame. It returns
// when an opcode's halts flag fires (STOP, or RET at local call depth 0).
func (p *Processor) run(f *Frame) ([]byte, error) {
	st := newStack()
	defer st.free()

	for {
		if int(f.PC) >= len(f.Module.Code) {
			return nil, NewError(KindBoundsViolation, "program counter ran past code end")
		}
		op := OpCode(f.Module.Code[f.PC])
		entry := p.jumpTable[op]
		if entry.execute == nil {
			return nil, NewError(KindMalformedModule, "invalid opcode 0x%02x", op)
		}
		if st.len() < entry.minStack {
			return nil, NewError(KindBoundsViolation, "stack underflow executing %s", op)
		}
		if st.len() > entry.maxStack {
			return nil, NewError(KindBoundsViolation, "stack overflow executing %s", op)
		}
		if err := p.charge(p.cfg.Charge.CycleCost + entry.chargeConst); err != nil {
			return nil, err
		}

		preCallDepth := len(f.Locals)

		pc := f.PC
		if err := entry.execute(&pc, p, f, st); err != nil {
			return nil, err
		}
		if !entry.jumps {
			pc++
		}
		f.PC = pc

		// STOP ends the method at any local call depth. RET's halts flag only
		// ends the method when it fires at local call depth 0 (no enclosing
		// CALL to return into). opRet has already popped f.Locals by the time
		// we reach this check, so the depth must be captured before execute
		// runs, not after.
		if entry.halts && (op == STOP || preCallDepth == 0) {
			if st.len() > 0 {
				ret, err := encodeReturn(st)
				if err != nil {
					return nil, err
				}
				return ret, nil
			}
			return nil, nil
		}
	}
}

// encodeReturn serializes the stack's remaining values as the method's
// return payload: 8-byte big-endian words, bottom of stack first.
func encodeReturn(st *Stack) ([]byte, error) {
	data := st.data64()
	out := make([]byte, 0, len(data)*8)
	for _, v := range data {
		var buf [8]byte
		for i := 7; i >= 0; i-- {
			buf[i] = byte(v)
			v >>= 8
		}
		out = append(out, buf[:]...)
	}
	return out, nil
}

// currentFrame returns the innermost far-call frame, the one host calls act
// against.
func (p *Processor) currentFrame() *Frame {
	return p.frames[len(p.frames)-1]
}
