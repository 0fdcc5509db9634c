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

	"github.com/bvm2/bvm2/common"
	"github.com/bvm2/bvm2/params"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// dispatchHostCall executes the host ABI function bound to id against the
// current frame's memory and the Processor's shared invocation state
// (store, undo log, signature accumulator, far-call stack). Every handler
// pops its own operands off st in the fixed order documented alongside it
// and pushes exactly one result word, matching HOSTCALL's declared
// single-result contract.
func (p *Processor) dispatchHostCall(id BindingID, f *Frame, st *Stack) error {
	switch id {
	case BindMemCpy:
		return p.hostMemCpy(f, st)
	case BindMemSet:
		return p.hostMemSet(f, st)
	case BindMemCmp:
		return p.hostMemCmp(f, st)
	case BindMemIs0:
		return p.hostMemIs0(f, st)
	case BindLoadVar:
		return p.hostLoadVar(f, st)
	case BindSaveVar:
		return p.hostSaveVar(f, st)
	case BindHalt:
		return p.hostHalt(f, st)
	case BindAddSig:
		return p.hostAddSig(f, st)
	case BindFundsLock:
		return p.hostFundsLock(f, st)
	case BindFundsUnlock:
		return p.hostFundsUnlock(f, st)
	case BindRefAdd:
		return p.hostRefAdd(f, st)
	case BindRefRelease:
		return p.hostRefRelease(f, st)
	case BindAssetCreate:
		return p.hostAssetCreate(f, st)
	case BindAssetEmit:
		return p.hostAssetEmit(f, st)
	case BindAssetDestroy:
		return p.hostAssetDestroy(f, st)
	case BindCallFar:
		return p.hostCallFar(f, st)
	case BindGetHdr:
		return p.hostGetHdr(f, st)
	default:
		return NewError(KindLinkError, "unresolved host binding %d", id)
	}
}

// Stack order below is documented top-first: "pop size, off" means size is
// popped before off, i.e. the caller pushed off then size.

func (p *Processor) hostMemCpy(f *Frame, st *Stack) error {
	size, srcOff, dstOff := st.pop(), st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.MemoryOpCost(size)); err != nil {
		return err
	}
	src, err := f.Mem.get(srcOff, size)
	if err != nil {
		return err
	}
	if err := f.Mem.set(dstOff, src); err != nil {
		return err
	}
	return st.push(1)
}

func (p *Processor) hostMemSet(f *Frame, st *Stack) error {
	size, val, off := st.pop(), st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.MemoryOpCost(size)); err != nil {
		return err
	}
	buf := bytes.Repeat([]byte{byte(val)}, int(size))
	if err := f.Mem.set(off, buf); err != nil {
		return err
	}
	return st.push(1)
}

func (p *Processor) hostMemCmp(f *Frame, st *Stack) error {
	size, offB, offA := st.pop(), st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.MemoryOpCost(size)); err != nil {
		return err
	}
	a, err := f.Mem.get(offA, size)
	if err != nil {
		return err
	}
	b, err := f.Mem.get(offB, size)
	if err != nil {
		return err
	}
	if bytes.Equal(a, b) {
		return st.push(1)
	}
	return st.push(0)
}

func (p *Processor) hostMemIs0(f *Frame, st *Stack) error {
	size, off := st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.MemoryOpCost(size)); err != nil {
		return err
	}
	buf, err := f.Mem.get(off, size)
	if err != nil {
		return err
	}
	for _, b := range buf {
		if b != 0 {
			return st.push(0)
		}
	}
	return st.push(1)
}

// LoadVar: pop valueLen, valueOff, tag, subkeyLen, subkeyOff. Reads the
// variable-store entry for (current contract, tag, subkey), copies up to
// valueLen bytes of it into memory at valueOff, and pushes the entry's true
// length (the caller compares this against valueLen to detect truncation).
func (p *Processor) hostLoadVar(f *Frame, st *Stack) error {
	valueLen, valueOff, tag, subkeyLen, subkeyOff := st.pop(), st.pop(), st.pop(), st.pop(), st.pop()
	subkey, err := f.Mem.get(subkeyOff, subkeyLen)
	if err != nil {
		return err
	}
	key, err := newVarKey(f.ContractID, VarTag(tag), subkey)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	if err := p.charge(p.cfg.Charge.LoadVarCost(valueLen)); err != nil {
		return err
	}
	raw, ok := p.store.Get(kb)
	if !ok {
		return st.push(0)
	}
	n := uint64(len(raw))
	copyLen := n
	if copyLen > valueLen {
		copyLen = valueLen
	}
	if err := f.Mem.set(valueOff, raw[:copyLen]); err != nil {
		return err
	}
	return st.push(n)
}

// SaveVar: pop valueLen, valueOff, tag, subkeyLen, subkeyOff. Writes
// valueLen bytes from memory at valueOff into the variable store; valueLen
// == 0 deletes the entry instead.
func (p *Processor) hostSaveVar(f *Frame, st *Stack) error {
	valueLen, valueOff, tag, subkeyLen, subkeyOff := st.pop(), st.pop(), st.pop(), st.pop(), st.pop()
	subkey, err := f.Mem.get(subkeyOff, subkeyLen)
	if err != nil {
		return err
	}
	key, err := newVarKey(f.ContractID, VarTag(tag), subkey)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	if err := p.charge(p.cfg.Charge.SaveVarCost(valueLen)); err != nil {
		return err
	}
	if valueLen == 0 {
		deleteVar(p.store, p.undo, kb)
		return st.push(1)
	}
	if valueLen > params.VarSize {
		return NewError(KindBoundsViolation, "variable value length %d exceeds limit", valueLen)
	}
	value, err := f.Mem.get(valueOff, valueLen)
	if err != nil {
		return err
	}
	setVar(p.store, p.undo, kb, value)
	return st.push(1)
}

// hostHalt raises a fatal, contract-triggered halt (e.g. an asserted
// precondition failing), always rolling back the top-level invocation.
func (p *Processor) hostHalt(f *Frame, st *Stack) error {
	code := st.pop()
	return NewError(KindHalt, "contract halt (code %d)", code)
}

// AddSig: pop msgLen, msgOff, pubKeyOff (64-byte uncompressed X||Y).
func (p *Processor) hostAddSig(f *Frame, st *Stack) error {
	msgLen, msgOff, pubKeyOff := st.pop(), st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.HashCost); err != nil {
		return err
	}
	pubBytes, err := f.Mem.get(pubKeyOff, 64)
	if err != nil {
		return err
	}
	msg, err := f.Mem.get(msgOff, msgLen)
	if err != nil {
		return err
	}
	var fx, fy secp256k1.FieldVal
	fx.SetByteSlice(pubBytes[:32])
	fy.SetByteSlice(pubBytes[32:])
	pub := secp256k1.NewPublicKey(&fx, &fy)
	p.sigAcc.AddSig(pub, msg)
	return st.push(1)
}

// FundsLock / FundsUnlock: pop amountOff (32-byte big-endian amount).
func (p *Processor) hostFundsLock(f *Frame, st *Stack) error {
	amountOff := st.pop()
	if err := p.charge(p.cfg.Charge.FundsOpCost); err != nil {
		return err
	}
	raw, err := f.Mem.get(amountOff, 32)
	if err != nil {
		return err
	}
	amount := new(Amount).SetBytes(raw)
	if err := FundsLock(p.store, p.undo, p.sigAcc, f.ContractID, amount); err != nil {
		return err
	}
	return st.push(1)
}

func (p *Processor) hostFundsUnlock(f *Frame, st *Stack) error {
	amountOff := st.pop()
	if err := p.charge(p.cfg.Charge.FundsOpCost); err != nil {
		return err
	}
	raw, err := f.Mem.get(amountOff, 32)
	if err != nil {
		return err
	}
	amount := new(Amount).SetBytes(raw)
	if err := FundsUnlock(p.store, p.undo, p.sigAcc, f.ContractID, amount); err != nil {
		return err
	}
	return st.push(1)
}

// RefAdd / RefRelease: pop refIDLen, refIDOff. refID must be the 32-byte
// ContractID of the contract being referenced.
func (p *Processor) hostRefAdd(f *Frame, st *Stack) error {
	refIDLen, refIDOff := st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.RefOpCost); err != nil {
		return err
	}
	if refIDLen != common.HashLength {
		return NewError(KindBoundsViolation, "ref target must be a %d-byte contract ID", common.HashLength)
	}
	raw, err := f.Mem.get(refIDOff, refIDLen)
	if err != nil {
		return err
	}
	var target common.ContractID
	copy(target[:], raw)
	if err := RefAdd(p.store, p.undo, p.cfg.Code, f.ContractID, target); err != nil {
		return err
	}
	return st.push(1)
}

func (p *Processor) hostRefRelease(f *Frame, st *Stack) error {
	refIDLen, refIDOff := st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.RefOpCost); err != nil {
		return err
	}
	if refIDLen != common.HashLength {
		return NewError(KindBoundsViolation, "ref target must be a %d-byte contract ID", common.HashLength)
	}
	raw, err := f.Mem.get(refIDOff, refIDLen)
	if err != nil {
		return err
	}
	var target common.ContractID
	copy(target[:], raw)
	if err := RefRelease(p.store, p.undo, f.ContractID, target); err != nil {
		return err
	}
	return st.push(1)
}

// AssetCreate: pop metaLen, metaOff, assetIDLen, assetIDOff. Locks
// AssetDeposit funds from the creating contract's own balance.
func (p *Processor) hostAssetCreate(f *Frame, st *Stack) error {
	metaLen, metaOff, assetIDLen, assetIDOff := st.pop(), st.pop(), st.pop(), st.pop()
	if metaLen > params.MetadataMaxSize {
		return NewError(KindBoundsViolation, "asset metadata length %d exceeds limit", metaLen)
	}
	if err := p.charge(p.cfg.Charge.AssetOpCost); err != nil {
		return err
	}
	meta, err := f.Mem.get(metaOff, metaLen)
	if err != nil {
		return err
	}
	assetID, err := f.Mem.get(assetIDOff, assetIDLen)
	if err != nil {
		return err
	}
	deposit := new(Amount).SetUint64(p.cfg.Charge.AssetDeposit)
	if err := FundsLock(p.store, p.undo, p.sigAcc, f.ContractID, deposit); err != nil {
		return err
	}
	if err := AssetCreate(p.store, p.undo, f.ContractID, assetID, meta); err != nil {
		return err
	}
	return st.push(1)
}

// AssetEmit: pop emitFlag, amount, assetIDLen, assetIDOff. emitFlag != 0
// increases supply; emitFlag == 0 burns it back down.
func (p *Processor) hostAssetEmit(f *Frame, st *Stack) error {
	emitFlag, amount, assetIDLen, assetIDOff := st.pop(), st.pop(), st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.AssetOpCost); err != nil {
		return err
	}
	assetID, err := f.Mem.get(assetIDOff, assetIDLen)
	if err != nil {
		return err
	}
	if err := AssetEmit(p.store, p.undo, f.ContractID, assetID, amount, emitFlag != 0); err != nil {
		return err
	}
	return st.push(1)
}

// AssetDestroy: pop assetIDLen, assetIDOff. Refunds the creation deposit.
func (p *Processor) hostAssetDestroy(f *Frame, st *Stack) error {
	assetIDLen, assetIDOff := st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.AssetOpCost); err != nil {
		return err
	}
	assetID, err := f.Mem.get(assetIDOff, assetIDLen)
	if err != nil {
		return err
	}
	if err := AssetDestroy(p.store, p.undo, f.ContractID, assetID); err != nil {
		return err
	}
	deposit := new(Amount).SetUint64(p.cfg.Charge.AssetDeposit)
	if err := FundsUnlock(p.store, p.undo, p.sigAcc, f.ContractID, deposit); err != nil {
		return err
	}
	return st.push(1)
}

// CallFar: pop argsLen, argsOff, methodIdx, calleeOff (32-byte ContractID
// in memory). Loads the callee's module, pushes a new frame, runs it to
// completion, copies its return value back into the caller's memory at
// argsOff (reusing the argument buffer), and pushes the return length.
func (p *Processor) hostCallFar(f *Frame, st *Stack) error {
	argsLen, argsOff, methodIdx, calleeOff := st.pop(), st.pop(), st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.CallCost + p.cfg.Charge.FarCallCost); err != nil {
		return err
	}
	if len(p.frames) >= params.FarCallDepth {
		return NewError(KindFarCallTooDeep, "far-call stack depth %d", len(p.frames))
	}
	calleeBytes, err := f.Mem.get(calleeOff, 32)
	if err != nil {
		return err
	}
	var callee common.ContractID
	copy(callee[:], calleeBytes)

	args, err := f.Mem.get(argsOff, argsLen)
	if err != nil {
		return err
	}

	code, ok := p.cfg.Code.CodeOf(callee)
	if !ok {
		return NewError(KindLinkError, "no code deployed at contract %s", callee)
	}
	mod, err := LoadModule(code)
	if err != nil {
		return err
	}
	if methodIdx == params.MethodCtor || methodIdx == params.MethodDtor {
		return NewError(KindLinkError, "far call cannot target ctor/dtor directly")
	}

	ret, err := p.runMethod(callee, mod, uint32(methodIdx), args)
	if err != nil {
		return err
	}
	if err := f.Mem.set(argsOff, ret); err != nil {
		return err
	}
	return st.push(uint64(len(ret)))
}

// get_Hdr: pop height, outOff. Writes the 32-byte hash of the block at
// height into memory at outOff; fatal KindBlockNotReady if height has no
// header yet (the roulette fixture's Reveal relies on this to refuse a
// reveal before its block exists).
func (p *Processor) hostGetHdr(f *Frame, st *Stack) error {
	height, outOff := st.pop(), st.pop()
	if err := p.charge(p.cfg.Charge.HashCost); err != nil {
		return err
	}
	hash, ok := p.cfg.Blocks.HeaderHash(height)
	if !ok {
		return NewError(KindBlockNotReady, "header for height %d not available", height)
	}
	if err := f.Mem.set(outOff, hash.Bytes()); err != nil {
		return err
	}
	return st.push(1)
}
