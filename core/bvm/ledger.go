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
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/bvm2/bvm2/common"
	"github.com/core-coin/uint256"
)

// hashMetadata fingerprints an asset's metadata with blake2b rather than
// the Keccak256 used for identifiers elsewhere, so asset metadata hashing
// can evolve independently of the ContractID/ShaderID derivation scheme.
func hashMetadata(metadata []byte) common.Hash {
	return blake2b.Sum256(metadata)
}

// Amount is a 256-bit funds quantity, wide enough that no lock/unlock
// sequence a contract can construct ever wraps silently; every arithmetic
// path below fails with KindInvariantViolation instead of wrapping.
type Amount = uint256.Int

func loadAmount(store Store, key []byte) *Amount {
	raw, ok := store.Get(key)
	a := new(Amount)
	if !ok {
		return a
	}
	a.SetBytes(raw)
	return a
}

func amountBytes(a *Amount) []byte {
	b := a.Bytes32()
	return b[:]
}

// FundsLock increases a contract's locked-amount balance by amount,
// recording the prior value on the undo log and folding amount*G into acc's
// funds-I/O commitment. HandleAmountInner in the reference bvm2
// nomenclature: the bookkeeping performed from inside the owning contract's
// own invocation.
func FundsLock(store Store, log *undoLog, acc *SigAccumulator, cid common.ContractID, amount *Amount) error {
	key, err := newVarKey(cid, TagLockedAmount, nil)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	cur := loadAmount(store, kb)
	next := new(Amount)
	_, overflow := next.AddOverflow(cur, amount)
	if overflow {
		return NewError(KindInvariantViolation, "locked amount overflow")
	}
	setVar(store, log, kb, amountBytes(next))
	acc.addFundsIO(amount, false)
	return nil
}

// FundsUnlock decreases a contract's locked-amount balance by amount. It
// fails with KindInvariantViolation rather than going negative:
// HandleAmountOuter's conservation check in the reference nomenclature.
func FundsUnlock(store Store, log *undoLog, acc *SigAccumulator, cid common.ContractID, amount *Amount) error {
	key, err := newVarKey(cid, TagLockedAmount, nil)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	cur := loadAmount(store, kb)
	if cur.Lt(amount) {
		return NewError(KindInvariantViolation, "funds unlock exceeds locked balance")
	}
	next := new(Amount).Sub(cur, amount)
	setVar(store, log, kb, amountBytes(next))
	acc.addFundsIO(amount, true)
	return nil
}

// LockedAmount returns a contract's current locked-amount balance.
func LockedAmount(store Store, cid common.ContractID) *Amount {
	key, _ := newVarKey(cid, TagLockedAmount, nil)
	return loadAmount(store, key.Bytes())
}

// refKey derives the variable key a RefAdd/RefRelease pair on target shares,
// held against the calling (referencing) contract.
func refKey(caller, target common.ContractID) (VarKey, error) {
	return newVarKey(caller, TagRefs, target.Bytes())
}

// targetRefKey is the marker entry living at the referenced contract's own
// Refs slot (empty subkey, distinct from any refKey since those always
// carry a 32-byte target subkey). Its value counts how many distinct
// callers currently hold a nonzero reference against target, so Dtor can
// refuse to delete target's code record while it is > 0 (see RefsHeld).
func targetRefKey(target common.ContractID) (VarKey, error) {
	return newVarKey(target, TagRefs, nil)
}

// RefsHeld reports how many distinct callers currently hold a nonzero
// reference count against cid.
func RefsHeld(store Store, cid common.ContractID) uint64 {
	key, _ := targetRefKey(cid)
	raw, had := store.Get(key.Bytes())
	if !had {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// bumpTargetRefMarker adjusts target's own Refs marker by delta, flipped at
// every 0<->1 transition a caller's RefAdd/RefRelease crosses.
func bumpTargetRefMarker(store Store, log *undoLog, target common.ContractID, delta int64) error {
	key, err := targetRefKey(target)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	raw, had := store.Get(kb)
	count := uint64(0)
	if had {
		count = binary.BigEndian.Uint64(raw)
	}
	next := int64(count) + delta
	if next < 0 {
		return NewError(KindInvariantViolation, "referenced-contract marker underflow")
	}
	log.recordSet(kb, had, raw)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(next))
	store.Set(kb, buf[:])
	return nil
}

// RefAdd increments the reference count caller holds against target.
// Crossing 0 -> 1 is recorded as a distinct undo-log variant (undoRefFlip)
// because the reference-counted entity's existence, not just its count,
// changes at that boundary, and additionally requires that target's code
// record exists (failure undoes) and bumps target's own Refs marker.
func RefAdd(store Store, log *undoLog, code CodeSource, caller, target common.ContractID) error {
	key, err := refKey(caller, target)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	raw, had := store.Get(kb)
	count := uint64(0)
	if had {
		count = binary.BigEndian.Uint64(raw)
	}
	if count == 0 {
		if _, ok := code.CodeOf(target); !ok {
			return NewError(KindLinkError, "ref add against nonexistent contract %s", target)
		}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], count+1)
	if count == 0 {
		log.recordRefFlip(kb, had, raw)
		if err := bumpTargetRefMarker(store, log, target, 1); err != nil {
			return err
		}
	} else {
		log.recordSet(kb, had, raw)
	}
	store.Set(kb, buf[:])
	return nil
}

// RefRelease decrements the reference count caller holds against target,
// failing fatally if it would go negative (an invariant: every release
// must be paired with a prior add), and drops target's own Refs marker back
// on the 1 -> 0 transition.
func RefRelease(store Store, log *undoLog, caller, target common.ContractID) error {
	key, err := refKey(caller, target)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	raw, had := store.Get(kb)
	if !had {
		return NewError(KindInvariantViolation, "ref release without matching add")
	}
	count := binary.BigEndian.Uint64(raw)
	if count == 0 {
		return NewError(KindInvariantViolation, "ref release without matching add")
	}
	if count == 1 {
		log.recordRefFlip(kb, had, raw)
		deleteVar(store, log, kb)
		return bumpTargetRefMarker(store, log, target, -1)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], count-1)
	log.recordSet(kb, had, raw)
	store.Set(kb, buf[:])
	return nil
}

// AssetState is the persisted record of a live asset: its owning
// contract's metadata hash and outstanding emitted total, used to enforce
// deposit conservation at AssetDestroy.
type AssetState struct {
	MetaHash common.Hash
	Total    uint64
}

func assetKey(cid common.ContractID, assetID []byte) (VarKey, error) {
	return newVarKey(cid, TagOwnedAsset, assetID)
}

func encodeAssetState(s AssetState) []byte {
	buf := make([]byte, common.HashLength+8)
	copy(buf, s.MetaHash.Bytes())
	binary.BigEndian.PutUint64(buf[common.HashLength:], s.Total)
	return buf
}

func decodeAssetState(raw []byte) AssetState {
	var s AssetState
	copy(s.MetaHash[:], raw[:common.HashLength])
	s.Total = binary.BigEndian.Uint64(raw[common.HashLength:])
	return s
}

// AssetCreate registers a new asset owned by cid and fingerprints its
// metadata. The refundable AssetDeposit lock/unlock is the host ABI's
// responsibility (hostAssetCreate/hostAssetDestroy in hostabi.go), not
// this function's: AssetCreate only owns the asset record itself. Fails
// if an asset with the same ID already exists.
func AssetCreate(store Store, log *undoLog, cid common.ContractID, assetID, metadata []byte) error {
	key, err := assetKey(cid, assetID)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	if _, had := store.Get(kb); had {
		return NewError(KindInvariantViolation, "asset already exists")
	}
	state := AssetState{MetaHash: hashMetadata(metadata), Total: 0}
	setVar(store, log, kb, encodeAssetState(state))
	return nil
}

// AssetEmit applies a signed delta to an existing asset's outstanding
// total: amount increases supply when emitFlag is true, and burns it back
// down when false. Burning more than the outstanding total, or emitting
// past overflow, both fail fatally.
func AssetEmit(store Store, log *undoLog, cid common.ContractID, assetID []byte, amount uint64, emitFlag bool) error {
	key, err := assetKey(cid, assetID)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	raw, had := store.Get(kb)
	if !had {
		return NewError(KindInvariantViolation, "asset does not exist")
	}
	state := decodeAssetState(raw)
	var next uint64
	if emitFlag {
		next = state.Total + amount
		if next < state.Total {
			return NewError(KindInvariantViolation, "asset total overflow")
		}
	} else {
		if amount > state.Total {
			return NewError(KindInvariantViolation, "asset burn exceeds outstanding supply")
		}
		next = state.Total - amount
	}
	state.Total = next
	log.recordSet(kb, had, raw)
	store.Set(kb, encodeAssetState(state))
	return nil
}

// AssetDestroy removes an asset, failing if it still has outstanding
// emitted supply (deposit conservation: the asset can only be destroyed
// once every emitted unit has been accounted for by the caller).
func AssetDestroy(store Store, log *undoLog, cid common.ContractID, assetID []byte) error {
	key, err := assetKey(cid, assetID)
	if err != nil {
		return err
	}
	kb := key.Bytes()
	raw, had := store.Get(kb)
	if !had {
		return NewError(KindInvariantViolation, "asset does not exist")
	}
	state := decodeAssetState(raw)
	if state.Total != 0 {
		return NewError(KindInvariantViolation, "asset destroyed with outstanding supply")
	}
	deleteVar(store, log, kb)
	return nil
}
