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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvm2/bvm2/common"
)

func testCID(b byte) common.ContractID {
	var cid common.ContractID
	cid[0] = b
	return cid
}

func TestFundsLockUnlockRoundTrip(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	acc := newSigAccumulator()
	cid := testCID(1)

	require.NoError(t, FundsLock(store, log, acc, cid, new(Amount).SetUint64(100)))
	require.NoError(t, FundsLock(store, log, acc, cid, new(Amount).SetUint64(50)))
	assert.True(t, LockedAmount(store, cid).Eq(new(Amount).SetUint64(150)))

	require.NoError(t, FundsUnlock(store, log, acc, cid, new(Amount).SetUint64(30)))
	assert.True(t, LockedAmount(store, cid).Eq(new(Amount).SetUint64(120)))
}

func TestFundsUnlockExceedingLockedFailsFatally(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	acc := newSigAccumulator()
	cid := testCID(2)

	require.NoError(t, FundsLock(store, log, acc, cid, new(Amount).SetUint64(10)))
	err := FundsUnlock(store, log, acc, cid, new(Amount).SetUint64(11))
	require.Error(t, err)
	assert.Equal(t, KindInvariantViolation, err.(*Error).Kind)
	// the failed unlock must not have touched the balance
	assert.True(t, LockedAmount(store, cid).Eq(new(Amount).SetUint64(10)))
}

func TestFundsLockOverflowFailsFatally(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	acc := newSigAccumulator()
	cid := testCID(3)

	max := new(Amount).Not(new(Amount)) // all bits set: uint256 max
	require.NoError(t, FundsLock(store, log, acc, cid, max))

	err := FundsLock(store, log, acc, cid, new(Amount).SetUint64(1))
	require.Error(t, err)
	assert.Equal(t, KindInvariantViolation, err.(*Error).Kind)
}

// fakeCode is a minimal CodeSource stub for ledger tests exercising
// RefAdd's existence check without standing up a full runtime.Config.
type fakeCode struct {
	known map[common.ContractID]bool
}

func (f fakeCode) CodeOf(cid common.ContractID) ([]byte, bool) {
	if f.known[cid] {
		return []byte{0x00}, true
	}
	return nil, false
}

func TestRefAddReleaseCrossesZeroOneBoundary(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	cid := testCID(4)
	target := testCID(0x40)
	code := fakeCode{known: map[common.ContractID]bool{target: true}}

	mark := log.checkpoint()
	require.NoError(t, RefAdd(store, log, code, cid, target))
	require.NoError(t, RefAdd(store, log, code, cid, target))
	// the 0->1 flip bumps both the ref entry and the target's own marker;
	// the second add is a plain count bump against the ref entry alone
	assert.Equal(t, mark+3, log.checkpoint())
	assert.Equal(t, uint64(1), RefsHeld(store, target))

	require.NoError(t, RefRelease(store, log, cid, target))
	require.NoError(t, RefRelease(store, log, cid, target))

	key, err := refKey(cid, target)
	require.NoError(t, err)
	_, had := store.Get(key.Bytes())
	assert.False(t, had, "ref entry must be deleted once its count returns to 0")
	assert.Equal(t, uint64(0), RefsHeld(store, target))
}

func TestRefAddAgainstNonexistentContractFails(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	cid := testCID(9)
	target := testCID(0x90)
	code := fakeCode{known: map[common.ContractID]bool{}}

	err := RefAdd(store, log, code, cid, target)
	require.Error(t, err)
	assert.Equal(t, KindLinkError, err.(*Error).Kind)
}

func TestRefReleaseWithoutAddFailsFatally(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	cid := testCID(5)

	err := RefRelease(store, log, cid, testCID(0x50))
	require.Error(t, err)
	assert.Equal(t, KindInvariantViolation, err.(*Error).Kind)
}

func TestRefAddReleaseRollsBackViaUndoLog(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	cid := testCID(6)
	target := testCID(0x60)
	code := fakeCode{known: map[common.ContractID]bool{target: true}}

	mark := log.checkpoint()
	require.NoError(t, RefAdd(store, log, code, cid, target))
	key, err := refKey(cid, target)
	require.NoError(t, err)
	_, had := store.Get(key.Bytes())
	assert.True(t, had)

	log.rewind(store, mark)
	_, had = store.Get(key.Bytes())
	assert.False(t, had, "rewinding past a 0->1 ref add must leave no trace")
	assert.Equal(t, uint64(0), RefsHeld(store, target))
}

func TestAssetLifecycleConservation(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	cid := testCID(7)
	assetID := []byte("asset-a")
	metadata := []byte("metadata blob")

	require.NoError(t, AssetCreate(store, log, cid, assetID, metadata))
	assert.Error(t, AssetCreate(store, log, cid, assetID, metadata), "re-creating an existing asset must fail")

	require.NoError(t, AssetEmit(store, log, cid, assetID, 10, true))
	require.NoError(t, AssetEmit(store, log, cid, assetID, 5, true))

	err := AssetDestroy(store, log, cid, assetID)
	require.Error(t, err)
	assert.Equal(t, KindInvariantViolation, err.(*Error).Kind)

	// burning back past the outstanding total fails fatally...
	err = AssetEmit(store, log, cid, assetID, 16, false)
	require.Error(t, err)
	assert.Equal(t, KindInvariantViolation, err.(*Error).Kind)

	// ...but burning exactly the outstanding total lets destroy succeed.
	require.NoError(t, AssetEmit(store, log, cid, assetID, 15, false))
	require.NoError(t, AssetDestroy(store, log, cid, assetID))

	key, err := assetKey(cid, assetID)
	require.NoError(t, err)
	_, had := store.Get(key.Bytes())
	assert.False(t, had)
}

func TestAssetEmitOverflowFailsFatally(t *testing.T) {
	store := NewMemStore()
	log := newUndoLog()
	cid := testCID(8)
	assetID := []byte("asset-c")

	require.NoError(t, AssetCreate(store, log, cid, assetID, []byte("m")))
	require.NoError(t, AssetEmit(store, log, cid, assetID, ^uint64(0), true))

	err := AssetEmit(store, log, cid, assetID, 1, true)
	require.Error(t, err)
	assert.Equal(t, KindInvariantViolation, err.(*Error).Kind)
}

func TestAssetMetadataFingerprintIsDeterministicAndContentAddressed(t *testing.T) {
	a := hashMetadata([]byte("same"))
	b := hashMetadata([]byte("same"))
	c := hashMetadata([]byte("different"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
