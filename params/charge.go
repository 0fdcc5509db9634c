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

package params

// ChargeParams is the consensus-critical cost schedule for a BVM2
// invocation. It is passed into the interpreter's constructor rather than
// held in package-level globals (see cvm.Context / vm.Config in the
// reference chain client) because every field here can legitimately differ
// between chain deployments while still needing to be identical between
// two nodes evaluating the same invocation.
//
// Every implementation evaluating the same module, args and store must
// agree byte-for-byte on these numbers; see DESIGN.md for the Open
// Question resolution on where these values come from.
type ChargeParams struct {
	// CycleCost is debited once per executed opcode, unconditionally.
	CycleCost uint64

	// CallCost is debited once per local call and once per far call, on
	// top of CycleCost.
	CallCost uint64

	// LoadVarBaseCost / LoadVarPerByteCost charge for LoadVar: a fixed
	// base plus a per-byte-read component.
	LoadVarBaseCost    uint64
	LoadVarPerByteCost uint64

	// SaveVarBaseCost / SaveVarPerByteCost charge for SaveVar: a fixed
	// base plus a per-byte-written component.
	SaveVarBaseCost    uint64
	SaveVarPerByteCost uint64

	// MemoryOpPerWordCost is debited for memcpy/memset/memcmp/memis0,
	// scaled by the number of bytes touched (rounded up to a word).
	MemoryOpPerWordCost uint64

	// HashCost is debited for the signature/hash accumulation performed
	// by AddSig, and once per get_Hdr lookup.
	HashCost uint64

	// FundsOpCost is debited for FundsLock / FundsUnlock.
	FundsOpCost uint64

	// RefOpCost is debited for RefAdd / RefRelease.
	RefOpCost uint64

	// AssetOpCost is debited for AssetCreate / AssetEmit / AssetDestroy,
	// on top of the deposit accounting itself.
	AssetOpCost uint64

	// AssetDeposit is the fixed amount locked by a successful AssetCreate
	// and refunded by a matching AssetDestroy.
	AssetDeposit uint64

	// FarCallCost is debited once per CallFar, on top of CallCost.
	FarCallCost uint64
}

// LoadVarCost returns the total charge for an n-byte LoadVar.
func (c ChargeParams) LoadVarCost(n uint64) uint64 {
	return c.LoadVarBaseCost + n*c.LoadVarPerByteCost
}

// SaveVarCost returns the total charge for an n-byte SaveVar.
func (c ChargeParams) SaveVarCost(n uint64) uint64 {
	return c.SaveVarBaseCost + n*c.SaveVarPerByteCost
}

// MemoryOpCost returns the total charge for an n-byte memory primitive.
func (c ChargeParams) MemoryOpCost(n uint64) uint64 {
	words := (n + 31) / 32
	return c.MemoryOpPerWordCost * words
}

// DefaultChargeParams returns the reference cost schedule. The relative
// weights are scaled from the teacher chain client's own energy table
// (EnergyFastestStep=3, EnergySlowStep=10, SstoreSetEnergy=20000,
// Sha3WordEnergy=6, ...): cheap constant-time primitives cost a handful of
// units, storage and asset operations cost thousands, matching the shape
// (not the exact magnitude, which is chain-specific) of that schedule.
func DefaultChargeParams() ChargeParams {
	return ChargeParams{
		CycleCost:           1,
		CallCost:            10,
		LoadVarBaseCost:     50,
		LoadVarPerByteCost:  1,
		SaveVarBaseCost:     200,
		SaveVarPerByteCost:  5,
		MemoryOpPerWordCost: 3,
		HashCost:            200,
		FundsOpCost:         30,
		RefOpCost:           30,
		AssetOpCost:         500,
		AssetDeposit:        1_000_000,
		FarCallCost:         300,
	}
}
