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

package shaders

import (
	"github.com/bvm2/bvm2/core/bvm"
	"github.com/bvm2/bvm2/core/bvm/compiler"
)

// FaucetMethodClaim is the faucet's only callable method beyond ctor/dtor.
const FaucetMethodClaim uint32 = 2

// faucetInterval is the minimum number of blocks a caller must wait between
// successive claims: claim's own next-eligible height is derived as
// lastClaimedHeight + faucetInterval, which get_Hdr either confirms is
// already on the chain (claim proceeds) or rejects with KindBlockNotReady
// (claim is simply too early, throttling the backlog of pending claims).
const faucetInterval = 1

// faucetReserve seeds the faucet's own locked balance at construction time.
// FundsUnlock enforces conservation (it fails rather than letting a
// contract's locked balance go negative), so a faucet that drips funds via
// env.funds_unlock must first lock a reserve to drip from; ctor does that
// once, up front, rather than on every claim.
const faucetReserve = uint64(1) << 40

// Faucet's claim calldata is empty; the next eligible height is computed
// entirely from the faucet's own stored state. Memory layout used
// internally: mem[0:8] holds the 8-byte last-claimed height (loaded from
// the variable store, or read back as zero on a cold faucet), mem[8:40]
// holds the get_Hdr output hash, mem[40:48] holds the updated height about
// to be persisted, and mem[48:80] holds the 32-byte drip amount (its top 24
// bytes left zero by Memory's zero-fill-on-grow).
//
// Claim exercises: LoadVar (read last-claimed height), ADD (compute next
// eligible height), get_Hdr (block the claim until that height exists on
// chain), SaveVar (persist the new height), and FundsUnlock (the drip).
//
// Ctor must be invoked once (method index params.MethodCtor) before the
// first Claim: it locks faucetReserve into the faucet's own balance, the
// pool every drip unlocks from.
func Faucet(dripAmount uint64) []byte {
	ctor := compiler.NewAssembler()
	ctor.
		Push(faucetReserve).Push(24).Op(bvm.MSTORE). // mem[24:32] = low 8 bytes of the reserve
		Push(0).
		Host("env.funds_lock").
		Stop()

	claim := compiler.NewAssembler()
	claim.
		// load_var(tag=Internal, subkey="") into mem[0:8]
		// push order: subkeyOff, subkeyLen, tag, valueOff, valueLen (popped in reverse)
		Push(0).Push(0).Push(0).Push(0).Push(8).
		Host("env.load_var").
		Op(bvm.POP). // discard reported length; a cold faucet reads back as zero

		// next = last + interval, stashed at mem[40:48]
		Push(0).Op(bvm.MLOAD).
		Push(faucetInterval).
		Op(bvm.ADD).
		Op(bvm.DUP1).Push(40).Op(bvm.MSTORE).

		// get_Hdr(next) into mem[8:40]; fatal KindBlockNotReady if next
		// hasn't landed on chain yet, throttling the claim.
		Push(8).Op(bvm.SWAP1).
		Host("env.get_hdr").
		Op(bvm.POP).

		// save_var(tag=Internal, subkey="", value=mem[40:48])
		// push order: subkeyOff, subkeyLen, tag, valueOff, valueLen (popped in reverse)
		Push(0).Push(0).Push(0).Push(40).Push(8).
		Host("env.save_var").
		Op(bvm.POP).

		// drip: stash dripAmount as the low 8 bytes of the 32-byte word at
		// mem[48:80], then unlock it.
		Push(dripAmount).Push(72).Op(bvm.MSTORE).
		Push(48).
		Host("env.funds_unlock").
		Stop()

	code, err := compiler.Link([]compiler.Method{
		{Name: "ctor", Body: ctor},
		{Name: "claim", Body: claim},
	}, nil)
	if err != nil {
		panic(err)
	}
	return code
}
