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

// Roulette method indices.
const (
	RouletteMethodBet    uint32 = 2 // amount[32] || revealHeight[8]
	RouletteMethodReveal uint32 = 3 // empty
)

// rouletteSlots is the modulus applied to the revealed block hash: a bet
// wins (double payout) exactly when the outcome is 0, an even-odds coin
// flip at rouletteSlots == 2.
const rouletteSlots = 2

// subkeyHeight and subkeyAmount are the single-byte variable-store subkeys
// Bet and Reveal share to carry a wager across the gap between the two
// calls.
const (
	subkeyHeight = 1
	subkeyAmount = 2
)

// Roulette is a commit-reveal game whose randomness source is a block hash
// that does not exist yet at bet time: Bet locks the wager and records both
// the amount and a future reveal height; Reveal calls get_Hdr(revealHeight)
// and fails fatally with KindBlockNotReady if that block hasn't landed -
// exactly the property that makes the scheme fair, since neither the
// bettor nor the contract can see the outcome before the reveal height is
// in the past. The payout arithmetic is branch-free: win/lose is folded
// into a 0/1 factor multiplied through rather than a conditional jump, so
// Reveal always executes the same path regardless of outcome.
func Roulette() []byte {
	bet := compiler.NewAssembler()
	bet.
		// funds_lock(amountOff=0): lock the 32-byte wager at calldata[0:32]
		Push(0).Host("env.funds_lock").Op(bvm.POP).

		// mem[200] = subkeyHeight tag byte
		Push(subkeyHeight).Push(200).Op(bvm.MSTORE8).
		// save_var(tag=Internal, subkey=mem[200:201], value=calldata[32:40])
		Push(200).Push(1).Push(0).Push(32).Push(8).
		Host("env.save_var").Op(bvm.POP).

		// mem[201] = subkeyAmount tag byte
		Push(subkeyAmount).Push(201).Op(bvm.MSTORE8).
		// save_var(tag=Internal, subkey=mem[201:202], value=calldata[0:32])
		Push(201).Push(1).Push(0).Push(0).Push(32).
		Host("env.save_var").Op(bvm.POP).
		Stop()

	reveal := compiler.NewAssembler()
	reveal.
		// mem[200] = subkeyHeight tag byte; load_var into mem[0:8]
		Push(subkeyHeight).Push(200).Op(bvm.MSTORE8).
		Push(200).Push(1).Push(0).Push(0).Push(8).
		Host("env.load_var").Op(bvm.POP).

		// mem[201] = subkeyAmount tag byte; load_var into mem[64:96]
		Push(subkeyAmount).Push(201).Op(bvm.MSTORE8).
		Push(201).Push(1).Push(0).Push(64).Push(32).
		Host("env.load_var").Op(bvm.POP).

		// get_Hdr(height) into mem[96:128]; fatal KindBlockNotReady if the
		// reveal height hasn't landed on chain yet.
		Push(96).Push(0).Op(bvm.MLOAD).
		Host("env.get_hdr").Op(bvm.POP).

		// outcome = hash_low64 mod rouletteSlots
		Push(120).Op(bvm.MLOAD).
		Push(rouletteSlots).Op(bvm.MOD).

		// winFlag = (outcome == 0)
		Op(bvm.ISZERO).

		// payout = winFlag * (stake_low64 * 2), stashed at mem[152:160]
		// so mem[128:160] reads as a 32-byte big-endian amount.
		Push(88).Op(bvm.MLOAD).
		Push(2).Op(bvm.MUL).
		Op(bvm.MUL).
		Push(152).Op(bvm.MSTORE).

		// unlock the payout (0 on a loss, double the stake on a win)
		Push(128).Host("env.funds_unlock").Op(bvm.POP).
		Stop()

	code, err := compiler.Link([]compiler.Method{
		{Name: "bet", Body: bet},
		{Name: "reveal", Body: reveal},
	}, nil)
	if err != nil {
		panic(err)
	}
	return code
}
