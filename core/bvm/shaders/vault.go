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

// Package shaders holds hand-assembled fixture contracts exercising the
// BVM2 host ABI end to end, in the spirit of the original bvm/Shaders
// sample contracts. None of these are translated from any existing source;
// they are written directly against core/bvm/compiler.
package shaders

import "github.com/bvm2/bvm2/core/bvm/compiler"

// Vault method indices. 0/1 are reserved for ctor/dtor.
const (
	VaultMethodDeposit  uint32 = 2
	VaultMethodWithdraw uint32 = 3
)

// Vault is the simplest funds-bearing fixture: Deposit folds its 32-byte
// calldata amount into the vault's own locked balance via env.funds_lock
// (which fails fatally, and therefore rolls the whole invocation back, on
// 256-bit overflow); Withdraw does the reverse via env.funds_unlock (which
// fails fatally on an attempt to withdraw more than is locked). Calldata
// for both methods is a single 32-byte big-endian amount at memory offset
// 0, the offset env.funds_lock/env.funds_unlock read their operand from
// directly.
func Vault() []byte {
	deposit := compiler.NewAssembler()
	deposit.Push(0).Host("env.funds_lock").Stop()

	withdraw := compiler.NewAssembler()
	withdraw.Push(0).Host("env.funds_unlock").Stop()

	code, err := compiler.Link([]compiler.Method{
		{Name: "deposit", Body: deposit},
		{Name: "withdraw", Body: withdraw},
	}, nil)
	if err != nil {
		panic(err) // fixture construction is not data-dependent; a failure here is a programming error
	}
	return code
}
