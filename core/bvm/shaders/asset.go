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

// Asset method indices. Calldata layout is fixed across all three methods:
// a 32-byte asset ID at offset 0, followed by method-specific fields.
const (
	AssetMethodCreate  uint32 = 2 // id[32] || metadata[64]
	AssetMethodEmit    uint32 = 3 // id[32] || amount[8] || emitFlag[8] (nonzero = emit, zero = burn)
	AssetMethodDestroy uint32 = 4 // id[32]
)

// Asset exercises the full create/emit/destroy lifecycle and its deposit
// conservation invariant: Destroy fails fatally (KindInvariantViolation,
// via core/bvm/ledger.go's AssetDestroy) whenever the asset still has
// outstanding emitted supply, so a contract can never simply walk away from
// funds it issued.
func Asset() []byte {
	create := compiler.NewAssembler()
	create.
		Push(0).Push(32).Push(32).Push(64). // idOff, idLen, metaOff, metaLen
		Host("env.asset_create").
		Stop()

	emit := compiler.NewAssembler()
	emit.
		Push(0).Push(32). // idOff, idLen
		Push(32).Op(bvm.MLOAD). // amount word at calldata offset 32
		Push(40).Op(bvm.MLOAD). // emitFlag word at calldata offset 40
		Host("env.asset_emit").
		Stop()

	destroy := compiler.NewAssembler()
	destroy.
		Push(0).Push(32). // idOff, idLen
		Host("env.asset_destroy").
		Stop()

	code, err := compiler.Link([]compiler.Method{
		{Name: "create", Body: create},
		{Name: "emit", Body: emit},
		{Name: "destroy", Body: destroy},
	}, nil)
	if err != nil {
		panic(err)
	}
	return code
}
