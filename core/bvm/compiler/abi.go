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

package compiler

import "github.com/bvm2/bvm2/core/bvm"

// TypeCode is a WASM-like value type code carried in the source module's
// type section: every BVM2 stack slot is a 64-bit word, so only TypeI64 is
// ever actually used by this ABI, but TypeI32 is kept as a distinct code so
// a signature mismatch (an import encoded with the wrong width) is a real
// bit-for-bit comparison failure, not a no-op.
type TypeCode uint8

const (
	TypeI32 TypeCode = 0
	TypeI64 TypeCode = 1
)

// Signature is the argument/result shape of one host import, compared
// bit-for-bit against the source module's own type section entry during
// import resolution (spec.md §4.3 step 3).
type Signature struct {
	Params []TypeCode
	Result TypeCode
}

func sig(paramCount int) Signature {
	params := make([]TypeCode, paramCount)
	for i := range params {
		params[i] = TypeI64
	}
	return Signature{Params: params, Result: TypeI64}
}

// abiEntry pairs a host import's validated signature with the BindingID the
// interpreter dispatches on once the import resolves successfully.
type abiEntry struct {
	Binding bvm.BindingID
	Sig     Signature
}

// hostABI is the fixed table every module's imports are resolved against.
// Keys are field names with the "env." module prefix already stripped,
// since the source module format carries module and field as separate
// strings (mirroring a real WASM import entry) rather than one dotted
// name. Every entry's signature matches the pop count each host handler in
// hostabi.go documents for itself: N stack words in, exactly one back.
var hostABI = map[string]abiEntry{
	"memcpy":        {bvm.BindMemCpy, sig(3)},
	"memset":        {bvm.BindMemSet, sig(3)},
	"memcmp":        {bvm.BindMemCmp, sig(3)},
	"memis0":        {bvm.BindMemIs0, sig(2)},
	"load_var":      {bvm.BindLoadVar, sig(5)},
	"save_var":      {bvm.BindSaveVar, sig(5)},
	"halt":          {bvm.BindHalt, sig(1)},
	"add_sig":       {bvm.BindAddSig, sig(3)},
	"funds_lock":    {bvm.BindFundsLock, sig(1)},
	"funds_unlock":  {bvm.BindFundsUnlock, sig(1)},
	"ref_add":       {bvm.BindRefAdd, sig(2)},
	"ref_release":   {bvm.BindRefRelease, sig(2)},
	"asset_create":  {bvm.BindAssetCreate, sig(4)},
	"asset_emit":    {bvm.BindAssetEmit, sig(4)},
	"asset_destroy": {bvm.BindAssetDestroy, sig(2)},
	"call_far":      {bvm.BindCallFar, sig(4)},
	"get_hdr":       {bvm.BindGetHdr, sig(2)},
}
