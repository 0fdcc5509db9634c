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

// Package common holds the byte-oriented identifier types shared by every
// BVM2 package: 32-byte hashes, contract identifiers and peer (asset owner)
// identifiers, plus the small set of byte-slice helpers the interpreter and
// host ABI lean on.
package common

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HashLength is the size in bytes of a BVM2 hash-derived identifier.
const HashLength = 32

// Hash represents a 32-byte fixed-size identifier, the common shape shared
// by ContractID, ShaderID and PeerID.
type Hash [HashLength]byte

// BytesToHash sets h to the value of b, left-padding if b is shorter than
// HashLength and truncating from the left if longer.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// Bytes returns the raw bytes of h.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether h is the all-zero identifier.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// ContractID uniquely identifies a deployed contract: it is derived from
// the contract's code and constructor arguments (see Keccak256Hash below
// and the Cid helper in core/bvm/module.go).
type ContractID = Hash

// ShaderID is a code-only fingerprint of a contract, excluding constructor
// arguments; used for shader-level policy checks (e.g. "is this a vault
// contract").
type ShaderID = Hash

// PeerID identifies the owner of an asset.
type PeerID = Hash

// Keccak256 calculates and returns the SHA3 (Keccak-256-family) hash of the
// concatenation of the given byte slices.
func Keccak256(data ...[]byte) []byte {
	d := sha3.New256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates and returns the SHA3 hash of the given byte
// slices as a Hash.
func Keccak256Hash(data ...[]byte) (h Hash) {
	d := sha3.New256()
	for _, b := range data {
		d.Write(b)
	}
	d.Sum(h[:0])
	return h
}

// CopyBytes returns an exact copy of the provided byte slice.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// LeftPadBytes zero-pads b on the left up to length l.
func LeftPadBytes(b []byte, l int) []byte {
	if l <= len(b) {
		return b
	}
	padded := make([]byte, l)
	copy(padded[l-len(b):], b)
	return padded
}

// RightPadBytes zero-pads b on the right up to length l.
func RightPadBytes(b []byte, l int) []byte {
	if l <= len(b) {
		return b
	}
	padded := make([]byte, l)
	copy(padded, b)
	return padded
}

// GoString renders h for %#v / debug printing.
func (h Hash) GoString() string {
	return fmt.Sprintf("common.HexToHash(%q)", h.String())
}
