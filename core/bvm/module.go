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

	"github.com/bvm2/bvm2/common"
	"github.com/bvm2/bvm2/params"
)

// Module header layout (all little-endian):
//
//	u32 version
//	u32 method_count         (>= MinMethodCount)
//	u32 data_size            (size in bytes of the read-only data section)
//	u32 method_entry[method_count]   (code-relative offsets)
//	<data_size bytes of read-only data>
//	<remaining bytes: code>
//
// The data_size word is the one deliberate addition over the header shape
// sketched in spec.md §6 ("{version, method_count, method_entry[...]}"):
// without an explicit boundary the data/code split isn't recoverable from
// raw bytes alone. See DESIGN.md for this clarification.
const headerFixedWords = 3 // version, method_count, data_size

// headerSize returns the byte size of the fixed + variable-length header
// for a module declaring methodCount methods.
func headerSize(methodCount uint32) int {
	return (headerFixedWords+int(methodCount))*params.WordSize
}

// Module is the decoded, immutable view over a compiled contract's bytes:
// `[header][data][code]`. Loading a Module never copies Raw; Data and Code
// are sub-slices of it.
type Module struct {
	Raw           []byte
	Version       uint32
	MethodEntries []uint32 // code-relative offsets, indexed by method number
	Data          []byte   // read-only
	Code          []byte
}

// LoadModule verifies the header and slices Raw into Data and Code. It is
// invoked at every far-call entry; the resulting Module is cached in the
// active far-call frame so repeated local calls within one contract
// invocation don't re-validate the header.
func LoadModule(raw []byte) (*Module, error) {
	const fixedBytes = headerFixedWords * params.WordSize
	if len(raw) < fixedBytes {
		return nil, NewError(KindMalformedModule, "module shorter than fixed header (%d bytes)", len(raw))
	}
	version := binary.LittleEndian.Uint32(raw[0:4])
	if version != params.HeaderVersion {
		return nil, NewError(KindMalformedModule, "unsupported header version %d", version)
	}
	methodCount := binary.LittleEndian.Uint32(raw[4:8])
	if methodCount < params.MinMethodCount {
		return nil, NewError(KindMalformedModule, "method count %d below minimum %d", methodCount, params.MinMethodCount)
	}
	dataSize := binary.LittleEndian.Uint32(raw[8:12])

	hdrSize := headerSize(methodCount)
	if hdrSize < 0 || hdrSize > len(raw) {
		return nil, NewError(KindMalformedModule, "method table overruns module (header %d, size %d)", hdrSize, len(raw))
	}

	entries := make([]uint32, methodCount)
	for i := uint32(0); i < methodCount; i++ {
		off := fixedBytes + int(i)*params.WordSize
		entries[i] = binary.LittleEndian.Uint32(raw[off : off+params.WordSize])
	}

	dataOffset := hdrSize
	codeOffset := dataOffset + int(dataSize)
	if codeOffset < dataOffset || codeOffset > len(raw) {
		return nil, NewError(KindMalformedModule, "data section overruns module (data_size %d)", dataSize)
	}

	data := raw[dataOffset:codeOffset]
	code := raw[codeOffset:]

	if uint64(methodCount) > uint64(len(code))/params.WordSize {
		return nil, NewError(KindMalformedModule, "method count %d exceeds code capacity %d", methodCount, len(code))
	}
	for i, entry := range entries {
		if entry >= uint32(len(code)) {
			return nil, NewError(KindMalformedModule, "method %d entry %d outside code (size %d)", i, entry, len(code))
		}
	}

	return &Module{
		Raw:           raw,
		Version:       version,
		MethodEntries: entries,
		Data:          data,
		Code:          code,
	}, nil
}

// Encode assembles a module buffer from its three logical sections. Used by
// the compiler's final emission step and by the fixture builders under
// core/bvm/shaders.
func Encode(methodEntries []uint32, data, code []byte) []byte {
	methodCount := uint32(len(methodEntries))
	hdrSize := headerSize(methodCount)

	buf := make([]byte, hdrSize+len(data)+len(code))
	binary.LittleEndian.PutUint32(buf[0:4], params.HeaderVersion)
	binary.LittleEndian.PutUint32(buf[4:8], methodCount)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(data)))
	for i, entry := range methodEntries {
		off := headerFixedWords*params.WordSize + i*params.WordSize
		binary.LittleEndian.PutUint32(buf[off:off+params.WordSize], entry)
	}
	copy(buf[hdrSize:], data)
	copy(buf[hdrSize+len(data):], code)
	return buf
}

// Cid derives a ContractID deterministically from a module's code and the
// arguments its constructor was invoked with: H("bvm.cid" || len(code) ||
// len(args) || code || args).
func Cid(code, ctorArgs []byte) common.ContractID {
	var lenCode, lenArgs [8]byte
	binary.LittleEndian.PutUint64(lenCode[:], uint64(len(code)))
	binary.LittleEndian.PutUint64(lenArgs[:], uint64(len(ctorArgs)))
	return common.Keccak256Hash([]byte("bvm.cid"), lenCode[:], lenArgs[:], code, ctorArgs)
}

// ShaderIDOf derives the code-only fingerprint of a module, excluding
// constructor arguments.
func ShaderIDOf(code []byte) common.ShaderID {
	return common.Keccak256Hash([]byte("bvm.sid"), code)
}
