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

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/bvm2/bvm2/core/bvm"
)

// The source module format: a WASM-like binary with a fixed section order
// (spec.md §4.3's "imports, types, functions, exports, and data"), each
// section length-prefixed so a truncated or reordered file is caught at
// parse time rather than read out of bounds. This is distinct from
// core/bvm's own compiled Module format (bvm.Encode/bvm.LoadModule): this
// one is Compile's *input*, never executed directly.
var srcMagic = [4]byte{'B', 'W', '0', '1'}

const (
	secType = iota + 1
	secImport
	secFunc
	secExport
	secCode
	secData
)

type srcType struct {
	Params    []TypeCode
	HasResult bool
	Result    TypeCode
}

func typeOfSignature(s Signature) srcType {
	return srcType{Params: s.Params, HasResult: true, Result: s.Result}
}

type srcImport struct {
	Module  string
	Field   string
	TypeIdx uint32
}

type srcExport struct {
	Name  string
	Kind  uint8 // 0 = function; every other kind is ignored per §6
	Index uint32
}

const exportKindFunc uint8 = 0

// sourceModule is the decoded (or not-yet-encoded) view of a §4.3 input
// module: types, an import table, one type index per locally defined
// function, the export table, each defined function's raw instruction
// body (Function-section order), and the read-only data blob.
type sourceModule struct {
	Types   []srcType
	Imports []srcImport
	Funcs   []uint32 // typeIdx per defined function, Function-section order
	Exports []srcExport
	Code    [][]byte // one body per entry in Funcs, same order
	Data    []byte
}

func putU8(buf *bytes.Buffer, v uint8) { buf.WriteByte(v) }

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putString(buf *bytes.Buffer, s string) {
	putU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func getU8(r *bytes.Reader) (uint8, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, bvm.NewError(bvm.KindMalformedModule, "truncated source module")
	}
	return b, nil
}

func getU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, bvm.NewError(bvm.KindMalformedModule, "truncated source module")
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func getString(r *bytes.Reader) (string, error) {
	n, err := getU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", bvm.NewError(bvm.KindMalformedModule, "truncated source module string")
	}
	return string(buf), nil
}

func getBytes(r *bytes.Reader, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, bvm.NewError(bvm.KindMalformedModule, "truncated source module")
	}
	return buf, nil
}

// encodeSource serializes mod as a §4.3 source module: magic, then the six
// sections in fixed order, each framed as `u8 id, u32 length, payload`.
func encodeSource(mod *sourceModule) []byte {
	var out bytes.Buffer
	out.Write(srcMagic[:])

	writeSection(&out, secType, encodeTypeSection(mod.Types))
	writeSection(&out, secImport, encodeImportSection(mod.Imports))
	writeSection(&out, secFunc, encodeFuncSection(mod.Funcs))
	writeSection(&out, secExport, encodeExportSection(mod.Exports))
	writeSection(&out, secCode, encodeCodeSection(mod.Code))
	writeSection(&out, secData, mod.Data)

	return out.Bytes()
}

func writeSection(out *bytes.Buffer, id uint8, payload []byte) {
	putU8(out, id)
	putU32(out, uint32(len(payload)))
	out.Write(payload)
}

func encodeTypeSection(types []srcType) []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(types)))
	for _, t := range types {
		putU8(&buf, uint8(len(t.Params)))
		for _, p := range t.Params {
			putU8(&buf, uint8(p))
		}
		if t.HasResult {
			putU8(&buf, 1)
			putU8(&buf, uint8(t.Result))
		} else {
			putU8(&buf, 0)
		}
	}
	return buf.Bytes()
}

func encodeImportSection(imports []srcImport) []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(imports)))
	for _, imp := range imports {
		putString(&buf, imp.Module)
		putString(&buf, imp.Field)
		putU32(&buf, imp.TypeIdx)
	}
	return buf.Bytes()
}

func encodeFuncSection(funcs []uint32) []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(funcs)))
	for _, typeIdx := range funcs {
		putU32(&buf, typeIdx)
	}
	return buf.Bytes()
}

func encodeExportSection(exports []srcExport) []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(exports)))
	for _, e := range exports {
		putString(&buf, e.Name)
		putU8(&buf, e.Kind)
		putU32(&buf, e.Index)
	}
	return buf.Bytes()
}

func encodeCodeSection(bodies [][]byte) []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(bodies)))
	for _, body := range bodies {
		putU32(&buf, uint32(len(body)))
		buf.Write(body)
	}
	return buf.Bytes()
}

// decodeSource parses a §4.3 source module (pipeline step 1). It insists on
// the fixed section order encodeSource produces; the format has no use for
// a negotiated/reorderable section layout since BVM2 only ever consumes
// modules this compiler itself assembled.
func decodeSource(src []byte) (*sourceModule, error) {
	if len(src) < len(srcMagic) || !bytes.Equal(src[:len(srcMagic)], srcMagic[:]) {
		return nil, bvm.NewError(bvm.KindMalformedModule, "missing or wrong source module magic")
	}
	r := bytes.NewReader(src[len(srcMagic):])

	mod := &sourceModule{}
	expect := []struct {
		id      uint8
		name    string
		decode  func([]byte) error
	}{
		{secType, "type", func(p []byte) error { return decodeTypeSection(p, mod) }},
		{secImport, "import", func(p []byte) error { return decodeImportSection(p, mod) }},
		{secFunc, "function", func(p []byte) error { return decodeFuncSection(p, mod) }},
		{secExport, "export", func(p []byte) error { return decodeExportSection(p, mod) }},
		{secCode, "code", func(p []byte) error { return decodeCodeSection(p, mod) }},
		{secData, "data", func(p []byte) error { mod.Data = p; return nil }},
	}

	for _, want := range expect {
		id, err := getU8(r)
		if err != nil {
			return nil, bvm.NewError(bvm.KindMalformedModule, "missing %s section", want.name)
		}
		if id != want.id {
			return nil, bvm.NewError(bvm.KindMalformedModule, "expected %s section (id %d), got id %d", want.name, want.id, id)
		}
		length, err := getU32(r)
		if err != nil {
			return nil, err
		}
		payload, err := getBytes(r, length)
		if err != nil {
			return nil, err
		}
		if err := want.decode(payload); err != nil {
			return nil, err
		}
	}

	if r.Len() != 0 {
		return nil, bvm.NewError(bvm.KindMalformedModule, "%d trailing bytes after data section", r.Len())
	}
	return mod, nil
}

func decodeTypeSection(payload []byte, mod *sourceModule) error {
	r := bytes.NewReader(payload)
	count, err := getU32(r)
	if err != nil {
		return err
	}
	mod.Types = make([]srcType, count)
	for i := range mod.Types {
		paramCount, err := getU8(r)
		if err != nil {
			return err
		}
		params := make([]TypeCode, paramCount)
		for j := range params {
			code, err := getU8(r)
			if err != nil {
				return err
			}
			params[j] = TypeCode(code)
		}
		hasResult, err := getU8(r)
		if err != nil {
			return err
		}
		t := srcType{Params: params}
		if hasResult != 0 {
			code, err := getU8(r)
			if err != nil {
				return err
			}
			t.HasResult = true
			t.Result = TypeCode(code)
		}
		mod.Types[i] = t
	}
	return nil
}

func decodeImportSection(payload []byte, mod *sourceModule) error {
	r := bytes.NewReader(payload)
	count, err := getU32(r)
	if err != nil {
		return err
	}
	mod.Imports = make([]srcImport, count)
	for i := range mod.Imports {
		module, err := getString(r)
		if err != nil {
			return err
		}
		field, err := getString(r)
		if err != nil {
			return err
		}
		typeIdx, err := getU32(r)
		if err != nil {
			return err
		}
		mod.Imports[i] = srcImport{Module: module, Field: field, TypeIdx: typeIdx}
	}
	return nil
}

func decodeFuncSection(payload []byte, mod *sourceModule) error {
	r := bytes.NewReader(payload)
	count, err := getU32(r)
	if err != nil {
		return err
	}
	mod.Funcs = make([]uint32, count)
	for i := range mod.Funcs {
		typeIdx, err := getU32(r)
		if err != nil {
			return err
		}
		mod.Funcs[i] = typeIdx
	}
	return nil
}

func decodeExportSection(payload []byte, mod *sourceModule) error {
	r := bytes.NewReader(payload)
	count, err := getU32(r)
	if err != nil {
		return err
	}
	mod.Exports = make([]srcExport, count)
	for i := range mod.Exports {
		name, err := getString(r)
		if err != nil {
			return err
		}
		kind, err := getU8(r)
		if err != nil {
			return err
		}
		index, err := getU32(r)
		if err != nil {
			return err
		}
		mod.Exports[i] = srcExport{Name: name, Kind: kind, Index: index}
	}
	return nil
}

func decodeCodeSection(payload []byte, mod *sourceModule) error {
	r := bytes.NewReader(payload)
	count, err := getU32(r)
	if err != nil {
		return err
	}
	mod.Code = make([][]byte, count)
	for i := range mod.Code {
		bodyLen, err := getU32(r)
		if err != nil {
			return err
		}
		body, err := getBytes(r, bodyLen)
		if err != nil {
			return err
		}
		mod.Code[i] = body
	}
	if len(mod.Code) != len(mod.Funcs) {
		return bvm.NewError(bvm.KindMalformedModule, "code section has %d bodies for %d declared functions", len(mod.Code), len(mod.Funcs))
	}
	return nil
}
