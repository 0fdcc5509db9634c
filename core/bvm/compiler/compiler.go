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
	"strconv"
	"strings"

	"github.com/bvm2/bvm2/core/bvm"
	"github.com/bvm2/bvm2/params"
)

// Method is one named, exported method of a module under construction. Ctor
// and Dtor, if present, must be named "ctor" and "dtor" respectively and
// occupy method indices 0 and 1 per params.MethodCtor/MethodDtor; this name
// is purely a Go-side label for orderMethods, not the on-wire export name
// Compile scans for (see exportNameFor).
type Method struct {
	Name string
	Body *Assembler
}

// Compile runs the full §4.3 pipeline against a §4.3 source module (the
// binary produced by encodeSource, or any other well-formed one): parse
// sections, scan exports for the Ctor/Dtor/Method_<k> method table, resolve
// every import's name and signature against the host ABI, then emit the
// linked bvm.Module bytes with method entries patched to the lowered code
// section's per-function offsets.
func Compile(src []byte) ([]byte, error) {
	mod, err := decodeSource(src)
	if err != nil {
		return nil, err
	}
	methodFuncs, err := scanExports(mod)
	if err != nil {
		return nil, err
	}
	bindingOf, err := resolveImports(mod)
	if err != nil {
		return nil, err
	}
	return lower(mod, methodFuncs, bindingOf)
}

// scanExports implements §4.3 step 2: find the Ctor export, the Dtor
// export, and every contiguous Method_<k> export starting at k=2, and
// return the defined-function index each resolves to, in method-index
// order (Ctor, Dtor, Method_2, Method_3, ...).
func scanExports(mod *sourceModule) ([]uint32, error) {
	numImports := uint32(len(mod.Imports))
	var haveCtor, haveDtor bool
	var ctorFn, dtorFn uint32
	methodFn := make(map[int]uint32)

	for _, e := range mod.Exports {
		if e.Kind != exportKindFunc {
			continue // non-function exports are ignored per §6
		}
		switch {
		case e.Name == "Ctor":
			if haveCtor {
				return nil, bvm.NewError(bvm.KindMalformedModule, "module exports Ctor more than once")
			}
			fn, err := definedFuncIndex(e, numImports, mod)
			if err != nil {
				return nil, err
			}
			ctorFn, haveCtor = fn, true
		case e.Name == "Dtor":
			if haveDtor {
				return nil, bvm.NewError(bvm.KindMalformedModule, "module exports Dtor more than once")
			}
			fn, err := definedFuncIndex(e, numImports, mod)
			if err != nil {
				return nil, err
			}
			dtorFn, haveDtor = fn, true
		case strings.HasPrefix(e.Name, "Method_"):
			k, err := strconv.Atoi(strings.TrimPrefix(e.Name, "Method_"))
			if err != nil || k < 2 {
				return nil, bvm.NewError(bvm.KindMalformedModule, "export %q is not a valid Method_<k> name", e.Name)
			}
			if _, dup := methodFn[k]; dup {
				return nil, bvm.NewError(bvm.KindMalformedModule, "method index %d exported more than once", k)
			}
			fn, err := definedFuncIndex(e, numImports, mod)
			if err != nil {
				return nil, err
			}
			methodFn[k] = fn
		}
		// every other export name is ignored per §6.
	}

	if !haveCtor || !haveDtor {
		return nil, bvm.NewError(bvm.KindMalformedModule, "module must export exactly one Ctor and one Dtor")
	}

	maxK := 1
	for k := range methodFn {
		if k > maxK {
			maxK = k
		}
	}
	entries := make([]uint32, 0, maxK+1)
	entries = append(entries, ctorFn, dtorFn)
	for k := 2; k <= maxK; k++ {
		fn, ok := methodFn[k]
		if !ok {
			return nil, bvm.NewError(bvm.KindMalformedModule, "method index %d missing: Method_<k> exports must be contiguous from 2", k)
		}
		entries = append(entries, fn)
	}
	if len(entries) < params.MinMethodCount {
		return nil, bvm.NewError(bvm.KindMalformedModule, "method count %d below minimum %d", len(entries), params.MinMethodCount)
	}
	return entries, nil
}

// definedFuncIndex maps an export's combined (imports-then-functions) index
// space entry to a Funcs-section index, rejecting an export that names an
// imported function (host functions aren't callable as contract methods)
// or one that is out of range.
func definedFuncIndex(e srcExport, numImports uint32, mod *sourceModule) (uint32, error) {
	if e.Index < numImports {
		return 0, bvm.NewError(bvm.KindMalformedModule, "export %q references an import, not a defined function", e.Name)
	}
	fn := e.Index - numImports
	if fn >= uint32(len(mod.Funcs)) {
		return 0, bvm.NewError(bvm.KindMalformedModule, "export %q function index %d out of range", e.Name, e.Index)
	}
	return fn, nil
}

// resolveImports implements §4.3 step 3: every import must come from
// module "env", its field name must match an entry in hostABI, and its
// declared type must equal that entry's signature bit-for-bit. Returns the
// BindingID each import resolves to, indexed by import index.
func resolveImports(mod *sourceModule) ([]bvm.BindingID, error) {
	out := make([]bvm.BindingID, len(mod.Imports))
	for i, imp := range mod.Imports {
		if imp.Module != "env" {
			return nil, bvm.NewError(bvm.KindLinkError, "import %q: module must be \"env\", got %q", imp.Field, imp.Module)
		}
		entry, ok := hostABI[imp.Field]
		if !ok {
			return nil, bvm.NewError(bvm.KindLinkError, "unresolved host import \"env.%s\"", imp.Field)
		}
		if imp.TypeIdx >= uint32(len(mod.Types)) {
			return nil, bvm.NewError(bvm.KindMalformedModule, "import \"env.%s\" type index %d out of range", imp.Field, imp.TypeIdx)
		}
		if !signatureMatches(mod.Types[imp.TypeIdx], entry.Sig) {
			return nil, bvm.NewError(bvm.KindLinkError, "import \"env.%s\" signature does not match the host ABI", imp.Field)
		}
		out[i] = entry.Binding
	}
	return out, nil
}

func signatureMatches(t srcType, want Signature) bool {
	if !t.HasResult || t.Result != want.Result {
		return false
	}
	if len(t.Params) != len(want.Params) {
		return false
	}
	for i, p := range t.Params {
		if p != want.Params[i] {
			return false
		}
	}
	return true
}

// lower implements §4.3 steps 4-5: concatenate every defined function's
// body, in Funcs-section order, into one code section, patching each
// HOSTCALL site's immediate from import index to the BindingID resolveImports
// assigned it. Local CALL/JUMP targets need no adjustment here:
// buildSourceModule already baked them in as absolute offsets into this same
// concatenation (see Link), so lower's only relocation job is the host-call
// rewrite.
// Finally emits the header and method-entry table via bvm.Encode.
func lower(mod *sourceModule, methodFuncs []uint32, bindingOf []bvm.BindingID) ([]byte, error) {
	funcOffset := make([]int, len(mod.Code))
	var code []byte
	for i, body := range mod.Code {
		funcOffset[i] = len(code)
		patched := make([]byte, len(body))
		copy(patched, body)
		if err := patchHostCalls(patched, bindingOf); err != nil {
			return nil, err
		}
		code = append(code, patched...)
	}

	entries := make([]uint32, len(methodFuncs))
	for i, fn := range methodFuncs {
		entries[i] = uint32(funcOffset[fn])
	}

	// LoadModule rejects a module declaring more methods than
	// len(code)/WordSize, so short bodies are padded with STOP up to that bound.
	for len(code) < len(entries)*params.WordSize {
		code = append(code, byte(bvm.STOP))
	}

	return bvm.Encode(entries, mod.Data, code), nil
}

// patchHostCalls walks body's instruction stream opcode by opcode,
// rewriting every HOSTCALL's 4-byte immediate from an import index to the
// BindingID bindingOf resolved it to. instrWidth gives every BVM2 opcode's
// total encoded width (opcode byte plus immediate, if any), letting this
// walk skip over immediates without misinterpreting them as opcodes.
func patchHostCalls(body []byte, bindingOf []bvm.BindingID) error {
	for pc := 0; pc < len(body); {
		op := bvm.OpCode(body[pc])
		width := instrWidth(op)
		if pc+width > len(body) {
			return bvm.NewError(bvm.KindMalformedModule, "truncated instruction at code offset %d", pc)
		}
		if op == bvm.HOSTCALL {
			idx := beUint32(body[pc+1 : pc+5])
			if int(idx) >= len(bindingOf) {
				return bvm.NewError(bvm.KindMalformedModule, "HOSTCALL references import index %d out of range", idx)
			}
			putBeUint32(body[pc+1:pc+5], uint32(bindingOf[idx]))
		}
		pc += width
	}
	return nil
}

// instrWidth returns op's total encoded size (opcode byte plus immediate).
// Every opcode not listed here carries no immediate and occupies one byte.
func instrWidth(op bvm.OpCode) int {
	switch op {
	case bvm.PUSH1:
		return 2
	case bvm.PUSH4:
		return 5
	case bvm.PUSH8:
		return 9
	case bvm.CALL, bvm.HOSTCALL:
		return 5
	default:
		return 1
	}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// Link is the ergonomic front end over Compile: it takes hand-assembled
// methods, encodes them as a §4.3 source module (assigning import indices,
// synthesizing the Type/Function/Export tables, and baking each method's
// local jump/call targets into the offsets the resulting code section will
// actually have once concatenated), and hands the result to Compile for
// real parsing and validation — the same path any other §4.3 source module
// would go through. Ctor and dtor, if absent, are synthesized trivially,
// since every module must declare at least params.MinMethodCount entries.
func Link(methods []Method, data []byte) ([]byte, error) {
	ordered := orderMethods(methods)
	src := encodeSource(buildSourceModule(ordered, data))
	return Compile(src)
}

// orderMethods returns methods with ctor first, dtor second (synthesizing
// trivial ones if absent), followed by the rest in declaration order. Their
// resulting positions are exactly the method indices scanExports will
// recover from the Ctor/Dtor/Method_<k> export names buildSourceModule
// assigns them.
func orderMethods(methods []Method) []Method {
	var ctor, dtor *Method
	var rest []Method
	for i := range methods {
		switch methods[i].Name {
		case "ctor":
			ctor = &methods[i]
		case "dtor":
			dtor = &methods[i]
		default:
			rest = append(rest, methods[i])
		}
	}
	trivial := func(name string) Method {
		a := NewAssembler()
		a.Stop()
		return Method{Name: name, Body: a}
	}
	if ctor == nil {
		m := trivial("ctor")
		ctor = &m
	}
	if dtor == nil {
		m := trivial("dtor")
		dtor = &m
	}
	return append([]Method{*ctor, *dtor}, rest...)
}

// buildSourceModule assembles ordered's methods into a §4.3 source module:
// one defined function per method (Funcs/Code-section order == ordered's
// order), a trivial 0-arity void type for all of them, an Export entry
// naming each by its Ctor/Dtor/Method_<k> export name, a deduplicated
// Import table covering every Host() name referenced across all methods
// (each with the signature hostABI declares for it, so a correctly spelled
// import always resolves and validates at Compile time), and the finished,
// already-globally-offset code body for each method.
func buildSourceModule(ordered []Method, data []byte) *sourceModule {
	mod := &sourceModule{Data: data}

	voidType := srcType{} // no params, no result: the placeholder type every defined function gets
	voidTypeIdx := uint32(len(mod.Types))
	mod.Types = append(mod.Types, voidType)

	importIndex := make(map[string]uint32)
	var importOrder []string
	for _, m := range ordered {
		for _, name := range m.Body.Imports() {
			if _, seen := importIndex[name]; seen {
				continue
			}
			importIndex[name] = uint32(len(importOrder))
			importOrder = append(importOrder, name)
		}
	}
	for _, name := range importOrder {
		field := strings.TrimPrefix(name, "env.")
		typeIdx := uint32(len(mod.Types))
		if entry, ok := hostABI[field]; ok {
			mod.Types = append(mod.Types, typeOfSignature(entry.Sig))
		} else {
			// Unknown import name: still emit a well-formed (if meaningless)
			// type so the module encodes cleanly. resolveImports rejects it
			// at the name-lookup step, before the signature is ever compared.
			mod.Types = append(mod.Types, srcType{})
		}
		mod.Imports = append(mod.Imports, srcImport{Module: "env", Field: field, TypeIdx: typeIdx})
	}
	numImports := uint32(len(mod.Imports))

	var code []byte
	for i, m := range ordered {
		// Cross-method label references aren't supported: each Assembler's
		// own labels map only ever contains its own method's labels. Shifting
		// them by the concatenated code length so far, before finishing this
		// method's body, bakes every local JUMP/CALL target in as the
		// absolute offset it will actually have once lower() concatenates
		// every function's body in this same order.
		for name, l := range m.Body.labels {
			m.Body.labels[name] = l + len(code)
		}
		bound := make(map[string]uint32, len(m.Body.imports))
		for _, name := range m.Body.Imports() {
			bound["@host:"+name] = importIndex[name]
		}
		body := m.Body.finish(bound)
		code = append(code, body...)

		mod.Funcs = append(mod.Funcs, voidTypeIdx)
		mod.Code = append(mod.Code, body)

		mod.Exports = append(mod.Exports, srcExport{
			Name:  exportNameFor(i),
			Kind:  exportKindFunc,
			Index: numImports + uint32(i),
		})
	}

	return mod
}

// exportNameFor returns the §6 export name for the method at position i in
// declaration order (ctor=0, dtor=1, Method_<i> for i>=2).
func exportNameFor(i int) string {
	switch i {
	case int(params.MethodCtor):
		return "Ctor"
	case int(params.MethodDtor):
		return "Dtor"
	default:
		return "Method_" + strconv.Itoa(i)
	}
}
