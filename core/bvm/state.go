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
	"bytes"

	"github.com/bvm2/bvm2/common"
	"github.com/bvm2/bvm2/params"
)

// VarTag classifies a variable-store entry's role, matching the reference
// implementation's tagged key space so the same (ContractID, tag, subkey)
// triple always means the same thing regardless of which component wrote
// it.
type VarTag byte

const (
	TagInternal    VarTag = 0
	TagLockedAmount VarTag = 1
	TagRefs         VarTag = 2
	TagOwnedAsset   VarTag = 3
)

// VarKey is the fully-qualified key of a variable-store entry:
// ContractID (32 bytes) || tag (1 byte) || subkey (<= VarKeySize bytes).
type VarKey struct {
	Contract common.ContractID
	Tag      VarTag
	Subkey   []byte
}

// Bytes serializes the key for use as a Go map key or Store key, in the
// canonical order consensus hashes agree on.
func (k VarKey) Bytes() []byte {
	buf := make([]byte, 0, common.HashLength+1+len(k.Subkey))
	buf = append(buf, k.Contract.Bytes()...)
	buf = append(buf, byte(k.Tag))
	buf = append(buf, k.Subkey...)
	return buf
}

func newVarKey(cid common.ContractID, tag VarTag, subkey []byte) (VarKey, error) {
	if len(subkey) > params.VarKeySize {
		return VarKey{}, NewError(KindBoundsViolation, "variable subkey length %d exceeds limit %d", len(subkey), params.VarKeySize)
	}
	return VarKey{Contract: cid, Tag: tag, Subkey: subkey}, nil
}

// Store is the durable key-value backing of the variable store: every
// LoadVar/SaveVar host call and every ledger bookkeeping operation (funds,
// refs, assets) resolves through it. It mirrors the shape of the reference
// chain client's StateDB, narrowed to exactly the operations BVM2 needs:
// no balances, no code storage, no separate per-account namespace, because
// a ContractID already disambiguates the key space.
type Store interface {
	// Get returns the value for key, and whether it was present.
	Get(key []byte) ([]byte, bool)
	// Set writes key to value, replacing any prior value.
	Set(key []byte, value []byte)
	// Delete removes key, a no-op if absent.
	Delete(key []byte)
}

// MemStore is a Store backed by an in-process map, for tests and the
// standalone cmd/bvmrun harness. Production deployments back Store with
// whatever durable key-value engine the surrounding chain client uses; that
// wiring is deliberately outside this package.
type MemStore struct {
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key []byte) ([]byte, bool) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

func (m *MemStore) Set(key []byte, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
}

func (m *MemStore) Delete(key []byte) {
	delete(m.data, string(key))
}

// Snapshot returns a deep copy of the store's contents, keyed identically;
// used by tests asserting rollback left no trace of a reverted invocation.
func (m *MemStore) Snapshot() map[string][]byte {
	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// snapshotsEqual reports whether two snapshots hold identical keys and values.
func snapshotsEqual(a, b map[string][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}
