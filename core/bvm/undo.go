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

// undoKind classifies a single undo-log entry by the kind of record it
// touched; rewind restores every entry the same way, from its saved prior
// value, whatever its kind.
type undoKind int

const (
	undoSetVar undoKind = iota // restore (or delete) a Store key to a prior value
	undoRefFlip                // reference count crossed a 0<->1 boundary
)

// undoEntry is one reversible action recorded onto the undo log. Entries
// are pushed in execution order and rewound in strict LIFO order, mirroring
// the reference implementation's journal but narrowed to BVM2's variable
// store instead of a full account/storage/balance model.
type undoEntry struct {
	kind     undoKind
	key      []byte
	hadPrior bool
	prior    []byte
}

// undoLog is the per-top-level-invocation journal of reversible actions.
// A checkpoint is simply a log length: rewinding to it undoes every entry
// recorded since, in reverse order.
type undoLog struct {
	entries []undoEntry
}

func newUndoLog() *undoLog {
	return &undoLog{}
}

// checkpoint returns a mark that rewind can later return to.
func (u *undoLog) checkpoint() int {
	return len(u.entries)
}

// recordSet appends an undo entry capturing key's prior value before a
// SaveVar (or ledger bookkeeping write) overwrites it.
func (u *undoLog) recordSet(key []byte, hadPrior bool, prior []byte) {
	u.entries = append(u.entries, undoEntry{kind: undoSetVar, key: key, hadPrior: hadPrior, prior: prior})
}

// recordRefFlip appends an undo entry for a reference count's 0<->1
// transition, so rewind can flip it back without re-deriving whether the
// flip was 0->1 or 1->0.
func (u *undoLog) recordRefFlip(key []byte, hadPrior bool, prior []byte) {
	u.entries = append(u.entries, undoEntry{kind: undoRefFlip, key: key, hadPrior: hadPrior, prior: prior})
}

// rewind reverses every entry recorded since checkpoint mark, in LIFO
// order, against store, then truncates the log back to mark.
func (u *undoLog) rewind(store Store, mark int) {
	for i := len(u.entries) - 1; i >= mark; i-- {
		e := u.entries[i]
		if e.hadPrior {
			store.Set(e.key, e.prior)
		} else {
			store.Delete(e.key)
		}
	}
	u.entries = u.entries[:mark]
}

// setVar writes value to key in store, recording whatever was there before
// onto the undo log so a later rewind can restore it.
func setVar(store Store, log *undoLog, key []byte, value []byte) {
	prior, had := store.Get(key)
	log.recordSet(key, had, prior)
	store.Set(key, value)
}

// deleteVar removes key from store, recording its prior value for rewind.
func deleteVar(store Store, log *undoLog, key []byte) {
	prior, had := store.Get(key)
	if !had {
		return
	}
	log.recordSet(key, true, prior)
	store.Delete(key)
}
