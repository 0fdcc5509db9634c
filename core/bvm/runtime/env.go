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

// Package runtime provides a minimal in-process execution environment for
// BVM2, analogous to core/vm/runtime in the reference chain client: enough
// scaffolding (a Store, a code table, a block-header source) to deploy and
// invoke modules from a test or a standalone CLI without a full chain node.
package runtime

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/bvm2/bvm2/common"
	"github.com/bvm2/bvm2/core/bvm"
	"github.com/bvm2/bvm2/internal/blog"
	"github.com/bvm2/bvm2/params"
)

// Config bundles the knobs a test or CLI invocation typically wants to
// override; every field has a usable zero value via NewConfig.
type Config struct {
	ChargeParams params.ChargeParams
	ChargeLimit  uint64
	Store        *bvm.MemStore
	Code         *CodeTable
	Blocks       *FixedBlockSource
	Log          *blog.Logger
}

// NewConfig returns a Config with the default charge schedule, a fresh
// empty Store and CodeTable, and a ChargeLimit generous enough for the
// fixture contracts' own tests to not need tuning.
func NewConfig() *Config {
	return &Config{
		ChargeParams: params.DefaultChargeParams(),
		ChargeLimit:  10_000_000,
		Store:        bvm.NewMemStore(),
		Code:         NewCodeTable(),
		Blocks:       NewFixedBlockSource(),
		Log:          blog.New(discard{}, blog.LvlError),
	}
}

// CodeTable is a CodeSource backed by an in-memory map, standing in for a
// chain's append-only contract code table.
type CodeTable struct {
	byID map[common.ContractID][]byte
}

func NewCodeTable() *CodeTable {
	return &CodeTable{byID: make(map[common.ContractID][]byte)}
}

// Deploy derives the contract's ID from code and ctorArgs (bvm.Cid),
// registers code under that ID, and returns the ID.
func (c *CodeTable) Deploy(code, ctorArgs []byte) common.ContractID {
	cid := bvm.Cid(code, ctorArgs)
	c.byID[cid] = code
	return cid
}

// DeployAt registers code directly under cid, bypassing Cid derivation;
// useful for tests constructing fixtures with hand-picked IDs.
func (c *CodeTable) DeployAt(cid common.ContractID, code []byte) {
	c.byID[cid] = code
}

func (c *CodeTable) CodeOf(cid common.ContractID) ([]byte, bool) {
	code, ok := c.byID[cid]
	return code, ok
}

// DeleteCode removes cid's code record, implementing bvm.CodeDeleter so a
// successful Dtor invocation can honor its code-deletion effect.
func (c *CodeTable) DeleteCode(cid common.ContractID) error {
	delete(c.byID, cid)
	return nil
}

// FixedBlockSource is a BlockSource backed by a simple height->hash map,
// for tests that need get_Hdr to answer deterministically (and, for the
// roulette fixture's commit-reveal scenario, to answer "not yet" for a
// height beyond what's been set).
type FixedBlockSource struct {
	headers map[uint64]common.Hash
	tip     uint64
}

func NewFixedBlockSource() *FixedBlockSource {
	return &FixedBlockSource{headers: make(map[uint64]common.Hash)}
}

// SetHeader records the hash of the block at height and advances the
// source's notion of "tip" if height is newer.
func (f *FixedBlockSource) SetHeader(height uint64, hash common.Hash) {
	f.headers[height] = hash
	if height > f.tip {
		f.tip = height
	}
}

func (f *FixedBlockSource) HeaderHash(height uint64) (common.Hash, bool) {
	h, ok := f.headers[height]
	return h, ok
}

// Invoke is a convenience one-shot: construct a Processor against cfg and
// run a single top-level invocation with no signature to verify.
func Invoke(cfg *Config, cid common.ContractID, methodIdx uint32, calldata []byte) ([]byte, uint64, error) {
	return InvokeSigned(cfg, cid, methodIdx, calldata, nil)
}

// InvokeSigned is Invoke's signed counterpart, for invocations that made
// one or more AddSig host calls and must supply the resulting aggregate
// signature for Finalize to verify.
func InvokeSigned(cfg *Config, cid common.ContractID, methodIdx uint32, calldata []byte, sig *schnorr.Signature) ([]byte, uint64, error) {
	proc := bvm.NewProcessor(bvm.Config{
		Charge: cfg.ChargeParams,
		Code:   cfg.Code,
		Blocks: cfg.Blocks,
		Log:    cfg.Log,
	}, cfg.Store, cfg.ChargeLimit)
	out, err := proc.Invoke(cid, methodIdx, calldata, sig)
	return out, proc.ChargeUsed(), err
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
