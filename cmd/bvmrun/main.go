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

// bvmrun loads a compiled BVM2 module and invokes a single method against an
// in-memory Store, mirroring cmd/cvm's run command in spirit: load code,
// set up a minimal execution environment, invoke, print the result.
package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/bvm2/bvm2/common"
	"github.com/bvm2/bvm2/core/bvm"
	"github.com/bvm2/bvm2/core/bvm/runtime"
	"github.com/bvm2/bvm2/internal/blog"
)

var (
	ModuleFileFlag = cli.StringFlag{
		Name:  "module",
		Usage: "file containing a compiled BVM2 module (raw bytes, or hex if --hex is set)",
	}
	HexFlag = cli.BoolFlag{
		Name:  "hex",
		Usage: "treat --module's contents as hex-encoded rather than raw bytes",
	}
	MethodFlag = cli.Uint64Flag{
		Name:  "method",
		Usage: "method index to invoke",
		Value: 2,
	}
	CalldataFlag = cli.StringFlag{
		Name:  "calldata",
		Usage: "hex-encoded calldata passed to the method",
	}
	ChargeLimitFlag = cli.Uint64Flag{
		Name:  "chargelimit",
		Usage: "charge budget for the invocation",
		Value: 10_000_000,
	}
	VerbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity, 0 (silent) through 4 (debug)",
		Value: 1,
	}
	DumpFlag = cli.BoolFlag{
		Name:  "dump",
		Usage: "dump the contract's variable store after the run",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "bvmrun"
	app.Usage = "load and invoke a standalone BVM2 module"
	app.Flags = []cli.Flag{
		ModuleFileFlag,
		HexFlag,
		MethodFlag,
		CalldataFlag,
		ChargeLimitFlag,
		VerbosityFlag,
		DumpFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	modulePath := ctx.String(ModuleFileFlag.Name)
	if modulePath == "" {
		return cli.NewExitError("missing required flag --module", 1)
	}

	raw, err := ioutil.ReadFile(modulePath)
	if err != nil {
		return fmt.Errorf("reading module file: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if ctx.Bool(HexFlag.Name) {
		raw, err = hex.DecodeString(string(raw))
		if err != nil {
			return fmt.Errorf("decoding hex module: %w", err)
		}
	}

	calldata, err := hex.DecodeString(ctx.String(CalldataFlag.Name))
	if err != nil {
		return fmt.Errorf("decoding hex calldata: %w", err)
	}

	log := blog.New(os.Stderr, blog.Lvl(ctx.Int(VerbosityFlag.Name)-1))

	cfg := runtime.NewConfig()
	cfg.Log = log
	cfg.ChargeLimit = ctx.Uint64(ChargeLimitFlag.Name)

	cid := cfg.Code.Deploy(raw, nil)
	log.Info("deployed module", "cid", cid.String(), "size", len(raw))

	out, used, err := runtime.Invoke(cfg, cid, uint32(ctx.Uint64(MethodFlag.Name)), calldata)
	fmt.Printf("output:       0x%x\n", out)
	fmt.Printf("charge used:  %d\n", used)
	if err != nil {
		fmt.Printf("error:        %v\n", err)
	}

	if ctx.Bool(DumpFlag.Name) {
		dumpStore(cfg.Store, cid)
	}

	if err != nil {
		if berr, ok := err.(*bvm.Error); ok {
			return cli.NewExitError(fmt.Sprintf("invocation failed: %s", berr.Kind), 2)
		}
		return cli.NewExitError(fmt.Sprintf("invocation failed: %v", err), 2)
	}
	return nil
}

func dumpStore(store *bvm.MemStore, cid common.ContractID) {
	fmt.Println("#### VARS ####")
	cur := bvm.VarsEnum(store, cid)
	for {
		key, value, ok := cur.VarsMoveNext()
		if !ok {
			break
		}
		fmt.Printf("tag=%d subkey=0x%x value=0x%x\n", key.Tag, key.Subkey, value)
	}
}
