// Copyright 2026 The OpenBehind Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command openbehind-bench drives the open-behind dispatcher against the
// in-process membackend, printing a statedump afterwards. It exists to
// exercise the CLI/config wiring end to end, not as a real filesystem.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gzhang91/openbehind/fsops"
	"github.com/gzhang91/openbehind/membackend"
	"github.com/gzhang91/openbehind/openbehind"
)

var (
	v       = viper.New()
	debug   bool
	opCount int
)

var rootCmd = &cobra.Command{
	Use:   "openbehind-bench",
	Short: "Exercise the open-behind dispatcher against an in-process backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	flags := rootCmd.Flags()
	if err := openbehind.BindFlags(flags, v); err != nil {
		fmt.Fprintln(os.Stderr, "bind flags:", err)
		os.Exit(1)
	}
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.IntVar(&opCount, "ops", 4, "number of opens to simulate")
}

func run() error {
	backend := membackend.New()
	opts := openbehind.OptionsFromViper(v)
	d := openbehind.New(backend, opts, debug)

	ctx := context.Background()
	for i := 0; i < opCount; i++ {
		inode := fsops.InodeID(i + 2)
		op := &fsops.OpenOp{Context: ctx, Inode: inode, Loc: fmt.Sprintf("/file-%d", i)}
		if err := d.Open(op); err != nil {
			return fmt.Errorf("open inode %d: %w", inode, err)
		}

		readOp := &fsops.ReadvOp{Context: ctx, Inode: inode, Handle: op.Handle, Size: 16}
		if err := d.Readv(readOp); err != nil {
			return fmt.Errorf("readv inode %d: %w", inode, err)
		}

		if err := d.Release(&fsops.ReleaseOp{Context: ctx, Inode: inode, Handle: op.Handle}); err != nil {
			return fmt.Errorf("release inode %d: %w", inode, err)
		}
	}

	dump := d.Dump()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
