// Copyright 2025 Blink Labs Software
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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openvouch/vouchd"
	"github.com/openvouch/vouchd/internal/config"
	"github.com/openvouch/vouchd/internal/node"
	"github.com/spf13/cobra"
)

func indexRun(
	ctx context.Context,
	slug string,
	force bool,
	cfg *config.Config,
) {
	logger := commonRun()

	n, err := node.Build(cfg, logger)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	if err := n.Open(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	result, err := n.Index(ctx, vouchd.IndexRequest{
		Slug:    slug,
		Trusted: true,
		Force:   force,
	})
	if err != nil {
		_ = n.Stop()
		slog.Error(err.Error())
		os.Exit(1)
	}

	fmt.Printf("%s: %s\n", slug, result.Message)
	if result.AuditRecorded {
		fmt.Printf("audit block recorded at height %d\n", result.AuditHeight)
	}

	if err := n.Stop(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func indexCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "index <owner/name>",
		Short: "Index a single repository and exit",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			indexRun(cmd.Context(), args[0], force, cfg)
		},
	}
	cmd.Flags().
		BoolVar(&force, "force", false, "reindex even when the trust list content is unchanged")
	return cmd
}
