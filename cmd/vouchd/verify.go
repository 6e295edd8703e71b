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

	"github.com/openvouch/vouchd/internal/config"
	"github.com/openvouch/vouchd/internal/node"
	"github.com/spf13/cobra"
)

func verifyRun(ctx context.Context, args []string, cfg *config.Config) {
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

	// Verify the named repository, or every known repository when no
	// argument is given
	slugs := args
	if len(slugs) == 0 {
		repos, err := n.Database().ListRepositories(nil)
		if err != nil {
			_ = n.Stop()
			slog.Error(err.Error())
			os.Exit(1)
		}
		for _, repo := range repos {
			slugs = append(slugs, repo.Slug)
		}
	}

	failed := false
	for _, slug := range slugs {
		count, err := n.VerifyAuditChain(ctx, slug)
		if err != nil {
			fmt.Printf("%s: FAILED: %v\n", slug, err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok (%d blocks)\n", slug, count)
	}

	if err := n.Stop(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

func verifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [owner/name]",
		Short: "Verify audit chain integrity (all repositories when no argument)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			verifyRun(cmd.Context(), args, cfg)
		},
	}
	return cmd
}
