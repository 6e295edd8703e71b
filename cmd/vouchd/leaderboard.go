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

func rebuildLeaderboardRun(ctx context.Context, cfg *config.Config) {
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

	if err := n.RebuildLeaderboard(ctx); err != nil {
		_ = n.Stop()
		slog.Error(err.Error())
		os.Exit(1)
	}
	fmt.Println("leaderboard rebuilt")

	if err := n.Stop(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func rebuildLeaderboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild-leaderboard",
		Short: "Recompute endorsement counts from stored entries",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			rebuildLeaderboardRun(cmd.Context(), cfg)
		},
	}
	return cmd
}
