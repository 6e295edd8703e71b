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

// Package vouchd assembles the trust-list indexing node: it wires the
// content source, the storage layer, the concurrency guard, the audit
// chain, and the leaderboard together behind the Index operation, and
// runs the background reindex scheduler.
package vouchd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openvouch/vouchd/auditchain"
	"github.com/openvouch/vouchd/database"
	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/event"
	"github.com/openvouch/vouchd/guard"
	"github.com/openvouch/vouchd/leaderboard"
)

type Node struct {
	config        Config
	eventBus      *event.EventBus
	db            *database.Database
	guard         *guard.Guard
	auditManager  *auditchain.Manager
	aggregator    *leaderboard.Aggregator
	scheduler     *scheduler
	metrics       *nodeMetrics
	shutdownFuncs []func(context.Context) error
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Open initializes storage and wires the node's components without
// starting the background scheduler. Callers that only need direct
// operations (Index, VerifyAuditChain, RebuildLeaderboard) pair Open
// with Stop; daemons use Run instead.
func (n *Node) Open() error {
	if n.db != nil {
		return errors.New("node already started")
	}
	db, err := database.New(&database.Config{
		DataDir:           n.config.dataDir,
		Logger:            n.config.logger,
		PromRegistry:      n.config.promRegistry,
		BlobPlugin:        n.config.blobPlugin,
		MetadataPlugin:    n.config.metadataPlugin,
		ArchivePlugin:     n.config.archivePlugin,
		ArchiveCacheBytes: n.config.archiveCacheBytes,
	})
	if db == nil {
		n.config.logger.Error(
			"failed to create database",
			"error",
			"empty database returned",
		)
		return errors.New("empty database returned")
	}
	n.db = db
	if err != nil {
		var tsErr database.CommitTimestampError
		if !errors.As(err, &tsErr) {
			return fmt.Errorf("failed to open database: %w", err)
		}
		// The metadata store is the source of truth; the blob side only
		// carries advisory locks, rate windows, and immutable archives.
		// The next read-write commit realigns the timestamps.
		n.config.logger.Warn(
			"commit timestamp mismatch between stores, continuing",
			"error",
			err,
		)
	}
	n.auditManager = auditchain.NewManager(
		n.config.logger,
		n.db,
		n.eventBus,
	)
	n.aggregator = leaderboard.NewAggregator(
		n.config.logger,
		n.db,
	)
	n.guard = guard.NewGuard(
		n.config.logger,
		n.db,
		guard.Config{
			LockTTL:            n.config.lockTTL,
			RequesterLimit:     n.config.requesterLimit,
			RequesterRepoLimit: n.config.requesterRepoLimit,
			RepoLimit:          n.config.repoLimit,
		},
	)
	n.metrics = newNodeMetrics(n.config.promRegistry)
	if err := n.seedWatchlist(); err != nil {
		return err
	}
	return nil
}

// seedWatchlist registers configured repositories so the scheduler picks
// them up on its next pass. Existing rows are left untouched.
func (n *Node) seedWatchlist() error {
	seeded := 0
	for _, raw := range n.config.watchlist {
		slug, err := NormalizeSlug(raw)
		if err != nil {
			return fmt.Errorf("invalid watch list entry %q: %w", raw, err)
		}
		_, err = n.db.GetRepository(slug, nil)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrRepositoryNotFound) {
			return fmt.Errorf("checking watch list entry %q: %w", slug, err)
		}
		repo := &models.Repository{
			Slug:   slug,
			Status: models.RepositoryStatusNew,
		}
		if err := n.db.SetRepository(repo, nil); err != nil {
			return fmt.Errorf("registering watch list entry %q: %w", slug, err)
		}
		n.config.logger.Debug(
			"registered watch list repository",
			"component", "node",
			"repo_slug", slug,
		)
		seeded++
	}
	if seeded > 0 {
		n.config.logger.Info(
			fmt.Sprintf("watch list registered %d new repositories", seeded),
			"component", "node",
		)
	}
	return nil
}

// Run opens the node, starts the reindex scheduler, and blocks until the
// context is canceled or Stop is called.
func (n *Node) Run(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	if err := n.Open(); err != nil {
		return err
	}
	if n.config.reindexInterval > 0 {
		n.scheduler = newScheduler(n)
		n.scheduler.Start()
	}

	// Wait for shutdown
	select {
	case <-ctx.Done():
		return n.Stop()
	case <-n.done:
		return nil
	}
}

// VerifyAuditChain recomputes and checks a repository's audit chain,
// returning the number of blocks verified before the first problem.
func (n *Node) VerifyAuditChain(
	ctx context.Context,
	slug string,
) (int, error) {
	normalized, err := NormalizeSlug(slug)
	if err != nil {
		return 0, err
	}
	return n.auditManager.Verify(ctx, normalized)
}

// RebuildLeaderboard recomputes the leaderboard from the full entry set,
// replacing whatever incremental state was there.
func (n *Node) RebuildLeaderboard(ctx context.Context) error {
	return n.aggregator.Rebuild(ctx, nil)
}

// Database exposes the underlying store for inspection commands and
// tests. Mutations should go through the pipeline.
func (n *Node) Database() *database.Database {
	return n.db
}

// EventBus exposes the node's event bus for subscribers.
func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop scheduling new work and wait for in-flight runs
	n.config.logger.Debug("shutdown phase 1: stopping scheduler")

	if n.scheduler != nil {
		n.scheduler.Stop()
	}

	// Phase 2: Drain event subscribers
	n.config.logger.Debug("shutdown phase 2: stopping event bus")

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	// Phase 3: Flush tracing and other registered resources
	n.config.logger.Debug("shutdown phase 3: cleanup resources")

	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	// Phase 4: Close the database
	n.config.logger.Debug("shutdown phase 4: closing database")

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("database close: %w", closeErr),
			)
		}
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
