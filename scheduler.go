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

package vouchd

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/openvouch/vouchd/guard"
)

// staleRateBucketAge is how far past its window start a rate bucket must
// be before the sweep reclaims it
const staleRateBucketAge = 24 * time.Hour

// scheduler periodically reindexes the least-recently-attempted
// repositories and sweeps expired locks and stale rate buckets. Scheduled
// runs are trusted, so they skip rate limits but still take the
// per-repository lock.
type scheduler struct {
	node     *Node
	logger   *slog.Logger
	interval time.Duration
	batch    int
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newScheduler(node *Node) *scheduler {
	return &scheduler{
		node:     node,
		logger:   node.config.logger.With("component", "scheduler"),
		interval: node.config.reindexInterval,
		batch:    node.config.reindexBatchSize,
	}
}

func (s *scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info(
		"started reindex scheduler",
		"interval", s.interval.String(),
		"batch_size", s.batch,
	)
}

// Stop cancels the loop and waits for any in-flight pass to finish
func (s *scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.pass(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// pass runs one scheduler iteration: maintenance sweeps, then a batch of
// reindexes. Failures are logged and counted but never stop the pass;
// the failed repository keeps its fresh attempt timestamp and drops to
// the back of the stale queue.
func (s *scheduler) pass(ctx context.Context) {
	if s.node.metrics != nil {
		s.node.metrics.schedulerPasses.Inc()
	}
	now := time.Now()
	if swept, err := s.node.db.SweepExpiredLocks(now, nil); err != nil {
		s.logger.Warn("failed to sweep expired locks", "error", err)
	} else if swept > 0 {
		s.logger.Debug("swept expired locks", "count", swept)
	}
	cutoff := now.Add(-staleRateBucketAge)
	if swept, err := s.node.db.SweepStaleRateBuckets(cutoff, nil); err != nil {
		s.logger.Warn("failed to sweep stale rate buckets", "error", err)
	} else if swept > 0 {
		s.logger.Debug("swept stale rate buckets", "count", swept)
	}
	repos, err := s.node.db.ListRepositoriesByLastAttempt(s.batch, nil)
	if err != nil {
		s.logger.Warn("failed to list repositories for reindex", "error", err)
		return
	}
	for _, repo := range repos {
		if ctx.Err() != nil {
			return
		}
		_, err := s.node.Index(ctx, IndexRequest{
			Slug:    repo.Slug,
			Trusted: true,
		})
		if err == nil {
			continue
		}
		if errors.Is(err, guard.ErrLockHeld) {
			// Someone else is already indexing it
			s.logger.Debug(
				"skipping locked repository",
				"repo_slug", repo.Slug,
			)
			continue
		}
		if s.node.metrics != nil {
			s.node.metrics.schedulerFailures.Inc()
		}
		s.logger.Warn(
			"scheduled reindex failed",
			"repo_slug", repo.Slug,
			"error", err,
		)
	}
}
