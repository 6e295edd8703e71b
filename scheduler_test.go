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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/guard"
	"github.com/openvouch/vouchd/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerPicksUpContentChange(t *testing.T) {
	root := t.TempDir()
	writeTrustList(t, root, testSlug, "alice\n")
	node := newTestNode(
		t,
		source.NewDirSource(root),
		WithReindexInterval(25*time.Millisecond),
		WithReindexBatchSize(10),
	)
	_, err := node.Index(t.Context(), IndexRequest{
		Slug:    testSlug,
		Trusted: true,
	})
	require.NoError(t, err)

	writeTrustList(t, root, testSlug, "alice\nbob\n")
	node.scheduler = newScheduler(node)
	node.scheduler.Start()

	assert.Eventually(t, func() bool {
		repo, err := node.db.GetRepository(testSlug, nil)
		return err == nil && repo.EntryCount == 2
	}, 5*time.Second, 20*time.Millisecond, "scheduler should reindex the changed repository")
}

func TestSchedulerCountsFailures(t *testing.T) {
	root := t.TempDir()
	writeTrustList(t, root, testSlug, "alice\n")
	node := newTestNode(
		t,
		source.NewDirSource(root),
		WithReindexInterval(25*time.Millisecond),
		WithPrometheusRegistry(prometheus.NewRegistry()),
	)
	_, err := node.Index(t.Context(), IndexRequest{
		Slug:    testSlug,
		Trusted: true,
	})
	require.NoError(t, err)

	// Losing the trust list makes every scheduled attempt fail
	require.NoError(
		t,
		os.Remove(filepath.Join(root, "acme", "widgets", "VOUCHED.td")),
	)
	node.scheduler = newScheduler(node)
	node.scheduler.Start()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(node.metrics.schedulerFailures) >= 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSchedulerSkipsLockedRepository(t *testing.T) {
	root := t.TempDir()
	writeTrustList(t, root, testSlug, "alice\n")
	node := newTestNode(
		t,
		source.NewDirSource(root),
		WithReindexInterval(25*time.Millisecond),
		WithPrometheusRegistry(prometheus.NewRegistry()),
	)
	_, err := node.Index(t.Context(), IndexRequest{
		Slug:    testSlug,
		Trusted: true,
	})
	require.NoError(t, err)

	lease, err := node.guard.Acquire(
		t.Context(),
		testSlug,
		guard.Requester{Trusted: true},
	)
	require.NoError(t, err)
	defer func() {
		lease.Release(t.Context()) //nolint:errcheck
	}()

	node.scheduler = newScheduler(node)
	node.scheduler.Start()

	// Held locks are skipped quietly, not counted as failures
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(node.metrics.schedulerPasses) >= 3
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(node.metrics.schedulerFailures))
}

func TestSchedulerIndexesWatchlistRepository(t *testing.T) {
	root := t.TempDir()
	writeTrustList(t, root, testSlug, "alice\nbob\n")
	node := newTestNode(
		t,
		source.NewDirSource(root),
		WithReindexInterval(25*time.Millisecond),
		WithWatchlist([]string{"Acme/Widgets"}),
		WithPrometheusRegistry(prometheus.NewRegistry()),
	)

	// Open registered the watch list entry under its normalized slug
	repo, err := node.db.GetRepository(testSlug, nil)
	require.NoError(t, err)
	require.Equal(t, models.RepositoryStatusNew, repo.Status)

	node.scheduler = newScheduler(node)
	node.scheduler.Start()

	// The seeded repository gets indexed without an explicit request
	assert.Eventually(t, func() bool {
		repo, err := node.db.GetRepository(testSlug, nil)
		return err == nil && repo.Status == models.RepositoryStatusIndexed
	}, 5*time.Second, 20*time.Millisecond, "scheduler should index the watch list repository")
}

func TestWatchlistInvalidSlug(t *testing.T) {
	root := t.TempDir()
	node, err := New(NewConfig(
		WithContentSource(source.NewDirSource(root)),
		WithDataDir(t.TempDir()),
		WithWatchlist([]string{"not-a-slug"}),
		WithPrometheusRegistry(prometheus.NewRegistry()),
	))
	require.NoError(t, err)
	defer func() {
		node.Stop() //nolint:errcheck
	}()
	err = node.Open()
	require.ErrorContains(t, err, "invalid watch list entry")
	var slugErr InvalidSlugError
	require.ErrorAs(t, err, &slugErr)
}
