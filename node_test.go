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
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openvouch/vouchd/source"
)

// TestNodeLifecycle walks a node through open, index, verify, and stop
// against on-disk stores and checks that shutdown reaps every goroutine
// the node spawned. The event bus worker pool is excluded because Stop()
// respawns it so the bus can be reused.
func TestNodeLifecycle(t *testing.T) {
	defer goleak.VerifyNone(
		t,
		goleak.IgnoreTopFunction(
			"github.com/openvouch/vouchd/event.(*EventBus).asyncWorker",
		),
	)

	srcDir := t.TempDir()
	writeTrustList(t, srcDir, testSlug, "alice\nbob\n")

	node, err := New(NewConfig(
		WithContentSource(source.NewDirSource(srcDir)),
		WithDataDir(t.TempDir()),
		WithReindexInterval(0),
	))
	require.NoError(t, err)
	require.NoError(t, node.Open())

	result, err := node.Index(
		context.Background(),
		IndexRequest{Slug: testSlug, Trusted: true},
	)
	require.NoError(t, err)
	require.Equal(t, 2, result.EntriesIndexed)
	require.True(t, result.AuditRecorded)

	height, err := node.VerifyAuditChain(context.Background(), testSlug)
	require.NoError(t, err)
	require.Equal(t, 1, height)

	require.NoError(t, node.Stop())
	// Stop is idempotent
	require.NoError(t, node.Stop())
}

// TestNodeStopBeforeOpen checks that stopping a node that was never
// opened does not panic or error.
func TestNodeStopBeforeOpen(t *testing.T) {
	node, err := New(NewConfig(
		WithContentSource(source.NewDirSource(t.TempDir())),
	))
	require.NoError(t, err)
	require.NoError(t, node.Stop())
}
