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

package database_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/openvouch/vouchd/database"
	"github.com/openvouch/vouchd/database/plugin"
	"github.com/openvouch/vouchd/database/plugin/archive"
	"github.com/openvouch/vouchd/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memArchive is an in-memory archive plugin for exercising the off-site
// archive tier without a real object store
type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (m *memArchive) Start() error { return nil }
func (m *memArchive) Stop() error  { return nil }
func (m *memArchive) Close() error { return nil }

func (m *memArchive) PutObject(
	ctx context.Context,
	key string,
	data []byte,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.puts++
	return nil
}

func (m *memArchive) GetObject(
	ctx context.Context,
	key string,
) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, archive.ErrObjectNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *memArchive) ObjectExists(
	ctx context.Context,
	key string,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memArchive) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

var testArchiveStore = &memArchive{objects: map[string][]byte{}}

func init() {
	plugin.Register(plugin.PluginEntry{
		Type: plugin.PluginTypeArchive,
		Name: "mem",
		NewFromOptionsFunc: func(
			logger *slog.Logger,
			promRegistry prometheus.Registerer,
		) plugin.Plugin {
			return testArchiveStore
		},
	})
}

// newTestArchiveDatabase creates a database wired to the in-memory archive
// plugin
func newTestArchiveDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir:       t.TempDir(),
		ArchivePlugin: "mem",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %s", err)
		}
	})
	return db
}

func TestArchiveUpload(t *testing.T) {
	db := newTestArchiveDatabase(t)

	slug := "github.com/openvouch/offsite"
	commitID := strings.Repeat("f", 40)
	content := []byte("# VOUCHED.td\nvouch github/bob \"code review\"\n")
	key := fmt.Sprintf("archive/v1/%s/%s", slug, commitID)

	require.NoError(
		t,
		db.ArchiveUpload(context.Background(), slug, commitID, content),
	)
	stored, err := testArchiveStore.GetObject(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	// Archives are immutable, so a repeat upload is skipped
	puts := testArchiveStore.putCount()
	require.NoError(
		t,
		db.ArchiveUpload(context.Background(), slug, commitID, content),
	)
	assert.Equal(t, puts, testArchiveStore.putCount())
}

func TestArchiveUploadWithoutOffsiteStore(t *testing.T) {
	db := newTestDatabase(t)

	// No off-site archive configured: upload is a no-op
	require.NoError(t, db.ArchiveUpload(
		context.Background(),
		"github.com/openvouch/local-only",
		strings.Repeat("a", 40),
		[]byte("content"),
	))
}

func TestArchiveGetOffsiteFallback(t *testing.T) {
	db := newTestArchiveDatabase(t)

	slug := "github.com/openvouch/fallback"
	commitID := strings.Repeat("9", 40)
	content := []byte("# VOUCHED.td\nvouch github/carol \"docs\"\n")
	key := fmt.Sprintf("archive/v1/%s/%s", slug, commitID)

	// Seed only the off-site store, as if the local copy was lost
	require.NoError(
		t,
		testArchiveStore.PutObject(context.Background(), key, content),
	)

	fetched, err := db.ArchiveGet(slug, commitID, nil)
	require.NoError(t, err)
	assert.Equal(t, content, fetched)

	// Missing from both tiers
	_, err = db.ArchiveGet(slug, strings.Repeat("8", 40), nil)
	assert.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}
