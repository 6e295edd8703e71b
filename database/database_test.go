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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openvouch/vouchd/database"
	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type TestTable struct {
	gorm.Model
}

// newTestDatabase creates a file-backed database in a temp dir so tests
// don't share the process-wide in-memory sqlite instance
func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %s", err)
		}
	})
	return db
}

// TestInMemorySqliteMultipleTransaction tests that our sqlite connection allows multiple
// concurrent transactions when using in-memory mode. This requires special URI flags, and
// this is mostly making sure that we don't lose them
func TestInMemorySqliteMultipleTransaction(t *testing.T) {
	var db *database.Database
	doQuery := func(sleep time.Duration) error {
		txn := db.Metadata().Transaction()
		if result := txn.First(&TestTable{}); result.Error != nil {
			return result.Error
		}
		time.Sleep(sleep)
		if result := txn.Commit(); result.Error != nil {
			return result.Error
		}
		return nil
	}
	db, err := database.New(&database.Config{DataDir: ""})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := db.Metadata().DB().AutoMigrate(&TestTable{}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result := db.Metadata().DB().Create(&TestTable{}); result.Error != nil {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	// The linter calls us on the lack of error checking, but it's a goroutine...
	//nolint:errcheck
	go doQuery(5 * time.Second)
	time.Sleep(1 * time.Second)
	if err := doQuery(0); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestRepositoryAndSnapshotAccessors(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.GetRepository("github.com/openvouch/example", nil)
	assert.ErrorIs(t, err, models.ErrRepositoryNotFound)

	repo := &models.Repository{
		Slug:          "github.com/openvouch/example",
		DefaultBranch: "main",
		Status:        models.RepositoryStatusNew,
		LastAttemptAt: time.Now(),
	}
	require.NoError(t, db.SetRepository(repo, nil))
	require.NotZero(t, repo.ID)

	fetched, err := db.GetRepository(repo.Slug, nil)
	require.NoError(t, err)
	assert.Equal(t, repo.ID, fetched.ID)
	assert.Equal(t, "main", fetched.DefaultBranch)

	byID, err := db.GetRepositoryByID(repo.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, repo.Slug, byID.Slug)

	_, err = db.GetSnapshot(repo.ID, nil)
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)

	snapshot := &models.Snapshot{
		RepositoryID: repo.ID,
		CommitID:     strings.Repeat("c", 40),
		FilePath:     "VOUCHED.td",
		IndexedAt:    time.Now(),
	}
	require.NoError(t, db.SetSnapshot(snapshot, nil))
	require.NotZero(t, snapshot.ID)

	fetchedSnap, err := db.GetSnapshot(repo.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, snapshot.CommitID, fetchedSnap.CommitID)

	repos, err := db.ListRepositories(nil)
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestApplyReconcilePlan(t *testing.T) {
	db := newTestDatabase(t)

	repo := &models.Repository{
		Slug:   "github.com/openvouch/plan",
		Status: models.RepositoryStatusNew,
	}
	require.NoError(t, db.SetRepository(repo, nil))

	details := "helped review the parser"
	adds := []models.Entry{
		{
			Handle:       "github:alice",
			Platform:     "github",
			Username:     "alice",
			Type:         models.EntryTypeVouch,
			RepoSlug:     repo.Slug,
			Details:      &details,
			RepositoryID: repo.ID,
			SnapshotID:   1,
		},
		{
			Handle:       "github:bob",
			Platform:     "github",
			Username:     "bob",
			Type:         models.EntryTypeDenounce,
			RepoSlug:     repo.Slug,
			RepositoryID: repo.ID,
			SnapshotID:   1,
		},
	}
	require.NoError(t, db.ApplyReconcilePlan(adds, nil, nil, nil))

	entries, err := db.GetEntriesByRepository(repo.ID, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "github:alice", entries[0].Handle)
	assert.Equal(t, "github:bob", entries[1].Handle)

	// Flip alice to denounce and drop bob in a single plan
	updates := []models.Entry{
		{
			ID:         entries[0].ID,
			Type:       models.EntryTypeDenounce,
			Details:    nil,
			SnapshotID: 2,
			RepoSlug:   repo.Slug,
		},
	}
	removeIDs := []uint{entries[1].ID}
	require.NoError(t, db.ApplyReconcilePlan(nil, updates, removeIDs, nil))

	entries, err = db.GetEntriesByRepository(repo.ID, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "github:alice", entries[0].Handle)
	assert.Equal(t, models.EntryTypeDenounce, entries[0].Type)
	assert.Nil(t, entries[0].Details)
	assert.Equal(t, uint(2), entries[0].SnapshotID)
}

func TestTxnDoRollsBackOnError(t *testing.T) {
	db := newTestDatabase(t)

	testErr := errors.New("boom")
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		repo := &models.Repository{
			Slug:   "github.com/openvouch/rollback",
			Status: models.RepositoryStatusNew,
		}
		if err := db.SetRepository(repo, txn); err != nil {
			return err
		}
		return testErr
	})
	assert.ErrorIs(t, err, testErr)

	_, err = db.GetRepository("github.com/openvouch/rollback", nil)
	assert.ErrorIs(t, err, models.ErrRepositoryNotFound)
}

func TestTxnCommitSynchronizesTimestamps(t *testing.T) {
	db := newTestDatabase(t)

	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		repo := &models.Repository{
			Slug:   "github.com/openvouch/timestamps",
			Status: models.RepositoryStatusIndexed,
		}
		return db.SetRepository(repo, txn)
	})
	require.NoError(t, err)

	metadataTimestamp, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	blobTimestamp, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Positive(t, metadataTimestamp)
	assert.Equal(t, metadataTimestamp, blobTimestamp)
}

func TestAuditBlockAccessors(t *testing.T) {
	db := newTestDatabase(t)

	repo := &models.Repository{
		Slug:   "github.com/openvouch/audit",
		Status: models.RepositoryStatusIndexed,
	}
	require.NoError(t, db.SetRepository(repo, nil))

	tip, err := db.GetAuditTip(repo.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, tip)

	block := &models.AuditBlock{
		RepositoryID: repo.ID,
		Height:       1,
		BlockHash:    strings.Repeat("a", 64),
		FilePath:     "VOUCHED.td",
		CommitID:     strings.Repeat("c", 40),
		Timestamp:    time.Now(),
		AddedCount:   1,
		Changes: []models.AuditChange{
			{
				Handle:  "github:alice",
				Action:  models.AuditActionAdded,
				NewType: strPtr(models.EntryTypeVouch),
			},
		},
	}
	require.NoError(t, db.AddAuditBlock(block, nil))
	require.NotZero(t, block.ID)

	tip, err = db.GetAuditTip(repo.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, tip)
	assert.Equal(t, uint64(1), tip.Height)

	fetched, err := db.GetAuditBlock(repo.ID, 1, nil)
	require.NoError(t, err)
	require.Len(t, fetched.Changes, 1)
	assert.Equal(t, "github:alice", fetched.Changes[0].Handle)

	blocks, err := db.GetAuditBlocks(repo.ID, 0, 0, nil)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
}

func TestLeaderboardAccessors(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.GetLeaderboardRow("github:alice", nil)
	assert.ErrorIs(t, err, models.ErrLeaderboardRowNotFound)

	require.NoError(t, db.SetLeaderboardRow(&models.LeaderboardRow{
		Handle:       "github:alice",
		Vouched:      2,
		Repositories: 2,
		Score:        2,
	}, nil))
	require.NoError(t, db.SetLeaderboardRow(&models.LeaderboardRow{
		Handle:       "github:bob",
		Vouched:      1,
		Denounced:    1,
		Repositories: 1,
		Score:        0,
	}, nil))

	top, err := db.GetLeaderboardTop(10, nil)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "github:alice", top[0].Handle)

	require.NoError(t, db.DeleteLeaderboardRow("github:bob", nil))
	_, err = db.GetLeaderboardRow("github:bob", nil)
	assert.ErrorIs(t, err, models.ErrLeaderboardRowNotFound)

	require.NoError(t, db.DeleteAllLeaderboardRows(nil))
	top, err = db.GetLeaderboardTop(0, nil)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestLockAccessors(t *testing.T) {
	db := newTestDatabase(t)

	lock, err := db.GetLock("github.com/openvouch/lock", nil)
	require.NoError(t, err)
	assert.Nil(t, lock)

	expires := time.Now().Add(time.Minute)
	require.NoError(t, db.SetLock(
		"github.com/openvouch/lock",
		database.LockRecord{Owner: "worker-1", ExpiresAt: expires},
		nil,
	))

	lock, err = db.GetLock("github.com/openvouch/lock", nil)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "worker-1", lock.Owner)
	// Encoding keeps millisecond precision
	assert.Equal(t, expires.UnixMilli(), lock.ExpiresAt.UnixMilli())
	assert.False(t, lock.Expired(time.Now()))
	assert.True(t, lock.Expired(expires.Add(time.Second)))

	require.NoError(t, db.DeleteLock("github.com/openvouch/lock", nil))
	lock, err = db.GetLock("github.com/openvouch/lock", nil)
	require.NoError(t, err)
	assert.Nil(t, lock)
}

func TestRateBucketAccessors(t *testing.T) {
	db := newTestDatabase(t)

	bucket, err := db.GetRateBucket("requester", "a1b2", nil)
	require.NoError(t, err)
	assert.Nil(t, bucket)

	windowStart := time.Now().UnixMilli()
	require.NoError(t, db.SetRateBucket(
		"requester",
		"a1b2",
		database.RateBucket{WindowStart: windowStart, Count: 3},
		nil,
	))

	bucket, err = db.GetRateBucket("requester", "a1b2", nil)
	require.NoError(t, err)
	require.NotNil(t, bucket)
	assert.Equal(t, windowStart, bucket.WindowStart)
	assert.Equal(t, uint64(3), bucket.Count)

	// Buckets in different scopes are independent
	other, err := db.GetRateBucket("repo", "a1b2", nil)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestArchiveRoundTrip(t *testing.T) {
	db := newTestDatabase(t)

	content := []byte("# VOUCHED.td\nvouch github/alice \"review help\"\n")
	commitID := strings.Repeat("d", 40)
	require.NoError(t, db.ArchivePut(
		"github.com/openvouch/archive",
		commitID,
		content,
		nil,
	))

	fetched, err := db.ArchiveGet("github.com/openvouch/archive", commitID, nil)
	require.NoError(t, err)
	assert.Equal(t, content, fetched)

	_, err = db.ArchiveGet("github.com/openvouch/archive", strings.Repeat("e", 40), nil)
	assert.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}

func strPtr(s string) *string {
	return &s
}
