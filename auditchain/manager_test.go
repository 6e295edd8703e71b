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

package auditchain_test

import (
	"testing"
	"time"

	"github.com/openvouch/vouchd/auditchain"
	"github.com/openvouch/vouchd/database"
	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/event"
	"github.com/openvouch/vouchd/trustdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRepoSlug = "acme/widgets"

type managerTestEnv struct {
	manager *auditchain.Manager
	db      *database.Database
	bus     *event.EventBus
	repoID  uint
}

func newManagerTestEnv(t *testing.T) *managerTestEnv {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close() //nolint:errcheck
	})
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(bus.Stop)
	repo := &models.Repository{
		Slug:   testRepoSlug,
		Status: models.RepositoryStatusNew,
	}
	require.NoError(t, db.SetRepository(repo, nil))
	return &managerTestEnv{
		manager: auditchain.NewManager(nil, db, bus),
		db:      db,
		bus:     bus,
		repoID:  repo.ID,
	}
}

// appendBlocks grows the test repository's chain by count blocks, each
// adding one distinct handle. Snapshot IDs track heights since every
// block here comes from its own indexing run.
func (env *managerTestEnv) appendBlocks(t *testing.T, count int) {
	t.Helper()
	vouch := trustdown.EntryTypeVouch
	for range count {
		tip, err := env.manager.Tip(testRepoSlug, nil)
		require.NoError(t, err)
		var snapshotID uint64 = 1
		if tip != nil {
			snapshotID = tip.Height + 1
		}
		suffix := string(rune('a' + snapshotID - 1))
		block, err := auditchain.BuildBlock(
			tip,
			snapshotID,
			testRepoSlug,
			auditchain.BlockSource{
				FilePath: "VOUCHED.td",
				CommitID: "commit-" + suffix,
			},
			[]auditchain.Change{
				{
					Handle:    "github:user-" + suffix,
					Action:    auditchain.ChangeActionAdded,
					AfterType: &vouch,
				},
			},
			time.Now(),
		)
		require.NoError(t, err)
		require.NoError(
			t,
			env.manager.Append(t.Context(), env.repoID, block, nil),
		)
	}
}

func TestManagerAppendTipAndBlocks(t *testing.T) {
	env := newManagerTestEnv(t)

	tip, err := env.manager.Tip(testRepoSlug, nil)
	require.NoError(t, err)
	assert.Nil(t, tip, "fresh repository should have no tip")

	env.appendBlocks(t, 3)

	tip, err = env.manager.Tip(testRepoSlug, nil)
	require.NoError(t, err)
	require.NotNil(t, tip)
	assert.Equal(t, uint64(3), tip.Height)

	blocks, err := env.manager.Blocks(testRepoSlug, 1, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, uint64(1), blocks[0].Height)
	assert.Nil(t, blocks[0].PreviousHash)
	require.NotNil(t, blocks[1].PreviousHash)
	assert.Equal(t, blocks[0].Hash, *blocks[1].PreviousHash)
	require.Len(t, blocks[1].Changes, 1)
	assert.Equal(
		t,
		auditchain.ChangeActionAdded,
		blocks[1].Changes[0].Action,
	)

	// Ranged reads
	blocks, err = env.manager.Blocks(testRepoSlug, 2, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, uint64(2), blocks[0].Height)
}

func TestManagerAppendPublishesEvent(t *testing.T) {
	env := newManagerTestEnv(t)
	_, subCh := env.bus.Subscribe(event.BlockAddedEventType)

	env.appendBlocks(t, 1)

	select {
	case evt := <-subCh:
		blockEvent, ok := evt.Data.(event.BlockAddedEvent)
		require.True(t, ok, "event data was not BlockAddedEvent")
		assert.Equal(t, testRepoSlug, blockEvent.RepoSlug)
		assert.Equal(t, uint64(1), blockEvent.Height)
		assert.Equal(t, 1, blockEvent.Added)
		assert.NotEmpty(t, blockEvent.BlockHash)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for block added event")
	}
}

func TestManagerAppendStaleTip(t *testing.T) {
	env := newManagerTestEnv(t)
	vouch := trustdown.EntryTypeVouch
	changes := []auditchain.Change{
		{
			Handle:    "github:alice",
			Action:    auditchain.ChangeActionAdded,
			AfterType: &vouch,
		},
	}
	src := auditchain.BlockSource{
		FilePath: "VOUCHED.td",
		CommitID: "commit-a",
	}

	genesis, err := auditchain.BuildBlock(
		nil, 1, testRepoSlug, src, changes, time.Now(),
	)
	require.NoError(t, err)
	require.NoError(
		t,
		env.manager.Append(t.Context(), env.repoID, genesis, nil),
	)

	// A second genesis built against an empty chain no longer fits
	rebuilt, err := auditchain.BuildBlock(
		nil, 1, testRepoSlug, src, changes, time.Now(),
	)
	require.NoError(t, err)
	err = env.manager.Append(t.Context(), env.repoID, rebuilt, nil)
	require.ErrorIs(t, err, auditchain.ErrStaleTip)

	// Two blocks built against the same tip: the second append must fail
	tip, err := env.manager.Tip(testRepoSlug, nil)
	require.NoError(t, err)
	first, err := auditchain.BuildBlock(
		tip, 2, testRepoSlug, src, changes, time.Now(),
	)
	require.NoError(t, err)
	second, err := auditchain.BuildBlock(
		tip, 2, testRepoSlug, src, changes, time.Now().Add(time.Second),
	)
	require.NoError(t, err)
	require.NoError(
		t,
		env.manager.Append(t.Context(), env.repoID, first, nil),
	)
	err = env.manager.Append(t.Context(), env.repoID, second, nil)
	require.ErrorIs(t, err, auditchain.ErrStaleTip)

	// The losing block left no trace
	tip, err = env.manager.Tip(testRepoSlug, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tip.Height)
	assert.Equal(t, first.Hash, tip.Hash)
}

func TestManagerAppendInCallerTransaction(t *testing.T) {
	env := newManagerTestEnv(t)
	_, subCh := env.bus.Subscribe(event.BlockAddedEventType)

	vouch := trustdown.EntryTypeVouch
	block, err := auditchain.BuildBlock(
		nil,
		1,
		testRepoSlug,
		auditchain.BlockSource{
			FilePath: "VOUCHED.td",
			CommitID: "commit-a",
		},
		[]auditchain.Change{
			{
				Handle:    "github:alice",
				Action:    auditchain.ChangeActionAdded,
				AfterType: &vouch,
			},
		},
		time.Now(),
	)
	require.NoError(t, err)

	txn := env.db.Transaction(true)
	err = txn.Do(func(txn *database.Txn) error {
		return env.manager.Append(t.Context(), env.repoID, block, txn)
	})
	require.NoError(t, err)

	// No event until the caller reports the commit
	select {
	case <-subCh:
		t.Fatal("event published before NotifyAppended")
	case <-time.After(50 * time.Millisecond):
	}

	env.manager.NotifyAppended(block)
	select {
	case evt := <-subCh:
		blockEvent, ok := evt.Data.(event.BlockAddedEvent)
		require.True(t, ok)
		assert.Equal(t, block.Hash, blockEvent.BlockHash)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for block added event")
	}

	tip, err := env.manager.Tip(testRepoSlug, nil)
	require.NoError(t, err)
	require.NotNil(t, tip)
	assert.Equal(t, block.Hash, tip.Hash)
}

func TestManagerVerifyCleanChain(t *testing.T) {
	env := newManagerTestEnv(t)
	env.appendBlocks(t, 3)

	verified, err := env.manager.Verify(t.Context(), testRepoSlug)
	require.NoError(t, err)
	assert.Equal(t, 3, verified)
}

func TestManagerVerifyUnknownRepository(t *testing.T) {
	env := newManagerTestEnv(t)
	_, err := env.manager.Verify(t.Context(), "acme/unknown")
	require.ErrorIs(t, err, models.ErrRepositoryNotFound)
}

func TestManagerVerifyDetectsTampering(t *testing.T) {
	env := newManagerTestEnv(t)
	env.appendBlocks(t, 3)

	// Rewrite a stored column behind the chain's back
	txn := env.db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		return txn.Metadata().
			Model(&models.AuditBlock{}).
			Where("repository_id = ? AND height = ?", env.repoID, 2).
			Update("commit_id", "rewritten-history").Error
	})
	require.NoError(t, err)

	verified, err := env.manager.Verify(t.Context(), testRepoSlug)
	var hashErr auditchain.HashMismatchError
	require.ErrorAs(t, err, &hashErr)
	assert.Equal(t, uint64(2), hashErr.Height())
	assert.NotEqual(t, hashErr.Stored(), hashErr.Computed())
	assert.Equal(t, 1, verified)
}

func TestManagerVerifyDetectsHeightGap(t *testing.T) {
	env := newManagerTestEnv(t)
	env.appendBlocks(t, 3)

	txn := env.db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		return txn.Metadata().
			Where("repository_id = ? AND height = ?", env.repoID, 2).
			Delete(&models.AuditBlock{}).Error
	})
	require.NoError(t, err)

	_, err = env.manager.Verify(t.Context(), testRepoSlug)
	var gapErr auditchain.HeightGapError
	require.ErrorAs(t, err, &gapErr)
	assert.Equal(t, uint64(2), gapErr.Expected())
	assert.Equal(t, uint64(3), gapErr.Found())
}

func TestManagerVerifyDetectsBrokenLink(t *testing.T) {
	env := newManagerTestEnv(t)
	env.appendBlocks(t, 3)

	bogus := "0000000000000000000000000000000000000000000000000000000000000000"
	txn := env.db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		return txn.Metadata().
			Model(&models.AuditBlock{}).
			Where("repository_id = ? AND height = ?", env.repoID, 3).
			Update("previous_hash", bogus).Error
	})
	require.NoError(t, err)

	_, err = env.manager.Verify(t.Context(), testRepoSlug)
	var linkErr auditchain.BrokenLinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, uint64(3), linkErr.Height())
}
