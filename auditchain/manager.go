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

package auditchain

import (
	"context"
	"io"
	"log/slog"

	"github.com/openvouch/vouchd/database"
	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/event"
	"github.com/openvouch/vouchd/trustdown"
)

const verifyBatchSize = 100

// Manager persists audit blocks and answers chain queries. Block
// construction itself stays in BuildBlock; the manager owns tip tracking,
// storage mapping, and the block-added event.
type Manager struct {
	logger   *slog.Logger
	db       *database.Database
	eventBus *event.EventBus
}

func NewManager(
	logger *slog.Logger,
	db *database.Database,
	eventBus *event.EventBus,
) *Manager {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Manager{
		logger:   logger,
		db:       db,
		eventBus: eventBus,
	}
}

// Tip returns the current tip of a repository's audit chain, or nil when
// the repository has no blocks yet
func (m *Manager) Tip(repoSlug string, txn *database.Txn) (*TipRef, error) {
	repo, err := m.db.GetRepository(repoSlug, txn)
	if err != nil {
		return nil, err
	}
	tip, err := m.db.GetAuditTip(repo.ID, txn)
	if err != nil {
		return nil, err
	}
	if tip == nil {
		return nil, nil
	}
	return &TipRef{
		Hash:   tip.BlockHash,
		Height: tip.Height,
	}, nil
}

// Append validates a built block against the current tip and persists it
// with its changes. The guard lock excludes concurrent appends per
// repository, but the tip is still re-read inside the write transaction
// and a block built against a tip that has since moved fails with
// ErrStaleTip rather than splitting the chain.
//
// With a nil txn, Append runs in its own transaction and publishes the
// block-added event after commit. With a caller-supplied transaction the
// caller must call NotifyAppended once its transaction commits.
func (m *Manager) Append(
	ctx context.Context,
	repositoryID uint,
	block *Block,
	txn *database.Txn,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owned := false
	if txn == nil {
		txn = m.db.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	tip, err := m.db.GetAuditTip(repositoryID, txn)
	if err != nil {
		return err
	}
	if tip == nil {
		if block.PreviousHash != nil || block.Height != initialHeight {
			return ErrStaleTip
		}
	} else {
		if block.PreviousHash == nil ||
			*block.PreviousHash != tip.BlockHash ||
			block.Height != tip.Height+1 {
			return ErrStaleTip
		}
	}
	row := blockToModel(repositoryID, block)
	if tip != nil {
		row.PreviousID = &tip.ID
	}
	if err := m.db.AddAuditBlock(row, txn); err != nil {
		return err
	}
	m.logger.Debug(
		"appended audit block",
		"component", "auditchain",
		"repo_slug", block.RepoSlug,
		"height", block.Height,
		"block_hash", block.Hash,
	)
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
		m.NotifyAppended(block)
	}
	return nil
}

// NotifyAppended publishes the block-added event for a committed block.
// Callers that append inside their own transaction call this after that
// transaction commits; Append handles it for owned transactions.
func (m *Manager) NotifyAppended(block *Block) {
	if m.eventBus == nil {
		return
	}
	added, removed, changed := countChanges(block.Changes)
	m.eventBus.Publish(
		event.BlockAddedEventType,
		event.NewEvent(
			event.BlockAddedEventType,
			event.BlockAddedEvent{
				RepoSlug:  block.RepoSlug,
				Height:    block.Height,
				BlockHash: block.Hash,
				Added:     added,
				Removed:   removed,
				Changed:   changed,
				Timestamp: block.Timestamp,
			},
		),
	)
}

// Blocks returns a repository's audit chain in ascending height order
// starting at fromHeight. A count of zero or less returns the rest of
// the chain.
func (m *Manager) Blocks(
	repoSlug string,
	fromHeight uint64,
	count int,
) ([]Block, error) {
	repo, err := m.db.GetRepository(repoSlug, nil)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.GetAuditBlocks(repo.ID, fromHeight, count, nil)
	if err != nil {
		return nil, err
	}
	blocks := make([]Block, 0, len(rows))
	for i := range rows {
		blocks = append(blocks, blockFromModel(repoSlug, &rows[i]))
	}
	return blocks, nil
}

// Verify walks a repository's audit chain from genesis, recomputing each
// block's hash and checking height continuity and previous-hash links.
// It returns the number of blocks verified before the first problem.
func (m *Manager) Verify(
	ctx context.Context,
	repoSlug string,
) (int, error) {
	repo, err := m.db.GetRepository(repoSlug, nil)
	if err != nil {
		return 0, err
	}
	verified := 0
	expectedHeight := initialHeight
	var prevHash *string
	for {
		if err := ctx.Err(); err != nil {
			return verified, err
		}
		rows, err := m.db.GetAuditBlocks(
			repo.ID,
			expectedHeight,
			verifyBatchSize,
			nil,
		)
		if err != nil {
			return verified, err
		}
		if len(rows) == 0 {
			return verified, nil
		}
		for i := range rows {
			row := &rows[i]
			if row.Height != expectedHeight {
				return verified, NewHeightGapError(expectedHeight, row.Height)
			}
			if !equalOptString(row.PreviousHash, prevHash) {
				return verified, NewBrokenLinkError(row.Height)
			}
			block := blockFromModel(repoSlug, row)
			computed, err := ComputeHash(&block)
			if err != nil {
				return verified, err
			}
			if computed != row.BlockHash {
				return verified, NewHashMismatchError(
					row.Height,
					row.BlockHash,
					computed,
				)
			}
			verified++
			expectedHeight++
			linkHash := row.BlockHash
			prevHash = &linkHash
		}
	}
}

func blockToModel(repositoryID uint, block *Block) *models.AuditBlock {
	added, removed, changed := countChanges(block.Changes)
	row := &models.AuditBlock{
		BlockHash:       block.Hash,
		FilePath:        block.Source.FilePath,
		CommitID:        block.Source.CommitID,
		PreviousHash:    block.PreviousHash,
		CommitURL:       block.Source.CommitURL,
		SourceURL:       block.Source.SourceURL,
		CommitActor:     block.Source.CommitActor,
		CommitTimestamp: block.Source.CommitTimestamp,
		Timestamp:       block.Timestamp,
		Changes:         make([]models.AuditChange, 0, len(block.Changes)),
		RepositoryID:    repositoryID,
		SnapshotID:      uint(block.SnapshotID), //nolint:gosec
		Height:          block.Height,
		AddedCount:      added,
		RemovedCount:    removed,
		ChangedCount:    changed,
	}
	for _, change := range block.Changes {
		row.Changes = append(row.Changes, models.AuditChange{
			Action:     string(change.Action),
			Handle:     change.Handle,
			OldType:    typeToString(change.BeforeType),
			NewType:    typeToString(change.AfterType),
			OldDetails: change.BeforeDetails,
			NewDetails: change.AfterDetails,
		})
	}
	return row
}

func blockFromModel(repoSlug string, row *models.AuditBlock) Block {
	block := Block{
		RepoSlug:     repoSlug,
		Height:       row.Height,
		PreviousHash: row.PreviousHash,
		SnapshotID:   uint64(row.SnapshotID),
		Timestamp:    row.Timestamp,
		Source: BlockSource{
			FilePath:        row.FilePath,
			CommitID:        row.CommitID,
			CommitURL:       row.CommitURL,
			SourceURL:       row.SourceURL,
			CommitActor:     row.CommitActor,
			CommitTimestamp: row.CommitTimestamp,
		},
		Changes: make([]Change, 0, len(row.Changes)),
		Hash:    row.BlockHash,
	}
	for _, change := range row.Changes {
		block.Changes = append(block.Changes, Change{
			Handle:        change.Handle,
			Action:        ChangeAction(change.Action),
			BeforeType:    stringToType(change.OldType),
			AfterType:     stringToType(change.NewType),
			BeforeDetails: change.OldDetails,
			AfterDetails:  change.NewDetails,
		})
	}
	return block
}

func stringToType(value *string) *trustdown.EntryType {
	if value == nil {
		return nil
	}
	ret := trustdown.EntryType(*value)
	return &ret
}

func countChanges(changes []Change) (added, removed, changed int) {
	for _, change := range changes {
		switch change.Action {
		case ChangeActionAdded:
			added++
		case ChangeActionRemoved:
			removed++
		case ChangeActionChanged:
			changed++
		}
	}
	return added, removed, changed
}
