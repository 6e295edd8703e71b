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
	"fmt"
	"time"

	"github.com/openvouch/vouchd/auditchain"
	"github.com/openvouch/vouchd/database"
	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/event"
	"github.com/openvouch/vouchd/guard"
	"github.com/openvouch/vouchd/reconcile"
	"github.com/openvouch/vouchd/source"
	"github.com/openvouch/vouchd/trustdown"
)

// IndexRequest asks the node to (re)index one repository's trust list.
type IndexRequest struct {
	// Slug is the repository to index; it is normalized before use
	Slug string
	// Requester identifies who asked, for rate limiting
	Requester guard.Requester
	// Trusted bypasses rate limits (internal callers); the repository
	// lock still applies
	Trusted bool
	// Force disables the unchanged-content short-circuit
	Force bool
}

// IndexResult reports what a successful index run did.
type IndexResult struct {
	// Status is the repository status after the run
	Status string
	// FilePath is the repo-relative trust-list path that was read
	FilePath string
	// EntriesIndexed is the number of entries stored after reconciliation
	EntriesIndexed int
	// ChangesDetected is the number of adds, removes, and changes
	ChangesDetected int
	// AuditRecorded is true when the run appended an audit block
	AuditRecorded bool
	// AuditHeight is the audit chain tip height after the run
	AuditHeight uint64
	// SkippedNoChanges is true when the run short-circuited on an
	// unchanged trust list
	SkippedNoChanges bool
	// Message is a human-readable summary
	Message string
}

// Index runs the full indexing pipeline for one repository: acquire the
// guard, fetch the trust list, reconcile stored entries against it, and
// record the audit block, leaderboard deltas, snapshot, and archive copy
// in a single transaction.
//
// Failures return a typed error classifiable with ErrorCondition. Guard
// rejections abort before any repository write; fetch and apply failures
// are recorded on the repository row with a fresh attempt timestamp.
func (n *Node) Index(
	ctx context.Context,
	req IndexRequest,
) (*IndexResult, error) {
	start := time.Now()
	slug, err := NormalizeSlug(req.Slug)
	if err != nil {
		n.observeIndex(string(ConditionInvalidInput), start)
		return nil, err
	}
	requester := req.Requester
	requester.Trusted = requester.Trusted || req.Trusted
	lease, err := n.guard.Acquire(ctx, slug, requester)
	if err != nil {
		n.observeIndex(string(ErrorCondition(err)), start)
		return nil, err
	}
	defer func() {
		// Release must still run when the caller's context is gone;
		// otherwise the lock lingers until its TTL.
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			n.config.logger.Warn(
				"failed to release repository lock",
				"component", "indexer",
				"repo_slug", slug,
				"error", releaseErr,
			)
		}
	}()

	now := time.Now()
	repo, err := n.db.GetRepository(slug, nil)
	if err != nil {
		if !errors.Is(err, models.ErrRepositoryNotFound) {
			n.observeIndex(string(ConditionInternal), start)
			return nil, err
		}
		repo = &models.Repository{
			Slug:   slug,
			Status: models.RepositoryStatusNew,
		}
	}

	content, err := n.config.contentSource.Fetch(ctx, slug)
	if err != nil {
		return nil, n.recordFailure(repo, fetchStatus(err), err, now, start)
	}

	if !req.Force && repo.Status == models.RepositoryStatusIndexed {
		result, err := n.skipUnchanged(repo, content, now, start)
		if err != nil || result != nil {
			return result, err
		}
	}

	parsed := trustdown.Parse(content.Text)

	var (
		block   *auditchain.Block
		changes []auditchain.Change
		height  uint64
	)
	txn := n.db.Transaction(true)
	err = txn.Do(func(txn *database.Txn) error {
		repo.LastAttemptAt = now
		if err := n.db.SetRepository(repo, txn); err != nil {
			return err
		}
		snapshot, err := n.db.GetSnapshot(repo.ID, txn)
		if err != nil {
			if !errors.Is(err, models.ErrSnapshotNotFound) {
				return err
			}
			snapshot = &models.Snapshot{RepositoryID: repo.ID}
		}
		snapshot.CommitID = content.CommitID
		snapshot.FilePath = content.FilePath
		snapshot.IndexedAt = now
		if err := n.db.SetSnapshot(snapshot, txn); err != nil {
			return err
		}
		storedRows, err := n.db.GetEntriesByRepository(repo.ID, txn)
		if err != nil {
			return err
		}
		stored := storedFromModels(storedRows)
		plan := reconcile.BuildPlan(stored, parsed, uint64(snapshot.ID), slug)
		if err := n.applyPlan(repo.ID, plan, txn); err != nil {
			return err
		}
		changes = auditchain.Diff(
			statesFromStored(stored),
			statesFromParsed(parsed),
		)
		tip, err := n.auditManager.Tip(slug, txn)
		if err != nil {
			return err
		}
		if tip != nil {
			height = tip.Height
		}
		if len(changes) > 0 {
			block, err = auditchain.BuildBlock(
				tip,
				uint64(snapshot.ID),
				slug,
				blockSourceFromContent(content),
				changes,
				now,
			)
			if err != nil {
				return err
			}
			if err := n.auditManager.Append(ctx, repo.ID, block, txn); err != nil {
				return err
			}
			height = block.Height
		}
		if err := n.aggregator.Apply(ctx, changes, txn); err != nil {
			return err
		}
		repo.Status = models.RepositoryStatusIndexed
		repo.LastError = ""
		repo.EntryCount = len(parsed)
		repo.VouchedCount, repo.DenouncedCount = countByType(parsed)
		if err := n.db.SetRepository(repo, txn); err != nil {
			return err
		}
		return n.db.ArchivePut(slug, content.CommitID, []byte(content.Text), txn)
	})
	if err != nil {
		return nil, n.recordApplyFailure(slug, err, now, start)
	}
	if block != nil {
		n.auditManager.NotifyAppended(block)
	}
	// Off-site archival is best-effort and must not fail the index
	if err := n.db.ArchiveUpload(
		ctx,
		slug,
		content.CommitID,
		[]byte(content.Text),
	); err != nil {
		n.config.logger.Warn(
			"off-site archive upload failed",
			"component", "indexer",
			"repo_slug", slug,
			"commit_id", content.CommitID,
			"error", err,
		)
	}
	n.publishIndexCompleted(event.IndexCompletedEvent{
		RepoSlug:        slug,
		FilePath:        content.FilePath,
		CommitID:        content.CommitID,
		EntriesIndexed:  len(parsed),
		ChangesDetected: len(changes),
		AuditHeight:     height,
		Timestamp:       now,
	})
	n.observeIndex("indexed", start)
	n.config.logger.Info(
		"indexed repository",
		"component", "indexer",
		"repo_slug", slug,
		"file_path", content.FilePath,
		"commit_id", content.CommitID,
		"entries", len(parsed),
		"changes", len(changes),
		"audit_height", height,
	)
	return &IndexResult{
		Status:          models.RepositoryStatusIndexed,
		FilePath:        content.FilePath,
		EntriesIndexed:  len(parsed),
		ChangesDetected: len(changes),
		AuditRecorded:   block != nil,
		AuditHeight:     height,
		Message: fmt.Sprintf(
			"indexed %d entries (%d changes)",
			len(parsed),
			len(changes),
		),
	}, nil
}

// skipUnchanged short-circuits the run when the fetched commit and file
// path match the stored snapshot. Only the attempt timestamp moves. A nil
// result with nil error means the run should proceed.
func (n *Node) skipUnchanged(
	repo *models.Repository,
	content *source.Content,
	now time.Time,
	start time.Time,
) (*IndexResult, error) {
	snapshot, err := n.db.GetSnapshot(repo.ID, nil)
	if err != nil {
		if errors.Is(err, models.ErrSnapshotNotFound) {
			return nil, nil
		}
		n.observeIndex(string(ConditionInternal), start)
		return nil, err
	}
	if snapshot.CommitID != content.CommitID ||
		snapshot.FilePath != content.FilePath {
		return nil, nil
	}
	repo.LastAttemptAt = now
	repo.LastError = ""
	if err := n.db.SetRepository(repo, nil); err != nil {
		n.observeIndex(string(ConditionInternal), start)
		return nil, err
	}
	var height uint64
	tip, err := n.auditManager.Tip(repo.Slug, nil)
	if err != nil {
		n.observeIndex(string(ConditionInternal), start)
		return nil, err
	}
	if tip != nil {
		height = tip.Height
	}
	n.publishIndexCompleted(event.IndexCompletedEvent{
		RepoSlug:         repo.Slug,
		FilePath:         snapshot.FilePath,
		CommitID:         snapshot.CommitID,
		EntriesIndexed:   repo.EntryCount,
		AuditHeight:      height,
		SkippedNoChanges: true,
		Timestamp:        now,
	})
	n.observeIndex("skipped", start)
	n.config.logger.Debug(
		"trust list unchanged, skipping",
		"component", "indexer",
		"repo_slug", repo.Slug,
		"commit_id", content.CommitID,
	)
	return &IndexResult{
		Status:           repo.Status,
		FilePath:         snapshot.FilePath,
		EntriesIndexed:   repo.EntryCount,
		AuditHeight:      height,
		SkippedNoChanges: true,
		Message:          "trust list unchanged",
	}, nil
}

// applyPlan converts a reconcile plan into storage operations.
func (n *Node) applyPlan(
	repositoryID uint,
	plan reconcile.Plan,
	txn *database.Txn,
) error {
	if plan.Empty() {
		return nil
	}
	adds := make([]models.Entry, 0, len(plan.Inserts))
	for _, insert := range plan.Inserts {
		adds = append(adds, models.Entry{
			Handle:       insert.Handle(),
			Platform:     insert.Platform,
			Username:     insert.Username,
			Type:         string(insert.Type),
			RepoSlug:     insert.RepoSlug,
			Details:      insert.Details,
			RepositoryID: repositoryID,
			SnapshotID:   uint(insert.SnapshotID),
		})
	}
	updates := make([]models.Entry, 0, len(plan.Patches))
	for _, patch := range plan.Patches {
		updates = append(updates, models.Entry{
			ID:         uint(patch.ID),
			Type:       string(patch.Type),
			Details:    patch.Details,
			SnapshotID: uint(patch.SnapshotID),
			RepoSlug:   patch.RepoSlug,
		})
	}
	removeIDs := make(
		[]uint,
		0,
		len(plan.DuplicateDeleteIDs)+len(plan.DeleteIDs),
	)
	for _, id := range plan.DuplicateDeleteIDs {
		removeIDs = append(removeIDs, uint(id))
	}
	for _, id := range plan.DeleteIDs {
		removeIDs = append(removeIDs, uint(id))
	}
	return n.db.ApplyReconcilePlan(adds, updates, removeIDs, txn)
}

// recordFailure persists a failed attempt on the repository row, publishes
// the failure event, and hands the original error back.
func (n *Node) recordFailure(
	repo *models.Repository,
	status string,
	cause error,
	now time.Time,
	start time.Time,
) error {
	repo.Status = status
	repo.LastError = cause.Error()
	repo.LastAttemptAt = now
	if err := n.db.SetRepository(repo, nil); err != nil {
		n.config.logger.Warn(
			"failed to record index failure",
			"component", "indexer",
			"repo_slug", repo.Slug,
			"error", err,
		)
	}
	condition := ErrorCondition(cause)
	n.publishIndexFailed(repo.Slug, condition, cause, now)
	n.observeIndex(string(condition), start)
	return cause
}

// recordApplyFailure records a failure whose transaction already rolled
// back, including the attempt bookkeeping, so the row is re-read first.
func (n *Node) recordApplyFailure(
	slug string,
	cause error,
	now time.Time,
	start time.Time,
) error {
	repo, err := n.db.GetRepository(slug, nil)
	if err != nil {
		if !errors.Is(err, models.ErrRepositoryNotFound) {
			n.config.logger.Warn(
				"failed to re-read repository after rollback",
				"component", "indexer",
				"repo_slug", slug,
				"error", err,
			)
		}
		repo = &models.Repository{
			Slug:   slug,
			Status: models.RepositoryStatusNew,
		}
	}
	return n.recordFailure(
		repo,
		models.RepositoryStatusError,
		cause,
		now,
		start,
	)
}

func (n *Node) publishIndexCompleted(evt event.IndexCompletedEvent) {
	n.eventBus.Publish(
		event.IndexCompletedEventType,
		event.NewEvent(event.IndexCompletedEventType, evt),
	)
}

func (n *Node) publishIndexFailed(
	slug string,
	condition Condition,
	cause error,
	now time.Time,
) {
	n.eventBus.Publish(
		event.IndexFailedEventType,
		event.NewEvent(
			event.IndexFailedEventType,
			event.IndexFailedEvent{
				RepoSlug:  slug,
				Status:    string(condition),
				Message:   cause.Error(),
				Timestamp: now,
			},
		),
	)
}

// fetchStatus maps a fetch error to the repository status it leaves
// behind.
func fetchStatus(err error) string {
	switch {
	case errors.Is(err, source.ErrRepositoryNotFound):
		return models.RepositoryStatusMissingRepo
	case errors.Is(err, source.ErrFileNotFound):
		return models.RepositoryStatusMissingFile
	default:
		return models.RepositoryStatusError
	}
}

func storedFromModels(rows []models.Entry) []reconcile.StoredEntry {
	stored := make([]reconcile.StoredEntry, 0, len(rows))
	for _, row := range rows {
		stored = append(stored, reconcile.StoredEntry{
			ID:         uint64(row.ID),
			Platform:   row.Platform,
			Username:   row.Username,
			Type:       trustdown.EntryType(row.Type),
			Details:    row.Details,
			SnapshotID: uint64(row.SnapshotID),
			RepoSlug:   row.RepoSlug,
		})
	}
	return stored
}

// statesFromStored collapses duplicate handles to the first-seen row,
// matching the planner's survivor rule, so the diff sees the same logical
// before-state the reconciler preserves.
func statesFromStored(stored []reconcile.StoredEntry) []auditchain.EntryState {
	seen := make(map[string]struct{}, len(stored))
	states := make([]auditchain.EntryState, 0, len(stored))
	for _, entry := range stored {
		handle := entry.Handle()
		if _, ok := seen[handle]; ok {
			continue
		}
		seen[handle] = struct{}{}
		details := entry.Details
		if details != nil && *details == "" {
			// The diff treats empty and absent details as distinct
			details = nil
		}
		states = append(states, auditchain.EntryState{
			Handle:  handle,
			Type:    entry.Type,
			Details: details,
		})
	}
	return states
}

func statesFromParsed(parsed []trustdown.Entry) []auditchain.EntryState {
	states := make([]auditchain.EntryState, 0, len(parsed))
	for _, entry := range parsed {
		states = append(states, auditchain.EntryState{
			Handle:  entry.Handle(),
			Type:    entry.Type,
			Details: optDetails(entry.Details),
		})
	}
	return states
}

func blockSourceFromContent(content *source.Content) auditchain.BlockSource {
	return auditchain.BlockSource{
		FilePath:        content.FilePath,
		CommitID:        content.CommitID,
		CommitURL:       content.CommitURL,
		SourceURL:       content.SourceURL,
		CommitActor:     content.CommitActor,
		CommitTimestamp: content.CommitTimestamp,
	}
}

func countByType(parsed []trustdown.Entry) (vouched, denounced int) {
	for _, entry := range parsed {
		switch entry.Type {
		case trustdown.EntryTypeVouch:
			vouched++
		case trustdown.EntryTypeDenounce:
			denounced++
		}
	}
	return vouched, denounced
}

func optDetails(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
