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

// Package leaderboard maintains the materialized cross-repository aggregate
// of vouch and denounce counts per handle. Steady-state updates are driven
// purely by audit change lists, so each indexing run costs O(changes)
// instead of a full rescan; Rebuild exists as an out-of-band repair path.
package leaderboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/openvouch/vouchd/auditchain"
	"github.com/openvouch/vouchd/database"
	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/trustdown"
)

// Delta is the per-handle count adjustment derived from an audit block's
// change list
type Delta struct {
	Vouched      int
	Denounced    int
	Repositories int
}

func (d *Delta) addType(entryType *trustdown.EntryType, n int) {
	if entryType == nil {
		return
	}
	switch *entryType {
	case trustdown.EntryTypeVouch:
		d.Vouched += n
	case trustdown.EntryTypeDenounce:
		d.Denounced += n
	}
}

// Deltas folds an audit change list into per-handle deltas. An added
// handle counts toward its new type and toward the repository count, a
// removed handle reverses both, and a type change moves one count between
// the type counters without touching the repository count. The diff
// algorithm emits at most one change per handle per block, but deltas are
// summed per handle anyway.
func Deltas(changes []auditchain.Change) map[string]Delta {
	deltas := make(map[string]Delta, len(changes))
	for _, change := range changes {
		delta := deltas[change.Handle]
		switch change.Action {
		case auditchain.ChangeActionAdded:
			delta.addType(change.AfterType, 1)
			delta.Repositories++
		case auditchain.ChangeActionRemoved:
			delta.addType(change.BeforeType, -1)
			delta.Repositories--
		case auditchain.ChangeActionChanged:
			delta.addType(change.BeforeType, -1)
			delta.addType(change.AfterType, 1)
		}
		deltas[change.Handle] = delta
	}
	return deltas
}

// Aggregator applies audit-diff deltas to the stored leaderboard
type Aggregator struct {
	logger *slog.Logger
	db     *database.Database
}

// NewAggregator creates an Aggregator over the given database
func NewAggregator(
	logger *slog.Logger,
	db *database.Database,
) *Aggregator {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Aggregator{
		logger: logger,
		db:     db,
	}
}

// Apply folds an audit change list into the materialized rows. With a
// caller-supplied transaction it runs inside that transaction, so the
// aggregate moves atomically with the entry writes that produced the
// changes. Counters clamp at zero, and a row is deleted the moment it no
// longer counts a repository or has neither vouches nor denounces.
func (a *Aggregator) Apply(
	ctx context.Context,
	changes []auditchain.Change,
	txn *database.Txn,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deltas := Deltas(changes)
	if len(deltas) == 0 {
		return nil
	}
	owned := false
	if txn == nil {
		txn = a.db.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	handles := make([]string, 0, len(deltas))
	for handle := range deltas {
		handles = append(handles, handle)
	}
	// Deterministic write order keeps concurrent transactions from
	// deadlocking on row locks
	sort.Strings(handles)
	for _, handle := range handles {
		if err := a.applyDelta(handle, deltas[handle], txn); err != nil {
			return err
		}
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) applyDelta(
	handle string,
	delta Delta,
	txn *database.Txn,
) error {
	row, err := a.db.GetLeaderboardRow(handle, txn)
	exists := true
	if err != nil {
		if !errors.Is(err, models.ErrLeaderboardRowNotFound) {
			return err
		}
		exists = false
		row = &models.LeaderboardRow{
			Handle: handle,
		}
	}
	row.Vouched = clampZero(row.Vouched + delta.Vouched)
	row.Denounced = clampZero(row.Denounced + delta.Denounced)
	row.Repositories = clampZero(row.Repositories + delta.Repositories)
	if row.Repositories == 0 || (row.Vouched == 0 && row.Denounced == 0) {
		if !exists {
			return nil
		}
		a.logger.Debug(
			"deleting decayed leaderboard row",
			"component", "leaderboard",
			"handle", handle,
		)
		return a.db.DeleteLeaderboardRow(handle, txn)
	}
	row.Score = row.Vouched - row.Denounced
	return a.db.SetLeaderboardRow(row, txn)
}

// Rebuild recomputes every row from the live entry set: delete all rows,
// scan each repository's entries, and regroup by handle. This is the
// repair path for aggregate drift and never part of steady-state indexing;
// callers run it alone.
func (a *Aggregator) Rebuild(ctx context.Context, txn *database.Txn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owned := false
	if txn == nil {
		txn = a.db.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := a.db.DeleteAllLeaderboardRows(txn); err != nil {
		return err
	}
	entries, err := a.db.GetAllEntries(txn)
	if err != nil {
		return err
	}
	type group struct {
		repos     map[uint]struct{}
		vouched   int
		denounced int
	}
	groups := map[string]*group{}
	for i := range entries {
		entry := &entries[i]
		g, ok := groups[entry.Handle]
		if !ok {
			g = &group{
				repos: map[uint]struct{}{},
			}
			groups[entry.Handle] = g
		}
		switch entry.Type {
		case models.EntryTypeVouch:
			g.vouched++
		case models.EntryTypeDenounce:
			g.denounced++
		}
		g.repos[entry.RepositoryID] = struct{}{}
	}
	handles := make([]string, 0, len(groups))
	for handle := range groups {
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	written := 0
	for _, handle := range handles {
		g := groups[handle]
		// Entries with an unknown type count toward neither side; a group
		// with no countable entries gets no row
		if g.vouched == 0 && g.denounced == 0 {
			continue
		}
		row := &models.LeaderboardRow{
			Handle:       handle,
			Vouched:      g.vouched,
			Denounced:    g.denounced,
			Repositories: len(g.repos),
			Score:        g.vouched - g.denounced,
		}
		if err := a.db.SetLeaderboardRow(row, txn); err != nil {
			return err
		}
		written++
	}
	a.logger.Info(
		"rebuilt leaderboard",
		"component", "leaderboard",
		"entries", len(entries),
		"rows", written,
	)
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Top returns the highest-scoring rows, score descending with handle
// ascending as the tie-break. A limit of zero or less returns every row.
func (a *Aggregator) Top(
	limit int,
	txn *database.Txn,
) ([]models.LeaderboardRow, error) {
	return a.db.GetLeaderboardTop(limit, txn)
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
