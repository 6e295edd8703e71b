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

// Package reconcile builds change plans that bring the stored entry set of a
// repository in line with a freshly parsed trust list. Planning is pure: it
// reads both sides and emits a Plan, and the storage layer applies it in a
// single transaction.
package reconcile

import (
	"sort"

	"github.com/openvouch/vouchd/trustdown"
)

// StoredEntry is the planner's view of an entry row
type StoredEntry struct {
	ID         uint64
	Platform   string
	Username   string
	Type       trustdown.EntryType
	Details    *string
	SnapshotID uint64
	RepoSlug   string
}

// Handle returns the canonical handle for the stored entry
func (e StoredEntry) Handle() string {
	return trustdown.Handle(e.Platform, e.Username)
}

// Patch carries the full target state for an existing entry row
type Patch struct {
	ID         uint64
	Type       trustdown.EntryType
	Details    *string
	SnapshotID uint64
	RepoSlug   string
}

// Insert carries a new entry row to create
type Insert struct {
	Platform   string
	Username   string
	Type       trustdown.EntryType
	Details    *string
	SnapshotID uint64
	RepoSlug   string
}

// Handle returns the canonical handle for the insert
func (i Insert) Handle() string {
	return trustdown.Handle(i.Platform, i.Username)
}

// Plan describes the storage operations needed to reconcile a repository's
// stored entries with a parsed trust list
type Plan struct {
	// DuplicateDeleteIDs are stored rows sharing a handle with an
	// earlier-seen row. The first-seen row survives.
	DuplicateDeleteIDs []uint64
	// DeleteIDs are surviving rows whose handle is absent from the new list
	DeleteIDs []uint64
	Patches   []Patch
	Inserts   []Insert
}

// Empty returns true when the plan contains no operations
func (p Plan) Empty() bool {
	return len(p.DuplicateDeleteIDs) == 0 &&
		len(p.DeleteIDs) == 0 &&
		len(p.Patches) == 0 &&
		len(p.Inserts) == 0
}

// BuildPlan compares stored entries against a parsed trust list and returns
// the plan that reconciles them. Stored rows sharing a handle keep only the
// first-seen row; the rest are scheduled for deletion regardless of whether
// the handle is still listed. Surviving rows are patched when their type,
// details, owning snapshot, or denormalized repo slug is stale, deleted when
// the handle is gone, and new handles become inserts carrying snapshotID and
// repoSlug. Output ordering is deterministic: ids ascending, patches and
// inserts in handle order.
func BuildPlan(
	stored []StoredEntry,
	parsed []trustdown.Entry,
	snapshotID uint64,
	repoSlug string,
) Plan {
	var ret Plan
	survivors := map[string]StoredEntry{}
	for _, entry := range stored {
		handle := entry.Handle()
		if _, ok := survivors[handle]; ok {
			ret.DuplicateDeleteIDs = append(
				ret.DuplicateDeleteIDs,
				entry.ID,
			)
			continue
		}
		survivors[handle] = entry
	}
	parsedByHandle := map[string]trustdown.Entry{}
	for _, entry := range parsed {
		parsedByHandle[entry.Handle()] = entry
	}
	survivorHandles := make([]string, 0, len(survivors))
	for handle := range survivors {
		survivorHandles = append(survivorHandles, handle)
	}
	sort.Strings(survivorHandles)
	for _, handle := range survivorHandles {
		existing := survivors[handle]
		wanted, ok := parsedByHandle[handle]
		if !ok {
			ret.DeleteIDs = append(ret.DeleteIDs, existing.ID)
			continue
		}
		wantedDetails := detailsPtr(wanted.Details)
		if existing.Type == wanted.Type &&
			detailsEqual(normalizeDetails(existing.Details), wantedDetails) &&
			existing.SnapshotID == snapshotID &&
			existing.RepoSlug == repoSlug {
			continue
		}
		ret.Patches = append(
			ret.Patches,
			Patch{
				ID:         existing.ID,
				Type:       wanted.Type,
				Details:    wantedDetails,
				SnapshotID: snapshotID,
				RepoSlug:   repoSlug,
			},
		)
	}
	// Parsed entries arrive sorted by handle, so inserts stay in handle
	// order without another sort
	for _, entry := range parsed {
		if _, ok := survivors[entry.Handle()]; ok {
			continue
		}
		ret.Inserts = append(
			ret.Inserts,
			Insert{
				Platform:   entry.Platform,
				Username:   entry.Username,
				Type:       entry.Type,
				Details:    detailsPtr(entry.Details),
				SnapshotID: snapshotID,
				RepoSlug:   repoSlug,
			},
		)
	}
	sort.Slice(ret.DuplicateDeleteIDs, func(i, j int) bool {
		return ret.DuplicateDeleteIDs[i] < ret.DuplicateDeleteIDs[j]
	})
	sort.Slice(ret.DeleteIDs, func(i, j int) bool {
		return ret.DeleteIDs[i] < ret.DeleteIDs[j]
	})
	return ret
}

func detailsPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// normalizeDetails folds empty-string details into absent
func normalizeDetails(s *string) *string {
	if s != nil && *s == "" {
		return nil
	}
	return s
}

func detailsEqual(a *string, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
