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
	"slices"

	"github.com/openvouch/vouchd/trustdown"
)

// Audit change actions
type ChangeAction string

const (
	ChangeActionAdded   ChangeAction = "added"
	ChangeActionRemoved ChangeAction = "removed"
	ChangeActionChanged ChangeAction = "changed"
)

// EntryState is the view of a single trust entry that the diff compares:
// its handle, type, and optional details. Callers pass nil Details for
// entries without details, never an empty string.
type EntryState struct {
	Details *string
	Handle  string
	Type    trustdown.EntryType
}

// Change records what happened to one handle between two entry sets.
// Added changes carry only the after side, removed changes only the
// before side, and changed changes both.
type Change struct {
	Handle        string
	Action        ChangeAction
	BeforeType    *trustdown.EntryType
	AfterType     *trustdown.EntryType
	BeforeDetails *string
	AfterDetails  *string
}

// Diff classifies every handle present in either entry set as added,
// removed, or changed. Unchanged handles produce nothing. Output is
// ordered by handle ascending, matching the parser's canonical order, so
// the result is deterministic regardless of input order.
func Diff(before, after []EntryState) []Change {
	beforeByHandle := make(map[string]EntryState, len(before))
	for _, entry := range before {
		beforeByHandle[entry.Handle] = entry
	}
	afterByHandle := make(map[string]EntryState, len(after))
	for _, entry := range after {
		afterByHandle[entry.Handle] = entry
	}
	handles := make([]string, 0, len(beforeByHandle)+len(afterByHandle))
	for handle := range beforeByHandle {
		handles = append(handles, handle)
	}
	for handle := range afterByHandle {
		if _, ok := beforeByHandle[handle]; !ok {
			handles = append(handles, handle)
		}
	}
	slices.Sort(handles)
	var changes []Change
	for _, handle := range handles {
		oldEntry, inBefore := beforeByHandle[handle]
		newEntry, inAfter := afterByHandle[handle]
		switch {
		case !inBefore:
			changes = append(changes, Change{
				Handle:       handle,
				Action:       ChangeActionAdded,
				AfterType:    &newEntry.Type,
				AfterDetails: newEntry.Details,
			})
		case !inAfter:
			changes = append(changes, Change{
				Handle:        handle,
				Action:        ChangeActionRemoved,
				BeforeType:    &oldEntry.Type,
				BeforeDetails: oldEntry.Details,
			})
		default:
			if oldEntry.Type == newEntry.Type &&
				equalOptString(oldEntry.Details, newEntry.Details) {
				continue
			}
			changes = append(changes, Change{
				Handle:        handle,
				Action:        ChangeActionChanged,
				BeforeType:    &oldEntry.Type,
				AfterType:     &newEntry.Type,
				BeforeDetails: oldEntry.Details,
				AfterDetails:  newEntry.Details,
			})
		}
	}
	return changes
}

func equalOptString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
