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

package event

import "time"

// IndexCompletedEventType is the event type for successful index runs
const IndexCompletedEventType = EventType("index.completed")

// IndexCompletedEvent is emitted after an index run finishes successfully,
// whether it applied changes or short-circuited on an unchanged trust list.
type IndexCompletedEvent struct {
	// RepoSlug is the normalized slug of the indexed repository
	RepoSlug string
	// FilePath is the repo-relative path of the trust-list file that was read
	FilePath string
	// CommitID is the commit the trust list was read at
	CommitID string
	// EntriesIndexed is the number of entries stored after reconciliation
	EntriesIndexed int
	// ChangesDetected is the number of adds, removes, and changes applied
	ChangesDetected int
	// AuditHeight is the audit chain tip height after the run
	AuditHeight uint64
	// SkippedNoChanges is true when the run short-circuited because the
	// commit and file path matched the previous snapshot
	SkippedNoChanges bool
	// Timestamp is when the run finished
	Timestamp time.Time
}

// IndexFailedEventType is the event type for failed index runs
const IndexFailedEventType = EventType("index.failed")

// IndexFailedEvent is emitted when an index run fails before its changes
// are committed.
type IndexFailedEvent struct {
	// RepoSlug is the normalized slug of the repository being indexed
	RepoSlug string
	// Status is the failure classification (not_found, upstream_error,
	// conflict, rate_limited, invalid_input)
	Status string
	// Message is a human-readable description of the failure
	Message string
	// Timestamp is when the run failed
	Timestamp time.Time
}

// BlockAddedEventType is the event type for newly appended audit blocks
const BlockAddedEventType = EventType("auditchain.block.added")

// BlockAddedEvent is emitted when a new block is appended to a repository's
// audit chain. This event is published after the block has been committed,
// so subscribers always observe a durable block.
type BlockAddedEvent struct {
	// RepoSlug is the repository whose chain grew
	RepoSlug string
	// Height is the height of the new block
	Height uint64
	// BlockHash is the lowercase hex hash of the new block
	BlockHash string
	// Added is the number of entries added in this block
	Added int
	// Removed is the number of entries removed in this block
	Removed int
	// Changed is the number of entries whose type or details changed
	Changed int
	// Timestamp is when the block was built
	Timestamp time.Time
}
