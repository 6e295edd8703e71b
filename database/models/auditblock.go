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

package models

import (
	"errors"
	"time"
)

var ErrAuditBlockNotFound = errors.New("audit block not found")

// Audit change actions
const (
	AuditActionAdded   = "added"
	AuditActionRemoved = "removed"
	AuditActionChanged = "changed"
)

// AuditBlock is one link in a repository's append-only audit chain. Height
// starts at 1 and increases by exactly 1 per block; PreviousHash is null
// only for the genesis block. BlockHash is reproducible from the stored
// fields, which is what makes the chain tamper-evident.
type AuditBlock struct {
	BlockHash       string  `gorm:"size:64;not null"`
	FilePath        string  `gorm:"size:255;not null"`
	CommitID        string  `gorm:"size:255;not null"`
	PreviousHash    *string `gorm:"size:64"`
	CommitURL       *string `gorm:"size:512"`
	SourceURL       *string `gorm:"size:512"`
	CommitActor     *string `gorm:"size:255"`
	CommitTimestamp *time.Time
	Timestamp       time.Time
	Changes         []AuditChange `gorm:"foreignKey:AuditBlockID;constraint:OnDelete:CASCADE"`
	ID              uint          `gorm:"primarykey"`
	RepositoryID    uint          `gorm:"index;uniqueIndex:idx_audit_block_repo_height,priority:1;not null"`
	PreviousID      *uint
	SnapshotID      uint
	Height          uint64 `gorm:"uniqueIndex:idx_audit_block_repo_height,priority:2;not null"`
	AddedCount      int
	RemovedCount    int
	ChangedCount    int
}

func (AuditBlock) TableName() string {
	return "audit_block"
}

// AuditChange is one changed handle within an audit block. Rows are
// written once and never mutated. For added entries the old fields are
// null, for removed entries the new fields are null, and for changed
// entries both sides are populated.
type AuditChange struct {
	Action       string  `gorm:"size:16;not null"`
	Handle       string  `gorm:"size:255;not null"`
	OldType      *string `gorm:"size:16"`
	NewType      *string `gorm:"size:16"`
	OldDetails   *string `gorm:"size:1024"`
	NewDetails   *string `gorm:"size:1024"`
	ID           uint    `gorm:"primarykey"`
	AuditBlockID uint    `gorm:"index;not null"`
}

func (AuditChange) TableName() string {
	return "audit_change"
}
