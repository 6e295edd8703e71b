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

import "errors"

var ErrEntryNotFound = errors.New("entry not found")

// Entry type values
const (
	EntryTypeVouch    = "vouch"
	EntryTypeDenounce = "denounce"
)

// Entry is a single trust assertion from a repository's trust list, keyed
// by handle (platform:username, lowercased). After reconciliation there is
// at most one entry per (repository, handle); duplicates are a storage
// anomaly that the planner repairs. RepoSlug and SnapshotID are
// denormalized and self-healed by the planner when stale.
type Entry struct {
	Handle       string  `gorm:"index:idx_entry_repo_handle,priority:2;index;size:255;not null"`
	Platform     string  `gorm:"size:64;not null"`
	Username     string  `gorm:"size:255;not null"`
	Type         string  `gorm:"size:16;not null"`
	RepoSlug     string  `gorm:"size:255"`
	Details      *string `gorm:"size:1024"`
	ID           uint    `gorm:"primarykey"`
	RepositoryID uint    `gorm:"index:idx_entry_repo_handle,priority:1;index;not null"`
	SnapshotID   uint
}

func (Entry) TableName() string {
	return "entry"
}
