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

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot records the currently indexed trust-list file for a repository.
// There is exactly one row per repository, overwritten in place on each
// successful reindex. History lives in the audit chain, not here.
type Snapshot struct {
	CommitID     string `gorm:"size:255;not null"`
	FilePath     string `gorm:"size:255;not null"`
	IndexedAt    time.Time
	ID           uint `gorm:"primarykey"`
	RepositoryID uint `gorm:"uniqueIndex;not null"`
}

func (Snapshot) TableName() string {
	return "snapshot"
}
