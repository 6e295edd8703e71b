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

var ErrRepositoryNotFound = errors.New("repository not found")

// Repository status values
const (
	RepositoryStatusNew         = "new"
	RepositoryStatusIndexed     = "indexed"
	RepositoryStatusMissingFile = "missing_file"
	RepositoryStatusMissingRepo = "missing_repo"
	RepositoryStatusError       = "error"
)

// Repository tracks every repository that has ever been submitted for
// indexing. Rows are created on the first attempt and mutated on every
// attempt after that, but never deleted.
type Repository struct {
	Slug           string `gorm:"uniqueIndex;size:255;not null"`
	DefaultBranch  string `gorm:"size:255"`
	Status         string `gorm:"size:16;not null;default:new"`
	LastError      string
	LastAttemptAt  time.Time
	ID             uint `gorm:"primarykey"`
	EntryCount     int
	VouchedCount   int
	DenouncedCount int
}

func (Repository) TableName() string {
	return "repository"
}
