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

package sqlite

import (
	"errors"

	"github.com/openvouch/vouchd/database/models"
	"gorm.io/gorm"
)

// GetSnapshot returns the current snapshot for the given repository
func (d *MetadataStoreSqlite) GetSnapshot(
	repositoryID uint,
	txn *gorm.DB,
) (*models.Snapshot, error) {
	ret := &models.Snapshot{}
	result := d.resolveDB(txn).
		First(ret, "repository_id = ?", repositoryID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrSnapshotNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetSnapshot inserts the snapshot, or overwrites the existing snapshot
// for the same repository in place. Each repository keeps at most one
// snapshot row.
func (d *MetadataStoreSqlite) SetSnapshot(
	snapshot *models.Snapshot,
	txn *gorm.DB,
) error {
	db := d.resolveDB(txn)
	existing := &models.Snapshot{}
	result := db.First(existing, "repository_id = ?", snapshot.RepositoryID)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := db.Create(snapshot); result.Error != nil {
			return result.Error
		}
		return nil
	}
	snapshot.ID = existing.ID
	if result := db.Save(snapshot); result.Error != nil {
		return result.Error
	}
	return nil
}
