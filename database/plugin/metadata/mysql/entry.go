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

package mysql

import (
	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/database/plugin/metadata/importutil"
	"gorm.io/gorm"
)

// GetEntriesByRepository returns all entries for the given repository
// ordered by handle, with row ID as tie-breaker so duplicate handles
// come back in a stable order
func (d *MetadataStoreMysql) GetEntriesByRepository(
	repositoryID uint,
	txn *gorm.DB,
) ([]models.Entry, error) {
	var ret []models.Entry
	result := d.resolveDB(txn).
		Where("repository_id = ?", repositoryID).
		Order("handle ASC, id ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetEntriesByHandle returns all entries for the given handle across
// repositories
func (d *MetadataStoreMysql) GetEntriesByHandle(
	handle string,
	txn *gorm.DB,
) ([]models.Entry, error) {
	var ret []models.Entry
	result := d.resolveDB(txn).
		Where("handle = ?", handle).
		Order("repository_id ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetAllEntries returns every entry in the store
func (d *MetadataStoreMysql) GetAllEntries(
	txn *gorm.DB,
) ([]models.Entry, error) {
	var ret []models.Entry
	result := d.resolveDB(txn).
		Order("repository_id ASC, handle ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AddEntries inserts a batch of entries
func (d *MetadataStoreMysql) AddEntries(
	entries []models.Entry,
	txn *gorm.DB,
) error {
	if len(entries) == 0 {
		return nil
	}
	result := d.resolveDB(txn).
		CreateInBatches(&entries, importutil.BatchChunkSize)
	return result.Error
}

// UpdateEntry updates the mutable fields of an existing entry. A nil
// details pointer clears the stored details.
func (d *MetadataStoreMysql) UpdateEntry(
	id uint,
	entryType string,
	details *string,
	snapshotID uint,
	repoSlug string,
	txn *gorm.DB,
) error {
	// Updates with a map so a nil details pointer writes NULL instead of
	// being skipped as a zero value
	result := d.resolveDB(txn).
		Model(&models.Entry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"type":        entryType,
			"details":     details,
			"snapshot_id": snapshotID,
			"repo_slug":   repoSlug,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrEntryNotFound
	}
	return nil
}

// DeleteEntriesByID deletes the entries with the given row IDs
func (d *MetadataStoreMysql) DeleteEntriesByID(
	ids []uint,
	txn *gorm.DB,
) error {
	if len(ids) == 0 {
		return nil
	}
	db := d.resolveDB(txn)
	for _, chunk := range importutil.ChunkIDs(ids) {
		result := db.
			Where("id IN ?", chunk).
			Delete(&models.Entry{})
		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}
