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

// GetAuditTip returns the highest audit block for the given repository,
// or nil when the repository has no blocks yet
func (d *MetadataStoreSqlite) GetAuditTip(
	repositoryID uint,
	txn *gorm.DB,
) (*models.AuditBlock, error) {
	ret := &models.AuditBlock{}
	result := d.resolveDB(txn).
		Where("repository_id = ?", repositoryID).
		Order("height DESC").
		First(ret)
	if result.Error != nil {
		// It's not an error if there's no records found
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetAuditBlock returns the audit block at the given height for the given
// repository, with its changes preloaded
func (d *MetadataStoreSqlite) GetAuditBlock(
	repositoryID uint,
	height uint64,
	txn *gorm.DB,
) (*models.AuditBlock, error) {
	ret := &models.AuditBlock{}
	result := d.resolveDB(txn).
		Preload("Changes", func(db *gorm.DB) *gorm.DB {
			return db.Order("audit_change.id ASC")
		}).
		Where("repository_id = ? AND height = ?", repositoryID, height).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrAuditBlockNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetAuditBlocks returns audit blocks for the given repository in height
// order starting at fromHeight, with their changes preloaded. A count of
// zero or less returns all remaining blocks.
func (d *MetadataStoreSqlite) GetAuditBlocks(
	repositoryID uint,
	fromHeight uint64,
	count int,
	txn *gorm.DB,
) ([]models.AuditBlock, error) {
	var ret []models.AuditBlock
	query := d.resolveDB(txn).
		Preload("Changes", func(db *gorm.DB) *gorm.DB {
			return db.Order("audit_change.id ASC")
		}).
		Where("repository_id = ? AND height >= ?", repositoryID, fromHeight).
		Order("height ASC")
	if count > 0 {
		query = query.Limit(count)
	}
	result := query.Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AddAuditBlock appends an audit block and its changes
func (d *MetadataStoreSqlite) AddAuditBlock(
	block *models.AuditBlock,
	txn *gorm.DB,
) error {
	result := d.resolveDB(txn).Create(block)
	return result.Error
}
