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
	"errors"

	"github.com/openvouch/vouchd/database/models"
	"gorm.io/gorm"
)

// GetRepository returns the repository with the given slug
func (d *MetadataStoreMysql) GetRepository(
	slug string,
	txn *gorm.DB,
) (*models.Repository, error) {
	ret := &models.Repository{}
	result := d.resolveDB(txn).
		First(ret, "slug = ?", slug)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrRepositoryNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetRepositoryByID returns the repository with the given row ID
func (d *MetadataStoreMysql) GetRepositoryByID(
	id uint,
	txn *gorm.DB,
) (*models.Repository, error) {
	ret := &models.Repository{}
	result := d.resolveDB(txn).
		First(ret, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrRepositoryNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// ListRepositories returns all known repositories ordered by slug
func (d *MetadataStoreMysql) ListRepositories(
	txn *gorm.DB,
) ([]models.Repository, error) {
	var ret []models.Repository
	result := d.resolveDB(txn).
		Order("slug ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}


// ListRepositoriesByLastAttempt returns up to limit repositories ordered
// by least-recently-attempted first
func (d *MetadataStoreMysql) ListRepositoriesByLastAttempt(
	limit int,
	txn *gorm.DB,
) ([]models.Repository, error) {
	var ret []models.Repository
	result := d.resolveDB(txn).
		Order("last_attempt_at ASC").
		Limit(limit).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// SetRepository inserts the repository, or updates the existing record
// with the same slug. The record's row ID is populated on return.
func (d *MetadataStoreMysql) SetRepository(
	repo *models.Repository,
	txn *gorm.DB,
) error {
	db := d.resolveDB(txn)
	existing := &models.Repository{}
	result := db.First(existing, "slug = ?", repo.Slug)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := db.Create(repo); result.Error != nil {
			return result.Error
		}
		return nil
	}
	repo.ID = existing.ID
	if result := db.Save(repo); result.Error != nil {
		return result.Error
	}
	return nil
}
