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

package postgres

import (
	"errors"

	"github.com/openvouch/vouchd/database/models"
	"gorm.io/gorm"
)

// GetLeaderboardRow returns the leaderboard row for the given handle
func (d *MetadataStorePostgres) GetLeaderboardRow(
	handle string,
	txn *gorm.DB,
) (*models.LeaderboardRow, error) {
	ret := &models.LeaderboardRow{}
	result := d.resolveDB(txn).
		First(ret, "handle = ?", handle)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrLeaderboardRowNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetLeaderboardTop returns up to limit leaderboard rows ordered by
// score descending, with handle as the tie-breaker
func (d *MetadataStorePostgres) GetLeaderboardTop(
	limit int,
	txn *gorm.DB,
) ([]models.LeaderboardRow, error) {
	var ret []models.LeaderboardRow
	db := d.resolveDB(txn).
		Order("score DESC, handle ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	result := db.Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// SetLeaderboardRow inserts the leaderboard row, or updates the existing
// record with the same handle
func (d *MetadataStorePostgres) SetLeaderboardRow(
	row *models.LeaderboardRow,
	txn *gorm.DB,
) error {
	db := d.resolveDB(txn)
	existing := &models.LeaderboardRow{}
	result := db.First(existing, "handle = ?", row.Handle)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		if result := db.Create(row); result.Error != nil {
			return result.Error
		}
		return nil
	}
	row.ID = existing.ID
	if result := db.Save(row); result.Error != nil {
		return result.Error
	}
	return nil
}

// DeleteLeaderboardRow deletes the leaderboard row for the given handle
func (d *MetadataStorePostgres) DeleteLeaderboardRow(
	handle string,
	txn *gorm.DB,
) error {
	result := d.resolveDB(txn).
		Where("handle = ?", handle).
		Delete(&models.LeaderboardRow{})
	return result.Error
}

// DeleteAllLeaderboardRows deletes every leaderboard row
func (d *MetadataStorePostgres) DeleteAllLeaderboardRows(
	txn *gorm.DB,
) error {
	result := d.resolveDB(txn).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.LeaderboardRow{})
	return result.Error
}
