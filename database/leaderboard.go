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

package database

import (
	"github.com/openvouch/vouchd/database/models"
)

// GetLeaderboardRow returns the leaderboard aggregate for a handle
func (d *Database) GetLeaderboardRow(
	handle string,
	txn *Txn,
) (*models.LeaderboardRow, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetLeaderboardRow(handle, txn.Metadata())
}

// GetLeaderboardTop returns leaderboard rows ordered by score descending
// with handle as the tie-break. A limit of zero or less returns all rows.
func (d *Database) GetLeaderboardTop(
	limit int,
	txn *Txn,
) ([]models.LeaderboardRow, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetLeaderboardTop(limit, txn.Metadata())
}

// SetLeaderboardRow creates or updates the aggregate row for row.Handle
func (d *Database) SetLeaderboardRow(
	row *models.LeaderboardRow,
	txn *Txn,
) error {
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := d.metadata.SetLeaderboardRow(row, txn.Metadata()); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteLeaderboardRow removes the aggregate row for a handle
func (d *Database) DeleteLeaderboardRow(handle string, txn *Txn) error {
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := d.metadata.DeleteLeaderboardRow(handle, txn.Metadata()); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAllLeaderboardRows clears the leaderboard ahead of a full rebuild
func (d *Database) DeleteAllLeaderboardRows(txn *Txn) error {
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := d.metadata.DeleteAllLeaderboardRows(txn.Metadata()); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}
