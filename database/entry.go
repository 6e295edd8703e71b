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

// GetEntriesByRepository returns a repository's entries ordered by handle
func (d *Database) GetEntriesByRepository(
	repositoryID uint,
	txn *Txn,
) ([]models.Entry, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetEntriesByRepository(repositoryID, txn.Metadata())
}

// GetEntriesByHandle returns all entries for a handle across repositories
func (d *Database) GetEntriesByHandle(
	handle string,
	txn *Txn,
) ([]models.Entry, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetEntriesByHandle(handle, txn.Metadata())
}

// GetAllEntries returns every entry in the store
func (d *Database) GetAllEntries(txn *Txn) ([]models.Entry, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetAllEntries(txn.Metadata())
}

// ApplyReconcilePlan applies a reconciliation plan to a repository's entry
// set: adds are inserted in bulk, updates are written through to existing
// rows by ID, and removeIDs are deleted. All three run in a single
// transaction so a failed apply leaves the entry set untouched.
func (d *Database) ApplyReconcilePlan(
	adds []models.Entry,
	updates []models.Entry,
	removeIDs []uint,
	txn *Txn,
) error {
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if len(adds) > 0 {
		if err := d.metadata.AddEntries(adds, txn.Metadata()); err != nil {
			return err
		}
	}
	for _, update := range updates {
		if err := d.metadata.UpdateEntry(
			update.ID,
			update.Type,
			update.Details,
			update.SnapshotID,
			update.RepoSlug,
			txn.Metadata(),
		); err != nil {
			return err
		}
	}
	if len(removeIDs) > 0 {
		if err := d.metadata.DeleteEntriesByID(removeIDs, txn.Metadata()); err != nil {
			return err
		}
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}
