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

// GetRepository returns a repository by its slug
func (d *Database) GetRepository(
	slug string,
	txn *Txn,
) (*models.Repository, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetRepository(slug, txn.Metadata())
}

// GetRepositoryByID returns a repository by its row ID
func (d *Database) GetRepositoryByID(
	id uint,
	txn *Txn,
) (*models.Repository, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetRepositoryByID(id, txn.Metadata())
}

// ListRepositories returns all known repositories ordered by slug
func (d *Database) ListRepositories(txn *Txn) ([]models.Repository, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.ListRepositories(txn.Metadata())
}

// ListRepositoriesByLastAttempt returns up to limit repositories ordered
// by least-recently-attempted first. The reindex scheduler uses this to
// pick the stalest repositories each pass.
func (d *Database) ListRepositoriesByLastAttempt(
	limit int,
	txn *Txn,
) ([]models.Repository, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.ListRepositoriesByLastAttempt(limit, txn.Metadata())
}

// SetRepository creates or updates the repository row for repo.Slug and
// populates repo.ID
func (d *Database) SetRepository(repo *models.Repository, txn *Txn) error {
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := d.metadata.SetRepository(repo, txn.Metadata()); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}
