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

// GetAuditTip returns the highest audit block for a repository, or nil when
// the repository has no audit history yet
func (d *Database) GetAuditTip(
	repositoryID uint,
	txn *Txn,
) (*models.AuditBlock, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetAuditTip(repositoryID, txn.Metadata())
}

// GetAuditBlock returns a single audit block by repository and height with
// its changes preloaded
func (d *Database) GetAuditBlock(
	repositoryID uint,
	height uint64,
	txn *Txn,
) (*models.AuditBlock, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetAuditBlock(repositoryID, height, txn.Metadata())
}

// GetAuditBlocks returns a repository's audit chain in height order with
// changes preloaded, starting at fromHeight. A count of zero or less
// returns all remaining blocks.
func (d *Database) GetAuditBlocks(
	repositoryID uint,
	fromHeight uint64,
	count int,
	txn *Txn,
) ([]models.AuditBlock, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetAuditBlocks(
		repositoryID,
		fromHeight,
		count,
		txn.Metadata(),
	)
}

// AddAuditBlock appends a block to a repository's audit chain and populates
// block.ID. The caller is responsible for linking and height continuity.
func (d *Database) AddAuditBlock(block *models.AuditBlock, txn *Txn) error {
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := d.metadata.AddAuditBlock(block, txn.Metadata()); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}
