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
	"time"

	"github.com/openvouch/vouchd/database/types"
)

// ArchiveCommits returns the commit IDs with an archived trust-list file
// for a repository, in key order
func (d *Database) ArchiveCommits(
	repoSlug string,
	txn *Txn,
) ([]string, error) {
	if txn == nil {
		txn = NewBlobOnlyTxn(d, false)
		defer txn.Commit() //nolint:errcheck
	}
	prefix := []byte(types.ArchiveKeyPrefix + repoSlug + "/")
	iter := d.blob.NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{Prefix: prefix},
	)
	if iter == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	defer iter.Close()
	var commits []string
	for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
		key := iter.Item().Key()
		commits = append(commits, string(key[len(prefix):]))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return commits, nil
}

// SweepExpiredLocks deletes lock records that expired before now and
// returns how many were removed. This runs periodically so locks from
// crashed holders don't accumulate; expiry already makes them inert.
func (d *Database) SweepExpiredLocks(
	now time.Time,
	txn *Txn,
) (int, error) {
	owned := false
	if txn == nil {
		txn = NewBlobOnlyTxn(d, true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	stale, err := d.collectStaleKeys(
		txn,
		[]byte(types.LockKeyPrefix),
		func(val []byte) bool {
			lock, err := decodeLockRecord(val)
			if err != nil {
				// Undecodable records get swept rather than wedging
				// the namespace
				return true
			}
			return lock.Expired(now)
		},
	)
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if err := d.blob.Delete(txn.Blob(), key); err != nil {
			return 0, err
		}
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// SweepStaleRateBuckets deletes rate buckets whose window started before
// the cutoff and returns how many were removed. Buckets outside their
// window are already ignored by reads, so this only reclaims space.
func (d *Database) SweepStaleRateBuckets(
	cutoff time.Time,
	txn *Txn,
) (int, error) {
	owned := false
	if txn == nil {
		txn = NewBlobOnlyTxn(d, true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	stale, err := d.collectStaleKeys(
		txn,
		[]byte(types.RateBucketKeyPrefix),
		func(val []byte) bool {
			bucket, err := decodeRateBucket(val)
			if err != nil {
				return true
			}
			return bucket.WindowStart < cutoff.UnixMilli()
		},
	)
	if err != nil {
		return 0, err
	}
	for _, key := range stale {
		if err := d.blob.Delete(txn.Blob(), key); err != nil {
			return 0, err
		}
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// collectStaleKeys iterates a key namespace and returns copies of the keys
// whose values the predicate marks as stale. Keys are collected first and
// deleted by the caller once the iterator is closed, since deleting under
// an open iterator is engine-dependent.
func (d *Database) collectStaleKeys(
	txn *Txn,
	prefix []byte,
	stale func(val []byte) bool,
) ([][]byte, error) {
	iter := d.blob.NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{Prefix: prefix},
	)
	if iter == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	defer iter.Close()
	var keys [][]byte
	for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
		item := iter.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		if stale(val) {
			keys = append(keys, append([]byte(nil), item.Key()...))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
