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
	"errors"
	"fmt"
	"time"

	"github.com/openvouch/vouchd/database/types"
)

// LockRecord is an advisory per-repository indexing lock stored in the blob
// store. A record past its expiry is treated as absent, so a crashed holder
// never wedges the repository.
type LockRecord struct {
	Owner     string
	ExpiresAt time.Time
}

// Expired returns whether the lock has passed its expiry at the given time
func (l LockRecord) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// RateBucket is a fixed-window request counter stored in the blob store.
// WindowStart is the unix-milliseconds timestamp of the window the count
// belongs to; a bucket from an earlier window is reset rather than read.
type RateBucket struct {
	WindowStart int64
	Count       uint64
}

func encodeLockRecord(lock LockRecord) []byte {
	ret := types.Uint64ToBytes(uint64(lock.ExpiresAt.UnixMilli())) //nolint:gosec
	ret = append(ret, []byte(lock.Owner)...)
	return ret
}

func decodeLockRecord(data []byte) (LockRecord, error) {
	if len(data) < 8 {
		return LockRecord{}, fmt.Errorf(
			"lock record too short: %d bytes",
			len(data),
		)
	}
	return LockRecord{
		ExpiresAt: time.UnixMilli(int64(types.BytesToUint64(data[:8]))), //nolint:gosec
		Owner:     string(data[8:]),
	}, nil
}

func encodeRateBucket(bucket RateBucket) []byte {
	ret := types.Uint64ToBytes(uint64(bucket.WindowStart)) //nolint:gosec
	ret = append(ret, types.Uint64ToBytes(bucket.Count)...)
	return ret
}

func decodeRateBucket(data []byte) (RateBucket, error) {
	if len(data) < 16 {
		return RateBucket{}, fmt.Errorf(
			"rate bucket too short: %d bytes",
			len(data),
		)
	}
	return RateBucket{
		WindowStart: int64(types.BytesToUint64(data[:8])), //nolint:gosec
		Count:       types.BytesToUint64(data[8:16]),
	}, nil
}

// GetLock returns the lock record for a repository, or nil when no lock is
// held. Expiry is not checked here; callers decide what a stale lock means.
func (d *Database) GetLock(repoSlug string, txn *Txn) (*LockRecord, error) {
	if txn == nil {
		txn = NewBlobOnlyTxn(d, false)
		defer txn.Commit() //nolint:errcheck
	}
	data, err := d.blob.Get(txn.Blob(), types.LockKey(repoSlug))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	lock, err := decodeLockRecord(data)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// SetLock writes the lock record for a repository
func (d *Database) SetLock(
	repoSlug string,
	lock LockRecord,
	txn *Txn,
) error {
	owned := false
	if txn == nil {
		txn = NewBlobOnlyTxn(d, true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := d.blob.Set(
		txn.Blob(),
		types.LockKey(repoSlug),
		encodeLockRecord(lock),
	); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// DeleteLock removes the lock record for a repository. Deleting an absent
// lock is not an error.
func (d *Database) DeleteLock(repoSlug string, txn *Txn) error {
	owned := false
	if txn == nil {
		txn = NewBlobOnlyTxn(d, true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := d.blob.Delete(txn.Blob(), types.LockKey(repoSlug)); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// GetRateBucket returns the counter for a scope and bucket key, or nil when
// no requests have been counted yet
func (d *Database) GetRateBucket(
	scope string,
	bucketKey string,
	txn *Txn,
) (*RateBucket, error) {
	if txn == nil {
		txn = NewBlobOnlyTxn(d, false)
		defer txn.Commit() //nolint:errcheck
	}
	data, err := d.blob.Get(txn.Blob(), types.RateBucketKey(scope, bucketKey))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	bucket, err := decodeRateBucket(data)
	if err != nil {
		return nil, err
	}
	return &bucket, nil
}

// SetRateBucket writes the counter for a scope and bucket key
func (d *Database) SetRateBucket(
	scope string,
	bucketKey string,
	bucket RateBucket,
	txn *Txn,
) error {
	owned := false
	if txn == nil {
		txn = NewBlobOnlyTxn(d, true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	if err := d.blob.Set(
		txn.Blob(),
		types.RateBucketKey(scope, bucketKey),
		encodeRateBucket(bucket),
	); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}
