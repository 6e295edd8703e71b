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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/openvouch/vouchd/database/plugin/archive"
	"github.com/openvouch/vouchd/database/types"
)

// archiveFetchTimeout bounds off-site archive reads issued from the local
// read path
const archiveFetchTimeout = 30 * time.Second

// ArchivePut stores a zstd-compressed copy of a trust-list file keyed by
// repository and source commit. Archived files are immutable; writing the
// same commit twice overwrites with identical content.
func (d *Database) ArchivePut(
	repoSlug string,
	commitID string,
	content []byte,
	txn *Txn,
) error {
	owned := false
	if txn == nil {
		txn = NewBlobOnlyTxn(d, true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	compressed := enc.EncodeAll(content, nil)
	enc.Close() //nolint:errcheck
	key := types.ArchiveKey(repoSlug, commitID)
	if err := d.blob.Set(txn.Blob(), key, compressed); err != nil {
		return err
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveUpload copies an archived file to the off-site archive store. It
// is a no-op when no off-site archive is configured. Archives are
// immutable, so an object that already exists is not uploaded again.
func (d *Database) ArchiveUpload(
	ctx context.Context,
	repoSlug string,
	commitID string,
	content []byte,
) error {
	if d.archive == nil {
		return nil
	}
	key := string(types.ArchiveKey(repoSlug, commitID))
	exists, err := d.archive.ObjectExists(ctx, key)
	if err != nil {
		return fmt.Errorf("checking off-site archive: %w", err)
	}
	if exists {
		return nil
	}
	if err := d.archive.PutObject(ctx, key, content); err != nil {
		return fmt.Errorf("uploading to off-site archive: %w", err)
	}
	return nil
}

// ArchiveGet returns the decompressed trust-list file archived for a
// repository at a source commit. A missing archive returns
// types.ErrBlobKeyNotFound.
func (d *Database) ArchiveGet(
	repoSlug string,
	commitID string,
	txn *Txn,
) ([]byte, error) {
	key := types.ArchiveKey(repoSlug, commitID)
	// Archives are immutable once written, so a cache hit never goes stale
	if d.archiveCache != nil {
		if content, ok := d.archiveCache.Get(key); ok {
			return content, nil
		}
	}
	if txn == nil {
		txn = NewBlobOnlyTxn(d, false)
		defer txn.Commit() //nolint:errcheck
	}
	compressed, err := d.blob.Get(txn.Blob(), key)
	if err != nil {
		// Fall back to the off-site archive when the local copy is gone
		if errors.Is(err, types.ErrBlobKeyNotFound) && d.archive != nil {
			return d.archiveFetch(repoSlug, commitID)
		}
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()
	content, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing archived file: %w", err)
	}
	if d.archiveCache != nil {
		d.archiveCache.Put(key, content)
	}
	return content, nil
}

// archiveFetch reads an archived file from the off-site store. Off-site
// copies hold the raw file, so no decompression is needed.
func (d *Database) archiveFetch(
	repoSlug string,
	commitID string,
) ([]byte, error) {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		archiveFetchTimeout,
	)
	defer cancel()
	key := types.ArchiveKey(repoSlug, commitID)
	content, err := d.archive.GetObject(ctx, string(key))
	if err != nil {
		if errors.Is(err, archive.ErrObjectNotFound) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, fmt.Errorf("fetching off-site archive: %w", err)
	}
	if d.archiveCache != nil {
		d.archiveCache.Put(key, content)
	}
	return content, nil
}
