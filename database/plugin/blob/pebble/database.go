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

package pebble

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	pebble "github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/openvouch/vouchd/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

// BlobStorePebble stores guard state and archived trust-list content in
// pebble. Data may not be persisted when no data directory is configured.
type BlobStorePebble struct {
	promRegistry prometheus.Registerer
	db           *pebble.DB
	logger       *slog.Logger
	dataDir      string
	cacheSize    uint64
	syncWrites   bool
}

// New creates a new database
func New(opts ...BlobStorePebbleOptionFunc) (*BlobStorePebble, error) {
	db := &BlobStorePebble{
		// Set defaults
		cacheSize:  DefaultCacheSize,
		syncWrites: true,
	}
	for _, opt := range opts {
		opt(db)
	}

	pebbleOpts := &pebble.Options{
		Logger: NewPebbleLogger(db.logger),
	}
	if db.cacheSize > 0 {
		cache := pebble.NewCache(int64(db.cacheSize)) //nolint:gosec // cacheSize is controlled and reasonable
		pebbleOpts.Cache = cache
		// The DB holds its own reference after Open
		defer cache.Unref()
	}

	var blobDir string
	if db.dataDir == "" {
		// No dataDir, use in-memory config
		pebbleOpts.FS = vfs.NewMem()
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(db.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			// Create data directory
			if err := os.MkdirAll(db.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		blobDir = filepath.Join(
			db.dataDir,
			"blob",
		)
	}
	blobDb, err := pebble.Open(blobDir, pebbleOpts)
	if err != nil {
		return nil, err
	}
	db.db = blobDb
	if err := db.init(); err != nil {
		return db, err
	}
	return db, nil
}

func (d *BlobStorePebble) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure metrics
	if d.promRegistry != nil {
		d.registerBlobMetrics()
	}
	return nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStorePebble) Start() error {
	// Database is already started in New(), so this is a no-op
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStorePebble) Stop() error {
	return d.Close()
}

// Close gets the database handle from our BlobStore and closes it
func (d *BlobStorePebble) Close() error {
	db := d.DB()
	return db.Close()
}

// DB returns the database handle
func (d *BlobStorePebble) DB() *pebble.DB {
	return d.db
}

// writeOptions returns the pebble write options matching the configured
// durability mode
func (d *BlobStorePebble) writeOptions() *pebble.WriteOptions {
	if d.syncWrites {
		return pebble.Sync
	}
	return pebble.NoSync
}

// NewTransaction creates a new pebble transaction. Read-write transactions
// are backed by an indexed batch so reads observe earlier writes in the same
// transaction, and read-only transactions are backed by a snapshot.
func (d *BlobStorePebble) NewTransaction(readWrite bool) types.Txn {
	if readWrite {
		return newPebbleTxn(d, d.DB().NewIndexedBatch(), nil)
	}
	return newPebbleTxn(d, nil, d.DB().NewSnapshot())
}

// Get retrieves a value from pebble within a transaction
func (d *BlobStorePebble) Get(
	txn types.Txn,
	key []byte,
) ([]byte, error) {
	pebbleTxn, err := d.validateTxn(txn)
	if err != nil {
		return nil, err
	}
	val, closer, err := pebbleTxn.reader().Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	// The returned value is only valid until closer is closed
	ret := make([]byte, len(val))
	copy(ret, val)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Set stores a key-value pair in pebble within a transaction
func (d *BlobStorePebble) Set(txn types.Txn, key, val []byte) error {
	pebbleTxn, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if pebbleTxn.batch == nil {
		return ErrReadOnlyTxn
	}
	return pebbleTxn.batch.Set(key, val, nil)
}

// Delete removes a key from pebble within a transaction
func (d *BlobStorePebble) Delete(txn types.Txn, key []byte) error {
	pebbleTxn, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if pebbleTxn.batch == nil {
		return ErrReadOnlyTxn
	}
	return pebbleTxn.batch.Delete(key, nil)
}

// NewIterator creates an iterator for pebble within a transaction. Prefix
// iteration is implemented with key bounds derived from the prefix.
func (d *BlobStorePebble) NewIterator(
	txn types.Txn,
	opts types.BlobIteratorOptions,
) types.BlobIterator {
	pebbleTxn, err := d.validateTxn(txn)
	if err != nil {
		return &errorIterator{err: err}
	}
	iterOpts := &pebble.IterOptions{}
	if len(opts.Prefix) > 0 {
		iterOpts.LowerBound = opts.Prefix
		iterOpts.UpperBound = prefixUpperBound(opts.Prefix)
	}
	iter, err := pebbleTxn.reader().NewIter(iterOpts)
	if err != nil {
		return &errorIterator{err: err}
	}
	return &pebbleIterator{iter: iter, reverse: opts.Reverse}
}

// prefixUpperBound returns the smallest key greater than all keys with the
// given prefix, or nil when no such bound exists
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[: i+1 : i+1]
		}
	}
	// Prefix is all 0xff bytes
	return nil
}
