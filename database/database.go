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
	"io"
	"log/slog"

	"github.com/openvouch/vouchd/database/plugin/archive"
	"github.com/openvouch/vouchd/database/plugin/blob"
	"github.com/openvouch/vouchd/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"

	// Register archive plugins
	_ "github.com/openvouch/vouchd/database/plugin/archive/gcs"
)

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
)

// Config describes how to assemble the paired blob and metadata stores
type Config struct {
	Logger         *slog.Logger
	DataDir        string
	BlobPlugin     string
	MetadataPlugin string
	// ArchivePlugin selects an off-site object store for archived files.
	// Empty disables off-site archival.
	ArchivePlugin string
	PromRegistry  prometheus.Registerer
	// ArchiveCacheBytes bounds the in-memory cache of decompressed archived
	// files. Zero disables the cache.
	ArchiveCacheBytes int64
}

type Database struct {
	logger       *slog.Logger
	blob         blob.BlobStore
	metadata     metadata.MetadataStore
	archive      archive.ArchiveStore
	dataDir      string
	archiveCache *HotCache
}

// Blob returns the underling blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	// Close metadata
	metadataErr := d.Metadata().Close()
	err = errors.Join(err, metadataErr)
	// Close blob
	blobErr := d.Blob().Close()
	err = errors.Join(err, blobErr)
	// Close off-site archive
	if d.archive != nil {
		err = errors.Join(err, d.archive.Close())
	}
	return err
}

func (d *Database) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Check commit timestamp
	if err := d.checkCommitTimestamp(); err != nil {
		return err
	}
	return nil
}

// New creates a new database instance with optional persistence using the provided data directory
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BlobPlugin == "" {
		cfg.BlobPlugin = DefaultBlobPlugin
	}
	if cfg.MetadataPlugin == "" {
		cfg.MetadataPlugin = DefaultMetadataPlugin
	}
	metadataDb, err := metadata.New(
		cfg.MetadataPlugin,
		cfg.DataDir,
		cfg.Logger,
		cfg.PromRegistry,
	)
	if err != nil {
		return nil, err
	}
	blobDb, err := blob.New(
		cfg.BlobPlugin,
		cfg.DataDir,
		cfg.Logger,
		cfg.PromRegistry,
	)
	if err != nil {
		return nil, err
	}
	db := &Database{
		logger:   cfg.Logger,
		blob:     blobDb,
		metadata: metadataDb,
		dataDir:  cfg.DataDir,
	}
	if cfg.ArchivePlugin != "" {
		archiveDb, err := archive.New(
			cfg.ArchivePlugin,
			cfg.Logger,
			cfg.PromRegistry,
		)
		if err != nil {
			return nil, err
		}
		db.archive = archiveDb
	}
	if cfg.ArchiveCacheBytes > 0 {
		db.archiveCache = NewHotCache(0, cfg.ArchiveCacheBytes)
	}
	if err := db.init(); err != nil {
		// Database is available for recovery, so return it with error
		return db, err
	}
	return db, nil
}
