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

package vouchd

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/openvouch/vouchd/guard"
	"github.com/openvouch/vouchd/source"
	"github.com/prometheus/client_golang/prometheus"
)

// Reindex scheduler defaults
const (
	DefaultReindexInterval  = 1 * time.Hour
	DefaultReindexBatchSize = 25
)

type Config struct {
	logger             *slog.Logger
	promRegistry       prometheus.Registerer
	contentSource      source.Source
	dataDir            string
	blobPlugin         string
	metadataPlugin     string
	archivePlugin      string
	archiveCacheBytes  int64
	lockTTL            time.Duration
	requesterLimit     guard.Limit
	requesterRepoLimit guard.Limit
	repoLimit          guard.Limit
	reindexInterval    time.Duration
	reindexBatchSize   int
	watchlist          []string
	tracing            bool
	tracingStdout      bool
	shutdownTimeout    time.Duration
}

func (n *Node) configValidate() error {
	if n.config.contentSource == nil {
		return errors.New("no content source defined")
	}
	if n.config.reindexInterval < 0 {
		return errors.New("reindex interval must not be negative")
	}
	if n.config.reindexBatchSize < 0 {
		return errors.New("reindex batch size must not be negative")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new vouchd config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:           slog.New(slog.NewJSONHandler(io.Discard, nil)),
		reindexInterval:  DefaultReindexInterval,
		reindexBatchSize: DefaultReindexBatchSize,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithContentSource specifies where trust list files are fetched from. This is required
func WithContentSource(src source.Source) ConfigOptionFunc {
	return func(c *Config) {
		c.contentSource = src
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithArchivePlugin specifies an off-site archive storage plugin for
// indexed trust-list files. The default is no off-site archival
func WithArchivePlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.archivePlugin = plugin
	}
}

// WithArchiveCacheBytes bounds the in-memory cache of decompressed archived
// trust-list files. The default of zero disables the cache
func WithArchiveCacheBytes(limit int64) ConfigOptionFunc {
	return func(c *Config) {
		c.archiveCacheBytes = limit
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithLockTTL specifies how long an indexing run may hold a repository lock
// before other workers treat it as abandoned. The default is 60 seconds
func WithLockTTL(ttl time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.lockTTL = ttl
	}
}

// WithRequesterLimit specifies the per-requester rate limit across all
// repositories. A limit with Max zero disables the tier
func WithRequesterLimit(limit guard.Limit) ConfigOptionFunc {
	return func(c *Config) {
		c.requesterLimit = limit
	}
}

// WithRequesterRepoLimit specifies the rate limit for one requester against
// one repository. A limit with Max zero disables the tier
func WithRequesterRepoLimit(limit guard.Limit) ConfigOptionFunc {
	return func(c *Config) {
		c.requesterRepoLimit = limit
	}
}

// WithRepoLimit specifies the rate limit shared by all requesters of one
// repository. A limit with Max zero disables the tier
func WithRepoLimit(limit guard.Limit) ConfigOptionFunc {
	return func(c *Config) {
		c.repoLimit = limit
	}
}

// WithReindexInterval specifies how often the scheduler reindexes stale
// repositories. The default is one hour
func WithReindexInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.reindexInterval = interval
	}
}

// WithReindexBatchSize specifies how many repositories each scheduler pass
// reindexes, least-recently-attempted first. The default is 25
func WithReindexBatchSize(size int) ConfigOptionFunc {
	return func(c *Config) {
		c.reindexBatchSize = size
	}
}

// WithWatchlist names repositories to register at startup so the reindex
// scheduler tracks them without an explicit index request. Slugs are
// normalized during registration
func WithWatchlist(slugs []string) ConfigOptionFunc {
	return func(c *Config) {
		c.watchlist = slugs
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
