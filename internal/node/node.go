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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openvouch/vouchd"
	"github.com/openvouch/vouchd/guard"
	"github.com/openvouch/vouchd/internal/config"
	"github.com/openvouch/vouchd/secrets"
	"github.com/openvouch/vouchd/source"
	"github.com/openvouch/vouchd/watchlist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// parseDurationOption parses a duration config string, returning ok=false
// when the string is empty and the built-in default applies
func parseDurationOption(value, name string) (time.Duration, bool, error) {
	if value == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, true, nil
}

// parseRateLimit converts a configured tier into a guard.Limit. The second
// return is false when the tier is unset and the built-in default applies.
func parseRateLimit(
	limit config.RateLimit,
	name string,
) (guard.Limit, bool, error) {
	if limit.Window == "" && limit.Max == 0 {
		return guard.Limit{}, false, nil
	}
	if limit.Window == "" {
		return guard.Limit{}, false, fmt.Errorf(
			"invalid %s rate limit: max set without a window",
			name,
		)
	}
	window, err := time.ParseDuration(limit.Window)
	if err != nil {
		return guard.Limit{}, false, fmt.Errorf(
			"invalid %s rate limit window: %w",
			name,
			err,
		)
	}
	return guard.Limit{Window: window, Max: limit.Max}, true, nil
}

// Build assembles a node from the daemon configuration without starting it.
// One-shot commands pair Build and Open with Stop; Run covers the full
// daemon lifecycle.
func Build(cfg *config.Config, logger *slog.Logger) (*vouchd.Node, error) {
	if cfg.SourceDir == "" {
		return nil, errors.New(
			"no source directory configured (set sourceDir or VOUCHD_SOURCE_DIR)",
		)
	}
	if cfg.TokenFilePath != "" {
		// The directory source has no use for a token, but a broken token
		// file should fail at startup rather than on the first fetch that
		// needs it
		if _, err := secrets.LoadToken(cfg.TokenFilePath); err != nil {
			return nil, fmt.Errorf("loading source token: %w", err)
		}
		logger.Debug(
			"loaded content source token",
			"component", "node",
			"path", cfg.TokenFilePath,
		)
	}
	opts := []vouchd.ConfigOptionFunc{
		vouchd.WithLogger(logger),
		vouchd.WithContentSource(source.NewDirSource(cfg.SourceDir)),
		vouchd.WithDataDir(cfg.DataDir),
		vouchd.WithBlobPlugin(cfg.BlobPlugin),
		vouchd.WithMetadataPlugin(cfg.MetadataPlugin),
		// Enable metrics with default prometheus registry
		vouchd.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		vouchd.WithTracing(cfg.Tracing),
		vouchd.WithTracingStdout(cfg.TracingStdout),
	}
	if cfg.ArchivePlugin != "" {
		opts = append(opts, vouchd.WithArchivePlugin(cfg.ArchivePlugin))
	}
	if cfg.ArchiveCacheBytes != 0 {
		opts = append(
			opts,
			vouchd.WithArchiveCacheBytes(cfg.ArchiveCacheBytes),
		)
	}
	if cfg.WatchlistPath != "" {
		wl, err := watchlist.NewWatchlistFromFile(cfg.WatchlistPath)
		if err != nil {
			return nil, fmt.Errorf("loading watch list: %w", err)
		}
		opts = append(opts, vouchd.WithWatchlist(wl.Slugs()))
	}
	shutdownTimeout, ok, err := parseDurationOption(
		cfg.ShutdownTimeout,
		"shutdown timeout",
	)
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, vouchd.WithShutdownTimeout(shutdownTimeout))
	}
	lockTtl, ok, err := parseDurationOption(cfg.LockTtl, "lock TTL")
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, vouchd.WithLockTTL(lockTtl))
	}
	reindexInterval, ok, err := parseDurationOption(
		cfg.ReindexInterval,
		"reindex interval",
	)
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, vouchd.WithReindexInterval(reindexInterval))
	}
	if cfg.ReindexBatchSize != 0 {
		opts = append(
			opts,
			vouchd.WithReindexBatchSize(cfg.ReindexBatchSize),
		)
	}
	requesterLimit, ok, err := parseRateLimit(cfg.RequesterLimit, "requester")
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, vouchd.WithRequesterLimit(requesterLimit))
	}
	requesterRepoLimit, ok, err := parseRateLimit(
		cfg.RequesterRepoLimit,
		"requester-repository",
	)
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, vouchd.WithRequesterRepoLimit(requesterRepoLimit))
	}
	repoLimit, ok, err := parseRateLimit(cfg.RepoLimit, "repository")
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, vouchd.WithRepoLimit(repoLimit))
	}
	v, err := vouchd.New(vouchd.NewConfig(opts...))
	if err != nil {
		return nil, err
	}
	return v, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")

	// Parse shutdown timeout for the metrics listener teardown
	shutdownTimeout := 30 * time.Second // Default timeout
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}

	v, err := Build(cfg, logger)
	if err != nil {
		return err
	}

	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine. Run shuts the node down itself when the
	// signal context fires, so the error is always collected below.
	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		errChan <- v.Run(signalCtx)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		runErr = <-errChan
	case runErr = <-errChan:
		if runErr == nil {
			logger.Info("node stopped")
		}
	}

	// Shutdown metrics server
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	if runErr != nil {
		logger.Error("node error", "error", runErr)
		return runErr
	}
	logger.Info("shutdown complete")
	return nil
}
