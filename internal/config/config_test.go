package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	_ "github.com/openvouch/vouchd/database/plugin/archive/gcs"
	_ "github.com/openvouch/vouchd/database/plugin/blob/badger"
	_ "github.com/openvouch/vouchd/database/plugin/metadata/sqlite"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		DataDir:         ".vouchd",
		SourceDir:       "",
		TokenFilePath:   "",
		BindAddr:        "0.0.0.0",
		MetricsPort:     9177,
		ShutdownTimeout: DefaultShutdownTimeout,
		BlobPlugin:      DefaultBlobPlugin,
		MetadataPlugin:  DefaultMetadataPlugin,
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-vouchd.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return tmpFile
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
dataDir: "/var/lib/vouchd"
sourceDir: "/srv/trust-lists"
tokenFilePath: "/etc/vouchd/token"
bindAddr: "127.0.0.1"
metricsPort: 8088
shutdownTimeout: "10s"
lockTtl: "90s"
reindexInterval: "30m"
reindexBatchSize: 50
archiveCacheBytes: 8388608
tracing: true
tracingStdout: false
`

	expected := &Config{
		DataDir:           "/var/lib/vouchd",
		SourceDir:         "/srv/trust-lists",
		TokenFilePath:     "/etc/vouchd/token",
		BindAddr:          "127.0.0.1",
		MetricsPort:       8088,
		ShutdownTimeout:   "10s",
		LockTtl:           "90s",
		ReindexInterval:   "30m",
		ReindexBatchSize:  50,
		ArchiveCacheBytes: 8388608,
		Tracing:           true,
		TracingStdout:     false,
		BlobPlugin:        DefaultBlobPlugin,
		MetadataPlugin:    DefaultMetadataPlugin,
	}

	actual, err := LoadConfig(writeConfigFile(t, yamlContent))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()

	// Without config file
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Expected is the original default values from globalConfig
	expected := &Config{
		DataDir:         ".vouchd",
		SourceDir:       "",
		TokenFilePath:   "",
		BindAddr:        "0.0.0.0",
		MetricsPort:     9177,
		ShutdownTimeout: DefaultShutdownTimeout,
		BlobPlugin:      DefaultBlobPlugin,
		MetadataPlugin:  DefaultMetadataPlugin,
	}

	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			expected,
			cfg,
		)
	}
}

func TestLoad_WithConfigSection(t *testing.T) {
	resetGlobalConfig()

	// Config section plus database plugin selection and options
	yamlContent := `
config:
  sourceDir: "/srv/lists"
  tracing: true
database:
  blob:
    plugin: badger
    badger:
      gc: false
  metadata:
    plugin: sqlite
  archive:
    plugin: gcs
    gcs:
      bucket: vouchd-archives
`

	cfg, err := LoadConfig(writeConfigFile(t, yamlContent))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.SourceDir != "/srv/lists" {
		t.Errorf("expected SourceDir /srv/lists, got: %s", cfg.SourceDir)
	}
	if !cfg.Tracing {
		t.Errorf("expected Tracing to be true, got: %v", cfg.Tracing)
	}
	if cfg.BlobPlugin != "badger" {
		t.Errorf("expected BlobPlugin badger, got: %s", cfg.BlobPlugin)
	}
	if cfg.MetadataPlugin != "sqlite" {
		t.Errorf("expected MetadataPlugin sqlite, got: %s", cfg.MetadataPlugin)
	}
	if cfg.ArchivePlugin != "gcs" {
		t.Errorf("expected ArchivePlugin gcs, got: %s", cfg.ArchivePlugin)
	}
}

func TestLoad_WithRateLimits(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
requesterLimit:
  window: "5m"
  max: 20
repoLimit:
  window: "10m"
  max: 0
`

	cfg, err := LoadConfig(writeConfigFile(t, yamlContent))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.RequesterLimit != (RateLimit{Window: "5m", Max: 20}) {
		t.Errorf("unexpected requester limit: %+v", cfg.RequesterLimit)
	}
	if cfg.RepoLimit != (RateLimit{Window: "10m", Max: 0}) {
		t.Errorf("unexpected repo limit: %+v", cfg.RepoLimit)
	}
	if cfg.RequesterRepoLimit != (RateLimit{}) {
		t.Errorf(
			"expected requester-repo limit to stay unset, got: %+v",
			cfg.RequesterRepoLimit,
		)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	resetGlobalConfig()

	t.Setenv("VOUCHD_SOURCE_DIR", "/srv/from-env")
	t.Setenv("VOUCHD_DATABASE_BLOB_PLUGIN", "pebble")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.SourceDir != "/srv/from-env" {
		t.Errorf("expected SourceDir from environment, got: %s", cfg.SourceDir)
	}
	if cfg.BlobPlugin != "pebble" {
		t.Errorf("expected BlobPlugin pebble, got: %s", cfg.BlobPlugin)
	}
}
