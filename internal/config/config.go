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

package config

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/openvouch/vouchd/database/plugin"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "vouchd.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
)

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
	Archive  map[string]map[string]any `yaml:"archive,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
	Archive  map[string]any `yaml:"archive,omitempty"`
}

// RateLimit configures one guard tier. A zero value keeps the built-in
// default; a non-empty window with max zero disables the tier.
type RateLimit struct {
	Window string `yaml:"window"`
	Max    uint32 `yaml:"max"`
}

type Config struct {
	MetadataPlugin    string `yaml:"metadataPlugin"    envconfig:"VOUCHD_DATABASE_METADATA_PLUGIN"`
	BlobPlugin        string `yaml:"blobPlugin"        envconfig:"VOUCHD_DATABASE_BLOB_PLUGIN"`
	ArchivePlugin     string `yaml:"archivePlugin"     envconfig:"VOUCHD_DATABASE_ARCHIVE_PLUGIN"`
	DataDir           string `yaml:"dataDir"                                                      split_words:"true"`
	SourceDir         string `yaml:"sourceDir"                                                    split_words:"true"`
	TokenFilePath     string `yaml:"tokenFilePath"                                                split_words:"true"`
	WatchlistPath     string `yaml:"watchlistPath"                                                split_words:"true"`
	BindAddr          string `yaml:"bindAddr"                                                     split_words:"true"`
	ShutdownTimeout   string `yaml:"shutdownTimeout"                                              split_words:"true"`
	LockTtl           string `yaml:"lockTtl"           envconfig:"VOUCHD_LOCK_TTL"`
	ReindexInterval   string `yaml:"reindexInterval"                                              split_words:"true"`
	ArchiveCacheBytes int64  `yaml:"archiveCacheBytes"                                            split_words:"true"`
	MetricsPort       uint   `yaml:"metricsPort"                                                  split_words:"true"`
	ReindexBatchSize  int    `yaml:"reindexBatchSize"                                             split_words:"true"`
	Tracing           bool   `yaml:"tracing"`
	TracingStdout     bool   `yaml:"tracingStdout"                                                split_words:"true"`
	// Rate-limit tiers for untrusted index requests
	RequesterLimit     RateLimit `yaml:"requesterLimit"     split_words:"true"`
	RequesterRepoLimit RateLimit `yaml:"requesterRepoLimit" split_words:"true"`
	RepoLimit          RateLimit `yaml:"repoLimit"          split_words:"true"`
}

// Duration strings and limits left empty fall back to the library defaults
// when the node is built.
var globalConfig = &Config{
	DataDir:         ".vouchd",
	SourceDir:       "",
	TokenFilePath:   "",
	WatchlistPath:   "",
	BindAddr:        "0.0.0.0",
	MetricsPort:     9177,
	ShutdownTimeout: DefaultShutdownTimeout,
	BlobPlugin:      DefaultBlobPlugin,
	MetadataPlugin:  DefaultMetadataPlugin,
}

// pluginSectionConfig splits a database plugin section into the selected
// plugin name (from the "plugin" key, if present) and the per-plugin option
// maps for plugin.ProcessConfig
func pluginSectionConfig(
	section map[string]any,
	kind string,
) (pluginName string, options map[string]map[string]any) {
	options = make(map[string]map[string]any)
	if pluginVal, exists := section["plugin"]; exists {
		if name, ok := pluginVal.(string); ok {
			pluginName = name
			delete(section, "plugin")
		}
	}
	for k, v := range section {
		switch val := v.(type) {
		case map[string]any:
			options[k] = val
		case map[any]any:
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			options[k] = stringAnyMap
		default:
			// Log skipped non-map config entries
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				kind,
				k,
				v,
			)
		}
	}
	return pluginName, options
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.vouchd/vouchd.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".vouchd", "vouchd.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/vouchd/vouchd.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/vouchd/vouchd.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		// First unmarshal into temp config to handle plugin sections
		var tempCfg tempConfig
		err = yaml.Unmarshal(buf, &tempCfg)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		// If config section exists, use it for main config
		if tempCfg.Config != nil {
			// Overlay config values onto existing defaults
			configBytes, err := yaml.Marshal(tempCfg.Config)
			if err != nil {
				return nil, fmt.Errorf("error re-marshalling config: %w", err)
			}
			err = yaml.Unmarshal(configBytes, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			// Otherwise unmarshal the whole file as main config (backward compatibility)
			err = yaml.Unmarshal(buf, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}

		// Process plugin configurations
		pluginConfig := make(map[string]map[string]map[string]any)
		if tempCfg.Blob != nil {
			pluginConfig["blob"] = tempCfg.Blob
		}
		if tempCfg.Metadata != nil {
			pluginConfig["metadata"] = tempCfg.Metadata
		}
		if tempCfg.Archive != nil {
			pluginConfig["archive"] = tempCfg.Archive
		}
		// Handle database section if present
		if tempCfg.Database != nil {
			if tempCfg.Database.Blob != nil {
				pluginName, blobConfig := pluginSectionConfig(
					tempCfg.Database.Blob,
					"blob",
				)
				if pluginName != "" {
					globalConfig.BlobPlugin = pluginName
				}
				// Merge with existing blob config instead of overwriting
				if pluginConfig["blob"] == nil {
					pluginConfig["blob"] = blobConfig
				} else {
					maps.Copy(pluginConfig["blob"], blobConfig)
				}
			}
			if tempCfg.Database.Metadata != nil {
				pluginName, metadataConfig := pluginSectionConfig(
					tempCfg.Database.Metadata,
					"metadata",
				)
				if pluginName != "" {
					globalConfig.MetadataPlugin = pluginName
				}
				// Merge with existing metadata config instead of overwriting
				if pluginConfig["metadata"] == nil {
					pluginConfig["metadata"] = metadataConfig
				} else {
					maps.Copy(pluginConfig["metadata"], metadataConfig)
				}
			}
			if tempCfg.Database.Archive != nil {
				pluginName, archiveConfig := pluginSectionConfig(
					tempCfg.Database.Archive,
					"archive",
				)
				if pluginName != "" {
					globalConfig.ArchivePlugin = pluginName
				}
				// Merge with existing archive config instead of overwriting
				if pluginConfig["archive"] == nil {
					pluginConfig["archive"] = archiveConfig
				} else {
					maps.Copy(pluginConfig["archive"], archiveConfig)
				}
			}
		}
		if len(pluginConfig) > 0 {
			err = plugin.ProcessConfig(pluginConfig)
			if err != nil {
				return nil, fmt.Errorf(
					"error processing plugin config: %w",
					err,
				)
			}
		}
	}
	// Process environment variables
	err := envconfig.Process("vouchd", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
