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

package metadata

import (
	"fmt"
	"log/slog"

	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	// Register metadata plugins
	_ "github.com/openvouch/vouchd/database/plugin/metadata/mysql"
	_ "github.com/openvouch/vouchd/database/plugin/metadata/postgres"
	_ "github.com/openvouch/vouchd/database/plugin/metadata/sqlite"
)

type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(*gorm.DB, int64) error
	Transaction() *gorm.DB

	// Repositories
	GetRepository(
		string, // slug
		*gorm.DB,
	) (*models.Repository, error)
	GetRepositoryByID(
		uint, // id
		*gorm.DB,
	) (*models.Repository, error)
	ListRepositories(*gorm.DB) ([]models.Repository, error)
	ListRepositoriesByLastAttempt(
		int, // limit
		*gorm.DB,
	) ([]models.Repository, error)
	SetRepository(
		*models.Repository,
		*gorm.DB,
	) error

	// Snapshots
	GetSnapshot(
		uint, // repositoryID
		*gorm.DB,
	) (*models.Snapshot, error)
	SetSnapshot(
		*models.Snapshot,
		*gorm.DB,
	) error

	// Entries
	GetEntriesByRepository(
		uint, // repositoryID
		*gorm.DB,
	) ([]models.Entry, error)
	GetEntriesByHandle(
		string, // handle
		*gorm.DB,
	) ([]models.Entry, error)
	GetAllEntries(*gorm.DB) ([]models.Entry, error)
	AddEntries(
		[]models.Entry,
		*gorm.DB,
	) error
	UpdateEntry(
		uint, // id
		string, // entryType
		*string, // details
		uint, // snapshotID
		string, // repoSlug
		*gorm.DB,
	) error
	DeleteEntriesByID(
		[]uint, // ids
		*gorm.DB,
	) error

	// Audit chain
	GetAuditTip(
		uint, // repositoryID
		*gorm.DB,
	) (*models.AuditBlock, error)
	GetAuditBlock(
		uint, // repositoryID
		uint64, // height
		*gorm.DB,
	) (*models.AuditBlock, error)
	GetAuditBlocks(
		uint, // repositoryID
		uint64, // fromHeight
		int, // count
		*gorm.DB,
	) ([]models.AuditBlock, error)
	AddAuditBlock(
		*models.AuditBlock,
		*gorm.DB,
	) error

	// Leaderboard
	GetLeaderboardRow(
		string, // handle
		*gorm.DB,
	) (*models.LeaderboardRow, error)
	GetLeaderboardTop(
		int, // limit
		*gorm.DB,
	) ([]models.LeaderboardRow, error)
	SetLeaderboardRow(
		*models.LeaderboardRow,
		*gorm.DB,
	) error
	DeleteLeaderboardRow(
		string, // handle
		*gorm.DB,
	) error
	DeleteAllLeaderboardRows(*gorm.DB) error
}

// New returns the started metadata plugin selected by name. The sqlite
// plugin stores under dataDir (in-memory when empty); the postgres and
// mysql plugins have no data-dir option and take their connection settings
// from plugin options or the environment.
func New(
	pluginName, dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	// Setting data-dir is a no-op for plugins without such an option
	if err := plugin.SetPluginOption(
		plugin.PluginTypeMetadata,
		pluginName,
		"data-dir",
		dataDir,
	); err != nil {
		return nil, err
	}

	// Get and start the plugin
	p, err := plugin.StartPlugin(
		plugin.PluginTypeMetadata,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}

	// Type assert to MetadataStore interface
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}

	return metadataStore, nil
}
