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

package blob

import (
	"fmt"
	"log/slog"

	"github.com/openvouch/vouchd/database/plugin"
	"github.com/openvouch/vouchd/database/types"
	"github.com/prometheus/client_golang/prometheus"

	// Register blob plugins
	_ "github.com/openvouch/vouchd/database/plugin/blob/badger"
	_ "github.com/openvouch/vouchd/database/plugin/blob/pebble"
)

// BlobStore is the engine-agnostic interface implemented by blob plugins.
// All data operations run inside a transaction created by NewTransaction.
type BlobStore interface {
	Close() error
	NewTransaction(readWrite bool) types.Txn
	Get(txn types.Txn, key []byte) ([]byte, error)
	Set(txn types.Txn, key []byte, val []byte) error
	Delete(txn types.Txn, key []byte) error
	NewIterator(txn types.Txn, opts types.BlobIteratorOptions) types.BlobIterator

	// Commit timestamp persistence for cross-store consistency checks
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(txn types.Txn, timestamp int64) error
}

// New returns the started blob plugin selected by name. An empty dataDir
// selects in-memory storage for engines that support it. The dataDir
// argument overrides any data-dir value set through plugin options so the
// store always lands inside the node's own layout.
func New(
	pluginName, dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (BlobStore, error) {
	if err := plugin.SetPluginOption(
		plugin.PluginTypeBlob,
		pluginName,
		"data-dir",
		dataDir,
	); err != nil {
		return nil, err
	}

	// Get and start the plugin
	p, err := plugin.StartPlugin(
		plugin.PluginTypeBlob,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}

	// Type assert to BlobStore interface
	blobStore, ok := p.(BlobStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement BlobStore interface",
			pluginName,
		)
	}

	return blobStore, nil
}
