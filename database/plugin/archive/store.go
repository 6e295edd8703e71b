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

package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openvouch/vouchd/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrObjectNotFound is returned when the requested object does not exist in
// the archive
var ErrObjectNotFound = errors.New("archive object not found")

// ArchiveStore is the interface implemented by archive plugins. Archives
// hold immutable copies of indexed trust-list documents in object storage
// for offline audit. Unlike blob stores, archives have no transactions:
// objects are written once and never updated.
type ArchiveStore interface {
	Close() error
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// New returns the started archive plugin selected by name
func New(
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (ArchiveStore, error) {
	// Get and start the plugin
	p, err := plugin.StartPlugin(
		plugin.PluginTypeArchive,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}

	// Type assert to ArchiveStore interface
	archiveStore, ok := p.(ArchiveStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement ArchiveStore interface",
			pluginName,
		)
	}

	return archiveStore, nil
}
