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

package plugin

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// PluginType is the registry bucket a plugin registers under
type PluginType int

const (
	PluginTypeBlob PluginType = iota
	PluginTypeMetadata
	PluginTypeArchive
)

// PluginTypeName returns the name for a plugin type
func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeBlob:
		return "blob"
	case PluginTypeMetadata:
		return "metadata"
	case PluginTypeArchive:
		return "archive"
	default:
		return "unknown"
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

// PluginOption describes a single configurable option for a plugin. Dest
// points at the variable that receives the option value.
type PluginOption struct {
	Dest         any
	DefaultValue any
	Name         string
	Description  string
	Type         PluginOptionType
}

// PluginEntry is a registry entry for a named plugin. The logger and
// promRegistry passed to NewFromOptionsFunc may be nil, in which case the
// plugin uses its own defaults.
type PluginEntry struct {
	NewFromOptionsFunc func(logger *slog.Logger, promRegistry prometheus.Registerer) Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

// pluginEntries holds all registered plugins. Registration happens from
// package init() functions, so no locking is needed.
var pluginEntries []PluginEntry

// Register adds a plugin entry to the registry
func Register(entry PluginEntry) {
	pluginEntries = append(pluginEntries, entry)
}

// GetPlugin instantiates the named plugin of the given type, or returns nil
// if no such plugin is registered
func GetPlugin(
	pluginType PluginType,
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) Plugin {
	for _, entry := range pluginEntries {
		if entry.Type == pluginType && entry.Name == pluginName {
			return entry.NewFromOptionsFunc(logger, promRegistry)
		}
	}
	return nil
}

// GetPlugins returns the registry entries for the given plugin type
func GetPlugins(pluginType PluginType) []PluginEntry {
	ret := []PluginEntry{}
	for _, entry := range pluginEntries {
		if entry.Type == pluginType {
			ret = append(ret, entry)
		}
	}
	return ret
}
