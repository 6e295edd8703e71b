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

package plugin_test

import (
	"testing"

	"github.com/openvouch/vouchd/database/plugin"
	"github.com/spf13/pflag"
)

// findOptionDest digs the destination pointer for a named plugin option out
// of the registry
func findOptionDest(
	t *testing.T,
	pluginType plugin.PluginType,
	pluginName string,
	optionName string,
) any {
	t.Helper()
	for _, entry := range plugin.GetPlugins(pluginType) {
		if entry.Name != pluginName {
			continue
		}
		for _, opt := range entry.Options {
			if opt.Name == optionName {
				return opt.Dest
			}
		}
	}
	t.Fatalf("option %s not found for plugin %s", optionName, pluginName)
	return nil
}

func TestPopulateCmdlineOptions(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := plugin.PopulateCmdlineOptions(flags); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Registered plugin options show up as <type>-<plugin>-<option> flags
	dataDirFlag := flags.Lookup("blob-badger-data-dir")
	if dataDirFlag == nil {
		t.Fatal("expected blob-badger-data-dir flag to be registered")
	}
	if dataDirFlag.DefValue != ".vouchd" {
		t.Fatalf(
			"unexpected default value: %s",
			dataDirFlag.DefValue,
		)
	}
	if flags.Lookup("metadata-sqlite-data-dir") == nil {
		t.Fatal("expected metadata-sqlite-data-dir flag to be registered")
	}

	// Parsing a flag writes through to the option destination
	if err := flags.Parse(
		[]string{"--blob-badger-gc=false"},
	); err != nil {
		t.Fatalf("unexpected error parsing flags: %v", err)
	}
	gcDest := findOptionDest(t, plugin.PluginTypeBlob, "badger", "gc")
	gcVal, ok := gcDest.(*bool)
	if !ok {
		t.Fatalf("unexpected destination type %T for gc option", gcDest)
	}
	if *gcVal {
		t.Fatal("expected gc option to be false after flag parse")
	}
	// Restore the default
	*gcVal = true
}

func TestProcessConfig(t *testing.T) {
	pluginConfig := map[string]map[string]map[string]any{
		"blob": {
			"badger": {
				"block-cache-size": 54321,
			},
		},
	}
	if err := plugin.ProcessConfig(pluginConfig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dest := findOptionDest(
		t,
		plugin.PluginTypeBlob,
		"badger",
		"block-cache-size",
	)
	val, ok := dest.(*uint64)
	if !ok {
		t.Fatalf("unexpected destination type %T", dest)
	}
	if *val != 54321 {
		t.Fatalf("expected 54321, got %d", *val)
	}

	// Unknown plugin names are an error
	badConfig := map[string]map[string]map[string]any{
		"blob": {
			"bogus": {
				"data-dir": "/tmp",
			},
		},
	}
	if err := plugin.ProcessConfig(badConfig); err == nil {
		t.Fatal("expected error for unknown plugin")
	}
}

func TestProcessEnvVars(t *testing.T) {
	t.Setenv("VOUCHD_BLOB_BADGER_INDEX_CACHE_SIZE", "98765")
	if err := plugin.ProcessEnvVars(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dest := findOptionDest(
		t,
		plugin.PluginTypeBlob,
		"badger",
		"index-cache-size",
	)
	val, ok := dest.(*uint64)
	if !ok {
		t.Fatalf("unexpected destination type %T", dest)
	}
	if *val != 98765 {
		t.Fatalf("expected 98765, got %d", *val)
	}
}

func TestProcessEnvVarsInvalidValue(t *testing.T) {
	t.Setenv("VOUCHD_BLOB_BADGER_GC", "notabool")
	if err := plugin.ProcessEnvVars(); err == nil {
		t.Fatal("expected error for invalid bool value")
	}
}
