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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// cmdlineOptionName builds the flag name for a plugin option, e.g.
// blob-badger-data-dir
func cmdlineOptionName(entry PluginEntry, opt PluginOption) string {
	return fmt.Sprintf(
		"%s-%s-%s",
		PluginTypeName(entry.Type),
		entry.Name,
		opt.Name,
	)
}

// envVarName builds the environment variable name for a plugin option, e.g.
// VOUCHD_BLOB_BADGER_DATA_DIR
func envVarName(entry PluginEntry, opt PluginOption) string {
	name := fmt.Sprintf(
		"vouchd_%s_%s_%s",
		PluginTypeName(entry.Type),
		entry.Name,
		opt.Name,
	)
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func pluginTypeFromName(name string) (PluginType, error) {
	switch name {
	case "blob":
		return PluginTypeBlob, nil
	case "metadata":
		return PluginTypeMetadata, nil
	case "archive":
		return PluginTypeArchive, nil
	default:
		return 0, fmt.Errorf("unknown plugin type: %s", name)
	}
}

// PopulateCmdlineOptions adds a flag for every registered plugin option,
// bound directly to the option's destination
func PopulateCmdlineOptions(flags *pflag.FlagSet) error {
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			flagName := cmdlineOptionName(entry, opt)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				if !ok || dest == nil {
					return fmt.Errorf(
						"invalid destination for option %s",
						flagName,
					)
				}
				defaultValue, _ := opt.DefaultValue.(string)
				flags.StringVar(dest, flagName, defaultValue, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				if !ok || dest == nil {
					return fmt.Errorf(
						"invalid destination for option %s",
						flagName,
					)
				}
				defaultValue, _ := opt.DefaultValue.(bool)
				flags.BoolVar(dest, flagName, defaultValue, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				if !ok || dest == nil {
					return fmt.Errorf(
						"invalid destination for option %s",
						flagName,
					)
				}
				defaultValue, _ := opt.DefaultValue.(int)
				flags.IntVar(dest, flagName, defaultValue, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				if !ok || dest == nil {
					return fmt.Errorf(
						"invalid destination for option %s",
						flagName,
					)
				}
				defaultValue, _ := opt.DefaultValue.(uint64)
				flags.Uint64Var(dest, flagName, defaultValue, opt.Description)
			default:
				return fmt.Errorf(
					"unknown plugin option type %d for option %s",
					opt.Type,
					flagName,
				)
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin options read from a config file. The outer
// map is keyed by plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	for typeName, plugins := range pluginConfig {
		pluginType, err := pluginTypeFromName(typeName)
		if err != nil {
			return err
		}
		for pluginName, options := range plugins {
			for optName, value := range options {
				if err := SetPluginOption(
					pluginType,
					pluginName,
					optName,
					value,
				); err != nil {
					return fmt.Errorf(
						"error setting %s plugin option %s.%s: %w",
						typeName,
						pluginName,
						optName,
						err,
					)
				}
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin options from environment variables
func ProcessEnvVars() error {
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			envName := envVarName(entry, opt)
			envValue, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			var value any
			switch opt.Type {
			case PluginOptionTypeString:
				value = envValue
			case PluginOptionTypeBool:
				boolValue, err := strconv.ParseBool(envValue)
				if err != nil {
					return fmt.Errorf("invalid value for %s: %w", envName, err)
				}
				value = boolValue
			case PluginOptionTypeInt:
				intValue, err := strconv.Atoi(envValue)
				if err != nil {
					return fmt.Errorf("invalid value for %s: %w", envName, err)
				}
				value = intValue
			case PluginOptionTypeUint:
				uintValue, err := strconv.ParseUint(envValue, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid value for %s: %w", envName, err)
				}
				value = uintValue
			default:
				return fmt.Errorf(
					"unknown plugin option type %d for %s",
					opt.Type,
					envName,
				)
			}
			if err := SetPluginOption(
				entry.Type,
				entry.Name,
				opt.Name,
				value,
			); err != nil {
				return err
			}
		}
	}
	return nil
}
