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

package pebble

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// PebbleLogger is a wrapper type to give our logger the interface that
// pebble expects
type PebbleLogger struct {
	logger *slog.Logger
}

func NewPebbleLogger(logger *slog.Logger) *PebbleLogger {
	if logger == nil {
		// Create logger to throw away logs
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &PebbleLogger{logger: logger}
}

func (p *PebbleLogger) Infof(msg string, args ...any) {
	p.logger.Debug(
		strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n"),
		"component", "database",
	)
}

func (p *PebbleLogger) Errorf(msg string, args ...any) {
	p.logger.Error(
		strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n"),
		"component", "database",
	)
}

// Fatalf logs the message and panics, since pebble only calls it on
// unrecoverable internal errors
func (p *PebbleLogger) Fatalf(msg string, args ...any) {
	formatted := strings.TrimSuffix(fmt.Sprintf(msg, args...), "\n")
	p.logger.Error(formatted, "component", "database")
	panic(formatted)
}
