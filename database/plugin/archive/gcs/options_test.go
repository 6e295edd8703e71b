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

package gcs

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWithLogger(t *testing.T) {
	a := &ArchiveStoreGCS{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	option := WithLogger(logger)

	option(a)

	if a.logger == nil {
		t.Errorf("Expected logger to be set")
	}
}

func TestWithPromRegistry(t *testing.T) {
	a := &ArchiveStoreGCS{}
	registry := prometheus.NewRegistry()
	option := WithPromRegistry(registry)

	option(a)

	if a.promRegistry != registry {
		t.Errorf("Expected promRegistry to be set correctly")
	}
}

func TestWithBucket(t *testing.T) {
	a := &ArchiveStoreGCS{}
	option := WithBucket("test-bucket")

	option(a)

	if a.bucketName != "test-bucket" {
		t.Errorf(
			"Expected bucketName to be 'test-bucket', got '%s'",
			a.bucketName,
		)
	}
}

func TestWithCredentialsFile(t *testing.T) {
	a := &ArchiveStoreGCS{}
	option := WithCredentialsFile("/tmp/creds.json")

	option(a)

	if a.credentialsFile != "/tmp/creds.json" {
		t.Errorf(
			"Expected credentialsFile to be '/tmp/creds.json', got '%s'",
			a.credentialsFile,
		)
	}
}

func TestWithEncrypt(t *testing.T) {
	a := &ArchiveStoreGCS{}
	option := WithEncrypt(true)

	option(a)

	if !a.encrypt {
		t.Errorf("Expected encrypt to be true")
	}
}

func TestValidateCredentials(t *testing.T) {
	tmpDir := t.TempDir()

	// Missing file
	if err := validateCredentials(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Errorf("Expected error for missing credentials file")
	}

	// Secure permissions
	securePath := filepath.Join(tmpDir, "secure.json")
	if err := os.WriteFile(securePath, []byte("{}"), 0o600); err != nil {
		t.Fatalf("unexpected error writing file: %s", err)
	}
	if err := validateCredentials(securePath); err != nil {
		t.Errorf("Expected no error for secure credentials file, got %s", err)
	}

	// Group/other readable
	insecurePath := filepath.Join(tmpDir, "insecure.json")
	if err := os.WriteFile(insecurePath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("unexpected error writing file: %s", err)
	}
	err := validateCredentials(insecurePath)
	if !errors.Is(err, ErrInsecureFileMode) {
		t.Errorf("Expected ErrInsecureFileMode, got %v", err)
	}
}
