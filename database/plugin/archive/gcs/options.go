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
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type ArchiveStoreGCSOptionFunc func(*ArchiveStoreGCS)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) ArchiveStoreGCSOptionFunc {
	return func(a *ArchiveStoreGCS) {
		a.logger = NewGcsLogger(logger)
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) ArchiveStoreGCSOptionFunc {
	return func(a *ArchiveStoreGCS) {
		a.promRegistry = registry
	}
}

// WithBucket specifies the GCS bucket name
func WithBucket(bucket string) ArchiveStoreGCSOptionFunc {
	return func(a *ArchiveStoreGCS) {
		a.bucketName = bucket
	}
}

// WithCredentialsFile specifies the service account credentials file
func WithCredentialsFile(path string) ArchiveStoreGCSOptionFunc {
	return func(a *ArchiveStoreGCS) {
		a.credentialsFile = path
	}
}

// WithEncrypt specifies whether objects are SOPS-encrypted before upload
func WithEncrypt(encrypt bool) ArchiveStoreGCSOptionFunc {
	return func(a *ArchiveStoreGCS) {
		a.encrypt = encrypt
	}
}
