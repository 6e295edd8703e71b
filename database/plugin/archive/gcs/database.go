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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/openvouch/vouchd/database/plugin/archive"
	"github.com/openvouch/vouchd/database/sops"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"
)

// ErrInsecureFileMode is returned when the credentials file has group or
// other access
var ErrInsecureFileMode = errors.New("insecure file permissions")

// ArchiveStoreGCS archives trust-list documents in a Google Cloud Storage
// bucket, optionally encrypting them with SOPS before upload.
type ArchiveStoreGCS struct {
	promRegistry    prometheus.Registerer
	logger          *GcsLogger
	client          *storage.Client
	bucket          *storage.BucketHandle
	metrics         *archiveMetrics
	bucketName      string
	credentialsFile string
	encrypt         bool
}

// New creates a new GCS-backed archive store using options.
func New(opts ...ArchiveStoreGCSOptionFunc) (*ArchiveStoreGCS, error) {
	db := &ArchiveStoreGCS{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	// Set defaults
	if db.logger == nil {
		db.logger = NewGcsLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	}

	return db, nil
}

func (d *ArchiveStoreGCS) init() error {
	// Configure metrics
	if d.promRegistry != nil {
		d.registerArchiveMetrics()
	}
	return nil
}

// Close closes the GCS client.
func (d *ArchiveStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// Client returns the GCS client.
func (d *ArchiveStoreGCS) Client() *storage.Client {
	return d.client
}

// Bucket returns the bucket handle.
func (d *ArchiveStoreGCS) Bucket() *storage.BucketHandle {
	return d.bucket
}

// Start implements the plugin.Plugin interface.
func (d *ArchiveStoreGCS) Start() error {
	// Validate required fields
	if d.bucketName == "" {
		return errors.New("gcs archive: bucket not set")
	}

	// Validate credentials file if specified
	if d.credentialsFile != "" {
		if err := validateCredentials(d.credentialsFile); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var clientOpts []option.ClientOption
	clientOpts = append(clientOpts, storage.WithDisabledClientMetrics())
	if d.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(d.credentialsFile),
		)
	}

	client, err := storage.NewGRPCClient(
		ctx,
		clientOpts...,
	)
	if err != nil {
		return fmt.Errorf(
			"gcs archive: failed in creating storage client: %w",
			err,
		)
	}

	d.client = client
	d.bucket = client.Bucket(d.bucketName)

	if err := d.init(); err != nil {
		// Clean up resources on init failure
		d.Close()
		return err
	}
	return nil
}

// Stop implements the plugin.Plugin interface.
func (d *ArchiveStoreGCS) Stop() error {
	return d.Close()
}

// PutObject writes an object to the bucket. When encryption is enabled the
// data is SOPS-encrypted before upload.
func (d *ArchiveStoreGCS) PutObject(
	ctx context.Context,
	key string,
	data []byte,
) error {
	payload := data
	if d.encrypt {
		ciphertext, err := sops.Encrypt(data)
		if err != nil {
			d.logger.Errorf("failed to encrypt object %s: %v", key, err)
			return err
		}
		payload = ciphertext
	}
	w := d.bucket.Object(key).NewWriter(ctx)
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		d.logger.Errorf("failed to write object %s: %v", key, err)
		return err
	}
	if err := w.Close(); err != nil {
		d.logger.Errorf("failed to close writer for object %s: %v", key, err)
		return err
	}
	if d.metrics != nil {
		d.metrics.objectsWritten.Inc()
		d.metrics.bytesWritten.Add(float64(len(payload)))
	}
	d.logger.Debugf("archived object %s (%d bytes)", key, len(payload))
	return nil
}

// GetObject reads an object from the bucket. When encryption is enabled the
// data is SOPS-decrypted after download.
func (d *ArchiveStoreGCS) GetObject(
	ctx context.Context,
	key string,
) ([]byte, error) {
	r, err := d.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf(
				"object %s: %w",
				key,
				archive.ErrObjectNotFound,
			)
		}
		d.logger.Errorf("failed to read object %s: %v", key, err)
		return nil, err
	}
	defer r.Close()

	payload, err := io.ReadAll(r)
	if err != nil {
		d.logger.Errorf("failed to read object %s: %v", key, err)
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.objectsRead.Inc()
	}
	if d.encrypt {
		plaintext, err := sops.Decrypt(payload)
		if err != nil {
			d.logger.Errorf("failed to decrypt object %s: %v", key, err)
			return nil, err
		}
		return plaintext, nil
	}
	return payload, nil
}

// ObjectExists checks whether an object exists in the bucket without
// reading its contents.
func (d *ArchiveStoreGCS) ObjectExists(
	ctx context.Context,
	key string,
) (bool, error) {
	_, err := d.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// validateCredentials verifies that the credentials file exists and is not
// accessible by group or other. The file is opened first and permissions
// are checked on the open handle to avoid a TOCTOU race between the
// permission check and later use.
func validateCredentials(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open credentials file %q: %w", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat credentials file %q: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("credentials file %q is not a regular file", path)
	}
	if fi.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf(
			"credentials file %q has mode %04o, group/other access not permitted: %w",
			path,
			fi.Mode().Perm(),
			ErrInsecureFileMode,
		)
	}
	return nil
}
