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

// Package secrets loads access tokens for remote content sources from
// files on disk. Token files must not be readable by group or other;
// the check runs against the open handle so the file cannot be swapped
// between check and read. Files encrypted with SOPS are decrypted
// transparently.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openvouch/vouchd/database/sops"
)

// Common errors returned when loading tokens.
var (
	ErrInsecureFileMode = errors.New("insecure file permissions")
	ErrEmptyToken       = errors.New("token file is empty")
)

// maxTokenBytes caps token file reads at 64 KiB. Tokens are short
// strings; the headroom covers the SOPS envelope around one.
const maxTokenBytes = 64 << 10

// LoadToken reads an access token from the file at path. The file must
// deny group/other access. SOPS-encrypted files are decrypted first;
// plaintext files are used as-is. Surrounding whitespace (including the
// usual trailing newline) is stripped.
func LoadToken(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(f, maxTokenBytes))
	if err != nil {
		return "", fmt.Errorf(
			"failed to read token file %q: %w",
			path,
			err,
		)
	}

	if sopsEncrypted(data) {
		data, err = sops.Decrypt(data)
		if err != nil {
			return "", fmt.Errorf(
				"failed to decrypt token file %q: %w",
				path,
				err,
			)
		}
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyToken, path)
	}
	return token, nil
}

// sopsEncrypted reports whether data looks like a SOPS binary-store
// envelope, which is a JSON document carrying a top-level "sops"
// metadata key. Plaintext tokens are not JSON and fall through.
func sopsEncrypted(data []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	_, ok := doc["sops"]
	return ok
}
