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

package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
)

// maxFileBytes caps trust list reads at 1 MiB. Trust lists are small
// text files; anything larger is a misconfigured repository, not data
// we want to hold in memory.
const maxFileBytes = 1 << 20

// DirSource serves trust lists from a local directory tree laid out as
// <root>/<owner>/<name>/<candidate path>. It backs development setups
// and tests, standing in for a remote hosting provider.
//
// The commit id is the SHA-256 digest of the file bytes. A real
// provider hands back a commit hash that only moves when the content
// moves; deriving the id from the content gives the same property, so
// unchanged files short-circuit reindexing exactly like a real commit
// id would.
type DirSource struct {
	rootDir string
}

// NewDirSource creates a DirSource rooted at rootDir.
func NewDirSource(rootDir string) *DirSource {
	return &DirSource{
		rootDir: rootDir,
	}
}

// Fetch implements Source.
func (d *DirSource) Fetch(
	ctx context.Context,
	slug string,
) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	repoDir, err := d.repoDir(slug)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(repoDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRepositoryNotFound
		}
		return nil, NewUpstreamError(
			0,
			fmt.Sprintf("stat %s: %s", repoDir, err),
		)
	}
	if !fi.IsDir() {
		return nil, ErrRepositoryNotFound
	}
	for _, candidate := range CandidatePaths {
		data, err := readCapped(
			filepath.Join(repoDir, filepath.FromSlash(candidate)),
		)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, NewUpstreamError(
				0,
				fmt.Sprintf("read %s: %s", candidate, err),
			)
		}
		return &Content{
			FilePath: candidate,
			CommitID: digest.FromBytes(data).Encoded(),
			Text:     string(data),
		}, nil
	}
	return nil, ErrFileNotFound
}

// repoDir maps a slug to its directory under the root. Dot components
// anywhere in the slug would escape the root, so they are rejected
// outright rather than cleaned.
func (d *DirSource) repoDir(slug string) (string, error) {
	owner, name, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || name == "" ||
		strings.Contains(slug, `\`) {
		return "", ErrRepositoryNotFound
	}
	parts := strings.Split(slug, "/")
	if slices.Contains(parts, "") ||
		slices.Contains(parts, ".") ||
		slices.Contains(parts, "..") {
		return "", ErrRepositoryNotFound
	}
	return filepath.Join(d.rootDir, owner, name), nil
}

// readCapped reads a file whole, refusing anything over maxFileBytes.
// Missing-file errors pass through untouched so callers can probe.
func readCapped(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fs.ErrNotExist
	}
	if fi.Size() > maxFileBytes {
		return nil, fmt.Errorf(
			"file is %d bytes, limit is %d",
			fi.Size(),
			maxFileBytes,
		)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxFileBytes))
	if err != nil {
		return nil, err
	}
	return data, nil
}
