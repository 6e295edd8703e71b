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

// Package watchlist loads the optional watch list file, a JSON document
// naming repositories the daemon should track without waiting for an
// explicit index request.
package watchlist

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Watchlist represents a vouchd watch list file
type Watchlist struct {
	Repositories []WatchlistRepository `json:"repositories"`
}

type WatchlistRepository struct {
	Slug string `json:"slug"`
}

// Slugs returns the raw repository slugs in file order. Normalization is
// left to the caller.
func (w *Watchlist) Slugs() []string {
	slugs := make([]string, 0, len(w.Repositories))
	for _, repo := range w.Repositories {
		slugs = append(slugs, repo.Slug)
	}
	return slugs
}

func NewWatchlistFromFile(path string) (*Watchlist, error) {
	dataFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer dataFile.Close()
	return NewWatchlistFromReader(dataFile)
}

// maxWatchlistSize is the maximum allowed size for a watch list file
// (1 MB). This prevents unbounded memory allocation from untrusted readers.
const maxWatchlistSize = 1 * 1024 * 1024

func NewWatchlistFromReader(r io.Reader) (*Watchlist, error) {
	w := &Watchlist{}
	data, err := io.ReadAll(io.LimitReader(r, maxWatchlistSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxWatchlistSize {
		return nil, fmt.Errorf(
			"watch list file exceeds maximum size of %d bytes",
			maxWatchlistSize,
		)
	}
	if err := json.Unmarshal(data, w); err != nil {
		return nil, err
	}
	for i, repo := range w.Repositories {
		if repo.Slug == "" {
			return nil, fmt.Errorf(
				"watch list entry %d has no slug",
				i,
			)
		}
	}
	return w, nil
}
