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

// Package source defines where trust list files come from. A Source
// resolves a repository slug to the current content of its trust list
// along with the commit that produced it. The indexing pipeline treats
// sources as opaque: anything that can answer "what does owner/name
// publish right now" can drive an indexing run, whether that is a
// hosting provider's API or a directory on disk.
package source

import (
	"context"
	"time"
)

// CandidatePaths lists the in-repository file paths probed for a trust
// list, in priority order. The first path that exists wins and is
// recorded on the snapshot.
var CandidatePaths = []string{
	"VOUCHED.td",
	"vouched.td",
	".vouched.td",
	"docs/VOUCHED.td",
}

// Content is one fetched trust list file. FilePath is the in-repository
// path that matched (slash-separated), CommitID identifies the revision
// the content was read at, and Text is the raw file content. The
// remaining fields are provenance a source may or may not know; absent
// values stay nil.
type Content struct {
	FilePath        string
	CommitID        string
	Text            string
	CommitURL       *string
	SourceURL       *string
	CommitActor     *string
	CommitTimestamp *time.Time
}

// Source fetches the current trust list for a repository.
//
// Fetch returns ErrRepositoryNotFound when the repository itself does
// not exist, ErrFileNotFound when the repository exists but none of the
// CandidatePaths do, a TimeoutError when the deadline expired, and an
// UpstreamError when the source failed in some other way.
type Source interface {
	Fetch(ctx context.Context, slug string) (*Content, error)
}
