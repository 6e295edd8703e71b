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

package auditchain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/openvouch/vouchd/trustdown"
)

const initialHeight uint64 = 1

// TipRef identifies the current tip of a repository's audit chain.
type TipRef struct {
	Hash   string
	Height uint64
}

// BlockSource describes where a block's trust-list content came from.
// Optional fields stay nil when the content source cannot supply them;
// they are best-effort metadata and carry no integrity weight beyond
// being hashed as written.
type BlockSource struct {
	FilePath        string
	CommitID        string
	CommitURL       *string
	SourceURL       *string
	CommitActor     *string
	CommitTimestamp *time.Time
}

// Block is one link in a repository's audit chain. PreviousHash is nil
// only for the genesis block at height 1. Timestamps are UTC and
// truncated to whole seconds; finer precision would not survive a round
// trip through every metadata backend, and the hash depends on the
// stored value matching the hashed one exactly.
type Block struct {
	RepoSlug     string
	Height       uint64
	PreviousHash *string
	SnapshotID   uint64
	Timestamp    time.Time
	Source       BlockSource
	Changes      []Change
	Hash         string
}

// blockPayload is the canonical serialization the block hash is computed
// over. Field order is fixed by this declaration and optional fields
// marshal as JSON null, never omitted; changing either breaks hash
// reproducibility for every existing chain.
type blockPayload struct {
	RepoSlug        string          `json:"repo_slug"`
	Height          uint64          `json:"height"`
	PreviousHash    *string         `json:"previous_hash"`
	SnapshotID      uint64          `json:"snapshot_id"`
	Timestamp       string          `json:"timestamp"`
	FilePath        string          `json:"file_path"`
	CommitID        string          `json:"commit_id"`
	CommitURL       *string         `json:"commit_url"`
	SourceURL       *string         `json:"source_url"`
	CommitActor     *string         `json:"commit_actor"`
	CommitTimestamp *string         `json:"commit_timestamp"`
	Changes         []changePayload `json:"changes"`
}

type changePayload struct {
	Handle        string  `json:"handle"`
	Action        string  `json:"action"`
	BeforeType    *string `json:"before_type"`
	AfterType     *string `json:"after_type"`
	BeforeDetails *string `json:"before_details"`
	AfterDetails  *string `json:"after_details"`
}

// BuildBlock assembles and hashes the next block for a repository's audit
// chain. It is pure: the caller supplies the current tip (nil for a
// repository with no blocks yet), the already-computed change list, and
// the timestamp to record. Timestamps are normalized to UTC and truncated
// to whole seconds before hashing.
func BuildBlock(
	prev *TipRef,
	snapshotID uint64,
	repoSlug string,
	src BlockSource,
	changes []Change,
	now time.Time,
) (*Block, error) {
	if repoSlug == "" {
		return nil, errors.New("empty repo slug")
	}
	if src.FilePath == "" {
		return nil, errors.New("empty file path")
	}
	if src.CommitID == "" {
		return nil, errors.New("empty commit id")
	}
	if src.CommitTimestamp != nil {
		commitTs := src.CommitTimestamp.UTC().Truncate(time.Second)
		src.CommitTimestamp = &commitTs
	}
	block := &Block{
		RepoSlug:   repoSlug,
		Height:     initialHeight,
		SnapshotID: snapshotID,
		Timestamp:  now.UTC().Truncate(time.Second),
		Source:     src,
		Changes:    changes,
	}
	if prev != nil {
		block.Height = prev.Height + 1
		prevHash := prev.Hash
		block.PreviousHash = &prevHash
	}
	hash, err := ComputeHash(block)
	if err != nil {
		return nil, err
	}
	block.Hash = hash
	return block, nil
}

// ComputeHash returns the lowercase hex SHA-256 digest of the block's
// canonical serialization. A stored block whose recomputed hash differs
// from its stored hash has been tampered with.
func ComputeHash(block *Block) (string, error) {
	payload := blockPayload{
		RepoSlug:     block.RepoSlug,
		Height:       block.Height,
		PreviousHash: block.PreviousHash,
		SnapshotID:   block.SnapshotID,
		Timestamp:    block.Timestamp.UTC().Format(time.RFC3339Nano),
		FilePath:     block.Source.FilePath,
		CommitID:     block.Source.CommitID,
		CommitURL:    block.Source.CommitURL,
		SourceURL:    block.Source.SourceURL,
		CommitActor:  block.Source.CommitActor,
		Changes:      make([]changePayload, 0, len(block.Changes)),
	}
	if block.Source.CommitTimestamp != nil {
		commitTs := block.Source.CommitTimestamp.UTC().
			Format(time.RFC3339Nano)
		payload.CommitTimestamp = &commitTs
	}
	for _, change := range block.Changes {
		payload.Changes = append(payload.Changes, changePayload{
			Handle:        change.Handle,
			Action:        string(change.Action),
			BeforeType:    typeToString(change.BeforeType),
			AfterType:     typeToString(change.AfterType),
			BeforeDetails: change.BeforeDetails,
			AfterDetails:  change.AfterDetails,
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return digest.FromBytes(data).Encoded(), nil
}

func typeToString(entryType *trustdown.EntryType) *string {
	if entryType == nil {
		return nil
	}
	ret := string(*entryType)
	return &ret
}
