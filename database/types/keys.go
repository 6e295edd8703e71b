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

package types

import (
	"encoding/binary"
)

// Blob key namespaces. Each namespace is versioned so the layout can evolve
// without a full store migration.
const (
	LockKeyPrefix       = "lock/v1/"
	RateBucketKeyPrefix = "rate/v1/"
	ArchiveKeyPrefix    = "archive/v1/"
)

func Uint64ToBytes(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

func BytesToUint64(input []byte) uint64 {
	if len(input) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(input)
}

// LockKey returns the blob key holding the indexing lock for a repository
func LockKey(repoSlug string) []byte {
	key := []byte(LockKeyPrefix)
	key = append(key, []byte(repoSlug)...)
	return key
}

// RateBucketKey returns the blob key for a fixed-window rate counter. The
// scope separates the counter families and the bucket key identifies the
// counted party within the scope.
func RateBucketKey(scope string, bucketKey string) []byte {
	key := []byte(RateBucketKeyPrefix)
	key = append(key, []byte(scope)...)
	key = append(key, '/')
	key = append(key, []byte(bucketKey)...)
	return key
}

// ArchiveKey returns the blob key for an archived trust-list file, addressed
// by repository and source commit
func ArchiveKey(repoSlug string, commitID string) []byte {
	key := []byte(ArchiveKeyPrefix)
	key = append(key, []byte(repoSlug)...)
	key = append(key, '/')
	key = append(key, []byte(commitID)...)
	return key
}
