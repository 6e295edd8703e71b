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

package database

import (
	"fmt"
	"strings"
	"testing"

	"github.com/openvouch/vouchd/database/models"
)

// BenchmarkTransactionCreate benchmarks creating a read-only transaction
func BenchmarkTransactionCreate(b *testing.B) {
	config := &Config{
		DataDir: "", // In-memory
	}
	db, err := New(config)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	b.ResetTimer() // Reset timer after setup
	for b.Loop() {
		txn := db.Transaction(false)
		if err := txn.Commit(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkArchiveGetCached benchmarks repeated reads of the same archived
// file, which is the hot path during deep audit verification
func BenchmarkArchiveGetCached(b *testing.B) {
	config := &Config{
		DataDir:           b.TempDir(),
		ArchiveCacheBytes: 1 << 20,
	}
	db, err := New(config)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	commitID := strings.Repeat("a", 40)
	content := []byte(strings.Repeat("vouch github/alice \"helped\"\n", 100))
	if err := db.ArchivePut("bench/repo", commitID, content, nil); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := db.ArchiveGet("bench/repo", commitID, nil); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkLeaderboardTop benchmarks the top-N leaderboard query
func BenchmarkLeaderboardTop(b *testing.B) {
	config := &Config{
		DataDir: b.TempDir(),
	}
	db, err := New(config)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	for i := range 500 {
		row := &models.LeaderboardRow{
			Handle:       fmt.Sprintf("github:user%03d", i),
			Vouched:      i % 13,
			Denounced:    i % 5,
			Repositories: 1 + i%3,
			Score:        i%13 - i%5,
		}
		if err := db.SetLeaderboardRow(row, nil); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := db.GetLeaderboardTop(25, nil); err != nil {
			b.Fatal(err)
		}
	}
}
