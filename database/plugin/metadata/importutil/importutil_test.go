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

package importutil

import (
	"testing"
)

func TestChunkIDsEmpty(t *testing.T) {
	if chunks := ChunkIDs(nil); chunks != nil {
		t.Errorf("expected nil chunks for empty input, got %v", chunks)
	}
}

func TestChunkIDsSingleChunk(t *testing.T) {
	ids := make([]uint, BatchChunkSize)
	for i := range ids {
		ids[i] = uint(i + 1)
	}
	chunks := ChunkIDs(ids)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0]) != BatchChunkSize {
		t.Errorf(
			"expected chunk of %d elements, got %d",
			BatchChunkSize,
			len(chunks[0]),
		)
	}
}

func TestChunkIDsMultipleChunks(t *testing.T) {
	ids := make([]uint, BatchChunkSize*2+7)
	for i := range ids {
		ids[i] = uint(i + 1)
	}
	chunks := ChunkIDs(ids)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2]) != 7 {
		t.Errorf("expected final chunk of 7 elements, got %d", len(chunks[2]))
	}
	// All elements preserved in order
	total := 0
	var last uint
	for _, chunk := range chunks {
		for _, id := range chunk {
			if id != last+1 {
				t.Fatalf("expected id %d, got %d", last+1, id)
			}
			last = id
			total++
		}
	}
	if total != len(ids) {
		t.Errorf("expected %d total elements, got %d", len(ids), total)
	}
}
