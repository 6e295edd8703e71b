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

// Package importutil provides shared helpers for bulk entry operations
// across all database backends (sqlite, postgres, mysql).
package importutil

// BatchChunkSize limits the number of bind parameters in a single
// WHERE IN clause or batched insert to stay within database variable
// limits (e.g. SQLite's SQLITE_MAX_VARIABLE_NUMBER, PostgreSQL's
// 65535 parameter limit).
const BatchChunkSize = 500

// ChunkIDs splits ids into chunks of at most BatchChunkSize elements.
// The returned chunks share backing storage with the input slice.
func ChunkIDs(ids []uint) [][]uint {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]uint, 0, (len(ids)+BatchChunkSize-1)/BatchChunkSize)
	for i := 0; i < len(ids); i += BatchChunkSize {
		end := min(i+BatchChunkSize, len(ids))
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}
