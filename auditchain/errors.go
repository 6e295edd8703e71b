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
	"errors"
	"fmt"
)

var ErrStaleTip = errors.New(
	"audit chain tip moved since the block was built",
)

// HashMismatchError indicates that recomputing a stored block's hash from
// its stored fields produced a different digest, meaning the row was
// altered after it was written.
type HashMismatchError struct {
	stored   string
	computed string
	height   uint64
}

func NewHashMismatchError(
	height uint64,
	stored string,
	computed string,
) HashMismatchError {
	return HashMismatchError{
		height:   height,
		stored:   stored,
		computed: computed,
	}
}

func (e HashMismatchError) Height() uint64 {
	return e.height
}

func (e HashMismatchError) Stored() string {
	return e.stored
}

func (e HashMismatchError) Computed() string {
	return e.computed
}

func (e HashMismatchError) Error() string {
	return fmt.Sprintf(
		"audit block at height %d has stored hash %s but recomputes to %s",
		e.height,
		e.stored,
		e.computed,
	)
}

// HeightGapError indicates a hole in a chain's height sequence.
type HeightGapError struct {
	expected uint64
	found    uint64
}

func NewHeightGapError(expected, found uint64) HeightGapError {
	return HeightGapError{
		expected: expected,
		found:    found,
	}
}

func (e HeightGapError) Expected() uint64 {
	return e.expected
}

func (e HeightGapError) Found() uint64 {
	return e.found
}

func (e HeightGapError) Error() string {
	return fmt.Sprintf(
		"audit chain has a gap: expected height %d, found %d",
		e.expected,
		e.found,
	)
}

// BrokenLinkError indicates a block whose previous-hash field does not
// match the hash of the block before it.
type BrokenLinkError struct {
	height uint64
}

func NewBrokenLinkError(height uint64) BrokenLinkError {
	return BrokenLinkError{
		height: height,
	}
}

func (e BrokenLinkError) Height() uint64 {
	return e.height
}

func (e BrokenLinkError) Error() string {
	return fmt.Sprintf(
		"audit block at height %d does not link to its predecessor",
		e.height,
	)
}
