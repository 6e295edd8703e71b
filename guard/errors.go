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

package guard

import (
	"errors"
	"fmt"
	"time"
)

// ErrLockHeld is returned by Acquire when another holder already has the
// repository's un-expired lock
var ErrLockHeld = errors.New("repository lock already held")

// RateLimitedError is returned by Acquire when one of the fixed-window
// counters is over its threshold
type RateLimitedError struct {
	scope      string
	retryAfter time.Duration
}

// NewRateLimitedError creates a RateLimitedError for the given scope
func NewRateLimitedError(
	scope string,
	retryAfter time.Duration,
) RateLimitedError {
	return RateLimitedError{
		scope:      scope,
		retryAfter: retryAfter,
	}
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf(
		"rate limited (%s): retry after %s",
		e.scope,
		e.retryAfter,
	)
}

// Scope returns which counter refused the attempt
func (e RateLimitedError) Scope() string {
	return e.scope
}

// RetryAfter returns how long until the refusing window rolls over
func (e RateLimitedError) RetryAfter() time.Duration {
	return e.retryAfter
}
