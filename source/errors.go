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
	"errors"
	"fmt"
	"time"
)

// Common errors returned by Source implementations.
var (
	ErrRepositoryNotFound = errors.New("repository not found at source")
	ErrFileNotFound       = errors.New("no trust list file in repository")
)

// TimeoutError indicates that a fetch did not complete within the
// source's deadline.
type TimeoutError struct {
	elapsed time.Duration
}

func NewTimeoutError(elapsed time.Duration) TimeoutError {
	return TimeoutError{
		elapsed: elapsed,
	}
}

func (e TimeoutError) Elapsed() time.Duration {
	return e.elapsed
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf(
		"fetch timed out after %s",
		e.elapsed,
	)
}

// UpstreamError indicates that the source itself failed, as opposed to
// the repository or file being absent. For HTTP-backed sources the
// status field carries the response status code; filesystem sources
// leave it zero.
type UpstreamError struct {
	status int
	msg    string
}

func NewUpstreamError(status int, msg string) UpstreamError {
	return UpstreamError{
		status: status,
		msg:    msg,
	}
}

func (e UpstreamError) Status() int {
	return e.status
}

func (e UpstreamError) Message() string {
	return e.msg
}

func (e UpstreamError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf(
			"upstream source failed with status %d: %s",
			e.status,
			e.msg,
		)
	}
	return fmt.Sprintf(
		"upstream source failed: %s",
		e.msg,
	)
}
