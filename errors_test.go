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

package vouchd

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/guard"
	"github.com/openvouch/vouchd/source"
	"github.com/openvouch/vouchd/trustdown"
	"github.com/stretchr/testify/assert"
)

func TestErrorCondition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Condition
	}{
		{
			name: "nil",
			err:  nil,
			want: ConditionInternal,
		},
		{
			name: "repository not found at source",
			err:  source.ErrRepositoryNotFound,
			want: ConditionNotFound,
		},
		{
			name: "wrapped repository not found",
			err:  fmt.Errorf("fetching: %w", source.ErrRepositoryNotFound),
			want: ConditionNotFound,
		},
		{
			name: "trust list file not found",
			err:  source.ErrFileNotFound,
			want: ConditionNotFound,
		},
		{
			name: "repository row not found",
			err:  models.ErrRepositoryNotFound,
			want: ConditionNotFound,
		},
		{
			name: "snapshot not found",
			err:  models.ErrSnapshotNotFound,
			want: ConditionNotFound,
		},
		{
			name: "lock held",
			err:  guard.ErrLockHeld,
			want: ConditionConflict,
		},
		{
			name: "rate limited",
			err:  guard.NewRateLimitedError("requester", time.Minute),
			want: ConditionRateLimited,
		},
		{
			name: "wrapped rate limited",
			err: fmt.Errorf(
				"acquiring lease: %w",
				guard.NewRateLimitedError("repo", time.Second),
			),
			want: ConditionRateLimited,
		},
		{
			name: "invalid slug",
			err:  NewInvalidSlugError("nope", "expected owner/name"),
			want: ConditionInvalidInput,
		},
		{
			name: "invalid handle",
			err:  trustdown.NewInvalidHandleError("@@"),
			want: ConditionInvalidInput,
		},
		{
			name: "fetch timeout",
			err:  source.NewTimeoutError(3 * time.Second),
			want: ConditionUpstreamError,
		},
		{
			name: "upstream failure",
			err:  source.NewUpstreamError(502, "bad gateway"),
			want: ConditionUpstreamError,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: ConditionUpstreamError,
		},
		{
			name: "unclassified",
			err:  errors.New("disk on fire"),
			want: ConditionInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCondition(tt.err))
		})
	}
}
