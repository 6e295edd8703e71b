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

	"github.com/openvouch/vouchd/database/models"
	"github.com/openvouch/vouchd/guard"
	"github.com/openvouch/vouchd/source"
	"github.com/openvouch/vouchd/trustdown"
)

// Condition classifies a pipeline error into a stable kind that callers
// can branch on. Classification matches on error types and sentinels,
// never on message text.
type Condition string

const (
	ConditionNotFound      Condition = "not_found"
	ConditionUpstreamError Condition = "upstream_error"
	ConditionConflict      Condition = "conflict"
	ConditionRateLimited   Condition = "rate_limited"
	ConditionInvalidInput  Condition = "invalid_input"
	ConditionInternal      Condition = "internal"
)

// InvalidSlugError indicates that a repository slug could not be
// normalized to the canonical lowercase owner/name form.
type InvalidSlugError struct {
	slug   string
	reason string
}

func NewInvalidSlugError(slug string, reason string) InvalidSlugError {
	return InvalidSlugError{
		slug:   slug,
		reason: reason,
	}
}

func (e InvalidSlugError) Slug() string {
	return e.slug
}

func (e InvalidSlugError) Reason() string {
	return e.reason
}

func (e InvalidSlugError) Error() string {
	return fmt.Sprintf(
		"invalid repository slug %q: %s",
		e.slug,
		e.reason,
	)
}

// ErrorCondition maps any error surfaced by the indexing pipeline to its
// Condition. Unrecognized errors classify as internal.
func ErrorCondition(err error) Condition {
	var (
		invalidSlug   InvalidSlugError
		invalidHandle trustdown.InvalidHandleError
		rateLimited   guard.RateLimitedError
		timeout       source.TimeoutError
		upstream      source.UpstreamError
	)
	switch {
	case err == nil:
		return ConditionInternal
	case errors.Is(err, source.ErrRepositoryNotFound),
		errors.Is(err, source.ErrFileNotFound),
		errors.Is(err, models.ErrRepositoryNotFound),
		errors.Is(err, models.ErrSnapshotNotFound),
		errors.Is(err, models.ErrEntryNotFound),
		errors.Is(err, models.ErrLeaderboardRowNotFound):
		return ConditionNotFound
	case errors.Is(err, guard.ErrLockHeld):
		return ConditionConflict
	case errors.As(err, &rateLimited):
		return ConditionRateLimited
	case errors.As(err, &invalidSlug),
		errors.As(err, &invalidHandle):
		return ConditionInvalidInput
	case errors.As(err, &timeout),
		errors.As(err, &upstream),
		errors.Is(err, context.DeadlineExceeded):
		return ConditionUpstreamError
	default:
		return ConditionInternal
	}
}
