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

package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvouch/vouchd/event"
)

func TestEventTypeNames(t *testing.T) {
	assert.Equal(
		t,
		event.EventType("index.completed"),
		event.IndexCompletedEventType,
	)
	assert.Equal(
		t,
		event.EventType("index.failed"),
		event.IndexFailedEventType,
	)
	assert.Equal(
		t,
		event.EventType("auditchain.block.added"),
		event.BlockAddedEventType,
	)
}

func TestBlockAddedEventPublishSubscribe(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	now := time.Now()
	testEvent := event.BlockAddedEvent{
		RepoSlug:  "github.com/example/repo",
		Height:    42,
		BlockHash: "5b1a3f0e2c4d6e8f0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f6071",
		Added:     3,
		Removed:   1,
		Changed:   2,
		Timestamp: now,
	}

	_, subCh := eb.Subscribe(event.BlockAddedEventType)

	eb.Publish(
		event.BlockAddedEventType,
		event.NewEvent(event.BlockAddedEventType, testEvent),
	)

	select {
	case evt, ok := <-subCh:
		require.True(t, ok, "event channel closed unexpectedly")
		require.Equal(t, event.BlockAddedEventType, evt.Type)

		blockEvent, ok := evt.Data.(event.BlockAddedEvent)
		require.True(t, ok, "event data was not BlockAddedEvent")

		assert.Equal(t, "github.com/example/repo", blockEvent.RepoSlug)
		assert.Equal(t, uint64(42), blockEvent.Height)
		assert.Equal(t, testEvent.BlockHash, blockEvent.BlockHash)
		assert.Equal(t, 3, blockEvent.Added)
		assert.Equal(t, 1, blockEvent.Removed)
		assert.Equal(t, 2, blockEvent.Changed)
		assert.Equal(t, now, blockEvent.Timestamp)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for block added event")
	}
}

func TestIndexCompletedEventSubscribeFunc(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	testEvent := event.IndexCompletedEvent{
		RepoSlug:         "github.com/example/repo",
		FilePath:         "VOUCHED.td",
		CommitID:         "0123456789abcdef0123456789abcdef01234567",
		EntriesIndexed:   17,
		ChangesDetected:  4,
		AuditHeight:      9,
		SkippedNoChanges: false,
		Timestamp:        time.Now(),
	}

	receivedCh := make(chan event.IndexCompletedEvent, 1)

	eb.SubscribeFunc(event.IndexCompletedEventType, func(evt event.Event) {
		if idxEvent, ok := evt.Data.(event.IndexCompletedEvent); ok {
			receivedCh <- idxEvent
		}
	})

	eb.Publish(
		event.IndexCompletedEventType,
		event.NewEvent(event.IndexCompletedEventType, testEvent),
	)

	select {
	case received := <-receivedCh:
		assert.Equal(t, testEvent.RepoSlug, received.RepoSlug)
		assert.Equal(t, testEvent.FilePath, received.FilePath)
		assert.Equal(t, testEvent.CommitID, received.CommitID)
		assert.Equal(t, testEvent.EntriesIndexed, received.EntriesIndexed)
		assert.Equal(t, testEvent.ChangesDetected, received.ChangesDetected)
		assert.Equal(t, testEvent.AuditHeight, received.AuditHeight)
		assert.False(t, received.SkippedNoChanges)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for index completed event via SubscribeFunc")
	}
}

func TestIndexFailedEventPublishSubscribe(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	testEvent := event.IndexFailedEvent{
		RepoSlug:  "github.com/example/missing",
		Status:    "not_found",
		Message:   "no trust list file in repository",
		Timestamp: time.Now(),
	}

	_, subCh := eb.Subscribe(event.IndexFailedEventType)

	eb.Publish(
		event.IndexFailedEventType,
		event.NewEvent(event.IndexFailedEventType, testEvent),
	)

	select {
	case evt, ok := <-subCh:
		require.True(t, ok, "event channel closed unexpectedly")
		failEvent, ok := evt.Data.(event.IndexFailedEvent)
		require.True(t, ok, "event data was not IndexFailedEvent")
		assert.Equal(t, "github.com/example/missing", failEvent.RepoSlug)
		assert.Equal(t, "not_found", failEvent.Status)
		assert.Equal(t, "no trust list file in repository", failEvent.Message)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for index failed event")
	}
}

func TestBlockAddedEventZeroValues(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	testEvent := event.BlockAddedEvent{}

	_, subCh := eb.Subscribe(event.BlockAddedEventType)

	eb.Publish(
		event.BlockAddedEventType,
		event.NewEvent(event.BlockAddedEventType, testEvent),
	)

	select {
	case evt, ok := <-subCh:
		require.True(t, ok, "event channel closed unexpectedly")
		blockEvent, ok := evt.Data.(event.BlockAddedEvent)
		require.True(t, ok, "event data was not BlockAddedEvent")
		assert.Empty(t, blockEvent.RepoSlug)
		assert.Equal(t, uint64(0), blockEvent.Height)
		assert.Empty(t, blockEvent.BlockHash)
		assert.Equal(t, 0, blockEvent.Added)
		assert.Equal(t, 0, blockEvent.Removed)
		assert.Equal(t, 0, blockEvent.Changed)
		assert.True(t, blockEvent.Timestamp.IsZero())
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for zero-value block added event")
	}
}
