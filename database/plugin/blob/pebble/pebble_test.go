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

package pebble_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openvouch/vouchd/database/plugin/blob/pebble"
	"github.com/openvouch/vouchd/database/types"
)

func newTestStore(t *testing.T) *pebble.BlobStorePebble {
	t.Helper()
	// Empty data dir gives an in-memory store
	store, err := pebble.New()
	if err != nil {
		t.Fatalf("unexpected error creating store: %s", err)
	}
	t.Cleanup(func() {
		store.Close() //nolint:errcheck
	})
	return store
}

func TestBasicOps(t *testing.T) {
	store := newTestStore(t)
	testKey := []byte("test-key")
	testVal := []byte("test-value")

	// Write
	txn := store.NewTransaction(true)
	if err := store.Set(txn, testKey, testVal); err != nil {
		t.Fatalf("unexpected error on set: %s", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("unexpected error on commit: %s", err)
	}

	// Read back
	txn = store.NewTransaction(false)
	val, err := store.Get(txn, testKey)
	if err != nil {
		t.Fatalf("unexpected error on get: %s", err)
	}
	if !bytes.Equal(val, testVal) {
		t.Fatalf("did not get expected value: got %q, wanted %q", val, testVal)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatalf("unexpected error on rollback: %s", err)
	}

	// Delete
	txn = store.NewTransaction(true)
	if err := store.Delete(txn, testKey); err != nil {
		t.Fatalf("unexpected error on delete: %s", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("unexpected error on commit: %s", err)
	}
	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	if _, err := store.Get(txn, testKey); !errors.Is(err, types.ErrBlobKeyNotFound) {
		t.Fatalf("expected ErrBlobKeyNotFound, got %v", err)
	}
}

func TestReadOwnWrites(t *testing.T) {
	store := newTestStore(t)
	testKey := []byte("pending-key")
	testVal := []byte("pending-value")

	txn := store.NewTransaction(true)
	defer txn.Rollback() //nolint:errcheck
	if err := store.Set(txn, testKey, testVal); err != nil {
		t.Fatalf("unexpected error on set: %s", err)
	}
	// Uncommitted writes must be visible within the same transaction
	val, err := store.Get(txn, testKey)
	if err != nil {
		t.Fatalf("unexpected error on get: %s", err)
	}
	if !bytes.Equal(val, testVal) {
		t.Fatalf("did not get expected value: got %q, wanted %q", val, testVal)
	}
}

func TestReadOnlyTxnRejectsWrites(t *testing.T) {
	store := newTestStore(t)
	txn := store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	if err := store.Set(txn, []byte("k"), []byte("v")); !errors.Is(err, pebble.ErrReadOnlyTxn) {
		t.Fatalf("expected ErrReadOnlyTxn, got %v", err)
	}
	if err := store.Delete(txn, []byte("k")); !errors.Is(err, pebble.ErrReadOnlyTxn) {
		t.Fatalf("expected ErrReadOnlyTxn, got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store := newTestStore(t)
	testKey := []byte("snap-key")

	// Seed initial value
	txn := store.NewTransaction(true)
	if err := store.Set(txn, testKey, []byte("before")); err != nil {
		t.Fatalf("unexpected error on set: %s", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("unexpected error on commit: %s", err)
	}

	// Open a read-only transaction, then write a new value
	roTxn := store.NewTransaction(false)
	defer roTxn.Rollback() //nolint:errcheck
	rwTxn := store.NewTransaction(true)
	if err := store.Set(rwTxn, testKey, []byte("after")); err != nil {
		t.Fatalf("unexpected error on set: %s", err)
	}
	if err := rwTxn.Commit(); err != nil {
		t.Fatalf("unexpected error on commit: %s", err)
	}

	// The read-only transaction must still observe the snapshot value
	val, err := store.Get(roTxn, testKey)
	if err != nil {
		t.Fatalf("unexpected error on get: %s", err)
	}
	if !bytes.Equal(val, []byte("before")) {
		t.Fatalf(
			"did not get expected value: got %q, wanted %q",
			val,
			"before",
		)
	}
}

func TestIteratorPrefix(t *testing.T) {
	store := newTestStore(t)
	txn := store.NewTransaction(true)
	testKeys := [][]byte{
		[]byte("aaa/1"),
		[]byte("aaa/2"),
		[]byte("bbb/1"),
	}
	for _, key := range testKeys {
		if err := store.Set(txn, key, []byte("v")); err != nil {
			t.Fatalf("unexpected error on set: %s", err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("unexpected error on commit: %s", err)
	}

	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	prefix := []byte("aaa/")
	iter := store.NewIterator(txn, types.BlobIteratorOptions{Prefix: prefix})
	defer iter.Close()
	var gotKeys []string
	for iter.Rewind(); iter.ValidForPrefix(prefix); iter.Next() {
		gotKeys = append(gotKeys, string(iter.Item().Key()))
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("unexpected iterator error: %s", err)
	}
	if len(gotKeys) != 2 || gotKeys[0] != "aaa/1" || gotKeys[1] != "aaa/2" {
		t.Fatalf("unexpected keys: got %v", gotKeys)
	}
}

func TestIteratorReverse(t *testing.T) {
	store := newTestStore(t)
	txn := store.NewTransaction(true)
	for _, key := range []string{"r/1", "r/2", "r/3"} {
		if err := store.Set(txn, []byte(key), []byte("v")); err != nil {
			t.Fatalf("unexpected error on set: %s", err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("unexpected error on commit: %s", err)
	}

	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	prefix := []byte("r/")
	iter := store.NewIterator(
		txn,
		types.BlobIteratorOptions{Prefix: prefix, Reverse: true},
	)
	defer iter.Close()
	var gotKeys []string
	for iter.Rewind(); iter.ValidForPrefix(prefix); iter.Next() {
		gotKeys = append(gotKeys, string(iter.Item().Key()))
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("unexpected iterator error: %s", err)
	}
	if len(gotKeys) != 3 || gotKeys[0] != "r/3" || gotKeys[2] != "r/1" {
		t.Fatalf("unexpected keys: got %v", gotKeys)
	}
}

func TestCommitTimestamp(t *testing.T) {
	store := newTestStore(t)
	txn := store.NewTransaction(true)
	if err := store.SetCommitTimestamp(txn, 98765); err != nil {
		t.Fatalf("unexpected error setting commit timestamp: %s", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("unexpected error on commit: %s", err)
	}
	ts, err := store.GetCommitTimestamp()
	if err != nil {
		t.Fatalf("unexpected error getting commit timestamp: %s", err)
	}
	if ts != 98765 {
		t.Fatalf("unexpected commit timestamp: got %d, wanted 98765", ts)
	}
}
