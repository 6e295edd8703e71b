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

package pebble

import (
	"bytes"
	"errors"

	pebble "github.com/cockroachdb/pebble"
	"github.com/openvouch/vouchd/database/types"
)

// ErrReadOnlyTxn is returned when attempting to write using a read-only
// transaction
var ErrReadOnlyTxn = errors.New("cannot write using read-only transaction")

// pebbleTxn wraps a pebble batch or snapshot and implements types.Txn. A
// read-write transaction carries an indexed batch, a read-only transaction
// carries a snapshot.
type pebbleTxn struct {
	store    *BlobStorePebble
	batch    *pebble.Batch
	snap     *pebble.Snapshot
	finished bool
}

func newPebbleTxn(
	store *BlobStorePebble,
	batch *pebble.Batch,
	snap *pebble.Snapshot,
) *pebbleTxn {
	return &pebbleTxn{store: store, batch: batch, snap: snap}
}

// reader returns the handle to read through for this transaction
func (t *pebbleTxn) reader() pebble.Reader {
	if t.batch != nil {
		return t.batch
	}
	return t.snap
}

// validateTxn validates a types.Txn for this BlobStore and returns the
// underlying *pebbleTxn if valid.
func (d *BlobStorePebble) validateTxn(txn types.Txn) (*pebbleTxn, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	pebbleTxn, ok := txn.(*pebbleTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if pebbleTxn.store != d {
		return nil, errors.New("transaction from different store")
	}
	if err := pebbleTxn.validateTxn(); err != nil {
		return nil, err
	}
	return pebbleTxn, nil
}

// validateTxn checks if the transaction is still valid for use
func (t *pebbleTxn) validateTxn() error {
	if t.finished {
		return errors.New("transaction already finished")
	}
	if t.batch == nil && t.snap == nil {
		return types.ErrBlobStoreUnavailable
	}
	return nil
}

func (t *pebbleTxn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if t.batch != nil {
		return t.batch.Commit(t.store.writeOptions())
	}
	if t.snap != nil {
		// Nothing to write for a read-only transaction
		return t.snap.Close()
	}
	return nil
}

func (t *pebbleTxn) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if t.batch != nil {
		return t.batch.Close()
	}
	if t.snap != nil {
		return t.snap.Close()
	}
	return nil
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	reverse bool
	started bool
}

func (it *pebbleIterator) Rewind() {
	it.started = true
	if it.reverse {
		it.iter.Last()
	} else {
		it.iter.First()
	}
}

func (it *pebbleIterator) Seek(prefix []byte) {
	it.started = true
	if it.reverse {
		// Position at the last key within the prefix range
		upper := prefixUpperBound(prefix)
		if upper == nil {
			it.iter.Last()
		} else {
			it.iter.SeekLT(upper)
		}
	} else {
		it.iter.SeekGE(prefix)
	}
}

func (it *pebbleIterator) Valid() bool {
	if !it.started {
		return false
	}
	return it.iter.Valid()
}

func (it *pebbleIterator) ValidForPrefix(p []byte) bool {
	if !it.Valid() {
		return false
	}
	return bytes.HasPrefix(it.iter.Key(), p)
}

func (it *pebbleIterator) Next() {
	if it.reverse {
		it.iter.Prev()
	} else {
		it.iter.Next()
	}
}

func (it *pebbleIterator) Item() types.BlobItem {
	// Copy out since pebble keys and values are only valid until the next
	// iterator positioning call
	key := make([]byte, len(it.iter.Key()))
	copy(key, it.iter.Key())
	val := make([]byte, len(it.iter.Value()))
	copy(val, it.iter.Value())
	return &pebbleItem{key: key, value: val}
}

func (it *pebbleIterator) Close() {
	it.iter.Close() //nolint:errcheck
}

func (it *pebbleIterator) Err() error {
	return it.iter.Error()
}

// errorIterator is returned when an iterator cannot be created, surfacing
// the creation error through Err()
type errorIterator struct {
	err error
}

func (it *errorIterator) Rewind()                      {}
func (it *errorIterator) Seek(prefix []byte)           {}
func (it *errorIterator) Valid() bool                  { return false }
func (it *errorIterator) ValidForPrefix(p []byte) bool { return false }
func (it *errorIterator) Next()                        {}
func (it *errorIterator) Item() types.BlobItem         { return nil }
func (it *errorIterator) Close()                       {}
func (it *errorIterator) Err() error                   { return it.err }

type pebbleItem struct {
	key   []byte
	value []byte
}

func (i *pebbleItem) Key() []byte {
	return i.key
}

func (i *pebbleItem) ValueCopy(dst []byte) ([]byte, error) {
	if cap(dst) >= len(i.value) {
		dst = dst[:len(i.value)]
		copy(dst, i.value)
		return dst, nil
	}
	ret := make([]byte, len(i.value))
	copy(ret, i.value)
	return ret, nil
}
