// Copyright 2019 Dolthub, Inc.
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

// Package rle implements the run-length row structure shared by the
// shape encoder, byte-position encoder, and chunk-id encoder: rows of
// (value, lastIndex) sorted by lastIndex, looked up by binary search.
// Appending a value equal to the previous row's value just bumps
// lastIndex; otherwise a new row is pushed. Equality is a strict
// tie-break — it means exact value equality, not "close enough".
package rle

import (
	"sort"

	"github.com/pkg/errors"
)

// Row is one run: value holds for every index in (previous row's
// LastIndex, LastIndex].
type Row[V any] struct {
	Value     V
	LastIndex uint64
}

// Encoder is a generic run-length map from a dense, zero-based local index
// to a value, comparing values with an injected equality function so V need
// not be comparable with ==.
type Encoder[V any] struct {
	rows  []Row[V]
	equal func(a, b V) bool
}

// New returns an empty Encoder using eq to decide whether two values belong
// to the same run.
func New[V any](eq func(a, b V) bool) *Encoder[V] {
	return &Encoder[V]{equal: eq}
}

// NumRows reports the number of runs.
func (e *Encoder[V]) NumRows() int {
	return len(e.rows)
}

// Rows exposes the underlying rows for serialization. The returned slice
// shares the encoder's storage, so edits to its elements are seen by the
// encoder (chunkid.Encoder.RegisterSamples extends the last row's
// LastIndex this way); rows must stay sorted by LastIndex.
func (e *Encoder[V]) Rows() []Row[V] {
	return e.rows
}

// SetRows replaces the encoder's rows wholesale, used when deserializing
// and by callers that push a row directly. Rows must already be sorted by
// LastIndex; this is not re-validated here.
func (e *Encoder[V]) SetRows(rows []Row[V]) {
	e.rows = rows
}

// NumEntries returns the total count of logical indices covered, i.e. the
// last row's LastIndex + 1, or 0 if empty.
func (e *Encoder[V]) NumEntries() uint64 {
	if len(e.rows) == 0 {
		return 0
	}
	return e.rows[len(e.rows)-1].LastIndex + 1
}

// Append adds one more logical index with the given value. If it matches
// the previous row's value exactly (per the injected equality function),
// the previous row's LastIndex is extended by one; otherwise a new row is
// pushed with LastIndex = previous LastIndex + 1 (or 0 if this is the
// first row).
func (e *Encoder[V]) Append(v V) {
	if n := len(e.rows); n > 0 && e.equal(e.rows[n-1].Value, v) {
		e.rows[n-1].LastIndex++
		return
	}

	var next uint64
	if n := len(e.rows); n > 0 {
		next = e.rows[n-1].LastIndex + 1
	}
	e.rows = append(e.rows, Row[V]{Value: v, LastIndex: next})
}

// LookupByLocal returns the value covering local index i: the smallest row
// whose LastIndex >= i, so a boundary index resolves to the earlier row.
func (e *Encoder[V]) LookupByLocal(i uint64) (V, error) {
	var zero V
	idx := sort.Search(len(e.rows), func(k int) bool {
		return e.rows[k].LastIndex >= i
	})
	if idx == len(e.rows) {
		return zero, errors.Errorf("rle: local index %d out of range (num entries %d)", i, e.NumEntries())
	}
	return e.rows[idx].Value, nil
}

// RowForLocal is like LookupByLocal but returns the owning row index and
// the local index relative to the start of that row (i.e. i minus the
// previous row's LastIndex + 1).
func (e *Encoder[V]) RowForLocal(i uint64) (rowIdx int, offsetInRow uint64, err error) {
	idx := sort.Search(len(e.rows), func(k int) bool {
		return e.rows[k].LastIndex >= i
	})
	if idx == len(e.rows) {
		return 0, 0, errors.Errorf("rle: local index %d out of range (num entries %d)", i, e.NumEntries())
	}
	var prevLast uint64
	if idx > 0 {
		prevLast = e.rows[idx-1].LastIndex + 1
	}
	return idx, i - prevLast, nil
}
