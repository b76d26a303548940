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

// Package chunkid implements the tensor-level bidirectional map between a
// global sample index and the chunk id holding it.
package chunkid

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/dolthub-labs/tensorstore/cachable"
	"github.com/dolthub-labs/tensorstore/rle"
)

// NameWidth is the fixed hex width of an on-disk chunk name.
const NameWidth = 16 // 64-bit id -> 16 hex digits

func idEqual(a, b uint64) bool { return a == b }

// Encoder is the run-length map from global sample index to chunk id.
type Encoder struct {
	rows *rle.Encoder[uint64]
}

var _ cachable.Cachable = (*Encoder)(nil)

func init() {
	cachable.Register(cachable.KindChunkIDEncoder, func() cachable.Cachable { return New() })
}

// New returns an empty chunk-id encoder.
func New() *Encoder {
	return &Encoder{rows: rle.New(idEqual)}
}

func (e *Encoder) Kind() cachable.Kind { return cachable.KindChunkIDEncoder }

// NumChunks is the number of rows, i.e. distinct chunks registered.
func (e *Encoder) NumChunks() int {
	return e.rows.NumRows()
}

// NumSamples is the last row's LastIndex + 1, or 0 if empty.
func (e *Encoder) NumSamples() uint64 {
	return e.rows.NumEntries()
}

// ChunkIDForSample returns the chunk id holding globalIndex.
func (e *Encoder) ChunkIDForSample(globalIndex uint64) (uint64, error) {
	id, err := e.rows.LookupByLocal(globalIndex)
	if err != nil {
		return 0, errors.Wrap(err, "chunkid: sample index out of range")
	}
	return id, nil
}

// TranslateIndexRelativeToChunks converts a global sample index into the
// local index within its owning chunk.
func (e *Encoder) TranslateIndexRelativeToChunks(globalIndex uint64) (uint64, error) {
	_, offset, err := e.rows.RowForLocal(globalIndex)
	if err != nil {
		return 0, errors.Wrap(err, "chunkid: sample index out of range")
	}
	return offset, nil
}

// GenerateChunkID returns the next chunk id: 1 if the encoder is empty,
// else the last row's chunk id + 1. It does not register anything; callers
// must follow up with RegisterSamples once the chunk has actually received
// data.
func (e *Encoder) GenerateChunkID() uint64 {
	rows := e.rows.Rows()
	if len(rows) == 0 {
		return 1
	}
	return rows[len(rows)-1].Value + 1
}

// RegisterSamples registers n newly-appended samples as living in chunkID.
// If the last row already names chunkID (the append extended the last
// chunk), its LastIndex is extended by n; otherwise a new row is appended
// (the append went to a freshly created chunk).
func (e *Encoder) RegisterSamples(chunkID uint64, n uint64) {
	rows := e.rows.Rows()
	if len(rows) > 0 && rows[len(rows)-1].Value == chunkID {
		rows[len(rows)-1].LastIndex += n
		return
	}

	var next uint64
	if len(rows) > 0 {
		next = rows[len(rows)-1].LastIndex + n
	} else {
		next = n - 1
	}
	e.rows.SetRows(append(rows, rle.Row[uint64]{Value: chunkID, LastIndex: next}))
}

// LastChunkID returns the chunk id of the last registered row, or false if
// no chunk has been registered yet. An id returned by GenerateChunkID but
// not yet passed to RegisterSamples is not reported.
func (e *Encoder) LastChunkID() (uint64, bool) {
	rows := e.rows.Rows()
	if len(rows) == 0 {
		return 0, false
	}
	return rows[len(rows)-1].Value, true
}

// NameFromID renders a chunk id as its fixed-width lowercase hex chunk
// name.
func NameFromID(id uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, NameWidth)
	for i := NameWidth - 1; i >= 0; i-- {
		buf[i] = hexDigits[id&0xf]
		id >>= 4
	}
	return string(buf)
}

// GetNameForChunk returns the chunk name at position pos, where pos may be
// negative to index from the end (pos == -1 is the last chunk, matching
// the original's `get_name_for_chunk(-1)`).
func (e *Encoder) GetNameForChunk(pos int) (string, error) {
	rows := e.rows.Rows()
	n := len(rows)
	if n == 0 {
		return "", errors.New("chunkid: no chunks registered")
	}
	idx := pos
	if idx < 0 {
		idx = n + idx
	}
	if idx < 0 || idx >= n {
		return "", errors.Errorf("chunkid: position %d out of range (num chunks %d)", pos, n)
	}
	return NameFromID(rows[idx].Value), nil
}

// ToBytes serializes the encoder as
// [u32 nrows][nrows x (chunk_id u64, last_global_index u64)].
func (e *Encoder) ToBytes() ([]byte, error) {
	rows := e.rows.Rows()
	buf := make([]byte, 4+len(rows)*16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(rows)))
	off := 4
	for _, r := range rows {
		binary.LittleEndian.PutUint64(buf[off:off+8], r.Value)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], r.LastIndex)
		off += 16
	}
	return buf, nil
}

// FromBytes deserializes an encoder produced by ToBytes.
func (e *Encoder) FromBytes(data []byte) error {
	if len(data) < 4 {
		return errors.New("chunkid: truncated header")
	}
	nrows := binary.LittleEndian.Uint32(data[0:4])
	want := 4 + int(nrows)*16
	if len(data) < want {
		return errors.Errorf("chunkid: truncated rows, want %d bytes got %d", want, len(data))
	}

	rows := make([]rle.Row[uint64], 0, nrows)
	off := 4
	for i := uint32(0); i < nrows; i++ {
		id := binary.LittleEndian.Uint64(data[off : off+8])
		last := binary.LittleEndian.Uint64(data[off+8 : off+16])
		rows = append(rows, rle.Row[uint64]{Value: id, LastIndex: last})
		off += 16
	}

	e.rows = rle.New(idEqual)
	e.rows.SetRows(rows)
	return nil
}

// NBytes is the live in-memory footprint for cache accounting.
func (e *Encoder) NBytes() int {
	return 4 + e.rows.NumRows()*16
}
