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

package engine

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub-labs/tensorstore/blobstore"
	"github.com/dolthub-labs/tensorstore/chunkid"
	"github.com/dolthub-labs/tensorstore/hashlist"
	"github.com/dolthub-labs/tensorstore/lru"
	"github.com/dolthub-labs/tensorstore/tensormeta"
	"github.com/dolthub-labs/tensorstore/tserrors"
)

func newTestEngine(t *testing.T, maxChunkSize int) *ChunkEngine {
	t.Helper()
	bs := blobstore.NewMemoryBlobstore()
	cache := lru.New(bs, 1<<30, 1<<30, false)
	e := New(cache, "tensors/x", nil)

	cs := maxChunkSize
	require.NoError(t, e.Create(context.Background(), tensormeta.DefaultHtype, tensormeta.Overrides{ChunkSize: &cs}))
	return e
}

func bytesOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestFirstAppendCreatesExactlyOneChunk(t *testing.T) {
	e := newTestEngine(t, 32<<20)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, bytesOf(100, 1), []uint32{100}, "uint8"))

	encoder, err := e.chunkIDEncoder(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, encoder.NumChunks())
	assert.Equal(t, uint64(1), encoder.NumSamples())
}

// TestDensePackingRespectsSizeInvariants appends a mix of small and large
// samples and checks the packing invariants that must hold regardless of
// the exact grouping: every chunk stays at or under max_chunk_size, every
// non-final chunk stays at or over min_chunk_size, and total bytes stored
// equals total bytes appended. See DESIGN.md's packer-boundary note for why
// this checks invariants rather than one specific grouping.
func TestDensePackingRespectsSizeInvariants(t *testing.T) {
	mib := 1 << 20
	maxChunkSize := 32 * mib
	minChunkSize := maxChunkSize / 2
	e := newTestEngine(t, maxChunkSize)
	ctx := context.Background()

	sizes := []int{1 * mib, 1 * mib, 14 * mib, 15 * mib, 15 * mib, 15 * mib, 1 * mib}
	total := 0
	for i, sz := range sizes {
		require.NoError(t, e.Append(ctx, bytesOf(sz, byte(i)), []uint32{uint32(sz)}, "uint8"))
		total += sz
	}

	encoder, err := e.chunkIDEncoder(ctx)
	require.NoError(t, err)

	sum := 0
	for id := uint64(1); id <= uint64(encoder.NumChunks()); id++ {
		c, err := e.chunkByID(ctx, id)
		require.NoError(t, err)
		assert.LessOrEqual(t, c.NumDataBytes(), maxChunkSize)
		if id != uint64(encoder.NumChunks()) {
			assert.GreaterOrEqual(t, c.NumDataBytes(), minChunkSize, "non-final chunk %d is under-min", id)
		}
		sum += c.NumDataBytes()
	}
	assert.Equal(t, total, sum)
}

// TestExtendLastChunkNeverSplitsASample checks that an under-min last chunk
// absorbs the next sample whole rather than being split across chunks:
// since every accepted sample is bounded by min_chunk_size and an under-min
// last chunk is by definition smaller than min_chunk_size, their sum never
// reaches max_chunk_size, so the sample always folds into the last chunk.
func TestExtendLastChunkNeverSplitsASample(t *testing.T) {
	mib := 1 << 20
	maxChunkSize := 32 * mib
	e := newTestEngine(t, maxChunkSize)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, bytesOf(1*mib, 1), []uint32{uint32(1 * mib)}, "uint8"))
	require.NoError(t, e.Append(ctx, bytesOf(16*mib, 2), []uint32{uint32(16 * mib)}, "uint8"))

	encoder, err := e.chunkIDEncoder(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, encoder.NumChunks())

	c, err := e.chunkByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 17*mib, c.NumDataBytes())
}

func TestRoundTrip(t *testing.T) {
	e := newTestEngine(t, 32<<20)
	ctx := context.Background()

	samples := [][]byte{
		bytesOf(64, 1),
		bytesOf(64, 2),
		bytesOf(64, 3),
		bytesOf(64, 4),
	}
	for _, s := range samples {
		require.NoError(t, e.Append(ctx, s, []uint32{64}, "uint8"))
	}

	out, err := e.Numpy(ctx, []uint64{0}, true)
	require.NoError(t, err)
	assert.Equal(t, samples[0], out[0].Data)

	out, err = e.Numpy(ctx, []uint64{1, 2}, true)
	require.NoError(t, err)
	assert.Equal(t, samples[1], out[0].Data)
	assert.Equal(t, samples[2], out[1].Data)

	out, err = e.Numpy(ctx, []uint64{0, 1, 2, 3}, true)
	require.NoError(t, err)
	for i, s := range samples {
		assert.Equal(t, s, out[i].Data)
	}
}

func TestDynamicShapeDenseReadFails(t *testing.T) {
	e := newTestEngine(t, 32<<20)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, bytesOf(100, 1), []uint32{10, 10}, "uint8"))
	require.NoError(t, e.Append(ctx, bytesOf(200, 2), []uint32{20, 10}, "uint8"))

	_, err := e.Numpy(ctx, []uint64{0, 1}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tserrors.ErrDynamicTensorRead))

	out, err := e.Numpy(ctx, []uint64{0, 1}, false)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 10}, out[0].Shape)
	assert.Equal(t, []uint32{20, 10}, out[1].Shape)
}

func TestDtypeLockRejectsChange(t *testing.T) {
	e := newTestEngine(t, 32<<20)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, bytesOf(4, 1), []uint32{1}, "float32"))
	err := e.Append(ctx, bytesOf(8, 1), []uint32{1}, "float64")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tserrors.ErrTensorMetaMismatch))
}

func TestOversizeSampleRejectedWithoutChangingLength(t *testing.T) {
	e := newTestEngine(t, 1<<20)
	ctx := context.Background()

	err := e.Append(ctx, bytesOf(2<<20, 1), []uint32{2 << 20}, "uint8")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tserrors.ErrSampleTooLarge))

	meta, err := e.meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), meta.Length)
}

func TestHashingRecordsDigestsInOrder(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	cache := lru.New(bs, 1<<30, 1<<30, false)
	e := New(cache, "tensors/x", nil)

	cs := 32 << 20
	hashOn := true
	require.NoError(t, e.Create(context.Background(), tensormeta.DefaultHtype, tensormeta.Overrides{ChunkSize: &cs, HashSamples: &hashOn}))

	ctx := context.Background()
	samples := [][]byte{bytesOf(10, 1), bytesOf(10, 2), bytesOf(10, 3)}
	for _, s := range samples {
		require.NoError(t, e.Append(ctx, s, []uint32{10}, "uint8"))
	}

	hl, err := e.hashlistObj(ctx)
	require.NoError(t, err)
	require.Equal(t, len(samples), hl.Len())
	for i, s := range samples {
		got, err := hl.At(i)
		require.NoError(t, err)
		assert.Equal(t, hashlist.Sum(s), got)
	}
}

func TestValidateNumSamplesIsSynchronized(t *testing.T) {
	e := newTestEngine(t, 32<<20)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, bytesOf(4, 1), []uint32{1}, "float32"))
	assert.NoError(t, e.ValidateNumSamplesIsSynchronized(ctx))
}

func TestGetChunkNamesZeroTargetReturnsEmpty(t *testing.T) {
	e := newTestEngine(t, 32<<20)
	ctx := context.Background()
	require.NoError(t, e.Append(ctx, bytesOf(4, 1), []uint32{1}, "float32"))

	names, err := e.GetChunkNames(ctx, 0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestGetChunkNamesDoesNotSplitFinalChunk(t *testing.T) {
	mib := 1 << 20
	e := newTestEngine(t, 32*mib)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, e.Append(ctx, bytesOf(10*mib, byte(i)), []uint32{uint32(10 * mib)}, "uint8"))
	}

	encoder, err := e.chunkIDEncoder(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, encoder.NumChunks())

	names, err := e.GetChunkNames(ctx, 0, 3, 1)
	require.NoError(t, err)
	require.Len(t, names, 1)
	for _, idx := range []uint64{0, 1} {
		id, err := encoder.ChunkIDForSample(idx)
		require.NoError(t, err)
		assert.Contains(t, names, chunkid.NameFromID(id))
	}
	id2, err := encoder.ChunkIDForSample(2)
	require.NoError(t, err)
	assert.NotContains(t, names, chunkid.NameFromID(id2))
}
