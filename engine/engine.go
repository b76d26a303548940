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

// Package engine implements the chunk engine: it orchestrates tensor meta,
// the chunk-id encoder, chunks, and the hashlist behind a write-back cache,
// and owns the packer decision that keeps chunks near full while never
// splitting a sample across two chunks.
package engine

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub-labs/tensorstore/cachable"
	"github.com/dolthub-labs/tensorstore/chunk"
	"github.com/dolthub-labs/tensorstore/chunkid"
	"github.com/dolthub-labs/tensorstore/codec"
	"github.com/dolthub-labs/tensorstore/hashlist"
	"github.com/dolthub-labs/tensorstore/lru"
	"github.com/dolthub-labs/tensorstore/tensormeta"
	"github.com/dolthub-labs/tensorstore/tserrors"
)

// ChunkEngine orchestrates one tensor's chunk layout over a shared
// write-back cache. It holds a handle to the cache plus a tensor key and
// fetches typed views on demand, rather than holding direct references to
// cached objects, so the cache remains the sole owner of everything it
// holds.
type ChunkEngine struct {
	cache     *lru.Cache
	tensorKey string
	codec     codec.Codec
	log       *logrus.Entry
}

// New returns a ChunkEngine over the given tensor key. A nil codec defaults
// to codec.Identity.
func New(cache *lru.Cache, tensorKey string, c codec.Codec) *ChunkEngine {
	if c == nil {
		c = codec.Identity{}
	}
	return &ChunkEngine{
		cache:     cache,
		tensorKey: tensorKey,
		codec:     c,
		log:       logrus.WithField("tensor", tensorKey),
	}
}

func (e *ChunkEngine) tensorMetaKey() string { return e.tensorKey + "/tensor_meta.json" }
func (e *ChunkEngine) chunkIDKey() string    { return e.tensorKey + "/chunk_id_encoder" }
func (e *ChunkEngine) hashlistKey() string   { return e.tensorKey + "/hashlist" }
func (e *ChunkEngine) chunkKey(name string) string { return e.tensorKey + "/chunks/" + name }

// Create initializes a new tensor's metadata and empty chunk-id encoder.
func (e *ChunkEngine) Create(ctx context.Context, htype string, overrides tensormeta.Overrides) error {
	if err := e.cache.CheckReadOnly(); err != nil {
		return err
	}

	meta, err := tensormeta.Create(htype, overrides)
	if err != nil {
		return err
	}
	if err := e.cache.Set(e.tensorMetaKey(), meta); err != nil {
		return err
	}
	if err := e.cache.Set(e.chunkIDKey(), chunkid.New()); err != nil {
		return err
	}
	if meta.HashSamples {
		if err := e.cache.Set(e.hashlistKey(), hashlist.New()); err != nil {
			return err
		}
	}
	return nil
}

func (e *ChunkEngine) meta(ctx context.Context) (*tensormeta.TensorMeta, error) {
	obj, err := e.cache.GetCachable(ctx, e.tensorMetaKey(), cachable.KindTensorMeta)
	if err != nil {
		return nil, err
	}
	m, ok := obj.(*tensormeta.TensorMeta)
	if !ok {
		return nil, errors.New("engine: tensor meta cache entry has the wrong type")
	}
	return m, nil
}

func (e *ChunkEngine) chunkIDEncoder(ctx context.Context) (*chunkid.Encoder, error) {
	obj, err := e.cache.GetCachable(ctx, e.chunkIDKey(), cachable.KindChunkIDEncoder)
	if err != nil {
		return nil, err
	}
	enc, ok := obj.(*chunkid.Encoder)
	if !ok {
		return nil, errors.New("engine: chunk-id encoder cache entry has the wrong type")
	}
	return enc, nil
}

func (e *ChunkEngine) hashlistObj(ctx context.Context) (*hashlist.Hashlist, error) {
	obj, err := e.cache.GetCachable(ctx, e.hashlistKey(), cachable.KindHashlist)
	if err != nil {
		return nil, err
	}
	hl, ok := obj.(*hashlist.Hashlist)
	if !ok {
		return nil, errors.New("engine: hashlist cache entry has the wrong type")
	}
	return hl, nil
}

func (e *ChunkEngine) chunkByID(ctx context.Context, id uint64) (*chunk.Chunk, error) {
	obj, err := e.cache.GetCachable(ctx, e.chunkKey(chunkid.NameFromID(id)), cachable.KindChunk)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*chunk.Chunk)
	if !ok {
		return nil, errors.New("engine: chunk cache entry has the wrong type")
	}
	return c, nil
}

func (e *ChunkEngine) lastChunk(ctx context.Context, encoder *chunkid.Encoder) (*chunk.Chunk, uint64, bool, error) {
	id, ok := encoder.LastChunkID()
	if !ok {
		return nil, 0, false, nil
	}
	c, err := e.chunkByID(ctx, id)
	if err != nil {
		return nil, 0, false, err
	}
	return c, id, true, nil
}

// decideExtend decides whether the next sample's buffer should be folded
// into the tensor's last chunk rather than starting a fresh one. A chunk at
// or above minChunkSize is considered full and never receives more data.
// Below that, the buffer is folded in only if doing so doesn't push the
// chunk count for these bytes any higher than packing them alone would —
// in practice this always holds here, since callers only reach this point
// with buffers already bounded by minChunkSize.
func decideExtend(last *chunk.Chunk, maxChunkSize, minChunkSize int, buffer []byte) (consumed bool) {
	if last == nil {
		return false
	}
	l := last.NumDataBytes()
	if l >= minChunkSize {
		return false
	}
	b := len(buffer)
	ccOnly := ceilDiv(b, maxChunkSize)
	ccCombined := ceilDiv(b+l, maxChunkSize)
	return ccCombined == ccOnly
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func u32ToInt(shape []uint32) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}
	return out
}

// Append adds one sample to the tensor. raw is the uncompressed sample used
// for hashing; the encoded form is what gets stored. raw goes through the
// codec only when the tensor's sample_compression is set, so the encoded
// form equals raw otherwise (and always with the default identity codec).
func (e *ChunkEngine) Append(ctx context.Context, raw []byte, shape []uint32, dtype string) error {
	if err := e.cache.CheckReadOnly(); err != nil {
		return err
	}

	meta, err := e.meta(ctx)
	if err != nil {
		return err
	}

	encoded := raw
	if meta.SampleCompression != "" {
		encoded, err = e.codec.Encode(raw, u32ToInt(shape))
		if err != nil {
			return errors.Wrap(err, "engine: encode sample")
		}
	}

	minChunkSize := meta.MaxChunkSize / 2
	if len(encoded) > minChunkSize {
		hint := ""
		if meta.SampleCompression == "" {
			hint = "; consider enabling compression"
		}
		return errors.Wrapf(tserrors.ErrSampleTooLarge, "sample is %d bytes, min_chunk_size is %d%s", len(encoded), minChunkSize, hint)
	}

	return e.appendEncoded(ctx, meta, raw, encoded, shape, dtype)
}

// appendEncoded does the shared work of recording one sample whose encoded
// size has already been checked against min_chunk_size: validating it
// against the tensor's locked dtype/shape, updating tensor meta, picking a
// recipient chunk, and persisting everything that changed.
func (e *ChunkEngine) appendEncoded(ctx context.Context, meta *tensormeta.TensorMeta, raw, encoded []byte, shape []uint32, dtype string) error {
	shapeInts := u32ToInt(shape)
	if err := meta.CheckBatchIsCompatible(dtype, shapeInts); err != nil {
		return err
	}
	adapted, err := meta.Adapt(encoded, dtype)
	if err != nil {
		return err
	}

	meta.UpdateWithSample(dtype, shapeInts)
	meta.IncrementLength(1)

	encoder, err := e.chunkIDEncoder(ctx)
	if err != nil {
		return err
	}

	last, lastID, hasLast, err := e.lastChunk(ctx, encoder)
	if err != nil {
		return err
	}

	var recipient *chunk.Chunk
	var recipientID uint64
	if hasLast && decideExtend(last, meta.MaxChunkSize, meta.MaxChunkSize/2, adapted) {
		if err := last.AppendSample(adapted, meta.MaxChunkSize, chunk.Shape(shape)); err != nil {
			return err
		}
		recipient = last
		recipientID = lastID
	} else {
		recipient = chunk.New()
		recipientID = encoder.GenerateChunkID()
		if err := recipient.AppendSample(adapted, meta.MaxChunkSize, chunk.Shape(shape)); err != nil {
			return err
		}
	}

	encoder.RegisterSamples(recipientID, 1)

	if meta.HashSamples {
		hl, err := e.hashlistObj(ctx)
		if err != nil {
			return err
		}
		hl.Append(hashlist.Sum(raw))
		if err := e.cache.Set(e.hashlistKey(), hl); err != nil {
			return err
		}
	}

	if err := e.cache.Set(e.chunkKey(chunkid.NameFromID(recipientID)), recipient); err != nil {
		return err
	}
	if err := e.cache.Set(e.chunkIDKey(), encoder); err != nil {
		return err
	}
	if err := e.cache.Set(e.tensorMetaKey(), meta); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{"chunk_id": recipientID, "op": "append"}).Debug("sample appended")
	return nil
}

// Sample is one row of a batch passed to Extend.
type Sample struct {
	Data  []byte
	Shape []uint32
	Dtype string
}

// Extend appends a batch of samples. All sizes are checked against
// min_chunk_size in a first pass, so a sample that is too large rejects the
// whole batch before anything is appended. The second pass appends the
// samples in order; an error there (a dtype or rank mismatch, a cache
// failure) stops the batch with the samples before it already appended.
func (e *ChunkEngine) Extend(ctx context.Context, samples []Sample) error {
	if err := e.cache.CheckReadOnly(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	meta, err := e.meta(ctx)
	if err != nil {
		return err
	}
	minChunkSize := meta.MaxChunkSize / 2

	encoded := make([][]byte, len(samples))
	for i, s := range samples {
		buf := s.Data
		if meta.SampleCompression != "" {
			buf, err = e.codec.Encode(buf, u32ToInt(s.Shape))
			if err != nil {
				return errors.Wrapf(err, "engine: encode sample %d", i)
			}
		}
		if len(buf) > minChunkSize {
			hint := ""
			if meta.SampleCompression == "" {
				hint = "; consider enabling compression"
			}
			return errors.Wrapf(tserrors.ErrSampleTooLarge, "sample %d is %d bytes, min_chunk_size is %d%s", i, len(buf), minChunkSize, hint)
		}
		encoded[i] = buf
	}

	for i, s := range samples {
		if err := e.appendEncoded(ctx, meta, s.Data, encoded[i], s.Shape, s.Dtype); err != nil {
			return errors.Wrapf(err, "engine: append sample %d of batch", i)
		}
	}

	return e.cache.MaybeFlush(ctx)
}

// DecodedSample is one decoded read result.
type DecodedSample struct {
	Data  []byte
	Shape []uint32
}

func shapeEqualU32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *ChunkEngine) readOne(ctx context.Context, meta *tensormeta.TensorMeta, encoder *chunkid.Encoder, globalIndex uint64) (DecodedSample, error) {
	chunkIDv, err := encoder.ChunkIDForSample(globalIndex)
	if err != nil {
		return DecodedSample{}, err
	}
	local, err := encoder.TranslateIndexRelativeToChunks(globalIndex)
	if err != nil {
		return DecodedSample{}, err
	}

	c, err := e.chunkByID(ctx, chunkIDv)
	if err != nil {
		return DecodedSample{}, err
	}

	raw, shape, err := c.Read(local)
	if err != nil {
		return DecodedSample{}, err
	}

	var decoded []byte
	if meta.SampleCompression != "" {
		decoded, err = e.codec.Decode(raw, u32ToInt(shape))
		if err != nil {
			return DecodedSample{}, errors.Wrapf(err, "engine: decode sample %d", globalIndex)
		}
	} else {
		decoded = append([]byte(nil), raw...)
	}

	return DecodedSample{Data: decoded, Shape: shape}, nil
}

// Numpy reads the samples named by indices. When
// dense is true, samples whose shapes disagree fail with
// tserrors.ErrDynamicTensorRead rather than being silently returned as a
// ragged list.
func (e *ChunkEngine) Numpy(ctx context.Context, indices []uint64, dense bool) ([]DecodedSample, error) {
	meta, err := e.meta(ctx)
	if err != nil {
		return nil, err
	}
	encoder, err := e.chunkIDEncoder(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]DecodedSample, 0, len(indices))
	for _, idx := range indices {
		s, err := e.readOne(ctx, meta, encoder, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	if dense && len(out) > 1 {
		want := out[0].Shape
		for _, s := range out[1:] {
			if !shapeEqualU32(s.Shape, want) {
				return nil, tserrors.ErrDynamicTensorRead
			}
		}
	}

	return out, nil
}

// GetChunkNames walks sample indices [start, last] until targetCount unique
// chunk names have been collected, then continues to the end of the chunk
// currently being collected so a caller that fetches by chunk never splits
// one.
func (e *ChunkEngine) GetChunkNames(ctx context.Context, start, last, targetCount uint64) ([]string, error) {
	names := []string{}
	if targetCount == 0 || start > last {
		return names, nil
	}

	encoder, err := e.chunkIDEncoder(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	i := start
	for i <= last {
		id, err := encoder.ChunkIDForSample(i)
		if err != nil {
			return nil, err
		}
		name := chunkid.NameFromID(id)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}

		if uint64(len(names)) >= targetCount {
			for i <= last {
				nextID, err := encoder.ChunkIDForSample(i)
				if err != nil || chunkid.NameFromID(nextID) != name {
					break
				}
				i++
			}
			break
		}
		i++
	}

	return names, nil
}

// ValidateNumSamplesIsSynchronized fails with tserrors.ErrCorruptedMeta
// when tensor_meta.length and the chunk-id encoder's sample count disagree.
func (e *ChunkEngine) ValidateNumSamplesIsSynchronized(ctx context.Context) error {
	meta, err := e.meta(ctx)
	if err != nil {
		return err
	}
	encoder, err := e.chunkIDEncoder(ctx)
	if err != nil {
		return err
	}
	if meta.Length != encoder.NumSamples() {
		return errors.Wrapf(tserrors.ErrCorruptedMeta, "tensor_meta.length=%d chunk_id_encoder.num_samples=%d", meta.Length, encoder.NumSamples())
	}
	return nil
}

// Stats is a point-in-time snapshot used for diagnostics and logging.
type Stats struct {
	NumSamples     uint64
	NumChunks      int
	CacheTotalBytes int
}

// Stats reports tensor-level counts and logs a human-readable summary.
func (e *ChunkEngine) Stats(ctx context.Context) (Stats, error) {
	meta, err := e.meta(ctx)
	if err != nil {
		return Stats{}, err
	}
	encoder, err := e.chunkIDEncoder(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		NumSamples:      encoder.NumSamples(),
		NumChunks:       encoder.NumChunks(),
		CacheTotalBytes: e.cache.TotalBytes(),
	}
	e.log.WithFields(logrus.Fields{
		"num_samples": st.NumSamples,
		"num_chunks":  st.NumChunks,
		"cache_bytes": humanize.Bytes(uint64(st.CacheTotalBytes)),
		"max_chunk":   humanize.Bytes(uint64(meta.MaxChunkSize)),
	}).Debug("tensor stats")
	return st, nil
}
