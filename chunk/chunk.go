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

// Package chunk implements the fixed-cap byte buffer that holds 1..N
// contiguous samples of one tensor, along with its two per-chunk
// run-length encoders (local sample index -> shape, and local sample
// index -> byte range within Data).
package chunk

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/dolthub-labs/tensorstore/cachable"
	"github.com/dolthub-labs/tensorstore/rle"
)

// Version is the on-disk chunk format version this package reads and
// writes. A reader must refuse any other version.
const Version uint8 = 1

// headerSize is version(1) + flags(1) + reserved(2).
const headerSize = 4

// BytePos is a half-open [Start, End) byte range within a chunk's Data.
type BytePos struct {
	Start uint32
	End   uint32
}

func bytePosEqual(a, b BytePos) bool { return a == b }

func shapeEqual(a, b Shape) bool {
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

// Shape is a sample's dimensions, most-significant first.
type Shape []uint32

// Chunk is a single contiguous byte buffer bounded by a tensor's
// max_chunk_size, plus the two encoders describing the samples packed
// into Data.
type Chunk struct {
	Data                  []byte
	ShapesEncoder         *rle.Encoder[Shape]
	BytePositionsEncoder  *rle.Encoder[BytePos]
}

var _ cachable.Cachable = (*Chunk)(nil)

func init() {
	cachable.Register(cachable.KindChunk, func() cachable.Cachable { return New() })
}

// New returns an empty chunk ready to accept samples.
func New() *Chunk {
	return &Chunk{
		ShapesEncoder:        rle.New(shapeEqual),
		BytePositionsEncoder: rle.New(bytePosEqual),
	}
}

func (c *Chunk) Kind() cachable.Kind { return cachable.KindChunk }

// NumDataBytes is the length of the concatenated sample data, not counting
// encoder overhead or headers.
func (c *Chunk) NumDataBytes() int {
	return len(c.Data)
}

// IsUnderMinSpace reports whether the chunk's payload is below minCap.
// Only the tensor's last chunk is allowed to remain under-min.
func (c *Chunk) IsUnderMinSpace(minCap int) bool {
	return c.NumDataBytes() < minCap
}

// AppendSample appends buffer as one sample with the given shape. The
// caller is responsible for ensuring the post-append serialized size does
// not exceed maxChunkSize; this only double-checks it.
func (c *Chunk) AppendSample(buffer []byte, maxChunkSize int, shape Shape) error {
	start := uint32(len(c.Data))
	c.Data = append(c.Data, buffer...)
	end := uint32(len(c.Data))

	c.ShapesEncoder.Append(shape)
	c.BytePositionsEncoder.Append(BytePos{Start: start, End: end})

	if nb := c.NBytes(); nb > maxChunkSize {
		return errors.Errorf("chunk: post-append size %d exceeds max_chunk_size %d", nb, maxChunkSize)
	}
	return nil
}

// Read returns a zero-copy view into Data for localIndex, plus its decoded
// shape.
func (c *Chunk) Read(localIndex uint64) ([]byte, Shape, error) {
	bp, err := c.BytePositionsEncoder.LookupByLocal(localIndex)
	if err != nil {
		return nil, nil, errors.Wrap(err, "chunk: read byte position")
	}
	shape, err := c.ShapesEncoder.LookupByLocal(localIndex)
	if err != nil {
		return nil, nil, errors.Wrap(err, "chunk: read shape")
	}
	return c.Data[bp.Start:bp.End], shape, nil
}

// NBytes is the serialized size: header + both encoders + raw data.
func (c *Chunk) NBytes() int {
	n := headerSize
	n += 4 // shapes nrows
	for _, r := range c.ShapesEncoder.Rows() {
		n += 1 + 4*len(r.Value) + 4
	}
	n += 4 // byte positions nrows
	n += len(c.BytePositionsEncoder.Rows()) * (4 + 4 + 4)
	n += len(c.Data)
	return n
}

// Checksum is an xxhash/v2 digest over the chunk's serialized trailer
// (everything but Data). Nothing outside this package's tests calls it; it
// is not part of any engine invariant.
func (c *Chunk) Checksum() uint64 {
	trailer, _ := c.encodeTrailer()
	return xxhash.Sum64(trailer)
}

func (c *Chunk) encodeTrailer() ([]byte, error) {
	buf := make([]byte, 0, c.NBytes()-len(c.Data))

	header := make([]byte, headerSize)
	header[0] = Version
	buf = append(buf, header...)

	rows := c.ShapesEncoder.Rows()
	nrows := make([]byte, 4)
	binary.LittleEndian.PutUint32(nrows, uint32(len(rows)))
	buf = append(buf, nrows...)
	for _, r := range rows {
		if len(r.Value) > 255 {
			return nil, errors.Errorf("chunk: shape rank %d exceeds 255", len(r.Value))
		}
		buf = append(buf, byte(len(r.Value)))
		for _, d := range r.Value {
			dim := make([]byte, 4)
			binary.LittleEndian.PutUint32(dim, d)
			buf = append(buf, dim...)
		}
		last := make([]byte, 4)
		binary.LittleEndian.PutUint32(last, uint32(r.LastIndex))
		buf = append(buf, last...)
	}

	bpRows := c.BytePositionsEncoder.Rows()
	binary.LittleEndian.PutUint32(nrows, uint32(len(bpRows)))
	buf = append(buf, nrows...)
	for _, r := range bpRows {
		tmp := make([]byte, 12)
		binary.LittleEndian.PutUint32(tmp[0:4], r.Value.Start)
		binary.LittleEndian.PutUint32(tmp[4:8], r.Value.End)
		binary.LittleEndian.PutUint32(tmp[8:12], uint32(r.LastIndex))
		buf = append(buf, tmp...)
	}

	return buf, nil
}

// ToBytes serializes the chunk: trailer (header + both encoders) then raw
// sample data.
func (c *Chunk) ToBytes() ([]byte, error) {
	trailer, err := c.encodeTrailer()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(trailer)+len(c.Data))
	out = append(out, trailer...)
	out = append(out, c.Data...)
	return out, nil
}

// FromBytes deserializes a chunk produced by ToBytes. A reader must refuse
// unknown versions.
func (c *Chunk) FromBytes(data []byte) error {
	if len(data) < headerSize {
		return errors.New("chunk: truncated header")
	}
	if data[0] != Version {
		return errors.Errorf("chunk: unsupported version %d", data[0])
	}
	off := headerSize

	readU32 := func() (uint32, error) {
		if off+4 > len(data) {
			return 0, errors.New("chunk: truncated u32")
		}
		v := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		return v, nil
	}

	nShapeRows, err := readU32()
	if err != nil {
		return err
	}
	shapeRows := make([]rle.Row[Shape], 0, nShapeRows)
	for i := uint32(0); i < nShapeRows; i++ {
		if off+1 > len(data) {
			return errors.New("chunk: truncated shape rank")
		}
		rank := int(data[off])
		off++

		dims := make(Shape, rank)
		for d := 0; d < rank; d++ {
			v, err := readU32()
			if err != nil {
				return err
			}
			dims[d] = v
		}

		last, err := readU32()
		if err != nil {
			return err
		}
		shapeRows = append(shapeRows, rle.Row[Shape]{Value: dims, LastIndex: uint64(last)})
	}

	nBPRows, err := readU32()
	if err != nil {
		return err
	}
	bpRows := make([]rle.Row[BytePos], 0, nBPRows)
	for i := uint32(0); i < nBPRows; i++ {
		start, err := readU32()
		if err != nil {
			return err
		}
		end, err := readU32()
		if err != nil {
			return err
		}
		last, err := readU32()
		if err != nil {
			return err
		}
		bpRows = append(bpRows, rle.Row[BytePos]{Value: BytePos{Start: start, End: end}, LastIndex: uint64(last)})
	}

	c.ShapesEncoder = rle.New(shapeEqual)
	c.ShapesEncoder.SetRows(shapeRows)
	c.BytePositionsEncoder = rle.New(bytePosEqual)
	c.BytePositionsEncoder.SetRows(bpRows)
	c.Data = append([]byte(nil), data[off:]...)
	return nil
}
