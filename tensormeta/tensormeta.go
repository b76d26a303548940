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

// Package tensormeta implements the per-tensor settings and running stats:
// dtype frozen at first sample, a component-wise min/max shape interval,
// and the htype configuration table used at creation time.
package tensormeta

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/dolthub-labs/tensorstore/cachable"
	"github.com/dolthub-labs/tensorstore/tserrors"
)

// TensorMeta is the JSON-encoded cachable holding a tensor's settings.
type TensorMeta struct {
	Htype             string `json:"htype"`
	Dtype             string `json:"dtype"`
	MinShape          []int  `json:"min_shape"`
	MaxShape          []int  `json:"max_shape"`
	Length            uint64 `json:"length"`
	MaxChunkSize      int    `json:"max_chunk_size"`
	SampleCompression string `json:"sample_compression"`
	HashSamples       bool   `json:"hash_samples"`
}

var _ cachable.Cachable = (*TensorMeta)(nil)

func init() {
	cachable.Register(cachable.KindTensorMeta, func() cachable.Cachable { return &TensorMeta{} })
}

func (m *TensorMeta) Kind() cachable.Kind { return cachable.KindTensorMeta }

// Overrides holds the subset of TensorMeta fields a caller may set at
// creation time; a nil pointer field means "use the htype default".
type Overrides struct {
	Dtype             *string
	ChunkSize         *int
	SampleCompression *string
	HashSamples       *bool
}

// Create validates overrides against htype's configuration table and
// returns a freshly initialized TensorMeta.
func Create(htype string, overrides Overrides) (*TensorMeta, error) {
	cfg, ok := lookupHtype(htype)
	if !ok {
		return nil, errors.Wrapf(tserrors.ErrInvalidHtype, "htype %q", htype)
	}

	m := &TensorMeta{
		Htype:             htype,
		Dtype:             cfg.Dtype,
		MinShape:          []int{},
		MaxShape:          []int{},
		Length:            0,
		MaxChunkSize:      cfg.ChunkSize,
		SampleCompression: cfg.SampleCompression,
		HashSamples:       cfg.HashSamples,
	}

	if overrides.ChunkSize != nil {
		if *overrides.ChunkSize <= 0 {
			return nil, errors.Wrapf(tserrors.ErrInvalidOverwriteValue, "chunk_size must be > 0, got %d", *overrides.ChunkSize)
		}
		m.MaxChunkSize = *overrides.ChunkSize
	}

	if overrides.Dtype != nil {
		if !IsDtypeSupported(*overrides.Dtype) {
			return nil, errors.Wrapf(tserrors.ErrInvalidOverwriteValue, "dtype %q is not supported", *overrides.Dtype)
		}
		m.Dtype = *overrides.Dtype
	}

	if overrides.SampleCompression != nil {
		m.SampleCompression = *overrides.SampleCompression
	}

	if overrides.HashSamples != nil {
		m.HashSamples = *overrides.HashSamples
	}

	return m, nil
}

// CheckBatchIsCompatible refuses a dtype or rank change once length > 0.
func (m *TensorMeta) CheckBatchIsCompatible(dtype string, shape []int) error {
	if m.Length == 0 {
		return nil
	}
	if m.Dtype != dtype {
		return errors.Wrapf(tserrors.ErrTensorMetaMismatch, "dtype: tensor is %q, sample is %q", m.Dtype, dtype)
	}
	if len(m.MinShape) != len(shape) {
		return errors.Wrapf(tserrors.ErrTensorMetaMismatch, "rank: tensor is %d, sample is %d", len(m.MinShape), len(shape))
	}
	return nil
}

// UpdateWithSample fixes dtype and installs min/max shape on the first
// sample, then widens the per-dimension interval on every subsequent call.
func (m *TensorMeta) UpdateWithSample(dtype string, shape []int) {
	if m.Length == 0 {
		m.Dtype = dtype
		m.MinShape = append([]int(nil), shape...)
		m.MaxShape = append([]int(nil), shape...)
		return
	}

	for i, dim := range shape {
		if dim < m.MinShape[i] {
			m.MinShape[i] = dim
		}
		if dim > m.MaxShape[i] {
			m.MaxShape[i] = dim
		}
	}
}

// IncrementLength bumps the running sample count by n.
func (m *TensorMeta) IncrementLength(n uint64) {
	m.Length += n
}

// Adapt normalizes buffer's dtype/endianness to match the frozen dtype; it
// is the identity when buffer is already in the frozen dtype. Endianness
// normalization is a no-op in this implementation
// because every buffer this engine produces is already little-endian (the
// engine's only source of sample bytes); the hook exists so an external
// caller feeding big-endian-encoded numpy buffers has somewhere to plug in
// a byte-swap without touching the packer.
func (m *TensorMeta) Adapt(buffer []byte, dtype string) ([]byte, error) {
	if dtype != m.Dtype && m.Length > 0 {
		return nil, errors.Wrapf(tserrors.ErrTensorMetaMismatch, "dtype: tensor is %q, sample is %q", m.Dtype, dtype)
	}
	return buffer, nil
}

// ToBytes serializes via JSON.
func (m *TensorMeta) ToBytes() ([]byte, error) {
	return json.Marshal(m)
}

// FromBytes deserializes via JSON, rejecting unknown keys.
func (m *TensorMeta) FromBytes(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var tmp TensorMeta
	if err := dec.Decode(&tmp); err != nil {
		return errors.Wrap(tserrors.ErrCorruptedPayload, err.Error())
	}
	*m = tmp
	if m.MinShape == nil {
		m.MinShape = []int{}
	}
	if m.MaxShape == nil {
		m.MaxShape = []int{}
	}
	return nil
}

// NBytes is the live in-memory footprint for cache accounting.
func (m *TensorMeta) NBytes() int {
	return 64 + 8*(len(m.MinShape)+len(m.MaxShape)) + len(m.Htype) + len(m.Dtype) + len(m.SampleCompression)
}
