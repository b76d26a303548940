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

// Package hashlist implements the append-only list of 128-bit sample
// digests used to detect duplicate or corrupted samples. Digests are
// computed with xxh3's 128-bit variant, a fixed, documented,
// non-cryptographic hash.
package hashlist

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"

	"github.com/dolthub-labs/tensorstore/cachable"
)

// Digest is a 128-bit sample digest.
type Digest [16]byte

// Sum computes the fixed digest of uncompressed sample bytes.
func Sum(data []byte) Digest {
	h := xxh3.Hash128(data)
	var d Digest
	binary.LittleEndian.PutUint64(d[0:8], h.Lo)
	binary.LittleEndian.PutUint64(d[8:16], h.Hi)
	return d
}

// Hashlist is an ordered, append-only sequence of 128-bit digests, one per
// registered sample.
type Hashlist struct {
	digests []Digest
}

var _ cachable.Cachable = (*Hashlist)(nil)

func init() {
	cachable.Register(cachable.KindHashlist, func() cachable.Cachable { return New() })
}

// New returns an empty hashlist.
func New() *Hashlist {
	return &Hashlist{}
}

func (h *Hashlist) Kind() cachable.Kind { return cachable.KindHashlist }

// Len is the number of digests appended so far.
func (h *Hashlist) Len() int {
	return len(h.digests)
}

// Append records the digest of one more sample, in order.
func (h *Hashlist) Append(d Digest) {
	h.digests = append(h.digests, d)
}

// At returns the digest for sample index i.
func (h *Hashlist) At(i int) (Digest, error) {
	if i < 0 || i >= len(h.digests) {
		return Digest{}, errors.Errorf("hashlist: index %d out of range (len %d)", i, len(h.digests))
	}
	return h.digests[i], nil
}

// ToBytes serializes the hashlist as a raw concatenation of 16-byte
// digests.
func (h *Hashlist) ToBytes() ([]byte, error) {
	out := make([]byte, 0, len(h.digests)*16)
	for _, d := range h.digests {
		out = append(out, d[:]...)
	}
	return out, nil
}

// FromBytes deserializes a hashlist produced by ToBytes.
func (h *Hashlist) FromBytes(data []byte) error {
	if len(data)%16 != 0 {
		return errors.Errorf("hashlist: length %d is not a multiple of 16", len(data))
	}
	digests := make([]Digest, 0, len(data)/16)
	for off := 0; off < len(data); off += 16 {
		var d Digest
		copy(d[:], data[off:off+16])
		digests = append(digests, d)
	}
	h.digests = digests
	return nil
}

// NBytes is the live in-memory footprint for cache accounting.
func (h *Hashlist) NBytes() int {
	return len(h.digests) * 16
}
