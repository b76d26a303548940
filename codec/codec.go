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

// Package codec defines the pluggable seam between a sample's raw bytes and
// its stored encoding: when a tensor's sample_compression is set, the engine
// routes each sample through a Codec before handing it to the chunk packer.
// Concrete compressors are external collaborators; this package only ships
// the identity codec used by default and by every test in this repository.
package codec

// Codec encodes and decodes sample bytes. Decode must be the exact inverse
// of Encode for the shape it was given.
type Codec interface {
	Encode(data []byte, shape []int) ([]byte, error)
	Decode(data []byte, shape []int) ([]byte, error)
	Name() string
}

// IdentityName is the Name() of the no-op codec.
const IdentityName = "identity"

// Identity is the default, no-op codec: a tensor with no sample_compression
// set stores and reads back raw sample bytes unchanged.
type Identity struct{}

var _ Codec = Identity{}

func (Identity) Encode(data []byte, shape []int) ([]byte, error) { return data, nil }

func (Identity) Decode(data []byte, shape []int) ([]byte, error) { return data, nil }

func (Identity) Name() string { return IdentityName }
