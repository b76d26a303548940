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

// Package tserrors defines the error taxonomy shared by the chunked
// tensor storage engine's packages. Kinds are distinguished with errors.Is,
// not by type assertion, so callers can wrap them with context via
// github.com/pkg/errors without losing the kind.
package tserrors

import "github.com/pkg/errors"

// Sentinel error kinds. Wrap with errors.Wrapf(ErrX, "...") to add context;
// test with errors.Is(err, tserrors.ErrX).
var (
	// ErrCorruptedMeta signals an inconsistency between tensor meta and the
	// chunk-id encoder, or a From Bytes failure on a metadata payload.
	ErrCorruptedMeta = errors.New("corrupted meta")

	// ErrDynamicTensorRead signals that a dense-array read was requested
	// over samples of mismatched shape.
	ErrDynamicTensorRead = errors.New("dynamic tensor read: mismatched sample shapes")

	// ErrSampleTooLarge signals that an encoded sample exceeds min_chunk_size.
	ErrSampleTooLarge = errors.New("sample too large for a chunk")

	// ErrTensorMetaMismatch signals a dtype or rank change after the first
	// sample was appended.
	ErrTensorMetaMismatch = errors.New("tensor meta mismatch")

	// ErrInvalidHtype signals an unknown htype at tensor-creation time.
	ErrInvalidHtype = errors.New("invalid htype")

	// ErrInvalidOverwriteKey signals an override key not present in the
	// htype's configuration table.
	ErrInvalidOverwriteKey = errors.New("invalid htype overwrite key")

	// ErrInvalidOverwriteValue signals a structurally invalid override value
	// (non-positive chunk size, unsupported dtype, ...).
	ErrInvalidOverwriteValue = errors.New("invalid htype overwrite value")

	// ErrReadOnly signals a write attempt against a read-only cache/engine.
	ErrReadOnly = errors.New("read-only")

	// ErrKeyNotFound signals a cache or blob store miss with no live object.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCorruptedPayload signals a From Bytes failure while deserializing
	// raw bytes fetched from the blob store.
	ErrCorruptedPayload = errors.New("corrupted payload")

	// Blob store errors, bubbled up from the external collaborator.
	ErrBlobStoreNotFound  = errors.New("blob store: not found")
	ErrBlobStoreTransient = errors.New("blob store: transient")
	ErrBlobStoreFatal     = errors.New("blob store: fatal")
)
