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

// Package blobstore defines the opaque key/value contract that sits behind
// the LRU cache. Keys are forward-slash-separated path strings; values are
// opaque byte buffers. This package also ships two
// in-repo backends, Memory and Local, sufficient to exercise the engine
// without a network dependency. Object-store backends (S3, GCS, OCI, ...)
// are external collaborators and are not implemented here.
package blobstore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dolthub-labs/tensorstore/tserrors"
)

// Blobstore is the minimal key/value contract every backend must satisfy.
type Blobstore interface {
	// Get returns the bytes stored at key, or a tserrors.ErrBlobStoreNotFound
	// wrapped error if key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// IterPrefix calls fn once per key having the given prefix, in
	// unspecified order. If fn returns an error, iteration stops and that
	// error is returned.
	IterPrefix(ctx context.Context, prefix string, fn func(key string) error) error
}

// NotFoundError wraps tserrors.ErrBlobStoreNotFound with the missing key.
type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	return "blobstore: key not found: " + e.Key
}

func (e NotFoundError) Unwrap() error {
	return tserrors.ErrBlobStoreNotFound
}

// IsNotFoundError reports whether err (or any error it wraps) denotes a
// missing key.
func IsNotFoundError(err error) bool {
	return errors.Is(err, tserrors.ErrBlobStoreNotFound)
}
