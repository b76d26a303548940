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

package lru

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub-labs/tensorstore/blobstore"
)

func TestGetBytesMissFetchesAndAdmits(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	require.NoError(t, bs.Put(context.Background(), "k", []byte("hello")))

	c := New(bs, 1<<20, 1<<20, false)
	got, err := c.GetBytes(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.True(t, c.Contains("k"))
}

func TestGetBytesMissingKey(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	c := New(bs, 1<<20, 1<<20, false)
	_, err := c.GetBytes(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSetMarksDirtyAndMaybeFlush(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	c := New(bs, 1<<20, 10, false) // tiny flush threshold

	require.NoError(t, c.Set("k", []byte("0123456789")))
	assert.Equal(t, 10, c.DirtyBytes())

	require.NoError(t, c.MaybeFlush(context.Background()))
	assert.Equal(t, 0, c.DirtyBytes())

	got, err := bs.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), got)
}

func TestMaybeFlushNoopBelowThreshold(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	c := New(bs, 1<<20, 1000, false)

	require.NoError(t, c.Set("k", []byte("small")))
	require.NoError(t, c.MaybeFlush(context.Background()))

	_, err := bs.Get(context.Background(), "k")
	assert.Error(t, err, "should not have flushed below threshold")
}

func TestCheckReadOnlyBlocksSet(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	c := New(bs, 1<<20, 1<<20, true)

	err := c.Set("k", []byte("v"))
	assert.Error(t, err)
}

func TestEvictionFlushesDirtyBeforeRemoving(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	// Capacity just big enough for one 10-byte entry.
	c := New(bs, 10, 1<<20, false)

	require.NoError(t, c.Set("a", []byte("0123456789")))
	require.NoError(t, c.Set("b", []byte("9876543210")))

	assert.False(t, c.Contains("a"), "a should have been evicted")
	assert.True(t, c.Contains("b"))

	got, err := bs.Get(context.Background(), "a")
	require.NoError(t, err, "evicted dirty entry must be flushed first")
	assert.Equal(t, []byte("0123456789"), got)
}

func TestOversizedSingletonSoftCap(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	c := New(bs, 4, 1<<20, false)

	require.NoError(t, c.Set("big", []byte("0123456789")))
	assert.True(t, c.Contains("big"))
	assert.Equal(t, 10, c.TotalBytes())
}

func TestUpdateUsedCacheForPath(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	c := New(bs, 1<<20, 1<<20, false)

	require.NoError(t, c.Set("k", []byte("abc")))
	require.NoError(t, c.UpdateUsedCacheForPath("k", 100))
	assert.Equal(t, 100, c.TotalBytes())
	assert.Equal(t, 100, c.DirtyBytes())
}

func TestUpdateUsedCacheForPathMissingKey(t *testing.T) {
	bs := blobstore.NewMemoryBlobstore()
	c := New(bs, 1<<20, 1<<20, false)
	err := c.UpdateUsedCacheForPath("nope", 5)
	assert.Error(t, err)
}
