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

package blobstore

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blobstoreTest struct {
	name string
	bs   Blobstore
}

func newBlobstoreTests(t *testing.T) []blobstoreTest {
	t.Helper()
	return []blobstoreTest{
		{"memory", NewMemoryBlobstore()},
		{"local", NewLocalBlobstore(t.TempDir())},
	}
}

func TestPutAndGetBack(t *testing.T) {
	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte(uuid.New().String())

			require.NoError(t, bt.bs.Put(ctx, "a/b", data))
			got, err := bt.bs.Get(ctx, "a/b")
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestGetMissing(t *testing.T) {
	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			_, err := bt.bs.Get(context.Background(), "nope")
			require.Error(t, err)
			assert.True(t, IsNotFoundError(err))
		})
	}
}

func TestExists(t *testing.T) {
	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := bt.bs.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, bt.bs.Put(ctx, "k", []byte("v")))
			ok, err = bt.bs.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestDelete(t *testing.T) {
	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, bt.bs.Put(ctx, "k", []byte("v")))
			require.NoError(t, bt.bs.Delete(ctx, "k"))

			ok, err := bt.bs.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			// deleting a missing key is not an error.
			require.NoError(t, bt.bs.Delete(ctx, "k"))
		})
	}
}

func TestIterPrefix(t *testing.T) {
	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			ctx := context.Background()
			want := []string{"t/a", "t/b", "t/c"}
			for _, k := range want {
				require.NoError(t, bt.bs.Put(ctx, k, []byte(k)))
			}
			require.NoError(t, bt.bs.Put(ctx, "other/d", []byte("d")))

			var mu sortableStrings
			err := bt.bs.IterPrefix(ctx, "t/", func(key string) error {
				mu.add(key)
				return nil
			})
			require.NoError(t, err)

			got := mu.snapshot()
			sort.Strings(got)
			assert.Equal(t, want, got)
		})
	}
}

type sortableStrings struct {
	mu    sync.Mutex
	items []string
}

func (s *sortableStrings) add(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, v)
}

func (s *sortableStrings) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
