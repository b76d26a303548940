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
	"strings"
	"sync"
)

// MemoryBlobstore is an in-memory Blobstore backed by a map. Useful for
// tests and for ephemeral datasets that never need to survive a process
// restart.
type MemoryBlobstore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ Blobstore = (*MemoryBlobstore)(nil)

// NewMemoryBlobstore returns an empty MemoryBlobstore.
func NewMemoryBlobstore() *MemoryBlobstore {
	return &MemoryBlobstore{items: make(map[string][]byte)}
}

func (m *MemoryBlobstore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, NotFoundError{Key: key}
	}

	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MemoryBlobstore) Put(ctx context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = cp
	return nil
}

func (m *MemoryBlobstore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryBlobstore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[key]
	return ok, nil
}

func (m *MemoryBlobstore) IterPrefix(ctx context.Context, prefix string, fn func(key string) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}
