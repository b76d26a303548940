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

// Package lru implements the write-back cache that sits between the chunk
// engine and the blob store. It tracks access order with
// hashicorp/golang-lru/v2 (used purely as an ordering structure — eviction
// size and entry count are unrelated in this cache, so the underlying LRU
// is sized far larger than anything that will ever be stored in it); size
// accounting, the dirty set, and the bytes-vs-live-object distinction are
// owned directly by this package, since golang-lru has no notion of either.
package lru

import (
	"context"
	"sync"

	lruv2 "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/pkg/errors"

	"github.com/dolthub-labs/tensorstore/blobstore"
	"github.com/dolthub-labs/tensorstore/cachable"
	"github.com/dolthub-labs/tensorstore/tserrors"
)

// orderCapacity bounds only the ordering structure's own entry count, kept
// effectively unbounded since this cache evicts by byte size, not by
// count.
const orderCapacity = 1 << 30

type entry struct {
	bytes   []byte
	live    cachable.Cachable
	kind    cachable.Kind
	nbytes  int
	dirty   bool
}

// Cache is a write-back LRU cache over a Blobstore.
type Cache struct {
	mu sync.Mutex

	bs       blobstore.Blobstore
	order    *lruv2.Cache[string, struct{}]
	entries  map[string]*entry
	readOnly bool

	capacity       int
	flushThreshold int
	totalBytes     int
	dirtyBytes     int

	log *logrus.Entry
}

// New returns a Cache wrapping bs with the given byte capacity and
// flush threshold.
func New(bs blobstore.Blobstore, capacity, flushThreshold int, readOnly bool) *Cache {
	order, err := lruv2.New[string, struct{}](orderCapacity)
	if err != nil {
		// orderCapacity is a compile-time constant > 0; New only fails for
		// size <= 0.
		panic(err)
	}
	return &Cache{
		bs:             bs,
		order:          order,
		entries:        make(map[string]*entry),
		readOnly:       readOnly,
		capacity:       capacity,
		flushThreshold: flushThreshold,
		log:            logrus.WithField("component", "lru"),
	}
}

// CheckReadOnly fails with tserrors.ErrReadOnly when the cache was opened
// read-only.
func (c *Cache) CheckReadOnly() error {
	if c.readOnly {
		return tserrors.ErrReadOnly
	}
	return nil
}

// GetBytes returns the raw bytes for key, fetching and admitting from the
// blob store on a miss.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.order.Add(key, struct{}{})
		if e.live != nil {
			return e.live.ToBytes()
		}
		out := make([]byte, len(e.bytes))
		copy(out, e.bytes)
		return out, nil
	}

	raw, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	c.admitLocked(key, &entry{bytes: raw, nbytes: len(raw)})
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// GetCachable returns a live deserialized object of the given kind,
// fetching and deserializing on a miss, and promoting a bytes-only hit to
// a live object in place.
func (c *Cache) GetCachable(ctx context.Context, key string, kind cachable.Kind) (cachable.Cachable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Deserialization failures of metadata payloads surface as
	// ErrCorruptedMeta; any other kind surfaces as ErrCorruptedPayload.
	corrupted := func(err error) error {
		if kind == cachable.KindTensorMeta || kind == cachable.KindChunkIDEncoder {
			return errors.Wrap(tserrors.ErrCorruptedMeta, err.Error())
		}
		return errors.Wrap(tserrors.ErrCorruptedPayload, err.Error())
	}

	if e, ok := c.entries[key]; ok {
		c.order.Add(key, struct{}{})
		if e.live != nil {
			return e.live, nil
		}

		obj, ok := cachable.New(kind)
		if !ok {
			return nil, errors.Errorf("lru: no factory registered for kind %s", kind)
		}
		if err := obj.FromBytes(e.bytes); err != nil {
			return nil, corrupted(err)
		}
		c.totalBytes += obj.NBytes() - e.nbytes
		if e.dirty {
			c.dirtyBytes += obj.NBytes() - e.nbytes
		}
		e.bytes = nil
		e.live = obj
		e.kind = kind
		e.nbytes = obj.NBytes()
		return obj, nil
	}

	raw, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	obj, ok := cachable.New(kind)
	if !ok {
		return nil, errors.Errorf("lru: no factory registered for kind %s", kind)
	}
	if err := obj.FromBytes(raw); err != nil {
		return nil, corrupted(err)
	}

	c.admitLocked(key, &entry{live: obj, kind: kind, nbytes: obj.NBytes()})
	return obj, nil
}

func (c *Cache) fetch(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.bs.Get(ctx, key)
	if err != nil {
		if blobstore.IsNotFoundError(err) {
			return nil, errors.Wrapf(tserrors.ErrKeyNotFound, "key %q", key)
		}
		return nil, errors.Wrapf(tserrors.ErrBlobStoreFatal, "get %q: %v", key, err)
	}
	return raw, nil
}

// Set stores value (raw bytes or a live cachable) under key and marks it
// dirty.
func (c *Cache) Set(key string, value interface{}) error {
	if err := c.CheckReadOnly(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var e *entry
	switch v := value.(type) {
	case []byte:
		e = &entry{bytes: v, nbytes: len(v)}
	case cachable.Cachable:
		e = &entry{live: v, kind: v.Kind(), nbytes: v.NBytes()}
	default:
		return errors.Errorf("lru: Set: unsupported value type %T", value)
	}
	e.dirty = true

	if old, ok := c.entries[key]; ok {
		c.totalBytes -= old.nbytes
		if old.dirty {
			c.dirtyBytes -= old.nbytes
		}
	}
	c.admitLocked(key, e)
	return nil
}

// admitLocked installs e under key (replacing any prior entry), updates
// size accounting, and runs eviction. Caller must hold c.mu.
func (c *Cache) admitLocked(key string, e *entry) {
	c.entries[key] = e
	c.order.Add(key, struct{}{})
	c.totalBytes += e.nbytes
	if e.dirty {
		c.dirtyBytes += e.nbytes
	}
	c.evictLocked(key)
}

// evictLocked evicts least-recently-used entries (flushing dirty ones
// first) until the cache is under capacity or the oldest remaining key is
// justAdmitted, in which case the cap is soft.
func (c *Cache) evictLocked(justAdmitted string) {
	for c.totalBytes > c.capacity {
		keys := c.order.Keys()
		if len(keys) == 0 {
			return
		}
		oldest := keys[0]
		if oldest == justAdmitted {
			// The just-admitted key is the only (or oldest) entry: the cap
			// is soft for oversized singletons.
			return
		}

		e := c.entries[oldest]
		if e == nil {
			c.order.Remove(oldest)
			continue
		}
		if e.dirty {
			if err := c.flushKeyLocked(context.Background(), oldest, e); err != nil {
				c.log.WithError(err).WithField("key", oldest).Warn("eviction flush failed, retaining dirty entry")
				return
			}
		}

		delete(c.entries, oldest)
		c.order.Remove(oldest)
		c.totalBytes -= e.nbytes
	}
}

// UpdateUsedCacheForPath notifies the cache that an in-place mutation
// changed a live object's size, and marks it dirty.
func (c *Cache) UpdateUsedCacheForPath(key string, newNBytes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return errors.Wrapf(tserrors.ErrKeyNotFound, "key %q", key)
	}

	if e.dirty {
		c.dirtyBytes -= e.nbytes
	}
	c.totalBytes += newNBytes - e.nbytes
	e.nbytes = newNBytes
	e.dirty = true
	c.dirtyBytes += e.nbytes

	c.evictLocked(key)
	return nil
}

// MaybeFlush writes all dirty entries upstream if dirty bytes has reached
// the flush threshold. Entries are written least-recently-used first (the
// cache's access order), which is deterministic for a given sequence of
// calls; it is not the order in which keys were first inserted.
func (c *Cache) MaybeFlush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dirtyBytes < c.flushThreshold {
		return nil
	}
	return c.flushAllLocked(ctx)
}

// Flush unconditionally writes every dirty entry upstream.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushAllLocked(ctx)
}

func (c *Cache) flushAllLocked(ctx context.Context) error {
	for _, key := range c.order.Keys() {
		e, ok := c.entries[key]
		if !ok || !e.dirty {
			continue
		}
		if err := c.flushKeyLocked(ctx, key, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) flushKeyLocked(ctx context.Context, key string, e *entry) error {
	var raw []byte
	var err error
	if e.live != nil {
		raw, err = e.live.ToBytes()
	} else {
		raw = e.bytes
	}
	if err != nil {
		return errors.Wrapf(err, "lru: serialize %q", key)
	}

	if err := c.bs.Put(ctx, key, raw); err != nil {
		return errors.Wrapf(tserrors.ErrBlobStoreFatal, "put %q: %v", key, err)
	}

	if e.dirty {
		c.dirtyBytes -= e.nbytes
	}
	e.dirty = false
	return nil
}

// Contains reports whether key is currently cached (live or bytes), purely
// for tests and diagnostics.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// DirtyBytes reports the current dirty-byte total, for tests.
func (c *Cache) DirtyBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyBytes
}

// TotalBytes reports the current live-representation byte total, for
// tests.
func (c *Cache) TotalBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}
