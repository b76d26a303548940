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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// LocalBlobstore is a Blobstore backed by one regular file per key under a
// root directory on the local filesystem. Writes are atomic: Put writes to
// a scratch file in the same directory and renames it over the destination,
// so a crash mid-write never leaves a partially-written chunk visible to a
// reader.
type LocalBlobstore struct {
	root string
}

var _ Blobstore = (*LocalBlobstore)(nil)

// NewLocalBlobstore returns a LocalBlobstore rooted at dir. dir is not
// created here; Put creates it, and any missing parent directories, on the
// first write.
func NewLocalBlobstore(dir string) *LocalBlobstore {
	return &LocalBlobstore{root: dir}
}

func (l *LocalBlobstore) path(key string) (string, error) {
	if strings.Contains(key, "..") {
		return "", errors.Errorf("blobstore: invalid key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

func (l *LocalBlobstore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFoundError{Key: key}
		}
		return nil, errors.Wrapf(err, "blobstore: get %q", key)
	}
	return data, nil
}

func (l *LocalBlobstore) Put(ctx context.Context, key string, value []byte) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "blobstore: mkdir %q", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+uuid.New().String())
	if err != nil {
		return errors.Wrapf(err, "blobstore: create temp for %q", key)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "blobstore: write %q", key)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "blobstore: sync %q", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "blobstore: close %q", key)
	}

	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "blobstore: rename into place %q", key)
	}
	return nil
}

func (l *LocalBlobstore) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "blobstore: delete %q", key)
	}
	return nil
}

func (l *LocalBlobstore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "blobstore: stat %q", key)
}

// IterPrefix walks the local tree once to collect matching keys, then
// invokes fn for each one concurrently, at most 8 calls at a time via
// errgroup.SetLimit.
func (l *LocalBlobstore) IterPrefix(ctx context.Context, prefix string, fn func(key string) error) error {
	var keys []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == l.root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "blobstore: walk")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, k := range keys {
		k := k
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return fn(k)
		})
	}
	return g.Wait()
}
