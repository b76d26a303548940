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

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub-labs/tensorstore/blobstore"
	"github.com/dolthub-labs/tensorstore/engine"
	"github.com/dolthub-labs/tensorstore/lru"
	"github.com/dolthub-labs/tensorstore/tensormeta"
)

func seedTensor(t *testing.T, root, tensorKey string) {
	t.Helper()
	bs := blobstore.NewLocalBlobstore(root)
	cache := lru.New(bs, 1<<30, 1<<30, false)
	e := engine.New(cache, tensorKey, nil)

	chunkSize := 1 << 20
	require.NoError(t, e.Create(context.Background(), tensormeta.DefaultHtype, tensormeta.Overrides{ChunkSize: &chunkSize}))
	require.NoError(t, e.Append(context.Background(), []byte{1, 2, 3, 4}, []uint32{4}, "uint8"))
	require.NoError(t, cache.Flush(context.Background()))
}

func TestRunListsSeededTensor(t *testing.T) {
	root := t.TempDir()
	seedTensor(t, root, "tensors/images")

	require.NoError(t, run(root, ""))
}

func TestRunInspectsSeededTensor(t *testing.T) {
	root := t.TempDir()
	seedTensor(t, root, "tensors/images")

	require.NoError(t, run(root, "tensors/images"))
}

func TestRunInspectMissingTensorFails(t *testing.T) {
	root := t.TempDir()
	seedTensor(t, root, "tensors/images")

	err := run(root, "tensors/missing")
	require.Error(t, err)
}

func TestListTensorsEmptyRoot(t *testing.T) {
	root := t.TempDir()
	bs := blobstore.NewLocalBlobstore(root)
	require.NoError(t, listTensors(context.Background(), bs))
}
