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

// Command tensorstore-inspect is a tiny read-only tool over a local
// on-disk tensor root: list tensors, dump a tensor's chunk-id encoder
// rows, and print its tensor meta.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/dolthub-labs/tensorstore/blobstore"
	"github.com/dolthub-labs/tensorstore/cachable"
	"github.com/dolthub-labs/tensorstore/chunkid"
	"github.com/dolthub-labs/tensorstore/lru"
	"github.com/dolthub-labs/tensorstore/tensormeta"
)

func main() {
	root := pflag.StringP("root", "r", "", "path to the local blob store root (required)")
	tensor := pflag.StringP("tensor", "t", "", "tensor key to inspect; omit to list all tensors")
	verbose := pflag.BoolP("verbose", "v", false, "log at debug level")
	pflag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *root == "" {
		fmt.Fprintln(os.Stderr, "tensorstore-inspect: --root is required")
		pflag.Usage()
		os.Exit(2)
	}

	if err := run(*root, *tensor); err != nil {
		fmt.Fprintf(os.Stderr, "tensorstore-inspect: %v\n", err)
		os.Exit(1)
	}
}

func run(root, tensor string) error {
	bs := blobstore.NewLocalBlobstore(root)
	cache := lru.New(bs, 1<<30, 1<<30, true)
	ctx := context.Background()

	if tensor == "" {
		return listTensors(ctx, bs)
	}
	return inspectTensor(ctx, cache, tensor)
}

// listTensors discovers tensors by the "<tensor>/tensor_meta.json" key
// suffix.
func listTensors(ctx context.Context, bs blobstore.Blobstore) error {
	const suffix = "/tensor_meta.json"

	var mu sync.Mutex
	var tensors []string
	err := bs.IterPrefix(ctx, "", func(key string) error {
		if strings.HasSuffix(key, suffix) {
			mu.Lock()
			tensors = append(tensors, strings.TrimSuffix(key, suffix))
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Strings(tensors)
	for _, t := range tensors {
		fmt.Println(t)
	}
	return nil
}

func inspectTensor(ctx context.Context, cache *lru.Cache, tensor string) error {
	metaObj, err := cache.GetCachable(ctx, tensor+"/tensor_meta.json", cachable.KindTensorMeta)
	if err != nil {
		return errors.Wrapf(err, "read tensor meta for %q", tensor)
	}
	meta := metaObj.(*tensormeta.TensorMeta)

	fmt.Printf("tensor:             %s\n", tensor)
	fmt.Printf("htype:              %s\n", meta.Htype)
	fmt.Printf("dtype:              %s\n", meta.Dtype)
	fmt.Printf("length:             %d\n", meta.Length)
	fmt.Printf("min_shape:          %v\n", meta.MinShape)
	fmt.Printf("max_shape:          %v\n", meta.MaxShape)
	fmt.Printf("max_chunk_size:     %d\n", meta.MaxChunkSize)
	fmt.Printf("sample_compression: %s\n", meta.SampleCompression)
	fmt.Printf("hash_samples:       %t\n", meta.HashSamples)

	encObj, err := cache.GetCachable(ctx, tensor+"/chunk_id_encoder", cachable.KindChunkIDEncoder)
	if err != nil {
		return errors.Wrapf(err, "read chunk-id encoder for %q", tensor)
	}
	enc := encObj.(*chunkid.Encoder)

	fmt.Printf("num_chunks:         %d\n", enc.NumChunks())
	fmt.Printf("num_samples:        %d\n", enc.NumSamples())

	if meta.Length != enc.NumSamples() {
		return errors.Errorf("desynchronized: tensor_meta.length=%d chunk_id_encoder.num_samples=%d", meta.Length, enc.NumSamples())
	}

	for pos := 0; pos < enc.NumChunks(); pos++ {
		name, err := enc.GetNameForChunk(pos)
		if err != nil {
			return err
		}
		fmt.Printf("  chunk[%d]: %s\n", pos, name)
	}

	return nil
}
