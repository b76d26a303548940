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

package tensormeta

// htypeConfig is one row of the htype configuration table consulted when a
// tensor is created: the default dtype, chunk size, compression, and
// hashing settings for a given high-level type name.
type htypeConfig struct {
	Dtype             string
	ChunkSize         int
	SampleCompression string
	HashSamples       bool
}

// DefaultHtype is used when the caller does not name one.
const DefaultHtype = "generic"

// DefaultMaxChunkSize is a size big enough to amortize per-chunk overhead,
// small enough to keep write-back flushes bounded.
const DefaultMaxChunkSize = 32 << 20 // 32 MiB

var htypeConfigurations = map[string]htypeConfig{
	"generic": {
		Dtype:     "float32",
		ChunkSize: DefaultMaxChunkSize,
	},
	"image": {
		Dtype:             "uint8",
		ChunkSize:         DefaultMaxChunkSize,
		SampleCompression: "png",
	},
	"class_label": {
		Dtype:     "uint32",
		ChunkSize: DefaultMaxChunkSize,
	},
	"bbox": {
		Dtype:     "float32",
		ChunkSize: DefaultMaxChunkSize,
	},
	"video": {
		Dtype:             "uint8",
		ChunkSize:         DefaultMaxChunkSize,
		SampleCompression: "mp4",
	},
	"audio": {
		Dtype:             "float32",
		ChunkSize:         DefaultMaxChunkSize,
		SampleCompression: "mp3",
	},
	"text": {
		Dtype:     "uint8",
		ChunkSize: DefaultMaxChunkSize,
	},
}

// Htypes lists every registered htype name.
func Htypes() []string {
	names := make([]string, 0, len(htypeConfigurations))
	for k := range htypeConfigurations {
		names = append(names, k)
	}
	return names
}

func lookupHtype(htype string) (htypeConfig, bool) {
	c, ok := htypeConfigurations[htype]
	return c, ok
}
