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

// itemSizes mirrors the subset of numpy dtype names this engine's numeric
// backend recognizes; a dtype not listed here is rejected at creation time.
var itemSizes = map[string]int{
	"bool":    1,
	"int8":    1,
	"uint8":   1,
	"int16":   2,
	"uint16":  2,
	"int32":   4,
	"uint32":  4,
	"int64":   8,
	"uint64":  8,
	"float32": 4,
	"float64": 8,
}

// IsDtypeSupported reports whether dtype is a recognized numpy-name dtype.
func IsDtypeSupported(dtype string) bool {
	_, ok := itemSizes[dtype]
	return ok
}

// ItemSize returns the byte width of one scalar of dtype.
func ItemSize(dtype string) (int, bool) {
	n, ok := itemSizes[dtype]
	return n, ok
}
