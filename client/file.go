// Copyright 2026 Blink Labs Software
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

package client

import (
	"fmt"

	"github.com/blinklabs-io/payfile/protocol"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/jinzhu/copier"
)

// File is a file offered by the server, as listed in its last manifest
type File struct {
	Handle        int
	FileName      string
	Description   string
	Size          int64
	PricePerChunk btcutil.Amount
	chunkSize     uint32
}

func newFiles(msg *protocol.MsgManifest) ([]*File, error) {
	ret := make([]*File, 0, len(msg.Files))
	for _, desc := range msg.Files {
		f := &File{}
		if err := copier.Copy(f, &desc); err != nil {
			return nil, fmt.Errorf("copy file descriptor: %w", err)
		}
		f.chunkSize = msg.ChunkSize
		ret = append(ret, f)
	}
	return ret, nil
}

// ChunkSize returns the chunk size announced with the file
func (f *File) ChunkSize() uint32 {
	return f.chunkSize
}

// Chunks returns the number of chunks needed to download the file. An empty
// file still takes one request.
func (f *File) Chunks() int64 {
	if f.chunkSize == 0 {
		return 0
	}
	chunkSize := int64(f.chunkSize)
	chunks := (f.Size + chunkSize - 1) / chunkSize
	if chunks < 1 {
		chunks = 1
	}
	return chunks
}

// Price returns the total cost of downloading the file
func (f *File) Price() btcutil.Amount {
	return f.PricePerChunk * btcutil.Amount(f.Chunks())
}

func (f *File) String() string {
	return fmt.Sprintf(
		"%d: %s (%s, %d bytes, %s)",
		f.Handle,
		f.FileName,
		f.Description,
		f.Size,
		f.Price(),
	)
}
