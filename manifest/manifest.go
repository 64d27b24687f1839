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

// Package manifest builds the list of files offered by a server from a
// directory on disk and reads chunks of those files.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blinklabs-io/payfile/protocol"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/gabriel-vasile/mimetype"
)

const defaultDescription = "application/octet-stream"

var (
	ErrNotDirectory   = errors.New("manifest: not a directory")
	ErrNoFiles        = errors.New("manifest: directory contains no files")
	ErrInvalidChunkId = errors.New("manifest: invalid chunk id")
)

// Entry is a served file
type Entry struct {
	protocol.FileDescriptor
	Path string
}

// Manifest is the immutable list of files offered by a server. It is safe for
// concurrent use.
type Manifest struct {
	entries       []Entry
	chunkSize     uint32
	pricePerChunk btcutil.Amount
	msg           *protocol.MsgManifest
}

// Build creates a Manifest from the regular, non-hidden files directly inside
// dir. Files are sorted by name and numbered from 0. Every file gets the same
// price per chunk and a description derived from its detected MIME type.
func Build(dir string, pricePerChunk btcutil.Amount, chunkSize uint32) (*Manifest, error) {
	if chunkSize == 0 {
		return nil, errors.New("manifest: chunk size must be positive")
	}
	if pricePerChunk < 0 {
		return nil, errors.New("manifest: price per chunk must not be negative")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	names := make([]string, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if strings.HasPrefix(dirEntry.Name(), ".") {
			continue
		}
		names = append(names, dirEntry.Name())
	}
	sort.Strings(names)
	m := &Manifest{
		chunkSize:     chunkSize,
		pricePerChunk: pricePerChunk,
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		// Stat follows symlinks
		fileInfo, err := os.Stat(path)
		if err != nil || !fileInfo.Mode().IsRegular() {
			continue
		}
		m.entries = append(
			m.entries,
			Entry{
				FileDescriptor: protocol.FileDescriptor{
					Handle:        len(m.entries),
					FileName:      name,
					Description:   describe(path),
					Size:          fileInfo.Size(),
					PricePerChunk: pricePerChunk,
				},
				Path: path,
			},
		)
	}
	if len(m.entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, dir)
	}
	m.msg = protocol.NewMsgManifest(m.Files(), chunkSize)
	return m, nil
}

func describe(path string) string {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return defaultDescription
	}
	return mime.String()
}

// ChunkSize returns the number of bytes in each chunk
func (m *Manifest) ChunkSize() uint32 {
	return m.chunkSize
}

// PricePerChunk returns the price charged for each chunk of every file
func (m *Manifest) PricePerChunk() btcutil.Amount {
	return m.pricePerChunk
}

// Len returns the number of files in the manifest
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Files returns the descriptors of all files in handle order
func (m *Manifest) Files() []protocol.FileDescriptor {
	ret := make([]protocol.FileDescriptor, 0, len(m.entries))
	for _, entry := range m.entries {
		ret = append(ret, entry.FileDescriptor)
	}
	return ret
}

// Message returns the Manifest message sent in reply to QueryFiles
func (m *Manifest) Message() *protocol.MsgManifest {
	return m.msg
}

// Lookup returns the entry for a handle
func (m *Manifest) Lookup(handle int) (Entry, bool) {
	if handle < 0 || handle >= len(m.entries) {
		return Entry{}, false
	}
	return m.entries[handle], true
}

// ReadChunk reads the chunk with the given id from the file. The last chunk
// of a file may be short, and a chunk that starts past the end of the file is
// empty.
func (e Entry) ReadChunk(chunkId int64, chunkSize uint32) ([]byte, error) {
	if chunkId < 0 || chunkId > math.MaxInt64/int64(chunkSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkId, chunkId)
	}
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, chunkSize)
	n, err := f.ReadAt(buf, chunkId*int64(chunkSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}
