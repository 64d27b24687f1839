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

package manifest_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/payfile/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir string, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", []byte("hello world\n"))
	writeFile(t, dir, "a.bin", bytes.Repeat([]byte{0x00, 0xff}, 100))
	writeFile(t, dir, ".hidden", []byte("secret"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o700))

	m, err := manifest.Build(dir, 100, 50)
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())
	assert.Equal(t, uint32(50), m.ChunkSize())

	files := m.Files()
	assert.Equal(t, 0, files[0].Handle)
	assert.Equal(t, "a.bin", files[0].FileName)
	assert.Equal(t, int64(200), files[0].Size)
	assert.Equal(t, 1, files[1].Handle)
	assert.Equal(t, "b.txt", files[1].FileName)
	assert.Equal(t, int64(12), files[1].Size)
	assert.Contains(t, files[1].Description, "text/plain")
	for _, f := range files {
		assert.EqualValues(t, 100, f.PricePerChunk)
	}

	msg := m.Message()
	assert.Equal(t, files, msg.Files)
	assert.Equal(t, uint32(50), msg.ChunkSize)
}

func TestBuildErrors(t *testing.T) {
	// Empty directory
	_, err := manifest.Build(t.TempDir(), 100, 50)
	assert.ErrorIs(t, err, manifest.ErrNoFiles)

	// Only hidden files and directories
	dir := t.TempDir()
	writeFile(t, dir, ".hidden", []byte("secret"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o700))
	_, err = manifest.Build(dir, 100, 50)
	assert.ErrorIs(t, err, manifest.ErrNoFiles)

	// Not a directory
	writeFile(t, dir, "plain", []byte("data"))
	_, err = manifest.Build(filepath.Join(dir, "plain"), 100, 50)
	assert.ErrorIs(t, err, manifest.ErrNotDirectory)

	// Missing directory
	_, err = manifest.Build(filepath.Join(dir, "missing"), 100, 50)
	assert.Error(t, err)

	// Bad parameters
	_, err = manifest.Build(dir, 100, 0)
	assert.Error(t, err)
	_, err = manifest.Build(dir, -1, 50)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "only", []byte("x"))
	m, err := manifest.Build(dir, 0, 10)
	require.NoError(t, err)
	entry, ok := m.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, "only", entry.FileName)
	assert.Equal(t, filepath.Join(dir, "only"), entry.Path)
	_, ok = m.Lookup(1)
	assert.False(t, ok)
	_, ok = m.Lookup(-1)
	assert.False(t, ok)
}

func TestReadChunk(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 25)
	for i := range data {
		data[i] = byte(i)
	}
	writeFile(t, dir, "data", data)
	m, err := manifest.Build(dir, 0, 10)
	require.NoError(t, err)
	entry, _ := m.Lookup(0)

	testDefs := []struct {
		chunkId  int64
		expected []byte
	}{
		{chunkId: 0, expected: data[0:10]},
		{chunkId: 1, expected: data[10:20]},
		// Short final chunk
		{chunkId: 2, expected: data[20:25]},
		// Past the end of the file
		{chunkId: 3, expected: []byte{}},
	}
	for _, testDef := range testDefs {
		chunk, err := entry.ReadChunk(testDef.chunkId, m.ChunkSize())
		require.NoError(t, err)
		assert.Equal(t, testDef.expected, chunk, "chunk %d", testDef.chunkId)
	}

	_, err = entry.ReadChunk(-1, m.ChunkSize())
	assert.ErrorIs(t, err, manifest.ErrInvalidChunkId)
}

func TestReadChunkMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "gone", []byte("data"))
	m, err := manifest.Build(dir, 0, 10)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "gone")))
	entry, _ := m.Lookup(0)
	_, err = entry.ReadChunk(0, m.ChunkSize())
	assert.Error(t, err)
}
