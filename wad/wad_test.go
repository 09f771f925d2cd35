// Copyright (C) 2025, VigilantDoomer
//
// This file is part of VigilantVIS program.
//
// VigilantVIS is free software: you can redistribute it
// and/or modify it under the terms of GNU General Public License
// as published by the Free Software Foundation, either version 2 of
// the License, or (at your option) any later version.
//
// VigilantVIS is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VigilantVIS.  If not, see <https://www.gnu.org/licenses/>.
package wad

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestIsLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"MAP01", true},
		{"MAP32", true},
		{"E1M1", true},
		{"E4M9", true},
		{"E2M10", true},
		{"MAP1", false},
		{"MAP001", false},
		{"E0M1", false},
		{"E1M", false},
		{"map01", false},
		{"THINGS", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, IsLevel(test.name))
		})
	}
}

func TestWriterAndDirectory(t *testing.T) {
	w := NewWriter(PWAD)
	require.NoError(t, w.AddLump("DEHACKED", []byte("Patch File")))
	require.NoError(t, w.AddLump("MAP07", nil))
	require.NoError(t, w.AddRecords("VERTEXES", []vertex{{1, 2}, {-3, 4}}))
	require.Error(t, w.AddLump("TOOLONGNAME", nil))

	var buf bytes.Buffer
	n, err := w.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, "PWAD", string(buf.Bytes()[:4]))

	f, err := Parse(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Equal(t, PWAD, f.Kind)
	require.Equal(t, "PWAD", f.Kind.String())

	lumps := f.Lumps()
	require.Len(t, lumps, 3)
	require.Equal(t, "DEHACKED", lumps[0].Name)
	require.Equal(t, uint32(headerSize), lumps[0].Pos)
	require.Equal(t, "MAP07", lumps[1].Name)
	require.Equal(t, uint32(0), lumps[1].Size)
	require.Equal(t, []string{"MAP07"}, f.Levels())

	data, err := f.ReadLump(lumps[0])
	require.NoError(t, err)
	require.Equal(t, "Patch File", string(data))

	data, err = f.ReadLump(lumps[1])
	require.NoError(t, err)
	require.Empty(t, data)

	data, err = f.ReadLump(lumps[2])
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 2, 0, 0xfd, 0xff, 4, 0}, data)

	// the copy does not alias the directory
	lumps[0].Name = "CHANGED"
	require.Equal(t, "DEHACKED", f.Lumps()[0].Name)
}

func TestWriterRejectsUnencodableRecords(t *testing.T) {
	w := NewWriter(PWAD)
	require.Error(t, w.AddRecords("THINGS", []string{"not", "fixed", "size"}))
	require.Error(t, w.AddRecords("THINGS", map[int]int{1: 2}))

	var buf bytes.Buffer
	n, err := w.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(headerSize), n)

	f, err := Parse(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Empty(t, f.Lumps())
}

func TestParseRejectsNonWads(t *testing.T) {
	valid := func() []byte {
		w := NewWriter(IWAD)
		require.NoError(t, w.AddLump("PLAYPAL", make([]byte, 16)))
		var buf bytes.Buffer
		_, err := w.WriteTo(&buf)
		require.NoError(t, err)
		return buf.Bytes()
	}

	tests := []struct {
		name    string
		mutate  func(data []byte) []byte
		errType string
	}{
		{
			name:    "empty",
			mutate:  func(data []byte) []byte { return nil },
			errType: ErrTypeNotAWad,
		},
		{
			name: "bad magic",
			mutate: func(data []byte) []byte {
				copy(data, "ZWAD")
				return data
			},
			errType: ErrTypeNotAWad,
		},
		{
			name: "directory past the end",
			mutate: func(data []byte) []byte {
				binary.LittleEndian.PutUint32(data[4:8], 1000)
				return data
			},
			errType: ErrTypeNotAWad,
		},
		{
			name: "lump past the end",
			mutate: func(data []byte) []byte {
				dir := binary.LittleEndian.Uint32(data[8:12])
				binary.LittleEndian.PutUint32(data[dir+4:dir+8], 1<<20)
				return data
			},
			errType: ErrTypeBadLump,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := test.mutate(valid())
			_, err := Parse(bytes.NewReader(data), int64(len(data)))
			require.Error(t, err)
			require.True(t, errors.IsType(err, test.errType))
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.wad"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.wad")
	require.NoError(t, os.WriteFile(bad, []byte("not a wad"), 0o644))
	_, err = Open(bad)
	require.True(t, errors.IsType(err, ErrTypeNotAWad))

	w := NewWriter(IWAD)
	require.NoError(t, w.AddLump("E1M1", nil))
	var buf bytes.Buffer
	_, err = w.WriteTo(&buf)
	require.NoError(t, err)
	good := filepath.Join(dir, "good.wad")
	require.NoError(t, os.WriteFile(good, buf.Bytes(), 0o644))

	f, err := Open(good)
	require.NoError(t, err)
	require.Equal(t, IWAD, f.Kind)
	require.Equal(t, []string{"E1M1"}, f.Levels())
	require.NoError(t, f.Close())
}
