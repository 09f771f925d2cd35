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

// Package wad reads levels with prebuilt nodes out of Doom-format wad files
// and hands them over as bsp trees. Nodes are never built here: a level
// without them is an error.
package wad

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// ErrTypeNotAWad is for files without a valid IWAD/PWAD header or
	// directory
	ErrTypeNotAWad = "wad-not-a-wad"

	// ErrTypeNoSuchLevel is for level names with no marker lump in the wad
	ErrTypeNoSuchLevel = "wad-no-such-level"

	// ErrTypeMissingLump is for levels lacking one of the lumps a prebuilt
	// tree needs
	ErrTypeMissingLump = "wad-missing-lump"

	// ErrTypeBadLump is for lumps with an impossible size or references
	// pointing outside of other lumps
	ErrTypeBadLump = "wad-bad-lump"
)

const (
	headerSize    = 12
	lumpEntrySize = 16
)

type Kind int

const (
	IWAD Kind = iota
	PWAD
)

func (k Kind) String() string {
	if k == IWAD {
		return "IWAD"
	}
	return "PWAD"
}

// Lump is a directory entry
type Lump struct {
	Name string
	Pos  uint32
	Size uint32
}

// File is a parsed wad directory. Lump data is only read on demand
type File struct {
	Kind Kind

	r      io.ReaderAt
	lumps  []Lump
	closer io.Closer
}

// Open opens and parses the wad at path. The returned File must be closed
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening wad failed").
			WithTag("path", path).
			Wrap(err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.New("reading wad size failed").
			WithTag("path", path).
			Wrap(err)
	}

	w, err := Parse(f, st.Size())
	if err != nil {
		f.Close()
		return nil, errors.New("parsing wad failed").
			WithType(errors.Type(err)).
			WithTag("path", path).
			Wrap(err)
	}
	w.closer = f
	return w, nil
}

// Parse reads the header and directory of a wad of the given size
func Parse(r io.ReaderAt, size int64) (*File, error) {
	var h header
	if err := binary.Read(io.NewSectionReader(r, 0, size), binary.LittleEndian, &h); err != nil {
		return nil, errors.New("reading wad header failed").
			WithType(ErrTypeNotAWad).
			Wrap(err)
	}

	var kind Kind
	switch h.MagicSig {
	case iwadMagic:
		kind = IWAD
	case pwadMagic:
		kind = PWAD
	default:
		return nil, errors.New("not a wad").
			WithType(ErrTypeNotAWad).
			WithTag("magic", h.MagicSig)
	}

	dirSize := int64(h.LumpCount) * lumpEntrySize
	if int64(h.DirectoryStart)+dirSize > size {
		return nil, errors.New("wad directory out of bounds").
			WithType(ErrTypeNotAWad).
			WithTag("lump_count", h.LumpCount).
			WithTag("directory_start", h.DirectoryStart).
			WithTag("size", size)
	}

	// Read in whole directory at once
	entries := make([]lumpEntry, h.LumpCount)
	dir := io.NewSectionReader(r, int64(h.DirectoryStart), dirSize)
	if err := binary.Read(dir, binary.LittleEndian, entries); err != nil {
		return nil, errors.New("reading wad directory failed").
			WithType(ErrTypeNotAWad).
			Wrap(err)
	}

	lumps := make([]Lump, len(entries))
	for i, e := range entries {
		name := lumpName(e.Name)
		if int64(e.FilePos)+int64(e.Size) > size {
			return nil, errors.New("lump out of bounds").
				WithType(ErrTypeBadLump).
				WithTag("lump", name).
				WithTag("index", i).
				WithTag("pos", e.FilePos).
				WithTag("size", e.Size)
		}
		lumps[i] = Lump{
			Name: name,
			Pos:  e.FilePos,
			Size: e.Size,
		}
	}

	return &File{
		Kind:  kind,
		r:     r,
		lumps: lumps,
	}, nil
}

// lumpName returns the part of the name before the first zero byte
func lumpName(b [8]byte) string {
	n := b[:]
	if i := bytes.IndexByte(n, 0); i != -1 {
		n = n[:i]
	}
	return string(n)
}

// Close closes the underlying file when the File came from Open
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Lumps returns a copy of the directory
func (f *File) Lumps() []Lump {
	return slices.Clone(f.lumps)
}

// Levels returns the names of level markers in directory order
func (f *File) Levels() []string {
	var levels []string
	for _, l := range f.lumps {
		if IsLevel(l.Name) {
			levels = append(levels, l.Name)
		}
	}
	return levels
}

// ReadLump returns the contents of l
func (f *File) ReadLump(l Lump) ([]byte, error) {
	data := make([]byte, l.Size)
	// A full read may still report io.EOF at the end of the file
	if n, err := f.r.ReadAt(data, int64(l.Pos)); err != nil && n != len(data) {
		return nil, errors.New("reading lump failed").
			WithTag("lump", l.Name).
			WithTag("pos", l.Pos).
			WithTag("size", l.Size).
			Wrap(err)
	}
	return data, nil
}

// levelLumps collects the lumps following the marker of level up to the
// first lump that cannot be part of a level
func (f *File) levelLumps(level string) (map[string]Lump, error) {
	marker := slices.IndexFunc(f.lumps, func(l Lump) bool {
		return l.Name == level && IsLevel(l.Name)
	})
	if marker == -1 {
		return nil, errors.New("level not found").
			WithType(ErrTypeNoSuchLevel).
			WithTag("level", level)
	}

	lumps := make(map[string]Lump)
	for _, l := range f.lumps[marker+1:] {
		if !levelLumps[l.Name] {
			break
		}
		if _, dup := lumps[l.Name]; dup {
			break
		}
		lumps[l.Name] = l
	}
	return lumps, nil
}
