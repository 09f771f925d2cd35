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
	"io"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Writer assembles a wad in memory. Lumps are laid out in the order they were
// added, directory last
type Writer struct {
	kind  Kind
	names []string
	data  [][]byte
}

func NewWriter(kind Kind) *Writer {
	return &Writer{kind: kind}
}

// AddLump appends a lump. Names longer than 8 characters are rejected
func (w *Writer) AddLump(name string, data []byte) error {
	if len(name) > 8 {
		return errors.New("lump name too long").
			WithTag("name", name)
	}
	w.names = append(w.names, name)
	w.data = append(w.data, data)
	return nil
}

// AddRecords appends a lump holding v in little-endian byte order, v being
// anything binary.Write accepts
func (w *Writer) AddRecords(name string, v any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return errors.New("encoding lump failed").
			WithTag("name", name).
			Wrap(err)
	}
	return w.AddLump(name, buf.Bytes())
}

// WriteTo writes the whole wad
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	magic := pwadMagic
	if w.kind == IWAD {
		magic = iwadMagic
	}

	entries := make([]lumpEntry, len(w.names))
	pos := uint32(headerSize)
	for i, name := range w.names {
		entries[i].FilePos = pos
		entries[i].Size = uint32(len(w.data[i]))
		copy(entries[i].Name[:], name)
		pos += entries[i].Size
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, header{
		MagicSig:       magic,
		LumpCount:      uint32(len(entries)),
		DirectoryStart: pos,
	}); err != nil {
		return 0, errors.New("encoding wad header failed").Wrap(err)
	}
	for _, d := range w.data {
		buf.Write(d)
	}
	if err := binary.Write(&buf, binary.LittleEndian, entries); err != nil {
		return 0, errors.New("encoding wad directory failed").Wrap(err)
	}
	return buf.WriteTo(out)
}
