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
package pvs

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// File layout, all little-endian:
//
//	0     4  magic "PVS1"
//	4     4  leaf count
//	8     4  payload length N
//	12    N  Set.Bytes()
//	12+N  4  CRC32 (IEEE) of bytes [0, 12+N)
const (
	Magic      = "PVS1"
	headerSize = 12
	crcSize    = 4
)

const (
	// ErrTypeCacheCorrupt is for cache files which cannot be trusted: bad
	// magic, truncation, inconsistent sizes or checksum mismatch
	ErrTypeCacheCorrupt = "pvs-cache-corrupt"

	// ErrTypeCacheMismatch is for intact cache files made for a different
	// level geometry
	ErrTypeCacheMismatch = "pvs-cache-mismatch"
)

// WriteTo writes the set in cache file format
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, headerSize+len(s.bits)+crcSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.leafCount))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(s.bits)))
	copy(buf[headerSize:], s.bits)
	end := headerSize + len(s.bits)
	binary.LittleEndian.PutUint32(buf[end:], crc32.ChecksumIEEE(buf[:end]))

	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom reads a set in cache file format. The checksum is verified
// before the payload is used
func ReadFrom(r io.Reader) (*Set, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.New("reading pvs header failed").
			WithType(ErrTypeCacheCorrupt).
			Wrap(err)
	}
	if string(header[0:4]) != Magic {
		return nil, errors.New("bad pvs magic").
			WithType(ErrTypeCacheCorrupt).
			WithTag("magic", string(header[0:4]))
	}
	leafCount := binary.LittleEndian.Uint32(header[4:8])
	payloadLen := binary.LittleEndian.Uint32(header[8:12])

	// Limited read: a damaged length must not make us allocate gigabytes for
	// a file that is a few bytes long
	want := int64(payloadLen) + crcSize
	rest, err := io.ReadAll(io.LimitReader(r, want))
	if err != nil {
		return nil, errors.New("reading pvs payload failed").
			WithType(ErrTypeCacheCorrupt).
			Wrap(err)
	}
	if int64(len(rest)) != want {
		return nil, errors.New("pvs file truncated").
			WithType(ErrTypeCacheCorrupt).
			WithTag("expected", want).
			WithTag("got", len(rest))
	}

	payload := rest[:payloadLen]
	crc := crc32.NewIEEE()
	crc.Write(header[:])
	crc.Write(payload)
	if stored := binary.LittleEndian.Uint32(rest[payloadLen:]); stored != crc.Sum32() {
		return nil, errors.New("pvs checksum mismatch").
			WithType(ErrTypeCacheCorrupt).
			WithTag("stored", stored).
			WithTag("computed", crc.Sum32())
	}

	n := uint64(leafCount)
	if (n*n+7)/8 != uint64(payloadLen) {
		return nil, errors.New("pvs payload length does not match leaf count").
			WithType(ErrTypeCacheCorrupt).
			WithTag("leaf_count", leafCount).
			WithTag("payload_len", payloadLen)
	}

	return &Set{
		leafCount: int(leafCount),
		bits:      payload,
	}, nil
}

// SaveToFile writes the set to path. Data goes to a temporary file in the
// same directory first which then replaces path, so readers never see a
// partially written file
func (s *Set) SaveToFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pvs-*")
	if err != nil {
		return errors.New("creating temporary pvs file failed").
			WithTag("path", path).
			Wrap(err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if _, err := s.WriteTo(w); err != nil {
		return errors.New("writing pvs file failed").
			WithTag("path", tmpName).
			Wrap(err)
	}
	if err := w.Flush(); err != nil {
		return errors.New("writing pvs file failed").
			WithTag("path", tmpName).
			Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.New("closing pvs file failed").
			WithTag("path", tmpName).
			Wrap(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.New("replacing pvs file failed").
			WithTag("from", tmpName).
			WithTag("to", path).
			Wrap(err)
	}
	success = true
	return nil
}

// LoadFromFile reads a set written by SaveToFile
func LoadFromFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening pvs file failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	s, err := ReadFrom(bufio.NewReader(f))
	if err != nil {
		return nil, errors.New("loading pvs file failed").
			WithType(errors.Type(err)).
			WithTag("path", path).
			Wrap(err)
	}
	return s, nil
}

// LoadFromCache returns the set stored at path if it is intact and was built
// for a level with leafCount leaves. Any problem just means the set has to be
// rebuilt, so it is logged at debug level and reported as a miss
func LoadFromCache(path string, leafCount int) (*Set, bool) {
	if _, err := os.Stat(path); err != nil {
		instrumentCacheLoad(cacheMissing)
		logs.WithTag("path", path).Debug("no pvs cache")
		return nil, false
	}

	s, err := LoadFromFile(path)
	if err != nil {
		instrumentCacheLoad(cacheCorrupt)
		logs.WithTag("path", path).Debug(err)
		return nil, false
	}
	if s.LeafCount() != leafCount {
		instrumentCacheLoad(cacheMismatch)
		logs.WithTag("path", path).Debug(errors.New("pvs cache is for another level").
			WithType(ErrTypeCacheMismatch).
			WithTag("cached_leaf_count", s.LeafCount()).
			WithTag("leaf_count", leafCount))
		return nil, false
	}

	instrumentCacheLoad(cacheHit)
	return s, true
}
