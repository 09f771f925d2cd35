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

// On-disk structures of the Doom-engine family of games (Doom, Heretic,
// Hexen), limited to what is needed to read a prebuilt BSP tree

package wad

import (
	"regexp"
)

// Both brought in accordance with Prboom-Plus 2.6.1um map name ranges, except
// that E1M0x is possible
var (
	mapSequel = regexp.MustCompile(`^MAP[0-9][0-9]$`)
	mapExMx   = regexp.MustCompile(`^E[1-9]M[0-9][0-9]?$`)
)

const (
	iwadMagic = uint32(0x44415749) // ASCII - 'IWAD'
	pwadMagic = uint32(0x44415750) // ASCII - 'PWAD'
)

// Starting signature "xNd4\0\0\0\0" of NODES produced by DeePBSP
var deepNodesSig = [8]byte{0x78, 0x4E, 0x64, 0x34, 0x00, 0x00, 0x00, 0x00}

// Starting signatures of NODES in Zdoom extended non-GL format, "XNOD"
// uncompressed and "ZNOD" with everything past the signature zlib-compressed.
// XNOD together with some bytes following it may accidentally occur in valid
// vanilla nodes data, so vanilla is tried when extended decoding fails
var (
	zdoomNodesSig           = [4]byte{0x58, 0x4E, 0x4F, 0x44}
	zdoomCompressedNodesSig = [4]byte{0x5A, 0x4E, 0x4F, 0x44}
)

const sidedefNone = uint16(0xFFFF)

// Indices into node bounding boxes
const (
	bbTop = iota
	bbBottom
	bbLeft
	bbRight
)

// Child references: sign bit set means subsector
const (
	vanillaLeafFlag = uint16(0x8000)
	deepLeafFlag    = uint32(0x80000000)
)

// Lumps that may follow a level marker. Order in real wads varies between
// tools, so membership is all that matters
var levelLumps = map[string]bool{
	"THINGS":   true,
	"LINEDEFS": true,
	"SIDEDEFS": true,
	"VERTEXES": true,
	"SEGS":     true,
	"SSECTORS": true,
	"NODES":    true,
	"SECTORS":  true,
	"REJECT":   true,
	"BLOCKMAP": true,
	"BEHAVIOR": true,
	"SCRIPTS":  true,
}

// Wad header, 12 bytes
type header struct {
	MagicSig       uint32
	LumpCount      uint32
	DirectoryStart uint32
}

// Directory entry, 16 bytes
type lumpEntry struct {
	FilePos uint32
	Size    uint32
	Name    [8]byte
}

// Doom/Heretic linedef, 14 bytes
type linedef struct {
	StartVertex uint16
	EndVertex   uint16
	Flags       uint16
	Action      uint16
	Tag         uint16
	FrontSdef   uint16
	BackSdef    uint16 // sidedefNone for one-sided lines
}

// Hexen linedef, 16 bytes
type hexenLinedef struct {
	StartVertex uint16
	EndVertex   uint16
	Flags       uint16
	Action      uint8
	Args        [5]uint8
	FrontSdef   uint16
	BackSdef    uint16
}

// Sidedef, 30 bytes
type sidedef struct {
	XOffset int16
	YOffset int16
	UpName  [8]byte
	LoName  [8]byte
	MidName [8]byte
	Sector  uint16
}

// Sector, 26 bytes. Only its size matters here
type sector struct {
	FloorHeight int16
	CeilHeight  int16
	FloorName   [8]byte
	CeilName    [8]byte
	LightLevel  uint16
	Special     uint16
	Tag         uint16
}

type vertex struct {
	XPos int16
	YPos int16
}

type seg struct {
	StartVertex uint16
	EndVertex   uint16
	Angle       int16
	Linedef     uint16
	Flip        int16 // 0 - seg follows same direction as linedef, 1 - the opposite
	Offset      uint16
}

// DeePBSP "standard V4" seg
type deepSeg struct {
	StartVertex uint32
	EndVertex   uint32
	Angle       int16
	Linedef     uint16
	Flip        int16
	Offset      uint16
}

type subSector struct {
	SegCount uint16
	FirstSeg uint16
}

type deepSubSector struct {
	SegCount uint16
	FirstSeg uint32
}

// Right is the front side of the partition line, left the back one
type node struct {
	X      int16
	Y      int16
	Dx     int16
	Dy     int16
	Rbox   [4]int16
	Lbox   [4]int16
	RChild uint16
	LChild uint16
}

// DeePBSP "standard V4" node, also used by Zdoom extended nodes
type deepNode struct {
	X      int16
	Y      int16
	Dx     int16
	Dy     int16
	Rbox   [4]int16
	Lbox   [4]int16
	RChild uint32
	LChild uint32
}

type zdoomVertexHeader struct {
	ReusedOriginalVertices uint32
	NumExtendedVertices    uint32
}

// Fixed-point 16.16
type zdoomVertex struct {
	X int32
	Y int32
}

// No angle or offset here, offset is recomputed from the linedef
type zdoomSeg struct {
	StartVertex uint32
	EndVertex   uint32
	Linedef     uint16
	Flip        uint8
}

// IsLevel returns whether lumpName is a Doom level marker, i.e. MAP02, E3M1
func IsLevel(lumpName string) bool {
	return mapSequel.MatchString(lumpName) || mapExMx.MatchString(lumpName)
}
