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

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/vigilantdoomer/vigilantvis/bsp"
)

// NodesFormat tells which of the supported NODES layouts a level uses
type NodesFormat int

const (
	NodesVanilla NodesFormat = iota
	NodesDeep
	NodesZdoom
	NodesZdoomCompressed
)

func (f NodesFormat) String() string {
	switch f {
	case NodesVanilla:
		return "vanilla"
	case NodesDeep:
		return "deep"
	case NodesZdoom:
		return "zdoom"
	case NodesZdoomCompressed:
		return "zdoom-compressed"
	default:
		return "unknown"
	}
}

// Level is a loaded level. Regions of the tree's segments are sector numbers
type Level struct {
	Name        string
	Hexen       bool
	Nodes       NodesFormat
	SectorCount int
	Tree        *bsp.Tree
}

// line is the part of a linedef the tree needs, same for Doom and Hexen
type line struct {
	start, end uint32
	sides      [2]uint16 // front, back
}

// levelData is the geometry segments get resolved against
type levelData struct {
	name        string
	vertices    []bsp.Point
	lines       []line
	sideSectors []uint16
}

// LoadLevel reads the level with the given marker name. The tree is
// validated before it is returned
func (f *File) LoadLevel(name string) (*Level, error) {
	lumps, err := f.levelLumps(name)
	if err != nil {
		return nil, err
	}
	_, hexen := lumps["BEHAVIOR"]

	read := func(lumpName string) ([]byte, error) {
		l, ok := lumps[lumpName]
		if !ok {
			return nil, errors.New("level lump missing").
				WithType(ErrTypeMissingLump).
				WithTag("level", name).
				WithTag("lump", lumpName)
		}
		return f.ReadLump(l)
	}

	d := &levelData{name: name}

	data, err := read("VERTEXES")
	if err != nil {
		return nil, err
	}
	vertices, err := decode[vertex](name, "VERTEXES", data)
	if err != nil {
		return nil, err
	}
	d.vertices = make([]bsp.Point, len(vertices))
	for i, v := range vertices {
		d.vertices[i] = bsp.Point{X: float64(v.XPos), Y: float64(v.YPos)}
	}

	if data, err = read("LINEDEFS"); err != nil {
		return nil, err
	}
	if d.lines, err = decodeLines(name, data, hexen); err != nil {
		return nil, err
	}

	if data, err = read("SIDEDEFS"); err != nil {
		return nil, err
	}
	sidedefs, err := decode[sidedef](name, "SIDEDEFS", data)
	if err != nil {
		return nil, err
	}
	d.sideSectors = make([]uint16, len(sidedefs))
	for i, sd := range sidedefs {
		d.sideSectors[i] = sd.Sector
	}

	level := &Level{
		Name:  name,
		Hexen: hexen,
	}
	if l, ok := lumps["SECTORS"]; ok {
		level.SectorCount = int(l.Size) / binary.Size(sector{})
	}

	nodesData, err := read("NODES")
	if err != nil {
		return nil, err
	}

	var nodes []bsp.Node
	var leaves []bsp.Leaf
	var segs []bsp.Segment
	switch {
	case bytes.HasPrefix(nodesData, deepNodesSig[:]):
		level.Nodes = NodesDeep
		var segsData, ssData []byte
		if segsData, err = read("SEGS"); err != nil {
			return nil, err
		}
		if ssData, err = read("SSECTORS"); err != nil {
			return nil, err
		}
		nodes, leaves, segs, err = d.deepNodes(nodesData[len(deepNodesSig):], ssData, segsData)

	case bytes.HasPrefix(nodesData, zdoomNodesSig[:]) ||
		bytes.HasPrefix(nodesData, zdoomCompressedNodesSig[:]):
		level.Nodes = NodesZdoom
		compressed := bytes.HasPrefix(nodesData, zdoomCompressedNodesSig[:])
		if compressed {
			level.Nodes = NodesZdoomCompressed
		}
		nodes, leaves, segs, err = d.zdoomNodes(nodesData[len(zdoomNodesSig):], compressed)
		if err != nil && !compressed {
			// Might be vanilla nodes which happen to start with the signature
			vnodes, vleaves, vsegs, verr := d.vanillaFromLumps(nodesData, read)
			if verr == nil {
				level.Nodes = NodesVanilla
				nodes, leaves, segs, err = vnodes, vleaves, vsegs, nil
			}
		}

	default:
		level.Nodes = NodesVanilla
		nodes, leaves, segs, err = d.vanillaFromLumps(nodesData, read)
	}
	if err != nil {
		return nil, err
	}

	tree, err := bsp.NewTree(nodes, leaves, segs)
	if err != nil {
		return nil, errors.New("level nodes do not form a valid tree").
			WithType(errors.Type(err)).
			WithTag("level", name).
			WithTag("nodes_format", level.Nodes.String()).
			Wrap(err)
	}
	level.Tree = tree

	logs.WithTag("level", name).
		WithTag("nodes_format", level.Nodes.String()).
		WithTag("nodes", tree.NodeCount()).
		WithTag("subsectors", tree.LeafCount()).
		WithTag("segs", tree.SegmentCount()).
		Debug("level loaded")
	return level, nil
}

func (d *levelData) vanillaFromLumps(nodesData []byte, read func(string) ([]byte, error)) ([]bsp.Node, []bsp.Leaf, []bsp.Segment, error) {
	segsData, err := read("SEGS")
	if err != nil {
		return nil, nil, nil, err
	}
	ssData, err := read("SSECTORS")
	if err != nil {
		return nil, nil, nil, err
	}
	return d.vanillaNodes(nodesData, ssData, segsData)
}

// decode reads a lump consisting of fixed size records
func decode[T any](level, lumpName string, data []byte) ([]T, error) {
	var zero T
	size := binary.Size(zero)
	if len(data)%size != 0 {
		return nil, errors.New("lump size is not a multiple of its record size").
			WithType(ErrTypeBadLump).
			WithTag("level", level).
			WithTag("lump", lumpName).
			WithTag("size", len(data)).
			WithTag("record_size", size)
	}
	records := make([]T, len(data)/size)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, records); err != nil {
		return nil, errors.New("decoding lump failed").
			WithType(ErrTypeBadLump).
			WithTag("level", level).
			WithTag("lump", lumpName).
			Wrap(err)
	}
	return records, nil
}

func decodeLines(level string, data []byte, hexen bool) ([]line, error) {
	if hexen {
		linedefs, err := decode[hexenLinedef](level, "LINEDEFS", data)
		if err != nil {
			return nil, err
		}
		lines := make([]line, len(linedefs))
		for i, l := range linedefs {
			lines[i] = line{
				start: uint32(l.StartVertex),
				end:   uint32(l.EndVertex),
				sides: [2]uint16{l.FrontSdef, l.BackSdef},
			}
		}
		return lines, nil
	}

	linedefs, err := decode[linedef](level, "LINEDEFS", data)
	if err != nil {
		return nil, err
	}
	lines := make([]line, len(linedefs))
	for i, l := range linedefs {
		lines[i] = line{
			start: uint32(l.StartVertex),
			end:   uint32(l.EndVertex),
			sides: [2]uint16{l.FrontSdef, l.BackSdef},
		}
	}
	return lines, nil
}
