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
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/klauspost/compress/zlib"
	"github.com/vigilantdoomer/vigilantvis/bsp"
)

// Upper bound for decompressed ZNOD data
const maxZdoomNodesSize = 256 << 20

// Doom puts points for which the cross product is not positive on the left
// (back) side, which is side 0 of bsp.Node. The right child and box become
// side 1
func partition(x, y, dx, dy int16, rbox, lbox [4]int16, right, left bsp.ChildRef) bsp.Node {
	return bsp.Node{
		Origin:   bsp.Point{X: float64(x), Y: float64(y)},
		Dir:      bsp.Vector{X: float64(dx), Y: float64(dy)},
		Boxes:    [2]bsp.Box{nodeBox(lbox), nodeBox(rbox)},
		Children: [2]bsp.ChildRef{left, right},
	}
}

func nodeBox(b [4]int16) bsp.Box {
	return bsp.Box{
		Min: bsp.Point{X: float64(b[bbLeft]), Y: float64(b[bbBottom])},
		Max: bsp.Point{X: float64(b[bbRight]), Y: float64(b[bbTop])},
	}
}

// vanillaChild widens the 0x8000 subsector flag
func vanillaChild(c uint16) bsp.ChildRef {
	if c&vanillaLeafFlag != 0 {
		return bsp.LeafRef(int(c &^ vanillaLeafFlag))
	}
	return bsp.NodeRef(int(c))
}

func deepChild(c uint32) bsp.ChildRef {
	if c&deepLeafFlag != 0 {
		return bsp.LeafRef(int(c &^ deepLeafFlag))
	}
	return bsp.NodeRef(int(c))
}

func (d *levelData) badLump(lumpName, msg string) errors.Error {
	return errors.New(msg).
		WithType(ErrTypeBadLump).
		WithTag("level", d.name).
		WithTag("lump", lumpName)
}

// region returns the sector behind sidedef sd, NoRegion for no sidedef
func (d *levelData) region(sd uint16) (uint32, bool) {
	if sd == sidedefNone {
		return bsp.NoRegion, true
	}
	if int(sd) >= len(d.sideSectors) {
		return 0, false
	}
	return uint32(d.sideSectors[sd]), true
}

// segment resolves a seg against vertices and linedefs. Offset is measured
// from the linedef's start vertex, or its end vertex for flipped segs
func (d *levelData) segment(verts []bsp.Point, start, end uint32, lineIdx uint16, flip bool) (bsp.Segment, error) {
	if int64(start) >= int64(len(verts)) || int64(end) >= int64(len(verts)) {
		return bsp.Segment{}, d.badLump("SEGS", "seg vertex out of range").
			WithTag("start", start).
			WithTag("end", end).
			WithTag("vertices", len(verts))
	}
	if int(lineIdx) >= len(d.lines) {
		return bsp.Segment{}, d.badLump("SEGS", "seg linedef out of range").
			WithTag("linedef", lineIdx)
	}
	l := d.lines[lineIdx]

	side := 0
	if flip {
		side = 1
	}
	front, ok := d.region(l.sides[side])
	if !ok {
		return bsp.Segment{}, d.badLump("LINEDEFS", "linedef sidedef out of range").
			WithTag("linedef", lineIdx).
			WithTag("sidedef", l.sides[side])
	}
	back, ok := d.region(l.sides[side^1])
	if !ok {
		return bsp.Segment{}, d.badLump("LINEDEFS", "linedef sidedef out of range").
			WithTag("linedef", lineIdx).
			WithTag("sidedef", l.sides[side^1])
	}

	from := l.start
	if flip {
		from = l.end
	}
	if int64(from) >= int64(len(d.vertices)) {
		return bsp.Segment{}, d.badLump("LINEDEFS", "linedef vertex out of range").
			WithTag("linedef", lineIdx).
			WithTag("vertex", from)
	}

	s := bsp.Segment{
		Start: verts[start],
		End:   verts[end],
		Line:  uint32(lineIdx),
		Front: front,
		Back:  back,
	}
	s.Offset = s.Start.Sub(d.vertices[from]).Len()
	return s, nil
}

func (d *levelData) vanillaNodes(nodesData, ssData, segsData []byte) ([]bsp.Node, []bsp.Leaf, []bsp.Segment, error) {
	rawNodes, err := decode[node](d.name, "NODES", nodesData)
	if err != nil {
		return nil, nil, nil, err
	}
	rawLeaves, err := decode[subSector](d.name, "SSECTORS", ssData)
	if err != nil {
		return nil, nil, nil, err
	}
	rawSegs, err := decode[seg](d.name, "SEGS", segsData)
	if err != nil {
		return nil, nil, nil, err
	}

	segs := make([]bsp.Segment, len(rawSegs))
	for i, s := range rawSegs {
		if segs[i], err = d.segment(d.vertices, uint32(s.StartVertex), uint32(s.EndVertex), s.Linedef, s.Flip != 0); err != nil {
			return nil, nil, nil, err
		}
		segs[i].Offset = float64(s.Offset)
	}

	leaves := make([]bsp.Leaf, len(rawLeaves))
	for i, ss := range rawLeaves {
		leaves[i] = bsp.Leaf{FirstSeg: uint32(ss.FirstSeg), SegCount: uint32(ss.SegCount)}
	}

	nodes := make([]bsp.Node, len(rawNodes))
	for i, n := range rawNodes {
		nodes[i] = partition(n.X, n.Y, n.Dx, n.Dy, n.Rbox, n.Lbox,
			vanillaChild(n.RChild), vanillaChild(n.LChild))
	}
	return nodes, leaves, segs, nil
}

// deepNodes reads DeePBSP nodes, nodesData without the signature. SEGS and
// SSECTORS come in the widened V4 layout too
func (d *levelData) deepNodes(nodesData, ssData, segsData []byte) ([]bsp.Node, []bsp.Leaf, []bsp.Segment, error) {
	rawNodes, err := decode[deepNode](d.name, "NODES", nodesData)
	if err != nil {
		return nil, nil, nil, err
	}
	rawLeaves, err := decode[deepSubSector](d.name, "SSECTORS", ssData)
	if err != nil {
		return nil, nil, nil, err
	}
	rawSegs, err := decode[deepSeg](d.name, "SEGS", segsData)
	if err != nil {
		return nil, nil, nil, err
	}

	segs := make([]bsp.Segment, len(rawSegs))
	for i, s := range rawSegs {
		if segs[i], err = d.segment(d.vertices, s.StartVertex, s.EndVertex, s.Linedef, s.Flip != 0); err != nil {
			return nil, nil, nil, err
		}
		segs[i].Offset = float64(s.Offset)
	}

	leaves := make([]bsp.Leaf, len(rawLeaves))
	for i, ss := range rawLeaves {
		leaves[i] = bsp.Leaf{FirstSeg: ss.FirstSeg, SegCount: uint32(ss.SegCount)}
	}

	nodes := make([]bsp.Node, len(rawNodes))
	for i, n := range rawNodes {
		nodes[i] = partition(n.X, n.Y, n.Dx, n.Dy, n.Rbox, n.Lbox,
			deepChild(n.RChild), deepChild(n.LChild))
	}
	return nodes, leaves, segs, nil
}

// zdoomNodes reads Zdoom extended nodes, data without the signature. The
// whole tree lives in NODES: extra vertices, subsector seg counts, segs and
// nodes, each block prefixed with its record count
func (d *levelData) zdoomNodes(data []byte, compressed bool) ([]bsp.Node, []bsp.Leaf, []bsp.Segment, error) {
	if compressed {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, nil, nil, d.badLump("NODES", "bad compressed nodes").Wrap(err)
		}
		defer zr.Close()
		data, err = io.ReadAll(io.LimitReader(zr, maxZdoomNodesSize+1))
		if err != nil {
			return nil, nil, nil, d.badLump("NODES", "bad compressed nodes").Wrap(err)
		}
		if len(data) > maxZdoomNodesSize {
			return nil, nil, nil, d.badLump("NODES", "compressed nodes too large")
		}
	}
	r := bytes.NewReader(data)

	var vh zdoomVertexHeader
	if err := binary.Read(r, binary.LittleEndian, &vh); err != nil {
		return nil, nil, nil, d.badLump("NODES", "nodes truncated").Wrap(err)
	}
	if int64(vh.ReusedOriginalVertices) > int64(len(d.vertices)) {
		return nil, nil, nil, d.badLump("NODES", "more reused vertices than the level has").
			WithTag("reused", vh.ReusedOriginalVertices).
			WithTag("vertices", len(d.vertices))
	}
	extra, err := readBlock[zdoomVertex](d, r, int64(vh.NumExtendedVertices))
	if err != nil {
		return nil, nil, nil, err
	}
	verts := make([]bsp.Point, 0, int(vh.ReusedOriginalVertices)+len(extra))
	verts = append(verts, d.vertices[:vh.ReusedOriginalVertices]...)
	for _, v := range extra {
		verts = append(verts, bsp.Point{
			X: float64(v.X) / 65536,
			Y: float64(v.Y) / 65536,
		})
	}

	counts, err := readCountedBlock[uint32](d, r)
	if err != nil {
		return nil, nil, nil, err
	}
	rawSegs, err := readCountedBlock[zdoomSeg](d, r)
	if err != nil {
		return nil, nil, nil, err
	}
	rawNodes, err := readCountedBlock[deepNode](d, r)
	if err != nil {
		return nil, nil, nil, err
	}

	// Subsectors own consecutive runs of segs
	leaves := make([]bsp.Leaf, len(counts))
	first := uint64(0)
	for i, c := range counts {
		if first > math.MaxUint32 {
			return nil, nil, nil, d.badLump("NODES", "subsector seg counts overflow")
		}
		leaves[i] = bsp.Leaf{FirstSeg: uint32(first), SegCount: c}
		first += uint64(c)
	}

	segs := make([]bsp.Segment, len(rawSegs))
	for i, s := range rawSegs {
		if segs[i], err = d.segment(verts, s.StartVertex, s.EndVertex, s.Linedef, s.Flip != 0); err != nil {
			return nil, nil, nil, err
		}
	}

	nodes := make([]bsp.Node, len(rawNodes))
	for i, n := range rawNodes {
		nodes[i] = partition(n.X, n.Y, n.Dx, n.Dy, n.Rbox, n.Lbox,
			deepChild(n.RChild), deepChild(n.LChild))
	}
	return nodes, leaves, segs, nil
}

// readCountedBlock reads a uint32 record count followed by that many records
func readCountedBlock[T any](d *levelData, r *bytes.Reader) ([]T, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, d.badLump("NODES", "nodes truncated").Wrap(err)
	}
	return readBlock[T](d, r, int64(n))
}

// readBlock checks the count against what is left before allocating
func readBlock[T any](d *levelData, r *bytes.Reader, n int64) ([]T, error) {
	var zero T
	if n*int64(binary.Size(zero)) > int64(r.Len()) {
		return nil, d.badLump("NODES", "nodes truncated").
			WithTag("records", n).
			WithTag("left", r.Len())
	}
	records := make([]T, n)
	if err := binary.Read(r, binary.LittleEndian, records); err != nil {
		return nil, d.badLump("NODES", "nodes truncated").Wrap(err)
	}
	return records, nil
}
