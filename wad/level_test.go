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
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
	"github.com/vigilantdoomer/vigilantvis/bsp"
	"github.com/vigilantdoomer/vigilantvis/pvs"
)

// testLevel is a 128x64 room cut in two sectors by a two-sided line at x=64:
//
//	v1 ---- v5 ---- v2
//	|  ss0  |  ss1   |
//	v0 ---- v4 ---- v3
type testLevel struct {
	vertices   []vertex
	lines      []linedef
	sides      []sidedef
	segs       []seg
	subsectors []subSector
	nodes      []node
}

func roomLevel() testLevel {
	return testLevel{
		vertices: []vertex{
			{0, 0}, {0, 64}, {128, 64}, {128, 0}, {64, 0}, {64, 64},
		},
		lines: []linedef{
			{StartVertex: 0, EndVertex: 1, FrontSdef: 0, BackSdef: sidedefNone},
			{StartVertex: 1, EndVertex: 5, FrontSdef: 1, BackSdef: sidedefNone},
			{StartVertex: 5, EndVertex: 2, FrontSdef: 2, BackSdef: sidedefNone},
			{StartVertex: 2, EndVertex: 3, FrontSdef: 3, BackSdef: sidedefNone},
			{StartVertex: 3, EndVertex: 4, FrontSdef: 4, BackSdef: sidedefNone},
			{StartVertex: 4, EndVertex: 0, FrontSdef: 5, BackSdef: sidedefNone},
			// front faces east
			{StartVertex: 4, EndVertex: 5, Flags: 0x0004, FrontSdef: 6, BackSdef: 7},
		},
		sides: []sidedef{
			{Sector: 0}, {Sector: 0}, {Sector: 1}, {Sector: 1},
			{Sector: 1}, {Sector: 0}, {Sector: 1}, {Sector: 0},
		},
		segs: []seg{
			// ss0
			{StartVertex: 0, EndVertex: 1, Linedef: 0},
			{StartVertex: 1, EndVertex: 5, Linedef: 1},
			{StartVertex: 5, EndVertex: 4, Linedef: 6, Flip: 1},
			{StartVertex: 4, EndVertex: 0, Linedef: 5},
			// ss1
			{StartVertex: 5, EndVertex: 2, Linedef: 2},
			{StartVertex: 2, EndVertex: 3, Linedef: 3},
			{StartVertex: 3, EndVertex: 4, Linedef: 4},
			{StartVertex: 4, EndVertex: 5, Linedef: 6},
		},
		subsectors: []subSector{
			{SegCount: 4, FirstSeg: 0},
			{SegCount: 4, FirstSeg: 4},
		},
		nodes: []node{{
			X: 64, Y: 0, Dx: 0, Dy: 64,
			Rbox:   [4]int16{bbTop: 64, bbBottom: 0, bbLeft: 64, bbRight: 128},
			Lbox:   [4]int16{bbTop: 64, bbBottom: 0, bbLeft: 0, bbRight: 64},
			RChild: 1 | vanillaLeafFlag,
			LChild: 0 | vanillaLeafFlag,
		}},
	}
}

func toDeepChild(c uint16) uint32 {
	if c&vanillaLeafFlag != 0 {
		return uint32(c&^vanillaLeafFlag) | deepLeafFlag
	}
	return uint32(c)
}

func (l testLevel) deepNodes() []deepNode {
	nodes := make([]deepNode, len(l.nodes))
	for i, n := range l.nodes {
		nodes[i] = deepNode{
			X: n.X, Y: n.Y, Dx: n.Dx, Dy: n.Dy,
			Rbox: n.Rbox, Lbox: n.Lbox,
			RChild: toDeepChild(n.RChild),
			LChild: toDeepChild(n.LChild),
		}
	}
	return nodes
}

func mustWrite(t *testing.T, buf *bytes.Buffer, v any) {
	require.NoError(t, binary.Write(buf, binary.LittleEndian, v))
}

// zdoomNodes encodes the level as extended nodes. The last vertex is
// duplicated as an extended one and the segs use the duplicate
func (l testLevel) zdoomNodes(t *testing.T, compressed bool) []byte {
	reused := len(l.vertices)
	remap := func(v uint16) uint32 {
		if int(v) == reused-1 {
			return uint32(reused)
		}
		return uint32(v)
	}

	var body bytes.Buffer
	last := l.vertices[reused-1]
	mustWrite(t, &body, zdoomVertexHeader{
		ReusedOriginalVertices: uint32(reused),
		NumExtendedVertices:    1,
	})
	mustWrite(t, &body, zdoomVertex{X: int32(last.XPos) << 16, Y: int32(last.YPos) << 16})

	mustWrite(t, &body, uint32(len(l.subsectors)))
	for _, ss := range l.subsectors {
		mustWrite(t, &body, uint32(ss.SegCount))
	}
	mustWrite(t, &body, uint32(len(l.segs)))
	for _, s := range l.segs {
		mustWrite(t, &body, zdoomSeg{
			StartVertex: remap(s.StartVertex),
			EndVertex:   remap(s.EndVertex),
			Linedef:     s.Linedef,
			Flip:        uint8(s.Flip),
		})
	}
	mustWrite(t, &body, uint32(len(l.nodes)))
	mustWrite(t, &body, l.deepNodes())

	var out bytes.Buffer
	if !compressed {
		out.Write(zdoomNodesSig[:])
		out.Write(body.Bytes())
		return out.Bytes()
	}
	out.Write(zdoomCompressedNodesSig[:])
	zw := zlib.NewWriter(&out)
	_, err := zw.Write(body.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return out.Bytes()
}

// writeLevel adds the level's lumps after its marker, skipping the names in
// omit
func (l testLevel) writeLevel(t *testing.T, w *Writer, name string, format NodesFormat, hexen bool, omit ...string) {
	skip := make(map[string]bool)
	for _, o := range omit {
		skip[o] = true
	}
	add := func(lump string, v any) {
		if !skip[lump] {
			require.NoError(t, w.AddRecords(lump, v))
		}
	}

	require.NoError(t, w.AddLump(name, nil))
	add("THINGS", []byte{})
	if hexen {
		lines := make([]hexenLinedef, len(l.lines))
		for i, ld := range l.lines {
			lines[i] = hexenLinedef{
				StartVertex: ld.StartVertex,
				EndVertex:   ld.EndVertex,
				Flags:       ld.Flags,
				FrontSdef:   ld.FrontSdef,
				BackSdef:    ld.BackSdef,
			}
		}
		add("LINEDEFS", lines)
	} else {
		add("LINEDEFS", l.lines)
	}
	add("SIDEDEFS", l.sides)
	add("VERTEXES", l.vertices)

	switch format {
	case NodesVanilla:
		add("SEGS", l.segs)
		add("SSECTORS", l.subsectors)
		add("NODES", l.nodes)
	case NodesDeep:
		segs := make([]deepSeg, len(l.segs))
		for i, s := range l.segs {
			segs[i] = deepSeg{
				StartVertex: uint32(s.StartVertex),
				EndVertex:   uint32(s.EndVertex),
				Linedef:     s.Linedef,
				Flip:        s.Flip,
				Offset:      s.Offset,
			}
		}
		subsectors := make([]deepSubSector, len(l.subsectors))
		for i, ss := range l.subsectors {
			subsectors[i] = deepSubSector{SegCount: ss.SegCount, FirstSeg: uint32(ss.FirstSeg)}
		}
		var nodes bytes.Buffer
		nodes.Write(deepNodesSig[:])
		mustWrite(t, &nodes, l.deepNodes())
		add("SEGS", segs)
		add("SSECTORS", subsectors)
		add("NODES", nodes.Bytes())
	case NodesZdoom, NodesZdoomCompressed:
		add("SEGS", []byte{})
		add("SSECTORS", []byte{})
		add("NODES", l.zdoomNodes(t, format == NodesZdoomCompressed))
	}

	add("SECTORS", make([]sector, 2))
	add("REJECT", []byte{0})
	add("BLOCKMAP", []byte{})
	if hexen {
		add("BEHAVIOR", []byte{})
	}
}

func parseWad(t *testing.T, w *Writer) *File {
	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	f, err := Parse(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return f
}

func requireRoom(t *testing.T, level *Level) {
	tree := level.Tree
	require.Equal(t, 1, tree.NodeCount())
	require.Equal(t, 2, tree.LeafCount())
	require.Equal(t, 8, tree.SegmentCount())
	require.Equal(t, 2, level.SectorCount)

	require.Equal(t, bsp.LeafID(0), tree.Locate(bsp.Point{X: 32, Y: 32}))
	require.Equal(t, bsp.LeafID(1), tree.Locate(bsp.Point{X: 96, Y: 32}))
	// on the partition line: Doom's back side
	require.Equal(t, bsp.LeafID(0), tree.Locate(bsp.Point{X: 64, Y: 32}))

	root, ok := tree.Node(0)
	require.True(t, ok)
	require.Equal(t, bsp.Box{Max: bsp.Point{X: 64, Y: 64}}, root.Boxes[0])
	require.Equal(t, bsp.Box{Min: bsp.Point{X: 64}, Max: bsp.Point{X: 128, Y: 64}}, root.Boxes[1])

	west := tree.LeafSegments(0)
	require.Len(t, west, 4)
	require.True(t, west[0].OneSided())
	require.Equal(t, uint32(0), west[0].Front)
	// the middle line seen from the west sector
	require.Equal(t, bsp.Point{X: 64, Y: 64}, west[2].Start)
	require.Equal(t, bsp.Point{X: 64, Y: 0}, west[2].End)
	require.Equal(t, uint32(6), west[2].Line)
	require.Equal(t, uint32(0), west[2].Front)
	require.Equal(t, uint32(1), west[2].Back)

	east := tree.LeafSegments(1)
	require.Len(t, east, 4)
	require.Equal(t, uint32(1), east[3].Front)
	require.Equal(t, uint32(0), east[3].Back)
	require.False(t, east[3].OneSided())
	require.Equal(t, bsp.Point{X: 64, Y: 64}, east[0].Start)
}

func TestLoadLevel(t *testing.T) {
	tests := []struct {
		name   string
		format NodesFormat
		hexen  bool
	}{
		{name: "vanilla", format: NodesVanilla},
		{name: "deep", format: NodesDeep},
		{name: "zdoom", format: NodesZdoom},
		{name: "zdoom compressed", format: NodesZdoomCompressed},
		{name: "hexen", format: NodesVanilla, hexen: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := NewWriter(PWAD)
			roomLevel().writeLevel(t, w, "MAP01", test.format, test.hexen)
			f := parseWad(t, w)

			level, err := f.LoadLevel("MAP01")
			require.NoError(t, err)
			require.Equal(t, "MAP01", level.Name)
			require.Equal(t, test.format, level.Nodes)
			require.Equal(t, test.hexen, level.Hexen)
			requireRoom(t, level)
		})
	}
}

func TestLoadLevelPicksTheRightLevel(t *testing.T) {
	w := NewWriter(IWAD)
	require.NoError(t, w.AddLump("PLAYPAL", make([]byte, 768)))
	single := roomLevel()
	single.segs = single.segs[:4]
	single.subsectors = single.subsectors[:1]
	single.nodes = nil
	single.writeLevel(t, w, "E1M1", NodesVanilla, false)
	roomLevel().writeLevel(t, w, "E1M2", NodesVanilla, false)
	require.NoError(t, w.AddLump("ENDOOM", make([]byte, 4000)))

	f := parseWad(t, w)
	require.Equal(t, IWAD, f.Kind)
	require.Equal(t, []string{"E1M1", "E1M2"}, f.Levels())

	level, err := f.LoadLevel("E1M1")
	require.NoError(t, err)
	require.Equal(t, 1, level.Tree.LeafCount())
	require.Equal(t, bsp.LeafRef(0), level.Tree.Root())
	require.Equal(t, bsp.LeafID(0), level.Tree.Locate(bsp.Point{X: 10, Y: 10}))

	level, err = f.LoadLevel("E1M2")
	require.NoError(t, err)
	requireRoom(t, level)

	_, err = f.LoadLevel("E1M3")
	require.True(t, errors.IsType(err, ErrTypeNoSuchLevel))
	_, err = f.LoadLevel("PLAYPAL")
	require.True(t, errors.IsType(err, ErrTypeNoSuchLevel))
}

func TestLoadLevelErrors(t *testing.T) {
	t.Run("missing nodes", func(t *testing.T) {
		w := NewWriter(PWAD)
		roomLevel().writeLevel(t, w, "MAP01", NodesVanilla, false, "NODES")
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeMissingLump))
	})

	t.Run("missing segs", func(t *testing.T) {
		w := NewWriter(PWAD)
		roomLevel().writeLevel(t, w, "MAP01", NodesDeep, false, "SEGS")
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeMissingLump))
	})

	t.Run("lumps of the next level do not count", func(t *testing.T) {
		w := NewWriter(PWAD)
		roomLevel().writeLevel(t, w, "MAP01", NodesVanilla, false, "VERTEXES")
		roomLevel().writeLevel(t, w, "MAP02", NodesVanilla, false)
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeMissingLump))
	})

	t.Run("odd lump size", func(t *testing.T) {
		w := NewWriter(PWAD)
		roomLevel().writeLevel(t, w, "MAP01", NodesVanilla, false, "SEGS")
		require.NoError(t, w.AddLump("SEGS", make([]byte, 13)))
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeBadLump))
	})

	t.Run("seg linedef out of range", func(t *testing.T) {
		lvl := roomLevel()
		lvl.segs[3].Linedef = 40
		w := NewWriter(PWAD)
		lvl.writeLevel(t, w, "MAP01", NodesVanilla, false)
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeBadLump))
	})

	t.Run("seg vertex out of range", func(t *testing.T) {
		lvl := roomLevel()
		lvl.segs[0].EndVertex = 99
		w := NewWriter(PWAD)
		lvl.writeLevel(t, w, "MAP01", NodesDeep, false)
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeBadLump))
	})

	t.Run("sidedef out of range", func(t *testing.T) {
		lvl := roomLevel()
		lvl.lines[6].BackSdef = 30
		w := NewWriter(PWAD)
		lvl.writeLevel(t, w, "MAP01", NodesVanilla, false)
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeBadLump))
	})

	t.Run("malformed tree", func(t *testing.T) {
		lvl := roomLevel()
		lvl.nodes[0].RChild = 0 | vanillaLeafFlag
		w := NewWriter(PWAD)
		lvl.writeLevel(t, w, "MAP01", NodesVanilla, false)
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, bsp.ErrTypeMalformedTree))
	})

	t.Run("truncated zdoom nodes", func(t *testing.T) {
		lvl := roomLevel()
		w := NewWriter(PWAD)
		lvl.writeLevel(t, w, "MAP01", NodesZdoom, false, "NODES")
		nodes := lvl.zdoomNodes(t, false)
		require.NoError(t, w.AddLump("NODES", nodes[:len(nodes)-5]))
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeBadLump))
	})

	t.Run("garbage compressed nodes", func(t *testing.T) {
		w := NewWriter(PWAD)
		roomLevel().writeLevel(t, w, "MAP01", NodesZdoom, false, "NODES")
		require.NoError(t, w.AddLump("NODES", append(zdoomCompressedNodesSig[:], 1, 2, 3, 4)))
		_, err := parseWad(t, w).LoadLevel("MAP01")
		require.True(t, errors.IsType(err, ErrTypeBadLump))
	})
}

func TestSegmentOffset(t *testing.T) {
	d := &levelData{
		name:        "MAP01",
		vertices:    []bsp.Point{{X: 0}, {X: 100}, {X: 30}, {X: 70}},
		lines:       []line{{start: 0, end: 1, sides: [2]uint16{0, sidedefNone}}},
		sideSectors: []uint16{3},
	}

	s, err := d.segment(d.vertices, 2, 1, 0, false)
	require.NoError(t, err)
	require.Equal(t, 30.0, s.Offset)
	require.Equal(t, uint32(3), s.Front)
	require.True(t, s.OneSided())

	s, err = d.segment(d.vertices, 3, 0, 0, true)
	require.NoError(t, err)
	require.Equal(t, 30.0, s.Offset)
	require.Equal(t, uint32(bsp.NoRegion), s.Front)
	require.Equal(t, uint32(3), s.Back)
}

func TestOpenAndBuildVisibility(t *testing.T) {
	w := NewWriter(PWAD)
	roomLevel().writeLevel(t, w, "MAP01", NodesVanilla, false)
	path := filepath.Join(t.TempDir(), "room.wad")
	out, err := os.Create(path)
	require.NoError(t, err)
	_, err = w.WriteTo(out)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	level, err := f.LoadLevel("MAP01")
	require.NoError(t, err)

	s, err := pvs.Build(context.Background(), level.Tree)
	require.NoError(t, err)
	require.Equal(t, 4, s.VisibleCount())
}
