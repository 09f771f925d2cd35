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

// Package bsptest builds small hand-made trees for tests.
package bsptest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vigilantdoomer/vigilantvis/bsp"
)

// Open is used as back region for two-sided segments. The tests never care
// which region is behind them
const Open = 0

// Level accumulates leaves and nodes bottom-up, the way node builders emit
// them: children first, root last
type Level struct {
	Nodes  []bsp.Node
	Leaves []bsp.Leaf
	Segs   []bsp.Segment

	leafBoxes []bsp.Box
	nodeBoxes []bsp.Box
}

// AddLeaf appends a leaf owning segs, bounded by their box
func (l *Level) AddLeaf(segs ...bsp.Segment) bsp.ChildRef {
	box := bsp.EmptyBox()
	for _, s := range segs {
		box.AddPoint(s.Start)
		box.AddPoint(s.End)
	}
	return l.addLeaf(box, segs)
}

func (l *Level) addLeaf(box bsp.Box, segs []bsp.Segment) bsp.ChildRef {
	l.Leaves = append(l.Leaves, bsp.Leaf{
		FirstSeg: uint32(len(l.Segs)),
		SegCount: uint32(len(segs)),
	})
	l.Segs = append(l.Segs, segs...)
	l.leafBoxes = append(l.leafBoxes, box)
	return bsp.LeafRef(len(l.Leaves) - 1)
}

// AddRect appends a leaf made of the four edges of box, plus any extra
// segments. Edges lying on the border of outer are one-sided. The leaf is
// bounded by box even if extra segments stick out of it
func (l *Level) AddRect(box, outer bsp.Box, extra ...bsp.Segment) bsp.ChildRef {
	region := uint32(len(l.Leaves))
	segs := RectSegments(box, outer, region)
	return l.addLeaf(box, append(segs, extra...))
}

// Split appends a node partitioning along origin + t*dir
func (l *Level) Split(origin bsp.Point, dir bsp.Vector, side0, side1 bsp.ChildRef) bsp.ChildRef {
	b0, b1 := l.box(side0), l.box(side1)
	l.Nodes = append(l.Nodes, bsp.Node{
		Origin:   origin,
		Dir:      dir,
		Boxes:    [2]bsp.Box{b0, b1},
		Children: [2]bsp.ChildRef{side0, side1},
	})
	l.nodeBoxes = append(l.nodeBoxes, b0.Union(b1))
	return bsp.NodeRef(len(l.Nodes) - 1)
}

// Vertical splits at x: west is side 0
func (l *Level) Vertical(x float64, west, east bsp.ChildRef) bsp.ChildRef {
	return l.Split(bsp.Point{X: x}, bsp.Vector{Y: 1}, west, east)
}

// Horizontal splits at y: north is side 0
func (l *Level) Horizontal(y float64, north, south bsp.ChildRef) bsp.ChildRef {
	return l.Split(bsp.Point{Y: y}, bsp.Vector{X: 1}, north, south)
}

func (l *Level) box(ref bsp.ChildRef) bsp.Box {
	if ref.IsLeaf() {
		return l.leafBoxes[ref.Index()]
	}
	return l.nodeBoxes[ref.Index()]
}

// Tree validates and returns the tree
func (l *Level) Tree(t testing.TB) *bsp.Tree {
	tree, err := bsp.NewTree(l.Nodes, l.Leaves, l.Segs)
	require.NoError(t, err)
	return tree
}

func Box(x0, y0, x1, y1 float64) bsp.Box {
	return bsp.Box{Min: bsp.Point{X: x0, Y: y0}, Max: bsp.Point{X: x1, Y: y1}}
}

func Seg(x0, y0, x1, y1 float64, front, back uint32) bsp.Segment {
	return bsp.Segment{
		Start: bsp.Point{X: x0, Y: y0},
		End:   bsp.Point{X: x1, Y: y1},
		Front: front,
		Back:  back,
	}
}

// RectSegments returns the edges of box running clockwise
func RectSegments(box, outer bsp.Box, region uint32) []bsp.Segment {
	c := box.Corners()
	segs := make([]bsp.Segment, 0, 4)
	for i := 3; i >= 0; i-- {
		a, b := c[(i+1)%4], c[i]
		back := uint32(Open)
		if onBorder(a, b, outer) {
			back = bsp.NoRegion
		}
		segs = append(segs, bsp.Segment{Start: a, End: b, Front: region, Back: back})
	}
	return segs
}

func onBorder(a, b bsp.Point, outer bsp.Box) bool {
	switch {
	case a.X == b.X && (a.X == outer.Min.X || a.X == outer.Max.X):
		return true
	case a.Y == b.Y && (a.Y == outer.Min.Y || a.Y == outer.Max.Y):
		return true
	}
	return false
}

// Quadrants splits a 100x100 square into four leaves. The root partitions
// along x=50 (west is side 0), both children along y=50 (north is side 0).
// Leaves are NW=0, SW=1, NE=2, SE=3.
func Quadrants(t testing.TB) *bsp.Tree {
	var l Level
	outer := Box(0, 0, 100, 100)
	nw := l.AddRect(Box(0, 50, 50, 100), outer)
	sw := l.AddRect(Box(0, 0, 50, 50), outer)
	ne := l.AddRect(Box(50, 50, 100, 100), outer)
	se := l.AddRect(Box(50, 0, 100, 50), outer)
	west := l.Horizontal(50, nw, sw)
	east := l.Horizontal(50, ne, se)
	l.Vertical(50, west, east)
	return l.Tree(t)
}

const (
	QuadNW bsp.LeafID = iota
	QuadSW
	QuadNE
	QuadSE
)

// Door is a 300x100 corridor cut into four leaves by x=100, x=150 and x=200.
// A closed door (one-sided segments flush with the corridor walls) sits on
// x=150, so the outer leaves cannot see each other.
// Leaves are West=0, DoorWest=1, DoorEast=2, East=3.
func Door(t testing.TB) *bsp.Tree {
	var l Level
	outer := Box(0, 0, 300, 100)
	w := l.AddRect(Box(0, 0, 100, 100), outer)
	dw := l.AddRect(Box(100, 0, 150, 100), outer,
		Seg(150, 0, 150, 100, 1, bsp.NoRegion))
	de := l.AddRect(Box(150, 0, 200, 100), outer,
		Seg(150, 100, 150, 0, 2, bsp.NoRegion))
	e := l.AddRect(Box(200, 0, 300, 100), outer)
	west := l.Vertical(100, w, dw)
	east := l.Vertical(200, de, e)
	l.Vertical(150, west, east)
	return l.Tree(t)
}

const (
	DoorWestRoom bsp.LeafID = iota
	DoorWestSide
	DoorEastSide
	DoorEastRoom
)

// Single is a level made of one leaf and no nodes
func Single(t testing.TB) *bsp.Tree {
	var l Level
	outer := Box(0, 0, 64, 64)
	l.AddRect(outer, outer)
	return l.Tree(t)
}

// Grid is a cols x rows grid of square leaves of the given size, split
// alternately along the longer axis. Only the outer border is solid.
func Grid(t testing.TB, cols, rows int, size float64) *bsp.Tree {
	var l Level
	outer := Box(0, 0, float64(cols)*size, float64(rows)*size)
	l.grid(outer, size, 0, 0, cols, rows)
	return l.Tree(t)
}

func (l *Level) grid(outer bsp.Box, size float64, x0, y0, x1, y1 int) bsp.ChildRef {
	if x1-x0 == 1 && y1-y0 == 1 {
		return l.AddRect(Box(float64(x0)*size, float64(y0)*size,
			float64(x1)*size, float64(y1)*size), outer)
	}
	if x1-x0 >= y1-y0 {
		mid := (x0 + x1) / 2
		west := l.grid(outer, size, x0, y0, mid, y1)
		east := l.grid(outer, size, mid, y0, x1, y1)
		return l.Vertical(float64(mid)*size, west, east)
	}
	mid := (y0 + y1) / 2
	south := l.grid(outer, size, x0, y0, x1, mid)
	north := l.grid(outer, size, x0, mid, x1, y1)
	return l.Horizontal(float64(mid)*size, north, south)
}
