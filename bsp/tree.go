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

// Package bsp holds a prebuilt binary space partition of a 2D level and the
// queries run against it: point location and region tracing.
package bsp

import (
	"fmt"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/gammazero/deque"
)

const (
	// ErrTypeMalformedTree is the type of errors reported when node, leaf or
	// segment arrays do not form a valid strict binary tree
	ErrTypeMalformedTree = "bsp-malformed-tree"
)

// LeafFlag marks a child reference as pointing to a leaf (subsector). Same bit
// as the one DeeP / extended nodes use, the vanilla 0x8000 gets widened by the
// loader
const LeafFlag ChildRef = 0x80000000

// NoRegion is stored in Segment.Back for one-sided segments
const NoRegion = math.MaxUint32

// NoLeaf is returned by queries which could not reach a valid leaf
const NoLeaf = LeafID(math.MaxUint32)

// ChildRef references either a node or a leaf, see LeafFlag
type ChildRef uint32

func NodeRef(idx int) ChildRef {
	return ChildRef(idx)
}

func LeafRef(idx int) ChildRef {
	return ChildRef(idx) | LeafFlag
}

func (c ChildRef) IsLeaf() bool {
	return c&LeafFlag != 0
}

// Index strips the leaf flag
func (c ChildRef) Index() int {
	return int(c &^ LeafFlag)
}

func (c ChildRef) String() string {
	if c.IsLeaf() {
		return fmt.Sprintf("leaf %d", c.Index())
	}
	return fmt.Sprintf("node %d", c.Index())
}

// LeafID identifies a leaf (subsector, cell) of the tree
type LeafID uint32

// Node is a partition line. Side 0 is where cross(p - Origin, Dir) <= 0,
// side 1 is the rest. Boxes[i] bounds everything under Children[i].
type Node struct {
	Origin   Point
	Dir      Vector
	Boxes    [2]Box
	Children [2]ChildRef
}

// Side returns which side of the partition line p lies on. Points exactly on
// the line go to side 0
func (n *Node) Side(p Point) int {
	if Cross(p.Sub(n.Origin), n.Dir) <= 0 {
		return 0
	}
	return 1
}

// Distance returns how far p lies from the (infinite) partition line
func (n *Node) Distance(p Point) float64 {
	l := n.Dir.Len()
	if l == 0 {
		return p.Sub(n.Origin).Len()
	}
	return math.Abs(Cross(p.Sub(n.Origin), n.Dir)) / l
}

// Leaf is a view into the segment array: [FirstSeg, FirstSeg+SegCount)
type Leaf struct {
	FirstSeg uint32
	SegCount uint32
}

// Segment is a piece of a line bounding some leaf
type Segment struct {
	Start, End Point
	// Offset along the owning line
	Offset float64
	Line   uint32
	Front  uint32
	// NoRegion for one-sided segments
	Back uint32
}

// OneSided reports whether nothing can be seen (or moved) through this segment
func (s *Segment) OneSided() bool {
	return s.Back == NoRegion
}

// Tree is the read-only arena of nodes, leaves and segments. Root is always
// the last node (or leaf 0 if the level consists of a single subsector).
// Safe for concurrent use by any number of readers.
type Tree struct {
	nodes  []Node
	leaves []Leaf
	segs   []Segment
	root   ChildRef
}

// New wraps the given arrays without validating them. Queries against such a
// tree still bounds-check everything and cull branches that do not make sense
func New(nodes []Node, leaves []Leaf, segs []Segment) *Tree {
	t := &Tree{
		nodes:  nodes,
		leaves: leaves,
		segs:   segs,
	}
	if len(nodes) > 0 {
		t.root = NodeRef(len(nodes) - 1)
	} else {
		t.root = LeafRef(0)
	}
	return t
}

// NewTree wraps the given arrays and validates that they form a strict binary
// tree with every leaf reachable exactly once.
func NewTree(nodes []Node, leaves []Leaf, segs []Segment) (*Tree, error) {
	t := New(nodes, leaves, segs)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) Root() ChildRef {
	return t.root
}

func (t *Tree) NodeCount() int {
	return len(t.nodes)
}

func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

func (t *Tree) SegmentCount() int {
	return len(t.segs)
}

// Node returns the node with the given index. The pointer must not be used to
// modify the tree
func (t *Tree) Node(idx int) (*Node, bool) {
	if idx < 0 || idx >= len(t.nodes) {
		return nil, false
	}
	return &t.nodes[idx], true
}

func (t *Tree) Leaf(id LeafID) (Leaf, bool) {
	if int64(id) >= int64(len(t.leaves)) {
		return Leaf{}, false
	}
	return t.leaves[id], true
}

// LeafSegments returns the segments owned by leaf id, or nil when either the
// id or the leaf's segment range is out of bounds
func (t *Tree) LeafSegments(id LeafID) []Segment {
	leaf, ok := t.Leaf(id)
	if !ok {
		return nil
	}
	first := uint64(leaf.FirstSeg)
	last := first + uint64(leaf.SegCount)
	if last > uint64(len(t.segs)) {
		return nil
	}
	return t.segs[first:last]
}

// Bounds returns the box around the whole level
func (t *Tree) Bounds() Box {
	if len(t.nodes) > 0 {
		root := &t.nodes[len(t.nodes)-1]
		return root.Boxes[0].Union(root.Boxes[1])
	}
	box := EmptyBox()
	for i := range t.segs {
		box.AddPoint(t.segs[i].Start)
		box.AddPoint(t.segs[i].End)
	}
	return box
}

// Validate checks the structural invariants: N leaves need N-1 nodes, every
// reference is in range, every node and leaf is reached from the root exactly
// once, and leaf segment ranges fit into the segment array
func (t *Tree) Validate() error {
	if len(t.leaves) == 0 {
		return errors.New("tree has no leaves").
			WithType(ErrTypeMalformedTree)
	}
	if len(t.nodes) != len(t.leaves)-1 {
		return errors.New("node count does not match leaf count").
			WithType(ErrTypeMalformedTree).
			WithTag("nodes", len(t.nodes)).
			WithTag("leaves", len(t.leaves))
	}

	for i, leaf := range t.leaves {
		if uint64(leaf.FirstSeg)+uint64(leaf.SegCount) > uint64(len(t.segs)) {
			return errors.New("leaf segment range out of bounds").
				WithType(ErrTypeMalformedTree).
				WithTag("leaf", i).
				WithTag("first_seg", leaf.FirstSeg).
				WithTag("seg_count", leaf.SegCount).
				WithTag("segs", len(t.segs))
		}
	}

	seenNodes := make([]bool, len(t.nodes))
	seenLeaves := make([]bool, len(t.leaves))
	var stack deque.Deque[ChildRef]
	stack.PushBack(t.root)
	for stack.Len() > 0 {
		ref := stack.PopBack()
		idx := ref.Index()
		if ref.IsLeaf() {
			if idx >= len(t.leaves) {
				return errors.New("leaf reference out of range").
					WithType(ErrTypeMalformedTree).
					WithTag("ref", ref.String())
			}
			if seenLeaves[idx] {
				return errors.New("leaf referenced more than once").
					WithType(ErrTypeMalformedTree).
					WithTag("leaf", idx)
			}
			seenLeaves[idx] = true
			continue
		}
		if idx >= len(t.nodes) {
			return errors.New("node reference out of range").
				WithType(ErrTypeMalformedTree).
				WithTag("ref", ref.String())
		}
		if seenNodes[idx] {
			return errors.New("node referenced more than once").
				WithType(ErrTypeMalformedTree).
				WithTag("node", idx)
		}
		seenNodes[idx] = true
		stack.PushBack(t.nodes[idx].Children[0])
		stack.PushBack(t.nodes[idx].Children[1])
	}

	// Counts match and nothing was seen twice, so a single orphan would have
	// left some leaf unvisited
	for i, seen := range seenLeaves {
		if !seen {
			return errors.New("leaf not reachable from root").
				WithType(ErrTypeMalformedTree).
				WithTag("leaf", i)
		}
	}
	return nil
}
