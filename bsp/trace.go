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
package bsp

import (
	"github.com/gammazero/deque"
)

// MinTraceRadius is the radius at and below which a line trace is treated as
// having no width
const MinTraceRadius = 0.01

// Trace collects the leaves a line, capsule or circle passes through. A Trace
// can (and should) be reused between queries against the same tree, the
// bookkeeping arrays are only allocated once. Not safe for concurrent use.
type Trace struct {
	tree *Tree
	hits []LeafID

	// marks[leaf] == gen means leaf is already in hits for current query
	marks []uint32
	gen   uint32

	stack deque.Deque[ChildRef]

	// line mode: core line, then the capsule edges (extended by radius at
	// both ends). left/right are [origin, end] pairs
	origin, end Point
	left, right [2]Point
	wide        bool

	// radius mode
	center Point
	radius float64
}

func NewTrace(tree *Tree) *Trace {
	return &Trace{
		tree:  tree,
		marks: make([]uint32, tree.LeafCount()),
	}
}

// TraceLine is a shortcut for NewTrace(t).Line(origin, end, radius)
func (t *Tree) TraceLine(origin, end Point, radius float64) *Trace {
	return NewTrace(t).Line(origin, end, radius)
}

// TraceRadius is a shortcut for NewTrace(t).Radius(center, radius)
func (t *Tree) TraceRadius(center Point, radius float64) *Trace {
	return NewTrace(t).Radius(center, radius)
}

// InterceptedLeaves returns the leaves hit by the last query, each one once.
// For line queries they come ordered from the origin towards the end. The
// slice is reused by the next query on this Trace.
func (tr *Trace) InterceptedLeaves() []LeafID {
	return tr.hits
}

func (tr *Trace) reset() {
	tr.hits = tr.hits[:0]
	tr.stack.Clear()
	tr.gen++
	if tr.gen == 0 {
		// wrapped around, stale marks could now match
		clear(tr.marks)
		tr.gen = 1
	}
}

// Line traces the segment origin -> end, inflated into a capsule when radius
// is above MinTraceRadius
func (tr *Trace) Line(origin, end Point, radius float64) *Trace {
	tr.reset()
	d := end.Sub(origin)
	if d.IsZero() {
		if radius > MinTraceRadius {
			tr.center = origin
			tr.radius = radius
			tr.traverseRadius()
			return tr
		}
		if leaf := tr.tree.Locate(origin); leaf != NoLeaf {
			tr.visit(LeafRef(int(leaf)))
		}
		return tr
	}

	tr.origin = origin
	tr.end = end
	tr.wide = radius > MinTraceRadius
	if tr.wide {
		unit := d.Scale(1 / d.Len())
		n := unit.Perp().Scale(radius)
		o := origin.Add(unit.Scale(-radius))
		e := end.Add(unit.Scale(radius))
		tr.left = [2]Point{o.Add(n), e.Add(n)}
		tr.right = [2]Point{o.Add(n.Scale(-1)), e.Add(n.Scale(-1))}
	}
	tr.traverseLine()
	return tr
}

// Radius collects every leaf on whose side of the ancestors' partition lines
// the circle may reach. Distance is measured to the whole partition line,
// not to the part of it inside the node's box, so a circle near the line's
// extension beyond the node still visits both children. Where both sides are
// visited the center's side comes first.
func (tr *Trace) Radius(center Point, radius float64) *Trace {
	tr.reset()
	tr.center = center
	tr.radius = radius
	tr.traverseRadius()
	return tr
}

func (tr *Trace) traverseLine() {
	tree := tr.tree
	tr.stack.PushBack(tree.root)
	for budget := len(tree.nodes) + len(tree.leaves); tr.stack.Len() > 0; budget-- {
		if budget < 0 {
			logAnomaly("trace did not terminate", tree.root)
			tr.stack.Clear()
			return
		}
		ref := tr.stack.PopBack()
		if ref.IsLeaf() {
			tr.visit(ref)
			continue
		}
		node, ok := tree.Node(ref.Index())
		if !ok {
			logAnomaly("node reference out of range", ref)
			continue
		}

		so := node.Side(tr.origin)
		se := node.Side(tr.end)
		if so != se {
			tr.pushOrdered(node, so)
			continue
		}
		if tr.wide {
			if tr.pushEdge(node, tr.left, so) || tr.pushEdge(node, tr.right, so) {
				continue
			}
		}
		tr.stack.PushBack(node.Children[so])
	}
}

// pushEdge handles a capsule edge for a node which the core line does not
// cross. If the edge crosses the partition, or lies entirely across it, both
// sides are scheduled with the core line's side first. Returns false if the
// edge stays on the core line's side
func (tr *Trace) pushEdge(node *Node, edge [2]Point, core int) bool {
	s0 := node.Side(edge[0])
	s1 := node.Side(edge[1])
	if s0 == core && s1 == core {
		return false
	}
	tr.pushOrdered(node, core)
	return true
}

// pushOrdered schedules both children so that side first is visited (with
// its entire subtree) before the other one
func (tr *Trace) pushOrdered(node *Node, first int) {
	tr.stack.PushBack(node.Children[first^1])
	tr.stack.PushBack(node.Children[first])
}

func (tr *Trace) traverseRadius() {
	tree := tr.tree
	tr.stack.PushBack(tree.root)
	for budget := len(tree.nodes) + len(tree.leaves); tr.stack.Len() > 0; budget-- {
		if budget < 0 {
			logAnomaly("trace did not terminate", tree.root)
			tr.stack.Clear()
			return
		}
		ref := tr.stack.PopBack()
		if ref.IsLeaf() {
			tr.visit(ref)
			continue
		}
		node, ok := tree.Node(ref.Index())
		if !ok {
			logAnomaly("node reference out of range", ref)
			continue
		}
		side := node.Side(tr.center)
		if node.Distance(tr.center) <= tr.radius {
			tr.pushOrdered(node, side)
		} else {
			tr.stack.PushBack(node.Children[side])
		}
	}
}

func (tr *Trace) visit(ref ChildRef) {
	idx := ref.Index()
	if idx >= len(tr.marks) {
		logAnomaly("leaf reference out of range", ref)
		return
	}
	if tr.marks[idx] == tr.gen {
		return
	}
	tr.marks[idx] = tr.gen
	tr.hits = append(tr.hits, LeafID(idx))
}
