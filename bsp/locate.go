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
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// Locate returns the leaf containing p. Returns NoLeaf only when the tree is
// malformed, which gets logged
func (t *Tree) Locate(p Point) LeafID {
	ref := t.root
	// A valid tree is never deeper than its node count. Anything beyond that
	// means there is a cycle
	for steps := 0; steps <= len(t.nodes); steps++ {
		idx := ref.Index()
		if ref.IsLeaf() {
			if idx >= len(t.leaves) {
				logAnomaly("leaf reference out of range", ref)
				return NoLeaf
			}
			return LeafID(idx)
		}
		if idx >= len(t.nodes) {
			logAnomaly("node reference out of range", ref)
			return NoLeaf
		}
		node := &t.nodes[idx]
		ref = node.Children[node.Side(p)]
	}
	logAnomaly("descent did not terminate", ref)
	return NoLeaf
}

// PointOnSide returns the side of node idx that p lies on, or -1 if idx does
// not name a node
func (t *Tree) PointOnSide(idx int, p Point) int {
	node, ok := t.Node(idx)
	if !ok {
		return -1
	}
	return node.Side(p)
}

func logAnomaly(msg string, ref ChildRef) {
	logs.WithTag("ref", ref.String()).
		Warn(errors.New(msg).WithType(ErrTypeMalformedTree))
}
