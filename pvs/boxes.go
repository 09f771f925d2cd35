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
	"github.com/vigilantdoomer/vigilantvis/bsp"
)

// LeafBoxes returns the box of every leaf as stored by its parent node,
// repaired against the sibling's box (see RepairBox)
func LeafBoxes(tree *bsp.Tree) []bsp.Box {
	n := tree.LeafCount()
	boxes := make([]bsp.Box, n)
	if tree.NodeCount() == 0 {
		if n > 0 {
			boxes[0] = tree.Bounds()
		}
		return boxes
	}
	for i := 0; i < tree.NodeCount(); i++ {
		node, _ := tree.Node(i)
		for side := 0; side < 2; side++ {
			child := node.Children[side]
			if !child.IsLeaf() || child.Index() >= n {
				continue
			}
			boxes[child.Index()] = RepairBox(node.Boxes[side], node.Boxes[side^1])
		}
	}
	return boxes
}

// RepairBox widens own so it leaves no gap against sibling. Node boxes only
// bound a leaf's own segments, and the space between that and the sibling
// still belongs to one of them. Per axis:
//   - own strictly inside the combined box at both ends: take the combined
//     extent
//   - otherwise a gap between own and sibling is closed from own's side
func RepairBox(own, sibling bsp.Box) bsp.Box {
	combined := own.Union(sibling)
	own.Min.X, own.Max.X = repairAxis(own.Min.X, own.Max.X,
		sibling.Min.X, sibling.Max.X, combined.Min.X, combined.Max.X)
	own.Min.Y, own.Max.Y = repairAxis(own.Min.Y, own.Max.Y,
		sibling.Min.Y, sibling.Max.Y, combined.Min.Y, combined.Max.Y)
	return own
}

func repairAxis(lo, hi, sibLo, sibHi, allLo, allHi float64) (float64, float64) {
	if lo > allLo && hi < allHi {
		return allLo, allHi
	}
	if hi < sibLo {
		hi = sibLo
	}
	if lo > sibHi {
		lo = sibHi
	}
	return lo, hi
}
