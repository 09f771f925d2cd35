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

// Package pvs computes, stores and caches the potentially visible set of a
// level: which leaves can see which.
package pvs

import (
	"bytes"
	"math/bits"

	"github.com/vigilantdoomer/vigilantvis/bsp"
)

// Set is a square leafCount x leafCount bit matrix packed 8 entries per byte,
// entry i*leafCount+j lives in bit (i*leafCount+j)&7 of byte
// (i*leafCount+j)>>3. A set bit means the pair is blocked, the same way
// REJECT works, so a zeroed Set says everything is visible.
type Set struct {
	leafCount int
	bits      []byte
}

// New returns a set of the given size where every pair is visible
func New(leafCount int) *Set {
	if leafCount < 0 {
		leafCount = 0
	}
	return &Set{
		leafCount: leafCount,
		bits:      make([]byte, PayloadSize(leafCount)),
	}
}

// PayloadSize returns how many bytes a set over leafCount leaves occupies
func PayloadSize(leafCount int) int {
	return (leafCount*leafCount + 7) / 8
}

func (s *Set) LeafCount() int {
	return s.leafCount
}

// Bytes returns the packed matrix. Must not be modified
func (s *Set) Bytes() []byte {
	return s.bits
}

func (s *Set) inRange(a, b bsp.LeafID) bool {
	return int64(a) < int64(s.leafCount) && int64(b) < int64(s.leafCount)
}

// IsVisible reports whether leaf a can see leaf b. Pairs referring to leaves
// this set does not know about are visible: drawing too much beats drawing
// holes
func (s *Set) IsVisible(a, b bsp.LeafID) bool {
	if !s.inRange(a, b) {
		return true
	}
	idx := int(a)*s.leafCount + int(b)
	return s.bits[idx>>3]&(1<<(idx&7)) == 0
}

// SetVisible writes both (a, b) and (b, a). A leaf always sees itself, so
// hiding (a, a) is ignored, as are out of range pairs
func (s *Set) SetVisible(a, b bsp.LeafID, visible bool) {
	if !s.inRange(a, b) || (a == b && !visible) {
		return
	}
	s.set(int(a)*s.leafCount+int(b), visible)
	s.set(int(b)*s.leafCount+int(a), visible)
}

func (s *Set) set(idx int, visible bool) {
	if visible {
		s.bits[idx>>3] &^= 1 << (idx & 7)
	} else {
		s.bits[idx>>3] |= 1 << (idx & 7)
	}
}

// VisibleCount returns the number of visible ordered pairs, self pairs
// included
func (s *Set) VisibleCount() int {
	blocked := 0
	for _, b := range s.bits {
		blocked += bits.OnesCount8(b)
	}
	return s.leafCount*s.leafCount - blocked
}

// Visible returns the leaves that a can see, in increasing order
func (s *Set) Visible(a bsp.LeafID) []bsp.LeafID {
	if int64(a) >= int64(s.leafCount) {
		return nil
	}
	var res []bsp.LeafID
	for b := 0; b < s.leafCount; b++ {
		if s.IsVisible(a, bsp.LeafID(b)) {
			res = append(res, bsp.LeafID(b))
		}
	}
	return res
}

func (s *Set) Equal(o *Set) bool {
	return s.leafCount == o.leafCount && bytes.Equal(s.bits, o.bits)
}
