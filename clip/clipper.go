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

// Package clip tracks which screen columns are already covered by opaque
// walls while a frame is drawn front to back, and reports the parts of new
// wall spans that are still visible.
package clip

import (
	"math"
	"slices"
)

// Range is a closed interval of screen columns
type Range struct {
	First, Last int
}

// EmitFunc receives a newly visible fragment [first, last] of a span
type EmitFunc func(first, last int)

// Clipper holds the sorted, non-overlapping, non-adjacent list of fully
// opaque column ranges for the current frame. The list always starts with a
// sentinel covering everything left of the screen and ends with one covering
// everything right of it.
// Spans must be fed in front-to-back order. Not safe for concurrent use.
type Clipper struct {
	ranges []Range
	width  int
}

// New returns a clipper for a zero-width screen, call Reset before each frame
func New() *Clipper {
	c := &Clipper{}
	c.Reset(0)
	return c
}

// Reset starts a new frame on a screen width columns wide. Storage from the
// previous frame is reused
func (c *Clipper) Reset(width int) {
	if width < 0 {
		width = 0
	}
	c.width = width
	c.ranges = append(c.ranges[:0],
		Range{First: math.MinInt32, Last: -1},
		Range{First: width, Last: math.MaxInt32},
	)
}

func (c *Clipper) Width() int {
	return c.width
}

// Full reports whether the whole screen is covered, in which case nothing
// else drawn this frame can be visible
func (c *Clipper) Full() bool {
	return len(c.ranges) == 1
}

// Used returns how many ranges (sentinels included) are stored
func (c *Clipper) Used() int {
	return len(c.ranges)
}

// Ranges returns a copy of the stored ranges, sentinels included
func (c *Clipper) Ranges() []Range {
	return slices.Clone(c.ranges)
}

func (c *Clipper) clamp(first, last int) (int, int, bool) {
	first = max(first, 0)
	last = min(last, c.width-1)
	return first, last, first <= last
}

// locate returns the first range whose end touches or passes first
func (c *Clipper) locate(first int) int {
	start := 0
	for c.ranges[start].Last < first-1 {
		start++
	}
	return start
}

// ClipOccluding clips the opaque span [first, last] against what is already
// covered, calls emit for every visible fragment in left to right order, and
// then marks the whole span as covered
func (c *Clipper) ClipOccluding(first, last int, emit EmitFunc) {
	first, last, ok := c.clamp(first, last)
	if !ok {
		return
	}

	r := c.ranges
	start := c.locate(first)

	if first < r[start].First {
		if last < r[start].First-1 {
			// Span is entirely visible and does not touch anything, so it
			// gets its own range
			emit(first, last)
			c.ranges = slices.Insert(c.ranges, start, Range{First: first, Last: last})
			return
		}
		// Leading fragment is visible, the range grows to absorb it
		emit(first, r[start].First-1)
		r[start].First = first
	}

	if last <= r[start].Last {
		return
	}

	next := start
	for last >= r[next+1].First-1 {
		// Gap between next and the range after it
		emit(r[next].Last+1, r[next+1].First-1)
		next++
		if last <= r[next].Last {
			// Span ends inside next, start swallows everything up to its end
			r[start].Last = r[next].Last
			c.crunch(start, next)
			return
		}
	}

	emit(r[next].Last+1, last)
	r[start].Last = last
	c.crunch(start, next)
}

// crunch removes ranges start+1..next which got merged into start
func (c *Clipper) crunch(start, next int) {
	if next == start {
		return
	}
	c.ranges = slices.Delete(c.ranges, start+1, next+1)
}

// ClipTransparent reports the visible fragments of [first, last] like
// ClipOccluding does, but leaves the coverage untouched. Used for spans that
// can be seen through, such as windows and masked midtextures
func (c *Clipper) ClipTransparent(first, last int, emit EmitFunc) {
	first, last, ok := c.clamp(first, last)
	if !ok {
		return
	}

	r := c.ranges
	start := c.locate(first)

	if first < r[start].First {
		if last < r[start].First-1 {
			emit(first, last)
			return
		}
		emit(first, r[start].First-1)
	}

	if last <= r[start].Last {
		return
	}

	for last >= r[start+1].First-1 {
		emit(r[start].Last+1, r[start+1].First-1)
		start++
		if last <= r[start].Last {
			return
		}
	}

	emit(r[start].Last+1, last)
}
