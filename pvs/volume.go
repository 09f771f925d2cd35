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
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/vigilantdoomer/vigilantvis/bsp"
)

func vec(p bsp.Point) mgl64.Vec2 {
	return mgl64.Vec2{p.X, p.Y}
}

func cross(a, b mgl64.Vec2) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

// volume is the convex quad swept from the source box center to the target
// box center. Each end is as wide as its box seen along the direction of
// travel. Corners run counter-clockwise.
type volume struct {
	corners [4]mgl64.Vec2
}

func newVolume(src, dst bsp.Box) volume {
	a := vec(src.Center())
	b := vec(dst.Center())
	dir := b.Sub(a)
	if dir.Len() == 0 {
		dir = mgl64.Vec2{1, 0}
	} else {
		dir = dir.Normalize()
	}
	perp := mgl64.Vec2{-dir[1], dir[0]}
	hwA := halfWidth(src, perp)
	hwB := halfWidth(dst, perp)
	return volume{corners: [4]mgl64.Vec2{
		a.Sub(perp.Mul(hwA)),
		b.Sub(perp.Mul(hwB)),
		b.Add(perp.Mul(hwB)),
		a.Add(perp.Mul(hwA)),
	}}
}

// halfWidth projects the box's half extents onto axis
func halfWidth(box bsp.Box, axis mgl64.Vec2) float64 {
	return math.Abs(axis[0])*box.Width()/2 + math.Abs(axis[1])*box.Height()/2
}

// contains is inclusive: points on the boundary are inside
func (v *volume) contains(p mgl64.Vec2) bool {
	for i := 0; i < 4; i++ {
		e := v.corners[(i+1)%4].Sub(v.corners[i])
		if cross(e, p.Sub(v.corners[i])) < 0 {
			return false
		}
	}
	return true
}

// intersects tests the volume against an axis-aligned box. Cheap corner
// containment first, separating axis theorem when that is inconclusive
func (v *volume) intersects(box bsp.Box) bool {
	for _, c := range box.Corners() {
		if v.contains(vec(c)) {
			return true
		}
	}
	for _, c := range v.corners {
		if box.Contains(bsp.Point{X: c[0], Y: c[1]}) {
			return true
		}
	}
	return !v.separated(box)
}

func (v *volume) separated(box bsp.Box) bool {
	bc := box.Corners()
	var boxCorners [4]mgl64.Vec2
	for i := range bc {
		boxCorners[i] = vec(bc[i])
	}

	axes := [6]mgl64.Vec2{{1, 0}, {0, 1}}
	for i := 0; i < 4; i++ {
		e := v.corners[(i+1)%4].Sub(v.corners[i])
		axes[2+i] = mgl64.Vec2{-e[1], e[0]}
	}
	for _, axis := range axes {
		if axis.Len() == 0 {
			continue
		}
		qMin, qMax := project(v.corners[:], axis)
		bMin, bMax := project(boxCorners[:], axis)
		if qMax < bMin || bMax < qMin {
			return true
		}
	}
	return false
}

func project(points []mgl64.Vec2, axis mgl64.Vec2) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		d := p.Dot(axis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

// blocker is a one-sided segment, nothing can be seen through it
type blocker struct {
	a, b mgl64.Vec2
}

// crosses reports whether ray p1-p2 meets the blocker anywhere between its
// own endpoints. Touching a blocker endpoint counts, so a ray cannot slip
// through the joint of two walls. A ray that runs along the blocker or only
// meets it at p1 or p2 is not blocked
func (bl *blocker) crosses(p1, p2 mgl64.Vec2) bool {
	// Rotate & translate using p1->p2 as the +X-axis
	d := p2.Sub(p1)
	y1 := cross(d, bl.a.Sub(p1))
	y2 := cross(d, bl.b.Sub(p1))
	if y1 == 0 && y2 == 0 {
		return false
	}
	if (y1 > 0 && y2 > 0) || (y1 < 0 && y2 < 0) {
		return false
	}
	// Now using the blocker as the +X-axis
	d = bl.b.Sub(bl.a)
	z1 := cross(d, p1.Sub(bl.a))
	z2 := cross(d, p2.Sub(bl.a))
	if z1 == 0 || z2 == 0 {
		return false
	}
	return (z1 > 0) != (z2 > 0)
}
