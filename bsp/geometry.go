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

import "math"

// Point is a position in map space
type Point struct {
	X, Y float64
}

// Vector is a direction in map space. Partition directions are not required
// to be normalized, node builders store them as delta between two vertices
type Vector struct {
	X, Y float64
}

func (p Point) Sub(o Point) Vector {
	return Vector{X: p.X - o.X, Y: p.Y - o.Y}
}

func (p Point) Add(v Vector) Point {
	return Point{X: p.X + v.X, Y: p.Y + v.Y}
}

func (v Vector) Scale(f float64) Vector {
	return Vector{X: v.X * f, Y: v.Y * f}
}

func (v Vector) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Perp returns v rotated by 90 degrees counter-clockwise
func (v Vector) Perp() Vector {
	return Vector{X: -v.Y, Y: v.X}
}

func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Cross returns the z component of the 3D cross product of (v, 0) and (w, 0)
func Cross(v, w Vector) float64 {
	return v.X*w.Y - v.Y*w.X
}

// Box is an axis-aligned bounding box. Min holds the lowest coordinates on both
// axes and Max the highest, unlike Doom lumps which store top, bottom, left,
// right.
type Box struct {
	Min, Max Point
}

// EmptyBox returns a box which any AddPoint call will overwrite
func EmptyBox() Box {
	return Box{
		Min: Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
}

func (b Box) Empty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y
}

func (b *Box) AddPoint(p Point) {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
}

// Union returns the smallest box containing both b and o
func (b Box) Union(o Box) Box {
	return Box{
		Min: Point{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y)},
		Max: Point{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y)},
	}
}

func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

func (b Box) Center() Point {
	return Point{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}

// Corners returns the four corners of the box, counter-clockwise starting from
// Min
func (b Box) Corners() [4]Point {
	return [4]Point{
		b.Min,
		{X: b.Max.X, Y: b.Min.Y},
		b.Max,
		{X: b.Min.X, Y: b.Max.Y},
	}
}

func (b Box) Width() float64 {
	return b.Max.X - b.Min.X
}

func (b Box) Height() float64 {
	return b.Max.Y - b.Min.Y
}
