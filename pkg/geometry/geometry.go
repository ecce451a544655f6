// Package geometry provides the axis-aligned volume math used by the
// crossing detector. Everything here is pure computation over value types
// and is safe for concurrent use.
package geometry

import "math"

// Epsilon is the threshold below which an axis direction component is
// treated as zero when clipping a segment against a slab.
const Epsilon = 1e-9

// Position3D is a point in venue coordinates.
type Position3D struct {
	X float64 `json:"x"` // easting
	Y float64 `json:"y"` // northing
	Z float64 `json:"z"` // elevation
}

// Box3 is an axis-aligned volume. Min and Max are normalized at
// construction; code receiving a Box3 may assume Min <= Max on every axis.
type Box3 struct {
	Min Position3D `json:"min"`
	Max Position3D `json:"max"`
}

// NewBox3 builds a box from two opposite corners. Components are swapped
// where the caller supplied them inverted.
func NewBox3(a, b Position3D) Box3 {
	return Box3{
		Min: Position3D{
			X: math.Min(a.X, b.X),
			Y: math.Min(a.Y, b.Y),
			Z: math.Min(a.Z, b.Z),
		},
		Max: Position3D{
			X: math.Max(a.X, b.X),
			Y: math.Max(a.Y, b.Y),
			Z: math.Max(a.Z, b.Z),
		},
	}
}

// ContainsPoint reports whether p lies inside the closed box. A point
// exactly on a face counts as inside.
func (b Box3) ContainsPoint(p Position3D) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Center returns the midpoint of the box.
func (b Box3) Center() Position3D {
	return Position3D{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// SegmentIntersectsBox reports whether the closed segment p1->p2 shares at
// least one point with the closed box. Uses the slab method: each axis
// contributes a parametric entry/exit range which is intersected with the
// running [0,1] window. When the segment is flat on an axis (direction
// within Epsilon of zero) the slab test degenerates to a containment check
// of p1's coordinate on that axis.
//
// A degenerate segment (p1 == p2) is a point-in-box test.
func SegmentIntersectsBox(p1, p2 Position3D, box Box3) bool {
	if p1 == p2 {
		return box.ContainsPoint(p1)
	}

	origin := [3]float64{p1.X, p1.Y, p1.Z}
	delta := [3]float64{p2.X - p1.X, p2.Y - p1.Y, p2.Z - p1.Z}
	lo := [3]float64{box.Min.X, box.Min.Y, box.Min.Z}
	hi := [3]float64{box.Max.X, box.Max.Y, box.Max.Z}

	tEnter, tExit := 0.0, 1.0
	for axis := 0; axis < 3; axis++ {
		o, d := origin[axis], delta[axis]
		if math.Abs(d) < Epsilon {
			// Flat on this axis: the whole segment sits at o, so it crosses
			// the slab only if o is already between the faces.
			if o < lo[axis] || o > hi[axis] {
				return false
			}
			continue
		}
		t1 := (lo[axis] - o) / d
		t2 := (hi[axis] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tEnter {
			tEnter = t1
		}
		if t2 < tExit {
			tExit = t2
		}
		if tEnter > tExit {
			return false
		}
	}
	return true
}
