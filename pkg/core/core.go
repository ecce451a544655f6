// pkg/core/core.go
package core

import "github.com/lapline/lapline/pkg/geometry"

// Position3D is the venue-coordinate point type shared with the geometry
// kernel.
type Position3D = geometry.Position3D

// Position2D is a planar point used for track outlines.
type Position2D struct {
	X float64
	Y float64
}

// Polyline is an ordered sequence of planar points.
type Polyline []Position2D
