package geo

import (
	"errors"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/lapline/lapline/pkg/core"
)

// GEO POINTS
// Venue locations are always stored as 3857, because SQLite has no spatial awareness and we
// need to be able to interpret point data from strings during migrations using inherent Scan function.
// Entity positions stay in venue-local meters and are stored as XYZ points in the WKB format,
// which is a binary representation of the geometry data.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Position3DFromString parses an "x,y" or "x,y,z" string into a core.Position3D.
func Position3DFromString(coords string) (core.Position3D, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(coordsSplit[0], 64)
	if err != nil {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(coordsSplit[1], 64)
	if err != nil {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	var z float64
	if len(coordsSplit) > 2 {
		z, err = strconv.ParseFloat(coordsSplit[2], 64)
		if err != nil {
			return core.Position3D{}, ErrInvalidCoordinates
		}
	}
	return core.Position3D{X: x, Y: y, Z: z}, nil
}

// PointFromPosition3D converts a venue-local position into an XYZ point for database rows.
func PointFromPosition3D(p core.Position3D) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.X, Y: p.Y},
			Z:    p.Z,
			Type: geom.DimXYZ,
		},
	)
}

// Position3DFromPoint converts a stored XYZ point back into a venue-local position.
// Empty points map to the origin.
func Position3DFromPoint(pt geom.Point) core.Position3D {
	coords, ok := pt.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: coords.XY.X, Y: coords.XY.Y, Z: coords.Z}
}

// Coords3857From4326 creates a GPS point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	var x, y float64
	// if provided SRID was 4326, convert to 3857
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(longitude, latitude, 0)
	point = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
			Z:  0,
		},
	)
	return point, nil
}
