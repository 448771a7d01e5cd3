package geo

import (
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Recorded fixes are stored as EPSG:3857 points in WKB form so the recorder
// stays backend-agnostic: SQLite has no spatial types and reads the bytes
// back verbatim.

// Point3857From4326 projects a WGS84 longitude/latitude pair into EPSG:3857
// and returns the resulting point with the elevation carried in Z.
func Point3857From4326(longitude, latitude, elevation float64) geom.Point {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	pt, err := geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Z:    elevation,
			Type: geom.DimXYZ,
		},
	)
	if err != nil {
		// Construction only fails on non-finite coordinates; an empty point
		// keeps downstream WKB encoding valid.
		return geom.Point{}
	}
	return pt
}

// WKB3857From4326 is Point3857From4326 rendered to well-known binary.
func WKB3857From4326(longitude, latitude, elevation float64) []byte {
	return Point3857From4326(longitude, latitude, elevation).AsBinary()
}
