package domain

import (
	"fmt"
	"strconv"
)

// BoundingBox is a geographic bounding box in WGS 84 degrees.
type BoundingBox struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Valid reports whether the box has positive extent on both axes.
func (b BoundingBox) Valid() bool {
	return b.South < b.North && b.West < b.East
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("S=%g N=%g W=%g E=%g", b.South, b.North, b.West, b.East)
}

// ProjectedExtent is a BoundingBox reprojected into a planar reference system.
type ProjectedExtent struct {
	XMin float64 `json:"xmin"`
	XMax float64 `json:"xmax"`
	YMin float64 `json:"ymin"`
	YMax float64 `json:"ymax"`
	SRID int     `json:"srid"`
}

// Width returns the extent along the x axis.
func (e ProjectedExtent) Width() float64 { return e.XMax - e.XMin }

// Height returns the extent along the y axis.
func (e ProjectedExtent) Height() float64 { return e.YMax - e.YMin }

// TileBounds is one cell of the download grid, in projected units.
// Its four coordinates are its identity.
type TileBounds struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

// Key returns the canonical identity string minx_maxx_miny_maxy.
func (t TileBounds) Key() string {
	return formatCoord(t.MinX) + "_" + formatCoord(t.MaxX) + "_" +
		formatCoord(t.MinY) + "_" + formatCoord(t.MaxY)
}

// FileName returns the name under which the tile's raw response is stored.
func (t TileBounds) FileName() string {
	return t.Key() + ".json"
}

// formatCoord renders a coordinate with the shortest representation that
// round-trips, so the same bounds always produce the same file name.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
