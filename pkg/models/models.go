// Package models holds the value types shared by the tiler, the host item
// model and the region index.
package models

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Geographic limits of the tiled world
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// ItemID is the stable identifier of an item in the host model.
// Rows may move, ids never change for the lifetime of an item.
type ItemID int64

// GeoCoordinates is an immutable geographic position with an optional altitude
type GeoCoordinates struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Alt    float64 `json:"alt,omitempty"`
	HasAlt bool    `json:"has_alt,omitempty"`
}

// NewGeoCoordinates returns a position without altitude
func NewGeoCoordinates(lat, lon float64) GeoCoordinates {
	return GeoCoordinates{Lat: lat, Lon: lon}
}

// WithAlt returns a copy of c carrying the given altitude
func (c GeoCoordinates) WithAlt(alt float64) GeoCoordinates {
	c.Alt = alt
	c.HasAlt = true
	return c
}

// Valid reports whether the position lies inside the tiled world
func (c GeoCoordinates) Valid() bool {
	return c.Lat >= MinLat && c.Lat <= MaxLat && c.Lon >= MinLon && c.Lon <= MaxLon
}

// Point converts c to an orb point (X is longitude)
func (c GeoCoordinates) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func (c GeoCoordinates) String() string {
	if c.HasAlt {
		return fmt.Sprintf("(%.6f, %.6f, %.1fm)", c.Lat, c.Lon, c.Alt)
	}
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lon)
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft GeoCoordinates
	TopRight   GeoCoordinates
}

// World covers the whole tiled area
var World = BoundingBox{
	BottomLeft: GeoCoordinates{Lat: MinLat, Lon: MinLon},
	TopRight:   GeoCoordinates{Lat: MaxLat, Lon: MaxLon},
}

// BoxesFromCorners builds the boxes covered by a map viewport given by its
// north-west and south-east corners. A viewport crossing the antimeridian
// (upperLeft east of lowerRight) is split into two boxes.
func BoxesFromCorners(upperLeft, lowerRight GeoCoordinates) []BoundingBox {
	south, north := lowerRight.Lat, upperLeft.Lat
	if south > north {
		south, north = north, south
	}
	if upperLeft.Lon <= lowerRight.Lon {
		return []BoundingBox{{
			BottomLeft: GeoCoordinates{Lat: south, Lon: upperLeft.Lon},
			TopRight:   GeoCoordinates{Lat: north, Lon: lowerRight.Lon},
		}}
	}
	return []BoundingBox{
		{
			BottomLeft: GeoCoordinates{Lat: south, Lon: upperLeft.Lon},
			TopRight:   GeoCoordinates{Lat: north, Lon: MaxLon},
		},
		{
			BottomLeft: GeoCoordinates{Lat: south, Lon: MinLon},
			TopRight:   GeoCoordinates{Lat: north, Lon: lowerRight.Lon},
		},
	}
}

// Bound converts the box to an orb bound
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: b.BottomLeft.Point(), Max: b.TopRight.Point()}
}

// Contains reports whether c lies inside the box, edges included
func (b BoundingBox) Contains(c GeoCoordinates) bool {
	return b.Bound().Contains(c.Point())
}

// Intersects reports whether the two boxes overlap, touching edges included
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Bound().Intersects(o.Bound())
}

// Center returns the middle of the box
func (b BoundingBox) Center() GeoCoordinates {
	c := b.Bound().Center()
	return GeoCoordinates{Lat: c.Y(), Lon: c.X()}
}

// Item is a geotagged entry of the host model
type Item struct {
	ID           ItemID          `json:"id"`
	Path         string          `json:"path,omitempty"`
	Coordinates  *GeoCoordinates `json:"coordinates,omitempty"`
	Rating       int             `json:"rating"`
	CreationDate time.Time       `json:"creation_date"`
}

// HasCoordinates reports whether the item can be placed on the map
func (i Item) HasCoordinates() bool {
	return i.Coordinates != nil && i.Coordinates.Valid()
}
