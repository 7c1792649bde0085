// Package tiler implements the abstract marker tiler: a lazily materialized
// quadtree of marker counts used by a map widget to render clusters.
//
// The package is single-threaded. All mutations and queries are expected to
// run on the goroutine that drives the host model.
package tiler

import (
	"image"
	"iter"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/tileindex"
)

// Flags describe optional capabilities of a tiler
type Flags uint8

const (
	FlagNull    Flags = 0
	FlagMovable Flags = 1 << 0
)

// MouseMode is the interaction mode active when tiles are clicked
type MouseMode int

const (
	MouseModePan MouseMode = iota
	MouseModeSelectThumbnail
	MouseModeFilter
)

func (m MouseMode) String() string {
	switch m {
	case MouseModePan:
		return "pan"
	case MouseModeSelectThumbnail:
		return "select"
	case MouseModeFilter:
		return "filter"
	}
	return "unknown"
}

// SortKey selects the ordering used to choose a representative marker.
// Its meaning is defined by the model helper.
type SortKey int

// ClickInfo describes a click on one or more clustered tiles
type ClickInfo[M comparable] struct {
	TileIndices         []tileindex.TileIndex
	GroupSelectionState GroupState
	RepresentativeIndex M
	MouseMode           MouseMode
}

// Listener receives change notifications from a tiler
type Listener[M comparable] interface {
	// TilesOrSelectionChanged is called when counts or states may have changed
	TilesOrSelectionChanged()
	// ThumbnailAvailable is called when a thumbnail for m finished loading
	ThumbnailAvailable(m M, img image.Image)
	// FilteredItems is called when a click activated the positive filter
	FilteredItems(markers []M)
}

// MarkerTiler is what a map widget needs from a tiler
type MarkerTiler[M comparable] interface {
	Flags() Flags

	// PrepareTiles materializes the tiles covering the viewport at level
	PrepareTiles(upperLeft, lowerRight models.GeoCoordinates, level int)
	// RegenerateTiles throws the tree away and rebuilds it from the model
	RegenerateTiles()
	// NonEmptyTiles iterates over the non-empty tiles at level in the viewport
	NonEmptyTiles(upperLeft, lowerRight models.GeoCoordinates, level int) iter.Seq[tileindex.TileIndex]

	TileMarkerCount(index tileindex.TileIndex) int
	TileSelectedCount(index tileindex.TileIndex) int
	TileGroupState(index tileindex.TileIndex) GroupState
	GlobalGroupState() GroupState

	TileRepresentativeMarker(index tileindex.TileIndex, sortKey SortKey) (M, bool)
	BestRepresentativeFromList(markers []M, sortKey SortKey) (M, bool)
	// PixmapFromRepresentative returns the cached thumbnail of m, or a
	// placeholder and false while it is being loaded. It never blocks.
	PixmapFromRepresentative(m M, size image.Point) (image.Image, bool)

	OnIndicesClicked(info ClickInfo[M])
	OnIndicesMoved(indices []tileindex.TileIndex, target models.GeoCoordinates, snapTarget *M) error

	SetActive(active bool)
	IsActive() bool

	AddListener(l Listener[M])
	RemoveListener(l Listener[M])
}
