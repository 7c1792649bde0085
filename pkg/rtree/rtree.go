// Package rtree keeps an R-Tree of marker positions next to the tile tree.
// It answers the region and proximity queries the quadtree is bad at:
// region selection, radius search and nearest snap targets.
package rtree

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/kass/go-geo-tiler/pkg/models"
)

const (
	tolerance   = 1e-7
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
	earthRadius = 6371.0 // km
)

// spatialMarker wraps a marker to implement rtreego.Spatial
type spatialMarker struct {
	id     models.ItemID
	coords models.GeoCoordinates
	rect   *rtreego.Rect
}

func (sm *spatialMarker) Bounds() *rtreego.Rect {
	return sm.rect
}

// GeoIndex is a thread-safe R-Tree of marker positions keyed by item id
type GeoIndex struct {
	tree      *rtreego.Rtree
	items     map[models.ItemID]*spatialMarker
	mu        sync.RWMutex
	itemCount atomic.Int64
}

// NewGeoIndex creates an empty index
func NewGeoIndex() *GeoIndex {
	return &GeoIndex{
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
		items: make(map[models.ItemID]*spatialMarker),
	}
}

// Insert adds or moves the marker of id
func (g *GeoIndex) Insert(id models.ItemID, coords models.GeoCoordinates) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.items[id]; ok {
		g.tree.Delete(old)
		g.itemCount.Add(-1)
	}
	sm := &spatialMarker{
		id:     id,
		coords: coords,
		rect:   rtreego.Point{coords.Lat, coords.Lon}.ToRect(tolerance),
	}
	g.tree.Insert(sm)
	g.items[id] = sm
	g.itemCount.Add(1)
}

// IndexItems inserts all items with coordinates and returns how many were indexed
func (g *GeoIndex) IndexItems(items []models.Item) int {
	n := 0
	for _, it := range items {
		if !it.HasCoordinates() {
			continue
		}
		g.Insert(it.ID, *it.Coordinates)
		n++
	}
	return n
}

// Remove deletes the marker of id and reports whether it was present
func (g *GeoIndex) Remove(id models.ItemID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	sm, ok := g.items[id]
	if !ok {
		return false
	}
	g.tree.Delete(sm)
	delete(g.items, id)
	g.itemCount.Add(-1)
	return true
}

// Coordinates returns the indexed position of id
func (g *GeoIndex) Coordinates(id models.ItemID) (models.GeoCoordinates, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sm, ok := g.items[id]
	if !ok {
		return models.GeoCoordinates{}, false
	}
	return sm.coords, true
}

// QueryBox returns the ids of all markers inside box, edges included
func (g *GeoIndex) QueryBox(box models.BoundingBox) ([]models.ItemID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bottomLeft := rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lon}
	rectSize := []float64{
		math.Max(box.TopRight.Lat-box.BottomLeft.Lat, tolerance),
		math.Max(box.TopRight.Lon-box.BottomLeft.Lon, tolerance),
	}
	bounds, err := rtreego.NewRect(bottomLeft, rectSize)
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}

	results := g.tree.SearchIntersect(bounds)

	// Filter results to ensure they're strictly within bounds
	ids := make([]models.ItemID, 0, len(results))
	for _, result := range results {
		sm, ok := result.(*spatialMarker)
		if !ok || !box.Contains(sm.coords) {
			continue
		}
		ids = append(ids, sm.id)
	}
	sortIDs(ids)
	return ids, nil
}

// QueryRadius returns the ids of all markers within radiusKm of center
func (g *GeoIndex) QueryRadius(center models.GeoCoordinates, radiusKm float64) ([]models.ItemID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Convert radius to degrees (approximate)
	deg := (radiusKm / earthRadius) * (180 / math.Pi)
	bounds, err := rtreego.NewRect(
		rtreego.Point{center.Lat - deg, center.Lon - deg},
		[]float64{math.Max(2*deg, tolerance), math.Max(2*deg, tolerance)},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid radius search: %w", err)
	}

	results := g.tree.SearchIntersect(bounds)

	ids := make([]models.ItemID, 0, len(results))
	for _, result := range results {
		sm, ok := result.(*spatialMarker)
		if !ok {
			continue
		}
		if Distance(center.Lat, center.Lon, sm.coords.Lat, sm.coords.Lon) <= radiusKm {
			ids = append(ids, sm.id)
		}
	}
	sortIDs(ids)
	return ids, nil
}

// NearestNeighbors returns up to n marker ids ordered by distance to center
func (g *GeoIndex) NearestNeighbors(center models.GeoCoordinates, n int) []models.ItemID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if n <= 0 || g.tree.Size() == 0 {
		return nil
	}

	type nearestResult struct {
		id       models.ItemID
		distance float64
	}

	// rtreego ranks by planar distance; ask for extra candidates and rank
	// them again on the sphere.
	results := g.tree.NearestNeighbors(n*2, rtreego.Point{center.Lat, center.Lon})
	ranked := make([]nearestResult, 0, len(results))
	for _, result := range results {
		sm, ok := result.(*spatialMarker)
		if !ok || sm == nil {
			continue
		}
		ranked = append(ranked, nearestResult{
			id:       sm.id,
			distance: Distance(center.Lat, center.Lon, sm.coords.Lat, sm.coords.Lon),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].distance < ranked[j].distance
	})

	resultCount := min(n, len(ranked))
	ids := make([]models.ItemID, resultCount)
	for i := range resultCount {
		ids[i] = ranked[i].id
	}
	return ids
}

// Count returns the number of indexed markers
func (g *GeoIndex) Count() int64 {
	return g.itemCount.Load()
}

// Clear removes all markers from the index
func (g *GeoIndex) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	g.items = make(map[models.ItemID]*spatialMarker)
	g.itemCount.Store(0)
}

func sortIDs(ids []models.ItemID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Distance calculates the Haversine distance between two points in kilometers
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}
