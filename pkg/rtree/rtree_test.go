package rtree

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coords(lat, lon float64) *models.GeoCoordinates {
	c := models.NewGeoCoordinates(lat, lon)
	return &c
}

func TestNewGeoIndex(t *testing.T) {
	index := NewGeoIndex()
	assert.NotNil(t, index)
	assert.NotNil(t, index.tree)
	assert.Equal(t, int64(0), index.Count())
}

func TestIndexItems(t *testing.T) {
	index := NewGeoIndex()

	items := []models.Item{
		{ID: 1, Coordinates: coords(37.7749, -122.4194)}, // San Francisco
		{ID: 2, Coordinates: coords(34.0522, -118.2437)}, // Los Angeles
		{ID: 3, Coordinates: coords(40.7128, -74.0060)},  // New York
		{ID: 4},                                           // Item without location
	}

	n := index.IndexItems(items)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), index.Count()) // Only 3 items have locations
}

func TestInsertMovesExisting(t *testing.T) {
	index := NewGeoIndex()
	index.Insert(1, models.NewGeoCoordinates(10, 10))
	index.Insert(1, models.NewGeoCoordinates(-10, -10))
	assert.Equal(t, int64(1), index.Count())

	got, ok := index.Coordinates(1)
	require.True(t, ok)
	assert.Equal(t, models.NewGeoCoordinates(-10, -10), got)

	ids, err := index.QueryBox(models.BoundingBox{
		BottomLeft: models.NewGeoCoordinates(0, 0),
		TopRight:   models.NewGeoCoordinates(20, 20),
	})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRemove(t *testing.T) {
	index := NewGeoIndex()
	index.Insert(7, models.NewGeoCoordinates(1, 2))

	assert.True(t, index.Remove(7))
	assert.False(t, index.Remove(7))
	assert.Equal(t, int64(0), index.Count())

	_, ok := index.Coordinates(7)
	assert.False(t, ok)
}

func TestQueryBox(t *testing.T) {
	index := NewGeoIndex()

	// Create items in California
	index.IndexItems([]models.Item{
		{ID: 1, Coordinates: coords(37.7749, -122.4194)}, // San Francisco
		{ID: 2, Coordinates: coords(34.0522, -118.2437)}, // Los Angeles
		{ID: 3, Coordinates: coords(32.7157, -117.1611)}, // San Diego
		{ID: 4, Coordinates: coords(40.7128, -74.0060)},  // New York (outside)
		{ID: 5, Coordinates: coords(41.8781, -87.6298)},  // Chicago (outside)
	})

	// Query box covering California
	box := models.BoundingBox{
		BottomLeft: models.NewGeoCoordinates(32.0, -125.0),
		TopRight:   models.NewGeoCoordinates(42.0, -114.0),
	}

	results, err := index.QueryBox(box)
	assert.NoError(t, err)
	assert.Equal(t, []models.ItemID{1, 2, 3}, results)
}

func TestQueryBoxDegenerate(t *testing.T) {
	index := NewGeoIndex()
	index.Insert(1, models.NewGeoCoordinates(5, 5))

	box := models.BoundingBox{
		BottomLeft: models.NewGeoCoordinates(5, 5),
		TopRight:   models.NewGeoCoordinates(5, 5),
	}
	results, err := index.QueryBox(box)
	require.NoError(t, err)
	assert.Equal(t, []models.ItemID{1}, results)
}

func TestQueryRadius(t *testing.T) {
	index := NewGeoIndex()

	// Create items around San Francisco
	sfLat, sfLon := 37.7749, -122.4194
	index.IndexItems([]models.Item{
		{ID: 1, Coordinates: coords(sfLat, sfLon)},
		{ID: 2, Coordinates: coords(37.8044, -122.2712)}, // Oakland ~13km
		{ID: 3, Coordinates: coords(37.3382, -121.8863)}, // San Jose ~48km
		{ID: 4, Coordinates: coords(38.5816, -121.4944)}, // Sacramento ~120km
		{ID: 5, Coordinates: coords(34.0522, -118.2437)}, // LA ~560km
	})

	testCases := []struct {
		name     string
		radius   float64
		expected []models.ItemID
	}{
		{"10km radius", 10, []models.ItemID{1}},
		{"20km radius", 20, []models.ItemID{1, 2}},
		{"80km radius", 80, []models.ItemID{1, 2, 3}},
		{"150km radius", 150, []models.ItemID{1, 2, 3, 4}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := index.QueryRadius(models.NewGeoCoordinates(sfLat, sfLon), tc.radius)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, results)
		})
	}
}

func TestNearestNeighbors(t *testing.T) {
	index := NewGeoIndex()

	index.IndexItems([]models.Item{
		{ID: 1, Coordinates: coords(37.7749, -122.4194)},
		{ID: 2, Coordinates: coords(37.7849, -122.4094)},
		{ID: 3, Coordinates: coords(37.7649, -122.4294)},
		{ID: 4, Coordinates: coords(37.8049, -122.3994)},
		{ID: 5, Coordinates: coords(37.7549, -122.4394)},
	})

	results := index.NearestNeighbors(models.NewGeoCoordinates(37.7749, -122.4194), 3)

	assert.Len(t, results, 3)
	// First result should be the center point itself
	assert.Equal(t, models.ItemID(1), results[0])

	assert.Nil(t, NewGeoIndex().NearestNeighbors(models.NewGeoCoordinates(0, 0), 3))
}

func TestClear(t *testing.T) {
	index := NewGeoIndex()
	index.IndexItems(generateRandomItems(100))
	index.Clear()
	assert.Equal(t, int64(0), index.Count())

	results, err := index.QueryBox(models.World)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestConcurrentQueries(t *testing.T) {
	index := NewGeoIndex()
	index.IndexItems(generateRandomItems(10000))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			switch i % 4 {
			case 0:
				box := models.BoundingBox{
					BottomLeft: models.NewGeoCoordinates(30, -120),
					TopRight:   models.NewGeoCoordinates(40, -110),
				}
				_, err := index.QueryBox(box)
				assert.NoError(t, err)
			case 1:
				_, err := index.QueryRadius(models.NewGeoCoordinates(40, -100), 50)
				assert.NoError(t, err)
			case 2:
				assert.NotEmpty(t, index.NearestNeighbors(models.NewGeoCoordinates(40, -100), 5))
			case 3:
				id := models.ItemID(100000 + i)
				index.Insert(id, models.NewGeoCoordinates(45, -100))
				index.Remove(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(10000), index.Count())
}

func TestDistance(t *testing.T) {
	testCases := []struct {
		name     string
		lat1     float64
		lon1     float64
		lat2     float64
		lon2     float64
		expected float64
		delta    float64
	}{
		{
			name: "Same point",
			lat1: 37.7749, lon1: -122.4194,
			lat2: 37.7749, lon2: -122.4194,
			expected: 0,
			delta:    0.01,
		},
		{
			name: "SF to Oakland",
			lat1: 37.7749, lon1: -122.4194,
			lat2: 37.8044, lon2: -122.2712,
			expected: 13.0, // Approximately 13km
			delta:    1.0,
		},
		{
			name: "SF to LA",
			lat1: 37.7749, lon1: -122.4194,
			lat2: 34.0522, lon2: -118.2437,
			expected: 559.0, // Approximately 559km
			delta:    5.0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dist := Distance(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			assert.InDelta(t, tc.expected, dist, tc.delta)
		})
	}
}

// Helper function to generate random items
func generateRandomItems(n int) []models.Item {
	r := rand.New(rand.NewSource(42))
	items := make([]models.Item, n)
	for i := 0; i < n; i++ {
		items[i] = models.Item{
			ID:          models.ItemID(i),
			Coordinates: coords(r.Float64()*20+30, r.Float64()*40-120),
		}
	}
	return items
}

func BenchmarkIndexItems(b *testing.B) {
	sizes := []int{1000, 10000, 100000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%d_items", size), func(b *testing.B) {
			items := generateRandomItems(size)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				index := NewGeoIndex()
				index.IndexItems(items)
			}
		})
	}
}

func BenchmarkQueryBox(b *testing.B) {
	index := NewGeoIndex()
	index.IndexItems(generateRandomItems(100000))

	box := models.BoundingBox{
		BottomLeft: models.NewGeoCoordinates(35, -115),
		TopRight:   models.NewGeoCoordinates(40, -110),
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = index.QueryBox(box)
	}
}
