package tiler

import (
	"image"
	"slices"
	"testing"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/tileindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pointHandler keeps the marker positions directly in the tiles
type pointHandler struct {
	released int
}

func (h *pointHandler) Distribute(parent *Tile[[]tileindex.TileIndex], depth int) {
	for _, leaf := range parent.Data {
		i := leaf.LinearIndex(depth)
		child := parent.Child(i)
		if child == nil {
			child = &Tile[[]tileindex.TileIndex]{}
			parent.AddChild(i, child)
		}
		child.Data = append(child.Data, leaf)
		child.AddCounts(1, 0)
	}
}

func (h *pointHandler) ReleaseTile(*Tile[[]tileindex.TileIndex]) {
	h.released++
}

func newPointBase(coords ...models.GeoCoordinates) (*Base[[]tileindex.TileIndex, int], *pointHandler) {
	h := &pointHandler{}
	b := NewBase[[]tileindex.TileIndex, int](h, nil)
	for _, c := range coords {
		b.Root().Data = append(b.Root().Data, tileindex.FromCoordinates(c, tileindex.MaxLevel))
		b.Root().AddCounts(1, 0)
	}
	return b, h
}

func TestTileCounts(t *testing.T) {
	var tile Tile[struct{}]
	assert.True(t, tile.Empty())
	assert.True(t, tile.ChildrenEmpty())

	tile.AddCounts(3, 1)
	assert.Equal(t, 3, tile.MarkerCount())
	assert.Equal(t, 1, tile.SelectedCount())
	assert.False(t, tile.Empty())

	assert.Panics(t, func() { tile.AddCounts(-4, 0) })
}

func TestTileChildren(t *testing.T) {
	var tile Tile[int]
	assert.Nil(t, tile.Child(2))
	assert.Empty(t, tile.Children())

	tile.AddChild(2, &Tile[int]{Data: 7})
	assert.False(t, tile.ChildrenEmpty())
	assert.Equal(t, []int{2}, tile.Children())
	assert.Equal(t, 7, tile.Child(2).Data)

	assert.Equal(t, 7, tile.detachChild(2).Data)
	assert.Nil(t, tile.Child(2))
	assert.False(t, tile.ChildrenEmpty())
}

func TestBaseGetSplitsLazily(t *testing.T) {
	b, _ := newPointBase(
		models.NewGeoCoordinates(10, 10),
		models.NewGeoCoordinates(20, 20),
		models.NewGeoCoordinates(-10, -10),
	)
	assert.True(t, b.Root().ChildrenEmpty())
	assert.True(t, b.IsActive())

	idx := tileindex.FromCoordinates(models.NewGeoCoordinates(10, 10), 2)
	tile := b.Get(idx, true)
	require.NotNil(t, tile)
	assert.Equal(t, 2, tile.MarkerCount())
	assert.False(t, b.Root().ChildrenEmpty())
	assert.True(t, tile.ChildrenEmpty(), "only the requested path is split")

	empty := tileindex.FromCoordinates(models.NewGeoCoordinates(-60, 120), 2)
	assert.Nil(t, b.Get(empty, true))
	created := b.Get(empty, false)
	require.NotNil(t, created)
	assert.Zero(t, created.MarkerCount())
}

func TestBaseNonEmptyOrdersByCode(t *testing.T) {
	b, _ := newPointBase(
		models.NewGeoCoordinates(60, 100),
		models.NewGeoCoordinates(-60, -100),
		models.NewGeoCoordinates(60, -100),
		models.NewGeoCoordinates(-60, 100),
		models.NewGeoCoordinates(61, 101),
	)

	b.Prepare(nil, 3)
	var got []tileindex.TileIndex
	for idx := range b.NonEmpty(nil, 3) {
		got = append(got, idx)
		assert.Equal(t, 3, idx.Level())
	}
	require.Len(t, got, 4)
	assert.True(t, slices.IsSortedFunc(got, func(a, c tileindex.TileIndex) int {
		return int(a.Code()) - int(c.Code())
	}))

	total := 0
	for _, idx := range got {
		total += b.Get(idx, true).MarkerCount()
	}
	assert.Equal(t, 5, total)
}

func TestBaseNonEmptyInsideBoxes(t *testing.T) {
	b, _ := newPointBase(
		models.NewGeoCoordinates(10, 10),
		models.NewGeoCoordinates(-40, -120),
	)
	box := models.BoundingBox{
		BottomLeft: models.NewGeoCoordinates(5, 5),
		TopRight:   models.NewGeoCoordinates(15, 15),
	}

	var got []tileindex.TileIndex
	for idx := range b.NonEmpty([]models.BoundingBox{box}, 5) {
		got = append(got, idx)
	}
	assert.Equal(t, []tileindex.TileIndex{tileindex.FromCoordinates(models.NewGeoCoordinates(10, 10), 5)}, got)

	// early break stops the iteration
	n := 0
	for range b.NonEmpty(nil, 5) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestBaseRemoveChildReleasesSubtree(t *testing.T) {
	b, h := newPointBase(models.NewGeoCoordinates(10, 10), models.NewGeoCoordinates(-10, -10))
	b.Prepare(nil, 4)

	i := tileindex.FromCoordinates(models.NewGeoCoordinates(10, 10), 1).LastIndex()
	b.RemoveChild(b.Root(), i)
	assert.Equal(t, 4, h.released, "tiles of levels 1 to 4")
	assert.Nil(t, b.Root().Child(i))

	b.Clear()
	assert.Equal(t, 4+5, h.released)
	assert.True(t, b.Root().ChildrenEmpty())
	assert.Zero(t, b.Root().MarkerCount())
}

func TestBaseEmptyTileKeptUntilAncestorRemoved(t *testing.T) {
	b, h := newPointBase(models.NewGeoCoordinates(10, 10))

	empty := tileindex.FromCoordinates(models.NewGeoCoordinates(-60, 120), 3)
	require.NotNil(t, b.Get(empty, false))
	kept := b.Get(empty, true)
	require.NotNil(t, kept, "created tile stays in the tree")
	assert.Zero(t, kept.MarkerCount())

	for idx := range b.NonEmpty(nil, 3) {
		assert.NotEqual(t, empty, idx)
	}

	b.RemoveChild(b.Root(), empty.LinearIndex(0))
	assert.Equal(t, 3, h.released, "empty levels 1 to 3")
	assert.Nil(t, b.Get(empty, true))
}

type countingListener struct {
	changed, thumbs, filtered int
}

func (l *countingListener) TilesOrSelectionChanged() { l.changed++ }
func (l *countingListener) ThumbnailAvailable(int, image.Image) { l.thumbs++ }
func (l *countingListener) FilteredItems([]int) { l.filtered++ }

func TestBaseListeners(t *testing.T) {
	b, _ := newPointBase()
	l1, l2 := &countingListener{}, &countingListener{}
	b.AddListener(l1)
	b.AddListener(l2)

	b.EmitTilesOrSelectionChanged()
	b.EmitThumbnailAvailable(1, nil)
	b.RemoveListener(l1)
	b.EmitFilteredItems([]int{1})

	assert.Equal(t, countingListener{changed: 1, thumbs: 1}, *l1)
	assert.Equal(t, countingListener{changed: 1, thumbs: 1, filtered: 1}, *l2)
}

func TestBaseFlags(t *testing.T) {
	b, _ := newPointBase()
	b.SetActiveFlag(false)
	b.SetDirty(true)
	assert.False(t, b.IsActive())
	assert.True(t, b.IsDirty())
	assert.NotNil(t, b.Logger())
}
