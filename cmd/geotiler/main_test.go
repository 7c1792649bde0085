package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kass/go-geo-tiler/pkg/itemmodel"
	"github.com/kass/go-geo-tiler/pkg/itemtiler"
	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/thumbnail"
	"github.com/kass/go-geo-tiler/pkg/tiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoords(t *testing.T) {
	c, err := parseCoords("52.5, 13.4")
	require.NoError(t, err)
	assert.Equal(t, models.NewGeoCoordinates(52.5, 13.4), c)

	for _, bad := range []string{"", "52.5", "x,1", "1,y", "91,0", "0,181"} {
		_, err := parseCoords(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseBox(t *testing.T) {
	b, err := parseBox("10,20,30,40")
	require.NoError(t, err)
	assert.Equal(t, models.NewGeoCoordinates(10, 20), b.BottomLeft)
	assert.Equal(t, models.NewGeoCoordinates(30, 40), b.TopRight)

	_, err = parseBox("10,20,30")
	assert.Error(t, err)
}

func TestRenderCell(t *testing.T) {
	assert.Equal(t, " ", renderCell(cell{}, 10, false))
	assert.Equal(t, heatRunes[0], renderCell(cell{count: 1}, 10, false))
	assert.Equal(t, heatRunes[len(heatRunes)-1], renderCell(cell{count: 10}, 10, false))

	sel := cell{count: 3, state: tiler.SelectedAll}
	assert.Equal(t, selectedRune, renderCell(sel, 10, false))
}

func TestRenderMapPlain(t *testing.T) {
	m, err := itemmodel.NewModel(
		models.Item{ID: 1, Coordinates: ptr(models.NewGeoCoordinates(45, 90))},
		models.Item{ID: 2, Coordinates: ptr(models.NewGeoCoordinates(-45, -90))},
	)
	require.NoError(t, err)
	tl, err := itemtiler.New(itemmodel.NewHelper(m, itemmodel.NewSelection()))
	require.NoError(t, err)
	defer tl.Close()

	out := renderMap(tl, 1, false)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "2 markers")
	// north row has the north-east marker
	assert.Equal(t, " "+heatRunes[0], lines[1])
	assert.Equal(t, heatRunes[0]+" ", lines[2])
}

func ptr[T any](v T) *T { return &v }

type thumbListener struct {
	got []models.ItemID
}

func (l *thumbListener) TilesOrSelectionChanged() {}
func (l *thumbListener) FilteredItems([]models.ItemID) {}
func (l *thumbListener) ThumbnailAvailable(id models.ItemID, _ image.Image) { l.got = append(l.got, id) }

func TestSessionWaitThumbnails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	require.NoError(t, f.Close())

	m, err := itemmodel.NewModel(
		models.Item{ID: 1, Path: path, Coordinates: ptr(models.NewGeoCoordinates(10, 10))},
		models.Item{ID: 2, Path: filepath.Join(t.TempDir(), "missing.png"), Coordinates: ptr(models.NewGeoCoordinates(20, 20))},
	)
	require.NoError(t, err)
	sel := itemmodel.NewSelection()
	thumbs := thumbnail.NewLoader(m.ImagePath, thumbnail.Config{Workers: 1}, nil)
	helper := itemmodel.NewHelper(m, sel, itemmodel.WithThumbnails(thumbs))
	tl, err := itemtiler.New(helper)
	require.NoError(t, err)
	s := &session{model: m, sel: sel, helper: helper, tiler: tl, thumbs: thumbs}
	defer s.Close()

	l := &thumbListener{}
	tl.AddListener(l)
	for _, id := range []models.ItemID{1, 2} {
		_, ok := tl.PixmapFromRepresentative(id, image.Pt(4, 4))
		assert.False(t, ok)
	}

	assert.Equal(t, 1, s.waitThumbnails(2, 5*time.Second), "the missing file never arrives")
	assert.Equal(t, []models.ItemID{1}, l.got)
	_, ok := tl.PixmapFromRepresentative(1, image.Pt(4, 4))
	assert.True(t, ok)
}
