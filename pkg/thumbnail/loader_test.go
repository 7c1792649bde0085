package thumbnail

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.Set(x, 0, color.RGBA{R: 0xff, A: 0xff})
	}
	path := filepath.Join(dir, "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestLoad(t *testing.T) {
	path := writePNG(t, t.TempDir(), 400, 200)

	img, err := Load(path, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"), 100)
	assert.Error(t, err)
}

func TestLoaderFindAndDeliver(t *testing.T) {
	path := writePNG(t, t.TempDir(), 64, 64)
	source := func(id models.ItemID) (string, bool) {
		return path, id == 1
	}
	l := NewLoader(source, Config{Workers: 2, MaxDimension: 32}, nil)
	defer l.Close()

	_, ok := l.Find(1, image.Pt(16, 16))
	assert.False(t, ok, "first lookup is a miss")

	delivered := map[models.ItemID]image.Image{}
	require.Eventually(t, func() bool {
		l.Deliver(func(id models.ItemID, img image.Image) { delivered[id] = img })
		return len(delivered) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 32, delivered[1].Bounds().Dx())

	img, ok := l.Find(1, image.Pt(16, 16))
	require.True(t, ok)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 0, l.Deliver(func(models.ItemID, image.Image) {}))
}

func TestLoaderFailureIsNotRetried(t *testing.T) {
	source := func(models.ItemID) (string, bool) {
		return "", false
	}
	l := NewLoader(source, Config{Workers: 1}, nil)
	defer l.Close()

	l.Find(7, image.Pt(8, 8))
	require.Eventually(t, func() bool { return l.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)

	l.Find(7, image.Pt(8, 8))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, l.Pending())
	assert.Equal(t, 0, l.Deliver(func(models.ItemID, image.Image) {}))
}

func TestLoaderClosed(t *testing.T) {
	l := NewLoader(nil, Config{Workers: 1}, nil)
	l.Close()
	l.Close()

	_, ok := l.Find(1, image.Pt(8, 8))
	assert.False(t, ok)
	assert.Equal(t, 0, l.Pending())
}

func TestLRUEvicts(t *testing.T) {
	c := newLRU(2)
	img := Placeholder(image.Pt(1, 1))
	c.Set(1, img)
	c.Set(2, img)
	_, _ = c.Get(1)
	c.Set(3, img)

	_, ok := c.Get(2)
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestPlaceholder(t *testing.T) {
	img := Placeholder(image.Pt(4, 3))
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	assert.Equal(t, image.Rect(0, 0, 1, 1), Placeholder(image.Point{}).Bounds())
}
