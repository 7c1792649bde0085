package batch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func decodeOutput(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := decodeFile(path)
	require.NoError(t, err)
	return img
}

func TestSettingsValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*QueueSettings)
		wantErr bool
	}{
		{"defaults", func(*QueueSettings) {}, false},
		{"png ignores quality", func(s *QueueSettings) { s.Format, s.JPEGQuality = FormatPNG, 0 }, false},
		{"empty dir", func(s *QueueSettings) { s.OutputDir = "" }, true},
		{"bad format", func(s *QueueSettings) { s.Format = "tiff" }, true},
		{"bad quality", func(s *QueueSettings) { s.JPEGQuality = 101 }, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSettings)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	s := DefaultSettings()
	s.UseMultiCore = false
	assert.Equal(t, 1, s.Workers())
}

func TestParseConflictRule(t *testing.T) {
	for _, r := range []ConflictRule{ConflictOverwrite, ConflictSkip, ConflictRename} {
		got, err := ParseConflictRule(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseConflictRule("merge")
	assert.Error(t, err)
}

func TestParseTool(t *testing.T) {
	testCases := []struct {
		in   string
		want Tool
	}{
		{"resize:100x50", ResizeTool{Width: 100, Height: 50}},
		{"resize:100x", ResizeTool{Width: 100}},
		{"grayscale", GrayscaleTool{}},
		{"flip", FlipTool{}},
		{"flip:v", FlipTool{Vertical: true}},
		{"crop:1,2,3,4", CropTool{Rect: image.Rect(1, 2, 3, 4)}},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTool(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"blur", "resize:10", "flip:x", "crop:1,2", "crop:a,b,c,d"} {
		_, err := ParseTool(bad)
		assert.Error(t, err, bad)
	}
}

func TestTools(t *testing.T) {
	ctx := context.Background()
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	red := color.RGBA{R: 0xff, A: 0xff}
	src.SetRGBA(0, 0, red)

	img, err := ResizeTool{Width: 8}.Apply(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
	_, err = ResizeTool{}.Apply(ctx, src)
	assert.Error(t, err)

	img, err = GrayscaleTool{}.Apply(ctx, src)
	require.NoError(t, err)
	assert.IsType(t, &image.Gray{}, img)

	img, err = FlipTool{}.Apply(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, red, img.(*image.RGBA).RGBAAt(3, 0))

	img, err = FlipTool{Vertical: true}.Apply(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, red, img.(*image.RGBA).RGBAAt(0, 1))

	img, err = CropTool{Rect: image.Rect(0, 0, 2, 10)}.Apply(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	_, err = CropTool{Rect: image.Rect(10, 10, 20, 20)}.Apply(ctx, src)
	assert.Error(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = GrayscaleTool{}.Apply(canceled, src)
	assert.ErrorIs(t, err, context.Canceled)
}

type collector struct {
	mu   sync.Mutex
	data []ActionData
}

func (c *collector) emit(d ActionData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, d)
}

func (c *collector) final() map[string]ActionData {
	out := make(map[string]ActionData)
	for _, d := range c.data {
		if d.Status.Final() {
			out[filepath.Base(d.Source)] = d
		}
	}
	return out
}

func TestProcess(t *testing.T) {
	in := t.TempDir()
	sources := []string{
		writeSource(t, in, "a.png", 40, 20),
		writeSource(t, in, "b.png", 10, 10),
	}
	broken := filepath.Join(in, "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0o644))
	sources = append(sources, broken)

	s := DefaultSettings()
	s.OutputDir = filepath.Join(t.TempDir(), "out")
	s.Format = FormatPNG
	at, err := NewActionThread(s, nil)
	require.NoError(t, err)

	c := &collector{}
	summary, err := at.Process(context.Background(), sources,
		[]Tool{ResizeTool{Width: 20}, GrayscaleTool{}}, c.emit)
	require.NoError(t, err)
	assert.Equal(t, Summary{Done: 2, Failed: 1}, summary)

	final := c.final()
	assert.Equal(t, ProcessDone, final["a.png"].Status)
	assert.Equal(t, ProcessFailed, final["broken.png"].Status)
	assert.Error(t, final["broken.png"].Err)

	out := decodeOutput(t, filepath.Join(s.OutputDir, "a.png"))
	assert.Equal(t, image.Rect(0, 0, 20, 10), out.Bounds())

	var toolsDone []string
	for _, d := range c.data {
		if d.Status == ToolDone && filepath.Base(d.Source) == "b.png" {
			toolsDone = append(toolsDone, d.Tool)
		}
	}
	assert.Equal(t, []string{"resize", "grayscale"}, toolsDone, "tools run in order")
}

func TestProcessConflicts(t *testing.T) {
	in := t.TempDir()
	src := writeSource(t, in, "photo.png", 4, 4)
	other := writeSource(t, t.TempDir(), "photo.png", 4, 4)

	testCases := []struct {
		rule     ConflictRule
		expected []string
		skipped  int
	}{
		{ConflictRename, []string{"photo-1.jpg", "photo-2.jpg", "photo.jpg"}, 0},
		{ConflictSkip, []string{"photo.jpg"}, 2},
		{ConflictOverwrite, []string{"photo-1.jpg", "photo.jpg"}, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.rule.String(), func(t *testing.T) {
			s := DefaultSettings()
			s.OutputDir = t.TempDir()
			s.Conflict = tc.rule
			require.NoError(t, os.WriteFile(filepath.Join(s.OutputDir, "photo.jpg"), nil, 0o644))

			at, err := NewActionThread(s, nil)
			require.NoError(t, err)
			summary, err := at.Process(context.Background(), []string{src, other}, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.skipped, summary.Skipped)

			entries, err := os.ReadDir(s.OutputDir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.Equal(t, tc.expected, names)
		})
	}
}

// blockingTool waits until the context is canceled
type blockingTool struct {
	started chan struct{}
	once    sync.Once
}

func (*blockingTool) Name() string { return "block" }

func (b *blockingTool) Apply(ctx context.Context, img image.Image) (image.Image, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessCancel(t *testing.T) {
	in := t.TempDir()
	var sources []string
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		sources = append(sources, writeSource(t, in, name, 2, 2))
	}

	s := DefaultSettings()
	s.OutputDir = t.TempDir()
	s.UseMultiCore = false
	at, err := NewActionThread(s, nil)
	require.NoError(t, err)

	tool := &blockingTool{started: make(chan struct{})}
	go func() {
		<-tool.started
		at.Cancel()
	}()

	summary, err := at.Process(context.Background(), sources, []Tool{tool, GrayscaleTool{}}, nil)
	assert.True(t, errors.Is(err, ErrCanceled))
	assert.Equal(t, Summary{Canceled: 3}, summary)

	entries, err := os.ReadDir(s.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewActionThreadRejectsBadSettings(t *testing.T) {
	s := DefaultSettings()
	s.Format = "bmp"
	_, err := NewActionThread(s, nil)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
