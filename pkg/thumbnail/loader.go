// Package thumbnail loads item thumbnails in the background. Lookups never
// block: a miss queues a request and the finished image is handed out later
// by Deliver, on the caller's goroutine.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"runtime"
	"sync"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register WEBP image decoder
)

// Source resolves the image file of an item
type Source func(id models.ItemID) (path string, ok bool)

// Config controls the loader
type Config struct {
	Workers      int
	CacheSize    int
	QueueSize    int
	MaxDimension uint
}

// DefaultConfig returns a loader config sized for an interactive map
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		CacheSize:    512,
		QueueSize:    256,
		MaxDimension: 256,
	}
}

// Loader decodes and scales thumbnails with a pool of workers
type Loader struct {
	cfg    Config
	source Source
	logger *zap.Logger
	cache  *lru

	requests chan models.ItemID
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	pending map[models.ItemID]struct{}
	failed  map[models.ItemID]struct{}
	done    []models.ItemID
	closed  bool
}

// NewLoader starts the workers. A nil logger disables logging.
func NewLoader(source Source, cfg Config, logger *zap.Logger) *Loader {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxDimension == 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		cfg:      cfg,
		source:   source,
		logger:   logger,
		cache:    newLRU(cfg.CacheSize),
		requests: make(chan models.ItemID, cfg.QueueSize),
		cancel:   cancel,
		pending:  make(map[models.ItemID]struct{}),
		failed:   make(map[models.ItemID]struct{}),
	}
	for range cfg.Workers {
		l.wg.Add(1)
		go l.worker(ctx)
	}
	return l
}

// Find returns the cached thumbnail of id scaled to fit size. On a miss it
// queues a load and returns false.
func (l *Loader) Find(id models.ItemID, size image.Point) (image.Image, bool) {
	if img, ok := l.cache.Get(id); ok {
		return fit(img, size), true
	}
	l.request(id)
	return nil, false
}

func (l *Loader) request(id models.ItemID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if _, ok := l.pending[id]; ok {
		return
	}
	if _, ok := l.failed[id]; ok {
		return
	}
	select {
	case l.requests <- id:
		l.pending[id] = struct{}{}
	default:
		l.logger.Debug("thumbnail_queue_full", zap.Int64("id", int64(id)))
	}
}

// Deliver hands every thumbnail finished since the last call to fn and
// returns how many were delivered.
func (l *Loader) Deliver(fn func(id models.ItemID, img image.Image)) int {
	l.mu.Lock()
	done := l.done
	l.done = nil
	l.mu.Unlock()

	n := 0
	for _, id := range done {
		img, ok := l.cache.Get(id)
		if !ok {
			continue
		}
		fn(id, img)
		n++
	}
	return n
}

// Pending reports the number of queued or running loads
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Close stops the workers and waits for them
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}

func (l *Loader) worker(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-l.requests:
			l.load(id)
		}
	}
}

func (l *Loader) load(id models.ItemID) {
	img, err := l.decode(id)

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
	if err != nil {
		l.failed[id] = struct{}{}
		l.logger.Warn("thumbnail_load_failed", zap.Int64("id", int64(id)), zap.Error(err))
		return
	}
	l.cache.Set(id, img)
	l.done = append(l.done, id)
}

func (l *Loader) decode(id models.ItemID) (image.Image, error) {
	if l.source == nil {
		return nil, fmt.Errorf("item %d: no thumbnail source", id)
	}
	path, ok := l.source(id)
	if !ok {
		return nil, fmt.Errorf("item %d: no image file", id)
	}
	return Load(path, l.cfg.MaxDimension)
}

// Load decodes the image at path and scales it to fit maxDim
func Load(path string, maxDim uint) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3), nil
}

func fit(img image.Image, size image.Point) image.Image {
	if size.X <= 0 || size.Y <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= size.X && b.Dy() <= size.Y {
		return img
	}
	return resize.Thumbnail(uint(size.X), uint(size.Y), img, resize.Bilinear)
}

var placeholderColor = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}

// Placeholder returns a neutral image of size shown while a thumbnail loads
func Placeholder(size image.Point) image.Image {
	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(1, 1)
	}
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderColor}, image.Point{}, draw.Src)
	return img
}
