package tiler

import (
	"cmp"
	"image"
	"iter"
	"slices"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/tileindex"
	"go.uber.org/zap"
)

// TileHandler is implemented by concrete tilers to manage tile payloads
type TileHandler[P any] interface {
	// Distribute sorts the markers of parent into its children. The
	// children slots are already prepared; depth is the parent's level.
	Distribute(parent *Tile[P], depth int)
	// ReleaseTile is called for every tile removed from the tree
	ReleaseTile(t *Tile[P])
}

// Base owns the tile tree and the state shared by all tilers. Concrete
// tilers embed it and provide the TileHandler.
type Base[P any, M comparable] struct {
	root      *Tile[P]
	handler   TileHandler[P]
	active    bool
	dirty     bool
	listeners []Listener[M]
	logger    *zap.Logger
}

// NewBase creates an active tiler base with an empty root tile
func NewBase[P any, M comparable](handler TileHandler[P], logger *zap.Logger) *Base[P, M] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base[P, M]{
		root:    &Tile[P]{},
		handler: handler,
		active:  true,
		logger:  logger,
	}
}

// Logger returns the tiler logger
func (b *Base[P, M]) Logger() *zap.Logger {
	return b.logger
}

// Root returns the whole-world tile
func (b *Base[P, M]) Root() *Tile[P] {
	return b.root
}

// TileNew creates a tile that is not yet part of the tree
func (b *Base[P, M]) TileNew() *Tile[P] {
	return &Tile[P]{}
}

// TileDelete releases t and its whole subtree
func (b *Base[P, M]) TileDelete(t *Tile[P]) {
	if t == nil {
		return
	}
	for _, c := range t.children {
		b.TileDelete(c)
	}
	t.children = nil
	b.handler.ReleaseTile(t)
}

// RemoveChild detaches the child at i from parent and releases it
func (b *Base[P, M]) RemoveChild(parent *Tile[P], i int) {
	b.TileDelete(parent.detachChild(i))
}

// Clear releases the whole tree and starts over with an empty root
func (b *Base[P, M]) Clear() {
	b.TileDelete(b.root)
	b.root = b.TileNew()
}

// IsActive reports whether model changes are being processed
func (b *Base[P, M]) IsActive() bool {
	return b.active
}

// SetActiveFlag changes the active flag only; concrete tilers decide what
// reactivation means.
func (b *Base[P, M]) SetActiveFlag(active bool) {
	b.active = active
}

// IsDirty reports whether the tree missed model changes
func (b *Base[P, M]) IsDirty() bool {
	return b.dirty
}

// SetDirty marks whether the tree is out of sync with the model
func (b *Base[P, M]) SetDirty(dirty bool) {
	b.dirty = dirty
}

// Get returns the tile at index, splitting tiles on the way as needed.
// With stopIfEmpty it returns nil instead of creating empty tiles. Without
// it, missing tiles are created with zero counts and stay in the tree until
// an ancestor's subtree is removed or the tree is cleared; read paths should
// pass stopIfEmpty.
func (b *Base[P, M]) Get(index tileindex.TileIndex, stopIfEmpty bool) *Tile[P] {
	tile := b.root
	for depth := 0; depth < index.Level(); depth++ {
		b.ensureChildren(tile, depth)

		i := index.LinearIndex(depth)
		child := tile.Child(i)
		if child == nil {
			if stopIfEmpty {
				return nil
			}
			child = b.TileNew()
			tile.AddChild(i, child)
		}
		tile = child
	}
	return tile
}

func (b *Base[P, M]) ensureChildren(tile *Tile[P], depth int) {
	if !tile.ChildrenEmpty() {
		return
	}
	tile.PrepareForChildren()
	if tile.markerCount > 0 {
		b.handler.Distribute(tile, depth)
	}
}

// Prepare materializes every non-empty tile intersecting boxes down to level
func (b *Base[P, M]) Prepare(boxes []models.BoundingBox, level int) {
	b.walk(boxes, level, func(tileindex.TileIndex, *Tile[P]) {})
}

// NonEmpty returns the non-empty tiles at level intersecting boxes, in
// Hilbert order. No boxes means the whole world.
func (b *Base[P, M]) NonEmpty(boxes []models.BoundingBox, level int) iter.Seq[tileindex.TileIndex] {
	return func(yield func(tileindex.TileIndex) bool) {
		type coded struct {
			code uint64
			idx  tileindex.TileIndex
		}
		var found []coded
		b.walk(boxes, level, func(idx tileindex.TileIndex, _ *Tile[P]) {
			found = append(found, coded{idx.Code(), idx})
		})
		slices.SortFunc(found, func(a, c coded) int {
			return cmp.Compare(a.code, c.code)
		})
		for _, f := range found {
			if !yield(f.idx) {
				return
			}
		}
	}
}

func (b *Base[P, M]) walk(boxes []models.BoundingBox, level int, fn func(tileindex.TileIndex, *Tile[P])) {
	level = min(max(level, 0), tileindex.MaxLevel)
	if len(boxes) == 0 {
		boxes = []models.BoundingBox{models.World}
	}

	var visit func(idx tileindex.TileIndex, tile *Tile[P])
	visit = func(idx tileindex.TileIndex, tile *Tile[P]) {
		if tile.markerCount == 0 || !intersectsAny(idx.Bounds(), boxes) {
			return
		}
		if idx.Level() == level {
			fn(idx, tile)
			return
		}
		b.ensureChildren(tile, idx.Level())
		for _, i := range tile.Children() {
			child, err := idx.Child(i)
			if err != nil {
				panic(err)
			}
			visit(child, tile.children[i])
		}
	}
	visit(tileindex.Root(), b.root)
}

func intersectsAny(b models.BoundingBox, boxes []models.BoundingBox) bool {
	for _, o := range boxes {
		if b.Intersects(o) {
			return true
		}
	}
	return false
}

// AddListener registers l for change notifications
func (b *Base[P, M]) AddListener(l Listener[M]) {
	b.listeners = append(b.listeners, l)
}

// RemoveListener unregisters l
func (b *Base[P, M]) RemoveListener(l Listener[M]) {
	b.listeners = slices.DeleteFunc(b.listeners, func(x Listener[M]) bool { return x == l })
}

// EmitTilesOrSelectionChanged notifies listeners that the tiles changed
func (b *Base[P, M]) EmitTilesOrSelectionChanged() {
	for _, l := range b.listeners {
		l.TilesOrSelectionChanged()
	}
}

// EmitThumbnailAvailable notifies listeners about a loaded thumbnail
func (b *Base[P, M]) EmitThumbnailAvailable(m M, img image.Image) {
	for _, l := range b.listeners {
		l.ThumbnailAvailable(m, img)
	}
}

// EmitFilteredItems notifies listeners about a positive filter click
func (b *Base[P, M]) EmitFilteredItems(markers []M) {
	for _, l := range b.listeners {
		l.FilteredItems(markers)
	}
}
