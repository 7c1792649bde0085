package itemmodel

import (
	"fmt"
	"image"
	"slices"

	"github.com/kass/go-geo-tiler/pkg/itemtiler"
	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/thumbnail"
	"github.com/kass/go-geo-tiler/pkg/tiler"
	"go.uber.org/zap"
)

// Sort keys understood by Helper
const (
	SortYoungestFirst tiler.SortKey = iota
	SortOldestFirst
	SortRating
)

// ParseSortKey maps a CLI name to a sort key
func ParseSortKey(s string) (tiler.SortKey, error) {
	switch s {
	case "youngest", "":
		return SortYoungestFirst, nil
	case "oldest":
		return SortOldestFirst, nil
	case "rating":
		return SortRating, nil
	}
	return 0, fmt.Errorf("unknown sort key %q", s)
}

// HelperOption configures a Helper
type HelperOption func(*Helper)

// WithThumbnails sets the loader used for representative pixmaps
func WithThumbnails(l *thumbnail.Loader) HelperOption {
	return func(h *Helper) { h.thumbs = l }
}

// WithMovable controls whether markers may be moved
func WithMovable(movable bool) HelperOption {
	return func(h *Helper) { h.movable = movable }
}

// WithHelperLogger sets the helper logger
func WithHelperLogger(l *zap.Logger) HelperOption {
	return func(h *Helper) {
		if l != nil {
			h.logger = l
		}
	}
}

// Helper adapts a Model and a Selection to itemtiler.GeoModelHelper
type Helper struct {
	model     *Model
	selection *Selection
	thumbs    *thumbnail.Loader
	movable   bool
	logger    *zap.Logger

	thumbObservers map[int]itemtiler.ThumbnailObserver
	nextSub        int
}

var _ itemtiler.GeoModelHelper = (*Helper)(nil)

// NewHelper creates a helper; markers are movable unless disabled
func NewHelper(model *Model, selection *Selection, opts ...HelperOption) *Helper {
	h := &Helper{
		model:          model,
		selection:      selection,
		movable:        true,
		logger:         zap.NewNop(),
		thumbObservers: make(map[int]itemtiler.ThumbnailObserver),
	}
	for _, opt := range opts {
		opt(h)
	}
	if model != nil && selection != nil {
		model.SubscribeModel(&selectionPruner{model: model, selection: selection})
	}
	return h
}

// selectionPruner deselects items as their rows leave the model. It is
// subscribed before any tiler, so tilers see the deselection while the
// rows are still in their tree.
type selectionPruner struct {
	model     *Model
	selection *Selection
}

func (p *selectionPruner) RowsAboutToBeRemoved(first, last int) {
	var gone []models.ItemID
	for row := first; row <= last; row++ {
		if id := p.model.ItemAt(row); p.selection.IsSelected(id) {
			gone = append(gone, id)
		}
	}
	p.selection.Select(gone, false)
}

func (p *selectionPruner) ModelReset() {
	var gone []models.ItemID
	for _, id := range p.selection.SelectedItems() {
		if _, ok := p.model.Item(id); !ok {
			gone = append(gone, id)
		}
	}
	p.selection.Select(gone, false)
}

func (p *selectionPruner) RowsInserted(first, last int) {}
func (p *selectionPruner) DataChanged(first, last int) {}
func (p *selectionPruner) LayoutChanged() {}

func (h *Helper) Model() itemtiler.ItemModel {
	return h.model
}

func (h *Helper) SelectionModel() itemtiler.SelectionModel {
	if h.selection == nil {
		return nil
	}
	return h.selection
}

func (h *Helper) ItemCoordinates(id models.ItemID) (models.GeoCoordinates, bool) {
	it, ok := h.model.Item(id)
	if !ok || !it.HasCoordinates() {
		return models.GeoCoordinates{}, false
	}
	return *it.Coordinates, true
}

func (h *Helper) Flags() tiler.Flags {
	if h.movable {
		return tiler.FlagMovable
	}
	return tiler.FlagNull
}

// BestRepresentativeFromList orders ids by sortKey; ties go to the lower id
func (h *Helper) BestRepresentativeFromList(ids []models.ItemID, sortKey tiler.SortKey) (models.ItemID, bool) {
	var (
		best  models.Item
		found bool
	)
	for _, id := range ids {
		it, ok := h.model.Item(id)
		if !ok {
			continue
		}
		if !found || better(it, best, sortKey) {
			best, found = it, true
		}
	}
	return best.ID, found
}

func better(a, b models.Item, key tiler.SortKey) bool {
	switch key {
	case SortOldestFirst:
		if !a.CreationDate.Equal(b.CreationDate) {
			return a.CreationDate.Before(b.CreationDate)
		}
	case SortRating:
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if !a.CreationDate.Equal(b.CreationDate) {
			return a.CreationDate.Before(b.CreationDate)
		}
	default:
		if !a.CreationDate.Equal(b.CreationDate) {
			return a.CreationDate.After(b.CreationDate)
		}
	}
	return a.ID < b.ID
}

// PixmapFromRepresentative returns the cached thumbnail or a placeholder
func (h *Helper) PixmapFromRepresentative(id models.ItemID, size image.Point) (image.Image, bool) {
	if h.thumbs != nil {
		if img, ok := h.thumbs.Find(id, size); ok {
			return img, true
		}
	}
	return thumbnail.Placeholder(size), false
}

// OnIndicesMoved sets the coordinates of ids to target, or to the position
// of snapTarget when given.
func (h *Helper) OnIndicesMoved(ids []models.ItemID, target models.GeoCoordinates, snapTarget *models.ItemID) error {
	if snapTarget != nil {
		c, ok := h.ItemCoordinates(*snapTarget)
		if !ok {
			return fmt.Errorf("snap target %d: %w", *snapTarget, ErrUnknownItem)
		}
		target = c
	}
	if !target.Valid() {
		return fmt.Errorf("invalid target %v", target)
	}
	for _, id := range ids {
		if err := h.model.SetCoordinates(id, &target); err != nil {
			return err
		}
	}
	h.logger.Info("items_moved", zap.Int("count", len(ids)), zap.Stringer("target", target))
	return nil
}

// SnapTargetNear returns the item closest to c within maxKm, excluding
// the items being moved.
func (h *Helper) SnapTargetNear(c models.GeoCoordinates, maxKm float64, exclude []models.ItemID) (models.ItemID, bool) {
	id, ok := h.model.Nearest(c, maxKm)
	if !ok || slices.Contains(exclude, id) {
		return 0, false
	}
	return id, true
}

// SubscribeThumbnails registers o for DeliverThumbnails
func (h *Helper) SubscribeThumbnails(o itemtiler.ThumbnailObserver) func() {
	id := h.nextSub
	h.nextSub++
	h.thumbObservers[id] = o
	return func() { delete(h.thumbObservers, id) }
}

// DeliverThumbnails forwards finished thumbnails to the observers. It must
// run on the goroutine that owns the tiler.
func (h *Helper) DeliverThumbnails() int {
	if h.thumbs == nil {
		return 0
	}
	return h.thumbs.Deliver(func(id models.ItemID, img image.Image) {
		for _, o := range h.thumbObservers {
			o.ThumbnailAvailableForItem(id, img)
		}
	})
}
