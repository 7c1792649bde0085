package itemtiler

import (
	"image"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/tiler"
)

// ModelObserver receives row change notifications from an ItemModel, in the
// order the changes happen.
type ModelObserver interface {
	RowsInserted(first, last int)
	// RowsAboutToBeRemoved is delivered while the rows are still readable
	RowsAboutToBeRemoved(first, last int)
	DataChanged(first, last int)
	LayoutChanged()
	ModelReset()
}

// SelectionObserver receives selection changes
type SelectionObserver interface {
	SelectionChanged(selected, deselected []models.ItemID)
}

// ThumbnailObserver receives thumbnails finished by an asynchronous loader
type ThumbnailObserver interface {
	ThumbnailAvailableForItem(id models.ItemID, img image.Image)
}

// ItemModel is the host collection of items
type ItemModel interface {
	RowCount() int
	ItemAt(row int) models.ItemID
	SubscribeModel(o ModelObserver) (unsubscribe func())
}

// SelectionModel tracks which items are selected
type SelectionModel interface {
	IsSelected(id models.ItemID) bool
	HasSelection() bool
	SelectedItems() []models.ItemID
	Select(ids []models.ItemID, selected bool)
	SubscribeSelection(o SelectionObserver) (unsubscribe func())
}

// GeoModelHelper is the only way the tiler reaches the host model. The
// model and selection model are borrowed; the tiler must not outlive them.
type GeoModelHelper interface {
	Model() ItemModel
	// SelectionModel may return nil when the host has no selection
	SelectionModel() SelectionModel
	// ItemCoordinates returns false for items without a usable position
	ItemCoordinates(id models.ItemID) (models.GeoCoordinates, bool)
	Flags() tiler.Flags

	BestRepresentativeFromList(ids []models.ItemID, sortKey tiler.SortKey) (models.ItemID, bool)
	// PixmapFromRepresentative must not block; it returns a placeholder and
	// false while the thumbnail is loading.
	PixmapFromRepresentative(id models.ItemID, size image.Point) (image.Image, bool)
	// OnIndicesMoved changes the coordinates of ids and reports the change
	// through ModelObserver.DataChanged. With a snap target the items take
	// the target's coordinates.
	OnIndicesMoved(ids []models.ItemID, target models.GeoCoordinates, snapTarget *models.ItemID) error
	SubscribeThumbnails(o ThumbnailObserver) (unsubscribe func())
}
