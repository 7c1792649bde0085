// Package itemtiler binds the abstract marker tiler to a host item model.
//
// ItemMarkerTiler keeps its tile tree in sync with the model incrementally:
// inserted rows are added along their tile path, removed rows are taken out
// and empty tiles pruned, selection changes only touch selected counts.
package itemtiler

import (
	"errors"
	"fmt"
	"image"
	"iter"
	"slices"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/rtree"
	"github.com/kass/go-geo-tiler/pkg/tileindex"
	"github.com/kass/go-geo-tiler/pkg/tiler"
	"go.uber.org/zap"
)

var (
	ErrNotMovable = errors.New("model does not support moving markers")
	ErrNoHelper   = errors.New("nil model helper")
)

// TileData is the payload of a tile: the markers it contains
type TileData struct {
	Markers []models.ItemID
}

// Tile is a tile of the item tiler
type Tile = tiler.Tile[TileData]

type marker struct {
	leaf     tileindex.TileIndex
	coords   models.GeoCoordinates
	selected bool
}

// Option configures an ItemMarkerTiler
type Option func(*ItemMarkerTiler)

// WithLogger sets the logger used for tree maintenance events
func WithLogger(l *zap.Logger) Option {
	return func(t *ItemMarkerTiler) {
		if l != nil {
			t.logger = l
		}
	}
}

// ItemMarkerTiler is a MarkerTiler over the items of a GeoModelHelper
type ItemMarkerTiler struct {
	base   *tiler.Base[TileData, models.ItemID]
	helper GeoModelHelper
	logger *zap.Logger

	// markers holds the placement of every marker currently in the tree;
	// removal walks this path because the model may have lost the position.
	markers map[models.ItemID]*marker
	region  *rtree.GeoIndex

	regionBox   *models.BoundingBox
	regionItems map[models.ItemID]struct{}
	filter      map[models.ItemID]struct{}

	unsubscribe []func()
}

var _ tiler.MarkerTiler[models.ItemID] = (*ItemMarkerTiler)(nil)

// New creates a tiler over helper, subscribes to its models and builds the
// tree from the current model contents.
func New(helper GeoModelHelper, opts ...Option) (*ItemMarkerTiler, error) {
	if helper == nil {
		return nil, ErrNoHelper
	}
	t := &ItemMarkerTiler{
		helper:  helper,
		logger:  zap.NewNop(),
		markers: make(map[models.ItemID]*marker),
		region:  rtree.NewGeoIndex(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.base = tiler.NewBase[TileData, models.ItemID](t, t.logger)

	if m := helper.Model(); m != nil {
		t.unsubscribe = append(t.unsubscribe, m.SubscribeModel(t))
	}
	if sm := helper.SelectionModel(); sm != nil {
		t.unsubscribe = append(t.unsubscribe, sm.SubscribeSelection(t))
	}
	t.unsubscribe = append(t.unsubscribe, helper.SubscribeThumbnails(t))

	t.RegenerateTiles()
	return t, nil
}

// Close detaches the tiler from the host models and releases the tree
func (t *ItemMarkerTiler) Close() {
	for _, u := range t.unsubscribe {
		if u != nil {
			u()
		}
	}
	t.unsubscribe = nil
	t.base.Clear()
	clear(t.markers)
	t.region.Clear()
}

// Flags reports FlagMovable when the helper can move markers
func (t *ItemMarkerTiler) Flags() tiler.Flags {
	return t.helper.Flags() & tiler.FlagMovable
}

// Distribute sorts the markers of parent into its children
func (t *ItemMarkerTiler) Distribute(parent *Tile, depth int) {
	for _, id := range parent.Data.Markers {
		m := t.markers[id]
		i := m.leaf.LinearIndex(depth)
		child := parent.Child(i)
		if child == nil {
			child = t.base.TileNew()
			parent.AddChild(i, child)
		}
		child.Data.Markers = append(child.Data.Markers, id)
		child.AddCounts(1, boolToInt(m.selected))
	}
}

// ReleaseTile drops the payload of a tile leaving the tree
func (t *ItemMarkerTiler) ReleaseTile(tile *Tile) {
	tile.Data.Markers = nil
}

// RegenerateTiles rebuilds the tree from the current model contents
func (t *ItemMarkerTiler) RegenerateTiles() {
	t.base.Clear()
	clear(t.markers)
	t.region.Clear()

	if m := t.helper.Model(); m != nil {
		for row := range m.RowCount() {
			t.addMarker(m.ItemAt(row))
		}
	}
	t.refreshRegionItems()
	t.base.SetDirty(false)

	t.logger.Debug("tiles_regenerated", zap.Int("markers", len(t.markers)))
	t.base.EmitTilesOrSelectionChanged()
}

// addMarker inserts id along its path. Only tiles that already exist get the
// marker; tiles with unprepared children keep it until they are split.
func (t *ItemMarkerTiler) addMarker(id models.ItemID) {
	if _, ok := t.markers[id]; ok {
		t.logger.Debug("marker_already_placed", zap.Int64("id", int64(id)))
		return
	}
	coords, ok := t.helper.ItemCoordinates(id)
	if !ok || !coords.Valid() {
		return
	}
	m := &marker{
		leaf:     tileindex.FromCoordinates(coords, tileindex.MaxLevel),
		coords:   coords,
		selected: t.isSelected(id),
	}
	t.markers[id] = m
	t.region.Insert(id, coords)
	if t.regionBox != nil && t.regionBox.Contains(coords) {
		t.regionItems[id] = struct{}{}
	}

	tile := t.base.Root()
	for depth := 0; ; depth++ {
		tile.Data.Markers = append(tile.Data.Markers, id)
		tile.AddCounts(1, boolToInt(m.selected))

		if tile.ChildrenEmpty() || depth == tileindex.MaxLevel {
			return
		}
		i := m.leaf.LinearIndex(depth)
		next := tile.Child(i)
		if next == nil {
			next = t.base.TileNew()
			tile.AddChild(i, next)
		}
		tile = next
	}
}

// removeMarker takes id out of every tile on its path and prunes tiles that
// become empty.
func (t *ItemMarkerTiler) removeMarker(id models.ItemID) {
	m, ok := t.markers[id]
	if !ok {
		return
	}
	delete(t.markers, id)
	delete(t.regionItems, id)
	t.region.Remove(id)

	tile := t.base.Root()
	for depth := 0; ; depth++ {
		tile.Data.Markers = removeID(tile.Data.Markers, id)
		tile.AddCounts(-1, -boolToInt(m.selected))

		if tile.ChildrenEmpty() || depth == tileindex.MaxLevel {
			return
		}
		i := m.leaf.LinearIndex(depth)
		next := tile.Child(i)
		if next == nil {
			panic(fmt.Sprintf("itemtiler: marker %d missing below %v", id, m.leaf.At(depth)))
		}
		if next.MarkerCount() == 1 {
			// the subtree holds only this marker
			t.base.RemoveChild(tile, i)
			return
		}
		tile = next
	}
}

func (t *ItemMarkerTiler) setSelected(id models.ItemID, selected bool) bool {
	m, ok := t.markers[id]
	if !ok || m.selected == selected {
		return false
	}
	m.selected = selected
	delta := -1
	if selected {
		delta = 1
	}

	tile := t.base.Root()
	for depth := 0; ; depth++ {
		tile.AddCounts(0, delta)
		if tile.ChildrenEmpty() || depth == tileindex.MaxLevel {
			return true
		}
		tile = tile.Child(m.leaf.LinearIndex(depth))
		if tile == nil {
			panic(fmt.Sprintf("itemtiler: marker %d missing below %v", id, m.leaf.At(depth)))
		}
	}
}

func (t *ItemMarkerTiler) isSelected(id models.ItemID) bool {
	sm := t.helper.SelectionModel()
	return sm != nil && sm.IsSelected(id)
}

// RowsInserted adds the inserted rows to the tree
func (t *ItemMarkerTiler) RowsInserted(first, last int) {
	if !t.base.IsActive() {
		t.base.SetDirty(true)
		return
	}
	m := t.helper.Model()
	for row := first; row <= last; row++ {
		t.addMarker(m.ItemAt(row))
	}
	t.base.EmitTilesOrSelectionChanged()
}

// RowsAboutToBeRemoved takes the rows out of the tree before they vanish
func (t *ItemMarkerTiler) RowsAboutToBeRemoved(first, last int) {
	if !t.base.IsActive() {
		t.base.SetDirty(true)
		return
	}
	m := t.helper.Model()
	for row := first; row <= last; row++ {
		t.removeMarker(m.ItemAt(row))
	}
	t.base.EmitTilesOrSelectionChanged()
}

// DataChanged re-places the rows since their coordinates may have changed
func (t *ItemMarkerTiler) DataChanged(first, last int) {
	if !t.base.IsActive() {
		t.base.SetDirty(true)
		return
	}
	m := t.helper.Model()
	for row := first; row <= last; row++ {
		id := m.ItemAt(row)
		t.removeMarker(id)
		t.addMarker(id)
	}
	t.base.EmitTilesOrSelectionChanged()
}

// LayoutChanged rebuilds the tree; every row may be affected
func (t *ItemMarkerTiler) LayoutChanged() {
	t.ModelReset()
}

// ModelReset rebuilds the tree
func (t *ItemMarkerTiler) ModelReset() {
	if !t.base.IsActive() {
		t.base.SetDirty(true)
		return
	}
	t.RegenerateTiles()
}

// SelectionChanged updates the selected counts of the affected markers
func (t *ItemMarkerTiler) SelectionChanged(selected, deselected []models.ItemID) {
	if !t.base.IsActive() {
		t.base.SetDirty(true)
		return
	}
	changed := false
	for _, id := range deselected {
		changed = t.setSelected(id, false) || changed
	}
	for _, id := range selected {
		changed = t.setSelected(id, true) || changed
	}
	if changed {
		t.base.EmitTilesOrSelectionChanged()
	}
}

// ThumbnailAvailableForItem forwards a loaded thumbnail to the listeners
func (t *ItemMarkerTiler) ThumbnailAvailableForItem(id models.ItemID, img image.Image) {
	t.base.EmitThumbnailAvailable(id, img)
}

// SetActive turns model processing on or off. While inactive all model
// signals are dropped; reactivation rebuilds the tree.
func (t *ItemMarkerTiler) SetActive(active bool) {
	was := t.base.IsActive()
	t.base.SetActiveFlag(active)
	if active && !was {
		t.RegenerateTiles()
	}
}

// IsActive reports whether model signals are processed
func (t *ItemMarkerTiler) IsActive() bool {
	return t.base.IsActive()
}

// PrepareTiles materializes the tiles of the viewport down to level
func (t *ItemMarkerTiler) PrepareTiles(upperLeft, lowerRight models.GeoCoordinates, level int) {
	if !t.base.IsActive() {
		return
	}
	t.base.Prepare(models.BoxesFromCorners(upperLeft, lowerRight), level)
}

// NonEmptyTiles iterates over the non-empty tiles of the viewport at level
func (t *ItemMarkerTiler) NonEmptyTiles(upperLeft, lowerRight models.GeoCoordinates, level int) iter.Seq[tileindex.TileIndex] {
	return t.base.NonEmpty(models.BoxesFromCorners(upperLeft, lowerRight), level)
}

// Tile returns the tile at index; see tiler.Base.Get. With stopIfEmpty false
// an empty tile is created and left in the tree.
func (t *ItemMarkerTiler) Tile(index tileindex.TileIndex, stopIfEmpty bool) *Tile {
	return t.base.Get(index, stopIfEmpty)
}

// TileMarkers returns the markers of the tile at index
func (t *ItemMarkerTiler) TileMarkers(index tileindex.TileIndex) []models.ItemID {
	tile := t.base.Get(index, true)
	if tile == nil {
		return nil
	}
	return slices.Clone(tile.Data.Markers)
}

// TileMarkerCount returns the number of markers in the tile at index
func (t *ItemMarkerTiler) TileMarkerCount(index tileindex.TileIndex) int {
	tile := t.base.Get(index, true)
	if tile == nil {
		return 0
	}
	return tile.MarkerCount()
}

// TileSelectedCount returns the number of selected markers in the tile at index
func (t *ItemMarkerTiler) TileSelectedCount(index tileindex.TileIndex) int {
	tile := t.base.Get(index, true)
	if tile == nil {
		return 0
	}
	return tile.SelectedCount()
}

// TileGroupState returns the aggregated state of the tile at index
func (t *ItemMarkerTiler) TileGroupState(index tileindex.TileIndex) tiler.GroupState {
	tile := t.base.Get(index, true)
	if tile == nil {
		return tiler.SelectedNone
	}
	return t.groupState(tile)
}

// GlobalGroupState returns the aggregated state of all markers
func (t *ItemMarkerTiler) GlobalGroupState() tiler.GroupState {
	return t.groupState(t.base.Root())
}

func (t *ItemMarkerTiler) groupState(tile *Tile) tiler.GroupState {
	if t.regionBox == nil && t.filter == nil {
		return tiler.SelectionState(tile.MarkerCount(), tile.SelectedCount())
	}
	var c tiler.GroupStateComputer
	for _, id := range tile.Data.Markers {
		c.AddState(t.markerState(id))
	}
	return c.State()
}

// markerState follows the filter chain: markers outside the region get no
// other flags, unfiltered markers cannot count as selected.
func (t *ItemMarkerTiler) markerState(id models.ItemID) tiler.GroupState {
	var s tiler.GroupState
	if t.regionBox != nil {
		if _, ok := t.regionItems[id]; !ok {
			return tiler.RegionSelectedNone
		}
		s |= tiler.RegionSelectedAll
	}
	if t.filter != nil {
		if _, ok := t.filter[id]; !ok {
			return s
		}
		s |= tiler.FilteredPositiveAll
	}
	if m, ok := t.markers[id]; ok && m.selected {
		s |= tiler.SelectedAll
	}
	return s
}

// TileRepresentativeMarker picks the marker standing in for the tile. While
// a region selection or filter is active, matching markers are preferred.
func (t *ItemMarkerTiler) TileRepresentativeMarker(index tileindex.TileIndex, sortKey tiler.SortKey) (models.ItemID, bool) {
	tile := t.base.Get(index, true)
	if tile == nil || len(tile.Data.Markers) == 0 {
		return 0, false
	}
	candidates := tile.Data.Markers
	if t.regionBox != nil || t.filter != nil {
		var preferred []models.ItemID
		for _, id := range candidates {
			s := t.markerState(id)
			if (t.regionBox == nil || s.Region() == tiler.RegionSelectedAll) &&
				(t.filter == nil || s.Filtered() == tiler.FilteredPositiveAll) {
				preferred = append(preferred, id)
			}
		}
		if len(preferred) > 0 {
			candidates = preferred
		}
	}
	return t.helper.BestRepresentativeFromList(candidates, sortKey)
}

// BestRepresentativeFromList delegates the ordering to the model helper
func (t *ItemMarkerTiler) BestRepresentativeFromList(markers []models.ItemID, sortKey tiler.SortKey) (models.ItemID, bool) {
	if len(markers) == 0 {
		return 0, false
	}
	return t.helper.BestRepresentativeFromList(markers, sortKey)
}

// PixmapFromRepresentative returns the thumbnail of id without blocking
func (t *ItemMarkerTiler) PixmapFromRepresentative(id models.ItemID, size image.Point) (image.Image, bool) {
	return t.helper.PixmapFromRepresentative(id, size)
}

// OnIndicesClicked applies a click on tiles according to the mouse mode
func (t *ItemMarkerTiler) OnIndicesClicked(info tiler.ClickInfo[models.ItemID]) {
	ids := t.markersOf(info.TileIndices)

	switch info.MouseMode {
	case tiler.MouseModeSelectThumbnail:
		sm := t.helper.SelectionModel()
		if sm == nil {
			return
		}
		doSelect := info.GroupSelectionState.Selected() != tiler.SelectedAll
		var toggle []models.ItemID
		for _, id := range ids {
			if sm.IsSelected(id) != doSelect {
				toggle = append(toggle, id)
			}
		}
		if len(toggle) > 0 {
			sm.Select(toggle, doSelect)
		}
	case tiler.MouseModeFilter:
		t.SetPositiveFilter(ids)
		t.base.EmitFilteredItems(ids)
	}
}

// OnIndicesMoved moves the markers of the given tiles, or the whole
// selection when no tiles are given, to target.
func (t *ItemMarkerTiler) OnIndicesMoved(indices []tileindex.TileIndex, target models.GeoCoordinates, snapTarget *models.ItemID) error {
	if t.Flags()&tiler.FlagMovable == 0 {
		return ErrNotMovable
	}
	var ids []models.ItemID
	if len(indices) == 0 {
		ids = t.SelectedMarkers()
	} else {
		ids = t.markersOf(indices)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := t.helper.OnIndicesMoved(ids, target, snapTarget); err != nil {
		return fmt.Errorf("move %d markers: %w", len(ids), err)
	}
	t.logger.Debug("markers_moved", zap.Int("count", len(ids)), zap.Stringer("target", target))
	return nil
}

// SelectedMarkers returns the selected items that have a marker in the tree,
// in ascending order. Selected items without coordinates are left out.
func (t *ItemMarkerTiler) SelectedMarkers() []models.ItemID {
	sm := t.helper.SelectionModel()
	if sm == nil || !sm.HasSelection() {
		return nil
	}
	var ids []models.ItemID
	for _, id := range sm.SelectedItems() {
		if _, ok := t.markers[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *ItemMarkerTiler) markersOf(indices []tileindex.TileIndex) []models.ItemID {
	seen := make(map[models.ItemID]struct{})
	var ids []models.ItemID
	for _, idx := range indices {
		for _, id := range t.TileMarkers(idx) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// SetRegionSelection marks the markers inside box as region selected
func (t *ItemMarkerTiler) SetRegionSelection(box models.BoundingBox) {
	t.regionBox = &box
	t.refreshRegionItems()
	t.base.EmitTilesOrSelectionChanged()
}

// RemoveRegionSelection drops the region selection
func (t *ItemMarkerTiler) RemoveRegionSelection() {
	t.regionBox = nil
	t.regionItems = nil
	t.base.EmitTilesOrSelectionChanged()
}

// RegionSelection returns the active region, if any
func (t *ItemMarkerTiler) RegionSelection() (models.BoundingBox, bool) {
	if t.regionBox == nil {
		return models.BoundingBox{}, false
	}
	return *t.regionBox, true
}

func (t *ItemMarkerTiler) refreshRegionItems() {
	if t.regionBox == nil {
		return
	}
	t.regionItems = make(map[models.ItemID]struct{})
	ids, err := t.region.QueryBox(*t.regionBox)
	if err != nil {
		t.logger.Warn("region_query_failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		t.regionItems[id] = struct{}{}
	}
}

// SetPositiveFilter restricts the filtered state to ids
func (t *ItemMarkerTiler) SetPositiveFilter(ids []models.ItemID) {
	t.filter = make(map[models.ItemID]struct{}, len(ids))
	for _, id := range ids {
		t.filter[id] = struct{}{}
	}
	t.base.EmitTilesOrSelectionChanged()
}

// ClearPositiveFilter drops the positive filter
func (t *ItemMarkerTiler) ClearPositiveFilter() {
	t.filter = nil
	t.base.EmitTilesOrSelectionChanged()
}

// AddListener registers l for change notifications
func (t *ItemMarkerTiler) AddListener(l tiler.Listener[models.ItemID]) {
	t.base.AddListener(l)
}

// RemoveListener unregisters l
func (t *ItemMarkerTiler) RemoveListener(l tiler.Listener[models.ItemID]) {
	t.base.RemoveListener(l)
}

// MarkerCount returns the number of markers in the tree
func (t *ItemMarkerTiler) MarkerCount() int {
	return len(t.markers)
}

func removeID(ids []models.ItemID, id models.ItemID) []models.ItemID {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
