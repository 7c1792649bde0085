// Package itemmodel is an in-memory host for geotagged items: a row model,
// a selection model and the GeoModelHelper the item tiler consumes.
package itemmodel

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kass/go-geo-tiler/pkg/itemtiler"
	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/rtree"
)

var (
	ErrUnknownItem   = errors.New("unknown item")
	ErrDuplicateItem = errors.New("duplicate item id")
	ErrRowRange      = errors.New("row out of range")
)

// Model is an ordered list of items. Mutations notify the subscribed
// observers synchronously.
type Model struct {
	rows      []models.Item
	rowOf     map[models.ItemID]int
	observers map[int]itemtiler.ModelObserver
	nextSub   int

	// spatial mirrors the positions of all rows for snap lookups
	spatial *rtree.GeoIndex
}

var _ itemtiler.ItemModel = (*Model)(nil)

// NewModel creates a model holding items
func NewModel(items ...models.Item) (*Model, error) {
	m := &Model{
		rowOf:     make(map[models.ItemID]int),
		observers: make(map[int]itemtiler.ModelObserver),
		spatial:   rtree.NewGeoIndex(),
	}
	if err := m.load(items); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) load(items []models.Item) error {
	rows := make([]models.Item, 0, len(items))
	rowOf := make(map[models.ItemID]int, len(items))
	for _, it := range items {
		if _, ok := rowOf[it.ID]; ok {
			return fmt.Errorf("item %d: %w", it.ID, ErrDuplicateItem)
		}
		rowOf[it.ID] = len(rows)
		rows = append(rows, it)
	}
	m.rows, m.rowOf = rows, rowOf
	m.spatial.Clear()
	m.spatial.IndexItems(rows)
	return nil
}

// RowCount returns the number of rows
func (m *Model) RowCount() int {
	return len(m.rows)
}

// ItemAt returns the id of the item at row
func (m *Model) ItemAt(row int) models.ItemID {
	return m.rows[row].ID
}

// Item returns a copy of the item with id
func (m *Model) Item(id models.ItemID) (models.Item, bool) {
	row, ok := m.rowOf[id]
	if !ok {
		return models.Item{}, false
	}
	return m.rows[row], true
}

// Items returns a copy of all rows
func (m *Model) Items() []models.Item {
	return slices.Clone(m.rows)
}

// Append adds items at the end and reports the inserted rows
func (m *Model) Append(items ...models.Item) error {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[models.ItemID]struct{}, len(items))
	for _, it := range items {
		_, dup := seen[it.ID]
		if _, ok := m.rowOf[it.ID]; ok || dup {
			return fmt.Errorf("item %d: %w", it.ID, ErrDuplicateItem)
		}
		seen[it.ID] = struct{}{}
	}

	first := len(m.rows)
	for _, it := range items {
		m.rowOf[it.ID] = len(m.rows)
		m.rows = append(m.rows, it)
		if it.HasCoordinates() {
			m.spatial.Insert(it.ID, *it.Coordinates)
		}
	}
	for _, o := range m.subscribers() {
		o.RowsInserted(first, len(m.rows)-1)
	}
	return nil
}

// RemoveRows removes the rows first..last inclusive
func (m *Model) RemoveRows(first, last int) error {
	if first < 0 || last >= len(m.rows) || first > last {
		return fmt.Errorf("rows %d..%d of %d: %w", first, last, len(m.rows), ErrRowRange)
	}
	for _, o := range m.subscribers() {
		o.RowsAboutToBeRemoved(first, last)
	}
	for _, it := range m.rows[first : last+1] {
		delete(m.rowOf, it.ID)
		m.spatial.Remove(it.ID)
	}
	m.rows = slices.Delete(m.rows, first, last+1)
	for row := first; row < len(m.rows); row++ {
		m.rowOf[m.rows[row].ID] = row
	}
	return nil
}

// Remove removes the item with id
func (m *Model) Remove(id models.ItemID) error {
	row, ok := m.rowOf[id]
	if !ok {
		return fmt.Errorf("item %d: %w", id, ErrUnknownItem)
	}
	return m.RemoveRows(row, row)
}

// SetCoordinates changes or clears the position of id
func (m *Model) SetCoordinates(id models.ItemID, c *models.GeoCoordinates) error {
	row, ok := m.rowOf[id]
	if !ok {
		return fmt.Errorf("item %d: %w", id, ErrUnknownItem)
	}
	if c != nil {
		cc := *c
		m.rows[row].Coordinates = &cc
		m.spatial.Insert(id, cc)
	} else {
		m.rows[row].Coordinates = nil
		m.spatial.Remove(id)
	}
	for _, o := range m.subscribers() {
		o.DataChanged(row, row)
	}
	return nil
}

// Sort reorders the rows; the layout change is reported to observers
func (m *Model) Sort(cmp func(a, b models.Item) int) {
	slices.SortStableFunc(m.rows, cmp)
	for row, it := range m.rows {
		m.rowOf[it.ID] = row
	}
	for _, o := range m.subscribers() {
		o.LayoutChanged()
	}
}

// Reset replaces all rows
func (m *Model) Reset(items []models.Item) error {
	if err := m.load(items); err != nil {
		return err
	}
	for _, o := range m.subscribers() {
		o.ModelReset()
	}
	return nil
}

// SubscribeModel registers o and returns the function removing it
func (m *Model) SubscribeModel(o itemtiler.ModelObserver) func() {
	id := m.nextSub
	m.nextSub++
	m.observers[id] = o
	return func() { delete(m.observers, id) }
}

// subscribers returns the observers in subscription order
func (m *Model) subscribers() []itemtiler.ModelObserver {
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]itemtiler.ModelObserver, len(ids))
	for i, id := range ids {
		out[i] = m.observers[id]
	}
	return out
}

// Nearest returns the item closest to c within maxKm, if any
func (m *Model) Nearest(c models.GeoCoordinates, maxKm float64) (models.ItemID, bool) {
	ids := m.spatial.NearestNeighbors(c, 1)
	if len(ids) == 0 {
		return 0, false
	}
	pos, ok := m.spatial.Coordinates(ids[0])
	if !ok || rtree.Distance(c.Lat, c.Lon, pos.Lat, pos.Lon) > maxKm {
		return 0, false
	}
	return ids[0], true
}

// ImagePath returns the image file of id; it matches thumbnail.Source
func (m *Model) ImagePath(id models.ItemID) (string, bool) {
	it, ok := m.Item(id)
	if !ok || it.Path == "" {
		return "", false
	}
	return it.Path, true
}
