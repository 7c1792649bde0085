package itemmodel

import (
	"slices"

	"github.com/kass/go-geo-tiler/pkg/itemtiler"
	"github.com/kass/go-geo-tiler/pkg/models"
)

// Selection tracks the selected items of a Model
type Selection struct {
	selected  map[models.ItemID]struct{}
	observers map[int]itemtiler.SelectionObserver
	nextSub   int
}

var _ itemtiler.SelectionModel = (*Selection)(nil)

// NewSelection creates an empty selection
func NewSelection() *Selection {
	return &Selection{
		selected:  make(map[models.ItemID]struct{}),
		observers: make(map[int]itemtiler.SelectionObserver),
	}
}

func (s *Selection) IsSelected(id models.ItemID) bool {
	_, ok := s.selected[id]
	return ok
}

func (s *Selection) HasSelection() bool {
	return len(s.selected) > 0
}

// SelectedItems returns the selected ids in ascending order
func (s *Selection) SelectedItems() []models.ItemID {
	out := make([]models.ItemID, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Select selects or deselects ids. Only actual changes are reported.
func (s *Selection) Select(ids []models.ItemID, selected bool) {
	var changed []models.ItemID
	for _, id := range ids {
		if s.IsSelected(id) == selected {
			continue
		}
		if selected {
			s.selected[id] = struct{}{}
		} else {
			delete(s.selected, id)
		}
		changed = append(changed, id)
	}
	if len(changed) == 0 {
		return
	}
	for _, o := range s.subscribers() {
		if selected {
			o.SelectionChanged(changed, nil)
		} else {
			o.SelectionChanged(nil, changed)
		}
	}
}

// Clear deselects everything
func (s *Selection) Clear() {
	s.Select(s.SelectedItems(), false)
}

// SubscribeSelection registers o and returns the function removing it
func (s *Selection) SubscribeSelection(o itemtiler.SelectionObserver) func() {
	id := s.nextSub
	s.nextSub++
	s.observers[id] = o
	return func() { delete(s.observers, id) }
}

func (s *Selection) subscribers() []itemtiler.SelectionObserver {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]itemtiler.SelectionObserver, len(ids))
	for i, id := range ids {
		out[i] = s.observers[id]
	}
	return out
}
