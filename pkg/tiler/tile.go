package tiler

import "github.com/kass/go-geo-tiler/pkg/tileindex"

// Tile is one node of the marker quadtree. Children are created lazily; a
// tile whose children have not been prepared holds all its markers itself.
// Data carries the concrete tiler's per-tile payload.
type Tile[P any] struct {
	children      []*Tile[P]
	markerCount   int
	selectedCount int

	Data P
}

// MarkerCount returns the number of markers inside the tile
func (t *Tile[P]) MarkerCount() int {
	return t.markerCount
}

// SelectedCount returns the number of selected markers inside the tile
func (t *Tile[P]) SelectedCount() int {
	return t.selectedCount
}

// Empty reports whether the tile can be pruned
func (t *Tile[P]) Empty() bool {
	return t.markerCount == 0 && t.selectedCount == 0
}

// AddCounts adjusts the counters. Counts going negative means a remove
// without a matching insert, which the tree cannot recover from.
func (t *Tile[P]) AddCounts(markers, selected int) {
	t.markerCount += markers
	t.selectedCount += selected
	if t.markerCount < 0 || t.selectedCount < 0 || t.selectedCount > t.markerCount {
		panic("tiler: tile counts out of sync")
	}
}

// ChildrenEmpty reports whether the tile's children were never prepared
func (t *Tile[P]) ChildrenEmpty() bool {
	return t.children == nil
}

// PrepareForChildren allocates the child slots
func (t *Tile[P]) PrepareForChildren() {
	if t.children == nil {
		t.children = make([]*Tile[P], tileindex.MaxLinearIndex)
	}
}

// Child returns the child at linear index i, or nil
func (t *Tile[P]) Child(i int) *Tile[P] {
	if t.children == nil {
		return nil
	}
	return t.children[i]
}

// AddChild stores child at linear index i, preparing the slots if needed
func (t *Tile[P]) AddChild(i int, child *Tile[P]) {
	t.PrepareForChildren()
	t.children[i] = child
}

// Children returns the linear indices of the existing children
func (t *Tile[P]) Children() []int {
	var out []int
	for i, c := range t.children {
		if c != nil {
			out = append(out, i)
		}
	}
	return out
}

func (t *Tile[P]) detachChild(i int) *Tile[P] {
	if t.children == nil {
		return nil
	}
	c := t.children[i]
	t.children[i] = nil
	return c
}
