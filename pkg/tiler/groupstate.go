package tiler

import "strings"

// GroupState describes the aggregated state of a group of markers. It holds
// three independent 2-bit fields, each None, Some or All.
type GroupState uint8

const (
	SelectedMask GroupState = 0x03 << 0
	SelectedNone GroupState = 0x00 << 0
	SelectedSome GroupState = 0x03 << 0
	SelectedAll  GroupState = 0x02 << 0

	FilteredPositiveMask GroupState = 0x03 << 2
	FilteredPositiveNone GroupState = 0x00 << 2
	FilteredPositiveSome GroupState = 0x03 << 2
	FilteredPositiveAll  GroupState = 0x02 << 2

	RegionSelectedMask GroupState = 0x03 << 4
	RegionSelectedNone GroupState = 0x00 << 4
	RegionSelectedSome GroupState = 0x03 << 4
	RegionSelectedAll  GroupState = 0x02 << 4

	// SelectedPartial is an alias used by the map widget
	SelectedPartial = SelectedSome
)

var stateMasks = [...]GroupState{SelectedMask, FilteredPositiveMask, RegionSelectedMask}

// Selected returns the selection field
func (s GroupState) Selected() GroupState {
	return s & SelectedMask
}

// Filtered returns the positive filter field
func (s GroupState) Filtered() GroupState {
	return s & FilteredPositiveMask
}

// Region returns the region selection field
func (s GroupState) Region() GroupState {
	return s & RegionSelectedMask
}

func (s GroupState) String() string {
	names := [...]string{"selected", "filtered", "region"}
	var parts []string
	for i, m := range stateMasks {
		v := s & m
		switch {
		case v == 0:
			continue
		case v == m:
			parts = append(parts, names[i]+":some")
		default:
			parts = append(parts, names[i]+":all")
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// SelectionState returns the selection field for count and selected markers
func SelectionState(count, selected int) GroupState {
	switch {
	case selected == 0:
		return SelectedNone
	case selected == count:
		return SelectedAll
	default:
		return SelectedSome
	}
}

// GroupStateComputer combines the states of single markers into the state
// of their group. The zero value is ready to use.
type GroupStateComputer struct {
	state GroupState
	seen  GroupState
}

// AddState merges the state of one more marker
func (c *GroupStateComputer) AddState(s GroupState) {
	for _, m := range stateMasks {
		c.addField(s, m)
	}
}

// AddSelectedState merges only the selection field
func (c *GroupStateComputer) AddSelectedState(s GroupState) {
	c.addField(s, SelectedMask)
}

// AddFilteredPositiveState merges only the positive filter field
func (c *GroupStateComputer) AddFilteredPositiveState(s GroupState) {
	c.addField(s, FilteredPositiveMask)
}

// AddRegionSelectedState merges only the region field
func (c *GroupStateComputer) AddRegionSelectedState(s GroupState) {
	c.addField(s, RegionSelectedMask)
}

func (c *GroupStateComputer) addField(s, m GroupState) {
	v := s & m
	if c.seen&m == 0 {
		c.seen |= m
		c.state = c.state&^m | v
		return
	}
	if c.state&m != v {
		c.state |= m
	}
}

// State returns the combined state
func (c *GroupStateComputer) State() GroupState {
	return c.state
}

// Clear resets the computer
func (c *GroupStateComputer) Clear() {
	c.state, c.seen = 0, 0
}
