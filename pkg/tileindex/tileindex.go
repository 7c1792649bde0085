// Package tileindex addresses the tiles of the marker quadtree.
//
// The world is split into a Tiling x Tiling grid at every level. A TileIndex
// is the path of linear cell indices from the root down to a tile; the index
// at level L is a prefix of the indices of all tiles below it.
package tileindex

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/hilbert"
	"github.com/kass/go-geo-tiler/pkg/models"
)

const (
	// Tiling is the number of cells per axis a tile is split into
	Tiling = 2
	// MaxLinearIndex is the number of children of a tile
	MaxLinearIndex = Tiling * Tiling
	// MaxLevel is the deepest level; markers closer than a level-MaxLevel
	// cell share a tile.
	MaxLevel = 20
)

var (
	ErrLevelTooDeep     = errors.New("tile index deeper than max level")
	ErrLinearIndexRange = errors.New("linear index out of range")
)

// TileIndex identifies a tile. The zero value is the root tile.
// It is comparable and can be used as a map key.
type TileIndex struct {
	path  [MaxLevel]uint8
	level uint8
}

// Root returns the index of the whole-world tile
func Root() TileIndex {
	return TileIndex{}
}

// FromPath builds an index from linear indices, one per level
func FromPath(linear ...int) (TileIndex, error) {
	var t TileIndex
	if len(linear) > MaxLevel {
		return t, fmt.Errorf("%w: %d levels", ErrLevelTooDeep, len(linear))
	}
	for _, l := range linear {
		if l < 0 || l >= MaxLinearIndex {
			return TileIndex{}, fmt.Errorf("%w: %d", ErrLinearIndexRange, l)
		}
		t.path[t.level] = uint8(l)
		t.level++
	}
	return t, nil
}

// MustFromPath is FromPath for constant paths; it panics on invalid input.
func MustFromPath(linear ...int) TileIndex {
	t, err := FromPath(linear...)
	if err != nil {
		panic(err)
	}
	return t
}

// FromCoordinates returns the index of the tile containing c at level.
// Levels above MaxLevel are clamped. Points on the north and east edges of
// the world belong to the last cell.
func FromCoordinates(c models.GeoCoordinates, level int) TileIndex {
	level = min(max(level, 0), MaxLevel)

	const cells = 1 << MaxLevel
	x := cellOf(c.Lon, models.MinLon, models.MaxLon, cells)
	y := cellOf(c.Lat, models.MinLat, models.MaxLat, cells)

	var t TileIndex
	for l := 0; l < level; l++ {
		shift := MaxLevel - 1 - l
		latIndex := (y >> shift) & 1
		lonIndex := (x >> shift) & 1
		t.path[l] = uint8(latIndex*Tiling + lonIndex)
	}
	t.level = uint8(level)
	return t
}

func cellOf(v, lo, hi float64, cells int) int {
	c := int(math.Floor((v - lo) / (hi - lo) * float64(cells)))
	return min(max(c, 0), cells-1)
}

// Parse reads the String form, e.g. "0/3/1". An empty string is the root.
func Parse(s string) (TileIndex, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return Root(), nil
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	linear := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return TileIndex{}, fmt.Errorf("invalid tile index %q: %w", s, err)
		}
		linear[i] = n
	}
	return FromPath(linear...)
}

// Level returns the depth of the tile; 0 is the root
func (t TileIndex) Level() int {
	return int(t.level)
}

// LinearIndex returns the child index taken at depth (0-based)
func (t TileIndex) LinearIndex(depth int) int {
	if depth < 0 || depth >= int(t.level) {
		panic(fmt.Sprintf("tileindex: depth %d out of range for level %d", depth, t.level))
	}
	return int(t.path[depth])
}

// LastIndex returns the linear index of the tile inside its parent
func (t TileIndex) LastIndex() int {
	return t.LinearIndex(int(t.level) - 1)
}

// LatIndex returns the row of the cell chosen at depth
func (t TileIndex) LatIndex(depth int) int {
	return t.LinearIndex(depth) / Tiling
}

// LonIndex returns the column of the cell chosen at depth
func (t TileIndex) LonIndex(depth int) int {
	return t.LinearIndex(depth) % Tiling
}

// At returns the index truncated to level. Deeper cells cannot be derived
// from the path alone, so a level beyond the index depth returns t unchanged.
func (t TileIndex) At(level int) TileIndex {
	if level >= int(t.level) {
		return t
	}
	level = max(level, 0)
	var r TileIndex
	copy(r.path[:level], t.path[:level])
	r.level = uint8(level)
	return r
}

// Parent returns the enclosing tile; the root is its own parent
func (t TileIndex) Parent() TileIndex {
	if t.level == 0 {
		return t
	}
	return t.At(int(t.level) - 1)
}

// Child returns the index of the given child tile
func (t TileIndex) Child(linear int) (TileIndex, error) {
	if t.level >= MaxLevel {
		return t, ErrLevelTooDeep
	}
	if linear < 0 || linear >= MaxLinearIndex {
		return t, fmt.Errorf("%w: %d", ErrLinearIndexRange, linear)
	}
	t.path[t.level] = uint8(linear)
	t.level++
	return t, nil
}

// IsAncestorOf reports whether o lies strictly below t
func (t TileIndex) IsAncestorOf(o TileIndex) bool {
	return t.level < o.level && o.At(int(t.level)) == t
}

// Path returns the linear indices from the root
func (t TileIndex) Path() []int {
	p := make([]int, t.level)
	for i := range p {
		p[i] = int(t.path[i])
	}
	return p
}

func (t TileIndex) String() string {
	var b strings.Builder
	for i := 0; i < int(t.level); i++ {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.Itoa(int(t.path[i])))
	}
	return b.String()
}

// XYZ returns the grid column (longitude), row (latitude) and level
func (t TileIndex) XYZ() (x, y uint32, z uint32) {
	for i := 0; i < int(t.level); i++ {
		x = x<<1 | uint32(t.path[i]%Tiling)
		y = y<<1 | uint32(t.path[i]/Tiling)
	}
	return x, y, uint32(t.level)
}

// Bounds returns the geographic area covered by the tile
func (t TileIndex) Bounds() models.BoundingBox {
	x, y, z := t.XYZ()
	n := float64(uint32(1) << z)
	lonStep := (models.MaxLon - models.MinLon) / n
	latStep := (models.MaxLat - models.MinLat) / n
	return models.BoundingBox{
		BottomLeft: models.GeoCoordinates{
			Lat: models.MinLat + float64(y)*latStep,
			Lon: models.MinLon + float64(x)*lonStep,
		},
		TopRight: models.GeoCoordinates{
			Lat: models.MinLat + float64(y+1)*latStep,
			Lon: models.MinLon + float64(x+1)*lonStep,
		},
	}
}

// Code returns a linear code unique across all levels. Tiles of one level are
// numbered along a Hilbert curve and follow all tiles of the shallower levels,
// so sorting by Code keeps neighbouring tiles together.
func (t TileIndex) Code() uint64 {
	x, y, z := t.XYZ()
	d, err := curves[z].MapInverse(int(x), int(y))
	if err != nil {
		panic(err)
	}
	tilesBefore := (uint64(1)<<(2*z) - 1) / 3
	return tilesBefore + uint64(d)
}

// curves holds the Hilbert curve of every level
var curves = func() (c [MaxLevel + 1]*hilbert.Hilbert) {
	for z := range c {
		h, err := hilbert.NewHilbert(1 << z)
		if err != nil {
			panic(err)
		}
		c[z] = h
	}
	return c
}()
