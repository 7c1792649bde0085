package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kass/go-geo-tiler/pkg/itemtiler"
	"github.com/kass/go-geo-tiler/pkg/tiler"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const maxMapLevel = 6

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	// heat levels from sparse to dense
	heatStyles = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#F1FA8C")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")),
	}
	heatRunes    = []string{"·", "░", "▒", "▓", "█"}
	selectedRune = "◆"
)

func newMapCmd() *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Render a heat grid of marker counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if level < 1 || level > maxMapLevel {
				return fmt.Errorf("--level must be between 1 and %d", maxMapLevel)
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
			fmt.Println(renderMap(s.tiler, level, color))
			return nil
		},
	}
	cmd.Flags().IntVarP(&level, "level", "l", 4, "Tile level (1-6)")
	return cmd
}

type cell struct {
	count int
	state tiler.GroupState
}

func renderMap(t *itemtiler.ItemMarkerTiler, level int, color bool) string {
	n := 1 << level
	grid := make([][]cell, n)
	for i := range grid {
		grid[i] = make([]cell, n)
	}

	maxCount := 0
	for idx := range t.NonEmptyTiles(worldNW, worldSE, level) {
		x, y, _ := idx.XYZ()
		c := cell{count: t.TileMarkerCount(idx), state: t.TileGroupState(idx)}
		grid[y][x] = c
		maxCount = max(maxCount, c.count)
	}

	var b strings.Builder
	// north up
	for y := n - 1; y >= 0; y-- {
		for x := range n {
			b.WriteString(renderCell(grid[y][x], maxCount, color))
		}
		if y > 0 {
			b.WriteByte('\n')
		}
	}

	title := fmt.Sprintf("level %d, %d markers, max %d per tile", level, t.MarkerCount(), maxCount)
	if !color {
		return title + "\n" + b.String()
	}
	return titleStyle.Render(title) + "\n" + boxStyle.Render(b.String()) + "\n" +
		dimStyle.Render(fmt.Sprintf("%s selected  %s sparse .. %s dense", selectedRune, heatRunes[0], heatRunes[len(heatRunes)-1]))
}

func renderCell(c cell, maxCount int, color bool) string {
	if c.count == 0 {
		return " "
	}
	heat := 0
	if maxCount > 1 {
		heat = (c.count - 1) * len(heatRunes) / maxCount
	}
	heat = min(heat, len(heatRunes)-1)

	r := heatRunes[heat]
	if c.state.Selected() != tiler.SelectedNone {
		r = selectedRune
	}
	if !color {
		return r
	}
	return heatStyles[heat].Render(r)
}
