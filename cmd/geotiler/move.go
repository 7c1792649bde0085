package main

import (
	"fmt"
	"slices"

	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/tileindex"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMoveCmd() *cobra.Command {
	var (
		tiles    []string
		to       string
		snapKm   float64
		selected bool
	)
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move the markers of tiles to new coordinates",
		Long:  `Move every marker of the given tiles (or the current selection with --selected) and save the data file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseCoords(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if !selected && len(tiles) == 0 {
				return fmt.Errorf("give --tile or --selected")
			}
			var indices []tileindex.TileIndex
			for _, t := range tiles {
				idx, err := tileindex.Parse(t)
				if err != nil {
					return fmt.Errorf("--tile %q: %w", t, err)
				}
				indices = append(indices, idx)
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			var moving []models.ItemID
			if selected {
				indices = nil
				moving = s.tiler.SelectedMarkers()
			} else {
				for _, idx := range indices {
					moving = append(moving, s.tiler.TileMarkers(idx)...)
				}
				// nested tiles share markers
				slices.Sort(moving)
				moving = slices.Compact(moving)
			}
			if len(moving) == 0 {
				fmt.Println("Nothing to move")
				return nil
			}

			var snap *models.ItemID
			if snapKm > 0 {
				if id, ok := s.helper.SnapTargetNear(target, snapKm, moving); ok {
					snap = &id
					log.Info("snap_target", zap.Int64("id", int64(id)))
				}
			}
			if err := s.tiler.OnIndicesMoved(indices, target, snap); err != nil {
				return err
			}
			if err := s.Save(); err != nil {
				return fmt.Errorf("save: %w", err)
			}
			fmt.Printf("Moved %d markers, target tile %s\n", len(moving), tileindex.FromCoordinates(target, 8))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tiles, "tile", "t", nil, "Tile index like 3/0/2 (repeatable)")
	cmd.Flags().StringVar(&to, "to", "", "Target lat,lon")
	cmd.Flags().Float64Var(&snapKm, "snap-km", 0, "Snap to the nearest item within this distance")
	cmd.Flags().BoolVar(&selected, "selected", false, "Move the current selection")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
