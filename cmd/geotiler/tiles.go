package main

import (
	"fmt"
	"image"
	"time"

	"github.com/kass/go-geo-tiler/pkg/itemmodel"
	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/spf13/cobra"
)

func newTilesCmd() *cobra.Command {
	var (
		level        int
		nw, se       string
		sortName     string
		selectRegion string
		limit        int
		waitThumbs   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "List the non-empty tiles of a viewport",
		RunE: func(cmd *cobra.Command, args []string) error {
			upperLeft, err := parseCoords(nw)
			if err != nil {
				return fmt.Errorf("--nw: %w", err)
			}
			lowerRight, err := parseCoords(se)
			if err != nil {
				return fmt.Errorf("--se: %w", err)
			}
			sortKey, err := itemmodel.ParseSortKey(sortName)
			if err != nil {
				return err
			}

			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			if selectRegion != "" {
				box, err := parseBox(selectRegion)
				if err != nil {
					return fmt.Errorf("--select-region: %w", err)
				}
				s.tiler.SetRegionSelection(box)
			}

			queued := make(map[models.ItemID]struct{})
			s.tiler.PrepareTiles(upperLeft, lowerRight, level)
			fmt.Printf("%-24s %8s %8s  %-28s %s\n", "TILE", "COUNT", "SELECTED", "STATE", "REPRESENTATIVE")
			n := 0
			for idx := range s.tiler.NonEmptyTiles(upperLeft, lowerRight, level) {
				if limit > 0 && n == limit {
					fmt.Println("...")
					break
				}
				rep := "-"
				if id, ok := s.tiler.TileRepresentativeMarker(idx, sortKey); ok {
					rep = fmt.Sprint(id)
					if waitThumbs > 0 {
						if _, cached := s.tiler.PixmapFromRepresentative(id, image.Pt(64, 64)); !cached {
							queued[id] = struct{}{}
						}
					}
				}
				fmt.Printf("%-24s %8d %8d  %-28s %s\n",
					idx, s.tiler.TileMarkerCount(idx), s.tiler.TileSelectedCount(idx),
					s.tiler.TileGroupState(idx), rep)
				n++
			}
			fmt.Printf("\n%d markers, global state %s\n", s.tiler.MarkerCount(), s.tiler.GlobalGroupState())
			if len(queued) > 0 {
				got := s.waitThumbnails(len(queued), waitThumbs)
				fmt.Printf("%d of %d representative thumbnails loaded\n", got, len(queued))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&level, "level", "l", 4, "Tile level")
	cmd.Flags().StringVar(&nw, "nw", "90,-180", "North-west viewport corner lat,lon")
	cmd.Flags().StringVar(&se, "se", "-90,180", "South-east viewport corner lat,lon")
	cmd.Flags().StringVar(&sortName, "sort", "youngest", "Representative order: youngest, oldest or rating")
	cmd.Flags().StringVar(&selectRegion, "select-region", "", "Region selection south,west,north,east")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum tiles to print (0 for all)")
	cmd.Flags().DurationVar(&waitThumbs, "wait-thumbs", 0, "Load representative thumbnails and wait up to this long")
	return cmd
}
