package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/kass/go-geo-tiler/pkg/itemmodel"
	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newGenerateCmd() *cobra.Command {
	var (
		numItems   int
		seed       int64
		numWorkers int
		imagePath  string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate random geotagged items",
		Long:  `Generate clustered random items and write them to the data file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Generating %d items using %d workers...\n", numItems, numWorkers)
			start := time.Now()
			items := generateItems(numItems, seed, numWorkers, imagePath)

			m, err := itemmodel.NewModel(items...)
			if err != nil {
				return err
			}
			if err := itemmodel.SaveToFile(dataFile, m, nil); err != nil {
				return fmt.Errorf("save items: %w", err)
			}
			log.Info("items_generated", zap.Int("count", len(items)), zap.Duration("elapsed", time.Since(start)))
			fmt.Printf("Saved %d items to %s\n", len(items), dataFile)
			return nil
		},
	}
	cmd.Flags().IntVarP(&numItems, "items", "n", 100000, "Number of items to generate")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed")
	cmd.Flags().IntVarP(&numWorkers, "workers", "w", runtime.NumCPU(), "Number of worker goroutines")
	cmd.Flags().StringVar(&imagePath, "image", "", "Image file assigned to every item")
	return cmd
}

// generateItems spreads n items over a few population centers, one in
// twenty without coordinates.
func generateItems(n int, seed int64, numWorkers int, imagePath string) []models.Item {
	items := make([]models.Item, n)
	numWorkers = max(min(numWorkers, n), 1)
	batchSize := n / numWorkers
	bar := progressbar.Default(int64(n), "generating")
	base := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for w := range numWorkers {
		startIdx := w * batchSize
		endIdx := startIdx + batchSize
		if w == numWorkers-1 {
			endIdx = n
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed + int64(start)))

			for i := start; i < end; i++ {
				it := models.Item{
					ID:           models.ItemID(i + 1),
					Path:         imagePath,
					Rating:       r.Intn(6),
					CreationDate: base.Add(time.Duration(r.Int63n(int64(10 * 365 * 24 * time.Hour)))),
				}
				if r.Intn(20) != 0 {
					c := randomCoords(r)
					it.Coordinates = &c
				}
				items[i] = it
			}
			_ = bar.Add(end - start)
		}(startIdx, endIdx)
	}
	wg.Wait()
	_ = bar.Finish()
	return items
}

func randomCoords(r *rand.Rand) models.GeoCoordinates {
	var lat, lon float64
	switch r.Intn(5) {
	case 0: // North America
		lat = r.Float64()*30 + 30
		lon = r.Float64()*60 - 120
	case 1: // Europe
		lat = r.Float64()*20 + 40
		lon = r.Float64()*40 - 10
	case 2: // Asia
		lat = r.Float64()*40 + 20
		lon = r.Float64()*80 + 60
	case 3: // South America
		lat = r.Float64()*40 - 50
		lon = r.Float64()*30 - 80
	default:
		lat = r.Float64()*180 - 90
		lon = r.Float64()*360 - 180
	}
	return models.NewGeoCoordinates(lat, lon)
}
