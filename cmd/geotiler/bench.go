package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kass/go-geo-tiler/pkg/itemmodel"
	"github.com/kass/go-geo-tiler/pkg/itemtiler"
	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/rtree"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		numItems   int
		numQueries int
		numWorkers int
		level      int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the tiler and the region index",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := generateItems(numItems, 42, runtime.NumCPU(), "")
			r := rand.New(rand.NewSource(7))

			m, err := itemmodel.NewModel()
			if err != nil {
				return err
			}
			helper := itemmodel.NewHelper(m, itemmodel.NewSelection())
			tl, err := itemtiler.New(helper)
			if err != nil {
				return err
			}
			defer tl.Close()
			tl.PrepareTiles(worldNW, worldSE, level)

			start := time.Now()
			if err := m.Append(items...); err != nil {
				return err
			}
			report("incremental insert", numItems, time.Since(start))

			start = time.Now()
			tl.RegenerateTiles()
			report("regenerate", numItems, time.Since(start))

			start = time.Now()
			tl.PrepareTiles(worldNW, worldSE, level)
			tiles := 0
			for range tl.NonEmptyTiles(worldNW, worldSE, level) {
				tiles++
			}
			fmt.Printf("%-22s %d tiles at level %d in %v\n", "prepare + iterate", tiles, level, time.Since(start))

			start = time.Now()
			moves := min(numQueries, m.RowCount())
			for range moves {
				id := m.ItemAt(r.Intn(m.RowCount()))
				c := randomCoords(r)
				if err := m.SetCoordinates(id, &c); err != nil {
					return err
				}
			}
			report("coordinate change", moves, time.Since(start))

			index := rtree.NewGeoIndex()
			index.IndexItems(items)
			benchRegionQueries(index, numQueries, numWorkers)
			return nil
		},
	}
	cmd.Flags().IntVarP(&numItems, "items", "n", 100000, "Number of items")
	cmd.Flags().IntVarP(&numQueries, "queries", "q", 1000, "Number of queries and moves")
	cmd.Flags().IntVarP(&numWorkers, "workers", "w", runtime.NumCPU(), "Number of worker goroutines for region queries")
	cmd.Flags().IntVarP(&level, "level", "l", 8, "Tile level")
	return cmd
}

func report(name string, n int, elapsed time.Duration) {
	if n == 0 {
		fmt.Printf("%-22s nothing to do\n", name)
		return
	}
	fmt.Printf("%-22s %d ops in %v (%.0f ops/s, %v avg)\n",
		name, n, elapsed, float64(n)/elapsed.Seconds(), elapsed/time.Duration(n))
}

// benchRegionQueries runs random region selections against the R-tree from
// several workers.
func benchRegionQueries(index *rtree.GeoIndex, numQueries, numWorkers int) {
	numWorkers = max(min(numWorkers, numQueries), 1)
	boxes := make([]models.BoundingBox, numQueries)
	r := rand.New(rand.NewSource(11))
	for i := range boxes {
		centerLat := r.Float64()*170 - 85
		centerLon := r.Float64()*350 - 175
		size := r.Float64()*1.9 + 0.1
		boxes[i] = models.BoundingBox{
			BottomLeft: models.NewGeoCoordinates(centerLat-size/2, centerLon-size/2),
			TopRight:   models.NewGeoCoordinates(centerLat+size/2, centerLon+size/2),
		}
	}

	var totalResults, queryCount atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	perWorker := numQueries / numWorkers
	for w := range numWorkers {
		startIdx := w * perWorker
		endIdx := startIdx + perWorker
		if w == numWorkers-1 {
			endIdx = numQueries
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			local := 0
			for i := start; i < end; i++ {
				ids, err := index.QueryBox(boxes[i])
				if err != nil {
					continue
				}
				local += len(ids)
				queryCount.Add(1)
			}
			totalResults.Add(int64(local))
		}(startIdx, endIdx)
	}
	wg.Wait()

	report("region query", int(queryCount.Load()), time.Since(start))
	if n := queryCount.Load(); n > 0 {
		fmt.Printf("%-22s %.1f markers per region\n", "", float64(totalResults.Load())/float64(n))
	}
}
