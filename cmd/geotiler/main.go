package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kass/go-geo-tiler/internal/logger"
	"github.com/kass/go-geo-tiler/pkg/itemmodel"
	"github.com/kass/go-geo-tiler/pkg/itemtiler"
	"github.com/kass/go-geo-tiler/pkg/models"
	"github.com/kass/go-geo-tiler/pkg/thumbnail"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dataFile     string
	verbose      bool
	thumbWorkers int

	log *zap.Logger

	worldNW = models.NewGeoCoordinates(models.MaxLat, models.MinLon)
	worldSE = models.NewGeoCoordinates(models.MinLat, models.MaxLon)
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "geotiler",
		Short: "Quadtree marker tiling for geotagged items",
		Long:  `Generate geotagged items, cluster them into map tiles and inspect, move and batch process them.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose && os.Getenv("LOG_LEVEL") == "" {
				os.Setenv("LOG_LEVEL", "debug")
			}
			log = logger.Setup()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&dataFile, "file", "f", envString("GEOTILER_FILE", "geo_items.gob"), "Item data file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().IntVar(&thumbWorkers, "thumb-workers", envInt("GEOTILER_THUMB_WORKERS", 2), "Thumbnail loader workers")

	rootCmd.AddCommand(
		newGenerateCmd(),
		newTilesCmd(),
		newMapCmd(),
		newMoveCmd(),
		newBenchCmd(),
		newBatchCmd(),
	)
	return rootCmd
}

func main() {
	// .env only provides defaults; a missing file is fine
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", key, v, err)
		return def
	}
	return n
}

// session is a loaded data file with a tiler on top
type session struct {
	model  *itemmodel.Model
	sel    *itemmodel.Selection
	helper *itemmodel.Helper
	tiler  *itemtiler.ItemMarkerTiler
	thumbs *thumbnail.Loader
}

func openSession() (*session, error) {
	m, sel, err := itemmodel.LoadFromFile(dataFile)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dataFile, err)
	}
	cfg := thumbnail.DefaultConfig()
	cfg.Workers = thumbWorkers
	thumbs := thumbnail.NewLoader(m.ImagePath, cfg, log)

	helper := itemmodel.NewHelper(m, sel,
		itemmodel.WithThumbnails(thumbs),
		itemmodel.WithHelperLogger(log))
	tl, err := itemtiler.New(helper, itemtiler.WithLogger(log))
	if err != nil {
		thumbs.Close()
		return nil, err
	}
	log.Debug("session_opened", zap.String("file", dataFile), zap.Int("items", m.RowCount()))
	return &session{model: m, sel: sel, helper: helper, tiler: tl, thumbs: thumbs}, nil
}

func (s *session) Close() {
	s.tiler.Close()
	s.thumbs.Close()
}

// waitThumbnails delivers finished thumbnails to the tiler until want have
// arrived, nothing is loading any more or timeout passes.
func (s *session) waitThumbnails(want int, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	n := 0
	for {
		n += s.helper.DeliverThumbnails()
		if n >= want || time.Now().After(deadline) {
			return n
		}
		if s.thumbs.Pending() == 0 {
			return n + s.helper.DeliverThumbnails()
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (s *session) Save() error {
	return itemmodel.SaveToFile(dataFile, s.model, s.sel)
}

// parseCoords parses "lat,lon"
func parseCoords(s string) (models.GeoCoordinates, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return models.GeoCoordinates{}, fmt.Errorf("want lat,lon, got %q", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return models.GeoCoordinates{}, fmt.Errorf("latitude: %w", err)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return models.GeoCoordinates{}, fmt.Errorf("longitude: %w", err)
	}
	c := models.NewGeoCoordinates(la, lo)
	if !c.Valid() {
		return c, fmt.Errorf("coordinates %v out of range", c)
	}
	return c, nil
}

// parseBox parses "south,west,north,east"
func parseBox(s string) (models.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.BoundingBox{}, fmt.Errorf("want south,west,north,east, got %q", s)
	}
	bl, err := parseCoords(parts[0] + "," + parts[1])
	if err != nil {
		return models.BoundingBox{}, err
	}
	tr, err := parseCoords(parts[2] + "," + parts[3])
	if err != nil {
		return models.BoundingBox{}, err
	}
	return models.BoundingBox{BottomLeft: bl, TopRight: tr}, nil
}
