package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/maritimeviz/maritimeviz/internal/geo"
	"github.com/maritimeviz/maritimeviz/internal/store"
)

const dateLayout = "2006-01-02"

var (
	searchMMSIs   []int64
	searchStart   string
	searchEnd     string
	searchPolygon string
	searchLimit   int
	searchOffset  int

	trackStart string
	trackEnd   string

	mapOutput   string
	mapZoom     int
	mapOverlays []string

	exportFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search stored position reports",
	Long: `Prints matching position reports as JSON. Filters combine with AND.

Example:
  maritimeviz search --mmsi 477553000 --start 2024-01-01 --end 2024-01-31 \
    --polygon 'POLYGON((-123 47,-122 47,-122 48,-123 48,-123 47))'`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

var trackCmd = &cobra.Command{
	Use:   "track <mmsi>",
	Short: "Print a vessel track as GeoJSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrack,
}

var mapCmd = &cobra.Command{
	Use:   "map <mmsi>",
	Short: "Render a vessel track as a Leaflet HTML map",
	Long: `Renders the stored track of one vessel. GeoJSON files given with
--overlay, such as the output of "maritimeviz track", become extra layers.

Example:
  maritimeviz track 351759000 > other.geojson
  maritimeviz map 477553000 --overlay other.geojson -o both.html`,
	Args: cobra.ExactArgs(1),
	RunE: runMap,
}

var exportCmd = &cobra.Command{
	Use:   "export <table> <path>",
	Short: "Export a table to Parquet or CSV",
	Long: `Copies a whole table (ais_msg_123 or ais_msg_5) to a file.

Example:
  maritimeviz export ais_msg_123 positions.parquet`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	searchCmd.Flags().Int64SliceVar(&searchMMSIs, "mmsi", nil, "vessel MMSI (repeatable or comma separated)")
	searchCmd.Flags().StringVar(&searchStart, "start", "", "first day, YYYY-MM-DD")
	searchCmd.Flags().StringVar(&searchEnd, "end", "", "last day, YYYY-MM-DD (inclusive)")
	searchCmd.Flags().StringVar(&searchPolygon, "polygon", "", "WKT polygon the positions must fall in")
	searchCmd.Flags().IntVar(&searchLimit, "limit", store.DefaultSearchLimit, "maximum rows")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "rows to skip")

	for _, c := range []*cobra.Command{trackCmd, mapCmd} {
		c.Flags().StringVar(&trackStart, "start", "", "first day, YYYY-MM-DD")
		c.Flags().StringVar(&trackEnd, "end", "", "last day, YYYY-MM-DD (inclusive)")
	}
	mapCmd.Flags().StringVarP(&mapOutput, "output", "o", "map.html", "output HTML file")
	mapCmd.Flags().IntVar(&mapZoom, "zoom", 0, "initial zoom (0 fits the data)")
	mapCmd.Flags().StringSliceVar(&mapOverlays, "overlay", nil, "GeoJSON FeatureCollection file to add as a layer (repeatable)")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", store.FormatParquet, "parquet or csv")
}

func runSearch(cmd *cobra.Command, args []string) error {
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	positions, err := db.Search(cmd.Context(), store.SearchParams{
		MMSIs:      searchMMSIs,
		StartDate:  searchStart,
		EndDate:    searchEnd,
		PolygonWKT: searchPolygon,
		Limit:      searchLimit,
		Offset:     searchOffset,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), positions)
}

func runTrack(cmd *cobra.Command, args []string) error {
	mmsi, start, end, err := trackArgs(args[0])
	if err != nil {
		return err
	}
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	positions, err := db.Track(cmd.Context(), mmsi, start, end)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), geo.RouteFeatureCollection(positions))
}

func runMap(cmd *cobra.Command, args []string) error {
	mmsi, start, end, err := trackArgs(args[0])
	if err != nil {
		return err
	}
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	positions, err := db.Track(cmd.Context(), mmsi, start, end)
	if err != nil {
		return err
	}

	m := geo.NewMap(orb.Point{0, 0}, mapZoom)
	m.Title = fmt.Sprintf("Track of MMSI %d", mmsi)
	if err := m.AddRoute(geo.RouteFeatureCollection(positions), fmt.Sprintf("MMSI %d", mmsi)); err != nil {
		return fmt.Errorf("no positions for MMSI %d: %w", mmsi, err)
	}
	for _, path := range mapOverlays {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read overlay: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := m.AddRouteJSON(data, name); err != nil {
			return fmt.Errorf("overlay %s: %w", path, err)
		}
	}
	if err := m.FitToData(); err != nil {
		return err
	}
	if mapZoom > 0 {
		m.Zoom = mapZoom
	}

	f, err := os.Create(mapOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", mapOutput, err)
	}
	if err := m.Render(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Map with %d positions written to %s\n", len(positions), mapOutput)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Export(cmd.Context(), args[0], args[1], exportFormat); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", args[0], args[1])
	return nil
}

// trackArgs parses the mmsi argument and the --start/--end flags. The end
// day is inclusive.
func trackArgs(raw string) (mmsi int64, start, end time.Time, err error) {
	mmsi, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || mmsi <= 0 {
		return 0, start, end, fmt.Errorf("invalid MMSI %q", raw)
	}
	if trackStart != "" {
		if start, err = time.Parse(dateLayout, trackStart); err != nil {
			return 0, start, end, fmt.Errorf("invalid start date %q", trackStart)
		}
	}
	if trackEnd != "" {
		if end, err = time.Parse(dateLayout, trackEnd); err != nil {
			return 0, start, end, fmt.Errorf("invalid end date %q", trackEnd)
		}
		end = end.AddDate(0, 0, 1)
	}
	return mmsi, start, end, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
