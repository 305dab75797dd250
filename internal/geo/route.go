// Package geo turns stored positions into GeoJSON and renders them on
// self-contained Leaflet map pages.
package geo

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/maritimeviz/maritimeviz/internal/models"
)

// RouteFeatureCollection builds one LineString per vessel plus a Point per
// report. Positions are expected in time order; invalid positions are skipped.
func RouteFeatureCollection(positions []models.PositionReport) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	var order []int64
	lines := make(map[int64]orb.LineString)
	var points []*geojson.Feature

	for i := range positions {
		p := &positions[i]
		if !p.Valid() {
			continue
		}
		pt := orb.Point{p.X, p.Y}
		if _, seen := lines[p.MMSI]; !seen {
			order = append(order, p.MMSI)
		}
		lines[p.MMSI] = append(lines[p.MMSI], pt)

		f := geojson.NewFeature(pt)
		f.Properties["mmsi"] = p.MMSI
		f.Properties["sog"] = p.Sog
		f.Properties["cog"] = p.Cog
		f.Properties["heading"] = p.TrueHeading
		f.Properties["nav_status"] = p.NavStatus
		f.Properties["speed_color"] = SpeedColor(float64(p.Sog))
		if t := p.TagBlock.Time(); !t.IsZero() {
			f.Properties["time"] = t.Format(time.RFC3339)
		}
		points = append(points, f)
	}

	for _, mmsi := range order {
		ls := lines[mmsi]
		if len(ls) < 2 {
			continue
		}
		f := geojson.NewFeature(ls)
		f.Properties["mmsi"] = mmsi
		f.Properties["points"] = len(ls)
		fc.Append(f)
	}
	for _, f := range points {
		fc.Append(f)
	}
	return fc
}
