package geo

import (
	"embed"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrEmptyRoute is returned when a route has no features or is not valid GeoJSON.
	ErrEmptyRoute = errors.New("empty or invalid GeoJSON")
	// ErrNoCoordinates is returned by FitToData when no layer holds a coordinate.
	ErrNoCoordinates = errors.New("no valid coordinates")
)

// Map defaults.
const (
	DefaultZoom      = 2
	DefaultLayerName = "Route"
	fittedZoom       = 4
)

//go:embed templates/map.html.tmpl
var templateFS embed.FS

var mapTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html.tmpl"))

// Layer is a named GeoJSON overlay.
type Layer struct {
	Name string
	Data *geojson.FeatureCollection
}

// Map collects route layers and renders them as a Leaflet page.
type Map struct {
	Title  string
	Center orb.Point // lon, lat
	Zoom   int
	Layers []Layer
	Legend bool
}

// NewMap creates a map. A zoom of zero or less uses DefaultZoom.
func NewMap(center orb.Point, zoom int) *Map {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return &Map{Title: "maritimeviz", Center: center, Zoom: zoom, Legend: true}
}

// AddRoute adds a layer. An empty name uses DefaultLayerName. Nothing is
// added for an empty collection.
func (m *Map) AddRoute(fc *geojson.FeatureCollection, name string) error {
	if fc == nil || len(fc.Features) == 0 {
		return ErrEmptyRoute
	}
	if name == "" {
		name = DefaultLayerName
	}
	m.Layers = append(m.Layers, Layer{Name: name, Data: fc})
	return nil
}

// AddRouteJSON parses a GeoJSON FeatureCollection and adds it as a layer.
func (m *Map) AddRouteJSON(data []byte, name string) error {
	if len(data) == 0 {
		return ErrEmptyRoute
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyRoute, err)
	}
	return m.AddRoute(fc, name)
}

// FitToData centres the map on the mean position of all point features, or
// of every vertex when the layers hold no points.
func (m *Map) FitToData() error {
	var sumX, sumY float64
	n := 0
	add := func(p orb.Point) {
		sumX += p[0]
		sumY += p[1]
		n++
	}

	for _, l := range m.Layers {
		for _, f := range l.Data.Features {
			if p, ok := f.Geometry.(orb.Point); ok {
				add(p)
			}
		}
	}
	if n == 0 {
		for _, l := range m.Layers {
			for _, f := range l.Data.Features {
				eachVertex(f.Geometry, add)
			}
		}
	}
	if n == 0 {
		return ErrNoCoordinates
	}

	m.Center = orb.Point{sumX / float64(n), sumY / float64(n)}
	m.Zoom = fittedZoom
	return nil
}

type renderLayer struct {
	Name string                     `json:"name"`
	Data *geojson.FeatureCollection `json:"data"`
}

type renderData struct {
	Title  string
	Lat    float64
	Lon    float64
	Zoom   int
	Layers []renderLayer
	Legend template.HTML
}

// Render writes a self-contained HTML page.
func (m *Map) Render(w io.Writer) error {
	data := renderData{
		Title: m.Title,
		Lat:   m.Center.Lat(),
		Lon:   m.Center.Lon(),
		Zoom:  m.Zoom,
	}
	if m.Legend {
		data.Legend = SpeedLegendHTML()
	}
	for _, l := range m.Layers {
		data.Layers = append(data.Layers, renderLayer{Name: l.Name, Data: withPopups(l.Data)})
	}
	if err := mapTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render map: %w", err)
	}
	return nil
}

// withPopups copies fc, adding _title and _popup properties built by Info.
func withPopups(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		cp := *f
		cp.Properties = f.Properties.Clone()
		if cp.Properties == nil {
			cp.Properties = geojson.Properties{}
		}
		title, text := Info(f.Properties)
		cp.Properties["_title"] = html.EscapeString(title)
		cp.Properties["_popup"] = text
		out.Append(&cp)
	}
	return out
}

func eachVertex(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			eachVertex(ls, fn)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.Polygon:
		for _, r := range g {
			eachVertex(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			eachVertex(p, fn)
		}
	case orb.Collection:
		for _, c := range g {
			eachVertex(c, fn)
		}
	}
}
