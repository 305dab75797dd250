package geo

import (
	"fmt"
	"html/template"
	"strings"
)

// SpeedBand is a half-open [Min, Max) speed-over-ground range in knots.
type SpeedBand struct {
	Min   float64
	Max   float64 // 0 means unbounded
	Color string
}

// SpeedBands are the legend bands, slowest first.
var SpeedBands = []SpeedBand{
	{0, 2, "green"},
	{2, 10, "blue"},
	{10, 25, "orange"},
	{25, 30, "red"},
	{30, 0, "purple"},
}

// Label renders the band as "2-10" or "30+".
func (b SpeedBand) Label() string {
	if b.Max == 0 {
		return fmt.Sprintf("%g+", b.Min)
	}
	return fmt.Sprintf("%g-%g", b.Min, b.Max)
}

// SpeedColor returns the legend colour for a speed over ground in knots.
// Negative speeds are treated as stopped.
func SpeedColor(sog float64) string {
	for _, b := range SpeedBands {
		if b.Max == 0 || sog < b.Max {
			return b.Color
		}
	}
	return SpeedBands[len(SpeedBands)-1].Color
}

// SpeedLegendHTML returns a fixed-position legend box for the map page.
func SpeedLegendHTML() template.HTML {
	var sb strings.Builder
	sb.WriteString(`<div class="speed-legend"><b>Speed Legend (knots)</b><br>`)
	for _, b := range SpeedBands {
		fmt.Fprintf(&sb,
			`<i style="background:%s;width:20px;height:10px;display:inline-block;"></i> %s <br>`,
			b.Color, b.Label())
	}
	sb.WriteString(`</div>`)
	return template.HTML(sb.String())
}
