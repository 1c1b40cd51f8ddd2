package util

import (
	"fmt"
	"io"

	"events-cache/models"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// RenderGeoIndexMap writes an HTML page plotting every point of a window's
// geo index on a world map.
func RenderGeoIndexMap(w io.Writer, date string, points []models.GeoPoint) error {
	data := make([]opts.GeoData, 0, len(points))
	for _, p := range points {
		data = append(data, opts.GeoData{Name: p.ID, Value: []float64{p.Lon, p.Lat}})
	}

	geo := charts.NewGeo()
	geo.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Events Geo Index",
			Width:     "1000px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Events on %s", date),
			Subtitle: fmt.Sprintf("%d indexed events", len(points)),
		}),
		charts.WithGeoComponentOpts(opts.GeoComponent{
			Map:    "world",
			Silent: opts.Bool(true),
		}),
	)

	geo.AddSeries("Events", types.ChartScatter, data,
		charts.WithLabelOpts(opts.Label{
			Show:      opts.Bool(false),
			Formatter: "{b}",
		}),
	)

	if err := geo.Render(w); err != nil {
		return fmt.Errorf("failed to render geo index map: %w", err)
	}
	return nil
}
