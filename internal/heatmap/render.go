package heatmap

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// RenderPNG rasterises the grid to a PNG file on a fixed metric pitch
// axis, so images from different runs overlay directly.
func RenderPNG(g *Grid, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(g, palette.Heat(12, 1))
	p.Add(hm)

	if err := p.Save(6*vg.Inch, 10*vg.Inch, path); err != nil {
		return fmt.Errorf("heatmap: save %s: %w", path, err)
	}
	return nil
}

// RenderHTML writes an interactive occupancy chart. Cells are addressed
// by metre bin on both axes; the visual map scales to the busiest cell.
func RenderHTML(g *Grid, title string, w io.Writer) error {
	cols, rows := g.Dims()

	xcats := make([]string, cols)
	for c := 0; c < cols; c++ {
		xcats[c] = fmt.Sprintf("%.0f", g.X(c))
	}
	ycats := make([]string, rows)
	for r := 0; r < rows; r++ {
		ycats[r] = fmt.Sprintf("%.0f", g.Y(r))
	}

	data := make([]opts.HeatMapData, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := g.Count(c, r); v > 0 {
				data = append(data, opts.HeatMapData{Value: [3]interface{}{c, r, v}})
			}
		}
	}

	max := g.Max()
	if max == 0 {
		max = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "600px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xcats, Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ycats, Name: "Y (m)"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(max),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	hm.AddSeries("occupancy", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		return fmt.Errorf("heatmap: render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
