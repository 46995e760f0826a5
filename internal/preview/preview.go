// Package preview renders captured point clouds for humans: a small PNG
// thumbnail stored with each saved scan, and an interactive top-down
// scatter chart served by the debug monitor.
//
// Both views project onto the horizontal plane (world X against Z) since
// the camera's Y axis points up.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/depthscan/internal/pointcloud"
	"github.com/banshee-data/depthscan/internal/pointcloud/ply"
)

// ErrEmpty is returned when there are no points to draw.
var ErrEmpty = errors.New("preview: no points")

// DefaultMaxPoints caps how many points a preview draws.
const DefaultMaxPoints = 20000

// stride returns the step that keeps n points under max.
func stride(n, max int) int {
	if max <= 0 || n <= max {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(max)))
}

// Thumbnail renders a size x size PNG of obj seen from above, each point
// drawn in its own color. Objects without colors are drawn in grey.
func Thumbnail(obj pointcloud.Object3D, size int) ([]byte, error) {
	if !obj.HasVertices() {
		return nil, ErrEmpty
	}
	if size <= 0 {
		return nil, fmt.Errorf("preview: thumbnail size must be positive, got %d", size)
	}

	step := stride(len(obj.Vertices), DefaultMaxPoints)
	xys := make(plotter.XYs, 0, len(obj.Vertices)/step+1)
	idx := make([]int, 0, cap(xys))
	for i := 0; i < len(obj.Vertices); i += step {
		v := obj.Vertices[i]
		xys = append(xys, plotter.XY{X: float64(v[0]), Y: float64(-v[2])})
		idx = append(idx, i)
	}

	p := plot.New()
	p.HideAxes()
	p.BackgroundColor = color.Black
	p.X.Padding, p.Y.Padding = 0, 0
	squareRange(p, xys)

	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	radius := vg.Points(math.Max(0.5, float64(size)/256))
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		c := color.RGBA{R: 160, G: 160, B: 160, A: 255}
		if obj.HasColors() {
			rgb := obj.Colors[idx[i]]
			c = color.RGBA{R: ply.ColorByte(rgb[0]), G: ply.ColorByte(rgb[1]), B: ply.ColorByte(rgb[2]), A: 255}
		}
		return draw.GlyphStyle{Color: c, Radius: radius, Shape: draw.CircleGlyph{}}
	}
	p.Add(s)

	// PNG canvases render at 96 dpi.
	side := vg.Length(size) * vg.Inch / 96
	wt, err := p.WriterTo(side, side, "png")
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("preview: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// squareRange sets equal axis spans centred on the points so the
// projection keeps its aspect ratio.
func squareRange(p *plot.Plot, xys plotter.XYs) {
	xmin, xmax, ymin, ymax := plotter.XYRange(xys)
	half := math.Max(xmax-xmin, ymax-ymin)/2 + 0.05
	cx, cy := (xmin+xmax)/2, (ymin+ymax)/2
	p.X.Min, p.X.Max = cx-half, cx+half
	p.Y.Min, p.Y.Max = cy-half, cy+half
}

// ScatterOptions configures ScatterHTML.
type ScatterOptions struct {
	Title      string
	Subtitle   string
	MaxPoints  int    // default: DefaultMaxPoints
	AssetsHost string // go-echarts asset prefix (default: go-echarts CDN)
}

// ScatterHTML writes a self-contained HTML page with a top-down scatter of
// particles, colored by height.
func ScatterHTML(w io.Writer, ps []pointcloud.Particle, o ScatterOptions) error {
	if len(ps) == 0 {
		return ErrEmpty
	}
	if o.MaxPoints <= 0 {
		o.MaxPoints = DefaultMaxPoints
	}
	if o.Title == "" {
		o.Title = "Point cloud"
	}

	step := stride(len(ps), o.MaxPoints)
	data := make([]opts.ScatterData, 0, len(ps)/step+1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	pad := 0.0
	for i := 0; i < len(ps); i += step {
		p := ps[i].Position
		x, z, y := float64(p[0]), float64(-p[2]), float64(p[1])
		data = append(data, opts.ScatterData{Value: []interface{}{x, z, y}})
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		pad = math.Max(pad, math.Max(math.Abs(x), math.Abs(z)))
	}
	pad = math.Ceil(pad + 0.5)
	if maxY <= minY {
		maxY = minY + 1
	}

	subtitle := o.Subtitle
	if subtitle == "" {
		subtitle = fmt.Sprintf("points=%d stride=%d", len(data), step)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: o.Title, Theme: "dark", Width: "900px", Height: "900px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "-Z (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minY),
			Max:        float32(maxY),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("preview: render chart: %w", err)
	}
	return nil
}
