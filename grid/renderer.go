package grid

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// KindColors maps each edge kind to its drawing color.
var KindColors = map[EdgeKind]color.RGBA{
	EdgeSurveyed:          {0, 0, 139, 255},   // Dark blue
	EdgeIsolatedConnector: {255, 140, 0, 255}, // Dark orange
	EdgeSubgraphConnector: {220, 20, 60, 255}, // Crimson
}

var (
	busColor         = color.RGBA{20, 20, 20, 255}
	unconnectedColor = color.RGBA{150, 150, 150, 255}
	backgroundColor  = color.RGBA{250, 250, 250, 255}
)

// mapView fits the projected network into a width x height drawing area.
type mapView struct {
	bound   orb.Bound
	scale   float64
	padding float64
	height  float64
}

// newMapView computes the projected bound of the network and the scale that
// fits it inside the drawing area.
func newMapView(res *Result, proj Projector, width, height int, padding float64) mapView {
	var pts []orb.Point
	for _, n := range res.Network.Nodes {
		pts = append(pts, proj.Forward(n.Location))
	}
	for _, n := range res.Diagnostics.UnconnectedNodes {
		pts = append(pts, proj.Forward(n.Location))
	}
	for _, e := range res.Network.Edges {
		for _, p := range e.Geometry {
			pts = append(pts, proj.Forward(p))
		}
	}

	v := mapView{scale: 1, padding: padding, height: float64(height)}
	if len(pts) == 0 {
		return v
	}
	v.bound = orb.MultiPoint(pts).Bound()

	dx, dy := v.bound.Max[0]-v.bound.Min[0], v.bound.Max[1]-v.bound.Min[1]
	availW, availH := float64(width)-2*padding, float64(height)-2*padding
	switch {
	case dx > 0 && dy > 0:
		v.scale = math.Min(availW/dx, availH/dy)
	case dx > 0:
		v.scale = availW / dx
	case dy > 0:
		v.scale = availH / dy
	}
	return v
}

// toCanvas maps a projected point into y-up drawing coordinates.
func (v mapView) toCanvas(p orb.Point) (float64, float64) {
	return (p[0]-v.bound.Min[0])*v.scale + v.padding, (p[1]-v.bound.Min[1])*v.scale + v.padding
}

// toImage maps a projected point into y-down pixel coordinates.
func (v mapView) toImage(p orb.Point) (int, int) {
	x, y := v.toCanvas(p)
	return int(math.Round(x)), int(math.Round(v.height - y))
}

// drawableLine projects ls and simplifies it when tolerance is positive.
func drawableLine(ls orb.LineString, proj Projector, tolerance float64) orb.LineString {
	pl := forwardLine(proj, ls)
	if tolerance <= 0 || len(pl) < 3 {
		return pl
	}
	if s, ok := simplify.DouglasPeucker(tolerance).Simplify(pl).(orb.LineString); ok && len(s) >= 2 {
		return s
	}
	return pl
}

// RasterRenderer draws a quick bitmap preview of a network with a legend.
type RasterRenderer struct {
	Result   *Result
	Proj     Projector
	Width    int
	Height   int
	Padding  int
	Simplify float64 // Douglas-Peucker tolerance in projected units; 0 disables
}

// NewRasterRenderer creates a raster renderer with default settings
func NewRasterRenderer(res *Result, proj Projector) *RasterRenderer {
	return &RasterRenderer{
		Result:  res,
		Proj:    proj,
		Width:   1600,
		Height:  1200,
		Padding: 30,
	}
}

// Render creates the preview image
func (r *RasterRenderer) Render() *image.RGBA {
	width, height := r.Width, r.Height
	if width <= 0 || height <= 0 {
		width, height = 1, 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, backgroundColor)
		}
	}
	if r.Result == nil {
		return img
	}

	v := newMapView(r.Result, r.Proj, width, height, float64(r.Padding))

	// Surveyed lines first so connectors stay visible on top
	for _, kind := range []EdgeKind{EdgeSurveyed, EdgeIsolatedConnector, EdgeSubgraphConnector} {
		c := KindColors[kind]
		for _, e := range r.Result.Network.Edges {
			if e.Kind != kind {
				continue
			}
			pl := drawableLine(e.Geometry, r.Proj, r.Simplify)
			for i := 0; i+1 < len(pl); i++ {
				x0, y0 := v.toImage(pl[i])
				x1, y1 := v.toImage(pl[i+1])
				drawLine(img, x0, y0, x1, y1, c)
			}
		}
	}

	for _, n := range r.Result.Network.Nodes {
		x, y := v.toImage(r.Proj.Forward(n.Location))
		drawCircle(img, x, y, busRadius(n.MergeCount), busColor)
	}
	for _, n := range r.Result.Diagnostics.UnconnectedNodes {
		x, y := v.toImage(r.Proj.Forward(n.Location))
		drawSquare(img, x, y, 5, unconnectedColor)
	}

	r.drawLegend(img)
	return img
}

// SavePNG saves the preview image to a file
func (r *RasterRenderer) SavePNG(path string) error {
	img := r.Render()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}

func (r *RasterRenderer) drawLegend(img *image.RGBA) {
	s := Summarize(r.Result)
	entries := []struct {
		label string
		c     color.RGBA
	}{
		{fmt.Sprintf("lines (%d)", s.Lines-len(r.Result.Diagnostics.IsolatedConnectors)-s.SubgraphLines), KindColors[EdgeSurveyed]},
		{fmt.Sprintf("isolated connectors (%d)", len(r.Result.Diagnostics.IsolatedConnectors)), KindColors[EdgeIsolatedConnector]},
		{fmt.Sprintf("subgraph connectors (%d)", s.SubgraphLines), KindColors[EdgeSubgraphConnector]},
		{fmt.Sprintf("buses (%d)", s.Buses), busColor},
		{fmt.Sprintf("unconnected (%d)", s.UnconnectedBuses), unconnectedColor},
	}

	y := 15
	for _, e := range entries {
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-10, e.c)
			}
		}
		drawText(img, 28, y, e.label, color.RGBA{0, 0, 0, 255})
		y += 18
	}
	drawText(img, 10, y+4, fmt.Sprintf("%.1f km", s.TotalKM), color.RGBA{0, 0, 0, 255})
}

func busRadius(mergeCount int) int {
	if mergeCount < 1 {
		mergeCount = 1
	}
	return 2 + int(math.Log2(float64(mergeCount)))
}

// drawLine draws a 1px line by stepping along its longer axis
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := x1-x0, y1-y0
	steps := int(math.Max(math.Abs(float64(dx)), math.Abs(float64(dy))))
	if steps == 0 {
		setPixel(img, x0, y0, c)
		return
	}
	for i := 0; i <= steps; i++ {
		x := x0 + int(math.Round(float64(dx*i)/float64(steps)))
		y := y0 + int(math.Round(float64(dy*i)/float64(steps)))
		setPixel(img, x, y, c)
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setPixel(img, cx+dx, cy+dy, c)
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			setPixel(img, cx+dx, cy+dy, c)
		}
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{x, y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
