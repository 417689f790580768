package grid

import (
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// NetworkRenderer renders a built network as vector graphics. Canvas units
// are millimetres; the network is scaled to fit Width x Height.
type NetworkRenderer struct {
	Result     *Result
	Proj       Projector
	Width      float64
	Height     float64
	Padding    float64
	Resolution canvas.Resolution // Resolution for PNG output (default: 1 px per mm)
	Simplify   float64           // Douglas-Peucker tolerance in projected units; 0 disables
}

// NewNetworkRenderer creates a vector renderer with default settings
func NewNetworkRenderer(res *Result, proj Projector) *NetworkRenderer {
	return &NetworkRenderer{
		Result:     res,
		Proj:       proj,
		Width:      1600,
		Height:     1200,
		Padding:    40,
		Resolution: canvas.DPMM(1.0),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the network as an SVG to the provided writer
func (r *NetworkRenderer) RenderToSVG(w io.Writer) error {
	svgRenderer := svg.New(w, r.Width, r.Height, nil)
	r.renderToCanvas(svgRenderer)
	return svgRenderer.Close()
}

// RenderToPNG writes the network as a PNG to the provided writer
func (r *NetworkRenderer) RenderToPNG(w io.Writer) error {
	rast := rasterizer.New(r.Width, r.Height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast)
	return png.Encode(w, rast)
}

func (r *NetworkRenderer) renderToCanvas(renderer canvasRenderer) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.Width, r.Height), bgStyle, canvas.Identity)
	if r.Result == nil {
		return
	}

	v := newMapView(r.Result, r.Proj, int(r.Width), int(r.Height), r.Padding)

	for _, kind := range []EdgeKind{EdgeSurveyed, EdgeIsolatedConnector, EdgeSubgraphConnector} {
		style := edgeStyle(kind)
		for _, e := range r.Result.Network.Edges {
			if e.Kind != kind {
				continue
			}
			pl := drawableLine(e.Geometry, r.Proj, r.Simplify)
			cp := &canvas.Path{}
			for i, p := range pl {
				cx, cy := v.toCanvas(p)
				if i == 0 {
					cp.MoveTo(cx, cy)
				} else {
					cp.LineTo(cx, cy)
				}
			}
			renderer.RenderPath(cp, style, canvas.Identity)
		}
	}

	busStyle := canvas.DefaultStyle
	busStyle.Fill = canvas.Paint{Color: busColor}
	busStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, n := range r.Result.Network.Nodes {
		cx, cy := v.toCanvas(r.Proj.Forward(n.Location))
		radius := 1.5 + math.Log2(math.Max(1, float64(n.MergeCount)))
		renderer.RenderPath(canvas.Circle(radius).Translate(cx, cy), busStyle, canvas.Identity)
	}

	hollowStyle := canvas.DefaultStyle
	hollowStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	hollowStyle.Stroke = canvas.Paint{Color: unconnectedColor}
	hollowStyle.StrokeWidth = 0.8
	for _, n := range r.Result.Diagnostics.UnconnectedNodes {
		cx, cy := v.toCanvas(r.Proj.Forward(n.Location))
		renderer.RenderPath(canvas.Circle(3).Translate(cx, cy), hollowStyle, canvas.Identity)
	}
}

func edgeStyle(kind EdgeKind) canvas.Style {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: canvas.Transparent}
	style.Stroke = canvas.Paint{Color: KindColors[kind]}
	style.StrokeWidth = 1.2
	if kind != EdgeSurveyed {
		style.StrokeWidth = 1.0
		style.Dashes = []float64{6.0, 4.0}
	}
	return style
}
