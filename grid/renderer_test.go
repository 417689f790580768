package grid

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
)

func renderSample(t *testing.T) *Result {
	t.Helper()
	res, err := buildSample(t, planarConfig())
	if err != nil {
		t.Fatalf("build sample: %v", err)
	}
	return res
}

// ---------------------------------------------------------------------------
// RasterRenderer
// ---------------------------------------------------------------------------

func TestRasterRenderer_Render(t *testing.T) {
	r := NewRasterRenderer(renderSample(t), Planar{})
	r.Width, r.Height = 400, 300

	img := r.Render()
	if got := img.Bounds(); got.Dx() != 400 || got.Dy() != 300 {
		t.Fatalf("image bounds = %v, want 400x300", got)
	}

	if got := img.RGBAAt(399, 299); got != backgroundColor {
		t.Errorf("corner pixel = %v, want background %v", got, backgroundColor)
	}

	// The bus at the origin sits on the lower-left padding corner.
	if got := img.RGBAAt(r.Padding, 300-r.Padding); got != busColor {
		t.Errorf("bus pixel = %v, want %v", got, busColor)
	}
}

func TestRasterRenderer_NilResult(t *testing.T) {
	r := NewRasterRenderer(nil, Planar{})
	r.Width, r.Height = 64, 64
	img := r.Render()
	if got := img.RGBAAt(32, 32); got != backgroundColor {
		t.Errorf("empty render pixel = %v, want background", got)
	}
}

func TestRasterRenderer_SavePNG(t *testing.T) {
	r := NewRasterRenderer(renderSample(t), Planar{})
	r.Width, r.Height = 200, 100

	path := filepath.Join(t.TempDir(), "preview.png")
	if err := r.SavePNG(path); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("bounds = %v, want 200x100", b)
	}
}

func TestBusRadius(t *testing.T) {
	tests := map[int]int{0: 2, 1: 2, 2: 3, 4: 4, 9: 5}
	for count, want := range tests {
		if got := busRadius(count); got != want {
			t.Errorf("busRadius(%d) = %d, want %d", count, got, want)
		}
	}
}

func TestMapView_FitsDrawingArea(t *testing.T) {
	res := &Result{Network: Network{
		Nodes: []Node{testNode("a", 0, 0), testNode("b", 100, 50)},
	}}
	v := newMapView(res, Planar{}, 220, 220, 10)

	if v.scale != 2 {
		t.Fatalf("scale = %v, want 2", v.scale)
	}
	x, y := v.toImage(orb.Point{100, 50})
	if x != 210 || y != 110 {
		t.Errorf("toImage = (%d, %d), want (210, 110)", x, y)
	}
}

func TestDrawableLine_Simplify(t *testing.T) {
	ls := polyline(0, 0, 50, 0.1, 100, 0)
	if got := drawableLine(ls, Planar{}, 0); len(got) != 3 {
		t.Errorf("no tolerance kept %d points, want 3", len(got))
	}
	if got := drawableLine(ls, Planar{}, 1); len(got) != 2 {
		t.Errorf("tolerance 1 kept %d points, want 2", len(got))
	}
}

// ---------------------------------------------------------------------------
// NetworkRenderer
// ---------------------------------------------------------------------------

func TestNetworkRenderer_SVG(t *testing.T) {
	r := NewNetworkRenderer(renderSample(t), Planar{})

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Fatal("output is not an SVG document")
	}
	if !strings.Contains(out, "<path") {
		t.Error("SVG has no paths")
	}
}

func TestNetworkRenderer_PNG(t *testing.T) {
	r := NewNetworkRenderer(renderSample(t), Planar{})
	r.Width, r.Height = 200, 150

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode PNG: %v", err)
	}
	base := img.Bounds()
	if base.Dx() == 0 || base.Dy() == 0 {
		t.Fatalf("PNG has zero dimensions: %v", base)
	}

	r.Resolution = canvas.DPMM(2)
	buf.Reset()
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG at 2 dpmm: %v", err)
	}
	img, err = png.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode PNG: %v", err)
	}
	if dx := img.Bounds().Dx(); dx < 2*base.Dx()-1 || dx > 2*base.Dx()+1 {
		t.Errorf("width at 2 dpmm = %d, want about %d", dx, 2*base.Dx())
	}
}

func TestNetworkRenderer_NilResult(t *testing.T) {
	r := NewNetworkRenderer(nil, Planar{})
	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("empty output for an empty network")
	}
}
