package grid

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Projector converts between the input reference and the metric frame
// every distance in the pipeline is measured in.
type Projector interface {
	Forward(p orb.Point) orb.Point
	Inverse(p orb.Point) orb.Point
}

// CRS names accepted in the configuration.
const (
	CRSWGS84  = "wgs84"
	CRSPlanar = "planar"
)

// WebMercator projects lon/lat (EPSG:4326) to spherical pseudo-Mercator (EPSG:3857).
type WebMercator struct{}

func (WebMercator) Forward(p orb.Point) orb.Point { return project.WGS84.ToMercator(p) }
func (WebMercator) Inverse(p orb.Point) orb.Point { return project.Mercator.ToWGS84(p) }

// Planar is the identity projection for data that is already metric.
type Planar struct{}

func (Planar) Forward(p orb.Point) orb.Point { return p }
func (Planar) Inverse(p orb.Point) orb.Point { return p }

// ProjectorFor returns the projector for a configured CRS name.
func ProjectorFor(crs string) (Projector, error) {
	switch crs {
	case "", CRSWGS84:
		return WebMercator{}, nil
	case CRSPlanar:
		return Planar{}, nil
	}
	return nil, fmt.Errorf("unknown crs %q", crs)
}

// forwardLine projects a copy of ls; orb/project rewrites its argument in place.
func forwardLine(p Projector, ls orb.LineString) orb.LineString {
	return project.LineString(ls.Clone(), p.Forward)
}
