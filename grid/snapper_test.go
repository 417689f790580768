package grid

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapEndpoints(t *testing.T) {
	lines := []Edge{
		testLine("l1", polyline(0, 0, 100, 0)),
		testLine("l2", polyline(100, 0, 100, 100)),
	}
	nodes := []Node{
		testNode("bus1", -1, 0),
		testNode("bus2", 101, 1),
		testNode("bus3", 100, 100),
	}

	out, loops, err := SnapEndpoints(lines, nodes, Planar{})
	require.NoError(t, err)
	assert.Equal(t, 0, loops)
	require.Len(t, out, 2)

	l1 := out[0]
	assert.Equal(t, "bus1", l1.SourceBus)
	assert.Equal(t, "bus2", l1.SinkBus)
	assert.Equal(t, polyline(-1, 0, 0, 0, 100, 0, 101, 1), l1.Geometry)
	assert.Equal(t, orb.Point{-1, 0}, l1.Source)
	assert.Equal(t, orb.Point{101, 1}, l1.Sink)

	l2 := out[1]
	assert.Equal(t, "bus2", l2.SourceBus)
	assert.Equal(t, "bus3", l2.SinkBus)
	assert.Equal(t, polyline(101, 1, 100, 0, 100, 100), l2.Geometry, "end already on the bus is not repeated")

	assert.Equal(t, polyline(0, 0, 100, 0), lines[0].Geometry, "input is not modified")
}

func TestSnapEndpoints_DropsSelfLoops(t *testing.T) {
	lines := []Edge{
		testLine("short", polyline(0, 0, 3, 0)),
		testLine("long", polyline(0, 0, 500, 0)),
	}
	nodes := []Node{testNode("bus1", 1, 0), testNode("bus2", 500, 0)}

	out, loops, err := SnapEndpoints(lines, nodes, Planar{})
	require.NoError(t, err)
	assert.Equal(t, 1, loops)
	require.Len(t, out, 1)
	assert.Equal(t, "long", out[0].ID)
	for _, e := range out {
		assert.NotEqual(t, e.SourceBus, e.SinkBus)
	}
}

func TestSnapEndpoints_NoNodes(t *testing.T) {
	_, _, err := SnapEndpoints([]Edge{testLine("l", polyline(0, 0, 1, 0))}, nil, Planar{})
	assert.True(t, errors.Is(err, ErrNoCandidates))

	out, loops, err := SnapEndpoints(nil, nil, Planar{})
	assert.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, loops)
}
