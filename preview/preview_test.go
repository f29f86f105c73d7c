package preview

import (
	"context"
	"strings"
	"testing"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/geodesy"
	"github.com/border-inspection/tourgen/tour"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanvas(t *testing.T) {
	c := NewCanvas(2, 1)
	c.Line(0, 0, 3, 0)
	assert.Equal(t, [][]rune{{'⠉', '⠉'}}, c.Runes())

	c = NewCanvas(2, 2)
	c.Set(1, 3)
	c.Set(2, 4)
	c.Set(-1, 0)
	c.Set(4, 0)
	c.Set(0, 8)
	assert.Equal(t, [][]rune{{'⢀', ' '}, {' ', '⠁'}}, c.Runes())

	// Diagonal lines set one pixel per step.
	c = NewCanvas(2, 1)
	c.Line(0, 0, 3, 3)
	assert.Equal(t, [][]rune{{'⠑', '⢄'}}, c.Runes())
}

func TestProjection(t *testing.T) {
	square := []geodesy.Point{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 1}}
	p := newProjection(square, 41, 21)
	x, y := p.micro(geodesy.Point{Lon: 0, Lat: 1})
	assert.Equal(t, 10, x)
	assert.Equal(t, 0, y)
	x, y = p.micro(geodesy.Point{Lon: 1, Lat: 0})
	assert.Equal(t, 30, x)
	assert.Equal(t, 20, y)

	// A single point ends up in the center.
	p = newProjection(square[:1], 41, 21)
	x, y = p.micro(square[0])
	assert.Equal(t, 20, x)
	assert.Equal(t, 10, y)
}

func TestRender(t *testing.T) {
	logger, _ := test.NewNullLogger()
	g, err := tour.NewGenerator(logger, tour.Config{
		SpeedKmh:        50,
		Tilt:            40,
		Distance:        400,
		AltitudeEveryKm: 5,
		FrameRate:       25,
		SplitFrames:     150000,
	}, nil)
	require.NoError(t, err)
	tr, err := g.Plan(context.Background(), &boundary.Boundary{
		Name:        "SQR",
		DisplayName: "The Square Republic",
		Ring:        boundary.Ring{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 1}},
	})
	require.NoError(t, err)

	out := Render(tr, 30, 12)
	assert.Contains(t, out, "The Square Republic")
	assert.Contains(t, out, "334 km, 70 points, 4 parts")
	for _, n := range []string{"1", "2", "3", "4"} {
		assert.Contains(t, out, n)
	}
	assert.True(t, strings.ContainsRune(out, '⡇') || strings.ContainsRune(out, '⢸'), "vertical edge drawn")

	empty := Render(&tour.Tour{DisplayName: "Nowhere"}, 30, 12)
	assert.Contains(t, empty, "Nowhere")
	assert.Contains(t, empty, "0 points")
}
