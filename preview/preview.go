// Package preview draws a tour into the terminal with braille characters.
package preview

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/border-inspection/tourgen/geodesy"
	"github.com/border-inspection/tourgen/tour"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"
)

var (
	accentFg  = lipgloss.Color("#7C3AED")
	markerFg  = lipgloss.Color("#FFA500")
	baseDimFg = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#6B7280"}
	borderCol = lipgloss.Color("#243141")

	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(borderCol).Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Foreground(accentFg).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(baseDimFg)
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E6E6E6"))
	markerStyle = lipgloss.NewStyle().Foreground(markerFg).Bold(true)
)

// projection fits lon/lat into a micro pixel grid, keeping the aspect ratio
// of an equirectangular projection at the center latitude.
type projection struct {
	minLon, maxLat float64
	kx, scale      float64
	offX, offY     float64
}

func newProjection(points []geodesy.Point, w, h int) projection {
	b := orb.Bound{Min: orb.Point{points[0].Lon, points[0].Lat}, Max: orb.Point{points[0].Lon, points[0].Lat}}
	for _, p := range points[1:] {
		b = b.Extend(orb.Point{p.Lon, p.Lat})
	}
	kx := math.Cos(b.Center().Lat() * math.Pi / 180)
	spanX := (b.Max.Lon() - b.Min.Lon()) * kx
	spanY := b.Max.Lat() - b.Min.Lat()

	scale := math.Inf(1)
	if spanX > 0 {
		scale = float64(w-1) / spanX
	}
	if spanY > 0 {
		scale = math.Min(scale, float64(h-1)/spanY)
	}
	if math.IsInf(scale, 1) {
		scale = 0
	}
	return projection{
		minLon: b.Min.Lon(),
		maxLat: b.Max.Lat(),
		kx:     kx,
		scale:  scale,
		offX:   (float64(w-1) - spanX*scale) / 2,
		offY:   (float64(h-1) - spanY*scale) / 2,
	}
}

func (p projection) micro(pt geodesy.Point) (int, int) {
	x := (pt.Lon-p.minLon)*p.kx*p.scale + p.offX
	y := (p.maxLat-pt.Lat)*p.scale + p.offY
	return int(math.Round(x)), int(math.Round(y))
}

// Render draws the tour path into a box of the given size in cells. The
// start of every part is marked with the last digit of its number.
func Render(t *tour.Tour, width, height int) string {
	var points []geodesy.Point
	if t.Path != nil {
		points = t.Path.Points
	}
	if len(points) == 0 {
		points = append(points, t.Outline...)
	}

	header := []string{
		titleStyle.Render(t.DisplayName),
		dimStyle.Render(fmt.Sprintf("%.0f km, %d points, %d parts", t.Distance(), len(points), len(t.Parts))),
	}
	if len(points) == 0 || width < 1 || height < 1 {
		return boxStyle.Render(strings.Join(header, "\n"))
	}

	proj := newProjection(points, width*2, height*4)
	c := NewCanvas(width, height)
	px, py := proj.micro(points[0])
	c.Set(px, py)
	for _, p := range points[1:] {
		x, y := proj.micro(p)
		c.Line(px, py, x, y)
		px, py = x, y
	}

	markers := map[[2]int]string{}
	if t.Reel == 0 {
		for _, part := range t.Parts {
			if part.StartIndex >= len(points) {
				continue
			}
			x, y := proj.micro(points[part.StartIndex])
			markers[[2]int{x / 2, y / 4}] = strconv.Itoa(part.Number % 10)
		}
	}

	cells := c.Runes()
	lines := make([]string, len(cells))
	for y, row := range cells {
		var b strings.Builder
		run := []rune{}
		for x, r := range row {
			if m, ok := markers[[2]int{x, y}]; ok {
				b.WriteString(pathStyle.Render(string(run)))
				b.WriteString(markerStyle.Render(m))
				run = run[:0]
				continue
			}
			run = append(run, r)
		}
		b.WriteString(pathStyle.Render(string(run)))
		lines[y] = b.String()
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(header, "\n"),
		"",
		strings.Join(lines, "\n"),
	))
}
