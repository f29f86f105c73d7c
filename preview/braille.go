package preview

// Canvas is a grid of braille cells, each made of 2x4 micro pixels.
type Canvas struct {
	w, h int       // in cells
	m    [][]uint8 // per-cell dot mask
}

func NewCanvas(w, h int) *Canvas {
	m := make([][]uint8, h)
	for i := range m {
		m[i] = make([]uint8, w)
	}
	return &Canvas{w: w, h: h, m: m}
}

// dots maps micro pixel rows to the braille bits of the left and right
// column.
var dots = [4][2]uint8{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// Set sets the micro pixel at (mx, my). Pixels outside of the canvas are
// ignored.
func (c *Canvas) Set(mx, my int) {
	if mx < 0 || my < 0 {
		return
	}
	cx, cy := mx/2, my/4
	if cx >= c.w || cy >= c.h {
		return
	}
	c.m[cy][cx] |= dots[my%4][mx%2]
}

// Line draws a line between two micro pixels using Bresenham.
func (c *Canvas) Line(x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// Runes returns the cells as braille characters, blank cells as spaces.
func (c *Canvas) Runes() [][]rune {
	out := make([][]rune, c.h)
	for y := range out {
		row := make([]rune, c.w)
		for x, mask := range c.m[y] {
			if mask == 0 {
				row[x] = ' '
			} else {
				row[x] = rune(0x2800 + int(mask))
			}
		}
		out[y] = row
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
