package overpass

import (
	"github.com/paulmach/orb"
)

// assembleRings joins the outer ways of a relation into closed rings. Ways
// are chained by shared end nodes and reversed where needed. It returns the
// closed rings and the number of chains that could not be closed.
func assembleRings(members []member) ([]orb.Ring, int) {
	var ways []orb.LineString
	for _, m := range members {
		if m.Type != "way" || (m.Role != "outer" && m.Role != "") || len(m.Geometry) < 2 {
			continue
		}
		ls := make(orb.LineString, len(m.Geometry))
		for i, c := range m.Geometry {
			ls[i] = orb.Point{c.Lon, c.Lat}
		}
		ways = append(ways, ls)
	}

	var rings []orb.Ring
	open := 0
	used := make([]bool, len(ways))
	for i := range ways {
		if used[i] {
			continue
		}
		used[i] = true
		chain := append(orb.LineString(nil), ways[i]...)
		for !chain[0].Equal(chain[len(chain)-1]) {
			next := -1
			reverse := false
			end := chain[len(chain)-1]
			for j, w := range ways {
				if used[j] {
					continue
				}
				if w[0].Equal(end) {
					next = j
					break
				}
				if w[len(w)-1].Equal(end) {
					next, reverse = j, true
					break
				}
			}
			if next < 0 {
				break
			}
			used[next] = true
			w := ways[next]
			if reverse {
				w = append(orb.LineString(nil), w...)
				w.Reverse()
			}
			chain = append(chain, w[1:]...)
		}
		if len(chain) < 4 || !chain[0].Equal(chain[len(chain)-1]) {
			open++
			continue
		}
		rings = append(rings, orb.Ring(chain))
	}
	return rings, open
}
