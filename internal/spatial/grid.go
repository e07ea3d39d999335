// Package spatial provides a uniform-grid neighbor index over 3D points.
package spatial

import "math"

// Point is a position in Cartesian space (Å).
type Point struct {
	X, Y, Z float64
}

// Dist2 returns the squared Euclidean distance between p and q.
func (p Point) Dist2(q Point) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return dx*dx + dy*dy + dz*dz
}

type cell struct {
	x, y, z int
}

// Grid buckets points into cubic cells so a radius query only visits the
// cells overlapping the query sphere.
type Grid struct {
	size   float64
	points []Point
	cells  map[cell][]int
}

// NewGrid indexes points with the given cell edge length. Queries are
// cheapest when the edge is close to the typical query radius.
func NewGrid(points []Point, cellSize float64) *Grid {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		cellSize = 1
	}
	g := &Grid{
		size:   cellSize,
		points: points,
		cells:  make(map[cell][]int, len(points)),
	}
	for i, p := range points {
		c := g.cellOf(p)
		g.cells[c] = append(g.cells[c], i)
	}
	return g
}

func (g *Grid) cellOf(p Point) cell {
	return cell{
		x: int(math.Floor(p.X / g.size)),
		y: int(math.Floor(p.Y / g.size)),
		z: int(math.Floor(p.Z / g.size)),
	}
}

// Len returns the number of indexed points.
func (g *Grid) Len() int {
	return len(g.points)
}

// Within appends to dst the indices of points at distance <= radius from p.
// A non-positive radius matches nothing.
func (g *Grid) Within(p Point, radius float64, dst []int) []int {
	if radius <= 0 || len(g.points) == 0 {
		return dst
	}
	r2 := radius * radius
	span := int(math.Ceil(radius / g.size))
	center := g.cellOf(p)

	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for dz := -span; dz <= span; dz++ {
				idx := g.cells[cell{center.x + dx, center.y + dy, center.z + dz}]
				for _, i := range idx {
					if g.points[i].Dist2(p) <= r2 {
						dst = append(dst, i)
					}
				}
			}
		}
	}
	return dst
}

// Count returns how many indexed points lie within radius of p.
func (g *Grid) Count(p Point, radius float64) int {
	if radius <= 0 {
		return 0
	}
	r2 := radius * radius
	span := int(math.Ceil(radius / g.size))
	center := g.cellOf(p)

	n := 0
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for dz := -span; dz <= span; dz++ {
				for _, i := range g.cells[cell{center.x + dx, center.y + dy, center.z + dz}] {
					if g.points[i].Dist2(p) <= r2 {
						n++
					}
				}
			}
		}
	}
	return n
}
