package spatial

import (
	"math/rand"
	"sort"
	"testing"
)

func bruteForce(points []Point, p Point, radius float64) []int {
	var out []int
	if radius <= 0 {
		return out
	}
	for i, q := range points {
		if q.Dist2(p) <= radius*radius {
			out = append(out, i)
		}
	}
	return out
}

func TestGridMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points := make([]Point, 2000)
	for i := range points {
		points[i] = Point{X: rng.Float64()*60 - 30, Y: rng.Float64()*60 - 30, Z: rng.Float64()*60 - 30}
	}

	for _, radius := range []float64{0.5, 4.0, 9.5} {
		g := NewGrid(points, 4.0)
		for q := 0; q < 200; q++ {
			p := Point{X: rng.Float64()*70 - 35, Y: rng.Float64()*70 - 35, Z: rng.Float64()*70 - 35}

			got := g.Within(p, radius, nil)
			want := bruteForce(points, p, radius)
			sort.Ints(got)

			if len(got) != len(want) {
				t.Fatalf("radius %.1f: expected %d neighbors, got %d", radius, len(want), len(got))
			}
			for i := range got {
				if got[i] != want[i] {
					t.Fatalf("radius %.1f: neighbor mismatch at %d: %d != %d", radius, i, got[i], want[i])
				}
			}
			if c := g.Count(p, radius); c != len(want) {
				t.Fatalf("radius %.1f: Count returned %d, expected %d", radius, c, len(want))
			}
		}
	}
}

func TestGridBoundaryInclusive(t *testing.T) {
	g := NewGrid([]Point{{X: 4, Y: 0, Z: 0}}, 4)

	if got := g.Within(Point{}, 4, nil); len(got) != 1 {
		t.Errorf("expected point at exactly the radius to match, got %v", got)
	}
	if got := g.Within(Point{}, 3.999, nil); len(got) != 0 {
		t.Errorf("expected no match just inside the radius, got %v", got)
	}
}

func TestGridNonPositiveRadius(t *testing.T) {
	g := NewGrid([]Point{{}}, 0)

	if got := g.Within(Point{}, 0, nil); len(got) != 0 {
		t.Errorf("expected zero radius to match nothing, got %v", got)
	}
	if got := g.Count(Point{}, -1); got != 0 {
		t.Errorf("expected negative radius to match nothing, got %d", got)
	}
}
