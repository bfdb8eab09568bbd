package goals

type point struct {
	x, y float64
}

// disjointSet is a union-find over indices with path halving and union by size.
type disjointSet struct {
	parent []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{parent: make([]int, n), size: make([]int, n)}
	for i := range d.parent {
		d.parent[i] = i
		d.size[i] = 1
	}
	return d
}

func (d *disjointSet) find(i int) int {
	for d.parent[i] != i {
		d.parent[i] = d.parent[d.parent[i]]
		i = d.parent[i]
	}
	return i
}

// union merges the sets of a and b and returns the size of the result.
func (d *disjointSet) union(a, b int) int {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return d.size[ra]
	}
	if d.size[ra] < d.size[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	d.size[ra] += d.size[rb]
	return d.size[ra]
}

// largestCluster returns the size of the largest group of points connected by
// links no longer than radius.
func largestCluster(points []point, radius float64) int {
	if len(points) == 0 {
		return 0
	}
	ds := newDisjointSet(len(points))
	r2 := radius * radius
	best := 1
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			dx, dy := points[i].x-points[j].x, points[i].y-points[j].y
			if dx*dx+dy*dy > r2 {
				continue
			}
			if size := ds.union(i, j); size > best {
				best = size
			}
		}
	}
	return best
}
