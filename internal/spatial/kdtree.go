package spatial

import (
	"math"

	"github.com/skmto/arktwim-sample/internal/types"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// KDTree builds a k-d tree over the admitted records on every call and
// resolves the k nearest in two passes: an NKeeper pass finds the k-th
// distance, then a DistKeeper pass collects every record within it so ties
// at the boundary are settled by agent id rather than tree order.
type KDTree struct{}

// Nearest returns at most q.Limit records closest to q.Origin
func (KDTree) Nearest(records []types.AgentRecord, q Query) ([]Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return []Match{}, nil
	}

	points := make(nodes, 0, len(records))
	for i := range records {
		if q.admits(&records[i]) {
			points = append(points, node{pos: records[i].Pose.Position.R3(), rec: &records[i]})
		}
	}
	if len(points) == 0 {
		return []Match{}, nil
	}

	origin := node{pos: q.Origin.R3()}
	tree := kdtree.New(points, false)

	bound := math.Inf(1)
	if len(points) > q.Limit {
		nk := kdtree.NewNKeeper(q.Limit)
		tree.NearestSet(nk, origin)
		bound = 0
		for _, c := range nk.Heap {
			if c.Comparable != nil && c.Dist > bound {
				bound = c.Dist
			}
		}
	}
	if q.Radius != nil {
		r := *q.Radius
		bound = math.Min(bound, r*r)
	}
	// Squared and rooted distances may round differently; widen slightly and
	// let finish apply the exact cut.
	bound *= 1 + 1e-9

	var found []node
	if math.IsInf(bound, 1) {
		found = points
	} else {
		dk := kdtree.NewDistKeeper(bound)
		tree.NearestSet(dk, origin)
		for _, c := range dk.Heap {
			if c.Comparable != nil {
				found = append(found, c.Comparable.(node))
			}
		}
	}

	matches := make([]Match, 0, len(found))
	for _, n := range found {
		d2 := squaredDistance(origin.pos, n.pos)
		matches = append(matches, Match{Record: *n.rec, Distance: math.Sqrt(d2)})
	}
	return finish(matches, q), nil
}

// node is a kdtree.Comparable positioned at an agent's translation
type node struct {
	pos r3.Vec
	rec *types.AgentRecord
}

func (n node) coord(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return n.pos.X
	case 1:
		return n.pos.Y
	default:
		return n.pos.Z
	}
}

func (n node) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return n.coord(d) - c.(node).coord(d)
}

func (n node) Dims() int { return 3 }

// Distance is squared, as kdtree expects
func (n node) Distance(c kdtree.Comparable) float64 {
	return squaredDistance(n.pos, c.(node).pos)
}

type nodes []node

func (p nodes) Index(i int) kdtree.Comparable { return p[i] }
func (p nodes) Len() int                      { return len(p) }
func (p nodes) Pivot(d kdtree.Dim) int        { return plane{nodes: p, Dim: d}.Pivot() }
func (p nodes) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// plane sorts nodes along one dimension for median selection
type plane struct {
	kdtree.Dim
	nodes
}

func (p plane) Less(i, j int) bool {
	return p.nodes[i].coord(p.Dim) < p.nodes[j].coord(p.Dim)
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.nodes = p.nodes[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.nodes[i], p.nodes[j] = p.nodes[j], p.nodes[i]
}
