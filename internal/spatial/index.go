// Package spatial answers "k nearest agents to a point" over a snapshot of
// agent records.
//
// Distance is full 3D Euclidean distance between local translations. Parent
// frames are not resolved. Results are ordered by ascending distance with
// ties broken by agent id, and every Index implementation returns identical
// results for identical inputs.
package spatial

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/skmto/arktwim-sample/internal/types"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	KindLinear = "linear"
	KindKDTree = "kdtree"
)

// Query describes a nearest neighbor lookup
type Query struct {
	Origin  types.Vec3
	Exclude types.AgentID
	Limit   int
	Radius  *float64
	Kinds   []types.AgentKind
}

// Match is a record paired with its distance from the query origin
type Match struct {
	Record   types.AgentRecord
	Distance float64
}

// Index answers nearest neighbor queries
type Index interface {
	Nearest(records []types.AgentRecord, q Query) ([]Match, error)
}

// New returns the index implementation registered under kind
func New(kind string) (Index, error) {
	switch kind {
	case "", KindLinear:
		return Linear{}, nil
	case KindKDTree:
		return KDTree{}, nil
	default:
		return nil, fmt.Errorf("unknown spatial index %q", kind)
	}
}

// Validate checks the limit and radius of q
func (q Query) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("limit %d: %w", q.Limit, types.ErrInvalidQueryParameters)
	}
	if q.Radius != nil && (*q.Radius < 0 || math.IsNaN(*q.Radius)) {
		return fmt.Errorf("radius %v: %w", *q.Radius, types.ErrInvalidQueryParameters)
	}
	return nil
}

// admits reports whether rec is eligible as a result of q
func (q Query) admits(rec *types.AgentRecord) bool {
	if rec.AgentID == q.Exclude {
		return false
	}
	return len(q.Kinds) == 0 || slices.Contains(q.Kinds, rec.Kind)
}

// Distance is the distance between two positions as used for ranking
func Distance(a, b types.Vec3) float64 {
	return math.Sqrt(squaredDistance(a.R3(), b.R3()))
}

func squaredDistance(a, b r3.Vec) float64 {
	return r3.Norm2(r3.Sub(a, b))
}

// finish orders matches, applies the radius and truncates to the limit
func finish(matches []Match, q Query) []Match {
	if q.Radius != nil {
		kept := matches[:0]
		for _, m := range matches {
			if m.Distance <= *q.Radius {
				kept = append(kept, m)
			}
		}
		matches = kept
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Record.AgentID < matches[j].Record.AgentID
	})

	if len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches
}
