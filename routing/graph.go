// Package routing computes, for every destination in the current
// fleet snapshot, the neighbour a peer should forward to next. It
// implements the §4.3 weight model (ground-to-ground forbidden,
// ground-access penalty, long-link penalty) and a single-source
// Dijkstra that records first hops rather than predecessors.
//
// Grounded on other_examples/.../mpisat-qumo/topology.go: a
// mutex-guarded Topology holding a Graph rebuilt wholesale on every
// registration, a pluggable Router interface computing a RouteResult
// from a Graph snapshot, and a Snapshot/deepCopy pair for torn-read-free
// reads. qumo's flat registered edge weights are replaced here by the
// §4.3 physical-position cost function, and its RelayInfo-driven
// incremental edge updates are replaced by a full snapshot rebuild:
// nextHop is recomputed atomically from one snapshot on every poll,
// not maintained incrementally as edges change.
package routing

import (
	"math"

	"orbitmesh/model"
)

// GroundAccessPenalty is added to the base cost whenever exactly one
// endpoint of an edge is GROUND.
const GroundAccessPenalty = 1000.0

// LongLinkThreshold is the distance beyond which the long-link penalty
// applies.
const LongLinkThreshold = 500.0

// NoRoute is the sentinel index used by nextHop[v] when v is
// unreachable: "no route, do not forward."
const NoRoute = -1

// Graph is the square weight matrix derived from one fleet snapshot.
// Node indices are positions within Snapshot.
type Graph struct {
	Snapshot []model.PeerRecord
	W        [][]float64
}

// edgeWeight computes the §4.3 cost between records a and b of a
// snapshot. The matrix is symmetric so callers only need call this
// once per unordered pair.
func edgeWeight(a, b model.PeerRecord) float64 {
	if a.Class == model.ClassGround && b.Class == model.ClassGround {
		return math.Inf(1)
	}

	d := a.Position().Distance(b.Position())

	if a.Class != b.Class {
		// Exactly one endpoint is GROUND (the only other combination
		// possible once the all-ground case above is excluded, short
		// of SATELLITE-SATELLITE which skips this branch).
		d += GroundAccessPenalty
	}

	if d > LongLinkThreshold {
		over := d - LongLinkThreshold
		d = LongLinkThreshold + over*over
	}

	return d
}

// BuildGraph derives a weight matrix from a fleet snapshot. W[i][i] is
// left at zero; it is never read by Dijkstra.
func BuildGraph(snapshot []model.PeerRecord) *Graph {
	n := len(snapshot)
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			cost := edgeWeight(snapshot[i], snapshot[j])
			w[i][j] = cost
			w[j][i] = cost
		}
	}

	return &Graph{Snapshot: snapshot, W: w}
}

// IndexOf returns the snapshot index of the record with the given
// name, or -1 if absent.
func (g *Graph) IndexOf(name string) int {
	for i, rec := range g.Snapshot {
		if rec.Name == name {
			return i
		}
	}
	return -1
}
