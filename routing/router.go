package routing

import (
	"fmt"
	"sync/atomic"

	"orbitmesh/model"
)

// ErrNoRoute is returned by GetNextHop both when the target is known
// but unreachable and when the target is not in the snapshot at all —
// both cases mean "do not forward."
var ErrNoRoute = fmt.Errorf("routing: no route to target")

// state is the immutable triple (snapshot, graph, firstHop) that a
// reader must see coherently. Recompute produces a brand new state
// and swaps it in atomically; nothing ever mutates a published state
// in place.
type state struct {
	graph    *Graph
	firstHop []int
	self     int // index of the local peer within graph.Snapshot, or NoRoute
}

// Router holds the local peer's current routing state behind an
// atomic pointer, so the hot forwarding path (used by the receiver
// goroutine) takes a cheap atomic load with no lock, while the
// directory poller goroutine is the sole writer.
//
// Grounded on topology.go's Topology (mutex + graph + Router
// interface), re-expressed with copy-on-write so the forwarding hot
// path takes only a cheap atomic read, instead of qumo's
// RWMutex-guarded single graph.
type Router struct {
	selfName string
	current  atomic.Pointer[state]
}

// NewRouter creates a Router with no snapshot yet recomputed; callers
// must call Recompute at least once (normally right after the first
// directory poll) before GetNextHop returns anything but ErrNoRoute.
func NewRouter(selfName string) *Router {
	r := &Router{selfName: selfName}
	r.current.Store(&state{graph: &Graph{}, firstHop: nil, self: NoRoute})
	return r
}

// Recompute builds a fresh Graph from snapshot and runs Dijkstra
// rooted at the local peer, then publishes the new (snapshot, W,
// firstHop) triple atomically. Called once at startup and on every
// directory poll; origination does not trigger a recompute, it reads
// the state published by the last call.
func (r *Router) Recompute(snapshot []model.PeerRecord) {
	g := BuildGraph(snapshot)
	selfIdx := g.IndexOf(r.selfName)

	var firstHop []int
	if selfIdx >= 0 {
		firstHop, _ = shortestPath(g, selfIdx)
	}

	r.current.Store(&state{graph: g, firstHop: firstHop, self: selfIdx})
}

// GetNextHop looks up targetName's index in the current snapshot and
// returns the PeerRecord of the neighbour to forward to. It returns
// ErrNoRoute both when targetName is absent from the snapshot and when
// Dijkstra found it unreachable — the caller treats both as a missing
// route.
func (r *Router) GetNextHop(targetName string) (model.PeerRecord, error) {
	s := r.current.Load()
	if s.self == NoRoute {
		return model.PeerRecord{}, ErrNoRoute
	}

	targetIdx := s.graph.IndexOf(targetName)
	if targetIdx < 0 {
		return model.PeerRecord{}, ErrNoRoute
	}
	if targetIdx == s.self {
		return s.graph.Snapshot[targetIdx], nil
	}

	if s.firstHop == nil || targetIdx >= len(s.firstHop) {
		return model.PeerRecord{}, ErrNoRoute
	}
	hop := s.firstHop[targetIdx]
	if hop == NoRoute {
		return model.PeerRecord{}, ErrNoRoute
	}
	return s.graph.Snapshot[hop], nil
}

// ReverseLookup finds the logical name of the peer whose transport
// endpoint is (addr, port) within the current snapshot — used by the
// datagram engine to turn a decoded Packet's numeric target back into
// a name it can hand to GetNextHop.
func (r *Router) ReverseLookup(addr uint32, port uint16) (string, bool) {
	s := r.current.Load()
	for _, rec := range s.graph.Snapshot {
		if model.IPToUint32(rec.Addr) == addr && rec.Port == port {
			return rec.Name, true
		}
	}
	return "", false
}

// Snapshot returns the fleet snapshot the router last recomputed from.
func (r *Router) Snapshot() []model.PeerRecord {
	return r.current.Load().graph.Snapshot
}
