package routing

import "math"

// shortestPath runs a single-source Dijkstra rooted at src and returns
// the first hop on the best path to every node: firstHop[v] is the
// snapshot index of the neighbour of src that origination should send
// to, or NoRoute if v is unreachable. firstHop[src] is left at NoRoute
// and is never consulted by a caller.
//
// A relaxation through u naively records nextHop[v] = u, which is the
// *predecessor* on the path, not the first hop from src. Forwarding
// needs the first hop, so this implementation tracks firstHop[v]
// directly: firstHop[v] = v when relaxing straight from src,
// firstHop[v] = firstHop[u] when relaxing through any other u.
func shortestPath(g *Graph, src int) (firstHop []int, dist []float64) {
	n := len(g.Snapshot)
	dist = make([]float64, n)
	firstHop = make([]int, n)
	visited := make([]bool, n)

	for i := range dist {
		dist[i] = math.Inf(1)
		firstHop[i] = NoRoute
	}
	if n == 0 {
		return firstHop, dist
	}
	dist[src] = 0

	for {
		u := -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !visited[i] && dist[i] < best {
				best = dist[i]
				u = i
			}
		}
		if u == -1 {
			break // every remaining node is unreachable
		}
		visited[u] = true

		for v := 0; v < n; v++ {
			if visited[v] || v == u {
				continue
			}
			w := g.W[u][v]
			if w == math.Inf(1) {
				continue
			}
			cand := dist[u] + w
			// Strict improvement only: on equal cost the lower index
			// already visited first wins the tie, since Dijkstra here
			// scans indices in ascending order when picking the next
			// unvisited node.
			if cand < dist[v] {
				dist[v] = cand
				if u == src {
					firstHop[v] = v
				} else {
					firstHop[v] = firstHop[u]
				}
			}
		}
	}

	return firstHop, dist
}
