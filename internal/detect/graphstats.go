package detect

import "github.com/Sang-Buster/Argus/internal/swarm"

// centralities holds the per-node centrality vectors of one snapshot,
// indexed by the snapshot's dense node index.
type centralities struct {
	degree      []float64 // degree / (n-1)
	betweenness []float64 // Brandes, normalized by (n-1)(n-2)
	closeness   []float64 // Wasserman-Faust reachable scaling
}

// computeCentralities computes degree, betweenness and closeness
// centrality for every node. Shortest paths are hop counts over the
// proximity graph. Disconnected graphs are fine: unreachable pairs
// contribute zero to betweenness and closeness instead of failing.
func computeCentralities(snap *swarm.Snapshot) centralities {
	n := snap.NodeCount()
	c := centralities{
		degree:      make([]float64, n),
		betweenness: make([]float64, n),
		closeness:   make([]float64, n),
	}
	if n == 0 {
		return c
	}

	adj := make([][]int, n)
	for i := 0; i < n; i++ {
		adj[i] = snap.Neighbors(i)
		if n > 1 {
			c.degree[i] = float64(len(adj[i])) / float64(n-1)
		}
	}

	if n > 2 {
		cb := make([]float64, n)
		for s := 0; s < n; s++ {
			brandesBFS(s, n, adj, cb)
		}
		norm := float64((n - 1) * (n - 2))
		for i := range cb {
			c.betweenness[i] = cb[i] / norm
		}
	}

	for i := 0; i < n; i++ {
		c.closeness[i] = closenessFrom(i, n, adj)
	}

	return c
}

// brandesBFS runs one source pass of Brandes' algorithm, accumulating
// pair dependencies into cb.
func brandesBFS(s, n int, adj [][]int, cb []float64) {
	stack := make([]int, 0, n)
	pred := make([][]int, n)
	sigma := make([]float64, n)
	sigma[s] = 1
	dist := make([]int, n)
	for i := range dist {
		dist[i] = -1
	}
	dist[s] = 0

	queue := []int{s}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)
		for _, w := range adj[v] {
			if dist[w] < 0 {
				queue = append(queue, w)
				dist[w] = dist[v] + 1
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				pred[w] = append(pred[w], v)
			}
		}
	}

	delta := make([]float64, n)
	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, v := range pred[w] {
			delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
		}
		if w != s {
			cb[w] += delta[w]
		}
	}
}

// closenessFrom computes Wasserman-Faust closeness for one source:
// ((r-1)/(n-1)) * ((r-1)/sum(dist)) where r is the reachable component
// size. Isolated nodes score zero.
func closenessFrom(s, n int, adj [][]int) float64 {
	dist := make([]int, n)
	for i := range dist {
		dist[i] = -1
	}
	dist[s] = 0

	sum := 0
	reachable := 1
	queue := []int{s}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range adj[v] {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				sum += dist[w]
				reachable++
				queue = append(queue, w)
			}
		}
	}

	if sum == 0 || n < 2 {
		return 0
	}
	r := float64(reachable - 1)
	return (r / float64(n-1)) * (r / float64(sum))
}

// clusteringCoefficient returns the fraction of a node's neighbor pairs
// that are themselves connected. Nodes with fewer than two neighbors
// score zero.
func clusteringCoefficient(snap *swarm.Snapshot, i int) float64 {
	nbrs := snap.Neighbors(i)
	k := len(nbrs)
	if k < 2 {
		return 0
	}
	links := 0
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			if snap.Weight(nbrs[a], nbrs[b]) > 0 {
				links++
			}
		}
	}
	return float64(links) / float64(k*(k-1)/2)
}
