package swarm

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Snapshot is one discrete-time observation of the swarm's proximity
// graph. An edge exists iff the Euclidean distance between two agents is
// at most the communication range; edge weight is 1/distance so closer
// agents weigh higher. Snapshots are rebuilt fresh each cycle and carry
// no state from previous cycles; detectors only read them.
//
// Ground-truth legitimacy is deliberately absent: label leakage into
// detection logic is a correctness bug.
type Snapshot struct {
	Timestamp time.Time

	nodes     []string // sorted ascending
	index     map[string]int
	adj       [][]float64 // symmetric weighted adjacency
	edgeCount int
	messages  map[string]*RemoteIDMessage
}

// BuildSnapshot builds the proximity graph for the given agent set.
// Pure O(n²) all-pairs distance computation; an empty agent list yields a
// snapshot with zero nodes and edges. Node ordering is sorted by ID so
// identical inputs produce identical snapshots.
func BuildSnapshot(uavs []*UAV, commRange float64) *Snapshot {
	n := len(uavs)
	s := &Snapshot{
		Timestamp: time.Now(),
		nodes:     make([]string, 0, n),
		index:     make(map[string]int, n),
		messages:  make(map[string]*RemoteIDMessage),
	}

	byID := make(map[string]*UAV, n)
	for _, u := range uavs {
		byID[u.ID] = u
		s.nodes = append(s.nodes, u.ID)
	}
	sort.Strings(s.nodes)
	for i, id := range s.nodes {
		s.index[id] = i
	}

	s.adj = make([][]float64, len(s.nodes))
	for i := range s.adj {
		s.adj[i] = make([]float64, len(s.nodes))
	}

	for i := 0; i < len(s.nodes); i++ {
		for j := i + 1; j < len(s.nodes); j++ {
			a, b := byID[s.nodes[i]], byID[s.nodes[j]]
			d := a.Position.Dist(b.Position)
			if d <= commRange && d > 0 {
				w := 1.0 / d
				s.adj[i][j] = w
				s.adj[j][i] = w
				s.edgeCount++
			}
		}
	}

	return s
}

// AttachMessages binds the cycle's Remote ID broadcasts to the snapshot.
// Messages for unknown senders are kept: a broadcast without a matching
// node is still a claim the authenticity detector may be asked about.
func (s *Snapshot) AttachMessages(msgs []*RemoteIDMessage) {
	for _, m := range msgs {
		s.messages[m.SenderID] = m
	}
}

// Message returns the broadcast attached for the given node, if any.
func (s *Snapshot) Message(id string) (*RemoteIDMessage, bool) {
	m, ok := s.messages[id]
	return m, ok
}

// Nodes returns the node IDs in deterministic sorted order. Callers must
// not mutate the returned slice.
func (s *Snapshot) Nodes() []string { return s.nodes }

// NodeCount returns the number of agents in the snapshot.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of undirected edges.
func (s *Snapshot) EdgeCount() int { return s.edgeCount }

// Index returns the dense index of a node ID.
func (s *Snapshot) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// ID returns the node ID at dense index i.
func (s *Snapshot) ID(i int) string { return s.nodes[i] }

// Weight returns the edge weight between dense indices i and j (0 when
// not adjacent).
func (s *Snapshot) Weight(i, j int) float64 { return s.adj[i][j] }

// Degree returns the unweighted degree of dense index i.
func (s *Snapshot) Degree(i int) int {
	d := 0
	for j := range s.adj[i] {
		if s.adj[i][j] > 0 {
			d++
		}
	}
	return d
}

// WeightedDegree returns the sum of incident edge weights of index i.
func (s *Snapshot) WeightedDegree(i int) float64 {
	var sum float64
	for j := range s.adj[i] {
		sum += s.adj[i][j]
	}
	return sum
}

// Neighbors returns the dense indices adjacent to i, ascending.
func (s *Snapshot) Neighbors(i int) []int {
	var nbrs []int
	for j := range s.adj[i] {
		if s.adj[i][j] > 0 {
			nbrs = append(nbrs, j)
		}
	}
	return nbrs
}

// Adjacency returns the weighted adjacency matrix A.
func (s *Snapshot) Adjacency() *mat.SymDense {
	n := len(s.nodes)
	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a.SetSym(i, j, s.adj[i][j])
		}
	}
	return a
}

// Laplacian returns L = D - A over edge weights. L is symmetric positive
// semi-definite, which is what lets the spectral detector use the
// symmetric eigensolver path.
func (s *Snapshot) Laplacian() *mat.SymDense {
	n := len(s.nodes)
	l := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		l.SetSym(i, i, s.WeightedDegree(i))
		for j := i + 1; j < n; j++ {
			if s.adj[i][j] > 0 {
				l.SetSym(i, j, -s.adj[i][j])
			}
		}
	}
	return l
}
