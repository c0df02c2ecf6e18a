package detect

import "github.com/Sang-Buster/Argus/internal/swarm"

// FeatureDim is the width of the per-node feature vector consumed by the
// ensemble learners: 10 structural features plus 7 short-horizon deltas
// against the previous snapshot (zero when no temporal context exists).
const FeatureDim = 17

// Structural feature indices. Deltas occupy indices 10..16.
const (
	featDegree = iota
	featWeightedDegree
	featDegreeCentrality
	featBetweenness
	featCloseness
	featClustering
	featNeighborhoodDensity
	featAvgNeighborDegree
	featMaxNeighborDegree
	featMeanEdgeWeight
	structuralFeatureCount
)

// deltaSources lists the structural indices that get a temporal delta.
var deltaSources = [...]int{
	featDegree,
	featWeightedDegree,
	featBetweenness,
	featCloseness,
	featClustering,
	featAvgNeighborDegree,
	featMeanEdgeWeight,
}

// extractFeatures computes the FeatureDim-wide vector for every node of
// snap, ordered by the snapshot's dense node index. prev supplies the
// temporal context and may be nil.
func extractFeatures(snap, prev *swarm.Snapshot) [][]float64 {
	cur := structuralFeatures(snap)

	var prevByID map[string][]float64
	if prev != nil {
		prevRows := structuralFeatures(prev)
		prevByID = make(map[string][]float64, len(prevRows))
		for i, id := range prev.Nodes() {
			prevByID[id] = prevRows[i]
		}
	}

	rows := make([][]float64, snap.NodeCount())
	for i, id := range snap.Nodes() {
		row := make([]float64, FeatureDim)
		copy(row, cur[i])
		if p, ok := prevByID[id]; ok {
			for di, src := range deltaSources {
				row[structuralFeatureCount+di] = cur[i][src] - p[src]
			}
		}
		rows[i] = row
	}
	return rows
}

// structuralFeatures computes the 10 structural features per node.
func structuralFeatures(snap *swarm.Snapshot) [][]float64 {
	n := snap.NodeCount()
	c := computeCentralities(snap)

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		nbrs := snap.Neighbors(i)
		deg := len(nbrs)

		var avgNbrDeg, maxNbrDeg float64
		for _, j := range nbrs {
			dj := float64(snap.Degree(j))
			avgNbrDeg += dj
			if dj > maxNbrDeg {
				maxNbrDeg = dj
			}
		}
		if deg > 0 {
			avgNbrDeg /= float64(deg)
		}

		wdeg := snap.WeightedDegree(i)
		var meanWeight float64
		if deg > 0 {
			meanWeight = wdeg / float64(deg)
		}

		row := make([]float64, structuralFeatureCount)
		row[featDegree] = float64(deg)
		row[featWeightedDegree] = wdeg
		row[featDegreeCentrality] = c.degree[i]
		row[featBetweenness] = c.betweenness[i]
		row[featCloseness] = c.closeness[i]
		row[featClustering] = clusteringCoefficient(snap, i)
		row[featNeighborhoodDensity] = neighborhoodDensity(snap, i, nbrs)
		row[featAvgNeighborDegree] = avgNbrDeg
		row[featMaxNeighborDegree] = maxNbrDeg
		row[featMeanEdgeWeight] = meanWeight
		rows[i] = row
	}
	return rows
}

// neighborhoodDensity is the edge density of the closed neighborhood of
// node i: realized edges among {i} ∪ neighbors over the possible count.
func neighborhoodDensity(snap *swarm.Snapshot, i int, nbrs []int) float64 {
	k := len(nbrs)
	if k == 0 {
		return 0
	}
	links := k // edges from i to each neighbor
	for a := 0; a < k; a++ {
		for b := a + 1; b < k; b++ {
			if snap.Weight(nbrs[a], nbrs[b]) > 0 {
				links++
			}
		}
	}
	possible := (k + 1) * k / 2
	return float64(links) / float64(possible)
}
