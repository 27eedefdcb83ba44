package batching

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// dbscanNoise labels points that belong to no cluster.
const dbscanNoise = -1

// dbscan clusters points by cosine distance. Returns one label per point;
// noise points get dbscanNoise. Pool sizes here are batch-queue sized, so
// the quadratic neighborhood sweep is not worth an index.
func dbscan(points [][]float64, eps float64, minPts int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = dbscanNoise
	}
	visited := make([]bool, n)
	cluster := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minPts {
			continue
		}
		labels[i] = cluster
		// Expand the cluster over density-reachable points.
		for k := 0; k < len(neighbors); k++ {
			j := neighbors[k]
			if !visited[j] {
				visited[j] = true
				jNeighbors := regionQuery(points, j, eps)
				if len(jNeighbors) >= minPts {
					neighbors = append(neighbors, jNeighbors...)
				}
			}
			if labels[j] == dbscanNoise {
				labels[j] = cluster
			}
		}
		cluster++
	}
	return labels
}

func regionQuery(points [][]float64, idx int, eps float64) []int {
	var neighbors []int
	for j := range points {
		if cosineDistance(points[idx], points[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// cosineDistance is 1 - cos(a, b); zero vectors are maximally distant.
func cosineDistance(a, b []float64) float64 {
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := floats.Dot(a, b) / (normA * normB)
	// Clamp against floating point drift outside [-1, 1].
	sim = math.Max(-1, math.Min(1, sim))
	return 1 - sim
}
