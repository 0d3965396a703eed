package views

// averageLinkageOrder returns a leaf ordering from agglomerative clustering
// with average linkage over the given symmetric distance matrix. The
// quadratic-space, cubic-time approach is fine at heatmap scale (tens of
// rows, handfuls of columns).
func averageLinkageOrder(dist [][]float64) []int {
	n := len(dist)
	if n == 0 {
		return nil
	}
	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	for len(clusters) > 1 {
		bestA, bestB := 0, 1
		bestD := clusterDistance(clusters[0], clusters[1], dist)
		for a := 0; a < len(clusters); a++ {
			for b := a + 1; b < len(clusters); b++ {
				if d := clusterDistance(clusters[a], clusters[b], dist); d < bestD {
					bestA, bestB, bestD = a, b, d
				}
			}
		}
		merged := append(append([]int{}, clusters[bestA]...), clusters[bestB]...)
		next := make([][]int, 0, len(clusters)-1)
		for i, c := range clusters {
			if i != bestA && i != bestB {
				next = append(next, c)
			}
		}
		clusters = append(next, merged)
	}
	return clusters[0]
}

// clusterDistance is the mean pairwise distance between two clusters.
func clusterDistance(a, b []int, dist [][]float64) float64 {
	sum := 0.0
	for _, i := range a {
		for _, j := range b {
			sum += dist[i][j]
		}
	}
	return sum / float64(len(a)*len(b))
}
