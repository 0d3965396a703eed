package views

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"rnadash/domain/expr"
)

// heatmapTopGenes caps the heatmap at the most highly expressed genes.
const heatmapTopGenes = 50

// HeatmapData is the clustered expression heatmap payload: z-scaled VST
// values with genes and samples in clustering order.
type HeatmapData struct {
	Genes      []expr.GeneID   `json:"genes"`
	Samples    []expr.SampleID `json:"samples"`
	Conditions []string        `json:"conditions"`
	Values     [][]float64     `json:"values"` // genes x samples, row z-scores
}

// Heatmap selects the top expressed genes from the variance-stabilized
// matrix, z-scales each gene row, and orders rows and columns by
// average-linkage hierarchical clustering on Euclidean distance.
func (s *Service) Heatmap() (*HeatmapData, error) {
	model, snap, err := s.model("heatmap")
	if err != nil {
		return nil, err
	}
	vst, err := s.engine.VST(model)
	if err != nil {
		return nil, err
	}

	top := topGenesByMean(vst, heatmapTopGenes)
	sub, err := vst.SubsetRows(top)
	if err != nil {
		return nil, err
	}

	values := make([][]float64, sub.NumGenes())
	for i := range sub.Values {
		values[i] = zScore(sub.Values[i])
	}

	geneOrder := averageLinkageOrder(rowDistances(values))
	sampleOrder := averageLinkageOrder(rowDistances(transpose(values)))

	out := &HeatmapData{
		Genes:      make([]expr.GeneID, len(geneOrder)),
		Samples:    make([]expr.SampleID, len(sampleOrder)),
		Conditions: make([]string, len(sampleOrder)),
		Values:     make([][]float64, len(geneOrder)),
	}
	for k, j := range sampleOrder {
		out.Samples[k] = sub.Samples[j]
		cond, _ := snap.Samples.ConditionOf(sub.Samples[j])
		out.Conditions[k] = cond
	}
	for k, i := range geneOrder {
		out.Genes[k] = sub.Genes[i]
		row := make([]float64, len(sampleOrder))
		for c, j := range sampleOrder {
			row[c] = values[i][j]
		}
		out.Values[k] = row
	}
	return out, nil
}

// topGenesByMean returns row indices of the n genes with the highest mean
// value, in descending order.
func topGenesByMean(m *expr.ExpressionMatrix, n int) []int {
	type ranked struct {
		idx  int
		mean float64
	}
	all := make([]ranked, m.NumGenes())
	for i, row := range m.Values {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		all[i] = ranked{idx: i, mean: sum / float64(len(row))}
	}
	sort.Slice(all, func(a, b int) bool { return all[a].mean > all[b].mean })
	if n > len(all) {
		n = len(all)
	}
	out := make([]int, n)
	for k := 0; k < n; k++ {
		out[k] = all[k].idx
	}
	return out
}

// zScore centers and scales one gene row. A constant row maps to zeros.
func zScore(row []float64) []float64 {
	mean := floats.Sum(row) / float64(len(row))
	ss := 0.0
	for _, v := range row {
		d := v - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(row)))
	out := make([]float64, len(row))
	if sd == 0 {
		return out
	}
	for j, v := range row {
		out[j] = (v - mean) / sd
	}
	return out
}

// rowDistances builds the Euclidean distance matrix between rows.
func rowDistances(rows [][]float64) [][]float64 {
	n := len(rows)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(rows[i], rows[j], 2)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

func transpose(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]float64, len(rows[0]))
	for j := range out {
		col := make([]float64, len(rows))
		for i := range rows {
			col[i] = rows[i][j]
		}
		out[j] = col
	}
	return out
}
