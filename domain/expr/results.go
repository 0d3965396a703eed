package expr

import "math"

// Volcano/summary significance thresholds used across the dashboard.
const (
	SignificanceAlpha = 0.05
	FoldChangeCutoff  = 1.0
)

// GeneResult is one row of the differential-expression result table.
type GeneResult struct {
	Gene           GeneID  `json:"gene"`
	BaseMean       float64 `json:"base_mean"`
	Log2FoldChange float64 `json:"log2_fold_change"`
	LfcSE          float64 `json:"lfc_se"`
	Dispersion     float64 `json:"dispersion"`
	Stat           float64 `json:"stat"`
	PValue         float64 `json:"p_value"`
	AdjPValue      float64 `json:"adj_p_value"`
}

// Significant reports whether the gene clears both the adjusted-p and the
// fold-change thresholds.
func (r GeneResult) Significant() bool {
	if math.IsNaN(r.AdjPValue) {
		return false
	}
	return r.AdjPValue < SignificanceAlpha && math.Abs(r.Log2FoldChange) > FoldChangeCutoff
}

// ResultTable holds per-gene statistics in the counts matrix gene order.
type ResultTable struct {
	// Contrast is "<test> vs <reference>" for the design factor levels compared.
	Contrast  string       `json:"contrast"`
	Reference string       `json:"reference"`
	Test      string       `json:"test"`
	Rows      []GeneResult `json:"rows"`
}

// Summary aggregates the table for the dashboard summary strip.
type Summary struct {
	TotalGenes      int `json:"total_genes"`
	SignificantUp   int `json:"significant_up"`
	SignificantDown int `json:"significant_down"`
	TestedGenes     int `json:"tested_genes"`
}

// Summarize computes significance counts at the dashboard thresholds.
func (t *ResultTable) Summarize() Summary {
	s := Summary{TotalGenes: len(t.Rows)}
	for _, row := range t.Rows {
		if !math.IsNaN(row.PValue) {
			s.TestedGenes++
		}
		if !row.Significant() {
			continue
		}
		if row.Log2FoldChange > 0 {
			s.SignificantUp++
		} else {
			s.SignificantDown++
		}
	}
	return s
}
