package engine

import (
	"rnadash/domain/expr"
)

// Model is the fitted differential-expression model. It is produced once by
// Fit and never mutated afterwards; a re-run produces a fresh Model. Callers
// outside this package only see it through ports.AnalysisModel.
type Model struct {
	genes   []expr.GeneID
	samples []expr.SampleID // design samples, sample-sheet order

	factor     string
	conditions []string // per design sample
	reference  string
	test       string

	sizeFactors []float64
	normalized  [][]float64 // genes x design samples
	baseMean    []float64

	dispGeneWise []float64
	dispFitted   []float64
	dispFinal    []float64

	// Parametric dispersion trend alpha(mu) = trendA0 + trendA1/mu.
	// trendOK is false when the fit degenerated and the VST falls back to a
	// shifted-log transform.
	trendA0 float64
	trendA1 float64
	trendOK bool

	results *expr.ResultTable
}

// Contrast returns the design factor levels compared, test vs reference.
func (m *Model) Contrast() (reference, test string) {
	return m.reference, m.test
}

// NumGenes returns the number of genes in the fitted model.
func (m *Model) NumGenes() int { return len(m.genes) }

// NumSamples returns the number of design samples in the fitted model.
func (m *Model) NumSamples() int { return len(m.samples) }

// conditionIndices returns the design-sample indices carrying the level.
func (m *Model) conditionIndices(level string) []int {
	var idx []int
	for j, c := range m.conditions {
		if c == level {
			idx = append(idx, j)
		}
	}
	return idx
}
