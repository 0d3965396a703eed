package engine

import (
	"math"

	"rnadash/domain/expr"
	"rnadash/ports"
)

// MAPlot builds the MA diagnostic payload: mean normalized expression against
// log2 fold change, one point per gene with any expression. Significance
// follows the adjusted p-value at the standard threshold.
func (e *Engine) MAPlot(model ports.AnalysisModel) (*ports.MAPlotData, error) {
	m, err := unwrap(model)
	if err != nil {
		return nil, err
	}
	data := &ports.MAPlotData{
		Contrast: m.results.Contrast,
		Points:   make([]ports.MAPoint, 0, len(m.results.Rows)),
	}
	for _, r := range m.results.Rows {
		if r.BaseMean <= 0 || math.IsNaN(r.Log2FoldChange) {
			continue
		}
		data.Points = append(data.Points, ports.MAPoint{
			Gene:        r.Gene,
			BaseMean:    r.BaseMean,
			Log2FC:      r.Log2FoldChange,
			Significant: !math.IsNaN(r.AdjPValue) && r.AdjPValue < expr.SignificanceAlpha,
		})
	}
	return data, nil
}

// DispersionPlot builds the dispersion diagnostic payload: gene-wise, fitted
// and final estimates per expressed gene against mean expression.
func (e *Engine) DispersionPlot(model ports.AnalysisModel) (*ports.DispersionPlotData, error) {
	m, err := unwrap(model)
	if err != nil {
		return nil, err
	}
	data := &ports.DispersionPlotData{
		Points: make([]ports.DispersionPoint, 0, len(m.genes)),
	}
	for i, g := range m.genes {
		if m.baseMean[i] <= 0 {
			continue
		}
		data.Points = append(data.Points, ports.DispersionPoint{
			Gene:     g,
			BaseMean: m.baseMean[i],
			GeneWise: m.dispGeneWise[i],
			Fitted:   m.dispFitted[i],
			Final:    m.dispFinal[i],
		})
	}
	return data, nil
}
