package views

import (
	"math"

	"rnadash/domain/expr"
)

// VolcanoPoint is one tested gene on the volcano plot.
type VolcanoPoint struct {
	Gene        expr.GeneID `json:"gene"`
	Log2FC      float64     `json:"log2_fc"`
	NegLog10P   float64     `json:"neg_log10_padj"`
	Significant bool        `json:"significant"`
}

// VolcanoData is the volcano plot payload with the thresholds drawn as
// guide lines on the client.
type VolcanoData struct {
	Contrast        string         `json:"contrast"`
	AlphaThreshold  float64        `json:"alpha_threshold"`
	FoldChangeLimit float64        `json:"fold_change_limit"`
	Points          []VolcanoPoint `json:"points"`
}

// maxNegLog10 caps the y axis when padj underflows to zero.
const maxNegLog10 = 320.0

// Volcano plots adjusted significance against fold change for every tested
// gene. Untestable genes are omitted. The alpha threshold applies to the
// BH-adjusted p-value, not the raw p-value, matching GeneResult.Significant.
func (s *Service) Volcano() (*VolcanoData, error) {
	table, err := s.resultTable("volcano")
	if err != nil {
		return nil, err
	}

	data := &VolcanoData{
		Contrast:        table.Contrast,
		AlphaThreshold:  expr.SignificanceAlpha,
		FoldChangeLimit: expr.FoldChangeCutoff,
		Points:          make([]VolcanoPoint, 0, len(table.Rows)),
	}
	for _, r := range table.Rows {
		if math.IsNaN(r.AdjPValue) {
			continue
		}
		y := maxNegLog10
		if r.AdjPValue > 0 {
			y = -math.Log10(r.AdjPValue)
			if y > maxNegLog10 {
				y = maxNegLog10
			}
		}
		data.Points = append(data.Points, VolcanoPoint{
			Gene:        r.Gene,
			Log2FC:      r.Log2FoldChange,
			NegLog10P:   y,
			Significant: r.Significant(),
		})
	}
	return data, nil
}
