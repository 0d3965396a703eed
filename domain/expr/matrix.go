package expr

import "fmt"

// ExpressionMatrix is a dense float matrix over the same gene/sample keys as
// a CountsMatrix. The engine produces these for normalized and
// variance-stabilized expression values.
type ExpressionMatrix struct {
	Genes   []GeneID    `json:"genes"`
	Samples []SampleID  `json:"samples"`
	Values  [][]float64 `json:"values"` // row-major, genes x samples
}

// NumGenes returns the number of rows.
func (m *ExpressionMatrix) NumGenes() int { return len(m.Genes) }

// NumSamples returns the number of columns.
func (m *ExpressionMatrix) NumSamples() int { return len(m.Samples) }

// Row returns the expression vector for a row index.
func (m *ExpressionMatrix) Row(i int) []float64 { return m.Values[i] }

// SampleVector copies column j into a new slice (one value per gene).
func (m *ExpressionMatrix) SampleVector(j int) []float64 {
	out := make([]float64, len(m.Values))
	for i := range m.Values {
		out[i] = m.Values[i][j]
	}
	return out
}

// SubsetRows returns a new matrix restricted to the given row indices,
// in the given order.
func (m *ExpressionMatrix) SubsetRows(rows []int) (*ExpressionMatrix, error) {
	genes := make([]GeneID, len(rows))
	values := make([][]float64, len(rows))
	for k, i := range rows {
		if i < 0 || i >= len(m.Genes) {
			return nil, fmt.Errorf("row index %d out of range [0,%d)", i, len(m.Genes))
		}
		genes[k] = m.Genes[i]
		values[k] = m.Values[i]
	}
	return &ExpressionMatrix{Genes: genes, Samples: m.Samples, Values: values}, nil
}
