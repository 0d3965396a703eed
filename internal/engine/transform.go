package engine

import (
	"math"

	"rnadash/domain/expr"
	"rnadash/ports"
)

// NormalizedCounts returns the size-factor-normalized matrix, genes by design
// samples in model order.
func (e *Engine) NormalizedCounts(model ports.AnalysisModel) (*expr.ExpressionMatrix, error) {
	m, err := unwrap(model)
	if err != nil {
		return nil, err
	}
	values := make([][]float64, len(m.normalized))
	for i, row := range m.normalized {
		values[i] = append([]float64(nil), row...)
	}
	return &expr.ExpressionMatrix{
		Genes:   m.genes,
		Samples: m.samples,
		Values:  values,
	}, nil
}

// VST applies the closed-form variance-stabilizing transform implied by the
// parametric dispersion trend alpha(mu) = a0 + a1/mu to the normalized
// counts. When the trend fit degenerated it falls back to log2(q + 1), which
// preserves the monotone ordering the downstream views rely on.
func (e *Engine) VST(model ports.AnalysisModel) (*expr.ExpressionMatrix, error) {
	m, err := unwrap(model)
	if err != nil {
		return nil, err
	}
	values := make([][]float64, len(m.normalized))
	for i, row := range m.normalized {
		out := make([]float64, len(row))
		for j, q := range row {
			if m.trendOK {
				out[j] = glog(q, m.trendA0, m.trendA1)
			} else {
				out[j] = math.Log2(q + 1)
			}
		}
		values[i] = out
	}
	return &expr.ExpressionMatrix{
		Genes:   m.genes,
		Samples: m.samples,
		Values:  values,
	}, nil
}

// glog is the generalized-log transform for NB counts with dispersion trend
// a0 + a1/mu. It is monotone in q and asymptotically log2(q) for large q.
func glog(q, a0, a1 float64) float64 {
	num := 1 + a1 + 2*a0*q + 2*math.Sqrt(a0*q*(1+a1+a0*q))
	return math.Log2(num / (4 * a0))
}
