package views

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"rnadash/domain/expr"
	"rnadash/internal/errors"
)

// pcaTopGenes caps the PCA input at the most variable genes, the standard
// trick to keep the projection driven by signal rather than noise floor.
const pcaTopGenes = 500

// PCASample is one sample projected onto the first two principal components.
type PCASample struct {
	Sample    expr.SampleID `json:"sample"`
	Condition string        `json:"condition"`
	PC1       float64       `json:"pc1"`
	PC2       float64       `json:"pc2"`
}

// PCAData is the sample PCA payload.
type PCAData struct {
	Samples    []PCASample `json:"samples"`
	PercentVar [2]float64  `json:"percent_var"`
}

// PCA projects the samples onto the first two principal components of the
// variance-stabilized expression of the most variable genes.
func (s *Service) PCA() (*PCAData, error) {
	model, snap, err := s.model("pca")
	if err != nil {
		return nil, err
	}
	vst, err := s.engine.VST(model)
	if err != nil {
		return nil, err
	}
	if vst.NumSamples() < 3 {
		return nil, errors.NoData("pca")
	}

	top := topGenesByVariance(vst, pcaTopGenes)
	sub, err := vst.SubsetRows(top)
	if err != nil {
		return nil, err
	}

	// Observations are samples, variables are genes: center each gene
	// column across samples before the decomposition.
	nSamples, nGenes := sub.NumSamples(), sub.NumGenes()
	data := mat.NewDense(nSamples, nGenes, nil)
	for g := 0; g < nGenes; g++ {
		col := sub.Values[g]
		mean := 0.0
		for _, v := range col {
			mean += v
		}
		mean /= float64(nSamples)
		for j := 0; j < nSamples; j++ {
			data.Set(j, g, col[j]-mean)
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, errors.InternalError("principal component decomposition failed")
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)
	var projected mat.Dense
	projected.Mul(data, &vectors)

	vars := pc.VarsTo(nil)
	total := 0.0
	for _, v := range vars {
		total += v
	}

	out := &PCAData{Samples: make([]PCASample, nSamples)}
	if total > 0 && len(vars) >= 2 {
		out.PercentVar = [2]float64{100 * vars[0] / total, 100 * vars[1] / total}
	}
	for j := 0; j < nSamples; j++ {
		cond, _ := snap.Samples.ConditionOf(sub.Samples[j])
		ps := PCASample{Sample: sub.Samples[j], Condition: cond, PC1: projected.At(j, 0)}
		if projected.RawMatrix().Cols > 1 {
			ps.PC2 = projected.At(j, 1)
		}
		out.Samples[j] = ps
	}
	return out, nil
}

// topGenesByVariance returns row indices of the n highest-variance genes.
func topGenesByVariance(m *expr.ExpressionMatrix, n int) []int {
	type ranked struct {
		idx int
		v   float64
	}
	all := make([]ranked, m.NumGenes())
	for i, row := range m.Values {
		all[i] = ranked{idx: i, v: stat.Variance(row, nil)}
	}
	sort.Slice(all, func(a, b int) bool { return all[a].v > all[b].v })
	if n > len(all) {
		n = len(all)
	}
	out := make([]int, n)
	for k := 0; k < n; k++ {
		out[k] = all[k].idx
	}
	return out
}
