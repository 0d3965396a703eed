package views

import (
	"gonum.org/v1/gonum/floats"

	"rnadash/domain/expr"
)

// DistanceData is the sample-to-sample distance payload: a symmetric matrix
// of Euclidean distances over variance-stabilized expression, with samples
// ordered by clustering so related samples sit together.
type DistanceData struct {
	Samples    []expr.SampleID `json:"samples"`
	Conditions []string        `json:"conditions"`
	Matrix     [][]float64     `json:"matrix"`
}

// SampleDistance computes pairwise Euclidean distances between the samples'
// variance-stabilized expression vectors.
func (s *Service) SampleDistance() (*DistanceData, error) {
	model, snap, err := s.model("distance")
	if err != nil {
		return nil, err
	}
	vst, err := s.engine.VST(model)
	if err != nil {
		return nil, err
	}

	n := vst.NumSamples()
	cols := make([][]float64, n)
	for j := 0; j < n; j++ {
		cols[j] = vst.SampleVector(j)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(cols[i], cols[j], 2)
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	order := averageLinkageOrder(dist)
	out := &DistanceData{
		Samples:    make([]expr.SampleID, n),
		Conditions: make([]string, n),
		Matrix:     make([][]float64, n),
	}
	for a, i := range order {
		out.Samples[a] = vst.Samples[i]
		cond, _ := snap.Samples.ConditionOf(vst.Samples[i])
		out.Conditions[a] = cond
		row := make([]float64, n)
		for b, j := range order {
			row[b] = dist[i][j]
		}
		out.Matrix[a] = row
	}
	return out, nil
}
