package ports

import (
	"context"

	"rnadash/domain/expr"
)

// AnalysisModel is the opaque fitted-model handle produced by the engine.
// The application owns it only through the session store and never inspects
// it beyond this surface; a re-run replaces the handle, it is never mutated.
type AnalysisModel interface {
	// Contrast returns the design factor levels compared, "test vs reference".
	Contrast() (reference, test string)
	NumGenes() int
	NumSamples() int
}

// Engine is the statistical collaborator that fits a differential-expression
// model and derives result tables, normalized matrices and its built-in
// diagnostic plot payloads from it.
type Engine interface {
	// Fit estimates the model from counts + metadata grouped by the design
	// factor. The single expensive operation in the system; it honors
	// context cancellation.
	Fit(ctx context.Context, counts *expr.CountsMatrix, samples *expr.SampleSheet, factor string) (AnalysisModel, error)

	// Results extracts the per-gene statistics table, deterministic for a
	// given model, rows in counts-matrix gene order.
	Results(model AnalysisModel) (*expr.ResultTable, error)

	// NormalizedCounts returns counts divided by per-sample size factors.
	NormalizedCounts(model AnalysisModel) (*expr.ExpressionMatrix, error)

	// VST returns the variance-stabilized expression matrix used by the
	// heatmap, PCA and sample-distance views.
	VST(model AnalysisModel) (*expr.ExpressionMatrix, error)

	// MAPlot returns the engine's built-in MA diagnostic payload.
	MAPlot(model AnalysisModel) (*MAPlotData, error)

	// DispersionPlot returns the engine's built-in dispersion-estimate
	// diagnostic payload.
	DispersionPlot(model AnalysisModel) (*DispersionPlotData, error)
}

// MAPoint is one gene on the MA diagnostic: mean expression vs fold change.
type MAPoint struct {
	Gene        expr.GeneID `json:"gene"`
	BaseMean    float64     `json:"base_mean"`
	Log2FC      float64     `json:"log2_fc"`
	Significant bool        `json:"significant"`
}

// MAPlotData is the engine's MA diagnostic payload.
type MAPlotData struct {
	Contrast string    `json:"contrast"`
	Points   []MAPoint `json:"points"`
}

// DispersionPoint carries the three dispersion estimates for one gene.
type DispersionPoint struct {
	Gene     expr.GeneID `json:"gene"`
	BaseMean float64     `json:"base_mean"`
	GeneWise float64     `json:"gene_wise"`
	Fitted   float64     `json:"fitted"`
	Final    float64     `json:"final"`
}

// DispersionPlotData is the engine's dispersion diagnostic payload.
type DispersionPlotData struct {
	Points []DispersionPoint `json:"points"`
}
