// Package engine fits a negative-binomial differential-expression model to a
// counts matrix: median-of-ratios size factors, moment-based per-gene
// dispersion shrunk toward a parametric trend, and a two-group Wald test on
// the log2 fold change with Benjamini-Hochberg adjustment.
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"rnadash/domain/expr"
	"rnadash/ports"
)

const (
	// minDispersion floors gene-wise and fitted estimates.
	minDispersion = 1e-8
	// lfcPseudoCount stabilizes fold changes for low-count genes.
	lfcPseudoCount = 0.5
	// dispersionOutlierFactor: gene-wise estimates this far above the trend
	// are kept unshrunk, matching the usual outlier treatment.
	dispersionOutlierFactor = 10.0
	// cancelCheckStride bounds how often per-gene loops poll the context.
	cancelCheckStride = 1024
)

// Engine implements ports.Engine. Stateless; all per-run state lives in the
// Model returned by Fit.
type Engine struct{}

// New creates the engine.
func New() *Engine { return &Engine{} }

var _ ports.Engine = (*Engine)(nil)

// Fit estimates the model. The design is restricted to the samples present
// in the sheet, in sheet order; the reference level is the first condition
// seen in the sheet and the test level the last.
func (e *Engine) Fit(ctx context.Context, counts *expr.CountsMatrix, samples *expr.SampleSheet, factor string) (ports.AnalysisModel, error) {
	if factor != expr.ConditionColumn && !samples.HasColumn(factor) {
		return nil, fmt.Errorf("design factor %q not present in sample metadata", factor)
	}

	m := &Model{
		genes:  counts.Genes,
		factor: factor,
	}

	// Design: one column per sheet sample, resolved against the counts matrix.
	cols := make([]int, 0, samples.NumSamples())
	for _, rec := range samples.Records {
		j, ok := counts.SampleColumn(rec.ID)
		if !ok {
			return nil, fmt.Errorf("sample %q has metadata but no counts column", rec.ID)
		}
		cols = append(cols, j)
		m.samples = append(m.samples, rec.ID)
		m.conditions = append(m.conditions, rec.Fields[factor])
	}

	levels := distinctLevels(m.conditions)
	if len(levels) < 2 {
		return nil, fmt.Errorf("design factor %q has fewer than two levels", factor)
	}
	m.reference = levels[0]
	m.test = levels[len(levels)-1]

	raw := make([][]float64, counts.NumGenes())
	for i, row := range counts.Counts {
		raw[i] = make([]float64, len(cols))
		for k, j := range cols {
			raw[i][k] = float64(row[j])
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sf, err := estimateSizeFactors(raw)
	if err != nil {
		return nil, err
	}
	m.sizeFactors = sf

	m.normalized = make([][]float64, len(raw))
	m.baseMean = make([]float64, len(raw))
	for i, row := range raw {
		norm := make([]float64, len(row))
		sum := 0.0
		for j, v := range row {
			norm[j] = v / sf[j]
			sum += norm[j]
		}
		m.normalized[i] = norm
		m.baseMean[i] = sum / float64(len(norm))
	}

	if err := e.estimateDispersions(ctx, m); err != nil {
		return nil, err
	}
	if err := e.waldTest(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Results returns the per-gene statistics table computed at fit time.
func (e *Engine) Results(model ports.AnalysisModel) (*expr.ResultTable, error) {
	m, err := unwrap(model)
	if err != nil {
		return nil, err
	}
	return m.results, nil
}

func unwrap(model ports.AnalysisModel) (*Model, error) {
	m, ok := model.(*Model)
	if !ok || m == nil {
		return nil, fmt.Errorf("model was not produced by this engine")
	}
	return m, nil
}

func distinctLevels(conditions []string) []string {
	seen := make(map[string]bool, 4)
	var levels []string
	for _, c := range conditions {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		levels = append(levels, c)
	}
	return levels
}

// estimateSizeFactors computes median-of-ratios size factors: each sample's
// median ratio to the per-gene geometric mean, over genes expressed in every
// sample. Falls back to depth ratios when no gene qualifies.
func estimateSizeFactors(raw [][]float64) ([]float64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("cannot estimate size factors from an empty matrix")
	}
	nSamples := len(raw[0])

	logGeoMeans := make([]float64, len(raw))
	usable := make([]bool, len(raw))
	for i, row := range raw {
		sumLog := 0.0
		allPositive := true
		for _, v := range row {
			if v <= 0 {
				allPositive = false
				break
			}
			sumLog += math.Log(v)
		}
		if allPositive {
			logGeoMeans[i] = sumLog / float64(nSamples)
			usable[i] = true
		}
	}

	sf := make([]float64, nSamples)
	for j := 0; j < nSamples; j++ {
		var logRatios []float64
		for i, row := range raw {
			if usable[i] {
				logRatios = append(logRatios, math.Log(row[j])-logGeoMeans[i])
			}
		}
		if len(logRatios) == 0 {
			return depthSizeFactors(raw)
		}
		med, err := stats.Median(logRatios)
		if err != nil {
			return nil, err
		}
		sf[j] = math.Exp(med)
		if sf[j] <= 0 || math.IsNaN(sf[j]) {
			return nil, fmt.Errorf("degenerate size factor for sample column %d", j)
		}
	}
	return sf, nil
}

// depthSizeFactors normalizes by sequencing depth, scaled so the factors
// have geometric mean one. Used only when no gene is expressed everywhere.
func depthSizeFactors(raw [][]float64) ([]float64, error) {
	nSamples := len(raw[0])
	totals := make([]float64, nSamples)
	for _, row := range raw {
		for j, v := range row {
			totals[j] += v
		}
	}
	sumLog := 0.0
	for j, t := range totals {
		if t <= 0 {
			return nil, fmt.Errorf("sample column %d has zero total counts", j)
		}
		sumLog += math.Log(totals[j])
	}
	geo := math.Exp(sumLog / float64(nSamples))
	sf := make([]float64, nSamples)
	for j, t := range totals {
		sf[j] = t / geo
	}
	return sf, nil
}

// estimateDispersions fills gene-wise, trend-fitted and final dispersions.
//
// Gene-wise: method of moments on normalized counts with pooled within-group
// variance, alpha = (var - xim*mu) / mu^2 where xim is the mean reciprocal
// size factor. Trend: parametric alpha(mu) = a0 + a1/mu by least squares on
// the positive gene-wise estimates. Final: geometric blend of gene-wise and
// trend, keeping far-outlying gene-wise estimates unshrunk.
func (e *Engine) estimateDispersions(ctx context.Context, m *Model) error {
	nGenes := len(m.normalized)
	m.dispGeneWise = make([]float64, nGenes)
	m.dispFitted = make([]float64, nGenes)
	m.dispFinal = make([]float64, nGenes)

	xim := 0.0
	for _, s := range m.sizeFactors {
		xim += 1 / s
	}
	xim /= float64(len(m.sizeFactors))

	groups := make(map[string][]int, 4)
	for j, c := range m.conditions {
		groups[c] = append(groups[c], j)
	}

	for i, row := range m.normalized {
		if i%cancelCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		mu := m.baseMean[i]
		if mu <= 0 {
			m.dispGeneWise[i] = minDispersion
			continue
		}

		// Pooled within-group variance: residual sum of squares around each
		// group mean, df = n - number of groups with replication.
		rss := 0.0
		df := 0
		for _, idx := range groups {
			if len(idx) < 2 {
				continue
			}
			groupSum := 0.0
			for _, j := range idx {
				groupSum += row[j]
			}
			groupMean := groupSum / float64(len(idx))
			for _, j := range idx {
				d := row[j] - groupMean
				rss += d * d
			}
			df += len(idx) - 1
		}
		if df == 0 {
			// No replicated group: treat all samples as one group, the
			// conservative blind estimate.
			mean, _ := stats.Mean(row)
			variance, _ := stats.SampleVariance(row)
			rss = variance * float64(len(row)-1)
			df = len(row) - 1
			mu = mean
		}

		pooledVar := rss / float64(df)
		alpha := (pooledVar - xim*mu) / (mu * mu)
		if alpha < minDispersion || math.IsNaN(alpha) {
			alpha = minDispersion
		}
		m.dispGeneWise[i] = alpha
	}

	e.fitDispersionTrend(m)

	for i := range m.dispFinal {
		fitted := m.dispFitted[i]
		gene := m.dispGeneWise[i]
		if gene > dispersionOutlierFactor*fitted {
			m.dispFinal[i] = gene
			continue
		}
		// Geometric mean of gene-wise and trend, a fixed-weight stand-in for
		// the posterior mode of the usual empirical-Bayes shrinkage.
		m.dispFinal[i] = math.Exp((math.Log(gene) + math.Log(fitted)) / 2)
	}
	return nil
}

// fitDispersionTrend fits alpha(mu) = a0 + a1/mu by ordinary least squares
// over genes with informative gene-wise estimates, then fills dispFitted.
func (e *Engine) fitDispersionTrend(m *Model) {
	var ys, xs []float64 // y = alpha, x = 1/mu
	for i, alpha := range m.dispGeneWise {
		if alpha > minDispersion && m.baseMean[i] > 0 {
			ys = append(ys, alpha)
			xs = append(xs, 1/m.baseMean[i])
		}
	}

	a0, a1, ok := leastSquaresLine(xs, ys)
	if !ok || a0 <= 0 {
		// Degenerate trend: fall back to the median gene-wise dispersion.
		med, err := stats.Median(m.dispGeneWise)
		if err != nil || med < minDispersion {
			med = minDispersion
		}
		a0, a1, ok = med, 0, false
	}
	if a1 < 0 {
		a1 = 0
	}
	m.trendA0 = a0
	m.trendA1 = a1
	m.trendOK = ok

	for i := range m.dispFitted {
		mu := m.baseMean[i]
		fitted := a0
		if mu > 0 {
			fitted = a0 + a1/mu
		}
		if fitted < minDispersion {
			fitted = minDispersion
		}
		m.dispFitted[i] = fitted
	}
}

// leastSquaresLine fits y = a + b*x; ok is false when the data cannot
// support a fit.
func leastSquaresLine(xs, ys []float64) (a, b float64, ok bool) {
	n := float64(len(xs))
	if len(xs) < 3 {
		return 0, 0, false
	}
	var sx, sy, sxx, sxy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, 0, false
	}
	b = (n*sxy - sx*sy) / den
	a = (sy - b*sx) / n
	return a, b, true
}

// waldTest computes the per-gene log2 fold change test vs reference, its
// delta-method standard error under the negative-binomial variance, the
// Wald statistic and two-sided normal p-value, then BH-adjusts.
func (e *Engine) waldTest(ctx context.Context, m *Model) error {
	refIdx := m.conditionIndices(m.reference)
	testIdx := m.conditionIndices(m.test)
	if len(refIdx) == 0 || len(testIdx) == 0 {
		return fmt.Errorf("contrast %s vs %s has an empty group", m.test, m.reference)
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	rows := make([]expr.GeneResult, len(m.genes))
	ln2sq := math.Ln2 * math.Ln2

	for i, gene := range m.genes {
		if i%cancelCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		row := m.normalized[i]
		alpha := m.dispFinal[i]
		muRef := groupMean(row, refIdx)
		muTest := groupMean(row, testIdx)

		res := expr.GeneResult{
			Gene:       gene,
			BaseMean:   m.baseMean[i],
			Dispersion: alpha,
		}

		if m.baseMean[i] <= 0 {
			// All-zero gene: untestable, reported but excluded from the
			// multiple-testing family.
			res.PValue = math.NaN()
			res.AdjPValue = math.NaN()
			rows[i] = res
			continue
		}

		lfc := math.Log2((muTest + lfcPseudoCount) / (muRef + lfcPseudoCount))

		varRef := groupMeanVariance(muRef, alpha, refIdx, m.sizeFactors)
		varTest := groupMeanVariance(muTest, alpha, testIdx, m.sizeFactors)
		varLfc := varRef/(math.Pow(muRef+lfcPseudoCount, 2)*ln2sq) +
			varTest/(math.Pow(muTest+lfcPseudoCount, 2)*ln2sq)

		res.Log2FoldChange = lfc
		res.LfcSE = math.Sqrt(varLfc)
		if res.LfcSE > 0 {
			res.Stat = lfc / res.LfcSE
			res.PValue = 2 * normal.Survival(math.Abs(res.Stat))
		} else {
			res.PValue = 1
		}
		rows[i] = res
	}

	adjustBH(rows)

	m.results = &expr.ResultTable{
		Contrast:  fmt.Sprintf("%s vs %s", m.test, m.reference),
		Reference: m.reference,
		Test:      m.test,
		Rows:      rows,
	}
	return nil
}

func groupMean(row []float64, idx []int) float64 {
	sum := 0.0
	for _, j := range idx {
		sum += row[j]
	}
	return sum / float64(len(idx))
}

// groupMeanVariance is the variance of a group mean of normalized counts
// under the NB model: Var(K/s) = mu/s + alpha*mu^2 per sample.
func groupMeanVariance(mu, alpha float64, idx []int, sf []float64) float64 {
	sum := 0.0
	for _, j := range idx {
		sum += mu/sf[j] + alpha*mu*mu
	}
	n := float64(len(idx))
	return sum / (n * n)
}

// adjustBH fills AdjPValue with Benjamini-Hochberg adjusted p-values over
// the testable (non-NaN) rows.
func adjustBH(rows []expr.GeneResult) {
	type entry struct {
		idx int
		p   float64
	}
	var tested []entry
	for i, r := range rows {
		if !math.IsNaN(r.PValue) {
			tested = append(tested, entry{idx: i, p: r.PValue})
		}
	}
	sort.Slice(tested, func(a, b int) bool { return tested[a].p < tested[b].p })

	n := float64(len(tested))
	runningMin := math.Inf(1)
	for k := len(tested) - 1; k >= 0; k-- {
		adj := tested[k].p * n / float64(k+1)
		if adj < runningMin {
			runningMin = adj
		}
		if runningMin > 1 {
			rows[tested[k].idx].AdjPValue = 1
		} else {
			rows[tested[k].idx].AdjPValue = runningMin
		}
	}
}
