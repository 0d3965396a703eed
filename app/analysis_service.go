// Package app orchestrates the analysis pipeline: read the uploaded pair,
// validate, fit the model, and commit the results as the dashboard's
// current snapshot.
package app

import (
	"context"
	stderrors "errors"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rnadash/adapters/tabular"
	"rnadash/domain/core"
	"rnadash/domain/expr"
	"rnadash/internal"
	"rnadash/internal/errors"
	"rnadash/internal/session"
	"rnadash/ports"
)

// Pipeline checkpoints reported after each stage completes.
const (
	progressRead     = 0.2
	progressValidate = 0.4
	progressDesign   = 0.6
	progressFit      = 0.8
	progressResults  = 1.0
)

// UploadPair locates the two staged upload files for one run. TempDir, when
// set, is removed once the run finishes either way.
type UploadPair struct {
	CountsPath  string
	CountsExt   string
	SamplesPath string
	SamplesExt  string
	TempDir     string
}

// RunStatus is a point-in-time view of the pipeline for polling clients.
type RunStatus struct {
	RunID         core.RunID `json:"run_id,omitempty"`
	Running       bool       `json:"running"`
	Stage         string     `json:"stage,omitempty"`
	Progress      float64    `json:"progress"`
	StartedAt     time.Time  `json:"started_at,omitempty"`
	Generation    uint64     `json:"generation"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorCode string     `json:"last_error_code,omitempty"`
}

// AnalysisService runs at most one analysis at a time. A request that
// arrives while a run is active is rejected rather than queued; the previous
// committed snapshot stays live until a new run commits.
type AnalysisService struct {
	engine ports.Engine
	store  *session.Store
	sink   ports.ProgressSink
	logger *internal.Logger

	mu        sync.Mutex
	running   bool
	runID     core.RunID
	cancelRun context.CancelFunc
	stage     string
	progress  float64
	startedAt time.Time
	lastErr   string
	lastCode  string
}

// NewAnalysisService wires the orchestrator.
func NewAnalysisService(engine ports.Engine, store *session.Store, sink ports.ProgressSink, logger *internal.Logger) *AnalysisService {
	if sink == nil {
		sink = ports.NopSink{}
	}
	return &AnalysisService{
		engine: engine,
		store:  store,
		sink:   sink,
		logger: logger,
	}
}

// StartRun launches the pipeline for a staged upload pair and returns the
// run identifier immediately. Fails with a run-in-progress error when a run
// is already active.
func (s *AnalysisService) StartRun(upload UploadPair) (core.RunID, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", errors.RunInProgress()
	}
	runID := core.NewRunID()
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.runID = runID
	s.cancelRun = cancel
	s.stage = ports.StageRead
	s.progress = 0
	s.startedAt = time.Now().UTC()
	s.lastErr = ""
	s.lastCode = ""
	s.mu.Unlock()

	s.logger.Info("[Analysis] Run %s started (counts=%s samples=%s)", runID, upload.CountsPath, upload.SamplesPath)
	go s.run(ctx, runID, upload)
	return runID, nil
}

// Cancel aborts the active run, if any. The committed snapshot is untouched.
func (s *AnalysisService) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cancelRun == nil {
		return false
	}
	s.cancelRun()
	return true
}

// Status reports the current pipeline state and the committed generation.
func (s *AnalysisService) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := RunStatus{
		Running:       s.running,
		Stage:         s.stage,
		Progress:      s.progress,
		Generation:    s.store.Generation(),
		LastError:     s.lastErr,
		LastErrorCode: s.lastCode,
	}
	if s.running {
		st.RunID = s.runID
		st.StartedAt = s.startedAt
	}
	return st
}

func (s *AnalysisService) run(ctx context.Context, runID core.RunID, upload UploadPair) {
	defer func() {
		if upload.TempDir != "" {
			if err := os.RemoveAll(upload.TempDir); err != nil {
				s.logger.Warn("[Analysis] Failed to remove staging dir %s: %v", upload.TempDir, err)
			}
		}
		s.mu.Lock()
		s.running = false
		s.cancelRun = nil
		s.mu.Unlock()
	}()

	// Stage 1: read both uploads concurrently.
	var counts *expr.CountsMatrix
	var samples *expr.SampleSheet
	var g errgroup.Group
	g.Go(func() error {
		r, err := tabular.NewReader(upload.CountsPath, upload.CountsExt)
		if err != nil {
			return err
		}
		counts, err = r.ReadCounts()
		return err
	})
	g.Go(func() error {
		r, err := tabular.NewReader(upload.SamplesPath, upload.SamplesExt)
		if err != nil {
			return err
		}
		samples, err = r.ReadSamples()
		return err
	})
	if err := waitReaders(&g, ctx); err != nil {
		s.fail(runID, ports.StageRead, err)
		return
	}
	s.checkpoint(runID, ports.StageRead, progressRead, "input files parsed", map[string]interface{}{
		"genes":   counts.NumGenes(),
		"samples": counts.NumSamples(),
	})

	// Stage 2: validate the pair. A mismatch leaves the previous snapshot
	// untouched and reports the exact offending identifiers.
	if err := expr.Validate(counts, samples); err != nil {
		s.fail(runID, ports.StageValidate, err)
		return
	}
	s.checkpoint(runID, ports.StageValidate, progressValidate, "metadata matches counts columns", nil)

	// Stage 3: resolve the design. The first condition in sheet order is
	// the reference level, the last is the test level.
	levels := samples.Conditions()
	if len(levels) < 2 {
		s.fail(runID, ports.StageDesign, errors.InvalidInput("condition column needs at least two distinct values"))
		return
	}
	s.checkpoint(runID, ports.StageDesign, progressDesign, "design resolved", map[string]interface{}{
		"reference":  levels[0],
		"test":       levels[len(levels)-1],
		"conditions": samples.ConditionCounts(),
	})

	// Stage 4: fit. The only long stage; cancellation lands here.
	model, err := s.engine.Fit(ctx, counts, samples, expr.ConditionColumn)
	if err != nil {
		s.fail(runID, ports.StageFit, err)
		return
	}
	s.checkpoint(runID, ports.StageFit, progressFit, "model fitted", nil)

	results, err := s.engine.Results(model)
	if err != nil {
		s.fail(runID, ports.StageResults, err)
		return
	}

	// A cancel that landed after the fit returned must not publish.
	if err := ctx.Err(); err != nil {
		s.fail(runID, ports.StageResults, err)
		return
	}

	gen := s.store.Commit(&session.Snapshot{
		RunID:   runID,
		Counts:  counts,
		Samples: samples,
		Model:   model,
		Results: results,
	})
	summary := results.Summarize()
	s.logger.Info("[Analysis] Run %s committed generation %d (%d genes, %d significant)",
		runID, gen, summary.TotalGenes, summary.SignificantUp+summary.SignificantDown)
	s.emitDone(runID, map[string]interface{}{
		"contrast":   results.Contrast,
		"generation": gen,
		"summary":    summary,
	})
}

// waitReaders waits for the read group but reports a plain cancellation
// when the run context, not a file, caused the failure.
func waitReaders(g *errgroup.Group, ctx context.Context) error {
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *AnalysisService) checkpoint(runID core.RunID, stage string, progress float64, message string, data map[string]interface{}) {
	s.mu.Lock()
	s.stage = stage
	s.progress = progress
	s.mu.Unlock()
	s.sink.Emit(ports.ProgressEvent{
		RunID:    runID,
		Stage:    stage,
		Progress: progress,
		Message:  message,
		Data:     data,
	})
}

func (s *AnalysisService) fail(runID core.RunID, stage string, err error) {
	code := errors.GetCode(err)
	if code == "UNKNOWN" {
		switch {
		case stderrors.Is(err, context.Canceled):
			code = errors.CodeRunCancelled
		case expr.IsSampleMismatch(err):
			code = errors.CodeSampleMismatch
		case stage == ports.StageFit:
			code = errors.CodeEngineError
		default:
			code = errors.CodeInvalidInput
		}
	}

	event := ports.ProgressEvent{
		RunID:   runID,
		Stage:   stage,
		Done:    true,
		Err:     err.Error(),
		ErrCode: code,
	}
	var mismatch *expr.SampleMismatchError
	if stderrors.As(err, &mismatch) {
		event.Data = map[string]interface{}{"missing_samples": mismatch.MissingStrings()}
	}

	s.mu.Lock()
	s.lastErr = err.Error()
	s.lastCode = code
	s.mu.Unlock()

	s.logger.Error("[Analysis] Run %s failed at %s stage: %v", runID, stage, err)
	s.sink.Emit(event)
}

func (s *AnalysisService) emitDone(runID core.RunID, data map[string]interface{}) {
	s.mu.Lock()
	s.stage = ports.StageResults
	s.progress = progressResults
	s.mu.Unlock()
	s.sink.Emit(ports.ProgressEvent{
		RunID:    runID,
		Stage:    ports.StageResults,
		Progress: progressResults,
		Message:  "results committed",
		Done:     true,
		Data:     data,
	})
}
