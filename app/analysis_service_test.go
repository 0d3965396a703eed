package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnadash/domain/expr"
	"rnadash/internal"
	"rnadash/internal/engine"
	"rnadash/internal/errors"
	"rnadash/internal/session"
	"rnadash/ports"
)

type captureSink struct {
	mu     sync.Mutex
	events []ports.ProgressEvent
}

func (c *captureSink) Emit(e ports.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) snapshot() []ports.ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.ProgressEvent(nil), c.events...)
}

func (c *captureSink) waitDone(t *testing.T) ports.ProgressEvent {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range c.snapshot() {
			if e.Done {
				return e
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run never reached a terminal event")
	return ports.ProgressEvent{}
}

func writeUpload(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newService(t *testing.T) (*AnalysisService, *session.Store, *captureSink) {
	t.Helper()
	store := session.NewStore()
	sink := &captureSink{}
	svc := NewAnalysisService(engine.New(), store, sink, internal.NewLogger(internal.LogLevelError))
	return svc, store, sink
}

const validCounts = `gene,S1,S2,S3,S4,S5,S6
G1,10,12,11,50,52,49
G2,40,38,42,12,10,11
`

const validSamples = `sample,condition
S1,control
S2,control
S3,control
S4,treated
S5,treated
S6,treated
`

func TestRunCommitsResults(t *testing.T) {
	svc, store, sink := newService(t)
	dir := t.TempDir()
	staging := filepath.Join(dir, "staging")
	require.NoError(t, os.MkdirAll(staging, 0o755))

	upload := UploadPair{
		CountsPath:  writeUpload(t, staging, "counts.csv", validCounts),
		CountsExt:   "csv",
		SamplesPath: writeUpload(t, staging, "samples.csv", validSamples),
		SamplesExt:  "csv",
		TempDir:     staging,
	}

	runID, err := svc.StartRun(upload)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	done := sink.waitDone(t)
	require.False(t, done.Failed(), "run failed: %s", done.Err)
	assert.Equal(t, ports.StageResults, done.Stage)
	assert.Equal(t, 1.0, done.Progress)

	snap := store.Current()
	require.NotNil(t, snap)
	assert.Equal(t, runID, snap.RunID)
	require.Len(t, snap.Results.Rows, 2)
	assert.Equal(t, "G1", string(snap.Results.Rows[0].Gene))
	assert.Equal(t, "G2", string(snap.Results.Rows[1].Gene))
	assert.Equal(t, "treated vs control", snap.Results.Contrast)

	// Checkpoints arrive in stage order with monotone progress.
	var progresses []float64
	for _, e := range sink.snapshot() {
		progresses = append(progresses, e.Progress)
	}
	require.GreaterOrEqual(t, len(progresses), 5)
	for i := 1; i < len(progresses); i++ {
		assert.LessOrEqual(t, progresses[i-1], progresses[i])
	}

	// The staging dir is cleaned up once the run finishes.
	waitFor(t, func() bool {
		_, err := os.Stat(staging)
		return os.IsNotExist(err)
	}, "staging dir never removed")
}

func TestRunSampleMismatchLeavesStateUntouched(t *testing.T) {
	svc, store, sink := newService(t)
	dir := t.TempDir()

	counts := "gene,S1,S2,S3\nG1,1,2,3\nG2,4,5,6\n"
	samples := "sample,condition\nS1,control\nS2,control\nS3,treated\nS4,treated\n"

	upload := UploadPair{
		CountsPath:  writeUpload(t, dir, "counts.csv", counts),
		CountsExt:   "csv",
		SamplesPath: writeUpload(t, dir, "samples.csv", samples),
		SamplesExt:  "csv",
	}

	_, err := svc.StartRun(upload)
	require.NoError(t, err)

	done := sink.waitDone(t)
	require.True(t, done.Failed())
	assert.Equal(t, errors.CodeSampleMismatch, done.ErrCode)
	assert.Equal(t, ports.StageValidate, done.Stage)
	require.NotNil(t, done.Data)
	assert.Equal(t, []string{"S4"}, done.Data["missing_samples"])

	assert.Nil(t, store.Current())
	assert.Equal(t, uint64(0), store.Generation())

	waitFor(t, func() bool { return !svc.Status().Running }, "service stayed busy")
	st := svc.Status()
	assert.Equal(t, errors.CodeSampleMismatch, st.LastErrorCode)
}

func TestRunUnsupportedFormat(t *testing.T) {
	svc, _, sink := newService(t)
	dir := t.TempDir()

	upload := UploadPair{
		CountsPath:  writeUpload(t, dir, "counts.xlsx", "not really a spreadsheet"),
		CountsExt:   "xlsx",
		SamplesPath: writeUpload(t, dir, "samples.csv", validSamples),
		SamplesExt:  "csv",
	}

	_, err := svc.StartRun(upload)
	require.NoError(t, err)

	done := sink.waitDone(t)
	require.True(t, done.Failed())
	assert.Equal(t, errors.CodeUnsupportedFormat, done.ErrCode)
}

// cancelDuringFitEngine triggers the run's cancel right before Fit returns,
// landing the cancellation between the fit and the commit.
type cancelDuringFitEngine struct {
	ports.Engine
	cancel func() bool
}

func (e *cancelDuringFitEngine) Fit(ctx context.Context, counts *expr.CountsMatrix, samples *expr.SampleSheet, factor string) (ports.AnalysisModel, error) {
	model, err := e.Engine.Fit(ctx, counts, samples, factor)
	e.cancel()
	return model, err
}

func TestCancelAfterFitDoesNotCommit(t *testing.T) {
	store := session.NewStore()
	sink := &captureSink{}
	eng := &cancelDuringFitEngine{Engine: engine.New()}
	svc := NewAnalysisService(eng, store, sink, internal.NewLogger(internal.LogLevelError))
	eng.cancel = svc.Cancel

	dir := t.TempDir()
	upload := UploadPair{
		CountsPath:  writeUpload(t, dir, "counts.csv", validCounts),
		CountsExt:   "csv",
		SamplesPath: writeUpload(t, dir, "samples.csv", validSamples),
		SamplesExt:  "csv",
	}

	_, err := svc.StartRun(upload)
	require.NoError(t, err)

	done := sink.waitDone(t)
	require.True(t, done.Failed())
	assert.Equal(t, errors.CodeRunCancelled, done.ErrCode)
	assert.Nil(t, store.Current())
	assert.Equal(t, uint64(0), store.Generation())
}

func TestStartRunRejectedWhileBusy(t *testing.T) {
	svc, _, _ := newService(t)

	svc.mu.Lock()
	svc.running = true
	svc.mu.Unlock()

	_, err := svc.StartRun(UploadPair{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeRunInProgress, errors.GetCode(err))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
