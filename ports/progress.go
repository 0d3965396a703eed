package ports

import (
	"time"

	"rnadash/domain/core"
)

// Pipeline stage names reported with each progress checkpoint.
const (
	StageRead     = "read"
	StageValidate = "validate"
	StageDesign   = "design"
	StageFit      = "fit"
	StageResults  = "results"
)

// ProgressEvent is one checkpoint emitted by the orchestrator. Events for a
// run arrive in checkpoint order (0.2 -> 1.0); a failed run emits a terminal
// event with Err set instead of reaching 1.0.
type ProgressEvent struct {
	RunID     core.RunID             `json:"run_id"`
	Stage     string                 `json:"stage"`
	Progress  float64                `json:"progress"`
	Message   string                 `json:"message"`
	Done      bool                   `json:"done"`
	Err       string                 `json:"error,omitempty"`
	ErrCode   string                 `json:"error_code,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Failed reports whether this is a terminal failure event.
func (e ProgressEvent) Failed() bool { return e.Err != "" }

// ProgressSink receives orchestrator checkpoints. The orchestrator knows
// nothing about how they are presented; the SSE hub is one implementation.
type ProgressSink interface {
	Emit(event ProgressEvent)
}

// NopSink discards events. Useful in tests and batch contexts.
type NopSink struct{}

func (NopSink) Emit(ProgressEvent) {}
