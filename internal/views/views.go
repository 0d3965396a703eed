// Package views derives the dashboard's table and plot payloads from the
// committed analysis snapshot. Every view is a pure read: it never mutates
// the snapshot and recomputes its payload per request.
package views

import (
	"rnadash/domain/expr"
	"rnadash/internal/errors"
	"rnadash/internal/session"
	"rnadash/ports"
)

// Service resolves view requests against the current snapshot.
type Service struct {
	store  *session.Store
	engine ports.Engine
}

// New creates the view service.
func New(store *session.Store, engine ports.Engine) *Service {
	return &Service{store: store, engine: engine}
}

// resultTable returns the committed result table, or a no-data error naming
// the view when no run has completed.
func (s *Service) resultTable(view string) (*expr.ResultTable, error) {
	snap := s.store.Current()
	if snap == nil || snap.Results == nil {
		return nil, errors.NoData(view)
	}
	return snap.Results, nil
}

// model returns the committed fitted model for views that need expression
// matrices rather than just the result table.
func (s *Service) model(view string) (ports.AnalysisModel, *session.Snapshot, error) {
	snap := s.store.Current()
	if snap == nil || snap.Model == nil {
		return nil, nil, errors.NoData(view)
	}
	return snap.Model, snap, nil
}

// ConditionSummary reports per-condition sample counts for the committed
// run's design.
func (s *Service) ConditionSummary() (map[string]int, error) {
	snap := s.store.Current()
	if snap == nil || snap.Samples == nil {
		return nil, errors.NoData("summary")
	}
	return snap.Samples.ConditionCounts(), nil
}

// FullResults returns the unpaged result table for export.
func (s *Service) FullResults() (*expr.ResultTable, error) {
	return s.resultTable("export")
}

// MAPlot returns the engine's MA diagnostic for the committed model.
func (s *Service) MAPlot() (*ports.MAPlotData, error) {
	model, _, err := s.model("ma")
	if err != nil {
		return nil, err
	}
	return s.engine.MAPlot(model)
}

// DispersionPlot returns the engine's dispersion diagnostic for the
// committed model.
func (s *Service) DispersionPlot() (*ports.DispersionPlotData, error) {
	model, _, err := s.model("dispersion")
	if err != nil {
		return nil, err
	}
	return s.engine.DispersionPlot(model)
}
