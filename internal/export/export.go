// Package export writes the leads of a finished run to files and external
// systems.
package export

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-magnet/internal/model"
)

// Sink writes a run's leads somewhere. Location describes where they went
// (a file path, a count of created records) for the run summary.
type Sink interface {
	Name() string
	Write(ctx context.Context, res *model.RunResult) (location string, err error)
}

// Report is the outcome of one sink.
type Report struct {
	Name     string
	Location string
	Err      error
}

// Exporter runs sinks concurrently. A failing sink never affects the others.
type Exporter struct {
	sinks []Sink
}

// New creates an Exporter over sinks.
func New(sinks ...Sink) *Exporter {
	return &Exporter{sinks: sinks}
}

// Sinks returns the names of the configured sinks.
func (e *Exporter) Sinks() []string {
	names := make([]string, len(e.sinks))
	for i, s := range e.sinks {
		names[i] = s.Name()
	}
	return names
}

// Export writes res to every sink and returns one report per sink in sink
// order. Runs without leads are not exported.
func (e *Exporter) Export(ctx context.Context, res *model.RunResult) []Report {
	if e == nil || len(e.sinks) == 0 || res == nil || len(res.Leads) == 0 {
		return nil
	}

	reports := make([]Report, len(e.sinks))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, s := range e.sinks {
		g.Go(func() error {
			loc, err := s.Write(gctx, res)
			if err != nil {
				zap.L().Error("export: sink failed",
					zap.String("sink", s.Name()),
					zap.String("run_id", res.Request.Origin.RunID),
					zap.Error(err))
			} else {
				zap.L().Info("export: sink complete",
					zap.String("sink", s.Name()),
					zap.String("location", loc),
					zap.Int("leads", len(res.Leads)))
			}
			mu.Lock()
			reports[i] = Report{Name: s.Name(), Location: loc, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return reports
}
