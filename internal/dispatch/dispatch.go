// Package dispatch runs qualification requests in the background, bounded
// by a fixed number of run slots, and reports each outcome to the requester.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/lead-magnet/internal/export"
	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/slack"
)

// Runner executes one qualification run.
type Runner interface {
	Run(ctx context.Context, req model.SearchRequest) (*model.RunResult, error)
}

// Exporter writes the leads of a finished run.
type Exporter interface {
	Export(ctx context.Context, res *model.RunResult) []export.Report
}

// Options tunes the dispatcher.
type Options struct {
	MaxConcurrent int
	// RunTimeout bounds a single background run. Zero means no limit.
	RunTimeout time.Duration
	// NotifyTimeout bounds posting the final message.
	NotifyTimeout time.Duration
}

// Dispatcher starts runs asynchronously and posts their summaries.
type Dispatcher struct {
	runner   Runner
	exporter Exporter
	notifier slack.Notifier
	opts     Options

	sem    *semaphore.Weighted
	active atomic.Int64
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	newID  func() string
}

// New creates a Dispatcher. A nil exporter or notifier disables that step.
func New(r Runner, e Exporter, n slack.Notifier, opts Options) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner:   r,
		exporter: e,
		notifier: n,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		ctx:      ctx,
		cancel:   cancel,
		newID:    func() string { return uuid.New().String() },
	}
}

// Active returns the number of runs in progress.
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}

// Start validates req and launches it in the background. It returns the run
// id, slack.ErrBusy when every slot is taken, or the validation error.
func (d *Dispatcher) Start(req model.SearchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if !d.sem.TryAcquire(1) {
		return "", slack.ErrBusy
	}
	if req.Origin.RunID == "" {
		req.Origin.RunID = d.newID()
	}

	d.active.Add(1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.active.Add(-1)
		defer d.sem.Release(1)
		d.background(req)
	}()
	return req.Origin.RunID, nil
}

func (d *Dispatcher) background(req model.SearchRequest) {
	log := zap.L().With(zap.String("run_id", req.Origin.RunID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch: run panicked", zap.Any("panic", r))
			d.notify(req.Origin.ResponseURL, slack.FormatError(eris.Errorf("run panicked: %v", r)))
		}
	}()

	ctx := d.ctx
	if d.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.RunTimeout)
		defer cancel()
	}

	res, reports, err := d.Execute(ctx, req)
	if err != nil {
		log.Error("dispatch: run failed", zap.Error(err))
	}
	d.notify(req.Origin.ResponseURL, message(res, reports, err))
}

// Execute runs req in the foreground and exports its leads. Leads collected
// before a failure are still exported.
func (d *Dispatcher) Execute(ctx context.Context, req model.SearchRequest) (*model.RunResult, []export.Report, error) {
	if req.Origin.RunID == "" {
		req.Origin.RunID = d.newID()
	}
	res, err := d.runner.Run(ctx, req)

	var reports []export.Report
	if d.exporter != nil && res != nil {
		reports = d.exporter.Export(context.WithoutCancel(ctx), res)
	}
	return res, reports, err
}

func (d *Dispatcher) notify(responseURL, text string) {
	if d.notifier == nil || responseURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.NotifyTimeout)
	defer cancel()
	if err := d.notifier.Post(ctx, responseURL, text); err != nil {
		zap.L().Error("dispatch: post summary failed", zap.Error(err))
	}
}

func message(res *model.RunResult, reports []export.Report, err error) string {
	if err == nil {
		return slack.FormatSummary(res, reports)
	}
	msg := slack.FormatError(err)
	if res != nil && len(res.Leads) > 0 {
		msg += "\n\nPartial results:\n" + slack.FormatSummary(res, reports)
	}
	return msg
}

// Shutdown waits for running jobs until ctx is done, then cancels them and
// waits for them to return.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		zap.L().Warn("dispatch: cancelling running jobs", zap.Int("active", d.Active()))
		d.cancel()
		<-done
		return ctx.Err()
	}
}
