package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-magnet/internal/export"
	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/slack"
)

type fakeRunner struct {
	block   chan struct{}
	panics  any
	leads   int
	err     error
	mu      sync.Mutex
	runIDs  []string
	ctxErrs []error
}

func (f *fakeRunner) Run(ctx context.Context, req model.SearchRequest) (*model.RunResult, error) {
	f.mu.Lock()
	f.runIDs = append(f.runIDs, req.Origin.RunID)
	f.mu.Unlock()

	if f.panics != nil {
		panic(f.panics)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			f.mu.Lock()
			f.ctxErrs = append(f.ctxErrs, ctx.Err())
			f.mu.Unlock()
			return &model.RunResult{Request: req}, ctx.Err()
		}
	}
	res := &model.RunResult{Request: req}
	for range f.leads {
		res.Leads = append(res.Leads, model.Lead{})
	}
	res.Stats.QualifiedPersons = f.leads
	res.Stats.TargetReached = f.leads >= req.TargetCount
	return res, f.err
}

type fakeExporter struct {
	calls int
}

func (f *fakeExporter) Export(_ context.Context, res *model.RunResult) []export.Report {
	f.calls++
	return []export.Report{{Name: "csv", Location: "out.csv"}}
}

type fakeNotifier struct {
	mu    sync.Mutex
	posts []string
	urls  []string
	done  chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 8)}
}

func (f *fakeNotifier) Post(_ context.Context, url, text string) error {
	f.mu.Lock()
	f.posts = append(f.posts, text)
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func validRequest() model.SearchRequest {
	return model.SearchRequest{
		Keywords:     []string{"vape"},
		TargetCount:  2,
		MaxProcessed: 10,
		Origin:       model.Origin{ResponseURL: "https://hooks.slack.com/x"},
	}
}

func waitPost(t *testing.T, n *fakeNotifier) {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification posted")
	}
}

func TestStart_PostsSummary(t *testing.T) {
	r := &fakeRunner{leads: 2}
	e := &fakeExporter{}
	n := newFakeNotifier()
	d := New(r, e, n, Options{MaxConcurrent: 2})
	d.newID = func() string { return "run-fixed" }

	id, err := d.Start(validRequest())
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", id)

	waitPost(t, n)
	require.NoError(t, d.Shutdown(context.Background()))

	assert.Equal(t, []string{"run-fixed"}, r.runIDs)
	assert.Equal(t, 1, e.calls)
	require.Len(t, n.posts, 1)
	assert.Contains(t, n.posts[0], "target of 2 reached")
	assert.Contains(t, n.posts[0], "csv: out.csv")
	assert.Equal(t, "https://hooks.slack.com/x", n.urls[0])
	assert.Zero(t, d.Active())
}

func TestStart_InvalidRequest(t *testing.T) {
	d := New(&fakeRunner{}, nil, nil, Options{})
	_, err := d.Start(model.SearchRequest{})
	require.Error(t, err)
	assert.Zero(t, d.Active())
}

func TestStart_Busy(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	n := newFakeNotifier()
	d := New(r, nil, n, Options{MaxConcurrent: 1})

	_, err := d.Start(validRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, d.Active())

	_, err = d.Start(validRequest())
	assert.ErrorIs(t, err, slack.ErrBusy)

	close(r.block)
	waitPost(t, n)
	require.Eventually(t, func() bool { return d.Active() == 0 }, 2*time.Second, 5*time.Millisecond)

	_, err = d.Start(validRequest())
	require.NoError(t, err)
	waitPost(t, n)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestStart_RunErrorWithPartialLeads(t *testing.T) {
	r := &fakeRunner{leads: 1, err: errors.New("provider down")}
	n := newFakeNotifier()
	d := New(r, &fakeExporter{}, n, Options{})

	_, err := d.Start(validRequest())
	require.NoError(t, err)
	waitPost(t, n)
	require.NoError(t, d.Shutdown(context.Background()))

	require.Len(t, n.posts, 1)
	assert.Contains(t, n.posts[0], "Lead search failed: provider down")
	assert.Contains(t, n.posts[0], "Partial results:")
}

func TestStart_PanicPostsError(t *testing.T) {
	r := &fakeRunner{panics: "nil map write"}
	e := &fakeExporter{}
	n := newFakeNotifier()
	d := New(r, e, n, Options{})

	_, err := d.Start(validRequest())
	require.NoError(t, err)
	waitPost(t, n)
	require.NoError(t, d.Shutdown(context.Background()))

	require.Len(t, n.posts, 1)
	assert.Contains(t, n.posts[0], "Lead search failed: run panicked: nil map write")
	assert.Equal(t, "https://hooks.slack.com/x", n.urls[0])
	assert.Zero(t, e.calls)
	assert.Zero(t, d.Active())
}

func TestShutdown_CancelsRuns(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	n := newFakeNotifier()
	d := New(r, nil, n, Options{})

	_, err := d.Start(validRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)

	require.Len(t, r.ctxErrs, 1)
	assert.ErrorIs(t, r.ctxErrs[0], context.Canceled)
	assert.Zero(t, d.Active())
}

func TestExecute_Synchronous(t *testing.T) {
	e := &fakeExporter{}
	d := New(&fakeRunner{leads: 2}, e, nil, Options{})

	res, reports, err := d.Execute(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Len(t, res.Leads, 2)
	assert.NotEmpty(t, res.Request.Origin.RunID)
	assert.Len(t, reports, 1)
	assert.Equal(t, 1, e.calls)
}
