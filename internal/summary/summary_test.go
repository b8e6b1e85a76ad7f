package summary

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scribeit/internal/backend"
	"scribeit/internal/models"
)

type fakeFetcher struct {
	mu       sync.Mutex
	results  map[string]*models.SummaryRecord
	statuses []models.SummaryStatus
	err      error
	block    chan struct{}

	resultCalls atomic.Int32
	statusCalls atomic.Int32
}

func (f *fakeFetcher) GetResult(ctx context.Context, _ backend.Credential, id string) (*models.SummaryRecord, error) {
	f.resultCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.results[id]
	if !ok {
		return nil, &backend.ServerError{Op: "get summary result", StatusCode: 404, Detail: "Summary not found"}
	}
	return rec, nil
}

func (f *fakeFetcher) GetStatus(ctx context.Context, _ backend.Credential, id string) (*models.SummaryRecord, error) {
	f.statusCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &models.SummaryRecord{ID: id, Status: status}, nil
}

var token = backend.Credential{AccessToken: "abc"}

func TestLoadWithoutCredentialMakesNoRequest(t *testing.T) {
	f := &fakeFetcher{}
	v := NewViewer(f)

	view := v.Load(context.Background(), backend.Credential{}, "42")
	require.Equal(t, AwaitingCredential{ID: "42"}, view)
	require.Zero(t, f.resultCalls.Load())
	require.Equal(t, "awaiting_credential", Render(view).State)
}

func TestLoadFailedWithoutMessageUsesFallback(t *testing.T) {
	f := &fakeFetcher{results: map[string]*models.SummaryRecord{
		"7": {ID: "7", Title: "Retro", Status: models.StatusFailed},
	}}
	view := NewViewer(f).Load(context.Background(), token, "7")

	failed, ok := view.(Failed)
	require.True(t, ok, "got %T", view)
	require.Equal(t, FailedFallback, failed.Message)
	require.Equal(t, "Processing failed. Please try again or contact support.", Render(view).Panel)
}

func TestLoadFailedKeepsBackendMessage(t *testing.T) {
	rec := &models.SummaryRecord{ID: "8", Status: models.StatusFailed, ErrorMessage: "Audio track is empty", KeyPoints: []string{"leak"}}
	view := FromRecord(rec, "8")
	require.Equal(t, Failed{Header: Header{ID: "8"}, Message: "Audio track is empty"}, view)

	raw, err := json.Marshal(Render(view))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "key_points")
}

func TestLoadCompleted(t *testing.T) {
	transcript := "Speaker 1:  hello\n\n\tSpeaker 2: hi  \n"
	f := &fakeFetcher{results: map[string]*models.SummaryRecord{
		"3": {
			ID:            "3",
			Title:         "Weekly Sync",
			Status:        models.StatusCompleted,
			SummaryText:   "We shipped.",
			KeyPoints:     []string{"first", "second"},
			ActionItems:   []string{"follow up"},
			Transcription: transcript,
		},
	}}
	view := NewViewer(f).Load(context.Background(), token, "3")

	done, ok := view.(Completed)
	require.True(t, ok, "got %T", view)
	require.Equal(t, transcript, done.Transcription)
	require.Equal(t, []string{"first", "second"}, done.KeyPoints)
	require.False(t, done.HasQuotes())

	raw, err := json.Marshal(Render(view))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "notable_quotes")
	require.NotContains(t, string(raw), "error")
}

func TestLoadErrorIsDistinctFromFailed(t *testing.T) {
	f := &fakeFetcher{err: &backend.TransportError{Op: "get summary result", Err: errors.New("connection refused")}}
	view := NewViewer(f).Load(context.Background(), token, "9")

	le, ok := view.(LoadError)
	require.True(t, ok, "got %T", view)
	require.Equal(t, ListingPath, le.BackPath)
	require.Equal(t, "load_error", Render(view).State)

	missing := NewViewer(&fakeFetcher{results: map[string]*models.SummaryRecord{}}).Load(context.Background(), token, "nope")
	require.IsType(t, LoadError{}, missing)
}

func TestUnknownStatusIsLoadError(t *testing.T) {
	view := FromRecord(&models.SummaryRecord{ID: "1", Status: "archived"}, "1")
	require.IsType(t, LoadError{}, view)
}

func TestConcurrentLoadsShareRequest(t *testing.T) {
	f := &fakeFetcher{
		block:   make(chan struct{}),
		results: map[string]*models.SummaryRecord{"5": {ID: "5", Status: models.StatusPending}},
	}
	v := NewViewer(f)

	var wg sync.WaitGroup
	views := make([]View, 4)
	for i := range views {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i] = v.Load(context.Background(), token, "5")
		}(i)
	}
	require.Eventually(t, func() bool { return f.resultCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.block)
	wg.Wait()

	require.Equal(t, int32(1), f.resultCalls.Load())
	for _, view := range views {
		require.IsType(t, Pending{}, view)
	}
}

func TestPollerRunsUntilTerminal(t *testing.T) {
	f := &fakeFetcher{
		statuses: []models.SummaryStatus{models.StatusPending, models.StatusPending, models.StatusProcessing, models.StatusCompleted},
		results: map[string]*models.SummaryRecord{
			"11": {ID: "11", Status: models.StatusCompleted, SummaryText: "done"},
		},
	}
	p := NewPoller(NewViewer(f), 5*time.Millisecond)

	var states []string
	err := p.Watch(context.Background(), token, "11", func(v View) error {
		states = append(states, v.State())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"pending", "processing", "completed"}, states)
	require.Equal(t, int32(4), f.statusCalls.Load())
	require.Equal(t, int32(1), f.resultCalls.Load())
}

func TestPollerWithoutCredential(t *testing.T) {
	f := &fakeFetcher{}
	p := NewPoller(NewViewer(f), time.Millisecond)

	var got []View
	require.NoError(t, p.Watch(context.Background(), backend.Credential{}, "42", func(v View) error {
		got = append(got, v)
		return nil
	}))
	require.Equal(t, []View{AwaitingCredential{ID: "42"}}, got)
	require.Zero(t, f.statusCalls.Load())
}

func TestPollerStopsOnContext(t *testing.T) {
	f := &fakeFetcher{statuses: []models.SummaryStatus{models.StatusProcessing}}
	p := NewPoller(NewViewer(f), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	err := p.Watch(ctx, token, "1", func(v View) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExportText(t *testing.T) {
	view := Completed{
		Header:        Header{ID: "3", Title: "Weekly Sync / Q3"},
		SummaryText:   "We shipped.",
		KeyPoints:     []string{"a", "b"},
		ActionItems:   []string{"c"},
		NotableQuotes: []string{"ship it"},
		Transcription: "line one\n  line two",
	}
	text, err := ExportText(view)
	require.NoError(t, err)
	require.Contains(t, text, "Weekly Sync / Q3\n\n")
	require.Contains(t, text, "Key Points\n==========\n1. a\n2. b\n")
	require.Contains(t, text, "Notable Quotes\n==============\n1. \"ship it\"\n")
	require.Contains(t, text, "line one\n  line two\n")
	require.Equal(t, "Weekly-Sync-Q3.txt", ExportFileName(view))

	view.NotableQuotes = nil
	text, err = ExportText(view)
	require.NoError(t, err)
	require.NotContains(t, text, "Notable Quotes")

	_, err = ExportText(Processing{Header: Header{ID: "1"}})
	require.ErrorIs(t, err, ErrNotExportable)
	require.Equal(t, "summary-9.txt", ExportFileName(Completed{Header: Header{ID: "9"}}))
}
