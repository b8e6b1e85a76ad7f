package summary

import (
	"context"
	"time"

	"scribeit/internal/backend"
	"scribeit/internal/logger"
)

const defaultPollInterval = 5 * time.Second

// Poller watches a summary until it reaches a terminal status.
type Poller struct {
	viewer   *Viewer
	interval time.Duration
}

func NewPoller(viewer *Viewer, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{viewer: viewer, interval: interval}
}

// Watch emits the view whenever the status changes and returns after emitting
// a terminal view, when ctx ends, or when emit fails. The status endpoint is
// polled while the summary is pending or processing; the full record is
// fetched once.
func (p *Poller) Watch(ctx context.Context, cred backend.Credential, id string, emit func(View) error) error {
	if !cred.Valid() {
		return emit(AwaitingCredential{ID: id})
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	lastState := ""
	for {
		rec, err := p.viewer.Status(ctx, cred, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn(ctx, "poll summary status failed", logger.Fields{"summary_id": id, "error": err.Error()})
			return emit(newLoadError(id, err))
		}
		view := FromRecord(rec, id)
		if IsTerminal(view) {
			if _, ok := view.(LoadError); !ok {
				view = p.viewer.Load(ctx, cred, id)
			}
			return emit(view)
		}
		if view.State() != lastState {
			lastState = view.State()
			if err := emit(view); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
