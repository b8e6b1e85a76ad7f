package summary

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"scribeit/internal/backend"
	"scribeit/internal/logger"
	"scribeit/internal/models"
)

// Fetcher reads summaries from the backend.
type Fetcher interface {
	GetResult(ctx context.Context, cred backend.Credential, id string) (*models.SummaryRecord, error)
	GetStatus(ctx context.Context, cred backend.Credential, id string) (*models.SummaryRecord, error)
}

// Viewer loads one summary into a View. Concurrent loads of the same summary
// with the same credential share one backend request.
type Viewer struct {
	fetcher Fetcher
	group   singleflight.Group
}

func NewViewer(fetcher Fetcher) *Viewer {
	return &Viewer{fetcher: fetcher}
}

// Load fetches the full record. Without a credential nothing is requested.
func (v *Viewer) Load(ctx context.Context, cred backend.Credential, id string) View {
	id = strings.TrimSpace(id)
	if !cred.Valid() {
		return AwaitingCredential{ID: id}
	}
	rec, err := v.fetch(ctx, cred, id, "result", v.fetcher.GetResult)
	if err != nil {
		logger.Warn(ctx, "load summary failed", logger.Fields{"summary_id": id, "error": err.Error()})
		return newLoadError(id, err)
	}
	return FromRecord(rec, id)
}

// Status fetches only the status of the summary.
func (v *Viewer) Status(ctx context.Context, cred backend.Credential, id string) (*models.SummaryRecord, error) {
	if !cred.Valid() {
		return nil, backend.ErrNoCredential
	}
	return v.fetch(ctx, cred, strings.TrimSpace(id), "status", v.fetcher.GetStatus)
}

type fetchFunc func(context.Context, backend.Credential, string) (*models.SummaryRecord, error)

func (v *Viewer) fetch(ctx context.Context, cred backend.Credential, id, kind string, fn fetchFunc) (*models.SummaryRecord, error) {
	key := kind + "\x00" + cred.AccessToken + "\x00" + id
	ch := v.group.DoChan(key, func() (any, error) {
		// detached so one caller leaving does not fail the others
		return fn(context.WithoutCancel(ctx), cred, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.SummaryRecord), nil
	}
}
