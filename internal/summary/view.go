package summary

import (
	"fmt"

	"scribeit/internal/models"
)

const (
	// FailedFallback is shown for a failed summary that carries no message.
	FailedFallback = "Processing failed. Please try again or contact support."
	// ListingPath is where a load error sends the user back to.
	ListingPath = "/dashboard"

	loadErrorMessage = "We couldn't load this summary."
)

// View is one renderable state of a summary page. The set of views is closed;
// renderers implement Visitor to handle each of them.
type View interface {
	Accept(v Visitor) error
	State() string
	view()
}

// Visitor renders every view variant.
type Visitor interface {
	VisitAwaitingCredential(AwaitingCredential) error
	VisitPending(Pending) error
	VisitProcessing(Processing) error
	VisitCompleted(Completed) error
	VisitFailed(Failed) error
	VisitLoadError(LoadError) error
}

// Header is the part every backend-sourced view shares.
type Header struct {
	ID             string   `json:"id"`
	Title          string   `json:"title,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
	MinutesCharged *float64 `json:"minutes_charged,omitempty"`
}

// AwaitingCredential is shown while no credential is present. No request was made.
type AwaitingCredential struct {
	ID string `json:"id"`
}

type Pending struct {
	Header
}

type Processing struct {
	Header
}

// Completed carries the summary content. Transcription is kept verbatim.
type Completed struct {
	Header
	SummaryText   string   `json:"summary_text"`
	KeyPoints     []string `json:"key_points"`
	ActionItems   []string `json:"action_items"`
	NotableQuotes []string `json:"notable_quotes,omitempty"`
	Transcription string   `json:"transcription"`
}

// HasQuotes reports whether the quotes section is rendered at all.
func (c Completed) HasQuotes() bool { return len(c.NotableQuotes) > 0 }

type Failed struct {
	Header
	Message string `json:"message"`
}

// LoadError means the record itself could not be fetched.
type LoadError struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	BackPath string `json:"back_path"`
	Err      error  `json:"-"`
}

func (v AwaitingCredential) Accept(vis Visitor) error { return vis.VisitAwaitingCredential(v) }
func (v Pending) Accept(vis Visitor) error            { return vis.VisitPending(v) }
func (v Processing) Accept(vis Visitor) error         { return vis.VisitProcessing(v) }
func (v Completed) Accept(vis Visitor) error          { return vis.VisitCompleted(v) }
func (v Failed) Accept(vis Visitor) error             { return vis.VisitFailed(v) }
func (v LoadError) Accept(vis Visitor) error          { return vis.VisitLoadError(v) }

func (AwaitingCredential) State() string { return "awaiting_credential" }
func (Pending) State() string            { return string(models.StatusPending) }
func (Processing) State() string         { return string(models.StatusProcessing) }
func (Completed) State() string          { return string(models.StatusCompleted) }
func (Failed) State() string             { return string(models.StatusFailed) }
func (LoadError) State() string          { return "load_error" }

func (AwaitingCredential) view() {}
func (Pending) view()            {}
func (Processing) view()         {}
func (Completed) view()          {}
func (Failed) view()             {}
func (LoadError) view()          {}

// IsTerminal reports whether polling can stop at v.
func IsTerminal(v View) bool {
	switch v.(type) {
	case Pending, Processing:
		return false
	}
	return true
}

// FromRecord derives the view purely from the record status.
func FromRecord(rec *models.SummaryRecord, id string) View {
	if rec == nil {
		return newLoadError(id, fmt.Errorf("empty response"))
	}
	h := Header{
		ID:             rec.ID,
		Title:          rec.Title,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		MinutesCharged: rec.MinutesCharged,
	}
	if h.ID == "" {
		h.ID = id
	}
	switch rec.Status {
	case models.StatusPending:
		return Pending{Header: h}
	case models.StatusProcessing:
		return Processing{Header: h}
	case models.StatusCompleted:
		return Completed{
			Header:        h,
			SummaryText:   rec.SummaryText,
			KeyPoints:     nonNil(rec.KeyPoints),
			ActionItems:   nonNil(rec.ActionItems),
			NotableQuotes: rec.NotableQuotes,
			Transcription: rec.Transcription,
		}
	case models.StatusFailed:
		msg := rec.ErrorMessage
		if msg == "" {
			msg = FailedFallback
		}
		return Failed{Header: h, Message: msg}
	default:
		return newLoadError(h.ID, fmt.Errorf("unknown summary status %q", rec.Status))
	}
}

func newLoadError(id string, err error) LoadError {
	return LoadError{ID: id, Message: loadErrorMessage, BackPath: ListingPath, Err: err}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
