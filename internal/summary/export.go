package summary

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotExportable is returned for any view other than Completed.
var ErrNotExportable = errors.New("summary is not ready for export")

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// textRenderer writes a completed summary as plain text.
type textRenderer struct {
	b strings.Builder
}

func (r *textRenderer) VisitAwaitingCredential(AwaitingCredential) error { return ErrNotExportable }
func (r *textRenderer) VisitPending(Pending) error                       { return ErrNotExportable }
func (r *textRenderer) VisitProcessing(Processing) error                 { return ErrNotExportable }
func (r *textRenderer) VisitFailed(Failed) error                         { return ErrNotExportable }
func (r *textRenderer) VisitLoadError(v LoadError) error {
	if v.Err != nil {
		return fmt.Errorf("export summary %s: %w", v.ID, v.Err)
	}
	return ErrNotExportable
}

func (r *textRenderer) VisitCompleted(v Completed) error {
	title := v.Title
	if title == "" {
		title = "Summary"
	}
	r.b.WriteString(title)
	r.b.WriteString("\n\n")
	r.section("Summary")
	r.b.WriteString(v.SummaryText)
	r.b.WriteString("\n\n")
	r.list("Key Points", v.KeyPoints)
	r.list("Action Items", v.ActionItems)
	if v.HasQuotes() {
		r.list("Notable Quotes", quoted(v.NotableQuotes))
	}
	r.section("Transcription")
	r.b.WriteString(v.Transcription)
	r.b.WriteString("\n")
	return nil
}

func (r *textRenderer) section(name string) {
	r.b.WriteString(name)
	r.b.WriteString("\n")
	r.b.WriteString(strings.Repeat("=", len(name)))
	r.b.WriteString("\n")
}

func (r *textRenderer) list(name string, items []string) {
	r.section(name)
	for i, item := range items {
		fmt.Fprintf(&r.b, "%d. %s\n", i+1, item)
	}
	r.b.WriteString("\n")
}

func quoted(items []string) []string {
	out := make([]string, len(items))
	for i, q := range items {
		out[i] = `"` + q + `"`
	}
	return out
}

// ExportText renders v as a text document.
func ExportText(v View) (string, error) {
	r := &textRenderer{}
	if err := v.Accept(r); err != nil {
		return "", err
	}
	return r.b.String(), nil
}

// ExportFileName builds the attachment name for the summary.
func ExportFileName(v Completed) string {
	base := strings.Trim(unsafeFileChars.ReplaceAllString(strings.TrimSpace(v.Title), "-"), "-.")
	if base == "" {
		base = "summary-" + v.ID
	}
	return base + ".txt"
}
