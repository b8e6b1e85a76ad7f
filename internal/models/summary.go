package models

import "encoding/json"

// SummaryStatus is the processing state reported by the backend.
type SummaryStatus string

const (
	StatusPending    SummaryStatus = "pending"
	StatusProcessing SummaryStatus = "processing"
	StatusCompleted  SummaryStatus = "completed"
	StatusFailed     SummaryStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s SummaryStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s SummaryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// SummaryRecord is the backend-owned result of processing one media source.
// Content fields are meaningful only when Status is completed and ErrorMessage
// only when it is failed.
type SummaryRecord struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Status         SummaryStatus `json:"status"`
	CreatedAt      string        `json:"created_at,omitempty"`
	UpdatedAt      string        `json:"updated_at,omitempty"`
	MinutesCharged *float64      `json:"minutes_charged,omitempty"`
	SummaryText    string        `json:"summary_text,omitempty"`
	KeyPoints      []string      `json:"key_points,omitempty"`
	ActionItems    []string      `json:"action_items,omitempty"`
	NotableQuotes  []string      `json:"notable_quotes,omitempty"`
	Transcription  string        `json:"transcription,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// UnmarshalJSON accepts both the result endpoint shape (summary_id, summary)
// and the listing shape (id, summary_text).
func (r *SummaryRecord) UnmarshalJSON(data []byte) error {
	type plain SummaryRecord
	var aux struct {
		plain
		SummaryID json.RawMessage `json:"summary_id"`
		RawID     json.RawMessage `json:"id"`
		Summary   *string         `json:"summary"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = SummaryRecord(aux.plain)
	r.ID = firstID(aux.RawID, aux.SummaryID)
	if r.SummaryText == "" && aux.Summary != nil {
		r.SummaryText = *aux.Summary
	}
	return nil
}

// firstID returns the first non-empty id, accepting string or numeric JSON.
func firstID(candidates ...json.RawMessage) string {
	for _, raw := range candidates {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// SummaryListItem is one row of the dashboard listing.
type SummaryListItem struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Status         SummaryStatus `json:"status"`
	SourceType     string        `json:"source_type"`
	CreatedAt      string        `json:"created_at"`
	MinutesCharged float64       `json:"minutes_charged"`
}

func (i *SummaryListItem) UnmarshalJSON(data []byte) error {
	type plain SummaryListItem
	var aux struct {
		plain
		RawID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*i = SummaryListItem(aux.plain)
	i.ID = firstID(aux.RawID)
	return nil
}

// Usage describes the account's minute quota.
type Usage struct {
	Tier               string  `json:"tier"`
	MinutesUsed        float64 `json:"minutes_used"`
	MinutesTotal       float64 `json:"minutes_total"`
	MinutesRemaining   float64 `json:"minutes_remaining"`
	SubscriptionStatus string  `json:"subscription_status"`
	RenewalDate        string  `json:"renewal_date,omitempty"`
}

// PercentUsed returns used/total as a 0..100 integer.
func (u Usage) PercentUsed() int {
	if u.MinutesTotal <= 0 {
		return 0
	}
	p := int(u.MinutesUsed / u.MinutesTotal * 100)
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
