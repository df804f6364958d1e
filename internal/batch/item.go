package batch

import (
	"time"
)

// Status is the state of one batch row. Only Pending is non-terminal.
type Status string

const (
	StatusPending          Status = "pending"
	StatusPrepFailed       Status = "prep_failed"
	StatusTranscribeFailed Status = "transcribe_failed"
	StatusSearchFailed     Status = "search_failed"
	StatusSearchNoMatch    Status = "no_match"
	StatusSearchMatch      Status = "match"
	StatusSaveFailed       Status = "save_failed"
	StatusSaved            Status = "saved"
)

// Failed reports whether the row's sub-pipeline or save did not complete.
func (s Status) Failed() bool {
	switch s {
	case StatusPrepFailed, StatusTranscribeFailed, StatusSearchFailed, StatusSaveFailed:
		return true
	}
	return false
}

// Matched reports whether the clip's transcript contained the keyword.
func (s Status) Matched() bool {
	return s == StatusSearchMatch || s == StatusSaved || s == StatusSaveFailed
}

// Item is one report row. Index is the clip's 1-based discovery position.
type Item struct {
	Index       int           `json:"index"`
	ClipPath    string        `json:"clip_path"`
	Status      Status        `json:"status"`
	Excerpt     string        `json:"excerpt"`
	Detail      string        `json:"detail,omitempty"`
	Destination string        `json:"destination,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (it *Item) fail(status Status, detail string) {
	it.Status = status
	it.Excerpt = ExcerptNA
	it.Detail = detail
}

// Report is the outcome of one batch: exactly one row per discovered clip,
// in discovery order.
type Report struct {
	ID         string    `json:"id"`
	Folder     string    `json:"folder"`
	Keyword    string    `json:"keyword"`
	Items      []Item    `json:"items"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Counts tallies rows by status.
func (r *Report) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, it := range r.Items {
		out[it.Status]++
	}
	return out
}

// Saved returns the rows whose clip reached the highlights folder.
func (r *Report) Saved() []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Status == StatusSaved {
			out = append(out, it)
		}
	}
	return out
}

// Failures returns the number of rows that did not complete.
func (r *Report) Failures() int {
	n := 0
	for _, it := range r.Items {
		if it.Status.Failed() {
			n++
		}
	}
	return n
}
