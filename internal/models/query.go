package models

import (
	"fmt"
	"strings"
)

// MaxAskLimit caps how many ranked answers one ask may return.
const MaxAskLimit = 10

// AskQuery is a free-text question from a farmer or extension officer.
type AskQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"` // total answers wanted, best match included
}

// Validate ensures the ask has a query and normalizes the limit.
func (q *AskQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 1
	}
	if q.Limit > MaxAskLimit {
		q.Limit = MaxAskLimit
	}
	return nil
}

// RecordQuery selects records for the dashboard table.
type RecordQuery struct {
	County []string `json:"county,omitempty"`
	About  []string `json:"about,omitempty"`
	Text   string   `json:"q,omitempty"`
	Offset int      `json:"offset,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// Normalize applies default paging: limit 50, capped at 500.
func (q *RecordQuery) Normalize() {
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	q.Text = strings.TrimSpace(q.Text)
}
