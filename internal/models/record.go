// Package models defines core data structures for advisory records, asks, and dashboard results.
package models

import "time"

// Record is one row of the advisory dataset. Optional fields are empty when the
// column is absent from the source or the cell is blank; Capabilities says which.
type Record struct {
	ID         string `json:"id" db:"id"`
	Row        int    `json:"row" db:"row"`
	Question   string `json:"question" db:"question"`
	Answer     string `json:"answer" db:"answer"`
	CustomerID string `json:"customer_id,omitempty" db:"customer_id"`
	County     string `json:"county,omitempty" db:"county"`
	About      string `json:"about,omitempty" db:"about"`
	Category   string `json:"category,omitempty" db:"category"`
	Response   string `json:"response,omitempty" db:"response"`
}

// Field names a record column for grouping and filtering.
type Field string

const (
	FieldCustomerID Field = "customer_id"
	FieldCounty     Field = "county"
	FieldAbout      Field = "about"
	FieldCategory   Field = "category"
	FieldResponse   Field = "response"
)

// Value returns the record's value for f.
func (r *Record) Value(f Field) string {
	switch f {
	case FieldCustomerID:
		return r.CustomerID
	case FieldCounty:
		return r.County
	case FieldAbout:
		return r.About
	case FieldCategory:
		return r.Category
	case FieldResponse:
		return r.Response
	default:
		return ""
	}
}

// Capabilities records which columns the source provided. It is computed once
// when the header is validated.
type Capabilities struct {
	QA         bool `json:"qa"`
	CustomerID bool `json:"customer_id"`
	County     bool `json:"county"`
	About      bool `json:"about"`
	Category   bool `json:"category"`
	Response   bool `json:"response"`
}

// Has reports whether the column behind f is present.
func (c Capabilities) Has(f Field) bool {
	switch f {
	case FieldCustomerID:
		return c.CustomerID
	case FieldCounty:
		return c.County
	case FieldAbout:
		return c.About
	case FieldCategory:
		return c.Category
	case FieldResponse:
		return c.Response
	default:
		return false
	}
}

// AskLogEntry is one persisted ask.
type AskLogEntry struct {
	ID        string    `json:"id" db:"id"`
	Query     string    `json:"query" db:"query"`
	RecordID  string    `json:"record_id,omitempty" db:"record_id"`
	Score     float64   `json:"score" db:"score"`
	Outcome   string    `json:"outcome" db:"outcome"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Ask outcomes stored in the log.
const (
	OutcomeMatched = "matched"
	OutcomeNoMatch = "no_match"
)
