package models

import "time"

// MatchedAnswer is a historical question and its stored answer, returned for an ask.
type MatchedAnswer struct {
	RecordID string  `json:"record_id"`
	Row      int     `json:"row"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
	County   string  `json:"county,omitempty"`
	Category string  `json:"category,omitempty"`
}

// AskResponse is the response for an ask.
type AskResponse struct {
	Query string         `json:"query"`
	Match *MatchedAnswer `json:"match"`
	// Alternatives are the next best matches when more than one answer was requested.
	Alternatives []*MatchedAnswer `json:"alternatives,omitempty"`
	QueryTime    int64            `json:"query_time_ms"`
}

// Summary holds headline dataset statistics. Pointer fields are nil when the
// column behind them is absent.
type Summary struct {
	TotalQueries  int  `json:"total_queries"`
	UniqueFarmers *int `json:"unique_farmers,omitempty"`
	Counties      *int `json:"counties,omitempty"`
}

// ValueCount is one bar of a value-count chart.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Pivot is a count table with Rows x Columns cells.
type Pivot struct {
	Rows    []string `json:"rows"`
	Columns []string `json:"columns"`
	Counts  [][]int  `json:"counts"`
}

// RecordPage is one page of dashboard records.
type RecordPage struct {
	Records []*Record `json:"records"`
	Total   int       `json:"total"`
	Offset  int       `json:"offset"`
}

// Status describes the loaded snapshot.
type Status struct {
	Source         string       `json:"source"`
	Records        int          `json:"records"`
	Corpus         int          `json:"corpus"`
	Vocabulary     int          `json:"vocabulary"`
	Fingerprint    string       `json:"fingerprint"`
	Capabilities   Capabilities `json:"capabilities"`
	LoadedAt       time.Time    `json:"loaded_at"`
	Asks           int64        `json:"asks,omitempty"`
	DiskUsageBytes *int64       `json:"disk_usage_bytes,omitempty"`
}
