// Package keyword provides full-text search over advisory records.
package keyword

import (
	"context"

	"github.com/hyperjump/kilimo/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// QuestionBoost multiplies the score of matches in the question field.
	// Use 1.0 for no boost.
	QuestionBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits, for misspelled crop and pest names.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default 1.
	Fuzziness int
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	IndexRecords(ctx context.Context, records []*models.Record) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
