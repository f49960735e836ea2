package matcher

import "errors"

var (
	// ErrEmptyCorpus is returned by Build when there is nothing to vectorize:
	// no documents, or no document question produces a token.
	ErrEmptyCorpus = errors.New("matcher: empty corpus")
	// ErrEmptyQuestion is returned by Build when a document has a blank question.
	ErrEmptyQuestion = errors.New("matcher: document has an empty question")
	// ErrEmptyQuery is returned when a query shares no token with the vocabulary.
	ErrEmptyQuery = errors.New("matcher: query has no tokens in the vocabulary")
	// ErrNoMatch is returned when the best similarity is below the configured minimum.
	ErrNoMatch = errors.New("matcher: no document above the minimum similarity")
)

// IsNoMatch reports whether err means "no similar question found", as opposed to
// a build or usage failure.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrNoMatch)
}
