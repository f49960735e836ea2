package matcher

type options struct {
	minSimilarity float64
	permissive    bool
	stopWords     bool
	stemming      bool
}

// Option configures Build.
type Option func(*options)

// WithMinSimilarity sets the score below which a query reports ErrNoMatch
// instead of its best candidate. Default 0 (never).
func WithMinSimilarity(v float64) Option {
	return func(o *options) { o.minSimilarity = v }
}

// WithPermissive makes a query with no vocabulary overlap return the first
// document with score 0 instead of ErrEmptyQuery.
func WithPermissive(enabled bool) Option {
	return func(o *options) { o.permissive = enabled }
}

// WithStopWords removes English stop words during tokenization.
func WithStopWords(enabled bool) Option {
	return func(o *options) { o.stopWords = enabled }
}

// WithStemming applies the Porter2 stemmer to ASCII tokens during tokenization.
func WithStemming(enabled bool) Option {
	return func(o *options) { o.stemming = enabled }
}
