// Package matcher finds, among a corpus of question/answer documents, the one
// whose question is most similar to a free-text query.
//
// Similarity is lexical: every question is turned into a TF-IDF vector over
// the corpus vocabulary and compared to the query vector by cosine similarity.
// The weighting follows the common vectorizer defaults:
//
//   - term frequency is the raw token count in the document
//   - idf(t) = ln((1 + N) / (1 + df(t))) + 1, N documents, df(t) documents containing t
//   - each vector is L2-normalized, so cosine similarity is a dot product
//
// Build computes the vocabulary and all document vectors once; the returned
// State is immutable and safe for concurrent Query calls.
package matcher

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hyperjump/kilimo/internal/rowid"
	"github.com/hyperjump/kilimo/pkg/utils"
)

// Document is one corpus entry. Its index is its position in the slice given to Build.
type Document struct {
	ID       string
	Question string
	Answer   string
}

// MatchResult is the outcome of one retrieval.
type MatchResult struct {
	Index    int     `json:"index"`
	ID       string  `json:"id,omitempty"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// entry is one non-zero component of a sparse vector.
type entry struct {
	term   int
	weight float64
}

// sparseVector holds entries sorted by term index.
type sparseVector []entry

// State bundles a corpus snapshot with the vocabulary and vectors built from it.
type State struct {
	docs        []Document
	terms       map[string]int
	idf         []float64
	postings    []*roaring.Bitmap
	vectors     []sparseVector
	tokenizer   *Tokenizer
	opts        options
	fingerprint uint64
}

// Build computes the vocabulary, IDF weights and one normalized vector per document.
// Either every document is vectorized or an error is returned; no partial state escapes.
func Build(docs []Document, opts ...Option) (*State, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.minSimilarity < 0 || o.minSimilarity > 1 {
		return nil, fmt.Errorf("matcher: min similarity %v out of range [0,1]", o.minSimilarity)
	}
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	tok := NewTokenizer(o.stopWords, o.stemming)
	counts := make([]map[string]int, len(docs))
	df := make(map[string]int)
	fp := rowid.NewFingerprint()
	for i, d := range docs {
		if utils.IsBlank(d.Question) {
			return nil, fmt.Errorf("%w: index %d", ErrEmptyQuestion, i)
		}
		fp.AddRow([]string{d.ID, d.Question, d.Answer})
		c := make(map[string]int)
		for _, t := range tok.Tokens(d.Question) {
			c[t]++
		}
		for t := range c {
			df[t]++
		}
		counts[i] = c
	}
	if len(df) == 0 {
		return nil, fmt.Errorf("%w: no question produced a token", ErrEmptyCorpus)
	}

	// Alphabetical term order keeps vector layout independent of corpus order.
	vocab := make([]string, 0, len(df))
	for t := range df {
		vocab = append(vocab, t)
	}
	sort.Strings(vocab)

	n := float64(len(docs))
	s := &State{
		docs:        append([]Document(nil), docs...),
		terms:       make(map[string]int, len(vocab)),
		idf:         make([]float64, len(vocab)),
		postings:    make([]*roaring.Bitmap, len(vocab)),
		vectors:     make([]sparseVector, len(docs)),
		tokenizer:   tok,
		opts:        o,
		fingerprint: fp.Sum64(),
	}
	for i, t := range vocab {
		s.terms[t] = i
		s.idf[i] = smoothIDF(n, float64(df[t]))
		s.postings[i] = roaring.New()
	}
	for i, c := range counts {
		s.vectors[i] = s.weigh(c)
		for _, e := range s.vectors[i] {
			s.postings[e.term].Add(uint32(i))
		}
	}
	for _, p := range s.postings {
		p.RunOptimize()
	}
	return s, nil
}

func smoothIDF(n, df float64) float64 {
	return math.Log((1+n)/(1+df)) + 1
}

// weigh turns term counts into a normalized TF-IDF vector. Terms outside the
// vocabulary are dropped.
func (s *State) weigh(counts map[string]int) sparseVector {
	v := make(sparseVector, 0, len(counts))
	for t, c := range counts {
		idx, ok := s.terms[t]
		if !ok {
			continue
		}
		v = append(v, entry{term: idx, weight: float64(c) * s.idf[idx]})
	}
	sort.Slice(v, func(i, j int) bool { return v[i].term < v[j].term })
	weights := make([]float64, len(v))
	for i, e := range v {
		weights[i] = e.weight
	}
	utils.NormalizeL2(weights)
	for i := range v {
		v[i].weight = weights[i]
	}
	return v
}

// vectorize returns the query vector for text against this state's vocabulary.
func (s *State) vectorize(text string) sparseVector {
	counts := make(map[string]int)
	for _, t := range s.tokenizer.Tokens(text) {
		counts[t]++
	}
	return s.weigh(counts)
}

// dot is the inner product of two vectors sorted by term.
func dot(a, b sparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].term == b[j].term:
			sum += a[i].weight * b[j].weight
			i++
			j++
		case a[i].term < b[j].term:
			i++
		default:
			j++
		}
	}
	return sum
}

// Query returns the document whose question is most similar to text.
// Ties go to the lowest index. It returns ErrEmptyQuery when text shares no
// token with the vocabulary (unless the state is permissive) and ErrNoMatch
// when the best score is below the minimum similarity.
func (s *State) Query(text string) (*MatchResult, error) {
	results, err := s.TopK(text, 1)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// TopK returns up to k documents ordered by score descending, then index ascending.
// Documents sharing no token with the query are never returned, except in
// permissive mode when nothing overlaps at all.
func (s *State) TopK(text string, k int) ([]*MatchResult, error) {
	if k < 1 {
		k = 1
	}
	q := s.vectorize(text)
	if len(q) == 0 {
		if !s.opts.permissive {
			return nil, ErrEmptyQuery
		}
		return s.permissiveResults(k)
	}

	bitmaps := make([]*roaring.Bitmap, len(q))
	for i, e := range q {
		bitmaps[i] = s.postings[e.term]
	}
	candidates := roaring.FastOr(bitmaps...)

	type scored struct {
		index int
		score float64
	}
	hits := make([]scored, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		hits = append(hits, scored{index: i, score: utils.Clamp01(dot(q, s.vectors[i]))})
	}
	// Candidates arrive in ascending index order; a stable sort keeps the lowest index first on ties.
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if len(hits) == 0 || hits[0].score < s.opts.minSimilarity {
		return nil, ErrNoMatch
	}
	out := make([]*MatchResult, 0, k)
	for _, h := range hits {
		if len(out) == k || h.score < s.opts.minSimilarity {
			break
		}
		out = append(out, s.result(h.index, h.score))
	}
	return out, nil
}

// permissiveResults reproduces argmax over an all-zero score vector: the first documents, score 0.
func (s *State) permissiveResults(k int) ([]*MatchResult, error) {
	if s.opts.minSimilarity > 0 {
		return nil, ErrNoMatch
	}
	if k > len(s.docs) {
		k = len(s.docs)
	}
	out := make([]*MatchResult, k)
	for i := 0; i < k; i++ {
		out[i] = s.result(i, 0)
	}
	return out, nil
}

func (s *State) result(i int, score float64) *MatchResult {
	d := s.docs[i]
	return &MatchResult{
		Index:    i,
		ID:       d.ID,
		Question: d.Question,
		Answer:   d.Answer,
		Score:    score,
	}
}

// Len returns the number of documents in the corpus.
func (s *State) Len() int { return len(s.docs) }

// VocabularySize returns the number of distinct terms.
func (s *State) VocabularySize() int { return len(s.idf) }

// Fingerprint identifies the corpus snapshot the state was built from.
func (s *State) Fingerprint() uint64 { return s.fingerprint }

// Document returns the document at index i.
func (s *State) Document(i int) (Document, bool) {
	if i < 0 || i >= len(s.docs) {
		return Document{}, false
	}
	return s.docs[i], true
}

// IDF returns the inverse document frequency of term, and false when the term
// is not in the vocabulary. term is matched after tokenization, so "Maize" and
// "maize" are the same term.
func (s *State) IDF(term string) (float64, bool) {
	toks := s.tokenizer.Tokens(term)
	if len(toks) != 1 {
		return 0, false
	}
	idx, ok := s.terms[toks[0]]
	if !ok {
		return 0, false
	}
	return s.idf[idx], true
}
