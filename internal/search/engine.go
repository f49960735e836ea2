// Package search serves asks and dashboard views over the current dataset snapshot.
package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kilimo/internal/config"
	"github.com/hyperjump/kilimo/internal/dataset"
	"github.com/hyperjump/kilimo/internal/insights"
	"github.com/hyperjump/kilimo/internal/keyword"
	"github.com/hyperjump/kilimo/internal/matcher"
	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/internal/storage"
	"github.com/hyperjump/kilimo/pkg/utils"
)

var (
	// ErrNotLoaded is returned before the first successful Reload.
	ErrNotLoaded = errors.New("search: dataset not loaded")
	// ErrAskUnavailable is returned when the dataset has no usable question/answer columns.
	ErrAskUnavailable = errors.New("search: dataset has no question and answer columns")
	// ErrInvalidQuery is returned for a blank ask.
	ErrInvalidQuery = errors.New("search: invalid query")
	// ErrNoStorage is returned by operations that need the database when none is configured.
	ErrNoStorage = errors.New("search: no storage configured")
)

// snapshot is one immutable view of the dataset with everything built from it.
type snapshot struct {
	ds       *dataset.Dataset
	state    *matcher.State // nil when asks are unavailable
	keyword  *keyword.BleveIndex
	byID     map[string]*models.Record
	loadedAt time.Time
}

// Engine owns the current snapshot and answers asks against it.
type Engine struct {
	source  dataset.Source
	store   storage.Storage
	cfg     config.MatcherConfig
	logAsks bool
	logger  *zap.Logger

	reloadMu sync.Mutex
	mu       sync.RWMutex
	snap     *snapshot
}

// NewEngine creates an engine over source. store may be nil, in which case
// asks are not logged. Call Reload before serving.
func NewEngine(source dataset.Source, store storage.Storage, cfg *config.Config, logger *zap.Logger) *Engine {
	e := &Engine{
		source: source,
		store:  store,
		logger: utils.OrNop(logger),
	}
	if cfg != nil {
		e.cfg = cfg.Matcher
		e.logAsks = cfg.Storage.LogAsksOrDefault()
	}
	if e.cfg.DefaultLimit <= 0 {
		e.cfg.DefaultLimit = 1
	}
	return e
}

func (e *Engine) matcherOptions() []matcher.Option {
	return []matcher.Option{
		matcher.WithMinSimilarity(e.cfg.MinSimilarity),
		matcher.WithPermissive(e.cfg.Permissive),
		matcher.WithStopWords(e.cfg.StopWords),
		matcher.WithStemming(e.cfg.Stemming),
	}
}

// Reload loads the source and swaps in a new snapshot. It reports whether the
// snapshot changed; identical content (same fingerprint) is not rebuilt. On error
// the previous snapshot keeps serving.
func (e *Engine) Reload(ctx context.Context) (bool, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	start := time.Now()
	ds, err := e.source.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", e.source.Name(), err)
	}

	e.mu.RLock()
	current := e.snap
	e.mu.RUnlock()
	if current != nil && current.ds.Source == ds.Source && current.ds.Fingerprint == ds.Fingerprint {
		e.logger.Debug("dataset unchanged, skipping rebuild", zap.String("source", ds.Source))
		return false, nil
	}

	next, err := e.build(ctx, ds)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	old := e.snap
	e.snap = next
	e.mu.Unlock()
	if old != nil {
		_ = old.keyword.Close()
	}

	fields := []zap.Field{
		zap.String("source", ds.Source),
		zap.Int("records", len(ds.Records)),
		zap.String("fingerprint", ds.FingerprintHex()),
		zap.Duration("took", time.Since(start)),
	}
	if next.state != nil {
		fields = append(fields, zap.Int("corpus", next.state.Len()), zap.Int("vocabulary", next.state.VocabularySize()))
	}
	e.logger.Info("dataset loaded", fields...)
	return true, nil
}

func (e *Engine) build(ctx context.Context, ds *dataset.Dataset) (*snapshot, error) {
	snap := &snapshot{
		ds:       ds,
		byID:     make(map[string]*models.Record, len(ds.Records)),
		loadedAt: time.Now(),
	}
	for _, r := range ds.Records {
		snap.byID[r.ID] = r
	}

	if ds.Capabilities.QA {
		state, err := matcher.Build(ds.Corpus(), e.matcherOptions()...)
		switch {
		case err == nil:
			snap.state = state
		case errors.Is(err, matcher.ErrEmptyCorpus):
			e.logger.Warn("no answerable questions in dataset, asks disabled", zap.String("source", ds.Source))
		default:
			return nil, fmt.Errorf("build matcher: %w", err)
		}
	} else {
		e.logger.Warn("question or answer column missing, asks disabled", zap.String("source", ds.Source))
	}

	idx, err := keyword.NewBleveIndex()
	if err != nil {
		return nil, err
	}
	if err := idx.IndexRecords(ctx, ds.Records); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("index records: %w", err)
	}
	snap.keyword = idx
	return snap, nil
}

func (e *Engine) current() (*snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snap == nil {
		return nil, ErrNotLoaded
	}
	return e.snap, nil
}

// Ask returns the stored answer of the historical question most similar to q.Query.
// When nothing is similar the error satisfies matcher.IsNoMatch.
func (e *Engine) Ask(ctx context.Context, q *models.AskQuery) (*models.AskResponse, error) {
	start := time.Now()
	if q.Limit == 0 {
		q.Limit = e.cfg.DefaultLimit
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	e.mu.RLock()
	snap := e.snap
	var (
		results []*matcher.MatchResult
		err     error
	)
	if snap != nil && snap.state != nil {
		results, err = snap.state.TopK(q.Query, q.Limit)
	}
	e.mu.RUnlock()

	switch {
	case snap == nil:
		return nil, ErrNotLoaded
	case snap.state == nil:
		return nil, ErrAskUnavailable
	case err != nil:
		if matcher.IsNoMatch(err) {
			e.recordAsk(ctx, &models.AskLogEntry{Query: q.Query, Outcome: models.OutcomeNoMatch})
		}
		return nil, err
	}

	matches := make([]*models.MatchedAnswer, len(results))
	for i, r := range results {
		matches[i] = toAnswer(r, snap.byID[r.ID])
	}
	e.recordAsk(ctx, &models.AskLogEntry{
		Query:    q.Query,
		RecordID: matches[0].RecordID,
		Score:    matches[0].Score,
		Outcome:  models.OutcomeMatched,
	})

	e.logger.Debug("ask answered",
		zap.String("query", q.Query),
		zap.String("record", matches[0].RecordID),
		zap.Float64("score", matches[0].Score))

	return &models.AskResponse{
		Query:        q.Query,
		Match:        matches[0],
		Alternatives: matches[1:],
		QueryTime:    time.Since(start).Milliseconds(),
	}, nil
}

func toAnswer(r *matcher.MatchResult, rec *models.Record) *models.MatchedAnswer {
	a := &models.MatchedAnswer{
		RecordID: r.ID,
		Question: r.Question,
		Answer:   r.Answer,
		Score:    r.Score,
	}
	if rec != nil {
		a.Row = rec.Row
		a.County = rec.County
		a.Category = rec.Category
	}
	return a
}

func (e *Engine) recordAsk(ctx context.Context, entry *models.AskLogEntry) {
	if e.store == nil || !e.logAsks {
		return
	}
	if err := e.store.LogAsk(ctx, entry); err != nil {
		e.logger.Warn("failed to log ask", zap.Error(err))
	}
}

// Summary returns the headline counts.
func (e *Engine) Summary() (*models.Summary, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	return insights.Summarize(snap.ds), nil
}

// Counties returns query counts per county, most frequent first.
func (e *Engine) Counties() ([]models.ValueCount, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	return insights.CountyCounts(snap.ds)
}

// CountyRecords returns the records from one county in sheet order.
func (e *Engine) CountyRecords(county string) ([]*models.Record, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	return insights.FilterByCounty(snap.ds, county)
}

// FilterOptions lists the values available for the About and County filters.
type FilterOptions struct {
	About  []string `json:"about"`
	County []string `json:"county"`
}

// Filters returns the distinct filter values present in the dataset.
func (e *Engine) Filters() (*FilterOptions, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	return &FilterOptions{
		About:  nonNil(insights.Unique(snap.ds.Records, models.FieldAbout)),
		County: nonNil(insights.Unique(snap.ds.Records, models.FieldCounty)),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Records returns one page of records passing the About/County filter. A non-empty
// q.Text keeps only keyword hits, ordered by relevance; otherwise sheet order is kept.
func (e *Engine) Records(ctx context.Context, q *models.RecordQuery) (*models.RecordPage, error) {
	q.Normalize()
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snap == nil {
		return nil, ErrNotLoaded
	}
	snap := e.snap

	filtered, err := insights.Filter{About: q.About, County: q.County}.Apply(snap.ds)
	if err != nil {
		return nil, err
	}
	if q.Text != "" {
		filtered, err = rankByKeyword(ctx, snap, filtered, q.Text)
		if err != nil {
			return nil, err
		}
	}

	page := &models.RecordPage{Records: []*models.Record{}, Total: len(filtered), Offset: q.Offset}
	if q.Offset < len(filtered) {
		end := q.Offset + q.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		page.Records = filtered[q.Offset:end]
	}
	return page, nil
}

func rankByKeyword(ctx context.Context, snap *snapshot, records []*models.Record, text string) ([]*models.Record, error) {
	allowed := make(map[string]struct{}, len(records))
	for _, r := range records {
		allowed[r.ID] = struct{}{}
	}
	hits, err := snap.keyword.Search(ctx, text, len(snap.ds.Records), &keyword.SearchOptions{QuestionBoost: 2})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Record, 0, len(hits))
	for _, h := range hits {
		if _, ok := allowed[h.ID]; ok {
			out = append(out, snap.byID[h.ID])
		}
	}
	return out, nil
}

// Pivot returns the County x Category count table for the filtered records.
func (e *Engine) Pivot(filter insights.Filter) (*models.Pivot, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	records, err := filter.Apply(snap.ds)
	if err != nil {
		return nil, err
	}
	return insights.PivotCountyCategory(snap.ds.Capabilities, records)
}

// Samples returns n example responses drawn with seed.
func (e *Engine) Samples(n int, seed uint64) ([]string, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	return insights.SampleResponses(snap.ds, n, seed)
}

// RecentAsks returns the latest logged asks, newest first.
func (e *Engine) RecentAsks(ctx context.Context, limit int) ([]*models.AskLogEntry, error) {
	if e.store == nil {
		return nil, ErrNoStorage
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return e.store.RecentAsks(ctx, limit)
}

// diskUser is implemented by storages that can report their size.
type diskUser interface {
	DiskUsageBytes() (int64, error)
}

// Status describes the loaded snapshot and the database.
func (e *Engine) Status(ctx context.Context) (*models.Status, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	st := &models.Status{
		Source:       snap.ds.Source,
		Records:      len(snap.ds.Records),
		Fingerprint:  strconv.FormatUint(snap.ds.Fingerprint, 16),
		Capabilities: snap.ds.Capabilities,
		LoadedAt:     snap.loadedAt,
	}
	if snap.state != nil {
		st.Corpus = snap.state.Len()
		st.Vocabulary = snap.state.VocabularySize()
	}
	if e.store != nil {
		if n, err := e.store.CountAsks(ctx); err == nil {
			st.Asks = n
		}
		if du, ok := e.store.(diskUser); ok {
			if n, err := du.DiskUsageBytes(); err == nil {
				st.DiskUsageBytes = &n
			}
		}
	}
	return st, nil
}

// Close releases the current snapshot's keyword index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap == nil {
		return nil
	}
	err := e.snap.keyword.Close()
	e.snap = nil
	return err
}

// Import loads src and stores its records so a later StoreSource can serve them.
// It returns the number of records stored.
func Import(ctx context.Context, src dataset.Source, store storage.Storage) (int, error) {
	ds, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", src.Name(), err)
	}
	if err := store.ReplaceRecords(ctx, ds.Source, ds.Capabilities, ds.Records); err != nil {
		return 0, fmt.Errorf("store records: %w", err)
	}
	return len(ds.Records), nil
}
