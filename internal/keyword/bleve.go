package keyword

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/pkg/utils"
)

const batchSize = 500

// searchable fields of an indexed record.
var fields = []string{"question", "answer", "county", "category"}

// recordDoc is what bleve indexes for one record.
type recordDoc struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	County   string `json:"county"`
	Category string `json:"category"`
}

// BleveIndex implements KeywordIndex using an in-memory Bleve index.
// A new index is built for every dataset snapshot.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// standard analyzer: lowercase and tokenize, no stemming
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = false
	for _, f := range fields {
		docMapping.AddFieldMappingsAt(f, text)
	}
	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates an empty in-memory index.
func NewBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexRecords indexes records by ID in batches.
func (b *BleveIndex) IndexRecords(ctx context.Context, records []*models.Record) error {
	batch := b.index.NewBatch()
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := recordDoc{Question: r.Question, Answer: r.Answer, County: r.County, Category: r.Category}
		if err := batch.Index(r.ID, doc); err != nil {
			return fmt.Errorf("index record %s: %w", r.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Search runs a match query over all record fields and returns up to limit hits,
// best first. With QuestionBoost > 1, question matches weigh more than answer,
// county and category matches.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if utils.IsBlank(query) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	boost := 1.0
	fuzziness := 0
	if opts != nil {
		if opts.QuestionBoost > 0 {
			boost = opts.QuestionBoost
		}
		if opts.FuzzyEnabled {
			fuzziness = 1
			if opts.Fuzziness > 0 {
				fuzziness = opts.Fuzziness
			}
		}
	}

	clauses := make([]blevequery.Query, 0, len(fields))
	for _, f := range fields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(f)
		mq.SetFuzziness(fuzziness)
		if f == "question" && boost != 1.0 {
			mq.SetBoost(boost)
		}
		clauses = append(clauses, mq)
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(clauses...))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the total number of records in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
