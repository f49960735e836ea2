// Package insights computes the dashboard views over advisory records:
// headline counts, value counts, filters, a county by category pivot and
// response samples.
package insights

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/hyperjump/kilimo/internal/dataset"
	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/pkg/utils"
)

var (
	// ErrMissingColumn is returned when a view needs a column the source lacks.
	ErrMissingColumn = errors.New("insights: column not present in dataset")
	// ErrNoData is returned when a filter leaves nothing to aggregate.
	ErrNoData = errors.New("insights: no data for the selected filters")
)

func needs(caps models.Capabilities, fields ...models.Field) error {
	for _, f := range fields {
		if !caps.Has(f) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, f)
		}
	}
	return nil
}

// Summarize returns total queries plus unique farmers and counties when those columns exist.
func Summarize(ds *dataset.Dataset) *models.Summary {
	s := &models.Summary{TotalQueries: len(ds.Records)}
	if ds.Capabilities.CustomerID {
		n := len(Unique(ds.Records, models.FieldCustomerID))
		s.UniqueFarmers = &n
	}
	if ds.Capabilities.County {
		n := len(Unique(ds.Records, models.FieldCounty))
		s.Counties = &n
	}
	return s
}

// Unique returns the distinct non-blank values of f in order of first appearance.
func Unique(records []*models.Record, f models.Field) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		v := r.Value(f)
		if utils.IsBlank(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ValueCounts counts non-blank values of f, most frequent first; ties keep first appearance.
func ValueCounts(records []*models.Record, f models.Field) []models.ValueCount {
	idx := make(map[string]int)
	var out []models.ValueCount
	for _, r := range records {
		v := r.Value(f)
		if utils.IsBlank(v) {
			continue
		}
		if i, ok := idx[v]; ok {
			out[i].Count++
			continue
		}
		idx[v] = len(out)
		out = append(out, models.ValueCount{Value: v, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// CountyCounts returns the number of queries per county.
func CountyCounts(ds *dataset.Dataset) ([]models.ValueCount, error) {
	if err := needs(ds.Capabilities, models.FieldCounty); err != nil {
		return nil, err
	}
	return ValueCounts(ds.Records, models.FieldCounty), nil
}

// FilterByCounty returns the records from county.
func FilterByCounty(ds *dataset.Dataset, county string) ([]*models.Record, error) {
	if err := needs(ds.Capabilities, models.FieldCounty); err != nil {
		return nil, err
	}
	var out []*models.Record
	for _, r := range ds.Records {
		if r.County == county {
			out = append(out, r)
		}
	}
	return out, nil
}

// Filter keeps records whose About and County are among the listed values.
// An empty list does not filter.
type Filter struct {
	About  []string
	County []string
}

// Apply returns the records of ds that pass the filter.
func (f Filter) Apply(ds *dataset.Dataset) ([]*models.Record, error) {
	if len(f.About) > 0 {
		if err := needs(ds.Capabilities, models.FieldAbout); err != nil {
			return nil, err
		}
	}
	if len(f.County) > 0 {
		if err := needs(ds.Capabilities, models.FieldCounty); err != nil {
			return nil, err
		}
	}
	about, county := set(f.About), set(f.County)
	out := make([]*models.Record, 0, len(ds.Records))
	for _, r := range ds.Records {
		if about != nil {
			if _, ok := about[r.About]; !ok {
				continue
			}
		}
		if county != nil {
			if _, ok := county[r.County]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func set(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// PivotCountyCategory counts records per county and category. Both axes are sorted
// and combinations with no records are 0. Records with a blank county or category
// are not counted.
func PivotCountyCategory(caps models.Capabilities, records []*models.Record) (*models.Pivot, error) {
	if err := needs(caps, models.FieldCounty, models.FieldCategory); err != nil {
		return nil, err
	}
	type key struct{ county, category string }
	counts := make(map[key]int)
	rowSet := make(map[string]struct{})
	colSet := make(map[string]struct{})
	for _, r := range records {
		if utils.IsBlank(r.County) || utils.IsBlank(r.Category) {
			continue
		}
		counts[key{r.County, r.Category}]++
		rowSet[r.County] = struct{}{}
		colSet[r.Category] = struct{}{}
	}
	if len(counts) == 0 {
		return nil, ErrNoData
	}
	p := &models.Pivot{Rows: sortedKeys(rowSet), Columns: sortedKeys(colSet)}
	p.Counts = make([][]int, len(p.Rows))
	for i, county := range p.Rows {
		p.Counts[i] = make([]int, len(p.Columns))
		for j, category := range p.Columns {
			p.Counts[i][j] = counts[key{county, category}]
		}
	}
	return p, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SampleResponses returns n non-blank responses chosen by a generator seeded
// with seed, in the order drawn. n is capped at the number available.
func SampleResponses(ds *dataset.Dataset, n int, seed uint64) ([]string, error) {
	if err := needs(ds.Capabilities, models.FieldResponse); err != nil {
		return nil, err
	}
	var pool []string
	for _, r := range ds.Records {
		if !utils.IsBlank(r.Response) {
			pool = append(pool, r.Response)
		}
	}
	if n > len(pool) {
		n = len(pool)
	}
	if n <= 0 {
		return []string{}, nil
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	// partial Fisher-Yates
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n], nil
}
