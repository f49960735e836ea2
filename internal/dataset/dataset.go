// Package dataset loads advisory records from tabular sources (xlsx, csv,
// object storage, or a previous import) and validates the header once.
package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/kilimo/internal/matcher"
	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/internal/rowid"
	"github.com/hyperjump/kilimo/pkg/utils"
)

var (
	// ErrNoHeader is returned when the source has no rows at all.
	ErrNoHeader = errors.New("dataset: no header row")
	// ErrSourceNotFound is returned when the dataset file or object does not exist.
	ErrSourceNotFound = errors.New("dataset: source not found")
	// ErrUnsupportedFormat is returned for formats other than xlsx and csv.
	ErrUnsupportedFormat = errors.New("dataset: unsupported format")
)

// Columns names the header cell for each record field.
type Columns struct {
	Question   string
	Answer     string
	CustomerID string
	County     string
	About      string
	Category   string
	Response   string
}

// DefaultColumns returns the header names used by the advisory workbook.
func DefaultColumns() Columns {
	return Columns{
		Question:   "Description_Clean",
		Answer:     "Responses_Clean",
		CustomerID: "Customer_id",
		County:     "County",
		About:      "About",
		Category:   "Category",
		Response:   "Response",
	}
}

// withDefaults fills empty names from DefaultColumns.
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.Question == "" {
		c.Question = d.Question
	}
	if c.Answer == "" {
		c.Answer = d.Answer
	}
	if c.CustomerID == "" {
		c.CustomerID = d.CustomerID
	}
	if c.County == "" {
		c.County = d.County
	}
	if c.About == "" {
		c.About = d.About
	}
	if c.Category == "" {
		c.Category = d.Category
	}
	if c.Response == "" {
		c.Response = d.Response
	}
	return c
}

// Dataset is one loaded snapshot of the advisory records.
type Dataset struct {
	Source       string
	Records      []*models.Record
	Capabilities models.Capabilities
	Fingerprint  uint64
}

// FingerprintHex returns the fingerprint as a hex string.
func (d *Dataset) FingerprintHex() string {
	return strconv.FormatUint(d.Fingerprint, 16)
}

// Corpus returns the matcher documents: every record with a non-blank question,
// in record order. Document IDs are record IDs. Returns nil when the question
// or answer column is missing.
func (d *Dataset) Corpus() []matcher.Document {
	if !d.Capabilities.QA {
		return nil
	}
	docs := make([]matcher.Document, 0, len(d.Records))
	for _, r := range d.Records {
		if utils.IsBlank(r.Question) {
			continue
		}
		docs = append(docs, matcher.Document{ID: r.ID, Question: r.Question, Answer: r.Answer})
	}
	return docs
}

// columnIndex maps each field to its header position, -1 when absent.
type columnIndex struct {
	question, answer, customerID, county, about, category, response int
}

func locate(header []string, cols Columns) columnIndex {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	find := func(name string) int {
		if i, ok := pos[name]; ok {
			return i
		}
		return -1
	}
	return columnIndex{
		question:   find(cols.Question),
		answer:     find(cols.Answer),
		customerID: find(cols.CustomerID),
		county:     find(cols.County),
		about:      find(cols.About),
		category:   find(cols.Category),
		response:   find(cols.Response),
	}
}

func (ci columnIndex) capabilities() models.Capabilities {
	return models.Capabilities{
		QA:         ci.question >= 0 && ci.answer >= 0,
		CustomerID: ci.customerID >= 0,
		County:     ci.county >= 0,
		About:      ci.about >= 0,
		Category:   ci.category >= 0,
		Response:   ci.response >= 0,
	}
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if !utils.IsBlank(c) {
			return false
		}
	}
	return true
}

// FromRows builds a dataset from a header row followed by data rows.
// Header cells are trimmed and matched exactly. Completely empty rows are skipped;
// Row numbers keep their sheet position (header is row 1).
func FromRows(source string, rows [][]string, cols Columns) (*Dataset, error) {
	if len(rows) == 0 || blankRow(rows[0]) {
		return nil, ErrNoHeader
	}
	cols = cols.withDefaults()
	ci := locate(rows[0], cols)

	records := make([]*models.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		n := i + 2
		records = append(records, &models.Record{
			ID:         rowid.RecordID(source, n),
			Row:        n,
			Question:   cell(row, ci.question),
			Answer:     cell(row, ci.answer),
			CustomerID: cell(row, ci.customerID),
			County:     cell(row, ci.county),
			About:      cell(row, ci.about),
			Category:   cell(row, ci.category),
			Response:   cell(row, ci.response),
		})
	}
	return New(source, records, ci.capabilities()), nil
}

// New wraps already-parsed records in a dataset and computes its fingerprint.
func New(source string, records []*models.Record, caps models.Capabilities) *Dataset {
	return &Dataset{
		Source:       source,
		Records:      records,
		Capabilities: caps,
		Fingerprint:  fingerprint(records, caps),
	}
}

func fingerprint(records []*models.Record, caps models.Capabilities) uint64 {
	fp := rowid.NewFingerprint()
	fp.AddRow([]string{fmt.Sprintf("%+v", caps)})
	for _, r := range records {
		fp.AddRow([]string{
			r.ID, strconv.Itoa(r.Row), r.Question, r.Answer,
			r.CustomerID, r.County, r.About, r.Category, r.Response,
		})
	}
	return fp.Sum64()
}

// Parse decodes content in the given format ("xlsx" or "csv"). An empty format
// is taken from the source's file extension. sheet selects the xlsx worksheet;
// empty means the first one.
func Parse(source string, content []byte, format, sheet string, cols Columns) (*Dataset, error) {
	if format == "" {
		format = FormatFromName(source)
	}
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(format) {
	case "xlsx", "xlsm":
		rows, err = readExcel(content, sheet)
	case "csv":
		rows, err = readCSV(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return FromRows(source, rows, cols)
}

// FormatFromName returns the format implied by a file or object name's extension.
func FormatFromName(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
