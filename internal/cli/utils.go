// Package cli provides output helpers for the kilimo command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kilimo/internal/models"
	"github.com/hyperjump/kilimo/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per item.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a -output flag value to a format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAskResponse writes the answer to an ask, followed by any alternatives.
func WriteAskResponse(w io.Writer, response *models.AskResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		answers := append([]*models.MatchedAnswer{response.Match}, response.Alternatives...)
		for i, a := range answers {
			if a == nil {
				continue
			}
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", i+1, a.Score, oneLine(a.Question), TruncateWords(oneLine(a.Answer), 40))
		}
		return nil
	default:
		writeAskText(w, response)
		return nil
	}
}

func writeAskText(w io.Writer, response *models.AskResponse) {
	fmt.Fprintf(w, "\nQuestion: %s (%dms)\n\n", response.Query, response.QueryTime)
	if response.Match == nil {
		fmt.Fprintln(w, "No similar question found.")
		return
	}
	writeOneAnswer(w, response.Match, "best match")
	for i, alt := range response.Alternatives {
		writeOneAnswer(w, alt, fmt.Sprintf("alternative %d", i+1))
	}
}

func writeOneAnswer(w io.Writer, a *models.MatchedAnswer, label string) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Similarity: %.4f | Row: %d\n", label, a.Score, a.Row)
	if a.County != "" || a.Category != "" {
		fmt.Fprintf(w, "County: %s | Category: %s\n", dash(a.County), dash(a.Category))
	}
	fmt.Fprintf(w, "Similar question: %s\n", utils.Truncate(a.Question, 200))
	fmt.Fprintf(w, "\n%s\n\n", a.Answer)
}

// WriteSummary writes headline dataset totals. Totals whose column is absent are omitted.
func WriteSummary(w io.Writer, s *models.Summary, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, s)
	case OutputCompact:
		fmt.Fprintf(w, "queries=%d", s.TotalQueries)
		if s.UniqueFarmers != nil {
			fmt.Fprintf(w, " farmers=%d", *s.UniqueFarmers)
		}
		if s.Counties != nil {
			fmt.Fprintf(w, " counties=%d", *s.Counties)
		}
		fmt.Fprintln(w)
		return nil
	default:
		fmt.Fprintf(w, "total_queries:   %d\n", s.TotalQueries)
		if s.UniqueFarmers != nil {
			fmt.Fprintf(w, "unique_farmers:  %d\n", *s.UniqueFarmers)
		}
		if s.Counties != nil {
			fmt.Fprintf(w, "counties:        %d\n", *s.Counties)
		}
		return nil
	}
}

// WriteCounties writes per-county query counts, largest first as given.
func WriteCounties(w io.Writer, counts []models.ValueCount, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if counts == nil {
			counts = []models.ValueCount{}
		}
		return writeJSON(w, counts)
	case OutputCompact:
		for _, c := range counts {
			fmt.Fprintf(w, "%s\t%d\n", c.Value, c.Count)
		}
		return nil
	default:
		width := len("county")
		for _, c := range counts {
			if len(c.Value) > width {
				width = len(c.Value)
			}
		}
		fmt.Fprintf(w, "%-*s  %s\n", width, "county", "queries")
		for _, c := range counts {
			fmt.Fprintf(w, "%-*s  %d\n", width, c.Value, c.Count)
		}
		return nil
	}
}

// WriteRecords writes dataset records, one block (text) or line (compact) each.
func WriteRecords(w io.Writer, records []*models.Record, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if records == nil {
			records = []*models.Record{}
		}
		return writeJSON(w, records)
	case OutputCompact:
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Row, dash(r.County), dash(r.Category), oneLine(r.Question))
		}
		return nil
	default:
		fmt.Fprintf(w, "%d record(s)\n\n", len(records))
		for _, r := range records {
			fmt.Fprintf(w, "Row %d | County: %s | About: %s | Category: %s\n", r.Row, dash(r.County), dash(r.About), dash(r.Category))
			fmt.Fprintf(w, "  Q: %s\n", utils.Truncate(oneLine(r.Question), 200))
			if r.Answer != "" {
				fmt.Fprintf(w, "  A: %s\n", utils.Truncate(oneLine(r.Answer), 200))
			}
		}
		return nil
	}
}

// WriteStatus writes the loaded snapshot description.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, st)
	case OutputCompact:
		fmt.Fprintf(w, "source=%s records=%d corpus=%d vocabulary=%d fingerprint=%s\n",
			st.Source, st.Records, st.Corpus, st.Vocabulary, st.Fingerprint)
		return nil
	default:
		fmt.Fprintf(w, "source:            %s\n", st.Source)
		fmt.Fprintf(w, "records:           %d   # rows loaded from the dataset\n", st.Records)
		fmt.Fprintf(w, "corpus:            %d   # questions available to ask against\n", st.Corpus)
		fmt.Fprintf(w, "vocabulary:        %d\n", st.Vocabulary)
		fmt.Fprintf(w, "fingerprint:       %s\n", st.Fingerprint)
		if !st.LoadedAt.IsZero() {
			fmt.Fprintf(w, "loaded_at:         %s\n", st.LoadedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(w, "asks_logged:       %d\n", st.Asks)
		if st.DiskUsageBytes != nil {
			fmt.Fprintf(w, "disk_usage_bytes:  %d\n", *st.DiskUsageBytes)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# columns")
		fmt.Fprintf(w, "question/answer:   %t\n", st.Capabilities.QA)
		fmt.Fprintf(w, "customer_id:       %t\n", st.Capabilities.CustomerID)
		fmt.Fprintf(w, "county:            %t\n", st.Capabilities.County)
		fmt.Fprintf(w, "about:             %t\n", st.Capabilities.About)
		fmt.Fprintf(w, "category:          %t\n", st.Capabilities.Category)
		fmt.Fprintf(w, "response:          %t\n", st.Capabilities.Response)
		return nil
	}
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
