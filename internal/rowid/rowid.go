// Package rowid provides deterministic record IDs and content fingerprints for dataset rows.
package rowid

import (
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const prefix = "row:"

// RecordID returns a stable ID for the row at the given 1-based sheet position of source.
// Same source and row always yield the same ID; reloading an unchanged file keeps IDs stable.
func RecordID(source string, row int) string {
	d := xxhash.New()
	_, _ = d.WriteString(filepath.Clean(source))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(row))
	return prefix + strconv.FormatUint(d.Sum64(), 16)
}

// Fingerprint accumulates a content hash over a sequence of rows.
type Fingerprint struct {
	d *xxhash.Digest
}

// NewFingerprint returns an empty fingerprint.
func NewFingerprint() *Fingerprint {
	return &Fingerprint{d: xxhash.New()}
}

// AddRow folds the cells of one row into the fingerprint. Cell and row
// separators are hashed so that ["ab","c"] and ["a","bc"] differ.
func (f *Fingerprint) AddRow(cells []string) {
	for _, c := range cells {
		_, _ = f.d.WriteString(c)
		_, _ = f.d.WriteString("\x1f")
	}
	_, _ = f.d.WriteString("\x1e")
}

// Sum64 returns the current fingerprint value.
func (f *Fingerprint) Sum64() uint64 {
	return f.d.Sum64()
}
