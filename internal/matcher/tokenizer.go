package matcher

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/surgebase/porter2"
)

// wordRun matches maximal runs of letters, digits and underscore.
var wordRun = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// minTokenRunes drops single-character tokens such as "a" or "5".
const minTokenRunes = 2

// Tokenizer turns text into the terms used for both vocabulary building and
// query vectorization. A State keeps the Tokenizer it was built with.
type Tokenizer struct {
	stopWords analysis.TokenMap
	stemming  bool
}

// NewTokenizer returns a tokenizer. With no options it lowercases and splits on
// non-word characters only.
func NewTokenizer(stopWords, stemming bool) *Tokenizer {
	t := &Tokenizer{stemming: stemming}
	if stopWords {
		t.stopWords = analysis.NewTokenMap()
		// The list is compiled into bleve; LoadBytes only fails on read errors.
		_ = t.stopWords.LoadBytes(en.EnglishStopWords)
	}
	return t
}

// Tokens returns the terms of text in order of appearance, duplicates included.
func (t *Tokenizer) Tokens(text string) []string {
	if text == "" {
		return nil
	}
	runs := wordRun.FindAllString(strings.ToLower(text), -1)
	out := runs[:0]
	for _, tok := range runs {
		if utf8.RuneCountInString(tok) < minTokenRunes {
			continue
		}
		if t.stopWords != nil && t.stopWords[tok] {
			continue
		}
		if t.stemming && isASCII(tok) {
			tok = porter2.Stem(tok)
		}
		out = append(out, tok)
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
