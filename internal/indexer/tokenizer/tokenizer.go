// Package tokenizer turns document content into (term, position) pairs.
// Text is split on Unicode word boundaries, lower-cased, filtered against a
// stop-word list and Porter-stemmed.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"github.com/blevesearch/segment"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Unit selects what a token's Position counts.
type Unit int

const (
	// UnitOrdinal numbers kept tokens 0, 1, 2, ...
	UnitOrdinal Unit = iota
	// UnitOffset is the byte offset of the token in the input text.
	UnitOffset
)

func (u Unit) String() string {
	if u == UnitOffset {
		return "offset"
	}
	return "ordinal"
}

func ParseUnit(s string) (Unit, error) {
	switch s {
	case "ordinal":
		return UnitOrdinal, nil
	case "offset":
		return UnitOffset, nil
	default:
		return 0, fmt.Errorf("unknown position unit %q", s)
	}
}

// Token is one normalised term and where it was found.
type Token struct {
	Term     string
	Position int
}

type Tokenizer struct {
	unit      Unit
	stopWords bool
	stemming  bool
}

type Option func(*Tokenizer)

func WithUnit(u Unit) Option {
	return func(t *Tokenizer) { t.unit = u }
}

// WithStopWords toggles stop-word removal (on by default).
func WithStopWords(enabled bool) Option {
	return func(t *Tokenizer) { t.stopWords = enabled }
}

// WithStemming toggles Porter stemming (on by default).
func WithStemming(enabled bool) Option {
	return func(t *Tokenizer) { t.stemming = enabled }
}

func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		unit:      UnitOrdinal,
		stopWords: true,
		stemming:  true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tokenizer) Unit() Unit {
	return t.unit
}

// Tokenize scans text left to right. Every occurrence of a kept term yields
// one Token, so positions are non-decreasing in the returned slice.
func (t *Tokenizer) Tokenize(text string) ([]Token, error) {
	seg := segment.NewWordSegmenter(strings.NewReader(text))
	tokens := make([]Token, 0, len(text)/8)
	offset := 0
	ordinal := 0
	for seg.Segment() {
		raw := seg.Bytes()
		start := offset
		offset += len(raw)
		if seg.Type() == segment.None {
			continue
		}
		term, ok := t.normalize(string(raw))
		if !ok {
			continue
		}
		pos := ordinal
		if t.unit == UnitOffset {
			pos = start
		}
		tokens = append(tokens, Token{Term: term, Position: pos})
		ordinal++
	}
	if err := seg.Err(); err != nil {
		return nil, fmt.Errorf("segmenting text: %w", err)
	}
	return tokens, nil
}

// Normalize applies the token pipeline to a single word, as used for
// lookups. It returns "" for words the tokenizer would drop.
func (t *Tokenizer) Normalize(word string) string {
	term, _ := t.normalize(strings.TrimSpace(word))
	return term
}

func (t *Tokenizer) normalize(word string) (string, bool) {
	word = strings.ToLower(word)
	if utf8.RuneCountInString(word) < 2 {
		return "", false
	}
	if t.stopWords {
		if _, isStop := stopWords[word]; isStop {
			return "", false
		}
	}
	if t.stemming {
		word = porterstemmer.StemString(word)
		if word == "" {
			return "", false
		}
	}
	return word, true
}
