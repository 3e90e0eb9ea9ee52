// Package analyzer turns raw field text into a stream of normalised tokens.
// It lower-cases input, splits on Unicode word boundaries, drops stop-words,
// and applies a pluggable stemmer.
package analyzer

import (
	"iter"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "so": {}, "can": {},
}

// Token is a single normalised term with its field and ordinal position
// within that field. Tokens are transient; the index keeps only derived
// postings.
type Token struct {
	Term     string
	Field    string
	Position int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStemmer replaces the default suffix stemmer.
func WithStemmer(s Stemmer) Option {
	return func(a *Analyzer) { a.stemmer = s }
}

// WithoutStopWords keeps stop-words in the token stream.
func WithoutStopWords() Option {
	return func(a *Analyzer) { a.keepStop = true }
}

// WithMinTokenLen sets the minimum surviving word length.
func WithMinTokenLen(n int) Option {
	return func(a *Analyzer) { a.minLen = n }
}

// Analyzer normalises text deterministically: the same input always yields
// the same token sequence.
type Analyzer struct {
	stemmer  Stemmer
	keepStop bool
	minLen   int
}

// New creates an Analyzer with the default suffix stemmer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		stemmer: SuffixStemmer{},
		minLen:  2,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.stemmer == nil {
		a.stemmer = NoStemmer{}
	}
	return a
}

// Tokens returns a lazy sequence of tokens for one field's text. The
// sequence is finite and restartable; ranging over it twice produces
// identical output. Empty or whitespace-only input yields no tokens.
func (a *Analyzer) Tokens(text, field string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		pos := 0
		rest := text
		for {
			start := strings.IndexFunc(rest, isWordRune)
			if start < 0 {
				return
			}
			rest = rest[start:]
			end := strings.IndexFunc(rest, func(r rune) bool { return !isWordRune(r) })
			if end < 0 {
				end = len(rest)
			}
			word := strings.ToLower(rest[:end])
			rest = rest[end:]

			term, ok := a.normalize(word)
			if !ok {
				continue
			}
			if !yield(Token{Term: term, Field: field, Position: pos}) {
				return
			}
			pos++
		}
	}
}

// Tokenize collects the full token sequence into a slice.
func (a *Analyzer) Tokenize(text, field string) []Token {
	var tokens []Token
	for tok := range a.Tokens(text, field) {
		tokens = append(tokens, tok)
	}
	return tokens
}

// NormalizeTerm applies the analyzer's normalisation pipeline to a single
// query word. It returns false if the word is dropped entirely (stop-word
// or too short).
func (a *Analyzer) NormalizeTerm(word string) (string, bool) {
	return a.normalize(strings.ToLower(strings.TrimSpace(word)))
}

func (a *Analyzer) normalize(word string) (string, bool) {
	if len(word) < a.minLen {
		return "", false
	}
	if !a.keepStop {
		if _, isStop := stopWords[word]; isStop {
			return "", false
		}
	}
	stemmed := a.stemmer.Stem(word)
	if stemmed == "" {
		return "", false
	}
	return stemmed, true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
