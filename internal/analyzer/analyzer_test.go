package analyzer

import (
	"reflect"
	"testing"
)

func TestTokenizeNormalisesAndPositions(t *testing.T) {
	a := New(WithStemmer(NoStemmer{}))

	tokens := a.Tokenize("The Quick Brown fox", "title")
	want := []Token{
		{Term: "quick", Field: "title", Position: 0},
		{Term: "brown", Field: "title", Position: 1},
		{Term: "fox", Field: "title", Position: 2},
	}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("got %+v, want %+v", tokens, want)
	}
}

func TestTokenizePositionsAfterStopWordRemoval(t *testing.T) {
	a := New(WithStemmer(NoStemmer{}))

	// Stop-words are dropped before positions are assigned, so surviving
	// neighbours stay adjacent.
	tokens := a.Tokenize("jumped over the lazy dog", "body")
	positions := map[string]int{}
	for _, tok := range tokens {
		positions[tok.Term] = tok.Position
	}
	if positions["lazy"]+1 != positions["dog"] {
		t.Errorf("lazy/dog not adjacent: %v", positions)
	}
	if _, ok := positions["the"]; ok {
		t.Error("stop-word 'the' survived tokenisation")
	}
}

func TestTokenizeEmptyInput(t *testing.T) {
	a := New()
	for _, input := range []string{"", "   ", "\t\n", "a", "...!?"} {
		if got := a.Tokenize(input, "body"); len(got) != 0 {
			t.Errorf("Tokenize(%q) = %v, want no tokens", input, got)
		}
	}
}

func TestTokensSequenceIsRestartable(t *testing.T) {
	a := New()
	seq := a.Tokens("distributed search engines", "body")

	first := make([]Token, 0, 3)
	for tok := range seq {
		first = append(first, tok)
	}
	second := make([]Token, 0, 3)
	for tok := range seq {
		second = append(second, tok)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second pass %v differs from first %v", second, first)
	}
}

func TestTokenizePunctuationAndDigits(t *testing.T) {
	a := New(WithStemmer(NoStemmer{}))
	tokens := a.Tokenize("iPhone-14, (pro)!", "name")

	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, tok.Term)
	}
	want := []string{"iphone", "14", "pro"}
	if !reflect.DeepEqual(terms, want) {
		t.Fatalf("got %v, want %v", terms, want)
	}
}

func TestWithoutStopWords(t *testing.T) {
	a := New(WithoutStopWords(), WithStemmer(NoStemmer{}))
	tokens := a.Tokenize("the cat", "body")
	if len(tokens) != 2 || tokens[0].Term != "the" {
		t.Fatalf("expected stop-words retained, got %+v", tokens)
	}
}

func TestWithMinTokenLen(t *testing.T) {
	a := New(WithMinTokenLen(4), WithStemmer(NoStemmer{}))
	tokens := a.Tokenize("big blue whale", "body")
	if len(tokens) != 2 {
		t.Fatalf("expected only 4+ letter words, got %+v", tokens)
	}
	if tokens[0].Term != "blue" || tokens[1].Term != "whale" {
		t.Fatalf("unexpected terms: %+v", tokens)
	}
}

func TestNormalizeTermMatchesTokenize(t *testing.T) {
	a := New()
	// A query word must normalise to the same term an indexed document
	// produced, or lookups silently miss.
	docTokens := a.Tokenize("Searching", "body")
	if len(docTokens) != 1 {
		t.Fatalf("expected one token, got %+v", docTokens)
	}
	queryTerm, ok := a.NormalizeTerm("SEARCHING")
	if !ok {
		t.Fatal("query term was dropped")
	}
	if queryTerm != docTokens[0].Term {
		t.Fatalf("query term %q != indexed term %q", queryTerm, docTokens[0].Term)
	}
}

func TestNormalizeTermDropsStopWords(t *testing.T) {
	a := New()
	if term, ok := a.NormalizeTerm("the"); ok {
		t.Fatalf("stop-word normalised to %q, want dropped", term)
	}
	if term, ok := a.NormalizeTerm("x"); ok {
		t.Fatalf("single letter normalised to %q, want dropped", term)
	}
}

func TestSuffixStemmer(t *testing.T) {
	s := SuffixStemmer{}
	tests := []struct {
		word string
		want string
	}{
		{"relational", "relate"},
		{"connection", "connect"},
		{"studies", "study"},
		{"running", "runn"},
		{"cameras", "camera"},
		{"indexes", "index"},
		{"class", "class"},
		{"go", "go"},
	}
	for _, tt := range tests {
		if got := s.Stem(tt.word); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

func TestStemmerShortWordsUntouched(t *testing.T) {
	s := SuffixStemmer{}
	// Stripping "ing" from "ing" itself would leave nothing; the minimum
	// stem length guard keeps the word intact instead.
	if got := s.Stem("ing"); got != "ing" {
		t.Errorf("Stem(ing) = %q", got)
	}
}
