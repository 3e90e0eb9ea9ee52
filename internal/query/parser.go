package query

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/quiver-search/quiver/pkg/errors"
)

// SyntaxError reports malformed query text with the byte offset of the
// offending fragment.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return errors.ErrQuerySyntax
}

// Grammar, informally:
//
//	query  := group ('|' group)*        OR binds looser than implicit AND
//	group  := clause+                   adjacent clauses are ANDed
//	clause := '-'? primary              '-' negates one clause
//	primary:= '"' word+ '"'             phrase, adjacency-ordered
//	        | word '*'                  prefix
//	        | word
//
// Malformed input (unbalanced quotes, empty query, dangling operators) is
// an error; the parser never silently drops fragments.

// Parse parses a query string into a query tree.
func Parse(input string) (Node, error) {
	p := &parser{src: input}
	node, err := p.parse()
	if err != nil {
		return nil, err
	}
	return node, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) parse() (Node, error) {
	var groups []Node
	var clauses []Node
	sepPos := 0

	closeGroup := func() error {
		if len(clauses) == 0 {
			return &SyntaxError{Pos: sepPos, Msg: "missing clause around '|'"}
		}
		if len(clauses) == 1 {
			groups = append(groups, clauses[0])
		} else {
			groups = append(groups, And{Children: clauses})
		}
		clauses = nil
		return nil
	}

	for {
		p.skipSpaces()
		if p.pos >= len(p.src) {
			break
		}
		switch p.src[p.pos] {
		case '|':
			if err := closeGroup(); err != nil {
				return nil, err
			}
			sepPos = p.pos
			p.pos++
		default:
			clause, err := p.parseClause()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
		}
	}

	if len(groups) == 0 && len(clauses) == 0 {
		return nil, &SyntaxError{Pos: 0, Msg: "empty query"}
	}
	if err := closeGroup(); err != nil {
		return nil, err
	}
	if len(groups) == 1 {
		return groups[0], nil
	}
	return Or{Children: groups}, nil
}

func (p *parser) parseClause() (Node, error) {
	if p.src[p.pos] == '-' {
		negPos := p.pos
		p.pos++
		if p.pos >= len(p.src) || isSpace(p.src[p.pos]) || p.src[p.pos] == '|' || p.src[p.pos] == '-' {
			return nil, &SyntaxError{Pos: negPos, Msg: "'-' must be followed by a term, phrase, or prefix"}
		}
		child, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return Not{Pos: negPos, Child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	if p.src[p.pos] == '"' {
		return p.parsePhrase()
	}
	return p.parseWord()
}

func (p *parser) parsePhrase() (Node, error) {
	openPos := p.pos
	p.pos++ // opening quote
	end := strings.IndexByte(p.src[p.pos:], '"')
	if end < 0 {
		return nil, &SyntaxError{Pos: openPos, Msg: "unbalanced quote"}
	}
	body := p.src[p.pos : p.pos+end]
	p.pos += end + 1

	words := strings.Fields(body)
	if len(words) == 0 {
		return nil, &SyntaxError{Pos: openPos, Msg: "empty phrase"}
	}
	return Phrase{Pos: openPos, Words: words}, nil
}

func (p *parser) parseWord() (Node, error) {
	start := p.pos
	for p.pos < len(p.src) && !isSpace(p.src[p.pos]) && p.src[p.pos] != '|' && p.src[p.pos] != '"' {
		p.pos++
	}
	word := p.src[start:p.pos]
	if strings.HasSuffix(word, "*") {
		stem := strings.TrimRight(word, "*")
		if stem == "" {
			return nil, &SyntaxError{Pos: start, Msg: "'*' needs a preceding stem"}
		}
		return Prefix{Pos: start, Stem: stem}, nil
	}
	return Term{Pos: start, Text: word}, nil
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || unicode.IsSpace(rune(b))
}
