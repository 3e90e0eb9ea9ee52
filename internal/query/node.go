// Package query parses query strings into immutable query trees. Parsing is
// pure: no index access and no normalisation. Terms are carried verbatim and
// normalised by the evaluator so that query text and indexed text go through
// the same analyzer.
package query

// Node is a node in the parsed query tree.
type Node interface {
	isNode()
}

// Term matches documents containing a single term.
type Term struct {
	Pos  int
	Text string
}

// Phrase matches documents containing the words adjacently, in order, in a
// single field.
type Phrase struct {
	Pos   int
	Words []string
}

// Prefix matches documents containing any term starting with Stem.
type Prefix struct {
	Pos  int
	Stem string
}

// And matches the intersection of its children.
type And struct {
	Children []Node
}

// Or matches the union of its children.
type Or struct {
	Children []Node
}

// Not excludes documents matched by its child. Valid only alongside at
// least one positive clause; the evaluator rejects a Not standing alone.
type Not struct {
	Pos   int
	Child Node
}

func (Term) isNode()   {}
func (Phrase) isNode() {}
func (Prefix) isNode() {}
func (And) isNode()    {}
func (Or) isNode()     {}
func (Not) isNode()    {}
