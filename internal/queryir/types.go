package queryir

// Query represents an abstract query in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition on a file.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select projects one column of a source, filtered by a predicate.
//
// Semantics:
//
//	SELECT <field> FROM <from> WHERE <filter> ORDER BY <field>
//
// Example:
//
//	Select{
//	  From:  "files",
//	  Field: "path",
//	  Filter: Or{Predicates: []Predicate{
//	    TagEquals{Key: "project", Value: "Alpha"},
//	    TagEquals{Key: "project", Value: "Beta"},
//	  }},
//	}
type Select struct {
	From   string    // Source name (e.g., "files")
	Field  string    // Projected column, also the sort key
	Filter Predicate // WHERE conditions (nil = no filter)
}

func (Select) queryNode() {}

// Equals represents a field-equals-literal predicate.
//
// Value must be a string, int64, or bool.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// TagEquals holds when the file carries at least one tag with the given
// key and value. Tags are non-unique, so this is an existence test.
type TagEquals struct {
	Key   string
	Value string
}

func (TagEquals) predicateNode() {}

// Between represents a closed interval predicate: From <= field <= To.
// A file whose field is NULL never matches.
type Between struct {
	Field string
	From  int64
	To    int64
}

func (Between) predicateNode() {}

// Contains holds when Substring occurs anywhere in the field's value.
// Matching is case-sensitive.
type Contains struct {
	Field     string
	Substring string
}

func (Contains) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is always true (vacuous truth).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction of predicates (at least one must be true).
// An empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}
