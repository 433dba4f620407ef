// Package queryir provides the predicate intermediate representation (IR)
// for metad's filter/logic algebra.
//
// QueryIR is the boundary between the query engine, which turns a filter
// set into predicates, and the SQL backend, which compiles predicates into
// one parameterized statement:
//
//	[filter set + logic mode] → [Query IR] → [SQL Backend]
//
// Composing every filter into a single statement gives one consistent
// read, instead of running one lookup per filter followed by set algebra.
//
// PREDICATES:
//
//   - Equals(field, value): a file column equals a literal
//   - TagEquals(key, value): the file carries the tag key=value
//   - Between(field, from, to): closed integer interval on a file column
//   - Contains(field, substring): substring match on a file column
//   - And / Or: conjunction and disjunction (AND intersects, OR unions)
//
// An empty And is always true; an empty Or is always false.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, which keeps type switches
// in backends exhaustive:
//
//	switch p := pred.(type) {
//	case TagEquals:
//	    // EXISTS subquery over tags
//	case Between:
//	    // range predicate
//	default:
//	    // impossible for well-formed trees
//	}
package queryir
