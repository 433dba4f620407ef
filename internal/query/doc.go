// Package query evaluates metad's filter/logic algebra.
//
// A Command names a filter set, a logic mode, and an action. The engine
// turns the filter set into a queryir predicate tree (one predicate per
// present filter), compiles it into a single parameterized SQL statement,
// and applies the action to the matched paths:
//
//	project, collaborators, tags  → tag existence predicates
//	date_range                    → closed interval on modified_time
//	subvol, type                  → substring predicates on path
//
// AND intersects and OR unions, both inside the one statement. An empty
// filter set matches every file; destructive actions on an empty filter
// set are logged as warnings but still executed.
package query
