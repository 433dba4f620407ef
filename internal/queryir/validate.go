package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when the query can be executed as written.
	Valid bool

	// Errors make the query unexecutable (e.g. an inverted range).
	Errors []string

	// Warnings flag legal but suspicious shapes (e.g. a predicate that
	// matches everything). Callers typically log them.
	Warnings []string
}

// String renders the result for logs.
func (r ValidationResult) String() string {
	if r.Valid && len(r.Warnings) == 0 {
		return "valid"
	}
	var parts []string
	for _, e := range r.Errors {
		parts = append(parts, "error: "+e)
	}
	for _, w := range r.Warnings {
		parts = append(parts, "warning: "+w)
	}
	return strings.Join(parts, "; ")
}

// Validate checks a query tree for structural problems.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{
		errors:   []string{},
		warnings: []string{},
	}
	v.validateQuery(query)

	return ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

// validator accumulates findings during traversal.
type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	if q == nil {
		v.addError("nil query")
		return
	}

	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addError("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From == "" {
		v.addError("select has no source")
	}
	if sel.Field == "" {
		v.addError("select has no projected field")
	}
	if sel.Filter == nil {
		v.addWarning("no filter - every row matches")
		return
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		v.addError("nil predicate")
		return
	}

	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case TagEquals:
		v.validateTagEquals(pred)
	case *TagEquals:
		v.validateTagEquals(*pred)
	case Between:
		v.validateBetween(pred)
	case *Between:
		v.validateBetween(*pred)
	case Contains:
		v.validateContains(pred)
	case *Contains:
		v.validateContains(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	case Or:
		v.validateOr(pred)
	case *Or:
		v.validateOr(*pred)
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	switch eq.Value.(type) {
	case string, int64, int, bool:
	case nil:
		v.addError("field '%s' compared to NULL", eq.Field)
	default:
		v.addError("field '%s' compared to unsupported value type %T", eq.Field, eq.Value)
	}
}

func (v *validator) validateTagEquals(te TagEquals) {
	if te.Key == "" {
		v.addError("tag predicate with empty key")
	}
}

func (v *validator) validateBetween(b Between) {
	if b.From > b.To {
		v.addError("range on '%s' is inverted (%d > %d)", b.Field, b.From, b.To)
	}
}

func (v *validator) validateContains(c Contains) {
	if c.Substring == "" {
		v.addWarning("empty substring on '%s' matches every row", c.Field)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}

func (v *validator) validateOr(or Or) {
	if len(or.Predicates) == 0 {
		v.addWarning("empty OR matches no rows")
	}
	for _, sub := range or.Predicates {
		v.validatePredicate(sub)
	}
}
