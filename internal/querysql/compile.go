package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/metad/internal/queryir"
)

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries include ORDER BY for deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
// Identifiers are checked against a whitelist since they cannot be bound.
type SQLCompiler struct {
	// Sources maps each queryable table to its allowed columns.
	Sources map[string][]string
}

// NewSQLCompiler creates a compiler for the metadata store schema.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		Sources: map[string][]string{
			"files": {"id", "path", "volume_id", "inode", "checksum", "modified_time"},
		},
	}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileSelect compiles a queryir.Select to SQL.
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	if _, ok := c.Sources[q.From]; !ok {
		return "", nil, fmt.Errorf("unknown source %q", q.From)
	}
	if err := c.checkColumn(q.From, q.Field); err != nil {
		return "", nil, err
	}

	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.From, q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s.%s FROM %s%s ORDER BY %s",
		q.From, q.Field,
		q.From,
		whereClause,
		stableOrderKey(q))

	return sql, params, nil
}

// stableOrderKey returns the ORDER BY clause for a query.
// COLLATE BINARY ensures deterministic text ordering across SQLite versions.
func stableOrderKey(q queryir.Select) string {
	return q.From + "." + q.Field + " COLLATE BINARY ASC"
}

func (c *SQLCompiler) checkColumn(source, field string) error {
	for _, col := range c.Sources[source] {
		if col == field {
			return nil
		}
	}
	return fmt.Errorf("unknown column %q on %s", field, source)
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(source string, p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, fmt.Errorf("nil predicate")
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(source, pred)
	case *queryir.Equals:
		return c.compileEquals(source, *pred)
	case queryir.TagEquals:
		return compileTagEquals(source, pred)
	case *queryir.TagEquals:
		return compileTagEquals(source, *pred)
	case queryir.Between:
		return c.compileBetween(source, pred)
	case *queryir.Between:
		return c.compileBetween(source, *pred)
	case queryir.Contains:
		return c.compileContains(source, pred)
	case *queryir.Contains:
		return c.compileContains(source, *pred)
	case queryir.And:
		return c.compileJunction(source, pred.Predicates, " AND ", "1 = 1")
	case *queryir.And:
		return c.compileJunction(source, pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileJunction(source, pred.Predicates, " OR ", "1 = 0")
	case *queryir.Or:
		return c.compileJunction(source, pred.Predicates, " OR ", "1 = 0")
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles an Equals predicate to "field = ?".
func (c *SQLCompiler) compileEquals(source string, eq queryir.Equals) (string, []any, error) {
	if err := c.checkColumn(source, eq.Field); err != nil {
		return "", nil, err
	}
	param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return fmt.Sprintf("%s.%s = ?", source, eq.Field), []any{param}, nil
}

// compileTagEquals compiles a tag existence test. The subquery keeps the
// outer query one row per file even when a tag is repeated.
func compileTagEquals(source string, te queryir.TagEquals) (string, []any, error) {
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM tags t WHERE t.file_id = %s.id AND t.key = ? AND t.value = ?)",
		source)
	return sql, []any{te.Key, te.Value}, nil
}

func (c *SQLCompiler) compileBetween(source string, b queryir.Between) (string, []any, error) {
	if err := c.checkColumn(source, b.Field); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s.%s BETWEEN ? AND ?", source, b.Field), []any{b.From, b.To}, nil
}

// compileContains uses instr rather than LIKE so that '%' and '_' in the
// substring match literally.
func (c *SQLCompiler) compileContains(source string, ct queryir.Contains) (string, []any, error) {
	if err := c.checkColumn(source, ct.Field); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("instr(%s.%s, ?) > 0", source, ct.Field), []any{ct.Substring}, nil
}

// compileJunction joins sub-predicates with op. An empty junction compiles
// to its identity element.
func (c *SQLCompiler) compileJunction(source string, preds []queryir.Predicate, op, identity string) (string, []any, error) {
	if len(preds) == 0 {
		return identity, nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range preds {
		sql, params, err := c.compilePredicate(source, pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	if len(sqlParts) == 1 {
		return sqlParts[0], allParams, nil
	}
	return "(" + strings.Join(sqlParts, op) + ")", allParams, nil
}

// valueToParam converts a literal to a SQL parameter.
func valueToParam(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case bool:
		return val, nil
	case nil:
		return nil, fmt.Errorf("NULL cannot be compared with =")
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
