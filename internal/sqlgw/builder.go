package sqlgw

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/aura-attendance/backend/internal/naming"
)

// ErrUnsafeIdentifier is returned when a builder is given a partition, table or
// column name that is not sanitizer output.
var ErrUnsafeIdentifier = errors.New("unsafe identifier")

// Statement is a SQL string holding only sanitized identifiers and named
// placeholders (@p1, @p2, ...) plus the flat parameter map binding them.
type Statement struct {
	SQL    string
	Params map[string]any
}

// Builder is implemented by every query builder in this package.
type Builder interface {
	Build() (Statement, error)
}

// Op is a comparison operator usable in Where clauses.
type Op string

const (
	Eq    Op = "="
	Ne    Op = "<>"
	Lt    Op = "<"
	Lte   Op = "<="
	Gt    Op = ">"
	Gte   Op = ">="
	ILike Op = "ILIKE"
)

var allowedOps = map[Op]bool{Eq: true, Ne: true, Lt: true, Lte: true, Gt: true, Gte: true, ILike: true}

// Backslash is the default LIKE escape character in PostgreSQL.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains returns an ILike pattern matching s anywhere in the column, with
// any wildcard characters in s matched literally.
func Contains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// Qualified returns the quoted "<partition>"."<table>" reference.
func Qualified(partition, table string) (string, error) {
	if !naming.ValidIdentifier(partition) {
		return "", fmt.Errorf("%w: partition %q", ErrUnsafeIdentifier, partition)
	}
	if !naming.ValidIdentifier(table) {
		return "", fmt.Errorf("%w: table %q", ErrUnsafeIdentifier, table)
	}
	return pgx.Identifier{partition, table}.Sanitize(), nil
}

// Ident quotes a single identifier after checking it is sanitizer output.
func Ident(name string) (string, error) {
	if !naming.ValidIdentifier(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeIdentifier, name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

type binder struct {
	params map[string]any
}

func newBinder() *binder { return &binder{params: make(map[string]any)} }

func (b *binder) bind(v any) string {
	name := "p" + strconv.Itoa(len(b.params)+1)
	b.params[name] = v
	return "@" + name
}

type cond struct {
	column string
	op     Op
	value  any
	isNull bool
}

type conds []cond

func (cs conds) render(b *binder) (string, error) {
	if len(cs) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		col, err := Ident(c.column)
		if err != nil {
			return "", err
		}
		if c.isNull {
			parts = append(parts, col+" IS NULL")
			continue
		}
		if !allowedOps[c.op] {
			return "", fmt.Errorf("unsupported operator %q", c.op)
		}
		parts = append(parts, col+" "+string(c.op)+" "+b.bind(c.value))
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func quoteColumns(cols []string) (string, error) {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		q, err := Ident(c)
		if err != nil {
			return "", err
		}
		out = append(out, q)
	}
	return strings.Join(out, ", "), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InsertQuery builds INSERT statements.
type InsertQuery struct {
	partition, table string
	columns          []string
	rows             [][]any
	returning        []string
	conflictCols     []string
	doNothing        bool
}

// Insert starts a single-row INSERT into <partition>.<table>. Columns are emitted in sorted order.
func Insert(partition, table string, values map[string]any) *InsertQuery {
	cols := sortedKeys(values)
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = values[c]
	}
	return &InsertQuery{partition: partition, table: table, columns: cols, rows: [][]any{row}}
}

// InsertMany starts a multi-row INSERT. Every row must have len(columns) values.
func InsertMany(partition, table string, columns []string, rows [][]any) *InsertQuery {
	return &InsertQuery{partition: partition, table: table, columns: columns, rows: rows}
}

// Returning adds a RETURNING clause.
func (q *InsertQuery) Returning(cols ...string) *InsertQuery {
	q.returning = cols
	return q
}

// OnConflictDoNothing skips rows that violate a unique constraint on cols.
func (q *InsertQuery) OnConflictDoNothing(cols ...string) *InsertQuery {
	q.conflictCols = cols
	q.doNothing = true
	return q
}

// Build renders the statement.
func (q *InsertQuery) Build() (Statement, error) {
	tbl, err := Qualified(q.partition, q.table)
	if err != nil {
		return Statement{}, err
	}
	if len(q.columns) == 0 || len(q.rows) == 0 {
		return Statement{}, errors.New("insert: no values")
	}
	cols, err := quoteColumns(q.columns)
	if err != nil {
		return Statement{}, err
	}
	b := newBinder()
	tuples := make([]string, 0, len(q.rows))
	for i, row := range q.rows {
		if len(row) != len(q.columns) {
			return Statement{}, fmt.Errorf("insert: row %d has %d values, want %d", i, len(row), len(q.columns))
		}
		ph := make([]string, len(row))
		for j, v := range row {
			ph[j] = b.bind(v)
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO " + tbl + " (" + cols + ") VALUES " + strings.Join(tuples, ", "))
	if q.doNothing {
		sb.WriteString(" ON CONFLICT")
		if len(q.conflictCols) > 0 {
			cc, err := quoteColumns(q.conflictCols)
			if err != nil {
				return Statement{}, err
			}
			sb.WriteString(" (" + cc + ")")
		}
		sb.WriteString(" DO NOTHING")
	}
	if len(q.returning) > 0 {
		rc, err := quoteColumns(q.returning)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" RETURNING " + rc)
	}
	return Statement{SQL: sb.String(), Params: b.params}, nil
}

// UpdateQuery builds UPDATE statements.
type UpdateQuery struct {
	partition, table string
	set              map[string]any
	raw              map[string]string
	where            conds
	returning        []string
}

// Update starts an UPDATE of <partition>.<table>.
func Update(partition, table string, set map[string]any) *UpdateQuery {
	return &UpdateQuery{partition: partition, table: table, set: set}
}

// SetNow assigns NOW() to column.
func (q *UpdateQuery) SetNow(column string) *UpdateQuery {
	if q.raw == nil {
		q.raw = make(map[string]string)
	}
	q.raw[column] = "NOW()"
	return q
}

// Where adds an equality condition.
func (q *UpdateQuery) Where(column string, value any) *UpdateQuery {
	q.where = append(q.where, cond{column: column, op: Eq, value: value})
	return q
}

// Returning adds a RETURNING clause.
func (q *UpdateQuery) Returning(cols ...string) *UpdateQuery {
	q.returning = cols
	return q
}

// Build renders the statement. An UPDATE without conditions is rejected.
func (q *UpdateQuery) Build() (Statement, error) {
	tbl, err := Qualified(q.partition, q.table)
	if err != nil {
		return Statement{}, err
	}
	if len(q.set)+len(q.raw) == 0 {
		return Statement{}, errors.New("update: no assignments")
	}
	if len(q.where) == 0 {
		return Statement{}, errors.New("update: refusing to update without conditions")
	}
	b := newBinder()
	assigns := make([]string, 0, len(q.set)+len(q.raw))
	for _, c := range sortedKeys(q.set) {
		col, err := Ident(c)
		if err != nil {
			return Statement{}, err
		}
		assigns = append(assigns, col+" = "+b.bind(q.set[c]))
	}
	rawKeys := make([]string, 0, len(q.raw))
	for k := range q.raw {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)
	for _, c := range rawKeys {
		col, err := Ident(c)
		if err != nil {
			return Statement{}, err
		}
		assigns = append(assigns, col+" = "+q.raw[c])
	}
	where, err := q.where.render(b)
	if err != nil {
		return Statement{}, err
	}
	sql := "UPDATE " + tbl + " SET " + strings.Join(assigns, ", ") + where
	if len(q.returning) > 0 {
		rc, err := quoteColumns(q.returning)
		if err != nil {
			return Statement{}, err
		}
		sql += " RETURNING " + rc
	}
	return Statement{SQL: sql, Params: b.params}, nil
}

// DeleteQuery builds DELETE statements.
type DeleteQuery struct {
	partition, table string
	where            conds
	returning        []string
}

// Delete starts a DELETE from <partition>.<table>.
func Delete(partition, table string) *DeleteQuery {
	return &DeleteQuery{partition: partition, table: table}
}

// Where adds an equality condition.
func (q *DeleteQuery) Where(column string, value any) *DeleteQuery {
	q.where = append(q.where, cond{column: column, op: Eq, value: value})
	return q
}

// Returning adds a RETURNING clause.
func (q *DeleteQuery) Returning(cols ...string) *DeleteQuery {
	q.returning = cols
	return q
}

// Build renders the statement. A DELETE without conditions is rejected.
func (q *DeleteQuery) Build() (Statement, error) {
	tbl, err := Qualified(q.partition, q.table)
	if err != nil {
		return Statement{}, err
	}
	if len(q.where) == 0 {
		return Statement{}, errors.New("delete: refusing to delete without conditions")
	}
	b := newBinder()
	where, err := q.where.render(b)
	if err != nil {
		return Statement{}, err
	}
	sql := "DELETE FROM " + tbl + where
	if len(q.returning) > 0 {
		rc, err := quoteColumns(q.returning)
		if err != nil {
			return Statement{}, err
		}
		sql += " RETURNING " + rc
	}
	return Statement{SQL: sql, Params: b.params}, nil
}

type order struct {
	column string
	desc   bool
}

// SelectQuery builds SELECT statements and their matching COUNT statements.
type SelectQuery struct {
	partition, table string
	columns          []string
	countAlias       string
	where            conds
	groupBy          []string
	orderBy          []order
	limit, offset    int
}

// Select starts a SELECT of columns from <partition>.<table>. No columns selects *.
func Select(partition, table string, columns ...string) *SelectQuery {
	return &SelectQuery{partition: partition, table: table, columns: columns}
}

// CountAs adds COUNT(*) AS alias to the projection.
func (q *SelectQuery) CountAs(alias string) *SelectQuery {
	q.countAlias = alias
	return q
}

// Where adds an equality condition.
func (q *SelectQuery) Where(column string, value any) *SelectQuery {
	return q.WhereOp(column, Eq, value)
}

// WhereOp adds a condition with an explicit operator.
func (q *SelectQuery) WhereOp(column string, op Op, value any) *SelectQuery {
	q.where = append(q.where, cond{column: column, op: op, value: value})
	return q
}

// WhereNull adds "column IS NULL".
func (q *SelectQuery) WhereNull(column string) *SelectQuery {
	q.where = append(q.where, cond{column: column, isNull: true})
	return q
}

// GroupBy adds GROUP BY columns.
func (q *SelectQuery) GroupBy(cols ...string) *SelectQuery {
	q.groupBy = append(q.groupBy, cols...)
	return q
}

// OrderBy appends an ORDER BY term.
func (q *SelectQuery) OrderBy(column string, desc bool) *SelectQuery {
	q.orderBy = append(q.orderBy, order{column: column, desc: desc})
	return q
}

// Limit sets LIMIT; zero means no limit.
func (q *SelectQuery) Limit(n int) *SelectQuery {
	q.limit = n
	return q
}

// Offset sets OFFSET.
func (q *SelectQuery) Offset(n int) *SelectQuery {
	q.offset = n
	return q
}

// Build renders the SELECT statement.
func (q *SelectQuery) Build() (Statement, error) {
	tbl, err := Qualified(q.partition, q.table)
	if err != nil {
		return Statement{}, err
	}
	proj := "*"
	if len(q.columns) > 0 {
		if proj, err = quoteColumns(q.columns); err != nil {
			return Statement{}, err
		}
	}
	if q.countAlias != "" {
		alias, err := Ident(q.countAlias)
		if err != nil {
			return Statement{}, err
		}
		if len(q.columns) == 0 {
			proj = "COUNT(*) AS " + alias
		} else {
			proj += ", COUNT(*) AS " + alias
		}
	}
	b := newBinder()
	where, err := q.where.render(b)
	if err != nil {
		return Statement{}, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT " + proj + " FROM " + tbl + where)
	if len(q.groupBy) > 0 {
		gb, err := quoteColumns(q.groupBy)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" GROUP BY " + gb)
	}
	if len(q.orderBy) > 0 {
		terms := make([]string, 0, len(q.orderBy))
		for _, o := range q.orderBy {
			col, err := Ident(o.column)
			if err != nil {
				return Statement{}, err
			}
			if o.desc {
				col += " DESC"
			}
			terms = append(terms, col)
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.limit > 0 {
		sb.WriteString(" LIMIT " + b.bind(q.limit))
	}
	if q.offset > 0 {
		sb.WriteString(" OFFSET " + b.bind(q.offset))
	}
	return Statement{SQL: sb.String(), Params: b.params}, nil
}

// CountStatement renders SELECT COUNT(*) AS total with the same conditions,
// ignoring projection, grouping, ordering and paging.
func (q *SelectQuery) CountStatement() (Statement, error) {
	tbl, err := Qualified(q.partition, q.table)
	if err != nil {
		return Statement{}, err
	}
	b := newBinder()
	where, err := q.where.render(b)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT COUNT(*) AS total FROM " + tbl + where, Params: b.params}, nil
}
