package sqlitefile

import (
	"context"
	"sort"
	"strings"
)

// OrderTerm is one ORDER BY key, named rather than positional: the SQL
// front end has no table schema to resolve a name against, so resolution
// to a row position happens during planning.
type OrderTerm struct {
	Column     string
	Descending bool
}

type resolvedOrderTerm struct {
	index      int
	descending bool
}

// Select is a parsed, table-bound query: the SQL front end translates
// whatever AST its parser produces into this shape, and everything past
// this point is independent of the SQL dialect the query arrived in.
type Select struct {
	Table      string
	Columns    []string // projected column names; nil means "all columns"
	Where      Expr     // nil means no filter
	OrderBy    []OrderTerm
	Limit      *int64
	Offset     *int64
}

// ResultSet is the tabular output of a query.
type ResultSet struct {
	Columns []string
	Rows    [][]Value
}

// queryPlanner turns a Select into a scan or index-seek execution and
// applies ordering and pagination over the materialized rows.
type queryPlanner struct {
	pager *pager
	bt    *btreeReader
	cat   *Catalog
	enc   textEncoding
}

// plan describes how a query will read its rows.
type plan struct {
	table      *TableSchema
	index      *IndexSchema
	probe      []Value // equality values for the index's leading columns
}

// choosePlan selects the index whose leading columns match the longest
// prefix of conjoined equality conditions in where, per §4.6's planning
// rule; among indexes covering equally long prefixes, the one whose name
// sorts first wins. A table scan is used when no index's prefix is
// satisfied.
func choosePlan(cat *Catalog, table *TableSchema, where Expr) *plan {
	p := &plan{table: table}
	if where == nil {
		return p
	}

	equalities := make(map[string]Value)
	collectEqualities(where, equalities)
	if len(equalities) == 0 {
		return p
	}

	bestLen := 0
	var bestIndex *IndexSchema
	var bestProbe []Value

	for _, idx := range cat.Indexes[table.Name] {
		var probe []Value
		for _, col := range idx.Columns {
			v, ok := equalities[strings.ToLower(col)]
			if !ok {
				break
			}
			probe = append(probe, v)
		}
		if len(probe) > bestLen || (len(probe) > 0 && len(probe) == bestLen && idx.Name < bestIndex.Name) {
			bestLen = len(probe)
			bestIndex = idx
			bestProbe = probe
		}
	}

	if bestIndex != nil {
		p.index = bestIndex
		p.probe = bestProbe
	}
	return p
}

// collectEqualities walks the top-level AND conjunction of where, recording
// every "column = literal" condition it finds. Conditions under an OR, or
// any comparison operator other than equality, are left for the row-level
// filter and don't influence index selection.
func collectEqualities(e Expr, out map[string]Value) {
	switch n := e.(type) {
	case And:
		collectEqualities(n.Left, out)
		collectEqualities(n.Right, out)
	case CompareExpr:
		if n.Op != OpEQ {
			return
		}
		if col, ok := n.Left.(ColumnRef); ok {
			if lit, ok := n.Right.(Literal); ok && !lit.Value.IsNull() {
				out[strings.ToLower(col.Name)] = lit.Value
			}
		} else if col, ok := n.Right.(ColumnRef); ok {
			if lit, ok := n.Left.(Literal); ok && !lit.Value.IsNull() {
				out[strings.ToLower(col.Name)] = lit.Value
			}
		}
	}
}

func (q *queryPlanner) rowFromPayload(table *TableSchema, rowid int64, payload []byte) ([]Value, error) {
	values, err := decodeRecord(payload, q.enc)
	if err != nil {
		return nil, err
	}
	if aliasIdx, ok := table.RowidAliasColumn(); ok {
		for len(values) <= aliasIdx {
			values = append(values, NullValue())
		}
		if values[aliasIdx].IsNull() {
			values[aliasIdx] = IntegerValue(rowid)
		}
	}
	for len(values) < len(table.Columns) {
		values = append(values, NullValue())
	}
	return values, nil
}

// Execute runs a Select against the catalog, returning its projected,
// ordered, paginated result.
func (q *queryPlanner) Execute(ctx context.Context, sel *Select) (*ResultSet, error) {
	table, ok := q.cat.LookupTable(sel.Table)
	if !ok {
		return nil, &TableNotFoundError{Name: sel.Table}
	}

	projection, err := resolveProjection(table, sel.Columns)
	if err != nil {
		return nil, err
	}

	var where Expr
	if sel.Where != nil {
		where, err = resolveExprColumns(sel.Where, table)
		if err != nil {
			return nil, err
		}
	}

	order, err := resolveOrderBy(sel.OrderBy, projection.names)
	if err != nil {
		return nil, err
	}

	p := choosePlan(q.cat, table, where)

	var rows [][]Value
	collect := func(rowid int64, payload []byte) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		row, err := q.rowFromPayload(table, rowid, payload)
		if err != nil {
			return false, err
		}
		if where != nil {
			keep, err := Evaluate(where, row)
			if err != nil {
				return false, err
			}
			if !keep.asBool() {
				return true, nil
			}
		}
		rows = append(rows, projectRow(row, projection))
		return true, nil
	}

	if p.index != nil {
		var rowids []int64
		err = q.bt.indexSeek(p.index.RootPage, p.probe, q.enc, func(_ []Value, rowid uint64) (bool, error) {
			rowids = append(rowids, int64(rowid))
			return true, nil
		})
		sort.Slice(rowids, func(i, j int) bool { return rowids[i] < rowids[j] })
		for i := 0; err == nil && i < len(rowids); i++ {
			payload, found, lerr := q.bt.tablePointLookup(table.RootPage, rowids[i])
			if lerr != nil || !found {
				err = lerr
				continue
			}
			_, err = collect(rowids[i], payload)
		}
	} else {
		err = q.bt.tableScan(table.RootPage, minRowid, maxRowid, func(rowid uint64, payload []byte) (bool, error) {
			return collect(int64(rowid), payload)
		})
	}
	if err != nil {
		return nil, err
	}

	if len(order) > 0 {
		sortRows(rows, order)
	}
	rows = paginate(rows, sel.Offset, sel.Limit)

	return &ResultSet{Columns: projection.names, Rows: rows}, nil
}

// resolveExprColumns rebuilds an Expr tree with every ColumnRef bound to
// its position in table's column list, since the SQL front end that built
// the tree has no schema to resolve names against.
func resolveExprColumns(e Expr, table *TableSchema) (Expr, error) {
	switch n := e.(type) {
	case ColumnRef:
		idx := table.ColumnIndex(n.Name)
		if idx == -1 {
			return nil, &ColumnNotFoundError{Table: table.Name, Column: n.Name}
		}
		return ColumnRef{Name: n.Name, Index: idx}, nil
	case Literal:
		return n, nil
	case And:
		left, err := resolveExprColumns(n.Left, table)
		if err != nil {
			return nil, err
		}
		right, err := resolveExprColumns(n.Right, table)
		if err != nil {
			return nil, err
		}
		return And{Left: left, Right: right}, nil
	case Or:
		left, err := resolveExprColumns(n.Left, table)
		if err != nil {
			return nil, err
		}
		right, err := resolveExprColumns(n.Right, table)
		if err != nil {
			return nil, err
		}
		return Or{Left: left, Right: right}, nil
	case Not:
		operand, err := resolveExprColumns(n.Operand, table)
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	case IsNull:
		v, err := resolveExprColumns(n.Value, table)
		if err != nil {
			return nil, err
		}
		return IsNull{Value: v}, nil
	case IsNotNull:
		v, err := resolveExprColumns(n.Value, table)
		if err != nil {
			return nil, err
		}
		return IsNotNull{Value: v}, nil
	case CompareExpr:
		left, err := resolveExprColumns(n.Left, table)
		if err != nil {
			return nil, err
		}
		right, err := resolveExprColumns(n.Right, table)
		if err != nil {
			return nil, err
		}
		return CompareExpr{Op: n.Op, Left: left, Right: right}, nil
	case Between:
		v, err := resolveExprColumns(n.Value, table)
		if err != nil {
			return nil, err
		}
		lo, err := resolveExprColumns(n.Low, table)
		if err != nil {
			return nil, err
		}
		hi, err := resolveExprColumns(n.High, table)
		if err != nil {
			return nil, err
		}
		return Between{Value: v, Low: lo, High: hi}, nil
	case In:
		v, err := resolveExprColumns(n.Value, table)
		if err != nil {
			return nil, err
		}
		targets := make([]Expr, len(n.Targets))
		for i, t := range n.Targets {
			rt, err := resolveExprColumns(t, table)
			if err != nil {
				return nil, err
			}
			targets[i] = rt
		}
		return In{Value: v, Targets: targets}, nil
	case Like:
		v, err := resolveExprColumns(n.Value, table)
		if err != nil {
			return nil, err
		}
		p, err := resolveExprColumns(n.Pattern, table)
		if err != nil {
			return nil, err
		}
		return Like{Value: v, Pattern: p}, nil
	default:
		return nil, &UnsupportedSQLError{Msg: "unsupported expression in WHERE clause"}
	}
}

// resolveOrderBy binds each ORDER BY column name to its position among the
// query's projected columns.
func resolveOrderBy(order []OrderTerm, projected []string) ([]resolvedOrderTerm, error) {
	if len(order) == 0 {
		return nil, nil
	}
	out := make([]resolvedOrderTerm, len(order))
	for i, term := range order {
		idx := -1
		for j, name := range projected {
			if strings.EqualFold(name, term.Column) {
				idx = j
				break
			}
		}
		if idx == -1 {
			return nil, &UnsupportedSQLError{Msg: "ORDER BY column is not in the result columns: " + term.Column}
		}
		out[i] = resolvedOrderTerm{index: idx, descending: term.Descending}
	}
	return out, nil
}

type projectionPlan struct {
	names   []string
	indexes []int
}

func resolveProjection(table *TableSchema, columns []string) (*projectionPlan, error) {
	if columns == nil {
		names := make([]string, len(table.Columns))
		idx := make([]int, len(table.Columns))
		for i, c := range table.Columns {
			names[i] = c.Name
			idx[i] = i
		}
		return &projectionPlan{names: names, indexes: idx}, nil
	}
	p := &projectionPlan{names: make([]string, len(columns)), indexes: make([]int, len(columns))}
	for i, name := range columns {
		ci := table.ColumnIndex(name)
		if ci == -1 {
			return nil, &ColumnNotFoundError{Table: table.Name, Column: name}
		}
		p.names[i] = table.Columns[ci].Name
		p.indexes[i] = ci
	}
	return p, nil
}

func projectRow(row []Value, p *projectionPlan) []Value {
	out := make([]Value, len(p.indexes))
	for i, ci := range p.indexes {
		if ci < len(row) {
			out[i] = row[ci]
		} else {
			out[i] = NullValue()
		}
	}
	return out
}

func sortRows(rows [][]Value, order []resolvedOrderTerm) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range order {
			a, b := rows[i][term.index], rows[j][term.index]
			c := Compare(a, b)
			if term.descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func paginate(rows [][]Value, offset, limit *int64) [][]Value {
	if offset != nil {
		n := *offset
		if n < 0 {
			n = 0
		}
		if n >= int64(len(rows)) {
			return nil
		}
		rows = rows[n:]
	}
	if limit != nil && *limit >= 0 {
		n := *limit
		if n < int64(len(rows)) {
			rows = rows[:n]
		}
	}
	return rows
}

// CountTableRows returns the number of rows in a table. When the table has
// no WHERE-equivalent filter to apply, this is simply the sum of leaf cell
// counts across its table tree, which avoids decoding any record.
func (q *queryPlanner) CountTableRows(ctx context.Context, tableName string) (uint64, error) {
	table, ok := q.cat.LookupTable(tableName)
	if !ok {
		return 0, &TableNotFoundError{Name: tableName}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return q.bt.countLeafCells(table.RootPage)
}
