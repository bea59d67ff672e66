// Package sqlfrontend adapts a third-party SQL parser's AST into the
// query-engine's own expression tree, so the engine never depends on the
// shape of whatever library happens to parse the SQL text.
package sqlfrontend

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xwb1989/sqlparser"

	"sqlitefile"
)

// Parse parses a single SQL statement and translates it into a
// sqlitefile.Select. Only a SELECT over a single table is supported; every
// other statement, and every SELECT construct outside that grammar,
// reports an UnsupportedSQLError.
func Parse(sql string) (*sqlitefile.Select, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, &sqlitefile.UnsupportedSQLError{Msg: err.Error()}
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, &sqlitefile.UnsupportedSQLError{Msg: "only SELECT statements are supported"}
	}
	return translateSelect(sel)
}

func translateSelect(stmt *sqlparser.Select) (*sqlitefile.Select, error) {
	if len(stmt.From) != 1 {
		return nil, &sqlitefile.UnsupportedSQLError{Msg: "SELECT must name exactly one table"}
	}
	if stmt.Distinct != "" || len(stmt.GroupBy) > 0 || stmt.Having != nil {
		return nil, &sqlitefile.UnsupportedSQLError{Msg: "DISTINCT, GROUP BY and HAVING are not supported"}
	}
	tableName, err := tableName(stmt.From[0])
	if err != nil {
		return nil, err
	}

	columns, err := translateSelectExprs(stmt.SelectExprs)
	if err != nil {
		return nil, err
	}

	out := &sqlitefile.Select{Table: tableName, Columns: columns}

	if stmt.Where != nil {
		where, err := translateExpr(stmt.Where.Expr)
		if err != nil {
			return nil, err
		}
		out.Where = where
	}

	if len(stmt.OrderBy) > 0 {
		order, err := translateOrderBy(stmt.OrderBy)
		if err != nil {
			return nil, err
		}
		out.OrderBy = order
	}

	if stmt.Limit != nil {
		if stmt.Limit.Rowcount != nil {
			n, err := literalInt(stmt.Limit.Rowcount)
			if err != nil {
				return nil, err
			}
			out.Limit = &n
		}
		if stmt.Limit.Offset != nil {
			n, err := literalInt(stmt.Limit.Offset)
			if err != nil {
				return nil, err
			}
			out.Offset = &n
		}
	}

	return out, nil
}

func tableName(expr sqlparser.TableExpr) (string, error) {
	aliased, ok := expr.(*sqlparser.AliasedTableExpr)
	if !ok {
		return "", &sqlitefile.UnsupportedSQLError{Msg: "joins and subqueries are not supported"}
	}
	tbl, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return "", &sqlitefile.UnsupportedSQLError{Msg: "FROM clause must name a table directly"}
	}
	return tbl.Name.String(), nil
}

// translateSelectExprs returns nil (meaning "all columns") for SELECT *,
// or the explicit list of projected column names.
func translateSelectExprs(exprs sqlparser.SelectExprs) ([]string, error) {
	var columns []string
	for _, expr := range exprs {
		switch e := expr.(type) {
		case *sqlparser.StarExpr:
			return nil, nil
		case *sqlparser.AliasedExpr:
			col, ok := e.Expr.(*sqlparser.ColName)
			if !ok {
				return nil, &sqlitefile.UnsupportedSQLError{Msg: "only plain column references are supported in SELECT"}
			}
			columns = append(columns, col.Name.String())
		default:
			return nil, &sqlitefile.UnsupportedSQLError{Msg: "unsupported SELECT expression"}
		}
	}
	return columns, nil
}

func translateOrderBy(order sqlparser.OrderBy) ([]sqlitefile.OrderTerm, error) {
	terms := make([]sqlitefile.OrderTerm, 0, len(order))
	for _, o := range order {
		col, ok := o.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, &sqlitefile.UnsupportedSQLError{Msg: "ORDER BY must reference a column directly"}
		}
		terms = append(terms, sqlitefile.OrderTerm{
			Column:     col.Name.String(),
			Descending: strings.EqualFold(o.Direction, sqlparser.DescScr),
		})
	}
	return terms, nil
}

func literalInt(expr sqlparser.Expr) (int64, error) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.IntVal {
		return 0, &sqlitefile.UnsupportedSQLError{Msg: "LIMIT/OFFSET must be an integer literal"}
	}
	n, err := strconv.ParseInt(string(val.Val), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse LIMIT/OFFSET")
	}
	return n, nil
}

func translateExpr(expr sqlparser.Expr) (sqlitefile.Expr, error) {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		left, err := translateExpr(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return sqlitefile.And{Left: left, Right: right}, nil

	case *sqlparser.OrExpr:
		left, err := translateExpr(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return sqlitefile.Or{Left: left, Right: right}, nil

	case *sqlparser.NotExpr:
		operand, err := translateExpr(e.Expr)
		if err != nil {
			return nil, err
		}
		return sqlitefile.Not{Operand: operand}, nil

	case *sqlparser.ParenExpr:
		return translateExpr(e.Expr)

	case *sqlparser.IsExpr:
		operand, err := translateOperand(e.Expr)
		if err != nil {
			return nil, err
		}
		switch e.Operator {
		case sqlparser.IsNullStr:
			return sqlitefile.IsNull{Value: operand}, nil
		case sqlparser.IsNotNullStr:
			return sqlitefile.IsNotNull{Value: operand}, nil
		default:
			return nil, &sqlitefile.UnsupportedSQLError{Msg: "unsupported IS predicate"}
		}

	case *sqlparser.RangeCond:
		if e.Operator != sqlparser.BetweenStr {
			return nil, &sqlitefile.UnsupportedSQLError{Msg: "NOT BETWEEN is not supported"}
		}
		value, err := translateOperand(e.Left)
		if err != nil {
			return nil, err
		}
		lo, err := translateOperand(e.From)
		if err != nil {
			return nil, err
		}
		hi, err := translateOperand(e.To)
		if err != nil {
			return nil, err
		}
		return sqlitefile.Between{Value: value, Low: lo, High: hi}, nil

	case *sqlparser.ComparisonExpr:
		return translateComparison(e)

	default:
		return nil, &sqlitefile.UnsupportedSQLError{Msg: "unsupported WHERE expression"}
	}
}

func translateComparison(e *sqlparser.ComparisonExpr) (sqlitefile.Expr, error) {
	if e.Operator == sqlparser.InStr {
		value, err := translateOperand(e.Left)
		if err != nil {
			return nil, err
		}
		tuple, ok := e.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, &sqlitefile.UnsupportedSQLError{Msg: "IN requires a parenthesized list of literals"}
		}
		targets := make([]sqlitefile.Expr, len(tuple))
		for i, t := range tuple {
			if targets[i], err = translateOperand(t); err != nil {
				return nil, err
			}
		}
		return sqlitefile.In{Value: value, Targets: targets}, nil
	}
	if e.Operator == sqlparser.NotInStr {
		return nil, &sqlitefile.UnsupportedSQLError{Msg: "NOT IN is not supported"}
	}
	if e.Operator == sqlparser.LikeStr {
		value, err := translateOperand(e.Left)
		if err != nil {
			return nil, err
		}
		pattern, err := translateOperand(e.Right)
		if err != nil {
			return nil, err
		}
		return sqlitefile.Like{Value: value, Pattern: pattern}, nil
	}

	left, err := translateOperand(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := translateOperand(e.Right)
	if err != nil {
		return nil, err
	}

	op, ok := compareOps[e.Operator]
	if !ok {
		return nil, &sqlitefile.UnsupportedSQLError{Msg: "unsupported comparison operator: " + e.Operator}
	}
	return sqlitefile.CompareExpr{Op: op, Left: left, Right: right}, nil
}

var compareOps = map[string]sqlitefile.CompareOp{
	sqlparser.EqualStr:        sqlitefile.OpEQ,
	sqlparser.NotEqualStr:     sqlitefile.OpNE,
	sqlparser.LessThanStr:     sqlitefile.OpLT,
	sqlparser.LessEqualStr:    sqlitefile.OpLE,
	sqlparser.GreaterThanStr:  sqlitefile.OpGT,
	sqlparser.GreaterEqualStr: sqlitefile.OpGE,
}

// translateOperand turns a value-producing expression (a column reference
// or a literal) into an Expr. This is the leaf level of the WHERE tree.
func translateOperand(expr sqlparser.Expr) (sqlitefile.Expr, error) {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		return sqlitefile.ColumnRef{Name: e.Name.String(), Index: -1}, nil
	case *sqlparser.SQLVal:
		v, err := translateLiteral(e)
		if err != nil {
			return nil, err
		}
		return sqlitefile.Literal{Value: v}, nil
	case *sqlparser.NullVal:
		return sqlitefile.Literal{Value: sqlitefile.NullValue()}, nil
	default:
		return nil, &sqlitefile.UnsupportedSQLError{Msg: "unsupported operand in WHERE clause"}
	}
}

func translateLiteral(val *sqlparser.SQLVal) (sqlitefile.Value, error) {
	switch val.Type {
	case sqlparser.StrVal:
		return sqlitefile.TextValue(string(val.Val)), nil
	case sqlparser.IntVal:
		n, err := strconv.ParseInt(string(val.Val), 10, 64)
		if err != nil {
			return sqlitefile.Value{}, errors.Wrap(err, "parse integer literal")
		}
		return sqlitefile.IntegerValue(n), nil
	case sqlparser.FloatVal:
		f, err := strconv.ParseFloat(string(val.Val), 64)
		if err != nil {
			return sqlitefile.Value{}, errors.Wrap(err, "parse float literal")
		}
		return sqlitefile.RealValue(f), nil
	case sqlparser.HexVal:
		return sqlitefile.BlobValue(val.Val), nil
	default:
		return sqlitefile.Value{}, &sqlitefile.UnsupportedSQLError{Msg: "unsupported literal type"}
	}
}
