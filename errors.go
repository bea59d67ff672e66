package sqlitefile

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrIO is the sentinel that every error returned by the underlying file
// handle is wrapped around; the original error survives only in the message
// text. Callers can test for it with errors.Is.
var ErrIO = errors.New("sqlitefile: io error")

// FormatError is returned when the file does not look like a SQLite
// database at all: bad magic, bad page size, truncated header. It is fatal
// to Open.
type FormatError struct {
	Msg string
	err error
}

func (e *FormatError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("sqlitefile: invalid format: %s: %v", e.Msg, e.err)
	}
	return fmt.Sprintf("sqlitefile: invalid format: %s", e.Msg)
}

func (e *FormatError) Unwrap() error { return e.err }

func newFormatError(msg string, cause error) *FormatError {
	return &FormatError{Msg: msg, err: cause}
}

// CorruptError is returned when an invariant is violated mid-traversal: a
// cycle, an out-of-range page pointer, a bad varint, a payload-size
// mismatch. It is scoped to the subtree being walked; the DB handle remains
// usable for unrelated queries afterwards.
type CorruptError struct {
	Msg string
	err error
}

func (e *CorruptError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("sqlitefile: corrupt: %s: %v", e.Msg, e.err)
	}
	return fmt.Sprintf("sqlitefile: corrupt: %s", e.Msg)
}

func (e *CorruptError) Unwrap() error { return e.err }

func newCorruptError(msg string, cause error) *CorruptError {
	return &CorruptError{Msg: msg, err: errors.WithStack(cause)}
}

func newCorruptErrorf(cause error, format string, args ...interface{}) *CorruptError {
	return newCorruptError(fmt.Sprintf(format, args...), cause)
}

// TableNotFoundError is returned when a query or CountTableRows names a
// table absent from the schema catalog.
type TableNotFoundError struct {
	Name string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("sqlitefile: table not found: %s", e.Name)
}

// ColumnNotFoundError is returned when a projection, WHERE, or ORDER BY
// clause names a column absent from a table's schema.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("sqlitefile: column not found: %s.%s", e.Table, e.Column)
}

// UnsupportedSQLError is returned when a query uses a construct outside the
// grammar documented for the external SQL front end (joins, subqueries,
// aggregates, and so on).
type UnsupportedSQLError struct {
	Msg string
}

func (e *UnsupportedSQLError) Error() string {
	return fmt.Sprintf("sqlitefile: unsupported SQL: %s", e.Msg)
}

// TypeMismatchError reports a comparison whose operand types can't be
// reconciled. The expression evaluator does not return it: it orders
// operands of different types by Compare's type rank instead.
type TypeMismatchError struct {
	Msg string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("sqlitefile: type mismatch: %s", e.Msg)
}

func wrapIOError(op string, cause error) error {
	return errors.Wrapf(ErrIO, "%s: %v", op, cause)
}
