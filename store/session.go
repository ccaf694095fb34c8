package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// ErrReadOnlyViolation marks a query on a read-only session that changed
// rows, such as INSERT ... RETURNING. Its rows are discarded because the
// session rolls the change back.
var ErrReadOnlyViolation = errors.New("store: statement modified rows in a read-only session")

// ResultSet holds the columns and rows produced by one query, in the order
// the statement returned them.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Session is one connection plus one transaction, owned by a single caller.
type Session struct {
	db        *sql.DB
	tx        *sql.Tx
	readOnly  bool
	committed bool
	closed    bool
}

// Exec runs a statement with bound parameters.
func (s *Session) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	result, err := s.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		if s.readOnly {
			return nil, errors.Wrap(err, "store: exec on read-only session")
		}
		return nil, errors.Wrap(err, "store: exec")
	}
	return result, nil
}

// Query runs a read statement with bound parameters and materializes every
// row. BLOB and TEXT values delivered as []byte are returned as strings.
func (s *Session) Query(ctx context.Context, stmt string, args ...any) (ResultSet, error) {
	if err := s.usable(); err != nil {
		return ResultSet{}, err
	}

	rows, err := s.tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return ResultSet{}, errors.Wrap(err, "store: query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return ResultSet{}, errors.Wrap(err, "store: query columns")
	}

	set := ResultSet{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return ResultSet{}, errors.Wrap(err, "store: scan row")
		}
		for i, value := range values {
			if raw, ok := value.([]byte); ok {
				values[i] = string(raw)
			}
		}
		set.Rows = append(set.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, errors.Wrap(err, "store: query rows")
	}
	if s.readOnly {
		_ = rows.Close()
		if err := s.checkUnchanged(ctx); err != nil {
			return ResultSet{}, err
		}
	}
	return set, nil
}

// checkUnchanged fails when the session's connection has modified any row.
// Every session owns a fresh connection, so total_changes() counts only
// this session's statements.
func (s *Session) checkUnchanged(ctx context.Context) error {
	var changes int64
	if err := s.tx.QueryRowContext(ctx, "SELECT total_changes()").Scan(&changes); err != nil {
		return errors.Wrap(err, "store: count changes")
	}
	if changes > 0 {
		return errors.WithDetailf(ErrReadOnlyViolation, "%d row(s) changed", changes)
	}
	return nil
}

// Commit makes the session's writes durable.
func (s *Session) Commit() error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.tx.Commit(); err != nil {
		return errors.Wrap(err, "store: commit")
	}
	s.committed = true
	return nil
}

// Close rolls back uncommitted work and releases the connection. It is safe
// to call more than once.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true

	var errs error
	if !s.committed {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "store: rollback"))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "store: close"))
	}
	return errs
}

func (s *Session) usable() error {
	switch {
	case s == nil || s.tx == nil:
		return errors.New("store: session is nil")
	case s.closed:
		return errors.New("store: session is closed")
	case s.committed:
		return errors.New("store: session already committed")
	}
	return nil
}
