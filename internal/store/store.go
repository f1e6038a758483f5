package store

import (
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrOverlap is returned when a reservation intersects another
	// non-cancelled reservation of the same organization.
	ErrOverlap = errors.New("reservation overlaps an existing reservation")
	// ErrNoAllowance is returned when a family group has no periods left in
	// the current phase.
	ErrNoAllowance = errors.New("no selection allowance remaining")
	// ErrStaleTurn is returned when the selection cursor moved since it was read.
	ErrStaleTurn = errors.New("selection turn changed concurrently")
	// ErrInUse is returned when deleting a row that is still referenced.
	ErrInUse = errors.New("still in use")
	// ErrSelectionRunning is returned when changing the group order of a year
	// whose selection has a turn in progress.
	ErrSelectionRunning = errors.New("selection is in progress for this year")
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
