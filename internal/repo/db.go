package repo

import (
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"matric/internal/matricerr"
)

// scannable matches both pgx.Row and pgx.Rows, letting a single scan
// helper serve QueryRow and Query call sites.
type scannable interface {
	Scan(dest ...any) error
}

func errIsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapNotFound converts pgx.ErrNoRows into a matricerr NotFound and wraps
// any other scan failure as a database error.
func mapNotFound(err error, format string, args ...any) error {
	if errIsNoRows(err) {
		return matricerr.NotFound(format, args...)
	}
	return matricerr.Database(err, format, args...)
}

func itoa(n int) string { return strconv.Itoa(n) }
