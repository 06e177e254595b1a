package sqlite

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/meikuraledutech/flow"
)

// wrap annotates err with op; SQLITE_BUSY and SQLITE_LOCKED are retryable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return &flow.TransientError{Op: op, Err: err}
		}
	}
	return fmt.Errorf("flow: %s: %w", op, err)
}
