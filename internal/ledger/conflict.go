package ledger

import (
	"errors"

	"github.com/go-sql-driver/mysql" // MySQL error numbers
	"github.com/jackc/pgx/v5/pgconn" // PostgreSQL SQLSTATE codes
	"github.com/mattn/go-sqlite3"    // SQLite result codes
)

// isConflict reports storage errors that mean "another transaction got there
// first" and are safe to retry from the top of the unit.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205 // deadlock, lock wait timeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01" // serialization failure, deadlock
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}
