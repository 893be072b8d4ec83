package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrStorageUnavailable marks connection or transport failures. Callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidFilter is returned before any statement runs when a filter
	// key, order column or direction cannot be translated into a predicate.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidInput is returned when create/update input fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEntityExists is returned when Create is given an id that is already taken.
	ErrEntityExists = errors.New("entity already exists")
)

// IsRetryable reports whether err is a transient storage failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// wrapErr annotates a driver error with the failed operation, tagging
// connection-level failures with ErrStorageUnavailable.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		slog.Warn("storage unavailable", "op", op, "error", err)
		return fmt.Errorf("failed to %s: %w", op, errors.Join(ErrStorageUnavailable, err))
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to %s: %w", op, errors.Join(ErrEntityExists, err))
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P0x: server shutting down.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED || code == sqlite3.SQLITE_CANTOPEN
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
