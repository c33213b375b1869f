package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error codes.
const (
	pgUniqueViolationCode     = "23505"
	pgForeignKeyViolationCode = "23503"
)

// Repository errors.
var (
	ErrEntityNotFound        = errors.New("entity not found")
	ErrEntityHasVersions     = errors.New("entity still has versions")
	ErrBaseEntityNotFound    = errors.New("base component not found")
	ErrVersionNotFound       = errors.New("version not found")
	ErrVersionConflict       = errors.New("version number already exists")
	ErrVersionNumberRequired = errors.New("version number is required")
	ErrInvalidPayload        = errors.New("invalid version payload")
	// ErrStorage marks database-level faults (connection, syntax, commit...).
	ErrStorage = errors.New("storage error")
)

// pqCode returns the PostgreSQL error code of err, or "" if err is not a *pq.Error.
func pqCode(err error) string {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return string(pgErr.Code)
	}
	return ""
}
