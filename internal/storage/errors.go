package storage

import "errors"

var (
	// ErrNotFound indicates no record matched the lookup.
	ErrNotFound = errors.New("storage.not_found")
	// ErrConflict indicates the write would violate a uniqueness constraint.
	ErrConflict = errors.New("storage.conflict")
	// ErrStaleVersion indicates an optimistic update lost against a concurrent writer.
	ErrStaleVersion = errors.New("storage.stale_version")
	// ErrInvalidStatus indicates a relationship status outside the known set.
	ErrInvalidStatus = errors.New("storage.invalid_status")
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("storage.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("storage.empty_database_url")
	errSQLiteEmptyPath     = errors.New("storage.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("storage.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("storage.unsupported_no_scheme")
)
