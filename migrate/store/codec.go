// Package store persists migration sets as JSON documents.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
)

// ErrDecode is returned when a stream does not hold a valid migration set.
var ErrDecode = errors.New("invalid migration set document")

// Encode writes set to w as indented JSON.
func Encode(w io.Writer, set *migration.Set) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("failed to encode migration set: %w", err)
	}
	return nil
}

// Decode reads a single migration set from r.
func Decode(r io.Reader) (*migration.Set, error) {
	var set migration.Set
	if err := json.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &set, nil
}

// ReadStream decodes r and never fails: an unreadable stream is logged and
// yields migration.Invalid(), whose version is migration.InvalidVersion.
func ReadStream(r io.Reader, logger *slog.Logger) *migration.Set {
	if logger == nil {
		logger = slog.Default()
	}
	set, err := Decode(r)
	if err != nil {
		logger.Warn("failed to read migration set", "error", err)
		return migration.Invalid()
	}
	return set
}
