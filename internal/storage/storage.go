// Package storage persists imported advisory records and the ask log.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kilimo/internal/models"
)

// ErrNotFound is returned when a source has never been imported.
var ErrNotFound = errors.New("storage: not found")

// Storage defines record and ask log persistence operations.
type Storage interface {
	// Record operations
	ReplaceRecords(ctx context.Context, source string, caps models.Capabilities, records []*models.Record) error
	ListRecords(ctx context.Context, source string) ([]*models.Record, models.Capabilities, error)
	CountRecords(ctx context.Context, source string) (int64, error)
	Sources(ctx context.Context) ([]string, error)

	// Ask log
	LogAsk(ctx context.Context, entry *models.AskLogEntry) error
	RecentAsks(ctx context.Context, limit int) ([]*models.AskLogEntry, error)
	CountAsks(ctx context.Context) (int64, error)

	Close() error
}
