// Package storage persists reachability probe outcomes and reports on local disk usage.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/pawmatch/internal/models"
)

// ErrNotFound is returned when no probe has been recorded for a locator.
var ErrNotFound = errors.New("not found")

// ProbeLog is an append-only record of probe outcomes. It is telemetry only;
// nothing in the search path reads it back.
type ProbeLog interface {
	RecordProbe(ctx context.Context, rec *models.ProbeRecord) error
	LastProbe(ctx context.Context, locator string) (*models.ProbeRecord, error)
	RecentDead(ctx context.Context, limit int) ([]*models.ProbeRecord, error)
	Stats(ctx context.Context) (*models.ProbeStats, error)
	Close() error
}
