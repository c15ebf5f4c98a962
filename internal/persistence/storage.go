// Package persistence stores dataset snapshots and their computed report tables.
// It supports a SQLite backend that can be reopened as a dataset source.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/bleedingdev/salesdash/internal/report"
	"github.com/bleedingdev/salesdash/internal/sales"
)

// ErrSnapshotNotFound is returned when a snapshot id does not exist or the store is empty.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot describes one persisted dataset.
type Snapshot struct {
	ID          int64
	SessionID   string
	Source      string
	Fingerprint string
	Rows        int64
	CreatedAt   time.Time
}

// SnapshotTotals contains SQL-side aggregates of one snapshot.
type SnapshotTotals struct {
	Rows         int64
	Sales        float64
	Transactions float64
	PromotedRows int64
}

// FamilySales is one row of the per-family sales aggregate.
type FamilySales struct {
	Family string
	Sales  float64
}

// Storage defines the interface for snapshot persistence.
type Storage interface {
	// Write operations
	CreateSnapshot(ctx context.Context, snap Snapshot) (int64, error)
	InsertRows(ctx context.Context, snapshotID int64, rows []sales.Row) error
	InsertTables(ctx context.Context, snapshotID int64, tables []report.Table) error

	// Read operations
	QueryRows(ctx context.Context, snapshotID int64) ([]sales.Row, error)
	ListSnapshots(ctx context.Context) ([]Snapshot, error)
	LatestSnapshot(ctx context.Context) (*Snapshot, error)

	// Statistics
	GetTotals(ctx context.Context, snapshotID int64) (*SnapshotTotals, error)
	GetByFamily(ctx context.Context, snapshotID int64) ([]FamilySales, error)

	// Maintenance
	DeleteSnapshot(ctx context.Context, snapshotID int64) error
	Prune(ctx context.Context, keep int) (int64, error)
	GetRecordCount(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
}
