package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bleedingdev/salesdash/internal/report"
	"github.com/bleedingdev/salesdash/internal/sales"
)

// Open creates the SQLite storage at path, expanding "~/" and creating parent
// directories. ":memory:" is passed through.
func Open(path string) (*SQLiteStorage, error) {
	if path == "" {
		path = "./data/salesdash.db"
	}
	if path != ":memory:" {
		if strings.HasPrefix(path, "~/") {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				path = filepath.Join(homeDir, path[2:])
			}
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return NewSQLiteStorage(path)
}

// SaveRequest bundles what one snapshot persists.
type SaveRequest struct {
	Snapshot Snapshot
	Rows     []sales.Row
	Tables   []report.Table
	// Keep bounds how many snapshots remain after saving; zero keeps all.
	Keep int
}

// Save writes a snapshot with its rows and tables, then prunes old snapshots.
// A snapshot whose rows or tables fail to write is deleted again, so readers never
// see a partial snapshot as the latest one.
//
// Parameters:
//   - ctx: Context for the database calls
//   - storage: Storage backend to write to
//   - req: Snapshot metadata, rows, report tables and retention
//
// Returns:
//   - int64: The new snapshot id
//   - error: Any write error
func Save(ctx context.Context, storage Storage, req SaveRequest) (int64, error) {
	id, err := storage.CreateSnapshot(ctx, req.Snapshot)
	if err != nil {
		return 0, err
	}
	if err := storage.InsertRows(ctx, id, req.Rows); err != nil {
		return 0, discard(storage, id, err)
	}
	if err := storage.InsertTables(ctx, id, req.Tables); err != nil {
		return 0, discard(storage, id, err)
	}
	if req.Keep > 0 {
		if _, err := storage.Prune(ctx, req.Keep); err != nil {
			return 0, err
		}
	}

	totals, err := storage.GetTotals(ctx, id)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"snapshot":     id,
		"rows":         totals.Rows,
		"sales":        totals.Sales,
		"transactions": totals.Transactions,
		"tables":       len(req.Tables),
	}).Info("Snapshot saved")
	return id, nil
}

// discard deletes a partially written snapshot and returns cause. The delete uses a
// fresh context so a cancelled save still cleans up.
func discard(storage Storage, id int64, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := storage.DeleteSnapshot(ctx, id); err != nil {
		log.WithError(err).WithField("snapshot", id).Error("Failed to remove partial snapshot")
		return errors.Join(cause, err)
	}
	log.WithError(cause).WithField("snapshot", id).Warn("Partial snapshot removed")
	return cause
}

// LoadDataset reads a snapshot back as a dataset. A zero id selects the latest snapshot.
func LoadDataset(ctx context.Context, storage Storage, id int64) (*sales.Dataset, *Snapshot, error) {
	var snap *Snapshot
	if id == 0 {
		latest, err := storage.LatestSnapshot(ctx)
		if err != nil {
			return nil, nil, err
		}
		snap = latest
	} else {
		snaps, err := storage.ListSnapshots(ctx)
		if err != nil {
			return nil, nil, err
		}
		for i := range snaps {
			if snaps[i].ID == id {
				snap = &snaps[i]
				break
			}
		}
		if snap == nil {
			return nil, nil, fmt.Errorf("%w: %d", ErrSnapshotNotFound, id)
		}
	}
	rows, err := storage.QueryRows(ctx, snap.ID)
	if err != nil {
		return nil, nil, err
	}
	return sales.NewDataset(rows), snap, nil
}
