package source

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bleedingdev/salesdash/internal/persistence"
	"github.com/bleedingdev/salesdash/internal/sales"
)

// parseSQLite splits sqlite://path#id. A missing id selects the latest snapshot.
func parseSQLite(location string) (path string, id int64, err error) {
	rest := location[len("sqlite://"):]
	path, frag, _ := strings.Cut(rest, "#")
	if path == "" {
		return "", 0, fmt.Errorf("%w: expected sqlite://path[#snapshot], got %q", ErrInvalidLocation, location)
	}
	if frag != "" {
		id, err = strconv.ParseInt(frag, 10, 64)
		if err != nil || id <= 0 {
			return "", 0, fmt.Errorf("%w: invalid snapshot id %q", ErrInvalidLocation, frag)
		}
	}
	return path, id, nil
}

func loadSQLite(ctx context.Context, location string) (*sales.Dataset, error) {
	path, id, err := parseSQLite(location)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	storage, err := persistence.NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}
	defer storage.Close()

	ds, _, err := persistence.LoadDataset(ctx, storage, id)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot from %s: %w", path, err)
	}
	return ds, nil
}
