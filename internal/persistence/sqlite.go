package persistence

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/bleedingdev/salesdash/internal/report"
	"github.com/bleedingdev/salesdash/internal/sales"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = "2006-01-02 15:04:05"

// SQLiteStorage implements Storage interface using SQLite database.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas and ":memory:" databases are per connection, so keep exactly one.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	storage := &SQLiteStorage{
		db:   db,
		path: path,
	}

	log.WithField("path", path).Debug("SQLite storage initialized")
	return storage, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// nullable maps missing measures to SQL NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func measure(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// CreateSnapshot registers a snapshot and returns its id.
func (s *SQLiteStorage) CreateSnapshot(ctx context.Context, snap Snapshot) (int64, error) {
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, source, fingerprint, row_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, snap.SessionID, snap.Source, snap.Fingerprint, snap.Rows, createdAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot id: %w", err)
	}
	return id, nil
}

// InsertRows inserts dataset rows in a single transaction.
func (s *SQLiteStorage) InsertRows(ctx context.Context, snapshotID int64, rows []sales.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sales_rows (
			snapshot_id, store_nbr, family, state,
			year, month, week, day_of_week,
			sales, onpromotion, transactions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			snapshotID, r.StoreNbr, r.Family, r.State,
			r.Year, r.Month, r.Week, int(r.DayOfWeek),
			nullable(r.Sales), nullable(r.OnPromotion), nullable(r.Transactions),
		)
		if err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE snapshots SET row_count = (SELECT COUNT(*) FROM sales_rows WHERE snapshot_id = ?) WHERE id = ?",
		snapshotID, snapshotID,
	); err != nil {
		return fmt.Errorf("failed to update row count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// InsertTables stores report tables cell by cell. Numeric cells fill num_value, others
// text_value.
func (s *SQLiteStorage) InsertTables(ctx context.Context, snapshotID int64, tables []report.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_cells (
			snapshot_id, table_name, row_index, column_index, column_name, text_value, num_value
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range tables {
		for i, row := range t.Rows {
			for j, cell := range row {
				var text sql.NullString
				var num sql.NullFloat64
				switch v := cell.(type) {
				case int:
					num = nullable(float64(v))
				case float64:
					num = nullable(v)
				default:
					text = sql.NullString{String: fmt.Sprint(v), Valid: true}
				}
				column := ""
				if j < len(t.Columns) {
					column = t.Columns[j]
				}
				if _, err := stmt.ExecContext(ctx, snapshotID, t.Name, i, j, column, text, num); err != nil {
					return fmt.Errorf("failed to insert cell %s[%d][%d]: %w", t.Name, i, j, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QueryRows reads back the rows of a snapshot in insertion order.
func (s *SQLiteStorage) QueryRows(ctx context.Context, snapshotID int64) ([]sales.Row, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE id = ?", snapshotID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up snapshot: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotNotFound, snapshotID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			store_nbr, family, state, year, month, week, day_of_week,
			sales, onpromotion, transactions
		FROM sales_rows
		WHERE snapshot_id = ?
		ORDER BY id ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	out := make([]sales.Row, 0)
	for rows.Next() {
		var (
			r                           sales.Row
			day                         int
			amount, promo, transactions sql.NullFloat64
		)
		err := rows.Scan(
			&r.StoreNbr, &r.Family, &r.State, &r.Year, &r.Month, &r.Week, &day,
			&amount, &promo, &transactions,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.DayOfWeek = sales.Weekday(day)
		r.Sales, r.OnPromotion, r.Transactions = measure(amount), measure(promo), measure(transactions)
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}

func scanSnapshot(scan func(...any) error) (Snapshot, error) {
	var (
		snap      Snapshot
		createdAt string
	)
	if err := scan(&snap.ID, &snap.SessionID, &snap.Source, &snap.Fingerprint, &snap.Rows, &createdAt); err != nil {
		return Snapshot{}, err
	}
	snap.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return snap, nil
}

const snapshotColumns = "id, session_id, source, fingerprint, row_count, created_at"

// ListSnapshots returns every snapshot, newest first.
func (s *SQLiteStorage) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+snapshotColumns+" FROM snapshots ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return snaps, nil
}

// LatestSnapshot returns the most recent snapshot.
func (s *SQLiteStorage) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+" FROM snapshots ORDER BY id DESC LIMIT 1")
	snap, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &snap, nil
}

// GetTotals aggregates a snapshot in SQL.
func (s *SQLiteStorage) GetTotals(ctx context.Context, snapshotID int64) (*SnapshotTotals, error) {
	query := `
		SELECT
			COUNT(*) as row_total,
			COALESCE(SUM(sales), 0) as sales,
			COALESCE(SUM(transactions), 0) as transactions,
			COALESCE(SUM(CASE WHEN onpromotion > 0 THEN 1 ELSE 0 END), 0) as promoted_rows
		FROM sales_rows
		WHERE snapshot_id = ?
	`

	var totals SnapshotTotals
	err := s.db.QueryRowContext(ctx, query, snapshotID).Scan(
		&totals.Rows,
		&totals.Sales,
		&totals.Transactions,
		&totals.PromotedRows,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}

	return &totals, nil
}

// GetByFamily sums sales per family, largest first.
func (s *SQLiteStorage) GetByFamily(ctx context.Context, snapshotID int64) ([]FamilySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT family, COALESCE(SUM(sales), 0) as total
		FROM sales_rows
		WHERE snapshot_id = ?
		GROUP BY family
		ORDER BY total DESC, family ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query by family: %w", err)
	}
	defer rows.Close()

	var out []FamilySales
	for rows.Next() {
		var f FamilySales
		if err := rows.Scan(&f.Family, &f.Sales); err != nil {
			return nil, fmt.Errorf("failed to scan family sales: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep snapshots and deletes the rest with their rows and cells.
func (s *SQLiteStorage) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		log.WithFields(log.Fields{
			"deleted": deleted,
			"kept":    keep,
		}).Info("Snapshot prune completed")
	}

	return deleted, nil
}

// DeleteSnapshot removes a snapshot together with its rows and report cells.
func (s *SQLiteStorage) DeleteSnapshot(ctx context.Context, snapshotID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", snapshotID); err != nil {
		return fmt.Errorf("failed to delete snapshot %d: %w", snapshotID, err)
	}
	return nil
}

// GetRecordCount returns the total number of stored sales rows.
func (s *SQLiteStorage) GetRecordCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales_rows").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get record count: %w", err)
	}
	return count, nil
}
