package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bleedingdev/salesdash/internal/sales"
)

// parsePostgres splits the table fragment off a connection URL.
func parsePostgres(location string) (connURL string, table pgx.Identifier, err error) {
	connURL, frag, _ := strings.Cut(location, "#")
	if frag == "" {
		return "", nil, fmt.Errorf("%w: expected postgres://...#table, got %q", ErrInvalidLocation, Redact(location))
	}
	for _, part := range strings.Split(frag, ".") {
		if part == "" {
			return "", nil, fmt.Errorf("%w: empty table name segment in %q", ErrInvalidLocation, frag)
		}
		table = append(table, part)
	}
	return connURL, table, nil
}

// selectQuery reads every schema column as text so the loader applies the same coercion
// rules as for CSV input. NULL becomes an empty (missing) cell.
func selectQuery(table pgx.Identifier) string {
	cols := make([]string, len(sales.Columns))
	for i, c := range sales.Columns {
		cols[i] = fmt.Sprintf("COALESCE(%s::text, '')", pgx.Identifier{c}.Sanitize())
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + table.Sanitize()
}

func (l *Loader) loadPostgres(ctx context.Context, location string) (*sales.Dataset, error) {
	connURL, table, err := parsePostgres(location)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, l.connectTimeout)
	defer cancel()
	conn, err := pgx.Connect(connectCtx, connURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	defer conn.Close(context.Background())

	rows, err := conn.Query(ctx, selectQuery(table))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table.Sanitize(), err)
	}
	defer rows.Close()

	b, err := sales.NewBuilder(sales.Columns[:])
	if err != nil {
		return nil, err
	}
	record := make([]string, len(sales.Columns))
	dest := make([]any, len(record))
	for i := range record {
		dest[i] = &record[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table.Sanitize(), err)
		}
		if err := b.Add(record); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", table.Sanitize(), err)
	}
	return b.Dataset(), nil
}
