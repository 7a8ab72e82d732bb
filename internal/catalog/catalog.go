// Package catalog keeps a DuckDB ledger of the files held by the transfer server.
// It answers the questions validation needs before an upload starts: how many
// bytes an organisation stores and which names already exist.
package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/plc-visualizer/uploader/internal/models"
)

// Catalog is a DuckDB-backed file ledger.
type Catalog struct {
	db *sql.DB
}

// Options tunes the DuckDB instance behind the ledger.
type Options struct {
	Threads     int    // 0 means 2
	MemoryLimit string // "" means 256MB
}

// Open opens (or creates) the ledger at path. An empty path keeps it in memory.
func Open(path string) (*Catalog, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions is Open with explicit DuckDB settings.
func OpenWithOptions(path string, opts Options) (*Catalog, error) {
	if opts.Threads <= 0 {
		opts.Threads = 2
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "256MB"
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id          VARCHAR PRIMARY KEY,
			name        VARCHAR NOT NULL,
			size        BIGINT NOT NULL,
			org         VARCHAR NOT NULL DEFAULT '',
			fingerprint VARCHAR,
			uploaded_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Record inserts or replaces the ledger row for info.
func (c *Catalog) Record(ctx context.Context, info *models.FileInfo) error {
	uploadedAt := info.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO files (id, name, size, org, fingerprint, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.Name, info.Size, info.Org, info.Fingerprint, uploadedAt)
	if err != nil {
		return fmt.Errorf("recording %s: %w", info.ID, err)
	}
	return nil
}

// Usage sums the bytes stored by org and lists its file names.
func (c *Catalog) Usage(ctx context.Context, org string) (*models.Usage, error) {
	usage := &models.Usage{Org: org, Names: []string{}}

	row := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM files WHERE org = ?`, org)
	if err := row.Scan(&usage.Used); err != nil {
		return nil, fmt.Errorf("summing usage: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT name FROM files WHERE org = ? ORDER BY name`, org)
	if err != nil {
		return nil, fmt.Errorf("listing names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		usage.Names = append(usage.Names, name)
	}
	return usage, rows.Err()
}

// Delete removes the row for id. Missing rows are not an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	return nil
}

// Ping checks that the ledger still answers queries.
func (c *Catalog) Ping(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to ping catalog: %w", err)
	}
	return nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
