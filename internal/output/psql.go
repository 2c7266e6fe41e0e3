package output

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/manifest-network/firehose-client/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresOutputHandler persists blocks and the stream cursor in PostgreSQL.
// Block writes are upserts keyed on block number, which makes redelivery
// after cursor resumption harmless.
type PostgresOutputHandler struct {
	db *sql.DB
}

// NewPostgresOutputHandler connects to the database and applies pending
// migrations.
func NewPostgresOutputHandler(ctx context.Context, dsn string) (*PostgresOutputHandler, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	h := &PostgresOutputHandler{db: db}
	if err := h.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// NewPostgresOutputHandlerFromDB wraps an existing database handle without
// running migrations. Used by tests.
func NewPostgresOutputHandlerFromDB(db *sql.DB) *PostgresOutputHandler {
	return &PostgresOutputHandler{db: db}
}

func (h *PostgresOutputHandler) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(h.db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("initializing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func (h *PostgresOutputHandler) WriteBlock(ctx context.Context, block *models.Block) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO blocks (num, hash, block_time, resume_cursor, final, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (num) DO UPDATE SET
			hash = EXCLUDED.hash,
			block_time = EXCLUDED.block_time,
			resume_cursor = EXCLUDED.resume_cursor,
			final = EXCLUDED.final,
			data = EXCLUDED.data`,
		block.Num, block.Hash, block.Time, block.Cursor, block.Final, block.Data)
	if err != nil {
		return fmt.Errorf("writing block %d: %w", block.Num, err)
	}
	return nil
}

func (h *PostgresOutputHandler) RetractBlock(ctx context.Context, num uint64) error {
	_, err := h.db.ExecContext(ctx, `DELETE FROM blocks WHERE num = $1`, num)
	if err != nil {
		return fmt.Errorf("retracting block %d: %w", num, err)
	}
	return nil
}

func (h *PostgresOutputHandler) MarkFinal(ctx context.Context, num uint64) error {
	_, err := h.db.ExecContext(ctx, `UPDATE blocks SET final = TRUE WHERE num <= $1 AND NOT final`, num)
	if err != nil {
		return fmt.Errorf("marking blocks final up to %d: %w", num, err)
	}
	return nil
}

func (h *PostgresOutputHandler) LoadCursor(ctx context.Context) (string, error) {
	var cursor string
	err := h.db.QueryRowContext(ctx, `SELECT resume_cursor FROM stream_cursor WHERE id = 1`).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading cursor: %w", err)
	}
	return cursor, nil
}

func (h *PostgresOutputHandler) SaveCursor(ctx context.Context, cursor string) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO stream_cursor (id, resume_cursor, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			resume_cursor = EXCLUDED.resume_cursor,
			updated_at = EXCLUDED.updated_at`,
		cursor)
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

func (h *PostgresOutputHandler) GetLatestBlockNum(ctx context.Context) (uint64, error) {
	var num uint64
	err := h.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(num), 0) FROM blocks`).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("getting latest block number: %w", err)
	}
	return num, nil
}

func (h *PostgresOutputHandler) GetMissingBlockNums(ctx context.Context) ([]uint64, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT s.num
		FROM generate_series(
			(SELECT MIN(num) FROM blocks),
			(SELECT MAX(num) FROM blocks)
		) AS s(num)
		LEFT JOIN blocks b ON b.num = s.num
		WHERE b.num IS NULL
		ORDER BY s.num`)
	if err != nil {
		return nil, fmt.Errorf("querying missing block numbers: %w", err)
	}
	defer rows.Close()

	var missing []uint64
	for rows.Next() {
		var num uint64
		if err := rows.Scan(&num); err != nil {
			return nil, fmt.Errorf("scanning missing block number: %w", err)
		}
		missing = append(missing, num)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating missing block numbers: %w", err)
	}
	return missing, nil
}

func (h *PostgresOutputHandler) Close() error {
	return h.db.Close()
}
