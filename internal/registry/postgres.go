package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jjcapestany/space-trace/internal/flight"
)

const schema = `
CREATE TABLE IF NOT EXISTS flight_data (
	id                    BIGSERIAL PRIMARY KEY,
	flight_name           TEXT             NOT NULL,
	starting_latitude     DOUBLE PRECISION NOT NULL,
	starting_longitude    DOUBLE PRECISION NOT NULL,
	ending_latitude       DOUBLE PRECISION NOT NULL,
	ending_longitude      DOUBLE PRECISION NOT NULL,
	launch_date_and_time  TIMESTAMPTZ      NOT NULL,
	landing_date_and_time TIMESTAMPTZ      NOT NULL,
	max_altitude          DOUBLE PRECISION NOT NULL,
	model_of_space_craft  TEXT             NOT NULL,
	visible               BOOLEAN          NOT NULL DEFAULT TRUE,
	created_at            TIMESTAMPTZ      NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ      NOT NULL DEFAULT now()
)`

const columns = `id, flight_name, starting_latitude, starting_longitude,
	ending_latitude, ending_longitude, launch_date_and_time, landing_date_and_time,
	max_altitude, model_of_space_craft, visible, created_at, updated_at`

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

// DefaultPoolConfig returns pool settings suitable for a single instance.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxConns: 10, MinConns: 1, ConnectTimeout: 5 * time.Second}
}

// PostgresStore is a Store backed by the flight_data table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to databaseURL and verifies the connection.
func NewPostgresStore(ctx context.Context, databaseURL string, cfg PoolConfig, logger *slog.Logger) (*PostgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	pcfg.MaxConnLifetime = time.Hour
	pcfg.MaxConnIdleTime = 10 * time.Minute
	pcfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connection pool established",
		"max_conns", pcfg.MaxConns,
		"host", pcfg.ConnConfig.Host,
	)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Migrate creates the flight_data table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate flight_data: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Create(ctx context.Context, p flight.Plan) (Registration, error) {
	if err := Validate(p); err != nil {
		return Registration{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO flight_data (
			flight_name, starting_latitude, starting_longitude,
			ending_latitude, ending_longitude, launch_date_and_time,
			landing_date_and_time, max_altitude, model_of_space_craft
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+columns,
		p.Name, p.StartLat, p.StartLon, p.EndLat, p.EndLon,
		p.Launch.UTC(), p.Landing.UTC(), p.MaxAltitudeKm, p.CraftModel,
	)
	r, err := scanRegistration(row)
	if err != nil {
		return Registration{}, fmt.Errorf("insert flight: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Registration, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM flight_data WHERE id = $1`, id)
	r, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Registration{}, ErrNotFound
	}
	if err != nil {
		return Registration{}, fmt.Errorf("get flight %d: %w", id, err)
	}
	return r, nil
}

// List returns all registrations ordered by id.
func (s *PostgresStore) List(ctx context.Context) ([]Registration, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+columns+` FROM flight_data ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	regs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Registration, error) {
		return scanRegistration(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	return regs, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, p flight.Plan) (Registration, error) {
	if err := Validate(p); err != nil {
		return Registration{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE flight_data SET
			flight_name = $2, starting_latitude = $3, starting_longitude = $4,
			ending_latitude = $5, ending_longitude = $6, launch_date_and_time = $7,
			landing_date_and_time = $8, max_altitude = $9, model_of_space_craft = $10,
			updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		id, p.Name, p.StartLat, p.StartLon, p.EndLat, p.EndLon,
		p.Launch.UTC(), p.Landing.UTC(), p.MaxAltitudeKm, p.CraftModel,
	)
	r, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Registration{}, ErrNotFound
	}
	if err != nil {
		return Registration{}, fmt.Errorf("update flight %d: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flight_data WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flight %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetVisible(ctx context.Context, id int64, visible bool) (Registration, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE flight_data SET visible = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+columns, id, visible)
	r, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Registration{}, ErrNotFound
	}
	if err != nil {
		return Registration{}, fmt.Errorf("set visibility for flight %d: %w", id, err)
	}
	return r, nil
}

func scanRegistration(row pgx.Row) (Registration, error) {
	var r Registration
	err := row.Scan(
		&r.ID, &r.Name, &r.StartLat, &r.StartLon,
		&r.EndLat, &r.EndLon, &r.Launch, &r.Landing,
		&r.MaxAltitudeKm, &r.CraftModel, &r.Visible, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return Registration{}, err
	}
	r.Launch = r.Launch.UTC()
	r.Landing = r.Landing.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}
