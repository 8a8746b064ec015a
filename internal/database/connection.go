package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/tabulate/internal/config"
	"github.com/fluxbase-eu/tabulate/internal/observability"
	"github.com/fluxbase-eu/tabulate/internal/scope"
)

const slowQueryThreshold = time.Second

// Row is one result row keyed by column name.
type Row map[string]any

// DB runs compiled scopes against PostgreSQL through database/sql.
type DB struct {
	db           *sql.DB
	queryTimeout time.Duration
	metrics      *observability.Metrics
}

// Open connects through the pgx stdlib driver and applies the pool settings.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	connConfig, err := pgx.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	// Statements differ per request; describe-exec avoids a server-side
	// prepared statement cache that would only grow.
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MinConnections)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_connections", cfg.MaxConnections).
		Msg("Database connection established")

	d := New(db)
	d.queryTimeout = cfg.QueryTimeout
	return d, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *DB {
	return &DB{db: db}
}

// SetMetrics sets the metrics instance for recording database metrics
func (d *DB) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

// SetQueryTimeout bounds every query. Zero disables the bound.
func (d *DB) SetQueryTimeout(timeout time.Duration) {
	d.queryTimeout = timeout
}

// Close closes the pool
func (d *DB) Close() error {
	return d.db.Close()
}

// Count runs the scope's count statement. A grouped scope with no groups
// returns no row, which counts as zero.
func (d *DB) Count(ctx context.Context, s scope.Scope) (int, error) {
	query, args := s.BuildCount()

	var total int64
	err := d.observe(ctx, "count", s.Table(), query, func(ctx context.Context) error {
		err := d.db.QueryRowContext(ctx, query, args...).Scan(&total)
		if errors.Is(err, sql.ErrNoRows) {
			total = 0
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// Select runs the scope and returns its rows.
func (d *DB) Select(ctx context.Context, s scope.Scope) ([]Row, error) {
	query, args := s.BuildSelect()

	result := []Row{}
	err := d.observe(ctx, "select", s.Table(), query, func(ctx context.Context) error {
		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		result, err = scanRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Health checks the health of the database connection
func (d *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := d.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected health check result: %d", result)
	}
	return nil
}

// ReportStats pushes the pool statistics to metrics.
func (d *DB) ReportStats() sql.DBStats {
	stats := d.db.Stats()
	if d.metrics != nil {
		d.metrics.UpdateDBStats(stats.OpenConnections, stats.InUse, stats.Idle)
	}
	return stats
}

// observe runs fn inside a span, with the query timeout applied, and records
// its duration. Slow queries are logged.
func (d *DB) observe(ctx context.Context, operation, table, query string, fn func(context.Context) error) error {
	if d.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.queryTimeout)
		defer cancel()
	}

	ctx, span := observability.StartDBSpan(ctx, operation, table, query)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	observability.EndDBSpan(span, err)

	if d.metrics != nil {
		d.metrics.RecordDBQuery(operation, table, duration, err)
	}

	if duration > slowQueryThreshold {
		log.Warn().
			Dur("duration", duration).
			Int64("duration_ms", duration.Milliseconds()).
			Str("query", truncateQuery(query, 200)).
			Bool("slow_query", true).
			Msg("Slow query detected")
	}

	if err != nil {
		return fmt.Errorf("%s on %s failed: %w", operation, table, err)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			// Text columns may arrive as raw bytes, which would serialise as base64.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// truncateQuery truncates a SQL query to a maximum length for logging
func truncateQuery(query string, maxLen int) string {
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "... (truncated)"
}
