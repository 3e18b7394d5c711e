package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresPoolConfig bounds the database/sql pool. Zero values take the
// defaults below, sized for a single API instance plus cron sweepers sharing
// one managed Postgres.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

func (c *PostgresPoolConfig) applyDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 20
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
}

// OpenPostgres opens and verifies a Postgres pool. driverName is "pgx" in
// every binary here; it stays a parameter so tests can substitute drivers.
// The dsn carries credentials and must never reach a log line.
//
// The initial ping retries briefly: the sweeper often starts from cron in
// the same instant a database failover finishes.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	pool.applyDefaults()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	const pingAttempts = 3
	for attempt := 1; ; attempt++ {
		err = HealthCheck(ctx, db, pool.PingTimeout)
		if err == nil {
			return db, nil
		}
		if attempt == pingAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
		}
	}
	_ = db.Close()
	return nil, err
}

// HealthCheck pings the database within the given timeout.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// TxFunc is one unit of work inside a transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx wraps fn in a transaction: rollback on error or panic (the panic
// re-thrown), commit otherwise. Commit errors surface to the caller.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}
