package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SweepLock holds a session advisory lock on a dedicated connection for the
// lifetime of a sweep run.
type SweepLock struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSweepLock(db *sql.DB, logger *slog.Logger) *SweepLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepLock{db: db, logger: logger}
}

func (l *SweepLock) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
				l.logger.Warn("sweep_lock_release_failed", "lock", name, "error", err)
			}
			_ = conn.Close()
		})
	}
	return release, true, nil
}
