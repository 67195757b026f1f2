package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

const lockWaitTimeoutVar = "innodb_lock_wait_timeout"

// WithLockWaitTimeout pins one connection from db, raises the session lock
// wait timeout to timeout for the duration of fn, and restores the previous
// value on every return path, including panics. A timeout of zero leaves
// the session untouched.
func WithLockWaitTimeout(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(ctx context.Context, conn *sql.Conn) error) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get dedicated connection: %w", err)
	}
	defer conn.Close()

	if timeout > 0 {
		var previous int
		if err := conn.QueryRowContext(ctx, "SELECT @@SESSION."+lockWaitTimeoutVar).Scan(&previous); err != nil {
			return fmt.Errorf("failed to read %s: %w", lockWaitTimeoutVar, err)
		}
		if err := setLockWaitTimeout(ctx, conn, int(timeout.Seconds())); err != nil {
			return err
		}
		defer func() {
			// The caller's context may already be done; restoring must still run.
			if rerr := setLockWaitTimeout(context.WithoutCancel(ctx), conn, previous); rerr != nil {
				log.Printf("❌ Failed to restore %s to %d: %v", lockWaitTimeoutVar, previous, rerr)
				if err == nil {
					err = rerr
				}
			}
		}()
	}

	return fn(ctx, conn)
}

func setLockWaitTimeout(ctx context.Context, conn *sql.Conn, seconds int) error {
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET SESSION %s = %d", lockWaitTimeoutVar, seconds)); err != nil {
		return fmt.Errorf("failed to set %s: %w", lockWaitTimeoutVar, err)
	}
	return nil
}
