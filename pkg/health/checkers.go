package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// StalenessCheck fails when last reports a time older than maxAge. A zero
// time counts as stale only once grace has passed since the check was built.
func StalenessCheck(last func() time.Time, maxAge, grace time.Duration) CheckFunc {
	started := time.Now()
	return func(context.Context) error {
		t := last()
		if t.IsZero() {
			if time.Since(started) > grace {
				return errors.New("never ran")
			}
			return nil
		}
		if age := time.Since(t); age > maxAge {
			return errors.Errorf("last run %s ago exceeds %s", age.Truncate(time.Second), maxAge)
		}
		return nil
	}
}
