package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultConnectAttempts = 3
	retryBaseWait          = 1 * time.Second
	retryJitterFraction    = 0.25
)

// retryBackoff returns base<<attempt with ±25% jitter: about 1s, 2s, 4s.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := retryBaseWait << attempt
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- retry jitter
	return base + jitter
}

// connPatterns are substrings of driver errors that mean the server could
// not be reached, as opposed to a rejected statement.
var connPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"dial tcp",
	"EOF",
	"connection timed out",
	"server closed the connection unexpectedly",
	"could not connect",
}

// isConnectionError reports whether err is a transient connectivity failure.
// SQL errors such as syntax or constraint violations are not.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, p := range connPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// retrier runs an operation up to attempts times while it fails with a
// connection error.
type retrier struct {
	attempts int
	backoff  func(attempt int) time.Duration
	logger   *slog.Logger
}

func newRetrier(attempts int, logger *slog.Logger) retrier {
	if attempts < 1 {
		attempts = defaultConnectAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return retrier{attempts: attempts, backoff: retryBackoff, logger: logger}
}

// do calls fn until it succeeds, returns a non-connection error, the
// attempts are used up, or ctx is done.
func (r retrier) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !isConnectionError(err) {
			return err
		}
		if attempt == r.attempts-1 {
			break
		}

		wait := r.backoff(attempt)
		r.logger.WarnContext(ctx, op+" failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", r.attempts),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: canceled during retry: %w", op, ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, r.attempts, err)
}
