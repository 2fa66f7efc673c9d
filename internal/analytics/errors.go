package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrInvalidFilter is returned when a filter cannot describe a valid scope.
	ErrInvalidFilter = errors.New("analytics: invalid filter")
	// ErrInsufficientData marks computations that lack enough samples. It never
	// escapes the public operations, which return an empty result instead.
	ErrInsufficientData = errors.New("analytics: insufficient data")
	// ErrStorageUnavailable signals that the sales dataset cannot be reached.
	ErrStorageUnavailable = errors.New("analytics: storage unavailable")
	// ErrQueryTimeout signals that an aggregate exceeded its time budget.
	ErrQueryTimeout = errors.New("analytics: query timeout")
	// ErrCacheUnavailable wraps cache backend failures. Callers never see it
	// from read paths; the cache falls back to the producer.
	ErrCacheUnavailable = errors.New("analytics: cache unavailable")
)

// classifyStorageError maps driver level failures onto the analytics error
// taxonomy while preserving the original cause.
func classifyStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrQueryTimeout) {
		return err
	}
	var connErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connErr):
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return fmt.Errorf("%s: %w: %w", op, ErrQueryTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
