package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-squadrun/internal/logging"
	"backend-squadrun/internal/route"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Retrying decorates a Store with bounded exponential backoff. Failures that
// outlive the policy are wrapped in route.ErrTransientIO.
type Retrying struct {
	next     Store
	policy   RetryPolicy
	log      logrus.FieldLogger
	newTimer func() backoff.Timer // nil means wall clock
}

func NewRetrying(next Store, policy RetryPolicy, log logrus.FieldLogger) *Retrying {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Retrying{
		next:     next,
		policy:   policy,
		log:      logging.Component(log, "route_store"),
		newTimer: func() backoff.Timer { return nil },
	}
}

func (r *Retrying) Append(ctx context.Context, routeID string, points []route.Point) error {
	return r.do(ctx, "append", func() error {
		return r.next.Append(ctx, routeID, points)
	})
}

func (r *Retrying) UpsertSummary(ctx context.Context, in route.UserRoute) (route.UserRoute, error) {
	var out route.UserRoute
	err := r.do(ctx, "upsert_summary", func() error {
		var err error
		out, err = r.next.UpsertSummary(ctx, in)
		return err
	})
	return out, err
}

func (r *Retrying) LoadRoute(ctx context.Context, sessionID, userID string) (route.UserRoute, []route.Point, error) {
	var out route.UserRoute
	var points []route.Point
	err := r.do(ctx, "load_route", func() error {
		var err error
		out, points, err = r.next.LoadRoute(ctx, sessionID, userID)
		return err
	})
	return out, points, err
}

func (r *Retrying) LoadAllRoutes(ctx context.Context, sessionID string) (map[string][]route.Coordinate, error) {
	var out map[string][]route.Coordinate
	err := r.do(ctx, "load_all_routes", func() error {
		var err error
		out, err = r.next.LoadAllRoutes(ctx, sessionID)
		return err
	})
	return out, err
}

func (r *Retrying) ListRoutes(ctx context.Context, sessionID string) ([]route.UserRoute, error) {
	var out []route.UserRoute
	err := r.do(ctx, "list_routes", func() error {
		var err error
		out, err = r.next.ListRoutes(ctx, sessionID)
		return err
	})
	return out, err
}

// backOff yields Attempts-1 waits growing from BaseDelay by doubling up to
// MaxDelay, and stops early once ctx is done.
func (r *Retrying) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if r.policy.MaxDelay > 0 {
		b.MaxInterval = r.policy.MaxDelay
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.Attempts-1)), ctx)
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	var (
		last      error
		attempt   int
		permanent bool
	)
	operation := func() error {
		attempt++
		last = fn()
		if last != nil && !retryable(last) {
			permanent = true
			return backoff.Permanent(last)
		}
		return last
	}
	notify := func(err error, wait time.Duration) {
		r.log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"backoff": wait.String(),
		}).Warn("store operation failed, retrying")
	}

	err := backoff.RetryNotifyWithTimer(operation, r.backOff(ctx), notify, r.newTimer())
	if err == nil {
		return nil
	}
	if permanent {
		return last
	}

	r.log.WithError(last).WithFields(logrus.Fields{"op": op, "attempts": attempt}).Error("store operation failed after retries")
	return fmt.Errorf("%w: %s: %w", route.ErrTransientIO, op, last)
}

// retryable rejects outcomes another attempt cannot change: missing or
// closed routes, caller cancellation, and Postgres data, integrity and
// syntax errors.
func retryable(err error) bool {
	if errors.Is(err, ErrRouteNotFound) ||
		errors.Is(err, ErrRouteFinalized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			return false
		}
	}
	return true
}
