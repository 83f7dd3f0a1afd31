// Package recorder turns the local participant's position samples into a
// growing UserRoute and hands committed segments to the route store.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"backend-squadrun/internal/logging"
	"backend-squadrun/internal/route"
	"backend-squadrun/internal/stats"
	"backend-squadrun/internal/store"

	"github.com/sirupsen/logrus"
)

// Sink is the subset of the route store the recorder reads and writes.
type Sink interface {
	Append(ctx context.Context, routeID string, points []route.Point) error
	UpsertSummary(ctx context.Context, r route.UserRoute) (route.UserRoute, error)
	LoadRoute(ctx context.Context, sessionID, userID string) (route.UserRoute, []route.Point, error)
}

type Config struct {
	// AccuracyThreshold drops samples whose horizontal accuracy is worse
	// (larger) than this many meters. Zero disables the gate.
	AccuracyThreshold float64
	// FlushEvery flushes after this many buffered points. Zero disables it.
	FlushEvery int
	// FlushInterval flushes when this much time passed since the last flush,
	// checked on every accepted point. Zero disables it.
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{AccuracyThreshold: 50, FlushEvery: 20, FlushInterval: 30 * time.Second}
}

type state int

const (
	stateIdle state = iota
	stateRecording
	// stateFinalizing means EndedAt is set but the final write has not
	// succeeded yet.
	stateFinalizing
	stateFinalized
)

// Recorder owns one in-progress route at a time. All methods are safe for
// concurrent use; calls are serialized.
type Recorder struct {
	mu   sync.Mutex
	cfg  Config
	sink Sink
	log  logrus.FieldLogger
	now  func() time.Time

	state     state
	current   route.UserRoute
	buffer    []route.Point
	last      *route.Point
	lastFlush time.Time
}

func New(sink Sink, cfg Config, log logrus.FieldLogger) *Recorder {
	return &Recorder{
		cfg:  cfg,
		sink: sink,
		log:  logging.Component(log, "recorder"),
		now:  time.Now,
	}
}

// Start begins a fresh route in memory without looking at the store. Open
// is the entry point for callers that may return to a session.
func (r *Recorder) Start(sessionID, userID string) (route.UserRoute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canStartLocked(sessionID, userID); err != nil {
		return route.UserRoute{}, err
	}
	r.startLocked(sessionID, userID)
	return r.current, nil
}

// Open starts recording for (sessionID, userID). A stored route that is
// still open is resumed from its persisted points; a finalized one is
// immutable and refused with route.ErrInvalidState.
func (r *Recorder) Open(ctx context.Context, sessionID, userID string) (route.UserRoute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.canStartLocked(sessionID, userID); err != nil {
		return route.UserRoute{}, err
	}

	stored, points, err := r.sink.LoadRoute(ctx, sessionID, userID)
	switch {
	case errors.Is(err, store.ErrRouteNotFound):
		r.startLocked(sessionID, userID)
		return r.current, nil
	case err != nil:
		return route.UserRoute{}, transient("load route", err)
	case stored.Finalized():
		return route.UserRoute{}, fmt.Errorf("%w: route for session %s already finalized", route.ErrInvalidState, sessionID)
	}

	now := r.now()
	r.current = stats.Recompute(stored, points)
	r.current.UpdatedAt = now
	r.buffer = nil
	r.last = nil
	if n := len(points); n > 0 {
		last := points[n-1]
		r.last = &last
	}
	r.lastFlush = now
	r.state = stateRecording

	r.log.WithFields(logrus.Fields{
		"route_id":   r.current.ID,
		"session_id": sessionID,
		"user_id":    userID,
		"points":     len(points),
	}).Info("route recording resumed")
	return r.current, nil
}

func (r *Recorder) canStartLocked(sessionID, userID string) error {
	switch {
	case r.state == stateRecording || r.state == stateFinalizing:
		return fmt.Errorf("%w: route for session %s still in progress", route.ErrInvalidState, r.current.SessionID)
	case r.state == stateFinalized && r.current.SessionID == sessionID && r.current.UserID == userID:
		return fmt.Errorf("%w: route for session %s already finalized", route.ErrInvalidState, sessionID)
	}
	return nil
}

func (r *Recorder) startLocked(sessionID, userID string) {
	now := r.now()
	r.current = route.UserRoute{
		SessionID: sessionID,
		UserID:    userID,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.buffer = nil
	r.last = nil
	r.lastFlush = now
	r.state = stateRecording

	r.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID}).Info("route recording started")
}

// Ingest folds a sample into the live route. Samples failing the quality
// gates are dropped and reported as accepted=false with a nil error. A
// non-nil error with accepted=true means the point was recorded but the
// periodic flush failed; the buffer is kept for the next attempt.
func (r *Recorder) Ingest(ctx context.Context, p route.Point) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateRecording {
		return false, route.ErrNoActiveRoute
	}
	if reason := r.reject(p); reason != "" {
		r.log.WithFields(logrus.Fields{
			"session_id": r.current.SessionID,
			"user_id":    r.current.UserID,
			"reason":     reason,
			"accuracy":   p.HorizontalAccuracy,
			"timestamp":  p.Timestamp,
		}).Debug("sample dropped")
		return false, nil
	}

	now := r.now()
	r.current = stats.Accumulate(r.current, r.last, p, now)
	r.current.UpdatedAt = now
	r.buffer = append(r.buffer, p)
	accepted := p
	r.last = &accepted

	if r.flushDue(now) {
		if err := r.flushLocked(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (r *Recorder) reject(p route.Point) string {
	if p.HorizontalAccuracy < 0 {
		return "invalid_accuracy"
	}
	if r.cfg.AccuracyThreshold > 0 && p.HorizontalAccuracy > r.cfg.AccuracyThreshold {
		return "accuracy"
	}
	if r.last != nil && !p.Timestamp.After(r.last.Timestamp) {
		return "out_of_order"
	}
	return ""
}

func (r *Recorder) flushDue(now time.Time) bool {
	if r.cfg.FlushEvery > 0 && len(r.buffer) >= r.cfg.FlushEvery {
		return true
	}
	return r.cfg.FlushInterval > 0 && now.Sub(r.lastFlush) >= r.cfg.FlushInterval
}

// Flush writes the buffered points and the current summary.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateRecording && r.state != stateFinalizing {
		return route.ErrNoActiveRoute
	}
	return r.flushLocked(ctx)
}

// flushLocked appends the buffered points before writing the summary, so
// the stored end time is never ahead of the stored points. A route without
// an ID is first registered open to obtain one.
func (r *Recorder) flushLocked(ctx context.Context) error {
	summaryWritten := false
	if r.current.ID == "" {
		open := r.current
		open.EndedAt = nil
		if err := r.upsertLocked(ctx, open); err != nil {
			return err
		}
		summaryWritten = r.current.EndedAt == nil
	}

	if len(r.buffer) > 0 {
		if err := r.sink.Append(ctx, r.current.ID, r.buffer); err != nil {
			return r.persistFailed("append points", err)
		}
		r.log.WithFields(logrus.Fields{
			"route_id": r.current.ID,
			"points":   len(r.buffer),
		}).Debug("route segment flushed")
		r.buffer = nil
	}

	if !summaryWritten {
		if err := r.upsertLocked(ctx, r.current); err != nil {
			return err
		}
	}
	r.lastFlush = r.now()
	return nil
}

func (r *Recorder) upsertLocked(ctx context.Context, in route.UserRoute) error {
	saved, err := r.sink.UpsertSummary(ctx, in)
	if err != nil {
		// An earlier closing write went through but its reply was lost.
		if r.state == stateFinalizing && in.EndedAt != nil && errors.Is(err, store.ErrRouteFinalized) {
			return nil
		}
		return r.persistFailed("upsert summary", err)
	}
	r.current.ID = saved.ID
	if !saved.CreatedAt.IsZero() {
		r.current.CreatedAt = saved.CreatedAt
	}
	return nil
}

func (r *Recorder) persistFailed(op string, err error) error {
	r.log.WithError(err).WithFields(logrus.Fields{
		"session_id": r.current.SessionID,
		"user_id":    r.current.UserID,
		"buffered":   len(r.buffer),
	}).Error("route persistence failed, keeping buffer")
	if errors.Is(err, store.ErrRouteFinalized) {
		return fmt.Errorf("%s: %w: %w", op, route.ErrInvalidState, err)
	}
	return transient(op, err)
}

func transient(op string, err error) error {
	if errors.Is(err, route.ErrTransientIO) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, route.ErrTransientIO, err)
}

// Finalize ends the route and persists everything still buffered. Once it
// succeeded, further calls return the same route without writing again. If
// the write fails the route stays pending and the next call retries it.
func (r *Recorder) Finalize(ctx context.Context) (route.UserRoute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateIdle:
		return route.UserRoute{}, route.ErrNoActiveRoute
	case stateFinalized:
		return r.current, nil
	case stateRecording:
		now := r.now()
		r.current.EndedAt = &now
		r.current.Duration = math.Max(0, now.Sub(r.current.StartedAt).Seconds())
		r.current.AverageSpeed = stats.AverageSpeed(r.current.TotalDistance, r.current.Duration)
		r.current.UpdatedAt = now
		r.state = stateFinalizing
	}

	if err := r.flushLocked(ctx); err != nil {
		return r.current, err
	}
	r.state = stateFinalized

	r.log.WithFields(logrus.Fields{
		"route_id":   r.current.ID,
		"session_id": r.current.SessionID,
		"user_id":    r.current.UserID,
		"points":     r.current.PointsCount,
		"distance_m": r.current.TotalDistance,
	}).Info("route finalized")
	return r.current, nil
}

// Current returns a snapshot of the route being recorded, or the last
// finalized one.
func (r *Recorder) Current() route.UserRoute {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Active reports whether a route is recording or waiting for its final write.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateRecording || r.state == stateFinalizing
}

// Pending reports whether a finalize is waiting to be retried.
func (r *Recorder) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateFinalizing
}

func (r *Recorder) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}
