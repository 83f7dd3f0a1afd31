// Package session binds one participant's device to at most one run session
// at a time and drives the recorder and live channel from that binding.
package session

import (
	"context"
	"fmt"
	"sync"

	"backend-squadrun/internal/live"
	"backend-squadrun/internal/logging"
	"backend-squadrun/internal/recorder"
	"backend-squadrun/internal/route"
	"backend-squadrun/internal/stats"

	"github.com/sirupsen/logrus"
)

type State string

const (
	Idle  State = "idle"
	Bound State = "bound"
)

// Observer receives the binder's reactive output. Calls may come from
// different goroutines and must not block for long.
type Observer interface {
	StateChanged(Status)
	RouteUpdated(route.UserRoute)
	RunnerMoved(live.RunnerLocation)
	Failed(error)
}

type NopObserver struct{}

func (NopObserver) StateChanged(Status)             {}
func (NopObserver) RouteUpdated(route.UserRoute)    {}
func (NopObserver) RunnerMoved(live.RunnerLocation) {}
func (NopObserver) Failed(error)                    {}

type Status struct {
	State         State                 `json:"state"`
	SessionID     string                `json:"session_id,omitempty"`
	ParticipantID string                `json:"participant_id"`
	Route         route.UserRoute       `json:"route"`
	Summary       route.Summary         `json:"summary"`
	Runners       []live.RunnerLocation `json:"runners"`
	Pending       bool                  `json:"pending_finalize"`
	Err           error                 `json:"-"`
	Error         string                `json:"error,omitempty"`
}

type Binder struct {
	mu            sync.Mutex
	participantID string
	rec           *recorder.Recorder
	channel       *live.Channel
	obs           Observer
	log           logrus.FieldLogger

	state     State
	sessionID string
	sub       *live.Subscription
	stop      chan struct{}
	err       error
}

func NewBinder(participantID string, rec *recorder.Recorder, ch *live.Channel, obs Observer, log logrus.FieldLogger) *Binder {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Binder{
		participantID: participantID,
		rec:           rec,
		channel:       ch,
		obs:           obs,
		log:           logging.Component(log, "session").WithField("user_id", participantID),
		state:         Idle,
	}
}

// Bind attaches the device to sessionID. Binding the current session is a
// no-op; binding another one closes the current binding first. Returning to
// a session resumes its open route, while a route already finalized there
// refuses the bind with route.ErrInvalidState.
func (b *Binder) Bind(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", route.ErrInvalidState)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Bound {
		if b.sessionID == sessionID {
			return nil
		}
		if _, err := b.unbindLocked(ctx); err != nil {
			return fmt.Errorf("leave session %s: %w", b.sessionID, err)
		}
	}

	if b.rec.Pending() {
		if _, err := b.finalizeLocked(ctx); err != nil {
			return fmt.Errorf("previous route still pending: %w", err)
		}
	}

	if _, err := b.rec.Open(ctx, sessionID, b.participantID); err != nil {
		return err
	}

	b.sub = b.channel.Subscribe(sessionID, b.participantID)
	b.stop = make(chan struct{})
	go b.forward(b.sub, b.stop)

	b.state = Bound
	b.sessionID = sessionID
	b.err = nil

	b.log.WithField("session_id", sessionID).Info("bound to session")
	b.obs.StateChanged(b.statusLocked())
	return nil
}

// forward relays peer updates until the subscription closes. Once stop is
// closed at most the update already received is delivered.
func (b *Binder) forward(sub *live.Subscription, stop <-chan struct{}) {
	for loc := range sub.Updates() {
		select {
		case <-stop:
			return
		default:
		}
		b.obs.RunnerMoved(loc)
	}
}

// Unbind returns the device to Idle and finalizes its route. When the final
// write fails the binder is still Idle; the error is kept in Status and
// Retry re-attempts it.
func (b *Binder) Unbind(ctx context.Context) (route.UserRoute, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Bound {
		if b.rec.Pending() {
			return b.finalizeLocked(ctx)
		}
		return route.UserRoute{}, route.ErrNoActiveRoute
	}
	return b.unbindLocked(ctx)
}

func (b *Binder) unbindLocked(ctx context.Context) (route.UserRoute, error) {
	close(b.stop)
	b.channel.Unsubscribe(b.sub)
	b.sub, b.stop = nil, nil

	sessionID := b.sessionID
	b.state = Idle
	b.sessionID = ""

	b.log.WithField("session_id", sessionID).Info("unbound from session")
	r, err := b.finalizeLocked(ctx)
	b.obs.StateChanged(b.statusLocked())
	return r, err
}

func (b *Binder) finalizeLocked(ctx context.Context) (route.UserRoute, error) {
	r, err := b.rec.Finalize(ctx)
	if err != nil {
		b.failLocked(err)
		return r, err
	}
	b.err = nil
	b.obs.RouteUpdated(r)
	return r, nil
}

// Retry re-attempts a finalize that failed earlier, or a flush that failed
// while recording.
func (b *Binder) Retry(ctx context.Context) (route.UserRoute, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.rec.Pending():
		return b.finalizeLocked(ctx)
	case b.state == Bound:
		if err := b.rec.Flush(ctx); err != nil {
			b.failLocked(err)
			return b.rec.Current(), err
		}
		b.err = nil
		return b.rec.Current(), nil
	default:
		return b.rec.Current(), nil
	}
}

// Record ingests a local sample and, if accepted, publishes it to peers.
// A flush failure is reported but the point still counts as recorded.
func (b *Binder) Record(ctx context.Context, p route.Point) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Bound {
		return false, route.ErrNoActiveRoute
	}

	accepted, err := b.rec.Ingest(ctx, p)
	if !accepted {
		return false, err
	}
	if err != nil {
		b.failLocked(err)
	} else if b.rec.Buffered() == 0 {
		b.err = nil
	}

	b.channel.Publish(ctx, b.sessionID, b.participantID, p.Coordinate(), p.Timestamp)
	b.obs.RouteUpdated(b.rec.Current())
	return true, err
}

func (b *Binder) failLocked(err error) {
	b.err = err
	b.log.WithError(err).Warn("route persistence failed")
	b.obs.Failed(err)
}

func (b *Binder) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

func (b *Binder) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked()
}

func (b *Binder) statusLocked() Status {
	cur := b.rec.Current()
	st := Status{
		State:         b.state,
		SessionID:     b.sessionID,
		ParticipantID: b.participantID,
		Route:         cur,
		Summary:       stats.Summarize(cur),
		Pending:       b.rec.Pending(),
		Err:           b.err,
	}
	if b.err != nil {
		st.Error = b.err.Error()
	}
	if b.state == Bound {
		for _, loc := range b.channel.Snapshot(b.sessionID) {
			if loc.ParticipantID != b.participantID {
				st.Runners = append(st.Runners, loc)
			}
		}
	}
	return st
}
