package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"backend-squadrun/internal/live"
	"backend-squadrun/internal/logging"
	"backend-squadrun/internal/recorder"
	"backend-squadrun/internal/route"
	"backend-squadrun/internal/session"
	"backend-squadrun/internal/stats"
	"backend-squadrun/internal/store"

	"github.com/sirupsen/logrus"
)

// Service owns one binder per participant and serves historical reads
// from the route store.
type Service struct {
	mu      sync.Mutex
	binders map[string]*session.Binder

	store   store.Store
	channel *live.Channel
	recCfg  recorder.Config
	obs     session.Observer
	log     logrus.FieldLogger
}

func NewService(st store.Store, ch *live.Channel, recCfg recorder.Config, obs session.Observer, log logrus.FieldLogger) *Service {
	return &Service{
		binders: map[string]*session.Binder{},
		store:   st,
		channel: ch,
		recCfg:  recCfg,
		obs:     obs,
		log:     log,
	}
}

// binder returns the participant's binder, creating it on first use. Only
// Bind creates; every other path goes through lookup.
func (s *Service) binder(userID string) *session.Binder {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.binders[userID]
	if !ok {
		rec := recorder.New(s.store, s.recCfg, s.log)
		b = session.NewBinder(userID, rec, s.channel, s.obs, s.log)
		s.binders[userID] = b
	}
	return b
}

func (s *Service) lookup(userID string) (*session.Binder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.binders[userID]
	return b, ok
}

func (s *Service) Bind(ctx context.Context, userID, sessionID string) (session.Status, error) {
	b := s.binder(userID)
	if err := b.Bind(ctx, sessionID); err != nil {
		return b.Status(), err
	}
	return b.Status(), nil
}

func (s *Service) Unbind(ctx context.Context, userID string) (route.UserRoute, error) {
	b, ok := s.lookup(userID)
	if !ok {
		return route.UserRoute{}, route.ErrNoActiveRoute
	}
	return b.Unbind(ctx)
}

func (s *Service) Retry(ctx context.Context, userID string) (route.UserRoute, error) {
	b, ok := s.lookup(userID)
	if !ok {
		return route.UserRoute{}, nil
	}
	return b.Retry(ctx)
}

func (s *Service) Record(ctx context.Context, userID string, p route.Point) (bool, route.UserRoute, error) {
	b, ok := s.lookup(userID)
	if !ok {
		return false, route.UserRoute{}, route.ErrNoActiveRoute
	}
	accepted, err := b.Record(ctx, p)
	return accepted, b.Status().Route, err
}

// Status reports an unknown participant as idle.
func (s *Service) Status(userID string) session.Status {
	b, ok := s.lookup(userID)
	if !ok {
		return session.Status{State: session.Idle, ParticipantID: userID}
	}
	return b.Status()
}

// EndSession unbinds every participant currently bound to sessionID. It
// keeps going past individual failures and reports them together.
func (s *Service) EndSession(ctx context.Context, sessionID string) ([]route.UserRoute, error) {
	s.mu.Lock()
	bound := make([]*session.Binder, 0, len(s.binders))
	for _, b := range s.binders {
		if b.SessionID() == sessionID {
			bound = append(bound, b)
		}
	}
	s.mu.Unlock()

	var (
		routes []route.UserRoute
		errs   []error
	)
	for _, b := range bound {
		r, err := b.Unbind(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		routes = append(routes, r)
	}

	logging.Component(s.log, "tracking").WithFields(logrus.Fields{
		"session_id": sessionID,
		"finalized":  len(routes),
		"failed":     len(errs),
	}).Info("session ended")
	return routes, errors.Join(errs...)
}

func (s *Service) Routes(ctx context.Context, sessionID string) ([]route.Summary, error) {
	routes, err := s.store.ListRoutes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	out := make([]route.Summary, 0, len(routes))
	for _, r := range routes {
		out = append(out, stats.Summarize(r))
	}
	return out, nil
}

// Route returns one stored route with statistics recomputed from its points.
func (s *Service) Route(ctx context.Context, sessionID, userID string) (RouteDetail, error) {
	r, points, err := s.store.LoadRoute(ctx, sessionID, userID)
	if err != nil {
		return RouteDetail{}, err
	}
	r = stats.Recompute(r, points)
	if points == nil {
		points = []route.Point{}
	}
	return RouteDetail{Route: r, Summary: stats.Summarize(r), Points: points}, nil
}

func (s *Service) Replay(ctx context.Context, sessionID string) (map[string][]route.Coordinate, error) {
	all, err := s.store.LoadAllRoutes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load routes: %w", err)
	}
	return all, nil
}

// Participants lists users with a binder, bound or not.
func (s *Service) Participants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.binders))
	for id := range s.binders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
