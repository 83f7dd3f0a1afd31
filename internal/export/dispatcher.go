// Package export hands finalized routes to optional external sinks. It runs
// off the recording path: a slow or failing exporter never affects it.
package export

import (
	"context"
	"sync"
	"time"

	"backend-squadrun/internal/logging"
	"backend-squadrun/internal/route"
	"backend-squadrun/internal/session"

	"github.com/sirupsen/logrus"
)

type Exporter interface {
	Name() string
	// Export stores the route somewhere and returns where.
	Export(ctx context.Context, f route.Finalized) (string, error)
}

// RouteLoader reads back a persisted route with its points.
type RouteLoader interface {
	LoadRoute(ctx context.Context, sessionID, userID string) (route.UserRoute, []route.Point, error)
}

// RecordSaver keeps track of finished exports.
type RecordSaver interface {
	Save(ctx context.Context, routeID, exporter, location string) (string, error)
}

const defaultQueue = 32

type Dispatcher struct {
	loader    RouteLoader
	exporters []Exporter
	ledger    RecordSaver
	timeout   time.Duration
	log       logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	jobs   chan route.UserRoute
	wg     sync.WaitGroup
}

// NewDispatcher starts a single worker. ledger may be nil.
func NewDispatcher(loader RouteLoader, exporters []Exporter, ledger RecordSaver, log logrus.FieldLogger) *Dispatcher {
	d := &Dispatcher{
		loader:    loader,
		exporters: exporters,
		ledger:    ledger,
		timeout:   time.Minute,
		log:       logging.Component(log, "export"),
		jobs:      make(chan route.UserRoute, defaultQueue),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Submit queues a finalized route. It never blocks; a full queue or a
// closed dispatcher drops the job.
func (d *Dispatcher) Submit(r route.UserRoute) bool {
	if !r.Finalized() || len(d.exporters) == 0 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- r:
		return true
	default:
		d.log.WithFields(logrus.Fields{"route_id": r.ID}).Warn("export queue full, route skipped")
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for r := range d.jobs {
		d.process(r)
	}
}

func (d *Dispatcher) process(r route.UserRoute) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	log := d.log.WithFields(logrus.Fields{"route_id": r.ID, "session_id": r.SessionID, "user_id": r.UserID})

	stored, points, err := d.loader.LoadRoute(ctx, r.SessionID, r.UserID)
	if err != nil {
		log.WithError(err).Error("load route for export failed")
		return
	}
	if !stored.Finalized() {
		log.Warn("stored route not finalized, export skipped")
		return
	}
	snapshot := route.Finalized{Route: stored, Points: points}

	for _, e := range d.exporters {
		location, err := e.Export(ctx, snapshot)
		if err != nil {
			log.WithError(err).WithField("exporter", e.Name()).Error("route export failed")
			continue
		}
		log.WithFields(logrus.Fields{"exporter": e.Name(), "location": location}).Info("route exported")
		if d.ledger != nil {
			if _, err := d.ledger.Save(ctx, stored.ID, e.Name(), location); err != nil {
				log.WithError(err).Warn("export record not saved")
			}
		}
	}
}

// Observer submits every finalized route reported by a session binder.
type Observer struct {
	session.NopObserver
	d *Dispatcher
}

func NewObserver(d *Dispatcher) Observer {
	return Observer{d: d}
}

func (o Observer) RouteUpdated(r route.UserRoute) {
	if o.d != nil && r.Finalized() {
		o.d.Submit(r)
	}
}
