// Package live keeps the latest known position of every runner in a session
// and fans each update out to the other subscribers of that session.
package live

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"backend-squadrun/internal/logging"
	"backend-squadrun/internal/route"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultBuffer = 64

type RunnerLocation struct {
	SessionID     string           `json:"session_id"`
	ParticipantID string           `json:"participant_id"`
	Coordinate    route.Coordinate `json:"coordinate"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Subscription receives the locations of every other participant in one
// session. The updates channel is closed on Unsubscribe.
type Subscription struct {
	SessionID     string
	ParticipantID string

	updates chan RunnerLocation
	closed  bool
}

func (s *Subscription) Updates() <-chan RunnerLocation {
	return s.updates
}

type roster struct {
	locations map[string]RunnerLocation
	subs      map[*Subscription]struct{}
}

type Channel struct {
	mu      sync.Mutex
	rosters map[string]*roster
	buffer  int
	log     logrus.FieldLogger

	relay      *redis.Client
	instanceID string
	cancel     context.CancelFunc
	done       chan struct{}
}

// relayMessage is the payload exchanged between instances over Redis.
type relayMessage struct {
	Instance string         `json:"instance"`
	Location RunnerLocation `json:"location"`
}

// NewChannel builds a channel. When relay is non-nil, local publishes are
// mirrored to Redis and updates from other instances are applied locally.
func NewChannel(buffer int, relay *redis.Client, log logrus.FieldLogger) *Channel {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := &Channel{
		rosters:    map[string]*roster{},
		buffer:     buffer,
		log:        logging.Component(log, "live"),
		relay:      relay,
		instanceID: uuid.NewString(),
	}
	if relay != nil {
		ch.startRelay()
	}
	return ch
}

func (c *Channel) Subscribe(sessionID, participantID string) *Subscription {
	sub := &Subscription{
		SessionID:     sessionID,
		ParticipantID: participantID,
		updates:       make(chan RunnerLocation, c.buffer),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.rosterLocked(sessionID)
	r.subs[sub] = struct{}{}
	for id, loc := range r.locations {
		if id == participantID {
			continue
		}
		select {
		case sub.updates <- loc:
		default:
		}
	}
	return sub
}

// Unsubscribe stops delivery immediately. The participant leaves the roster
// once it has no other subscription in the session, and the roster itself
// is freed when its last subscriber leaves.
func (c *Channel) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.updates)

	r, ok := c.rosters[sub.SessionID]
	if !ok {
		return
	}
	delete(r.subs, sub)

	stillHere := false
	for other := range r.subs {
		if other.ParticipantID == sub.ParticipantID {
			stillHere = true
			break
		}
	}
	if !stillHere {
		delete(r.locations, sub.ParticipantID)
	}
	if len(r.subs) == 0 {
		delete(c.rosters, sub.SessionID)
	}
}

// Publish replaces the participant's stored location and fans it out. A
// publish older than the stored location is rejected. Sessions without a
// local subscriber keep no roster; the update only goes to the relay.
func (c *Channel) Publish(ctx context.Context, sessionID, participantID string, coord route.Coordinate, at time.Time) bool {
	loc := RunnerLocation{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Coordinate:    coord,
		UpdatedAt:     at,
	}

	ok := true
	c.mu.Lock()
	if r, found := c.rosters[sessionID]; found {
		ok = c.applyLocked(r, loc)
	}
	c.mu.Unlock()

	if !ok {
		c.log.WithFields(logrus.Fields{
			"session_id":     sessionID,
			"participant_id": participantID,
			"timestamp":      at,
		}).Debug("stale location rejected")
		return false
	}

	c.relayPublish(ctx, loc)
	return true
}

// Snapshot returns a copy of the session roster.
func (c *Channel) Snapshot(sessionID string) []RunnerLocation {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rosters[sessionID]
	if !ok {
		return nil
	}
	out := make([]RunnerLocation, 0, len(r.locations))
	for _, loc := range r.locations {
		out = append(out, loc)
	}
	return out
}

// Subscribers reports how many local subscriptions a session has.
func (c *Channel) Subscribers(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rosters[sessionID]; ok {
		return len(r.subs)
	}
	return 0
}

// Close stops the Redis relay. Local delivery keeps working.
func (c *Channel) Close() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
}

func (c *Channel) rosterLocked(sessionID string) *roster {
	r, ok := c.rosters[sessionID]
	if !ok {
		r = &roster{
			locations: map[string]RunnerLocation{},
			subs:      map[*Subscription]struct{}{},
		}
		c.rosters[sessionID] = r
	}
	return r
}

// applyLocked stores loc and delivers it to every other subscriber. Sends
// never block; a full subscriber buffer drops the update.
func (c *Channel) applyLocked(r *roster, loc RunnerLocation) bool {
	if prev, ok := r.locations[loc.ParticipantID]; ok && loc.UpdatedAt.Before(prev.UpdatedAt) {
		return false
	}
	r.locations[loc.ParticipantID] = loc

	for sub := range r.subs {
		if sub.ParticipantID == loc.ParticipantID {
			continue
		}
		select {
		case sub.updates <- loc:
		default:
			c.log.WithFields(logrus.Fields{
				"session_id":     loc.SessionID,
				"participant_id": sub.ParticipantID,
			}).Debug("subscriber buffer full, update dropped")
		}
	}
	return true
}

func (c *Channel) relayPublish(ctx context.Context, loc RunnerLocation) {
	if c.relay == nil {
		return
	}
	payload, err := json.Marshal(relayMessage{Instance: c.instanceID, Location: loc})
	if err != nil {
		c.log.WithError(err).Error("relay encode failed")
		return
	}
	if err := c.relay.Publish(ctx, relayChannel(loc.SessionID), payload).Err(); err != nil {
		c.log.WithError(err).WithField("session_id", loc.SessionID).Warn("relay publish failed")
	}
}

func (c *Channel) startRelay() {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := c.relay.PSubscribe(ctx, relayPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		c.log.WithError(err).Warn("relay subscribe failed, running local only")
		_ = pubsub.Close()
		cancel()
		return
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c.applyRelayed(msg)
			}
		}
	}()
}

// applyRelayed folds an update from another instance into the local roster
// without publishing it again.
func (c *Channel) applyRelayed(msg *redis.Message) {
	var in relayMessage
	if err := json.Unmarshal([]byte(msg.Payload), &in); err != nil {
		c.log.WithError(err).WithField("channel", msg.Channel).Warn("relay decode failed")
		return
	}
	if in.Instance == c.instanceID {
		return
	}
	sessionID := sessionIDFromChannel(msg.Channel)
	if sessionID == "" || sessionID != in.Location.SessionID {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Nobody here is watching this session.
	r, ok := c.rosters[sessionID]
	if !ok {
		return
	}
	c.applyLocked(r, in.Location)
}

const (
	relayPrefix  = "live:"
	relaySuffix  = ":locations"
	relayPattern = relayPrefix + "*" + relaySuffix
)

func relayChannel(sessionID string) string {
	return relayPrefix + sessionID + relaySuffix
}

func sessionIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, relayPrefix) || !strings.HasSuffix(ch, relaySuffix) {
		return ""
	}
	if len(ch) <= len(relayPrefix)+len(relaySuffix) {
		return ""
	}
	return ch[len(relayPrefix) : len(ch)-len(relaySuffix)]
}
