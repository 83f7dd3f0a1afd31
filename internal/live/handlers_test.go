package live

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-squadrun/internal/route"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func startWSApp(t *testing.T, ch *Channel) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), ch)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/stream/ws/"
}

func waitSubscribers(t *testing.T, ch *Channel, sessionID string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for ch.Subscribers(sessionID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, got %d", n, ch.Subscribers(sessionID))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), newTestChannel(nil))

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/s1/alice", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func TestStreamDeliversPeerLocations(t *testing.T) {
	ch := newTestChannel(nil)
	base := startWSApp(t, ch)

	conn, _, err := websocket.DefaultDialer.Dial(base+"s1/bob", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitSubscribers(t, ch, "s1", 1)

	ch.Publish(context.Background(), "s1", "alice", route.Coordinate{Latitude: 3, Longitude: 4}, t0)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var loc RunnerLocation
	if err := conn.ReadJSON(&loc); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if loc.ParticipantID != "alice" || loc.Coordinate.Longitude != 4 {
		t.Fatalf("unexpected location %+v", loc)
	}
}

func TestStreamPublishesClientFrames(t *testing.T) {
	ch := newTestChannel(nil)
	base := startWSApp(t, ch)
	watcher := ch.Subscribe("s1", "bob")

	conn, _, err := websocket.DefaultDialer.Dial(base+"s1/alice", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"latitude":1.5,"longitude":2.5,"timestamp":"2026-03-01T06:00:00Z"}`)); err != nil {
		t.Fatalf("write error: %v", err)
	}

	loc := receive(t, watcher)
	if loc.ParticipantID != "alice" || loc.Coordinate.Latitude != 1.5 || !loc.UpdatedAt.Equal(t0) {
		t.Fatalf("unexpected location %+v", loc)
	}
}

func TestStreamCloseUnsubscribes(t *testing.T) {
	ch := newTestChannel(nil)
	base := startWSApp(t, ch)

	conn, _, err := websocket.DefaultDialer.Dial(base+"s3/alice", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	waitSubscribers(t, ch, "s3", 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	waitSubscribers(t, ch, "s3", 0)
}
