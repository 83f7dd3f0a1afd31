package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend-squadrun/internal/config"
	"backend-squadrun/internal/store"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestHealthRoute(t *testing.T) {
	s := NewServer(config.Config{ServerPort: ":0"}, nil, nil, nil)
	defer s.Close()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestInMemoryWiring(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := NewServer(config.Config{AccuracyThresholdM: 50, StoreRetryAttempts: 1}, nil, nil, log)
	defer s.Close()

	if _, ok := s.Store.(*store.Retrying); !ok {
		t.Fatalf("expected retrying store")
	}
	if hook.LastEntry() == nil {
		t.Fatalf("expected in-memory fallback to be logged")
	}

	req := httptest.NewRequest(http.MethodPost, "/tracking/participants/alice/bind", bytes.NewReader([]byte(`{"session_id":"s1"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("bind through server: %v", err)
	}

	resp, _ = s.App.Test(httptest.NewRequest(http.MethodGet, "/squads/x", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("squad routes need postgres, got %d", resp.StatusCode)
	}
}
