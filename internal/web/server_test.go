package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
)

type stubStore struct {
	backlog []*models.Event
	stats   map[string]int
	err     error
}

func (s *stubStore) ListSettlementBacklog() ([]*models.Event, error) {
	return s.backlog, s.err
}

func (s *stubStore) Stats() (map[string]int, error) {
	return s.stats, s.err
}

func testRouter(store Store, triggers Triggers) http.Handler {
	return NewServer(":0", "secret", store, triggers).router()
}

func TestHealthNeedsNoToken(t *testing.T) {
	router := testRouter(&stubStore{}, Triggers{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestTokenRequired(t *testing.T) {
	called := false
	router := testRouter(&stubStore{}, Triggers{
		ForcePoll: func() error { called = true; return nil },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/poll", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("trigger fired without a valid token")
	}

	req := httptest.NewRequest("POST", "/api/poll", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}
}

func TestForcePoll(t *testing.T) {
	polls := 0
	router := testRouter(&stubStore{}, Triggers{
		ForcePoll: func() error { polls++; return nil },
	})

	req := httptest.NewRequest("POST", "/api/poll", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if polls != 1 {
		t.Errorf("poll trigger fired %d times, want 1", polls)
	}
}

func TestForceSweepReportsFailure(t *testing.T) {
	router := testRouter(&stubStore{}, Triggers{
		ForceSweep: func() error { return errors.New("ledger unreachable") },
	})

	req := httptest.NewRequest("POST", "/api/sweep", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestBacklog(t *testing.T) {
	lid := "cond-1"
	store := &stubStore{backlog: []*models.Event{
		{ID: "e1", LedgerID: &lid, HomeTeam: "Arsenal", AwayTeam: "Chelsea"},
	}}
	router := testRouter(store, Triggers{})

	req := httptest.NewRequest("GET", "/api/backlog", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Count  int             `json:"count"`
		Events []*models.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Count != 1 || len(body.Events) != 1 || body.Events[0].ID != "e1" {
		t.Errorf("unexpected backlog payload: %+v", body)
	}
}

func TestStats(t *testing.T) {
	store := &stubStore{stats: map[string]int{"finished": 3, "backlog": 1}}
	router := testRouter(store, Triggers{})

	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var stats map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if stats["finished"] != 3 || stats["backlog"] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}
