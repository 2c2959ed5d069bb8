package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unbreakk1/Questify/internal/config"
	"github.com/unbreakk1/Questify/internal/engine"
)

func startHTTP(t *testing.T, e *testEnv) string {
	t.Helper()
	ts := httptest.NewServer(e.srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/user-stats"
}

func dialStats(t *testing.T, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestUserStatsSocket_ReceivesUpdates(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	url := startHTTP(t, e)

	aliceConn, _, err := dialStats(t, url+"?token="+alice, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	bobConn, _, err := dialStats(t, url, http.Header{"Authorization": {"Bearer " + bob}})
	if err != nil {
		t.Fatalf("dial with header: %v", err)
	}
	waitFor(t, "subscribers", func() bool {
		return e.hub.SubscriberCount("alice") == 1 && e.hub.SubscriberCount("bob") == 1
	})

	task := decode[engine.TaskView](t, e.do(http.MethodPost, "/api/tasks", alice, map[string]string{"title": "Push test"}))
	if rec := e.do(http.MethodPut, "/api/tasks/"+task.ID+"/complete", alice, nil); rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}

	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := aliceConn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var update engine.UserStatsUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatal(err)
	}
	if update != (engine.UserStatsUpdate{UserID: "alice", Gold: 10, Level: 1}) {
		t.Errorf("update = %+v", update)
	}

	// Bob's topic stays quiet
	bobConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := bobConn.ReadMessage(); err == nil {
		t.Error("bob received alice's update")
	}
}

func TestUserStatsSocket_RequiresToken(t *testing.T) {
	e := newTestEnv(t, nil)
	url := startHTTP(t, e)

	_, resp, err := dialStats(t, url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	_, resp, err = dialStats(t, url+"?token=bogus", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bogus token, got %v (%v)", resp, err)
	}
}

func TestUserStatsSocket_ConnectionLimit(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.ServerConfig) {
		cfg.Connections = config.ConnectionsConfig{MaxPerIP: 1, MaxTotal: 10}
	})
	token := e.register(t, "alice")
	url := startHTTP(t, e) + "?token=" + token

	first, _, err := dialStats(t, url, nil)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	waitFor(t, "subscriber", func() bool { return e.hub.SubscriberCount("alice") == 1 })

	_, resp, err := dialStats(t, url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for the second connection, got %v (%v)", resp, err)
	}

	// Closing the first connection frees the slot
	first.Close()
	waitFor(t, "slot release", func() bool { return e.srv.connLimiter.Stats().Total == 0 })

	if _, _, err := dialStats(t, url, nil); err != nil {
		t.Fatalf("dial after release: %v", err)
	}
}

func TestUserStatsSocket_OriginCheck(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.ServerConfig) {
		cfg.WebSocket.AllowedOrigins = []string{"http://app.example"}
	})
	token := e.register(t, "alice")
	url := startHTTP(t, e) + "?token=" + token

	_, resp, err := dialStats(t, url, http.Header{"Origin": {"http://evil.example"}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for a foreign origin, got %v (%v)", resp, err)
	}
	if total := e.srv.connLimiter.Stats().Total; total != 0 {
		t.Errorf("rejected handshake still holds %d slots", total)
	}

	if _, _, err := dialStats(t, url, http.Header{"Origin": {"http://app.example"}}); err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
}
