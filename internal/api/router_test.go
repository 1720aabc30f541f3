package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/api"
	"smash-arena/internal/config"
	"smash-arena/internal/input"
	"smash-arena/internal/session"
)

// ============================================================================
// Helpers
// ============================================================================

const validMatch = `{
	"players": [{"id": "alice", "archetype": "brawler"}, {"id": "bob", "archetype": "speedster"}],
	"config": {"mapId": "final-destination", "mode": "stock", "stocks": 2}
}`

type fixture struct {
	ts   *httptest.Server
	reg  *session.Registry
	bans *anticheat.MemoryBanStore
}

func newFixture(t *testing.T, mutate func(*api.RouterConfig)) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	bans := anticheat.NewMemoryBanStore()
	reg := session.NewRegistry(ctx, config.DefaultSession(), session.Options{Bans: bans})
	hub := api.NewHub(reg, api.DefaultHubConfig())
	reg.AddDispatcher(hub)

	cfg := api.RouterConfig{
		Sessions:       reg,
		Bans:           bans,
		Hub:            hub,
		DisableLogging: true,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Hour,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	ts := httptest.NewServer(api.NewRouter(cfg))
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		reg.Shutdown()
		cancel()
	})
	return &fixture{ts: ts, reg: reg, bans: bans}
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) create(t *testing.T) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/sessions", validMatch, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var out struct {
		ID     string `json:"id"`
		WSPath string `json:"wsPath"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.ID == "" || out.WSPath != "/ws/sessions/"+out.ID {
		t.Fatalf("unexpected create response %+v", out)
	}
	return out.ID
}

// ============================================================================
// Session Endpoint Tests
// ============================================================================

// TestSessionLifecycleEndpoints verifies create, list, get, snapshot and end
func TestSessionLifecycleEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)

	var list []session.Summary
	if err := json.NewDecoder(f.do(t, http.MethodGet, "/api/sessions", "", nil).Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != id || list[0].MapID != "final-destination" {
		t.Fatalf("unexpected list %+v", list)
	}

	if resp := f.do(t, http.MethodGet, "/api/sessions/"+id, "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var snap struct {
		Players []map[string]any `json:"players"`
	}
	if err := json.NewDecoder(f.do(t, http.MethodGet, "/api/sessions/"+id+"/snapshot", "", nil).Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Players) != 2 {
		t.Fatalf("expected 2 players in snapshot, got %d", len(snap.Players))
	}

	resp := f.do(t, http.MethodDelete, "/api/sessions/"+id+"?reason=cancelled", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var res struct {
		Reason    string           `json:"reason"`
		Standings []map[string]any `json:"standings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Reason != "cancelled" || len(res.Standings) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	if resp := f.do(t, http.MethodGet, "/api/sessions/"+id, "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 after end, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodDelete, "/api/sessions/"+id, "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for second end, got %d", resp.StatusCode)
	}
}

// TestCreateSessionValidation verifies malformed and invalid matches are refused
func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "invalid json",
			body:       `{invalid}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"players": [], "turbo": true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "single player",
			body:       `{"players": [{"id": "alice", "archetype": "brawler"}]}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "duplicate players",
			body:       `{"players": [{"id": "alice", "archetype": "brawler"}, {"id": "alice", "archetype": "tank"}]}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown map",
			body:       `{"players": [{"id": "a", "archetype": "brawler"}, {"id": "b", "archetype": "tank"}], "config": {"mapId": "moon", "mode": "stock", "stocks": 3}}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "defaults fill missing config",
			body:       `{"players": [{"id": "a", "archetype": "brawler"}, {"id": "b", "archetype": "tank"}]}`,
			wantStatus: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/sessions", tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

// TestMatchmakerKeyRequired verifies create and end need the bearer key when configured
func TestMatchmakerKeyRequired(t *testing.T) {
	f := newFixture(t, func(cfg *api.RouterConfig) {
		cfg.Auth = api.NewMatchmakerAuth("s3cret")
	})

	if resp := f.do(t, http.MethodPost, "/api/sessions", validMatch, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without key, got %d", resp.StatusCode)
	}
	wrong := http.Header{"Authorization": {"Bearer nope"}}
	if resp := f.do(t, http.MethodPost, "/api/sessions", validMatch, wrong); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 with wrong key, got %d", resp.StatusCode)
	}

	good := http.Header{"Authorization": {"Bearer s3cret"}}
	resp := f.do(t, http.MethodPost, "/api/sessions", validMatch, good)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 with key, got %d", resp.StatusCode)
	}

	if resp := f.do(t, http.MethodGet, "/api/sessions", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("reads should stay open, got %d", resp.StatusCode)
	}
}

// TestRateLimitRejects verifies an IP over its budget gets 429
func TestRateLimitRejects(t *testing.T) {
	f := newFixture(t, func(cfg *api.RouterConfig) {
		cfg.RateLimitConfig = &api.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2, CleanupInterval: time.Hour}
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(t, http.MethodGet, "/health", "", nil).StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

// TestBansAndCatalog verifies the read-only listing endpoints
func TestBansAndCatalog(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.bans.Ban("mallory", "input: opposite directions at full intensity", time.Now())

	var bans []anticheat.Ban
	if err := json.NewDecoder(f.do(t, http.MethodGet, "/api/bans", "", nil).Body).Decode(&bans); err != nil {
		t.Fatal(err)
	}
	if len(bans) != 1 || bans[0].PlayerID != "mallory" {
		t.Fatalf("unexpected bans %+v", bans)
	}

	var catalog struct {
		Maps       []string `json:"maps"`
		Archetypes []string `json:"archetypes"`
		Modes      []string `json:"modes"`
	}
	if err := json.NewDecoder(f.do(t, http.MethodGet, "/api/catalog", "", nil).Body).Decode(&catalog); err != nil {
		t.Fatal(err)
	}
	if len(catalog.Maps) == 0 || len(catalog.Archetypes) != 4 || len(catalog.Modes) != 3 {
		t.Fatalf("unexpected catalog %+v", catalog)
	}

	// A banned player cannot be matched.
	body := `{"players": [{"id": "mallory", "archetype": "brawler"}, {"id": "b", "archetype": "tank"}]}`
	if resp := f.do(t, http.MethodPost, "/api/sessions", body, nil); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 for banned player, got %d", resp.StatusCode)
	}
}

// ============================================================================
// WebSocket Tests
// ============================================================================

func dial(t *testing.T, f *fixture, id, player string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/sessions/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{api.PlayerHeader: {player}})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial failed (%d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (session.Message, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		return session.Message{}, err
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got %d", kind)
	}
	var m session.Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return m, nil
}

// TestWebSocketJoinSnapshot verifies a joining player receives a personal full snapshot
func TestWebSocketJoinSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)
	conn := dial(t, f, id, "alice")

	for {
		m, err := readMessage(t, conn)
		if err != nil {
			t.Fatalf("no snapshot before error: %v", err)
		}
		if m.Kind == session.KindSnapshot && m.Target == "alice" {
			break
		}
	}

	s, err := f.reg.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if conn := s.Summary().Connected; len(conn) != 1 || conn[0] != "alice" {
		t.Fatalf("expected alice connected, got %v", conn)
	}

	in, _ := json.Marshal(api.Inbound{Type: "input", Input: &inputFrame})
	if err := conn.WriteMessage(websocket.TextMessage, in); err != nil {
		t.Fatal(err)
	}
}

// TestWebSocketRejectsUnknownSession verifies the upgrade is refused for missing sessions and players
func TestWebSocketRejectsUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/sessions/nope"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{api.PlayerHeader: {"alice"}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %v", err)
	}

	id := f.create(t)
	url = "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/sessions/" + id
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without player id, got %v", err)
	}
}

// TestWebSocketKicksCheater verifies repeated impossible input ends in a kick and a closed socket
func TestWebSocketKicksCheater(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t)
	conn := dial(t, f, id, "bob")

	bad, _ := json.Marshal(api.Inbound{Type: "input", Input: &cheatFrame})
	kicks := config.DefaultAntiCheat().KickAt
	for i := 0; i < kicks; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, bad); err != nil {
			t.Fatal(err)
		}
	}

	sawKick := false
	for {
		m, err := readMessage(t, conn)
		if err != nil {
			break
		}
		if m.Kind == session.KindKick && m.Target == "bob" {
			sawKick = true
		}
	}
	if !sawKick {
		t.Fatal("connection closed without a kick message")
	}
}

var (
	inputFrame = input.FrameInput{Frame: 1, Right: 1}
	cheatFrame = input.FrameInput{Frame: 1, Left: 1, Right: 1}
)
