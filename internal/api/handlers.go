package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/game"
	"smash-arena/internal/session"
)

type createSessionRequest struct {
	Players []session.PlayerEntry `json:"players"`
	Config  session.MatchConfig   `json:"config"`
}

type createSessionResponse struct {
	ID      string          `json:"id"`
	Summary session.Summary `json:"summary"`
	WSPath  string          `json:"wsPath"`
}

type catalogResponse struct {
	Maps       []string `json:"maps"`
	Archetypes []string `json:"archetypes"`
	Modes      []string `json:"modes"`
}

func (h *routerHandlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.sessions.List())
}

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	req := createSessionRequest{Config: session.DefaultMatchConfig()}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.sessions.Create(req.Players, req.Config)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSONStatus(w, http.StatusCreated, createSessionResponse{
		ID:      s.ID(),
		Summary: s.Summary(),
		WSPath:  "/ws/sessions/" + s.ID(),
	})
}

func (h *routerHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, s.Summary())
}

func (h *routerHandlers) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	snap, err := s.Snapshot()
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleGetViolations(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	records := s.Violations(chi.URLParam(r, "player"))
	if records == nil {
		records = []anticheat.ViolationRecord{}
	}
	writeJSON(w, records)
}

func (h *routerHandlers) handleEndSession(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "matchmaking"
	}
	res, err := h.sessions.End(chi.URLParam(r, "id"), reason)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, res)
}

func (h *routerHandlers) handleListBans(w http.ResponseWriter, r *http.Request) {
	if h.bans == nil {
		writeJSON(w, []struct{}{})
		return
	}
	writeJSON(w, h.bans.List())
}

func (h *routerHandlers) handleCatalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{
		Maps:  game.StageIDs(),
		Modes: []string{game.ModeClassic.String(), game.ModeStock.String(), game.ModeTime.String()},
	}
	for _, a := range game.Archetypes() {
		resp.Archetypes = append(resp.Archetypes, a.String())
	}
	writeJSON(w, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrRegistryFull):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrSessionNotActive):
		return http.StatusConflict
	case errors.Is(err, session.ErrRejectedInput):
		return http.StatusForbidden
	case errors.Is(err, session.ErrDesyncInput), errors.Is(err, session.ErrUnknownPlayer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
