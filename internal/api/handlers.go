// Package api is the HTTP boundary: room lifecycle, autocomplete, and
// operational endpoints. The realtime engine lives in internal/ws; the
// handlers here only consult it for live counts and to tear down
// connections when a room is deleted.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pairpad/pairpad/internal/autocomplete"
	"github.com/pairpad/pairpad/internal/config"
	"github.com/pairpad/pairpad/internal/logging"
	"github.com/pairpad/pairpad/internal/registry"
	"github.com/pairpad/pairpad/internal/store"
	"github.com/pairpad/pairpad/internal/ws"
)

type API struct {
	hub      *ws.Hub
	registry *registry.Registry
	store    *store.Store
	cfg      *config.Config
}

func New(hub *ws.Hub, reg *registry.Registry, st *store.Store, cfg *config.Config) *API {
	return &API{
		hub:      hub,
		registry: reg,
		store:    st,
		cfg:      cfg,
	}
}

// Router builds the full route tree, including the websocket endpoint.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{a.cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", a.healthHandler)
	r.Get("/api/stats", a.statsHandler)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", a.createRoomHandler)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", a.getRoomHandler)
			r.Delete("/", a.deleteRoomHandler)
			r.Get("/snapshots", a.listSnapshotsHandler)
		})
	})

	r.Post("/autocomplete", a.autocompleteHandler)

	r.Get("/ws/{roomID}", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(a.hub, a.registry, a.cfg.MessagesPerSecond, a.cfg.MessageBurst, w, req)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("failed to encode json response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (a *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	rooms, snapshots, err := a.store.Stats()
	if err == nil {
		stats["total_rooms"] = rooms
		stats["total_snapshots"] = snapshots
	}

	writeJSON(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	RoomID      string    `json:"roomId"`
	Code        string    `json:"code"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ActiveUsers int       `json:"active_users"`
}

type CreateRoomRequest struct {
	Language string `json:"language"`
}

func (a *API) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, err := a.store.Create(req.Language)
	if err != nil {
		logging.Error().Err(err).Msg("failed to create room")
		writeError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	writeJSON(w, http.StatusCreated, RoomResponse{
		RoomID:    room.ID,
		Code:      room.Code,
		Language:  room.Language,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	})
}

func (a *API) getRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	// The registry view includes edits not yet flushed to the store.
	room, err := a.registry.Get(roomID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("room", roomID).Msg("failed to get room")
		writeError(w, http.StatusInternalServerError, "Failed to get room")
		return
	}

	writeJSON(w, http.StatusOK, RoomResponse{
		RoomID:      room.ID,
		Code:        room.Code,
		Language:    room.Language,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
		ActiveUsers: a.hub.ConnCount(roomID),
	})
}

func (a *API) deleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	err := a.store.Delete(roomID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("room", roomID).Msg("failed to delete room")
		writeError(w, http.StatusInternalServerError, "Failed to delete room")
		return
	}

	// Drop the live side too: cached state and open connections.
	a.registry.Drop(roomID)
	a.hub.CloseRoom(roomID)

	w.WriteHeader(http.StatusNoContent)
}

type SnapshotResponse struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *API) listSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	if _, err := a.store.Load(roomID); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get room")
		return
	}

	snapshots, err := a.store.ListSnapshots(roomID, 50)
	if err != nil {
		logging.Error().Err(err).Str("room", roomID).Msg("failed to list snapshots")
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	response := make([]SnapshotResponse, len(snapshots))
	for i, snap := range snapshots {
		response[i] = SnapshotResponse{
			ID:        snap.ID,
			RoomID:    snap.RoomID,
			Code:      snap.Code,
			CreatedAt: snap.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": response,
		"count":     len(response),
	})
}

// Autocomplete

type AutocompleteRequest struct {
	Code           string `json:"code"`
	CursorPosition int    `json:"cursorPosition"`
	Language       string `json:"language"`
}

func (a *API) autocompleteHandler(w http.ResponseWriter, r *http.Request) {
	var req AutocompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.CursorPosition < 0 {
		writeError(w, http.StatusBadRequest, "Cursor position must not be negative")
		return
	}
	if req.CursorPosition > len(req.Code) {
		writeError(w, http.StatusBadRequest, "Cursor position exceeds code length")
		return
	}
	if req.Language == "" {
		req.Language = "python"
	}

	writeJSON(w, http.StatusOK, autocomplete.Suggest(req.Code, req.CursorPosition, req.Language))
}
