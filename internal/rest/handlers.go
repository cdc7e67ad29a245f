package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/auth"
	"github.com/Icerzack/wordlobby/internal/models"
	"github.com/Icerzack/wordlobby/internal/room"
)

type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
}

type JoinRoomRequest struct {
	UserName *string `json:"user_name"`
}

type JoinRoomResponse struct {
	Token string `json:"token"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

func (rest *Rest) createRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := rest.rooms.Create(r.Context())
	if err != nil {
		rest.writeError(w, err)
		return
	}
	rest.writeJSON(w, http.StatusOK, CreateRoomResponse{RoomID: roomID})
}

func (rest *Rest) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserName == nil {
		rest.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: "user_name is required"})
		return
	}

	_, token, err := rest.rooms.Join(r.Context(), chi.URLParam(r, "roomID"), *req.UserName)
	if err != nil {
		rest.writeError(w, err)
		return
	}
	rest.writeJSON(w, http.StatusOK, JoinRoomResponse{Token: token})
}

func (rest *Rest) getRoom(w http.ResponseWriter, r *http.Request) {
	lobby, err := rest.rooms.GetConfig(r.Context(), chi.URLParam(r, "roomID"), userFromContext(r.Context()))
	if err != nil {
		rest.writeError(w, err)
		return
	}
	rest.writeJSON(w, http.StatusOK, lobby)
}

func (rest *Rest) updateRoom(w http.ResponseWriter, r *http.Request) {
	// Fields missing from the body keep their default value.
	config := models.DefaultGameConfig()
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		rest.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: "invalid game config"})
		return
	}

	updated, err := rest.rooms.UpdateConfig(r.Context(), chi.URLParam(r, "roomID"), userFromContext(r.Context()), config)
	if err != nil {
		rest.writeError(w, err)
		return
	}
	rest.writeJSON(w, http.StatusOK, updated)
}

// writeError maps the room and auth error taxonomy onto HTTP statuses.
func (rest *Rest) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrNotFound):
		rest.writeJSON(w, http.StatusNotFound, ErrorResponse{Detail: err.Error()})
	case errors.Is(err, room.ErrForbidden):
		rest.writeJSON(w, http.StatusForbidden, ErrorResponse{Detail: "Your operation is not allowed"})
	case errors.Is(err, room.ErrConflict):
		rest.writeJSON(w, http.StatusConflict, ErrorResponse{Detail: err.Error()})
	case errors.Is(err, auth.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", "Bearer")
		rest.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Detail: "Could not validate credentials"})
	default:
		rest.config.Logger.Error("Request failed", zap.Error(err))
		rest.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: "internal error"})
	}
}

func (rest *Rest) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rest.config.Logger.Debug("Failed to write response", zap.Error(err))
	}
}
