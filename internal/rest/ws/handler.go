package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/broadcast"
	"github.com/Icerzack/wordlobby/internal/room"
)

const cleanupTimeout = 5 * time.Second

// Rooms is the part of the room service a session drives.
type Rooms interface {
	CheckAuth(ctx context.Context, roomID, userID string) (bool, error)
	HasStarted(ctx context.Context, roomID string) (bool, error)
	Start(ctx context.Context, roomID string) (bool, error)
	Leave(ctx context.Context, roomID, userID string) (bool, error)
	Reap(ctx context.Context, roomID string) error
}

// Registry is the broadcast registry sessions register with.
type Registry interface {
	Register(roomID string, observer broadcast.Observer)
	Unregister(roomID string, observer broadcast.Observer) bool
	ReapIfEmpty(ctx context.Context, roomID string, reap broadcast.ReapFunc) (bool, error)
}

// Verifier validates a bearer token and returns its user id.
type Verifier interface {
	Verify(token string) (string, error)
}

type WebSocketHandler struct {
	// upgrader is used to upgrade the HTTP connection to a WebSocket connection
	upgrader *websocket.Upgrader

	rooms    Rooms
	registry Registry
	tokens   Verifier

	logger *zap.Logger
}

func NewWebSocketHandler(rooms Rooms, registry Registry, tokens Verifier, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		rooms:    rooms,
		registry: registry,
		tokens:   tokens,
		logger:   logger,
	}
}

// Handle serves /room-ws/{roomID}. The session is authenticated before the upgrade;
// a rejected session is upgraded only to receive its closure code.
func (ws *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	userID, code, reason := ws.authenticate(r, roomID)
	if code != 0 {
		ws.reject(w, r, code, reason)
		return
	}

	// Registering before the handshake completes means the client cannot miss an event
	// published after it observed a successful connect.
	client := newClient(roomID, userID)
	ws.registry.Register(roomID, client)

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("Failed to upgrade connection", zap.Error(err))
		ws.registry.Unregister(roomID, client)
		return
	}
	client.attach(conn)
	ws.logger.Info("Connection opened", zap.String("roomID", roomID), zap.String("userID", userID))

	ws.readLoop(client)
	ws.cleanup(client)
}

func (ws *WebSocketHandler) authenticate(r *http.Request, roomID string) (string, int, string) {
	token := bearerToken(r)
	if token == "" {
		return "", websocket.ClosePolicyViolation, "missing credentials"
	}
	userID, err := ws.tokens.Verify(token)
	if err != nil {
		ws.logger.Debug("Failed to validate token", zap.Error(err))
		return "", websocket.CloseUnsupportedData, "could not validate credentials"
	}
	ok, err := ws.rooms.CheckAuth(r.Context(), roomID, userID)
	if err != nil {
		ws.logger.Error("Failed to check room binding", zap.String("roomID", roomID), zap.Error(err))
		return "", websocket.CloseInternalServerErr, "internal error"
	}
	if !ok {
		return "", websocket.ClosePolicyViolation, "user is not in this room"
	}
	return userID, 0, ""
}

func (ws *WebSocketHandler) reject(w http.ResponseWriter, r *http.Request, code int, reason string) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait),
	)
	ws.logger.Info("Connection rejected", zap.Int("code", code), zap.String("reason", reason))
}

// readLoop blocks on the connection until it fails or the peer closes it.
func (ws *WebSocketHandler) readLoop(client *Client) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.logger.Debug("Connection lost", zap.String("userID", client.userID), zap.Error(err))
			}
			return
		}
		ws.messageHandler(client, msg)
	}
}

func (ws *WebSocketHandler) messageHandler(client *Client, msg []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	started, err := ws.rooms.HasStarted(ctx, client.roomID)
	if err != nil {
		ws.logger.Error("Failed to read room state", zap.String("roomID", client.roomID), zap.Error(err))
		return
	}
	if started {
		return
	}

	op, err := messageDefiner(msg)
	if err != nil {
		ws.logger.Debug("Failed to define message", zap.Error(err))
		return
	}

	switch op {
	case OpStart:
		ws.logger.Info("Received start", zap.String("roomID", client.roomID), zap.String("userID", client.userID))
		_, err := ws.rooms.Start(ctx, client.roomID)
		if errors.Is(err, room.ErrConflict) {
			ws.sendError(client, "Another user has already started the game, please retry")
			return
		}
		if err != nil {
			ws.logger.Error("Failed to start game", zap.String("roomID", client.roomID), zap.Error(err))
		}
	default:
		ws.logger.Debug("Ignored message", zap.String("op", op))
	}
}

func (ws *WebSocketHandler) sendError(client *Client, detail string) {
	msg, err := encodeError(detail)
	if err != nil {
		return
	}
	if err := client.enqueue(msg); err != nil {
		ws.logger.Debug("Failed to send error", zap.String("userID", client.userID), zap.Error(err))
	}
}

// cleanup runs unregister, leave, close and reap in that order. Store failures are
// logged; the transport is closed regardless.
func (ws *WebSocketHandler) cleanup(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	empty := ws.registry.Unregister(client.roomID, client)

	if _, err := ws.rooms.Leave(ctx, client.roomID, client.userID); err != nil {
		ws.logger.Error("Failed to leave room", zap.String("roomID", client.roomID),
			zap.String("userID", client.userID), zap.Error(err))
	}

	client.close()
	ws.logger.Info("Connection closed", zap.String("roomID", client.roomID), zap.String("userID", client.userID))

	if !empty {
		return
	}
	if _, err := ws.registry.ReapIfEmpty(ctx, client.roomID, ws.rooms.Reap); err != nil {
		ws.logger.Error("Failed to reap room", zap.String("roomID", client.roomID), zap.Error(err))
	}
}

// bearerToken reads the Authorization header, falling back to the token query parameter
// for browser clients that cannot set headers on a WebSocket handshake.
func bearerToken(r *http.Request) string {
	if token, ok := ParseBearer(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

// ParseBearer extracts the credentials of an "Authorization: Bearer <token>" header.
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}
