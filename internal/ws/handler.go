package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/blacksmithgu/amadeus/internal/game"
	"github.com/blacksmithgu/amadeus/internal/protocol"
	"github.com/blacksmithgu/amadeus/internal/session"
)

// SessionCookie carries the session nonce minted at registration.
const SessionCookie = "amadeus_session"

// Handler upgrades room websocket requests and runs each connection's read
// side until the socket or the room goes away.
type Handler struct {
	rooms    *game.Registry
	sessions *session.Directory
	upgrader websocket.Upgrader
}

// NewHandler wires a websocket handler over a room registry and session
// directory.
func NewHandler(rooms *game.Registry, sessions *session.Directory) *Handler {
	return &Handler{
		rooms:    rooms,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleRoom upgrades the request and attaches the caller to the room named
// in the path. Session problems are reported on the socket itself, after
// the upgrade, so the client always sees a close reason rather than an
// HTTP error.
func (h *Handler) HandleRoom(c echo.Context) error {
	roomID := c.Param("id")

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Debug("websocket upgrade failed", "room", roomID, "err", err)
		return nil
	}

	sessionID := h.resolveSession(c)
	if sessionID == "" {
		link := newPlayerLink("", conn)
		link.Close(*protocol.ViolatedPolicy("missing or unknown session"))
		return nil
	}

	h.serveConn(c.Request().Context(), conn, sessionID, roomID)
	return nil
}

// resolveSession extracts the session nonce from the request cookie and
// checks it is registered.
func (h *Handler) resolveSession(c echo.Context) string {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	if _, ok := h.sessions.NameFor(cookie.Value); !ok {
		return ""
	}
	return cookie.Value
}

func (h *Handler) serveConn(ctx context.Context, conn *websocket.Conn, sessionID, roomID string) {
	conn.SetReadLimit(maxClientFrameSize)

	link := newPlayerLink(sessionID, conn)
	// The writer must be draining before admission, since the room pushes
	// the config and state snapshots as part of accepting the connection.
	go link.writeLoop()

	room := h.rooms.GetOrCreate(roomID)
	if reason := room.Connect(ctx, sessionID, link); reason != nil {
		slog.Info("connection refused", "room", roomID, "session", sessionID, "code", reason.Code, "reason", reason.Text)
		link.Close(*reason)
		return
	}
	slog.Info("connection accepted", "room", roomID, "session", sessionID)

	defer func() {
		room.Disconnected(sessionID, link)
		link.Close(*protocol.GoingAway("connection closed"))
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("websocket read ended", "room", roomID, "session", sessionID, "err", err)
			return
		}
		if kind != websocket.TextMessage {
			slog.Debug("ignoring non-text frame", "room", roomID, "session", sessionID, "kind", kind)
			continue
		}
		cmd, err := protocol.DecodeClient(data)
		if err != nil {
			slog.Debug("ignoring malformed command", "room", roomID, "session", sessionID, "err", err)
			continue
		}
		room.HandleCommand(sessionID, cmd)
	}
}
