// Package httpapi is the Echo application fronting the game engine: player
// registration, room listings, the room websocket endpoint, and a QR share
// image per room.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/skip2/go-qrcode"

	"github.com/blacksmithgu/amadeus/internal/game"
	"github.com/blacksmithgu/amadeus/internal/session"
	"github.com/blacksmithgu/amadeus/internal/ws"
)

// qrSize is the square pixel size of generated share codes, sized for phone
// cameras.
const qrSize = 320

// Server is the Echo application.
type Server struct {
	echo     *echo.Echo
	rooms    *game.Registry
	sessions *session.Directory
	wsRooms  *ws.Handler
}

// New constructs an Echo app with the registration, room, and websocket
// routes.
func New(rooms *game.Registry, sessions *session.Directory) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		rooms:    rooms,
		sessions: sessions,
		wsRooms:  ws.NewHandler(rooms, sessions),
	}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/", s.handleIndex)
	s.echo.POST("/register", s.handleRegister)
	s.echo.GET("/rooms", s.handleRoomsPage)
	s.echo.GET("/api/rooms", s.handleRoomsAPI)
	s.echo.GET("/room/:id", s.handleRoom)
	s.echo.GET("/room/:id/qr", s.handleRoomQR)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	return s.run(ctx, func() error { return s.echo.Start(addr) })
}

// RunTLS is Run over TLS with the given certificate pair.
func (s *Server) RunTLS(ctx context.Context, addr, certFile, keyFile string) error {
	return s.run(ctx, func() error { return s.echo.StartTLS(addr, certFile, keyFile) })
}

func (s *Server) run(ctx context.Context, start func() error) error {
	errCh := make(chan error, 1)
	go func() {
		err := start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Rooms    int    `json:"rooms"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:   "ok",
		Rooms:    s.rooms.RoomCount(),
		Sessions: s.sessions.Len(),
	})
}

func (s *Server) handleIndex(c echo.Context) error {
	return renderIndex(c)
}

// handleRegister mints a session for the submitted display name, drops it in
// a cookie, and sends the player to the room list.
func (s *Server) handleRegister(c echo.Context) error {
	id, err := s.sessions.Register(c.FormValue("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	c.SetCookie(&http.Cookie{
		Name:     ws.SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusSeeOther, "/rooms")
}

func (s *Server) handleRoomsPage(c echo.Context) error {
	return renderRooms(c, s.rooms.List())
}

func (s *Server) handleRoomsAPI(c echo.Context) error {
	listings := s.rooms.List()
	if listings == nil {
		listings = []game.RoomListing{}
	}
	return c.JSON(http.StatusOK, listings)
}

// handleRoom serves both faces of a room URL: websocket upgrades attach to
// the game, plain browser requests get the client page.
func (s *Server) handleRoom(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "room id is required")
	}
	if websocket.IsWebSocketUpgrade(c.Request()) {
		return s.wsRooms.HandleRoom(c)
	}
	return renderRoom(c, id)
}

// handleRoomQR renders a PNG QR code pointing at the room page, for passing
// a phone around.
func (s *Server) handleRoomQR(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "room id is required")
	}

	r := c.Request()
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	url := fmt.Sprintf("%s://%s/room/%s", scheme, r.Host, id)

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "qr generation failed")
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
