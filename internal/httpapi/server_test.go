package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blacksmithgu/amadeus/internal/game"
	"github.com/blacksmithgu/amadeus/internal/protocol"
	"github.com/blacksmithgu/amadeus/internal/session"
	"github.com/blacksmithgu/amadeus/internal/ws"
)

type stubLibrary struct{}

func (stubLibrary) BuildQuiz(_ context.Context, _ int) (*game.Quiz, error) {
	return &game.Quiz{Questions: []game.Question{
		{Audio: "a0", Prompt: "Artist Zero", Solution: "Song Zero"},
	}}, nil
}

func (stubLibrary) Audio(_ context.Context, handle game.AudioHandle) ([]byte, error) {
	return []byte("bytes-" + string(handle)), nil
}

func startTestServer(t *testing.T) (*game.Registry, *session.Directory, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	sessions := session.NewDirectory()
	rooms := game.NewRegistry(ctx, game.DefaultConfiguration(), stubLibrary{}, sessions)
	t.Cleanup(func() {
		rooms.Shutdown()
		cancel()
	})

	server := New(rooms, sessions)
	httpServer := httptest.NewServer(server.Echo())
	t.Cleanup(httpServer.Close)
	return rooms, sessions, httpServer
}

func TestHealth(t *testing.T) {
	_, _, srv := startTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

func TestIndexServesRegistrationForm(t *testing.T) {
	_, _, srv := startTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(buf.String(), `action="/register"`) {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, buf.String())
	}
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestRegisterSetsSessionCookie(t *testing.T) {
	_, sessions, srv := startTestServer(t)

	resp, err := noRedirectClient().PostForm(srv.URL+"/register", url.Values{"name": {"Alice"}})
	if err != nil {
		t.Fatalf("post register: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/rooms" {
		t.Fatalf("location = %q", loc)
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == ws.SessionCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("session cookie missing")
	}
	if name, ok := sessions.NameFor(cookie.Value); !ok || name != "Alice" {
		t.Fatalf("session resolves to %q, %v", name, ok)
	}
}

func TestRegisterRejectsBadName(t *testing.T) {
	_, _, srv := startTestServer(t)

	resp, err := noRedirectClient().PostForm(srv.URL+"/register", url.Values{"name": {"   "}})
	if err != nil {
		t.Fatalf("post register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRoomsAPIListsRooms(t *testing.T) {
	rooms, _, srv := startTestServer(t)

	resp, err := http.Get(srv.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("get rooms: %v", err)
	}
	var listings []game.RoomListing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(listings) != 0 {
		t.Fatalf("listings = %v, want empty", listings)
	}

	rooms.GetOrCreate("lounge")
	resp, err = http.Get(srv.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("get rooms: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listings) != 1 || listings[0].ID != "lounge" {
		t.Fatalf("listings = %v", listings)
	}
}

func TestRoomPageServesClient(t *testing.T) {
	_, _, srv := startTestServer(t)

	resp, err := http.Get(srv.URL + "/room/lounge")
	if err != nil {
		t.Fatalf("get room page: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(buf.String(), "Room lounge") {
		t.Fatalf("body = %s", buf.String())
	}
}

func TestRoomQRServesPNG(t *testing.T) {
	_, _, srv := startTestServer(t)

	resp, err := http.Get(srv.URL + "/room/lounge/qr")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatal("response is not a png")
	}
}

func TestRoomEndpointUpgradesWebsockets(t *testing.T) {
	_, sessions, srv := startTestServer(t)

	id, err := sessions.Register("Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/room/lounge"
	header := http.Header{}
	header.Set("Cookie", ws.SessionCookie+"="+id)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(4 * time.Second))
	var msg protocol.ServerCommand
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != protocol.CmdRoomConfig {
		t.Fatalf("first frame = %+v, want ROOM_CONFIG", msg)
	}
}
