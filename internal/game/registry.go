package game

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// RoomListing is the cheap public view of one room, assembled entirely from
// volatile snapshots so listings never block on a controller.
type RoomListing struct {
	ID         string    `json:"id"`
	Connected  int       `json:"connected"`
	MaxPlayers int       `json:"max_players"`
	Phase      string    `json:"phase"`
	CreatedAt  time.Time `json:"created_at"`
}

// Registry is the process-wide mapping from room id to live room. Rooms are
// created on demand by the first websocket upgrade for their id and remove
// themselves when their controller terminates.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	defaults RoomConfiguration
	library  SongLibrary
	names    SessionNamer
	ctx      context.Context
}

// NewRegistry creates an empty registry. ctx is the parent of every room's
// scope; cancelling it (via Shutdown) tears down all rooms.
func NewRegistry(ctx context.Context, defaults RoomConfiguration, library SongLibrary, names SessionNamer) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		defaults: defaults,
		library:  library,
		names:    names,
		ctx:      ctx,
	}
}

// GetOrCreate returns the live room for id, instantiating it and launching
// its controller on first use.
func (g *Registry) GetOrCreate(id string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[id]; ok {
		return room
	}
	room := NewRoom(g.ctx, id, g.defaults, g.library, g.names, g.remove)
	g.rooms[id] = room
	return room
}

// Get returns the live room for id, if any.
func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[id]
	return room, ok
}

// List returns a stable ordered snapshot of all live rooms.
func (g *Registry) List() []RoomListing {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	out := make([]RoomListing, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, RoomListing{
			ID:         room.ID,
			Connected:  room.ConnectedCount(),
			MaxPlayers: room.Config().MaxPlayers,
			Phase:      room.Status().State,
			CreatedAt:  room.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Shutdown tears down every live room. Rooms remove themselves as their
// controllers terminate.
func (g *Registry) Shutdown() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	for _, room := range rooms {
		room.Shutdown()
	}
	slog.Info("registry shutdown requested", "rooms", len(rooms))
}

func (g *Registry) remove(room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.rooms[room.ID]; ok && cur == room {
		delete(g.rooms, room.ID)
	}
}
