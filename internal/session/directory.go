// Package session maps opaque session nonces to registered display names.
// The HTTP layer registers players here before they may open a room
// websocket; the game engine only ever reads from it.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MaxNameLength is the maximum UTF-8 byte length of a display name.
const MaxNameLength = 50

// validateName trims whitespace from s and returns the trimmed string, or
// an error if the result is empty or exceeds MaxNameLength bytes.
func validateName(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("name must not be empty")
	case len(s) > MaxNameLength:
		return "", fmt.Errorf("name must not exceed %d characters", MaxNameLength)
	}
	return s, nil
}

// Directory is the process-wide session-id → display-name mapping.
// Safe for parallel access.
type Directory struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{names: make(map[string]string)}
}

// Register validates name, mints a fresh session nonce for it, and returns
// the nonce.
func (d *Directory) Register(name string) (string, error) {
	name, err := validateName(name)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	d.mu.Lock()
	d.names[id] = name
	total := len(d.names)
	d.mu.Unlock()

	slog.Info("session registered", "session", id, "name", name, "total_sessions", total)
	return id, nil
}

// Rename updates the display name for an existing session. It reports
// false when the session is unknown.
func (d *Directory) Rename(id, name string) (bool, error) {
	name, err := validateName(name)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.names[id]; !ok {
		return false, nil
	}
	d.names[id] = name
	return true, nil
}

// NameFor resolves a session nonce to its display name.
func (d *Directory) NameFor(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[id]
	return name, ok
}

// Len returns the number of registered sessions.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}
