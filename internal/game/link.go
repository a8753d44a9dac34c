package game

import "github.com/blacksmithgu/amadeus/internal/protocol"

// Link is one live websocket attached to a session, as seen by the room
// controller. Implementations must provide per-link send ordering: a
// SendAudio call emits the SONG_DATA announcement and its binary payload
// back to back with no other frames interleaved on that socket.
//
// Both send methods are best-effort and must never block the controller;
// a failed or overflowing send is fatal for the link, not for the room.
type Link interface {
	// Send queues one server command as a text frame.
	Send(cmd protocol.ServerCommand) error

	// SendAudio queues the SONG_DATA announcement for round followed by
	// one binary frame carrying data.
	SendAudio(round int, data []byte) error

	// Close closes the underlying socket with the given reason. It is
	// idempotent.
	Close(reason protocol.CloseReason)
}
