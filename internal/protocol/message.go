// Package protocol defines the JSON command envelopes exchanged between
// game clients and the server over a room websocket, plus the close codes
// the server uses when it hangs up on a link.
//
// Clients send only text frames. The server sends text frames for all
// commands and exactly one binary frame immediately after each SONG_DATA
// announcement; the binary frame carries the raw audio bytes for the
// announced round.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client → server command tags.
const (
	CmdStart          = "START"
	CmdNext           = "NEXT"
	CmdBufferComplete = "BUFFER_COMPLETE"
	CmdGuess          = "GUESS"
)

// Server → client command tags.
const (
	CmdRoomConfig   = "ROOM_CONFIG"
	CmdRoomState    = "ROOM_STATE"
	CmdSongData     = "SONG_DATA"
	CmdPlayerJoined = "PLAYER_JOINED"
	CmdPlayerLeft   = "PLAYER_LEFT"
)

// Phase tags carried in RoomState.State.
const (
	PhaseLobby     = "LOBBY"
	PhaseLoading   = "LOADING"
	PhaseBuffering = "BUFFERING"
	PhasePlaying   = "PLAYING"
	PhaseReviewing = "REVIEWING"
	PhaseFinished  = "FINISHED"
)

// ClientCommand is the envelope for every client-originated text frame.
// Round is only meaningful for BUFFER_COMPLETE and GUESS; unknown command
// tags must be ignored by the receiver for forward compatibility.
type ClientCommand struct {
	Type  string `json:"type"`
	Round int    `json:"round"`
	Guess string `json:"guess,omitempty"`
}

// ServerCommand is the envelope for every server-originated text frame.
// Exactly one of the payload fields is set, matching Type.
type ServerCommand struct {
	Type      string      `json:"type"`
	Config    *RoomConfig `json:"config,omitempty"`
	State     *RoomState  `json:"state,omitempty"`
	Round     *int        `json:"round,omitempty"`      // SONG_DATA
	SizeBytes int64       `json:"size_bytes,omitempty"` // SONG_DATA: length of the following binary frame
	Player    *PlayerInfo `json:"player,omitempty"`     // PLAYER_JOINED / PLAYER_LEFT
}

// RoomConfig is the wire form of a room's configuration.
// All durations are whole seconds.
type RoomConfig struct {
	PlayTime   int `json:"play_time"`
	GuessTime  int `json:"guess_time"`
	ReviewTime int `json:"review_time"`
	Rounds     int `json:"rounds"`
	MaxPlayers int `json:"max_players"`
}

// PlayerInfo is a public view of one player in a room.
type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host bool   `json:"host"`
}

// RoomState is the public snapshot of a room, tagged by State.
// Players is present in every phase. Round is meaningful from BUFFERING
// onward. Set-valued fields are encoded as sorted slices so snapshots are
// deterministic on the wire.
type RoomState struct {
	State   string       `json:"state"`
	Players []PlayerInfo `json:"players"`

	Round      int               `json:"round,omitempty"`
	RoundStart int64             `json:"round_start,omitempty"` // Unix ms; PLAYING only
	Prompt     string            `json:"prompt,omitempty"`      // PLAYING, REVIEWING
	Solution   string            `json:"solution,omitempty"`    // REVIEWING only
	Ready      []string          `json:"ready,omitempty"`       // BUFFERING: sessions that acked the round
	Guessed    []string          `json:"guessed,omitempty"`     // PLAYING: sessions with a stored guess
	Guesses    map[string]string `json:"guesses,omitempty"`     // REVIEWING: the stored guess texts
	Correct    []string          `json:"correct,omitempty"`     // REVIEWING: sessions that scored
	Scores     map[string]int    `json:"scores,omitempty"`      // BUFFERING onward
}

// NewSongData builds the SONG_DATA announcement for one round. The binary
// frame that immediately follows it must be exactly sizeBytes long.
func NewSongData(round int, sizeBytes int64) ServerCommand {
	r := round
	return ServerCommand{Type: CmdSongData, Round: &r, SizeBytes: sizeBytes}
}

// DecodeClient parses one client text frame.
func DecodeClient(data []byte) (ClientCommand, error) {
	var cmd ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return ClientCommand{}, fmt.Errorf("decode client command: %w", err)
	}
	if cmd.Type == "" {
		return ClientCommand{}, fmt.Errorf("decode client command: missing type tag")
	}
	return cmd, nil
}

// EncodeServer serializes one server command for a text frame.
func EncodeServer(cmd ServerCommand) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode server command: %w", err)
	}
	return data, nil
}
