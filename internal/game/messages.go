package game

import "github.com/blacksmithgu/amadeus/internal/protocol"

// roomMsg is a message in a room controller's mailbox. All room state is
// mutated by the controller goroutine alone, in mailbox FIFO order.
type roomMsg interface{ roomMsg() }

// incomingConn asks the controller to admit a link for a session. The
// controller completes reply exactly once: nil means admitted, otherwise
// the link must be closed with the carried reason.
type incomingConn struct {
	session string
	link    Link
	reply   chan *protocol.CloseReason
}

// closedConn reports that a link's read loop ended. It is link-specific so
// a stale report for a superseded link does not remove its replacement.
type closedConn struct {
	session string
	link    Link
}

// startGame is the host's request to leave the lobby.
type startGame struct{ session string }

// loadingDone carries the result of the background quiz load.
type loadingDone struct {
	quiz *Quiz
	err  error
}

// nextRound is the host's request to force-advance the current phase.
type nextRound struct{ session string }

// bufferComplete acknowledges that a client decoded the audio for round.
type bufferComplete struct {
	session string
	round   int
}

// playerGuess stores a player's answer for round; the last one wins.
type playerGuess struct {
	session string
	round   int
	text    string
}

// roundTimeout ends the playing window for round. Stale rounds are ignored.
type roundTimeout struct{ round int }

// reviewTimeout ends the review window for round. Stale rounds are ignored.
type reviewTimeout struct{ round int }

// bufferTimeout force-advances a buffering round whose stragglers never
// acked, as if the host had pressed NEXT.
type bufferTimeout struct{ round int }

// audioLoaded delivers fetched audio bytes back to the controller. An empty
// target streams to every connected link; otherwise only to that session.
type audioLoaded struct {
	round  int
	data   []byte
	err    error
	target string
}

// shutdownRoom tears the room down immediately (registry shutdown).
type shutdownRoom struct{}

func (incomingConn) roomMsg()   {}
func (closedConn) roomMsg()     {}
func (startGame) roomMsg()      {}
func (loadingDone) roomMsg()    {}
func (nextRound) roomMsg()      {}
func (bufferComplete) roomMsg() {}
func (playerGuess) roomMsg()    {}
func (roundTimeout) roomMsg()   {}
func (reviewTimeout) roomMsg()  {}
func (bufferTimeout) roomMsg()  {}
func (audioLoaded) roomMsg()    {}
func (shutdownRoom) roomMsg()   {}
