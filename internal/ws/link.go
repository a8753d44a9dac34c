// Package ws owns the websocket transport for game rooms: one PlayerLink
// per accepted connection, shuttling decoded client commands into a room
// controller and ordered server frames back out.
package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blacksmithgu/amadeus/internal/protocol"
)

const (
	writeTimeout = 5 * time.Second

	// sendQueueSize bounds outbound buffering per link. A client that
	// cannot drain this many frames is treated as dead.
	sendQueueSize = 64

	// maxClientFrameSize bounds inbound frames; clients only ever send
	// small JSON command envelopes.
	maxClientFrameSize = 1 << 12
)

// outbound is one unit of ordered work for the writer goroutine. When audio
// is non-nil the writer emits the SONG_DATA text frame and the binary frame
// back to back, with nothing interleaved.
type outbound struct {
	cmd   protocol.ServerCommand
	audio []byte
}

// PlayerLink owns one raw websocket connection on behalf of a session. All
// data frames are written by a single writer goroutine, which gives the
// link its per-socket send ordering guarantee.
type PlayerLink struct {
	session string
	conn    *websocket.Conn

	sendCh    chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func newPlayerLink(session string, conn *websocket.Conn) *PlayerLink {
	return &PlayerLink{
		session: session,
		conn:    conn,
		sendCh:  make(chan outbound, sendQueueSize),
		done:    make(chan struct{}),
	}
}

// Send queues one server command as a text frame.
func (l *PlayerLink) Send(cmd protocol.ServerCommand) error {
	return l.enqueue(outbound{cmd: cmd})
}

// SendAudio queues the SONG_DATA announcement for round followed by one
// binary frame carrying data.
func (l *PlayerLink) SendAudio(round int, data []byte) error {
	return l.enqueue(outbound{cmd: protocol.NewSongData(round, int64(len(data))), audio: data})
}

func (l *PlayerLink) enqueue(out outbound) error {
	select {
	case <-l.done:
		return fmt.Errorf("link closed")
	default:
	}
	select {
	case l.sendCh <- out:
		return nil
	default:
		// The client is not draining its socket; overflow is fatal.
		l.Close(*protocol.ProtocolError("outbound buffer overflow"))
		return fmt.Errorf("outbound buffer overflow")
	}
}

// Close sends a close frame with the given reason and tears the socket
// down. Idempotent.
func (l *PlayerLink) Close(reason protocol.CloseReason) {
	l.closeOnce.Do(func() {
		close(l.done)
		msg := websocket.FormatCloseMessage(reason.Code, reason.Text)
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		_ = l.conn.Close()
		slog.Debug("link closed", "session", l.session, "code", reason.Code, "reason", reason.Text)
	})
}

func (l *PlayerLink) writeLoop() {
	for {
		select {
		case <-l.done:
			return
		case out := <-l.sendCh:
			if err := l.write(out); err != nil {
				slog.Debug("link write failed", "session", l.session, "type", out.cmd.Type, "err", err)
				l.Close(*protocol.ProtocolError("write failed"))
				return
			}
		}
	}
}

func (l *PlayerLink) write(out outbound) error {
	data, err := protocol.EncodeServer(out.cmd)
	if err != nil {
		return err
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if out.audio == nil {
		return nil
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return l.conn.WriteMessage(websocket.BinaryMessage, out.audio)
}
