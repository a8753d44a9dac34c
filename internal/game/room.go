// Package game implements the per-room real-time engine: a single-writer
// controller goroutine that owns all mutable room state, coordinates the
// connected links, times the rounds, and publishes status snapshots.
package game

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/blacksmithgu/amadeus/internal/protocol"
)

// RoomConfiguration is the per-game configuration. It is immutable once a
// game starts; rooms are seeded with the server-wide defaults.
type RoomConfiguration struct {
	PlayTime   time.Duration
	GuessTime  time.Duration
	ReviewTime time.Duration
	Rounds     int
	MaxPlayers int
}

// DefaultConfiguration returns the stock room configuration.
func DefaultConfiguration() RoomConfiguration {
	return RoomConfiguration{
		PlayTime:   20 * time.Second,
		GuessTime:  10 * time.Second,
		ReviewTime: 5 * time.Second,
		Rounds:     20,
		MaxPlayers: 8,
	}
}

// Wire converts the configuration to its wire form (whole seconds).
func (c RoomConfiguration) Wire() protocol.RoomConfig {
	return protocol.RoomConfig{
		PlayTime:   int(c.PlayTime / time.Second),
		GuessTime:  int(c.GuessTime / time.Second),
		ReviewTime: int(c.ReviewTime / time.Second),
		Rounds:     c.Rounds,
		MaxPlayers: c.MaxPlayers,
	}
}

// bufferKickFactor scales PlayTime into the fallback deadline after which a
// buffering round force-advances even though stragglers never acked.
const bufferKickFactor = 2

// Room is one game room. External components interact with it only by
// posting messages through the exported methods and by reading the
// published config/status snapshots; the controller goroutine is the sole
// mutator of the private state.
type Room struct {
	ID        string
	CreatedAt time.Time

	mbox    *mailbox
	library SongLibrary
	names   SessionNamer

	config    atomic.Pointer[RoomConfiguration]
	status    atomic.Pointer[protocol.RoomState]
	connCount atomic.Int32

	onTerminate func(*Room)
	ctx         context.Context
	cancel      context.CancelFunc

	// Controller-owned state. Only run() and its helpers touch anything
	// below this line.
	phase        string
	hostID       string
	connected    map[string]Link
	joinOrder    []string
	committed    map[string]struct{}
	bufferStatus map[string]map[int]struct{}
	scores       map[string]int
	guesses      map[string]string
	correct      map[string]struct{}
	quiz         *Quiz
	round        int
	roundStart   time.Time
	roundAudio   map[int][]byte
	roundTimer   *timerHandle
	reviewTimer  *timerHandle
	bufferTimer  *timerHandle
}

// NewRoom creates a room in the lobby phase and launches its controller.
// onTerminate is invoked exactly once, after the controller has stopped and
// every link has been closed.
func NewRoom(ctx context.Context, id string, cfg RoomConfiguration, library SongLibrary, names SessionNamer, onTerminate func(*Room)) *Room {
	ctx, cancel := context.WithCancel(ctx)
	r := &Room{
		ID:           id,
		CreatedAt:    time.Now(),
		mbox:         newMailbox(),
		library:      library,
		names:        names,
		onTerminate:  onTerminate,
		ctx:          ctx,
		cancel:       cancel,
		phase:        protocol.PhaseLobby,
		connected:    make(map[string]Link),
		committed:    make(map[string]struct{}),
		bufferStatus: make(map[string]map[int]struct{}),
		scores:       make(map[string]int),
		guesses:      make(map[string]string),
		correct:      make(map[string]struct{}),
		roundAudio:   make(map[int][]byte),
	}
	r.config.Store(&cfg)
	st := r.buildStatus()
	r.status.Store(&st)
	go r.run()
	slog.Info("room created", "room", id)
	return r
}

// Connect requests admission for a link and blocks until the controller
// replies or ctx is done. A nil result means the link is attached; any
// other result is the reason the link must be closed with.
func (r *Room) Connect(ctx context.Context, session string, link Link) *protocol.CloseReason {
	reply := make(chan *protocol.CloseReason, 1)
	if !r.mbox.post(incomingConn{session: session, link: link, reply: reply}) {
		return protocol.CannotAccept("room no longer exists")
	}
	select {
	case reason := <-reply:
		return reason
	case <-ctx.Done():
		return protocol.GoingAway("admission cancelled")
	}
}

// Disconnected reports that a link's read loop ended.
func (r *Room) Disconnected(session string, link Link) {
	r.mbox.post(closedConn{session: session, link: link})
}

// HandleCommand forwards one decoded client command into the mailbox.
// Unknown command tags are ignored for forward compatibility.
func (r *Room) HandleCommand(session string, cmd protocol.ClientCommand) {
	switch cmd.Type {
	case protocol.CmdStart:
		r.mbox.post(startGame{session: session})
	case protocol.CmdNext:
		r.mbox.post(nextRound{session: session})
	case protocol.CmdBufferComplete:
		r.mbox.post(bufferComplete{session: session, round: cmd.Round})
	case protocol.CmdGuess:
		r.mbox.post(playerGuess{session: session, round: cmd.Round, text: cmd.Guess})
	default:
		slog.Debug("ignoring unknown client command", "room", r.ID, "type", cmd.Type)
	}
}

// Shutdown tears the room down: every link is closed with GOING_AWAY and
// the controller terminates.
func (r *Room) Shutdown() {
	r.mbox.post(shutdownRoom{})
}

// Config returns the room configuration snapshot.
func (r *Room) Config() RoomConfiguration {
	return *r.config.Load()
}

// Status returns the most recently published status snapshot.
func (r *Room) Status() protocol.RoomState {
	return *r.status.Load()
}

// ConnectedCount returns the number of currently attached links.
func (r *Room) ConnectedCount() int {
	return int(r.connCount.Load())
}

func (r *Room) run() {
	shutdown := false
	for msg := range r.mbox.out {
		switch m := msg.(type) {
		case incomingConn:
			r.handleIncoming(m)
		case closedConn:
			r.handleClosed(m)
		case startGame:
			r.handleStart(m)
		case loadingDone:
			r.handleLoaded(m)
		case nextRound:
			r.handleNext(m)
		case bufferComplete:
			r.handleBufferComplete(m)
		case playerGuess:
			r.handleGuess(m)
		case roundTimeout:
			if r.phase == protocol.PhasePlaying && m.round == r.round {
				r.enterReviewing()
			}
		case reviewTimeout:
			if r.phase == protocol.PhaseReviewing && m.round == r.round {
				r.advanceRound()
			}
		case bufferTimeout:
			if r.phase == protocol.PhaseBuffering && m.round == r.round {
				slog.Info("buffer window expired, forcing advance", "room", r.ID, "round", m.round)
				r.enterPlaying()
			}
		case audioLoaded:
			r.handleAudio(m)
		case shutdownRoom:
			shutdown = true
		}
		if shutdown || (r.phase == protocol.PhaseFinished && len(r.connected) == 0) {
			break
		}
	}
	r.terminate()
}

func (r *Room) terminate() {
	r.cancel()
	r.roundTimer.cancel()
	r.reviewTimer.cancel()
	r.bufferTimer.cancel()
	for session, link := range r.connected {
		link.Close(*protocol.GoingAway("room terminating"))
		delete(r.connected, session)
	}
	r.connCount.Store(0)
	r.mbox.close()
	for msg := range r.mbox.out {
		// Release the mailbox pump. Late admission requests are refused;
		// everything else is dropped.
		if m, ok := msg.(incomingConn); ok {
			m.reply <- protocol.CannotAccept("room no longer exists")
		}
	}
	if r.onTerminate != nil {
		r.onTerminate(r)
	}
	slog.Info("room terminated", "room", r.ID)
}

// --- admission ---

func (r *Room) handleIncoming(m incomingConn) {
	if old, ok := r.connected[m.session]; ok {
		// Duplicate upgrade for the same session: the new link wins.
		old.Close(*protocol.GoingAway("superseded by a newer connection"))
		r.attach(m)
		return
	}

	if r.phase == protocol.PhaseLobby {
		if len(r.connected) >= r.config.Load().MaxPlayers {
			m.reply <- protocol.CannotAccept("room is full")
			return
		}
		if r.hostID == "" {
			r.hostID = m.session
		}
		r.attach(m)
		return
	}

	// Mid-game only committed players may (re)join.
	if _, ok := r.committed[m.session]; !ok {
		m.reply <- protocol.CannotAccept("room is not accepting new players")
		return
	}
	r.attach(m)
}

func (r *Room) attach(m incomingConn) {
	r.connected[m.session] = m.link
	if !r.seen(m.session) {
		r.joinOrder = append(r.joinOrder, m.session)
	}
	r.connCount.Store(int32(len(r.connected)))
	m.reply <- nil

	cfg := r.config.Load().Wire()
	if err := m.link.Send(protocol.ServerCommand{Type: protocol.CmdRoomConfig, Config: &cfg}); err != nil {
		slog.Debug("config send failed", "room", r.ID, "session", m.session, "err", err)
	}

	st := r.buildStatus()
	r.status.Store(&st)
	if err := m.link.Send(protocol.ServerCommand{Type: protocol.CmdRoomState, State: &st}); err != nil {
		slog.Debug("state send failed", "room", r.ID, "session", m.session, "err", err)
	}

	info := r.playerInfo(m.session)
	r.broadcastExcept(m.session, protocol.ServerCommand{Type: protocol.CmdPlayerJoined, Player: &info})
	r.broadcastExcept(m.session, protocol.ServerCommand{Type: protocol.CmdRoomState, State: &st})

	// A (re)join mid-round needs the current audio to resume playback.
	switch r.phase {
	case protocol.PhaseBuffering, protocol.PhasePlaying, protocol.PhaseReviewing:
		r.streamRound(r.round, m.session)
		if r.phase == protocol.PhasePlaying && r.round+1 < r.quiz.Len() {
			r.streamRound(r.round+1, m.session)
		}
	}

	slog.Info("player joined", "room", r.ID, "session", m.session, "phase", r.phase, "connected", len(r.connected))
}

func (r *Room) seen(session string) bool {
	for _, s := range r.joinOrder {
		if s == session {
			return true
		}
	}
	return false
}

func (r *Room) handleClosed(m closedConn) {
	cur, ok := r.connected[m.session]
	if !ok || cur != m.link {
		// A superseded link reporting in; its replacement stays.
		return
	}
	delete(r.connected, m.session)
	r.connCount.Store(int32(len(r.connected)))
	slog.Info("player left", "room", r.ID, "session", m.session, "phase", r.phase, "connected", len(r.connected))

	info := r.playerInfo(m.session)
	r.broadcast(protocol.ServerCommand{Type: protocol.CmdPlayerLeft, Player: &info})
	r.broadcastState()

	if r.phase == protocol.PhaseBuffering {
		// A straggler leaving may unblock the round.
		r.maybeAllBuffered()
	}
}

// --- phase machine ---

func (r *Room) handleStart(m startGame) {
	if r.phase != protocol.PhaseLobby || m.session != r.hostID || len(r.connected) == 0 {
		return
	}
	for session := range r.connected {
		r.committed[session] = struct{}{}
		r.scores[session] = 0
	}
	r.phase = protocol.PhaseLoading
	r.broadcastState()
	slog.Info("game starting", "room", r.ID, "players", len(r.committed))

	rounds := r.config.Load().Rounds
	go func() {
		quiz, err := r.library.BuildQuiz(r.ctx, rounds)
		r.mbox.post(loadingDone{quiz: quiz, err: err})
	}()
}

func (r *Room) handleLoaded(m loadingDone) {
	if r.phase != protocol.PhaseLoading {
		return
	}
	if m.err != nil || m.quiz.Len() == 0 {
		slog.Error("quiz load failed", "room", r.ID, "err", m.err)
		r.scores = make(map[string]int)
		r.enterFinished()
		return
	}
	r.quiz = m.quiz
	r.enterBuffering(0)
}

func (r *Room) handleNext(m nextRound) {
	if m.session != r.hostID {
		return
	}
	switch r.phase {
	case protocol.PhaseBuffering:
		r.enterPlaying()
	case protocol.PhasePlaying:
		r.enterReviewing()
	case protocol.PhaseReviewing:
		r.advanceRound()
	}
}

func (r *Room) enterBuffering(round int) {
	r.phase = protocol.PhaseBuffering
	r.round = round
	r.guesses = make(map[string]string)
	r.correct = make(map[string]struct{})
	for _, acked := range r.bufferStatus {
		for past := range acked {
			if past < round {
				delete(acked, past)
			}
		}
	}

	cfg := r.config.Load()
	r.bufferTimer.cancel()
	r.bufferTimer = r.schedule(bufferKickFactor*cfg.PlayTime, bufferTimeout{round: round})

	r.broadcastState()
	r.streamRound(round, "")
	// Prefetch acks from the previous round may already satisfy everyone.
	r.maybeAllBuffered()
}

func (r *Room) handleBufferComplete(m bufferComplete) {
	if _, ok := r.committed[m.session]; !ok {
		return
	}
	if m.round < 0 || (r.quiz != nil && m.round >= r.quiz.Len()) {
		return
	}
	acked := r.bufferStatus[m.session]
	if acked == nil {
		acked = make(map[int]struct{})
		r.bufferStatus[m.session] = acked
	}
	acked[m.round] = struct{}{}

	if r.phase == protocol.PhaseBuffering && m.round == r.round {
		r.broadcastState()
		r.maybeAllBuffered()
	}
}

func (r *Room) maybeAllBuffered() {
	if r.phase != protocol.PhaseBuffering {
		return
	}
	ready := 0
	for session := range r.connected {
		if _, ok := r.committed[session]; !ok {
			continue
		}
		if _, ok := r.bufferStatus[session][r.round]; !ok {
			return
		}
		ready++
	}
	if ready == 0 {
		return
	}
	r.enterPlaying()
}

func (r *Room) enterPlaying() {
	r.bufferTimer.cancel()
	r.phase = protocol.PhasePlaying
	r.roundStart = time.Now()

	cfg := r.config.Load()
	r.roundTimer.cancel()
	r.roundTimer = r.schedule(cfg.PlayTime+cfg.GuessTime, roundTimeout{round: r.round})

	if r.round+1 < r.quiz.Len() {
		r.streamRound(r.round+1, "")
	}
	r.broadcastState()
}

func (r *Room) handleGuess(m playerGuess) {
	if r.phase != protocol.PhasePlaying || m.round != r.round {
		return
	}
	if _, ok := r.committed[m.session]; !ok {
		return
	}
	// Overwrite: only the last guess before the round ends counts.
	r.guesses[m.session] = m.text
	r.broadcastState()
}

func (r *Room) enterReviewing() {
	r.roundTimer.cancel()
	r.phase = protocol.PhaseReviewing

	solution := r.quiz.Questions[r.round].Solution
	for session, guess := range r.guesses {
		if answerMatches(guess, solution) {
			r.correct[session] = struct{}{}
			r.scores[session]++
		}
	}

	cfg := r.config.Load()
	r.reviewTimer.cancel()
	r.reviewTimer = r.schedule(cfg.ReviewTime, reviewTimeout{round: r.round})
	r.broadcastState()
}

func (r *Room) advanceRound() {
	r.reviewTimer.cancel()
	if r.round+1 < r.quiz.Len() {
		r.enterBuffering(r.round + 1)
		return
	}
	r.enterFinished()
}

func (r *Room) enterFinished() {
	r.roundTimer.cancel()
	r.reviewTimer.cancel()
	r.bufferTimer.cancel()
	r.phase = protocol.PhaseFinished
	r.broadcastState()
	slog.Info("game finished", "room", r.ID, "scores", len(r.scores))
}

// answerMatches reports whether a guess hits the solution: trimmed,
// case-insensitive equality.
func answerMatches(guess, solution string) bool {
	return strings.EqualFold(strings.TrimSpace(guess), strings.TrimSpace(solution))
}

// --- audio streaming ---

// streamRound delivers the audio for one round, either from the in-room
// cache or via a short-lived fetch goroutine that posts back into the
// mailbox. An empty target streams to every connected link.
func (r *Room) streamRound(round int, target string) {
	if r.quiz == nil || round < 0 || round >= r.quiz.Len() {
		return
	}
	if data, ok := r.roundAudio[round]; ok {
		r.deliverAudio(round, data, target)
		return
	}
	handle := r.quiz.Questions[round].Audio
	go func() {
		data, err := r.library.Audio(r.ctx, handle)
		r.mbox.post(audioLoaded{round: round, data: data, err: err, target: target})
	}()
}

func (r *Room) handleAudio(m audioLoaded) {
	if m.err != nil {
		slog.Warn("audio fetch failed", "room", r.ID, "round", m.round, "err", m.err)
		return
	}
	r.roundAudio[m.round] = m.data
	if m.round < r.round || r.phase == protocol.PhaseFinished {
		return
	}
	r.deliverAudio(m.round, m.data, m.target)
}

func (r *Room) deliverAudio(round int, data []byte, target string) {
	if target != "" {
		if link, ok := r.connected[target]; ok {
			r.sendAudioTo(target, link, round, data)
		}
		return
	}
	for session, link := range r.connected {
		r.sendAudioTo(session, link, round, data)
	}
}

func (r *Room) sendAudioTo(session string, link Link, round int, data []byte) {
	if err := link.SendAudio(round, data); err != nil {
		slog.Warn("audio send failed, closing link", "room", r.ID, "session", session, "round", round, "err", err)
		link.Close(*protocol.ProtocolError("failed to send audio"))
	}
}

// --- status ---

func (r *Room) broadcastState() {
	st := r.buildStatus()
	r.status.Store(&st)
	r.broadcast(protocol.ServerCommand{Type: protocol.CmdRoomState, State: &st})
}

func (r *Room) broadcast(cmd protocol.ServerCommand) {
	r.broadcastExcept("", cmd)
}

func (r *Room) broadcastExcept(exceptSession string, cmd protocol.ServerCommand) {
	for session, link := range r.connected {
		if session == exceptSession {
			continue
		}
		if err := link.Send(cmd); err != nil {
			slog.Debug("broadcast send failed", "room", r.ID, "session", session, "type", cmd.Type, "err", err)
		}
	}
}

func (r *Room) buildStatus() protocol.RoomState {
	st := protocol.RoomState{
		State:   r.phase,
		Players: r.playerList(),
	}
	switch r.phase {
	case protocol.PhaseBuffering:
		st.Round = r.round
		st.Ready = r.readySet()
		st.Scores = copyScores(r.scores)
	case protocol.PhasePlaying:
		st.Round = r.round
		st.RoundStart = r.roundStart.UnixMilli()
		st.Prompt = r.quiz.Questions[r.round].Prompt
		st.Guessed = sortedKeys(r.guesses)
		st.Scores = copyScores(r.scores)
	case protocol.PhaseReviewing:
		st.Round = r.round
		st.Prompt = r.quiz.Questions[r.round].Prompt
		st.Solution = r.quiz.Questions[r.round].Solution
		st.Guesses = copyGuesses(r.guesses)
		st.Correct = sortedSet(r.correct)
		st.Scores = copyScores(r.scores)
	case protocol.PhaseFinished:
		st.Scores = copyScores(r.scores)
	}
	return st
}

// playerList returns every player that is connected or committed, in first
// join order, with host marking and display names resolved.
func (r *Room) playerList() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(r.joinOrder))
	for _, session := range r.joinOrder {
		_, conn := r.connected[session]
		_, comm := r.committed[session]
		if !conn && !comm {
			continue
		}
		out = append(out, r.playerInfo(session))
	}
	return out
}

func (r *Room) playerInfo(session string) protocol.PlayerInfo {
	name, ok := r.names.NameFor(session)
	if !ok || name == "" {
		name = "player-" + session
	}
	return protocol.PlayerInfo{ID: session, Name: name, Host: session == r.hostID}
}

func (r *Room) readySet() []string {
	out := make([]string, 0, len(r.bufferStatus))
	for session, acked := range r.bufferStatus {
		if _, ok := acked[r.round]; ok {
			out = append(out, session)
		}
	}
	sort.Strings(out)
	return out
}

func copyScores(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyGuesses(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(in map[string]string) []string {
	out := make([]string, 0, len(in))
	for k := range in {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSet(in map[string]struct{}) []string {
	out := make([]string, 0, len(in))
	for k := range in {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
