package game

import "context"

// AudioHandle is an opaque reference to a playable audio snippet. The song
// library resolves it to a finite byte sequence; the engine never inspects
// the bytes.
type AudioHandle string

// Question is one round of a quiz: an audio snippet, the prompt shown while
// it plays, and the answer guesses are matched against.
type Question struct {
	Audio    AudioHandle
	Prompt   string
	Solution string
}

// Quiz is an immutable list of questions, loaded once per game.
type Quiz struct {
	Questions []Question
}

// Len returns the number of questions.
func (q *Quiz) Len() int {
	if q == nil {
		return 0
	}
	return len(q.Questions)
}

// SongLibrary is the engine's view of the song catalog. Implementations
// must be safe for parallel reads.
type SongLibrary interface {
	// BuildQuiz assembles up to rounds questions. It may return fewer when
	// the catalog is small, but never zero without an error.
	BuildQuiz(ctx context.Context, rounds int) (*Quiz, error)

	// Audio resolves a handle to the full audio bytes for one question.
	Audio(ctx context.Context, handle AudioHandle) ([]byte, error)
}

// SessionNamer resolves an opaque session id to a registered display name.
// It is the only identity source the engine consumes.
type SessionNamer interface {
	NameFor(sessionID string) (string, bool)
}
