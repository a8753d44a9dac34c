// Package library is the SQLite-backed song catalog. Audio bytes live as
// files under a dedicated directory; the database holds metadata plus the
// queue the external downloader works through. The game engine consumes it
// read-only, as a quiz source and an audio byte resolver.
package library

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hajimehoshi/go-mp3"
	_ "modernc.org/sqlite"

	"github.com/blacksmithgu/amadeus/internal/game"
)

// ErrSongNotFound is returned when no song exists for an ID.
var ErrSongNotFound = errors.New("song not found")

// ErrEmptyCatalog is returned when a quiz is requested from a catalog with
// no songs.
var ErrEmptyCatalog = errors.New("song catalog is empty")

// Song is one catalog entry.
type Song struct {
	ID         string
	Title      string
	Artist     string
	SourceURL  string
	DiskName   string
	SizeBytes  int64
	DurationMS int64
	AddedAt    time.Time
}

// Store persists the song catalog and download queue in SQLite, with audio
// bytes stored as files under audioDir.
type Store struct {
	db       *sql.DB
	audioDir string
}

// Open opens (or creates) the catalog database and audio directory, and
// runs migrations.
func Open(dbPath, audioDir string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	audioDir = strings.TrimSpace(audioDir)
	if audioDir == "" {
		audioDir = filepath.Join(filepath.Dir(dbPath), "audio")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	s := &Store{db: db, audioDir: audioDir}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("song library opened", "db", dbPath, "audio_dir", audioDir)
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	disk_name TEXT NOT NULL UNIQUE,
	size_bytes INTEGER NOT NULL CHECK(size_bytes >= 0),
	duration_ms INTEGER NOT NULL DEFAULT 0,
	added_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_songs_added_at ON songs(added_at_unix_ms);

CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued' CHECK(status IN ('queued','completed','failed')),
	error TEXT NOT NULL DEFAULT '',
	requested_at_unix_ms INTEGER NOT NULL,
	completed_at_unix_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status, requested_at_unix_ms);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("sqlite migrations applied")
	return nil
}

// AddSong stores audio bytes on disk and records catalog metadata. The MP3
// duration probe is best-effort; unparseable audio gets duration 0.
func (s *Store) AddSong(ctx context.Context, title, artist, sourceURL string, audio []byte) (Song, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Song{}, fmt.Errorf("song title is required")
	}
	if len(audio) == 0 {
		return Song{}, fmt.Errorf("song audio is required")
	}

	song := Song{
		ID:         uuid.NewString(),
		Title:      title,
		Artist:     strings.TrimSpace(artist),
		SourceURL:  strings.TrimSpace(sourceURL),
		SizeBytes:  int64(len(audio)),
		DurationMS: probeDurationMS(audio),
		AddedAt:    time.Now().UTC(),
	}
	song.DiskName = song.ID + ".mp3"

	if err := os.WriteFile(filepath.Join(s.audioDir, song.DiskName), audio, 0o644); err != nil {
		return Song{}, fmt.Errorf("write audio file: %w", err)
	}

	const q = `
INSERT INTO songs (id, title, artist, source_url, disk_name, size_bytes, duration_ms, added_at_unix_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`
	_, err := s.db.ExecContext(ctx, q,
		song.ID, song.Title, song.Artist, song.SourceURL,
		song.DiskName, song.SizeBytes, song.DurationMS, song.AddedAt.UnixMilli(),
	)
	if err != nil {
		_ = os.Remove(filepath.Join(s.audioDir, song.DiskName))
		return Song{}, fmt.Errorf("insert song: %w", err)
	}

	slog.Info("song added", "song_id", song.ID, "title", song.Title, "size", song.SizeBytes, "duration_ms", song.DurationMS)
	return song, nil
}

// Songs returns all catalog entries, newest first.
func (s *Store) Songs(ctx context.Context) ([]Song, error) {
	const q = `
SELECT id, title, artist, source_url, disk_name, size_bytes, duration_ms, added_at_unix_ms
FROM songs
ORDER BY added_at_unix_ms DESC, id
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query songs: %w", err)
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// SongByID returns one catalog entry.
func (s *Store) SongByID(ctx context.Context, id string) (Song, error) {
	const q = `
SELECT id, title, artist, source_url, disk_name, size_bytes, duration_ms, added_at_unix_ms
FROM songs
WHERE id = ?
`
	row := s.db.QueryRowContext(ctx, q, id)
	song, err := scanSong(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Song{}, ErrSongNotFound
		}
		return Song{}, err
	}
	return song, nil
}

// SongCount returns the number of songs in the catalog.
func (s *Store) SongCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count songs: %w", err)
	}
	return n, nil
}

// BuildQuiz assembles up to rounds questions from random catalog songs.
// Small catalogs yield shorter quizzes; an empty catalog is an error.
func (s *Store) BuildQuiz(ctx context.Context, rounds int) (*game.Quiz, error) {
	if rounds <= 0 {
		return nil, fmt.Errorf("quiz rounds must be positive, got %d", rounds)
	}

	const q = `
SELECT id, title, artist FROM songs
ORDER BY RANDOM()
LIMIT ?
`
	rows, err := s.db.QueryContext(ctx, q, rounds)
	if err != nil {
		return nil, fmt.Errorf("query quiz songs: %w", err)
	}
	defer rows.Close()

	var questions []game.Question
	for rows.Next() {
		var id, title, artist string
		if err := rows.Scan(&id, &title, &artist); err != nil {
			return nil, fmt.Errorf("scan quiz song: %w", err)
		}
		prompt := artist
		if prompt == "" {
			prompt = "Name this song"
		}
		questions = append(questions, game.Question{
			Audio:    game.AudioHandle(id),
			Prompt:   prompt,
			Solution: title,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz songs: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrEmptyCatalog
	}

	slog.Debug("quiz built", "rounds", len(questions), "requested", rounds)
	return &game.Quiz{Questions: questions}, nil
}

// Audio resolves a handle (song id) to the full audio bytes.
func (s *Store) Audio(ctx context.Context, handle game.AudioHandle) ([]byte, error) {
	song, err := s.SongByID(ctx, string(handle))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.audioDir, song.DiskName))
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return data, nil
}

func scanSong(row interface{ Scan(...any) error }) (Song, error) {
	var (
		song          Song
		addedAtUnixMS int64
	)
	err := row.Scan(
		&song.ID, &song.Title, &song.Artist, &song.SourceURL,
		&song.DiskName, &song.SizeBytes, &song.DurationMS, &addedAtUnixMS,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Song{}, err
		}
		return Song{}, fmt.Errorf("scan song: %w", err)
	}
	song.AddedAt = time.UnixMilli(addedAtUnixMS).UTC()
	return song, nil
}

// probeDurationMS decodes just enough MP3 structure to compute the track
// duration. go-mp3 reports PCM length as 16-bit stereo bytes.
func probeDurationMS(data []byte) int64 {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	if dec.SampleRate() <= 0 || dec.Length() <= 0 {
		return 0
	}
	return dec.Length() * 1000 / (int64(dec.SampleRate()) * 4)
}
