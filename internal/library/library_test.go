package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/blacksmithgu/amadeus/internal/game"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "test.db"), "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddAndFetchSong(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	audio := []byte("not really mp3 bytes")
	song, err := store.AddSong(ctx, "  Bohemian Rhapsody ", "Queen", "https://example.com/br", audio)
	if err != nil {
		t.Fatalf("add song: %v", err)
	}
	if song.ID == "" || song.Title != "Bohemian Rhapsody" || song.Artist != "Queen" {
		t.Fatalf("song = %+v", song)
	}
	if song.SizeBytes != int64(len(audio)) {
		t.Fatalf("size = %d, want %d", song.SizeBytes, len(audio))
	}
	// Unparseable audio probes to zero duration rather than failing.
	if song.DurationMS != 0 {
		t.Fatalf("duration = %d, want 0", song.DurationMS)
	}

	got, err := store.SongByID(ctx, song.ID)
	if err != nil {
		t.Fatalf("song by id: %v", err)
	}
	if got.Title != song.Title || got.DiskName != song.DiskName {
		t.Fatalf("got = %+v", got)
	}

	data, err := store.Audio(ctx, game.AudioHandle(song.ID))
	if err != nil {
		t.Fatalf("audio: %v", err)
	}
	if string(data) != string(audio) {
		t.Fatalf("audio bytes = %q", data)
	}

	if n, err := store.SongCount(ctx); err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestAddSongValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AddSong(ctx, "", "Queen", "", []byte("x")); err == nil {
		t.Fatal("empty title accepted")
	}
	if _, err := store.AddSong(ctx, "Title", "Queen", "", nil); err == nil {
		t.Fatal("empty audio accepted")
	}
}

func TestSongByIDNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.SongByID(context.Background(), "missing"); !errors.Is(err, ErrSongNotFound) {
		t.Fatalf("err = %v, want ErrSongNotFound", err)
	}
	if _, err := store.Audio(context.Background(), "missing"); !errors.Is(err, ErrSongNotFound) {
		t.Fatalf("err = %v, want ErrSongNotFound", err)
	}
}

func TestBuildQuiz(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"One", "Two", "Three"} {
		if _, err := store.AddSong(ctx, title, "Artist "+title, "", []byte(title)); err != nil {
			t.Fatalf("add song: %v", err)
		}
	}

	quiz, err := store.BuildQuiz(ctx, 2)
	if err != nil {
		t.Fatalf("build quiz: %v", err)
	}
	if quiz.Len() != 2 {
		t.Fatalf("quiz len = %d, want 2", quiz.Len())
	}
	for _, q := range quiz.Questions {
		if q.Solution == "" || q.Prompt == "" || q.Audio == "" {
			t.Fatalf("question = %+v", q)
		}
		if _, err := store.Audio(ctx, q.Audio); err != nil {
			t.Fatalf("quiz audio unresolvable: %v", err)
		}
	}

	// Asking for more rounds than songs shortens the quiz.
	quiz, err = store.BuildQuiz(ctx, 10)
	if err != nil {
		t.Fatalf("build quiz: %v", err)
	}
	if quiz.Len() != 3 {
		t.Fatalf("quiz len = %d, want 3", quiz.Len())
	}
}

func TestBuildQuizEmptyCatalog(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.BuildQuiz(context.Background(), 5); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("err = %v, want ErrEmptyCatalog", err)
	}
	if _, err := store.BuildQuiz(context.Background(), 0); err == nil {
		t.Fatal("zero rounds accepted")
	}
}

func TestQuizPromptFallback(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := store.AddSong(ctx, "Instrumental", "", "", []byte("x")); err != nil {
		t.Fatalf("add song: %v", err)
	}
	quiz, err := store.BuildQuiz(ctx, 1)
	if err != nil {
		t.Fatalf("build quiz: %v", err)
	}
	if quiz.Questions[0].Prompt != "Name this song" {
		t.Fatalf("prompt = %q", quiz.Questions[0].Prompt)
	}
}

func TestOpenDefaultsAudioDir(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "nested", "test.db"), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(dir, "nested", "audio")); err != nil {
		t.Fatalf("audio dir missing: %v", err)
	}
}

func TestDownloadQueue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.NextQueued(ctx); !errors.Is(err, ErrNoQueuedDownloads) {
		t.Fatalf("err = %v, want ErrNoQueuedDownloads", err)
	}

	first, err := store.EnqueueDownload(ctx, "https://example.com/a.mp3")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := store.EnqueueDownload(ctx, "https://example.com/b.mp3")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.EnqueueDownload(ctx, "  "); err == nil {
		t.Fatal("blank url accepted")
	}

	next, err := store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("next queued: %v", err)
	}
	if next.ID != first || next.Status != DownloadQueued {
		t.Fatalf("next = %+v, want id %d", next, first)
	}

	if err := store.CompleteDownload(ctx, first); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.CompleteDownload(ctx, first); err == nil {
		t.Fatal("completed a download twice")
	}
	if err := store.FailDownload(ctx, second, "404"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	all, err := store.Downloads(ctx)
	if err != nil {
		t.Fatalf("downloads: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("downloads = %d, want 2", len(all))
	}
	byID := map[int64]Download{}
	for _, d := range all {
		byID[d.ID] = d
	}
	if byID[first].Status != DownloadCompleted || byID[first].CompletedAt.IsZero() {
		t.Fatalf("first = %+v", byID[first])
	}
	if byID[second].Status != DownloadFailed || byID[second].Error != "404" {
		t.Fatalf("second = %+v", byID[second])
	}

	if _, err := store.NextQueued(ctx); !errors.Is(err, ErrNoQueuedDownloads) {
		t.Fatalf("err = %v, want empty queue", err)
	}
}
