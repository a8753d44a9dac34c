package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Download statuses.
const (
	DownloadQueued    = "queued"
	DownloadCompleted = "completed"
	DownloadFailed    = "failed"
)

// ErrNoQueuedDownloads is returned when the queue has no pending entries.
var ErrNoQueuedDownloads = errors.New("no queued downloads")

// Download is one entry in the downloader's work queue.
type Download struct {
	ID          int64
	URL         string
	Status      string
	Error       string
	RequestedAt time.Time
	CompletedAt time.Time
}

// EnqueueDownload queues a URL for the external fetcher and returns the
// queue entry's ID.
func (s *Store) EnqueueDownload(ctx context.Context, url string) (int64, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return 0, fmt.Errorf("download url is required")
	}

	const q = `INSERT INTO downloads (url, requested_at_unix_ms) VALUES (?, ?)`
	result, err := s.db.ExecContext(ctx, q, url, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("enqueue download: %w", err)
	}
	id, _ := result.LastInsertId()
	slog.Info("download enqueued", "download_id", id, "url", url)
	return id, nil
}

// NextQueued returns the oldest queued download.
func (s *Store) NextQueued(ctx context.Context) (Download, error) {
	const q = `
SELECT id, url, status, error, requested_at_unix_ms, completed_at_unix_ms
FROM downloads
WHERE status = 'queued'
ORDER BY requested_at_unix_ms, id
LIMIT 1
`
	d, err := scanDownload(s.db.QueryRowContext(ctx, q))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Download{}, ErrNoQueuedDownloads
		}
		return Download{}, err
	}
	return d, nil
}

// CompleteDownload marks a queue entry as completed.
func (s *Store) CompleteDownload(ctx context.Context, id int64) error {
	return s.finishDownload(ctx, id, DownloadCompleted, "")
}

// FailDownload marks a queue entry as failed with a reason.
func (s *Store) FailDownload(ctx context.Context, id int64, reason string) error {
	return s.finishDownload(ctx, id, DownloadFailed, reason)
}

func (s *Store) finishDownload(ctx context.Context, id int64, status, reason string) error {
	const q = `
UPDATE downloads
SET status = ?, error = ?, completed_at_unix_ms = ?
WHERE id = ? AND status = 'queued'
`
	result, err := s.db.ExecContext(ctx, q, status, reason, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("finish download: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("download %d is not queued", id)
	}
	slog.Debug("download finished", "download_id", id, "status", status)
	return nil
}

// Downloads returns the whole queue, newest first.
func (s *Store) Downloads(ctx context.Context) ([]Download, error) {
	const q = `
SELECT id, url, status, error, requested_at_unix_ms, completed_at_unix_ms
FROM downloads
ORDER BY requested_at_unix_ms DESC, id DESC
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var out []Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDownload(row interface{ Scan(...any) error }) (Download, error) {
	var (
		d                        Download
		requestedMS, completedMS int64
	)
	err := row.Scan(&d.ID, &d.URL, &d.Status, &d.Error, &requestedMS, &completedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Download{}, err
		}
		return Download{}, fmt.Errorf("scan download: %w", err)
	}
	d.RequestedAt = time.UnixMilli(requestedMS).UTC()
	if completedMS > 0 {
		d.CompletedAt = time.UnixMilli(completedMS).UTC()
	}
	return d, nil
}
