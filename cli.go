package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blacksmithgu/amadeus/internal/library"
)

// Catalog management subcommands. These open the same database the server
// uses, so they are meant to run while the server is stopped or against a
// copy.

func newSongsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "songs",
		Short: "Manage the song catalog.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all songs in the catalog.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := library.Open(cfg.db, cfg.audioDir)
			if err != nil {
				return err
			}
			defer store.Close()

			songs, err := store.Songs(cmd.Context())
			if err != nil {
				return err
			}
			if len(songs) == 0 {
				fmt.Println("No songs in the catalog.")
				return nil
			}
			for _, song := range songs {
				fmt.Printf("  %s  %-30s  %-20s  %8s  %s\n",
					song.ID, truncate(song.Title, 30), truncate(song.Artist, 20),
					humanize.Bytes(uint64(song.SizeBytes)),
					(time.Duration(song.DurationMS) * time.Millisecond).Round(time.Second))
			}
			fmt.Printf("%d songs\n", len(songs))
			return nil
		},
	})

	var artist, sourceURL string
	addCmd := &cobra.Command{
		Use:   "add <title> <mp3-file>",
		Short: "Add a song from a local MP3 file.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read audio file: %w", err)
			}

			store, err := library.Open(cfg.db, cfg.audioDir)
			if err != nil {
				return err
			}
			defer store.Close()

			song, err := store.AddSong(cmd.Context(), args[0], artist, sourceURL, audio)
			if err != nil {
				return err
			}
			fmt.Printf("Added %q (id=%s, %s)\n", song.Title, song.ID, humanize.Bytes(uint64(song.SizeBytes)))
			return nil
		},
	}
	addCmd.Flags().StringVar(&artist, "artist", "", "song artist, used as the round prompt")
	addCmd.Flags().StringVar(&sourceURL, "url", "", "where the song came from")
	cmd.AddCommand(addCmd)

	return cmd
}

func newDownloadsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "downloads",
		Short: "Manage the download queue for the external fetcher.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <url>",
		Short: "Queue a URL for download.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := library.Open(cfg.db, cfg.audioDir)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.EnqueueDownload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Queued download %d\n", id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the download queue, newest first.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := library.Open(cfg.db, cfg.audioDir)
			if err != nil {
				return err
			}
			defer store.Close()

			downloads, err := store.Downloads(cmd.Context())
			if err != nil {
				return err
			}
			if len(downloads) == 0 {
				fmt.Println("Download queue is empty.")
				return nil
			}
			for _, d := range downloads {
				line := fmt.Sprintf("  [%d] %-9s  %s", d.ID, d.Status, d.URL)
				if d.Error != "" {
					line += "  (" + d.Error + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	})

	return cmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
