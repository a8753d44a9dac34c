package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blacksmithgu/amadeus/internal/game"
)

// Config holds every serve-time knob. Each flag is also settable through an
// AMADEUS_ environment variable.
type Config struct {
	bind     string
	port     int
	db       string
	audioDir string
	tlsCert  string
	tlsKey   string
	debug    bool

	playTime   time.Duration
	guessTime  time.Duration
	reviewTime time.Duration
	rounds     int
	maxPlayers int

	metricsInterval time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.playTime <= 0 || c.guessTime < 0 || c.reviewTime <= 0 {
		return errors.New("round timers must be positive")
	}
	if c.rounds < 1 {
		return fmt.Errorf("invalid round count: %d", c.rounds)
	}
	if c.maxPlayers < 1 {
		return fmt.Errorf("invalid max players: %d", c.maxPlayers)
	}
	return nil
}

func (c *Config) addr() string {
	return net.JoinHostPort(c.bind, strconv.Itoa(c.port))
}

func (c *Config) roomConfig() game.RoomConfiguration {
	return game.RoomConfiguration{
		PlayTime:   c.playTime,
		GuessTime:  c.guessTime,
		ReviewTime: c.reviewTime,
		Rounds:     c.rounds,
		MaxPlayers: c.maxPlayers,
	}
}

func newRootCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AMADEUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "amadeus",
		Short:   "A multiplayer guess-the-song game server.",
		Args:    cobra.ExactArgs(0),
		Version: Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: AMADEUS_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: AMADEUS_PORT)")
	fs.StringVar(&cfg.db, "db", "amadeus.db", "SQLite database path (env: AMADEUS_DB)")
	fs.StringVar(&cfg.audioDir, "audio-dir", "", "audio directory, defaults to <db-dir>/audio (env: AMADEUS_AUDIO_DIR)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: AMADEUS_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: AMADEUS_TLS_KEY)")
	fs.BoolVar(&cfg.debug, "debug", false, "enable debug logging (env: AMADEUS_DEBUG)")

	fs.DurationVar(&cfg.playTime, "play-time", 20*time.Second, "song playback time per round (env: AMADEUS_PLAY_TIME)")
	fs.DurationVar(&cfg.guessTime, "guess-time", 10*time.Second, "extra guessing time after playback (env: AMADEUS_GUESS_TIME)")
	fs.DurationVar(&cfg.reviewTime, "review-time", 5*time.Second, "answer review time per round (env: AMADEUS_REVIEW_TIME)")
	fs.IntVar(&cfg.rounds, "rounds", 20, "rounds per game (env: AMADEUS_ROUNDS)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 8, "maximum players per room (env: AMADEUS_MAX_PLAYERS)")

	fs.DurationVar(&cfg.metricsInterval, "metrics-interval", time.Minute, "interval between stats log lines, 0 disables (env: AMADEUS_METRICS_INTERVAL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newSongsCmd(cfg), newDownloadsCmd(cfg), newCertCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("amadeus v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
