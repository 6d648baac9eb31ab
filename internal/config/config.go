// Package config loads the TOML configuration shared by the example binaries.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lightforgemedia/go-ezsockets/pkg/client"
)

// Environment overrides applied after the file is decoded.
const (
	EnvAddr     = "EZSOCKETS_ADDR"
	EnvLogLevel = "EZSOCKETS_LOG_LEVEL"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the on-disk layout.
type Config struct {
	Server    Server    `toml:"server"`
	Client    Client    `toml:"client"`
	Log       Log       `toml:"log"`
	NATS      NATS      `toml:"nats"`
	HotReload HotReload `toml:"hotreload"`
}

type Server struct {
	Addr           string   `toml:"addr"`
	Path           string   `toml:"path"`
	OriginPatterns []string `toml:"origin_patterns"`
}

type Client struct {
	URL          string        `toml:"url"`
	InitialDelay time.Duration `toml:"initial_delay"`
	MaxDelay     time.Duration `toml:"max_delay"`
	Multiplier   float64       `toml:"multiplier"`
	MaxAttempts  int           `toml:"max_attempts"`
	Jitter       float64       `toml:"jitter"`
	DialTimeout  time.Duration `toml:"dial_timeout"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NATS enables the broadcast relay when URL is set.
type NATS struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// HotReload enables the reload endpoint when Dirs is non-empty.
type HotReload struct {
	Dirs     []string      `toml:"dirs"`
	Patterns []string      `toml:"patterns"`
	Debounce time.Duration `toml:"debounce"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cc := client.DefaultConfig("ws://localhost:8080/websocket")
	return Config{
		Server: Server{
			Addr: ":8080",
			Path: "/websocket",
		},
		Client: Client{
			URL:          cc.URL,
			InitialDelay: cc.InitialDelay,
			MaxDelay:     cc.MaxDelay,
			Multiplier:   cc.Multiplier,
			MaxAttempts:  cc.MaxAttempts,
			Jitter:       cc.Jitter,
			DialTimeout:  cc.DialTimeout,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		NATS: NATS{
			Subject: "ezsockets.chat",
		},
		HotReload: HotReload{
			Patterns: []string{"*.html", "*.css", "*.js"},
			Debounce: 300 * time.Millisecond,
		},
	}
}

// Load decodes path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && strings.TrimSpace(v) != "" {
		c.Server.Addr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.Log.Level = strings.TrimSpace(v)
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr is empty", ErrInvalid)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("%w: server.path %q must start with /", ErrInvalid, c.Server.Path)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q (expected text or json)", ErrInvalid, c.Log.Format)
	}
	if c.NATS.URL != "" && strings.TrimSpace(c.NATS.Subject) == "" {
		return fmt.Errorf("%w: nats.subject is required when nats.url is set", ErrInvalid)
	}
	if err := c.ClientConfig().Validate(); err != nil {
		return fmt.Errorf("%w: client: %v", ErrInvalid, err)
	}
	return nil
}

// ClientConfig converts the client section.
func (c Config) ClientConfig() client.Config {
	cc := client.DefaultConfig(c.Client.URL)
	cc.InitialDelay = c.Client.InitialDelay
	cc.MaxDelay = c.Client.MaxDelay
	cc.Multiplier = c.Client.Multiplier
	cc.MaxAttempts = c.Client.MaxAttempts
	cc.Jitter = c.Client.Jitter
	cc.DialTimeout = c.Client.DialTimeout
	return cc
}

// NewLogger builds the slog logger described by the log section.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, s)
	}
	return level, nil
}
