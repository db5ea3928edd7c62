// Package config loads server and CLI settings from flags, the environment
// and an optional .env file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Store     StoreConfig
	Spotify   SpotifyConfig
	Profanity ProfanityConfig
	Web       WebConfig
	RateLimit RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// DataPath is the root for the store, search index and card cache (default: ~/Letters/data).
	DataPath string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	// ShutdownTimeout bounds how long open letter streams and in-flight
	// requests may delay a stop (default: 30s).
	ShutdownTimeout time.Duration
}

// StoreConfig holds letter store configuration.
type StoreConfig struct {
	Driver   string // badger or sqlite (default: badger)
	Path     string // default: {data}/badger or {data}/letters.db
	PageSize int    // default page size (default: 20)
	LiveCap  int    // head size pushed to live subscriptions (default: 50)
}

// SpotifyConfig holds song catalog credentials and client tuning.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // Optional override
	SearchURL    string // Optional override
	CacheTTL     time.Duration
	RPS          float64
}

// ProfanityConfig holds the optional extra block-list.
type ProfanityConfig struct {
	BlocklistPath string // Optional, hot-reloaded
}

// WebConfig holds public web settings used for share links and CORS.
type WebConfig struct {
	BaseURL     string
	SiteName    string
	CORSOrigins []string
}

// RateLimitConfig holds per-IP limits for write and lookup endpoints.
type RateLimitConfig struct {
	WriteRPS   float64
	WriteBurst int
	SongRPS    float64
	SongBurst  int
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load resolves every setting from, in order of precedence, a command-line
// flag, an environment variable, the .env file and a built-in default.
// A missing .env file is not an error.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("letters", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for stored data")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout for non-streaming handlers (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	shutdownTimeout := fs.String("shutdown-timeout", "", "Grace period for open streams on stop (default: 30s)")

	storeDriver := fs.String("store-driver", "", "Letter store driver: badger or sqlite (default: badger)")
	storePath := fs.String("store-path", "", "Letter store location")
	pageSize := fs.String("page-size", "", "Default feed page size (default: 20)")
	liveCap := fs.String("live-cap", "", "Letters pushed per live snapshot (default: 50)")

	spotifyID := fs.String("spotify-client-id", "", "Spotify client id")
	spotifySecret := fs.String("spotify-client-secret", "", "Spotify client secret")
	spotifyTTL := fs.String("spotify-cache-ttl", "", "Song search cache TTL (default: 10m)")

	blocklist := fs.String("profanity-blocklist", "", "Extra block-list file, one word per line")
	baseURL := fs.String("base-url", "", "Public base URL used in share links")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed web origins")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := loadEnvFile(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("env file: %w", err)
	}

	var r resolver
	cfg := &Config{
		App: AppConfig{
			Environment: r.text(*env, "ENV", "development"),
			DataPath:    r.text(*dataPath, "DATA_PATH", ""),
		},
		Logger: LoggerConfig{Level: r.text(*logLevel, "LOG_LEVEL", "info")},
		Server: ServerConfig{
			Port:            r.text(*serverPort, "SERVER_PORT", "8080"),
			ReadTimeout:     r.duration(*readTimeout, "SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    r.duration(*writeTimeout, "SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     r.duration(*idleTimeout, "SERVER_IDLE_TIMEOUT", time.Minute),
			ShutdownTimeout: r.duration(*shutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(r.text(*storeDriver, "STORE_DRIVER", DriverBadger)),
			Path:     r.text(*storePath, "STORE_PATH", ""),
			PageSize: r.integer(*pageSize, "STORE_PAGE_SIZE", 20),
			LiveCap:  r.integer(*liveCap, "STORE_LIVE_CAP", 50),
		},
		Spotify: SpotifyConfig{
			ClientID:     r.text(*spotifyID, "SPOTIFY_CLIENT_ID", ""),
			ClientSecret: r.text(*spotifySecret, "SPOTIFY_CLIENT_SECRET", ""),
			TokenURL:     r.text("", "SPOTIFY_TOKEN_URL", ""),
			SearchURL:    r.text("", "SPOTIFY_SEARCH_URL", ""),
			CacheTTL:     r.duration(*spotifyTTL, "SPOTIFY_CACHE_TTL", 10*time.Minute),
			RPS:          r.number("", "SPOTIFY_RPS", 5),
		},
		Profanity: ProfanityConfig{
			BlocklistPath: r.text(*blocklist, "PROFANITY_BLOCKLIST_PATH", ""),
		},
		Web: WebConfig{
			BaseURL:     strings.TrimRight(r.text(*baseURL, "WEB_BASE_URL", "http://localhost:8080"), "/"),
			SiteName:    r.text("", "WEB_SITE_NAME", "Love for BTS"),
			CORSOrigins: splitList(r.text(*corsOrigins, "CORS_ORIGINS", "*")),
		},
		RateLimit: RateLimitConfig{
			WriteRPS:   r.number("", "RATE_LIMIT_WRITE_RPS", 1),
			WriteBurst: r.integer("", "RATE_LIMIT_WRITE_BURST", 5),
			SongRPS:    r.number("", "RATE_LIMIT_SONG_RPS", 3),
			SongBurst:  r.integer("", "RATE_LIMIT_SONG_BURST", 10),
		},
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var (
	environments = []string{"development", "staging", "production"}
	logLevels    = []string{"debug", "info", "warn", "error"}
)

// Validate checks a loaded or hand-built configuration.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}
	if !slices.Contains(environments, c.App.Environment) {
		return fmt.Errorf("invalid environment: %s (must be one of %s)", c.App.Environment, strings.Join(environments, ", "))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logger.Level)) {
		return fmt.Errorf("invalid log level: %s (must be one of %s)", c.Logger.Level, strings.Join(logLevels, ", "))
	}
	if c.App.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Store.Driver {
	case DriverBadger, DriverSQLite:
	default:
		return fmt.Errorf("invalid store driver: %s (must be badger or sqlite)", c.Store.Driver)
	}
	if c.Store.PageSize < 1 || c.Store.PageSize > 100 {
		return fmt.Errorf("invalid page size: %d (must be 1-100)", c.Store.PageSize)
	}
	if c.Store.LiveCap < 1 {
		return fmt.Errorf("invalid live cap: %d", c.Store.LiveCap)
	}

	// Song search works without credentials; lookups then report a failure.
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		return errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together")
	}
	if c.RateLimit.WriteRPS <= 0 || c.RateLimit.SongRPS <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

// SpotifyConfigured reports whether song search credentials are present.
func (c *Config) SpotifyConfigured() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// SearchIndexPath is the bleve index directory.
func (c *Config) SearchIndexPath() string {
	return filepath.Join(c.App.DataPath, "search")
}

// CardCachePath is the rendered card image directory.
func (c *Config) CardCachePath() string {
	return filepath.Join(c.App.DataPath, "cards")
}

// resolvePaths makes every configured path absolute. The store path
// defaults to a driver specific location under the data path.
func (c *Config) resolvePaths() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("home directory: %w", err)
	}
	if c.App.DataPath, err = expandPath(c.App.DataPath, filepath.Join(home, "Letters", "data")); err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}

	storeDefault := filepath.Join(c.App.DataPath, "badger")
	if c.Store.Driver == DriverSQLite {
		storeDefault = filepath.Join(c.App.DataPath, "letters.db")
	}
	if c.Store.Path, err = expandPath(c.Store.Path, storeDefault); err != nil {
		return fmt.Errorf("invalid store path: %w", err)
	}

	if c.Profanity.BlocklistPath, err = expandPath(c.Profanity.BlocklistPath, ""); err != nil {
		return fmt.Errorf("invalid block-list path: %w", err)
	}
	return nil
}

// expandPath resolves a leading ~/ and returns an absolute, clean path.
// An empty path yields fallback unchanged.
func expandPath(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home directory: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	return filepath.Abs(path)
}

// resolver picks each setting from a flag value, then the environment,
// then a default. Values that do not parse are collected in errs instead of
// silently falling back.
type resolver struct {
	errs []error
}

func (r *resolver) text(flagValue, envKey, def string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return def
}

func (r *resolver) integer(flagValue, envKey string, def int) int {
	return resolve(r, flagValue, envKey, def, strconv.Atoi)
}

func (r *resolver) number(flagValue, envKey string, def float64) float64 {
	return resolve(r, flagValue, envKey, def, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func (r *resolver) duration(flagValue, envKey string, def time.Duration) time.Duration {
	return resolve(r, flagValue, envKey, def, time.ParseDuration)
}

func resolve[T any](r *resolver, flagValue, envKey string, def T, parse func(string) (T, error)) T {
	raw := r.text(flagValue, envKey, "")
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s %q: %w", envKey, raw, err))
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile exports the variables in a .env file that are not already
// set in the environment.
func loadEnvFile(path string) error {
	f, err := os.Open(path) //#nosec G304 -- path comes from the operator
	if err != nil {
		return err
	}
	defer f.Close()

	vars, err := parseEnv(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, key := range slices.Sorted(maps.Keys(vars)) {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, vars[key]); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// parseEnv reads KEY=value lines. Blank lines and # comments are skipped,
// an "export " prefix is allowed and matching quotes around the value are
// removed.
func parseEnv(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid format at line %d: %s", n, line)
		}
		vars[key] = unquote(strings.TrimSpace(value))
	}
	return vars, scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
