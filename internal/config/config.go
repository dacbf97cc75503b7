package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment
type Config struct {
	// X / Twitter OAuth1 credentials
	TwitterAPIKey            string
	TwitterAPISecret         string
	TwitterAccessToken       string
	TwitterAccessTokenSecret string
	TwitterAPIBase           string // base URL for the v2 API, eg https://api.twitter.com/

	// Google AI image generation
	GoogleAIAPIKey string
	ImageModel     string

	ImageStoragePath string // directory holding pending images
	PostHistoryDB    string // sqlite file recording published threads, empty disables it
	ExtraCABundle    string // optional PEM bundle appended to the system roots
	HTTPTimeout      time.Duration

	LogLevel  string
	LogOutput string // c, f or b
	LogFile   string

	DryRun bool // post nothing, fabricate ids instead
}

const (
	DefaultTwitterAPIBase = "https://api.twitter.com/"
	DefaultImageModel     = "gemini-2.0-flash-preview-image-generation"
	DefaultHTTPTimeout    = 30 * time.Second
)

// Load reads an optional .env file then builds a Config from the environment.
// envFile may be empty, in which case ./.env and a .env next to the executable are tried.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// a missing .env is normal
		_ = godotenv.Load()
		if dir, err := GetExecutableDir(); err == nil {
			_ = godotenv.Load(filepath.Join(dir, ".env"))
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only
func FromEnv() (*Config, error) {
	c := &Config{
		TwitterAPIKey:            os.Getenv("TWITTER_API_KEY"),
		TwitterAPISecret:         os.Getenv("TWITTER_API_SECRET"),
		TwitterAccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
		TwitterAccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
		TwitterAPIBase:           envOr("TWITTER_API_BASE", DefaultTwitterAPIBase),
		GoogleAIAPIKey:           os.Getenv("GOOGLE_AI_API_KEY"),
		ImageModel:               envOr("IMAGE_MODEL", DefaultImageModel),
		PostHistoryDB:            os.Getenv("POST_HISTORY_DB"),
		ExtraCABundle:            os.Getenv("EXTRA_CA_BUNDLE"),
		LogLevel:                 envOr("LOG_LEVEL", "info"),
		LogOutput:                envOr("LOG_OUTPUT", "c"),
		LogFile:                  os.Getenv("LOG_FILE"),
		HTTPTimeout:              DefaultHTTPTimeout,
	}

	c.ImageStoragePath = os.Getenv("IMAGE_STORAGE_PATH")
	if c.ImageStoragePath == "" {
		dir, err := GetExecutableDir()
		if err != nil {
			return nil, err
		}
		c.ImageStoragePath = filepath.Join(dir, "images")
	}

	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT %q: %w", v, err)
		}
		c.HTTPTimeout = d
	}

	if v := os.Getenv("DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DRY_RUN %q: %w", v, err)
		}
		c.DryRun = b
	}

	switch c.LogOutput {
	case "c", "f", "b":
	default:
		return nil, fmt.Errorf("invalid LOG_OUTPUT %q, expected c, f or b", c.LogOutput)
	}

	return c, nil
}

// MissingTwitterCredentials lists the unset credential variables
func (c *Config) MissingTwitterCredentials() []string {
	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"TWITTER_API_KEY", c.TwitterAPIKey},
		{"TWITTER_API_SECRET", c.TwitterAPISecret},
		{"TWITTER_ACCESS_TOKEN", c.TwitterAccessToken},
		{"TWITTER_ACCESS_TOKEN_SECRET", c.TwitterAccessTokenSecret},
	} {
		if strings.TrimSpace(kv.val) == "" {
			missing = append(missing, kv.key)
		}
	}
	return missing
}

// GetExecutableDir returns the directory containing the executable
func GetExecutableDir() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(executable), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
