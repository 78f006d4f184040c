// Package config loads engine settings from an optional .env file and the
// environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rcliao/tutor-engine/internal/generate"
)

// Config holds engine configuration.
type Config struct {
	DBPath  string
	LogMode string

	AutoAdvanceDelay time.Duration
	DoubtDebounce    time.Duration
	QuizSurfaceDelay time.Duration
	ResolveTimeout   time.Duration
	WordsPerMinute   int

	Generate generate.Config

	RedisAddr    string
	RedisChannel string
}

// Load reads the given .env files (".env" when none are given) if they exist,
// then builds a Config from the environment. Variables already set in the
// environment win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() *Config {
	provider := strings.ToLower(getEnv("TUTOR_GEN_PROVIDER", ""))
	baseURL := getEnv("TUTOR_GEN_URL", "")
	if baseURL == "" && provider == "ollama" {
		baseURL = getEnv("OLLAMA_HOST", "")
	}
	resolveTimeout := getEnvMillis("TUTOR_RESOLVE_TIMEOUT_MS", 30*time.Second)

	return &Config{
		DBPath:  getEnv("TUTOR_ENGINE_DB", defaultDBPath()),
		LogMode: getEnv("TUTOR_LOG_MODE", "quiet"),

		AutoAdvanceDelay: getEnvMillis("TUTOR_AUTO_ADVANCE_MS", 1500*time.Millisecond),
		DoubtDebounce:    getEnvMillis("TUTOR_DOUBT_DEBOUNCE_MS", 2*time.Second),
		QuizSurfaceDelay: getEnvMillis("TUTOR_QUIZ_SURFACE_MS", 1200*time.Millisecond),
		ResolveTimeout:   resolveTimeout,
		WordsPerMinute:   getEnvInt("TUTOR_WORDS_PER_MINUTE", 170),

		Generate: generate.Config{
			Provider: provider,
			Model:    getEnv("TUTOR_GEN_MODEL", ""),
			BaseURL:  baseURL,
			APIKey:   getEnv("OPENAI_API_KEY", ""),
			Timeout:  resolveTimeout,
		},

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "tutor-events"),
	}
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tutor-engine", "state.db")
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	i, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || i <= 0 {
		return defaultValue
	}
	return i
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	ms := getEnvInt(key, 0)
	if ms == 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
