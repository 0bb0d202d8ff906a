package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/video-sections/pkg/icron"
	"github.com/MimeLyc/video-sections/pkg/log"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Every value comes from the environment with a sensible default.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 1500)
// - LLM_TEMPERATURE: Default temperature (default: 0.5)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
// - LLM_SITE_URL / LLM_APP_NAME: OpenRouter attribution headers (optional)
// - LLM_RATE_LIMIT: Requests per second, 0 disables pacing (default: 0)
// - LLM_RATE_BURST: Burst size for the limiter (default: 1)
//
// Transcript:
// - TRANSCRIPT_DIR: Directory with <id>.<lang>.srt tracks (default: ./transcripts)
// - TRANSCRIPT_LANGUAGES: Comma separated preferred languages (default: en,en-US,en-GB)
//
// Planning and enrichment:
// - PLANNER_MATCH_THRESHOLD (default: 0.5)
// - PLANNER_SEARCH_WINDOW (default: 4)
// - ENRICH_CONCURRENCY (default: 4)
// - ENRICH_QUIZ_PREFIX (default: 4)
//
// Cache:
// - CACHE_BACKEND: memory | sqlite | redis (default: memory)
// - CACHE_DB_PATH (default: ./data/sections.db)
// - REDIS_ADDR / REDIS_PASSWORD / REDIS_DB / REDIS_PREFIX
// - CACHE_MAX_ENTRIES: 0 is unbounded (default: 0)
// - CACHE_TTL: Go duration, 0 keeps entries forever (default: 0)
// - CACHE_SWEEP_CRON (default: */10 * * * *)
//
// System:
// - HTTP_ADDR (default: :8080)
// - RUN_WORKERS (default: 2)
// - LOG_LEVEL (default: info), LOG_FILE (optional)
type Config struct {
	LLM        LLMConfig        `json:"llm"`
	HTTP       HTTPConfig       `json:"http"`
	Transcript TranscriptConfig `json:"transcript"`
	Planner    PlannerConfig    `json:"planner"`
	Enrich     EnrichConfig     `json:"enrich"`
	Cache      CacheConfig      `json:"cache"`
	System     SystemConfig     `json:"system"`
}

// LLMConfig holds the configuration for the LLM client.
// Any OpenAI compatible provider works (OpenRouter, OpenAI, local gateways).
type LLMConfig struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
	RateLimit   float64 `json:"rate_limit"`
	RateBurst   int     `json:"rate_burst"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type TranscriptConfig struct {
	Dir       string         `json:"dir"`
	Languages []language.Tag `json:"languages"`
}

type PlannerConfig struct {
	MatchThreshold float64 `json:"match_threshold"`
	SearchWindow   int     `json:"search_window"`
}

type EnrichConfig struct {
	Concurrency int `json:"concurrency"`
	QuizPrefix  int `json:"quiz_prefix"`
}

// CacheConfig selects and tunes the plan cache backend
type CacheConfig struct {
	Backend       string        `json:"backend"`
	DBPath        string        `json:"db_path"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
	RedisPrefix   string        `json:"redis_prefix"`
	MaxEntries    int           `json:"max_entries"`
	TTL           time.Duration `json:"ttl"`
	SweepCron     string        `json:"sweep_cron"`
}

type SystemConfig struct {
	RunWorkers int    `json:"run_workers"`
	LogLevel   string `json:"log_level"`
	LogFile    string `json:"log_file"`
}

const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// Option is a function type for configuring Config
type Option func(*Config)

// New loads a .env file when present and then reads the environment.
func New(opts ...Option) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to load .env: %v", err)
	}
	return NewFromEnv(opts...)
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1500),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.5),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
			RateLimit:   getEnvFloat("LLM_RATE_LIMIT", 0),
			RateBurst:   getEnvInt("LLM_RATE_BURST", 1),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Transcript: TranscriptConfig{
			Dir:       getEnvString("TRANSCRIPT_DIR", "./transcripts"),
			Languages: getEnvLanguages("TRANSCRIPT_LANGUAGES", "en,en-US,en-GB"),
		},
		Planner: PlannerConfig{
			MatchThreshold: getEnvFloat("PLANNER_MATCH_THRESHOLD", 0.5),
			SearchWindow:   getEnvInt("PLANNER_SEARCH_WINDOW", 4),
		},
		Enrich: EnrichConfig{
			Concurrency: getEnvInt("ENRICH_CONCURRENCY", 4),
			QuizPrefix:  getEnvInt("ENRICH_QUIZ_PREFIX", 4),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getEnvString("CACHE_BACKEND", CacheMemory)),
			DBPath:        getEnvString("CACHE_DB_PATH", "./data/sections.db"),
			RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			RedisPrefix:   getEnvString("REDIS_PREFIX", "sections:"),
			MaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", 0),
			TTL:           getEnvDuration("CACHE_TTL", 0),
			SweepCron:     getEnvString("CACHE_SWEEP_CRON", "*/10 * * * *"),
		},
		System: SystemConfig{
			RunWorkers: getEnvInt("RUN_WORKERS", 2),
			LogLevel:   getEnvString("LOG_LEVEL", "info"),
			LogFile:    getEnvString("LOG_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Planner.MatchThreshold <= 0 || c.Planner.MatchThreshold > 1 {
		return fmt.Errorf("PLANNER_MATCH_THRESHOLD must be in (0, 1], got %v", c.Planner.MatchThreshold)
	}
	if c.Planner.SearchWindow < 1 || c.Planner.SearchWindow > 16 {
		return fmt.Errorf("PLANNER_SEARCH_WINDOW must be in [1, 16], got %d", c.Planner.SearchWindow)
	}
	if c.Enrich.Concurrency < 1 {
		return fmt.Errorf("ENRICH_CONCURRENCY must be positive, got %d", c.Enrich.Concurrency)
	}
	if c.Enrich.QuizPrefix < 0 {
		return fmt.Errorf("ENRICH_QUIZ_PREFIX must not be negative, got %d", c.Enrich.QuizPrefix)
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheSQLite, CacheRedis:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Cache.SweepCron != "" {
		if err := icron.Validate(c.Cache.SweepCron); err != nil {
			return fmt.Errorf("CACHE_SWEEP_CRON: %w", err)
		}
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvLanguages parses a comma separated list of BCP 47 tags; invalid tags are skipped.
func getEnvLanguages(key, defaultValue string) []language.Tag {
	raw := getEnvString(key, defaultValue)
	tags := make([]language.Tag, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag, err := language.Parse(part)
		if err != nil {
			log.Warn("Ignoring invalid language tag %q in %s: %v", part, key, err)
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}
