// Package config loads notelytic configuration from CLI flags, environment
// variables and an optional TOML file, validates required fields, and provides
// defaults.
//
// CLI flags control which services are mocked (--no-ai, --no-s3, --test).
// Environment variables provide secrets and tunables. A TOML file passed with
// --config supplies values below the environment; keys are the environment
// names in lower case, and nested tables are joined with "_" (so
// [ai] model = "x" sets AI_MODEL).
package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kuitang/notelytic/internal/ratelimit"
)

const (
	defaultRegion       = "auto"
	defaultAIModel      = "gpt-4o-mini"
	defaultEditMaxChars = 3000
	defaultAIMaxChars   = 30000
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string
	BaseURL    string
	LogLevel   string

	// Storage and encryption
	MasterKey    string // 64 hex characters (32 bytes)
	DatabasePath string // SQLCipher file holding notes and preferences

	// Editor
	EditMaxChars       int           // cap for edits of existing notes, in runes
	SessionIdleTimeout time.Duration // idle editor sessions are closed after this

	// Text generation
	OpenAIAPIKey  string
	OpenAIBaseURL string
	AIModel       string
	AIMaxTokens   int
	AITemperature float64
	AITimeout     time.Duration
	AIMaxChars    int // generated text beyond this is truncated with "..."

	// Rate limiting
	RateLimitConfig ratelimit.Config

	// Mock service flags (controlled by CLI flags, not env vars)
	NoAI bool // If true, use the canned generator (--no-ai)
	NoS3 bool // If true, use in-memory S3 (--no-s3)

	// S3 backup target
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	BackupPrefix       string // BACKUP_PREFIX
}

// Flags are the command-line switches of the server.
type Flags struct {
	NoAI       bool
	NoS3       bool
	Addr       string
	ConfigPath string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags from args (usually os.Args[1:]).
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	var testMode bool

	fs := flag.NewFlagSet("notelytic", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&f.NoAI, "no-ai", false, "Use canned text generation instead of OpenAI")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Use mock S3 storage (in-memory)")
	fs.BoolVar(&testMode, "test", false, "Shorthand for --no-ai --no-s3")
	fs.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	fs.StringVar(&f.ConfigPath, "config", "", "Optional TOML file with defaults below the environment")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if testMode {
		f.NoAI = true
		f.NoS3 = true
	}
	return f, nil
}

// LoadConfig builds a Config from flags, the optional TOML file and the
// environment, then validates it.
func LoadConfig(flags Flags) (*Config, error) {
	src, err := newSource(flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NoAI: flags.NoAI,
		NoS3: flags.NoS3,
	}

	// Server settings
	cfg.ListenAddr = src.stringOr("LISTEN_ADDR", ":8080")
	if flags.Addr != "" {
		cfg.ListenAddr = flags.Addr
	}
	cfg.BaseURL = src.stringOr("BASE_URL", "http://localhost"+cfg.ListenAddr)
	cfg.LogLevel = src.stringOr("LOG_LEVEL", "info")

	// Storage and encryption
	cfg.MasterKey = src.stringOr("MASTER_KEY", "")
	cfg.DatabasePath = src.stringOr("DATABASE_PATH", "/data/notes.db")

	// Editor
	cfg.EditMaxChars = src.intOr("EDIT_MAX_CHARS", defaultEditMaxChars)
	cfg.SessionIdleTimeout = src.durationOr("SESSION_IDLE_TIMEOUT", 30*time.Minute)

	// Text generation
	cfg.OpenAIAPIKey = src.stringOr("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = src.stringOr("OPENAI_BASE_URL", "")
	cfg.AIModel = src.stringOr("AI_MODEL", defaultAIModel)
	cfg.AIMaxTokens = src.intOr("AI_MAX_TOKENS", 500)
	cfg.AITemperature = src.floatOr("AI_TEMPERATURE", 0.7)
	cfg.AITimeout = src.durationOr("AI_TIMEOUT", 45*time.Second)
	cfg.AIMaxChars = src.intOr("AI_MAX_CHARS", defaultAIMaxChars)

	// Rate limiting
	cfg.RateLimitConfig = ratelimit.Config{
		APIRPS:          src.floatOr("RATE_LIMIT_API_RPS", ratelimit.DefaultConfig.APIRPS),
		APIBurst:        src.intOr("RATE_LIMIT_API_BURST", ratelimit.DefaultConfig.APIBurst),
		GenerateRPS:     src.floatOr("RATE_LIMIT_AI_RPS", ratelimit.DefaultConfig.GenerateRPS),
		GenerateBurst:   src.intOr("RATE_LIMIT_AI_BURST", ratelimit.DefaultConfig.GenerateBurst),
		CleanupInterval: src.durationOr("RATE_LIMIT_CLEANUP_INTERVAL", time.Hour),
	}

	// S3 backup target
	cfg.AWSEndpointS3 = src.stringOr("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = src.stringOr("AWS_REGION", defaultRegion)
	cfg.AWSAccessKeyID = src.stringOr("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = src.stringOr("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = src.stringOr("BUCKET_NAME", "")
	cfg.BackupPrefix = strings.Trim(src.stringOr("BACKUP_PREFIX", "backups"), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When mocks are NOT active for a service, the corresponding secrets are required.
func (c *Config) Validate() error {
	var errs []string

	if !c.NoAI && c.OpenAIAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required (set env var or use --no-ai)")
	}

	if !c.NoS3 {
		if c.AWSEndpointS3 == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		}
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	// Losing MASTER_KEY makes the notes database unreadable.
	if c.MasterKey == "" {
		errs = append(errs, "MASTER_KEY is required (generate with: openssl rand -hex 32)")
	} else if _, err := hex.DecodeString(c.MasterKey); err != nil || len(c.MasterKey) != 64 {
		errs = append(errs, "MASTER_KEY must be 64 hex characters (32 bytes)")
	}

	if c.DatabasePath == "" {
		errs = append(errs, "DATABASE_PATH must not be empty")
	}
	if c.EditMaxChars <= 0 {
		errs = append(errs, "EDIT_MAX_CHARS must be positive")
	}
	if c.AIMaxChars <= 0 {
		errs = append(errs, "AI_MAX_CHARS must be positive")
	}
	if c.AIMaxTokens <= 0 {
		errs = append(errs, "AI_MAX_TOKENS must be positive")
	}
	if c.AITemperature < 0 || c.AITemperature > 2 {
		errs = append(errs, "AI_TEMPERATURE must be between 0 and 2")
	}
	if c.AITimeout <= 0 {
		errs = append(errs, "AI_TIMEOUT must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, "SESSION_IDLE_TIMEOUT must be positive")
	}

	if c.RateLimitConfig.APIRPS <= 0 {
		errs = append(errs, "RATE_LIMIT_API_RPS must be positive")
	}
	if c.RateLimitConfig.APIBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_API_BURST must be positive")
	}
	if c.RateLimitConfig.GenerateRPS <= 0 {
		errs = append(errs, "RATE_LIMIT_AI_RPS must be positive")
	}
	if c.RateLimitConfig.GenerateBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_AI_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// MasterKeyBytes decodes MasterKey. Call only on a validated Config.
func (c *Config) MasterKeyBytes() []byte {
	key, err := hex.DecodeString(c.MasterKey)
	if err != nil {
		return nil
	}
	return key
}

// IsDevelopment returns true if any mock services are enabled.
func (c *Config) IsDevelopment() bool {
	return c.NoAI || c.NoS3
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notelytic server starting...")

	if c.NoAI {
		fmt.Fprintln(w, "  AI:       Canned generator (--no-ai)")
	} else {
		fmt.Fprintf(w, "  AI:       OpenAI (model: %s, timeout: %s)\n", c.AIModel, c.AITimeout)
	}

	if c.NoS3 {
		fmt.Fprintln(w, "  Backup:   Mock S3 (--no-s3)")
	} else {
		fmt.Fprintf(w, "  Backup:   S3 (endpoint: %s, bucket: %s)\n", c.AWSEndpointS3, c.AWSBucketName)
	}

	fmt.Fprintf(w, "  Database: %s\n", c.DatabasePath)
	fmt.Fprintf(w, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Base:     %s\n", c.BaseURL)
	fmt.Fprintln(w, "")
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(flags Flags) *Config {
	cfg, err := LoadConfig(flags)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}

// source resolves a key from the environment first, then the TOML file.
type source struct {
	file map[string]string
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	raw := map[string]any{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	flatten("", raw, s.file)
	return s, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch typed := v.(type) {
		case map[string]any:
			flatten(key, typed, out)
		default:
			out[key] = fmt.Sprint(typed)
		}
	}
}

func (s *source) lookup(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(s.file[key])
}

func (s *source) stringOr(key, defaultValue string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultValue
}

func (s *source) intOr(key string, defaultValue int) int {
	v := s.lookup(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (s *source) floatOr(key string, defaultValue float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (s *source) durationOr(key string, defaultValue time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
