package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/notelytic/internal/ratelimit"
)

func validTestConfig() Config {
	return Config{
		NoAI:               true,
		NoS3:               true,
		MasterKey:          strings.Repeat("a", 64),
		DatabasePath:       "/tmp/notes.db",
		EditMaxChars:       3000,
		SessionIdleTimeout: time.Minute,
		AIModel:            "gpt-4o-mini",
		AIMaxTokens:        500,
		AITemperature:      0.7,
		AITimeout:          45 * time.Second,
		AIMaxChars:         30000,
		RateLimitConfig:    ratelimit.DefaultConfig,
	}
}

func TestValidate_TestModeMinimalConfigPasses(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid test-mode config, got error: %v", err)
	}
}

func TestValidate_RequiresServiceSecretsWhenNotMocked(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.NoAI = false
	cfg.NoS3 = false

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when real services are enabled without secrets")
	}
	msg := err.Error()
	for _, expected := range []string{
		"OPENAI_API_KEY",
		"AWS_ENDPOINT_URL_S3",
		"BUCKET_NAME",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
	} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
}

func testValidate_RejectsBadMasterKey(t *rapid.T) {
	cfg := validTestConfig()
	if rapid.Bool().Draw(t, "short") {
		cfg.MasterKey = strings.Repeat("a", rapid.IntRange(1, 63).Draw(t, "len"))
	} else {
		cfg.MasterKey = strings.Repeat("z", 64)
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for bad master key")
	}
	if !strings.Contains(err.Error(), "MASTER_KEY") {
		t.Fatalf("expected MASTER_KEY error, got: %v", err)
	}
}

func TestValidate_RejectsBadMasterKey(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsBadMasterKey)
}

func TestValidate_RejectsNonPositiveTunables(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.EditMaxChars = 0
	cfg.AITimeout = 0
	cfg.AITemperature = 3
	cfg.RateLimitConfig.GenerateBurst = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, token := range []string{"EDIT_MAX_CHARS", "AI_TIMEOUT", "AI_TEMPERATURE", "RATE_LIMIT_AI_BURST"} {
		if !strings.Contains(err.Error(), token) {
			t.Fatalf("expected %s in error, got: %v", token, err)
		}
	}
}

func TestParseFlags_TestModeEnablesMocks(t *testing.T) {
	f, err := ParseFlags([]string{"--test", "--addr", ":9999"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if !f.NoAI || !f.NoS3 {
		t.Fatalf("--test should enable all mocks, got %+v", f)
	}
	if f.Addr != ":9999" {
		t.Fatalf("addr = %q", f.Addr)
	}
	if _, err := ParseFlags([]string{"--bogus"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestLoadConfig_FileBelowEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notelytic.toml")
	body := `
master_key = "` + strings.Repeat("b", 64) + `"
database_path = "` + filepath.Join(dir, "notes.db") + `"
edit_max_chars = 1200

[ai]
model = "gpt-4.1-mini"
timeout = "10s"
temperature = 0.2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AI_MODEL", "from-env")
	t.Setenv("MASTER_KEY", "")

	cfg, err := LoadConfig(Flags{NoAI: true, NoS3: true, ConfigPath: path})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AIModel != "from-env" {
		t.Fatalf("env should win over file, got %q", cfg.AIModel)
	}
	if cfg.AITimeout != 10*time.Second || cfg.AITemperature != 0.2 {
		t.Fatalf("nested table values not applied: %s %v", cfg.AITimeout, cfg.AITemperature)
	}
	if cfg.EditMaxChars != 1200 {
		t.Fatalf("edit max chars = %d", cfg.EditMaxChars)
	}
	if cfg.AIMaxTokens != 500 || cfg.AIMaxChars != 30000 {
		t.Fatalf("defaults not applied: %d %d", cfg.AIMaxTokens, cfg.AIMaxChars)
	}
	if len(cfg.MasterKeyBytes()) != 32 {
		t.Fatalf("master key bytes = %d", len(cfg.MasterKeyBytes()))
	}
}

func TestLoadConfig_MissingFileFails(t *testing.T) {
	if _, err := LoadConfig(Flags{NoAI: true, NoS3: true, ConfigPath: filepath.Join(t.TempDir(), "missing.toml")}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestSourceParsers_DefaultOnBadInput(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-an-int")
	t.Setenv("CFG_TEST_FLOAT", "not-a-float")
	t.Setenv("CFG_TEST_DUR", "not-a-duration")
	s := &source{file: map[string]string{}}
	if got := s.intOr("CFG_TEST_INT", 7); got != 7 {
		t.Fatalf("intOr fallback mismatch: got=%d want=7", got)
	}
	if got := s.floatOr("CFG_TEST_FLOAT", 3.5); got != 3.5 {
		t.Fatalf("floatOr fallback mismatch: got=%v want=3.5", got)
	}
	if got := s.durationOr("CFG_TEST_DUR", 2*time.Minute); got != 2*time.Minute {
		t.Fatalf("durationOr fallback mismatch: got=%v want=%v", got, 2*time.Minute)
	}
}

func TestSource_TrimsWhitespace(t *testing.T) {
	t.Setenv("CFG_TEST_STR", "   value   ")
	s := &source{file: map[string]string{}}
	if got := s.stringOr("CFG_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("stringOr trim mismatch: got=%q want=%q", got, "value")
	}
}
