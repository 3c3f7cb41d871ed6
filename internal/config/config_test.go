package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envVars = []string{
	"WORK_DIR", "LAYOUT_FILE", "TTS_PROVIDER", "AWS_REGION", "POLLY_ENGINE",
	"POLLY_SAMPLE_RATE", "OPENAI_BASE_URL", "OPENAI_API_KEY", "OPENAI_TTS_MODEL",
	"CHROME_PATH", "VIDEO_WIDTH", "VIDEO_HEIGHT", "VIDEO_FPS", "TICK",
	"TRANSITION_TIMEOUT", "RECORD_GRACE", "CLIENT_TIMEOUT", "FADE",
	"SYNC_TOLERANCE", "SYNTH_CONCURRENCY", "BATCH_CONCURRENCY",
	"BROWSER_CONCURRENCY", "LEDGER_MONGO_URI", "LEDGER_MONGO_DB", "AUDITION_PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		// t.Setenv restores the original value after the test
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.WorkDir != "work" {
		t.Errorf("WorkDir = %q, want 'work'", cfg.WorkDir)
	}
	if cfg.LayoutFile != "" {
		t.Errorf("LayoutFile = %q, want empty default", cfg.LayoutFile)
	}
	if cfg.TTSProvider != "polly" || cfg.PollyEngine != "neural" {
		t.Errorf("TTS = %q/%q, want polly/neural", cfg.TTSProvider, cfg.PollyEngine)
	}
	if cfg.VideoWidth != 1280 || cfg.VideoHeight != 720 || cfg.VideoFPS != 30 {
		t.Errorf("video = %dx%d@%d, want 1280x720@30", cfg.VideoWidth, cfg.VideoHeight, cfg.VideoFPS)
	}
	if cfg.Tick != 10*time.Millisecond {
		t.Errorf("Tick = %v, want 10ms", cfg.Tick)
	}
	if cfg.RecordGrace != 30*time.Second {
		t.Errorf("RecordGrace = %v, want 30s", cfg.RecordGrace)
	}
	if cfg.SyncTolerance != 300*time.Millisecond {
		t.Errorf("SyncTolerance = %v, want 300ms", cfg.SyncTolerance)
	}
	if cfg.Fade != 5*time.Millisecond {
		t.Errorf("Fade = %v, want 5ms", cfg.Fade)
	}
	if cfg.SynthConcurrency != 4 || cfg.BatchConcurrency != 2 || cfg.BrowserConcurrency != 1 {
		t.Errorf("concurrency = %d/%d/%d, want 4/2/1", cfg.SynthConcurrency, cfg.BatchConcurrency, cfg.BrowserConcurrency)
	}
	if cfg.LedgerMongoURI != "" || cfg.LedgerDatabase != "examcast" {
		t.Errorf("ledger = %q/%q", cfg.LedgerMongoURI, cfg.LedgerDatabase)
	}
	if cfg.AuditionPort != 8090 {
		t.Errorf("AuditionPort = %d, want 8090", cfg.AuditionPort)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORK_DIR", "/srv/exams")
	t.Setenv("TTS_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VIDEO_FPS", "25")
	t.Setenv("TICK", "5ms")
	t.Setenv("RECORD_GRACE", "12.5")
	t.Setenv("SYNC_TOLERANCE", "0.15")
	t.Setenv("BATCH_CONCURRENCY", "8")
	t.Setenv("LEDGER_MONGO_URI", "mongodb://localhost:27017")

	cfg := Load()

	if cfg.WorkDir != "/srv/exams" {
		t.Errorf("WorkDir = %q, want env override", cfg.WorkDir)
	}
	if cfg.TTSProvider != "openai" {
		t.Errorf("TTSProvider = %q, want lowercased 'openai'", cfg.TTSProvider)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey = %q, want env override", cfg.OpenAIAPIKey)
	}
	if cfg.VideoFPS != 25 {
		t.Errorf("VideoFPS = %d, want 25", cfg.VideoFPS)
	}
	if cfg.Tick != 5*time.Millisecond {
		t.Errorf("Tick = %v, want 5ms", cfg.Tick)
	}
	if cfg.RecordGrace != 12500*time.Millisecond {
		t.Errorf("RecordGrace = %v, want 12.5s from bare seconds", cfg.RecordGrace)
	}
	if cfg.SyncTolerance != 150*time.Millisecond {
		t.Errorf("SyncTolerance = %v, want 150ms", cfg.SyncTolerance)
	}
	if cfg.BatchConcurrency != 8 {
		t.Errorf("BatchConcurrency = %d, want 8", cfg.BatchConcurrency)
	}
	if cfg.LedgerMongoURI != "mongodb://localhost:27017" {
		t.Errorf("LedgerMongoURI = %q, want env override", cfg.LedgerMongoURI)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("VIDEO_WIDTH", "wide")
	t.Setenv("TICK", "soon")
	t.Setenv("SYNC_TOLERANCE", "tight")
	cfg := Load()
	if cfg.VideoWidth != 1280 {
		t.Errorf("VideoWidth = %d, want fallback 1280", cfg.VideoWidth)
	}
	if cfg.Tick != 10*time.Millisecond {
		t.Errorf("Tick = %v, want fallback 10ms", cfg.Tick)
	}
	if cfg.SyncTolerance != 300*time.Millisecond {
		t.Errorf("SyncTolerance = %v, want fallback 300ms", cfg.SyncTolerance)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("VIDEO_FPS", "24")
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("WORK_DIR=/from/dotenv\nVIDEO_FPS=60\n"), 0o644)

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("WORK_DIR") })
	cfg := Load()
	if cfg.WorkDir != "/from/dotenv" {
		t.Errorf("WorkDir = %q, want value from .env", cfg.WorkDir)
	}
	if cfg.VideoFPS != 24 {
		t.Errorf("VideoFPS = %d, want 24 (environment wins over .env)", cfg.VideoFPS)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}
}
