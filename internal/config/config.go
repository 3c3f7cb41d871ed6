package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	WorkDir    string
	LayoutFile string // YAML layout rules; empty uses the built-in defaults

	// Speech synthesis
	TTSProvider     string // polly or openai
	AWSRegion       string
	PollyEngine     string // standard, neural, long-form, generative
	PollySampleRate string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	OpenAIModel     string

	// Recording
	ChromePath        string
	VideoWidth        int
	VideoHeight       int
	VideoFPS          int
	Tick              time.Duration // driver poll interval
	TransitionTimeout time.Duration // per visual state
	RecordGrace       time.Duration // added to the sequence length for the recording deadline
	ClientTimeout     time.Duration // wait for the page to connect

	// Assembly and sync
	Fade          time.Duration // clip edge ramp
	SyncTolerance time.Duration

	// Concurrency
	SynthConcurrency   int
	BatchConcurrency   int
	BrowserConcurrency int

	// Run ledger
	LedgerMongoURI string
	LedgerDatabase string

	AuditionPort int
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		WorkDir:    envStr("WORK_DIR", "work"),
		LayoutFile: envStr("LAYOUT_FILE", ""),

		TTSProvider:     strings.ToLower(envStr("TTS_PROVIDER", "polly")),
		AWSRegion:       envStr("AWS_REGION", "eu-central-1"),
		PollyEngine:     envStr("POLLY_ENGINE", "neural"),
		PollySampleRate: envStr("POLLY_SAMPLE_RATE", "24000"),
		OpenAIBaseURL:   envStr("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIModel:     envStr("OPENAI_TTS_MODEL", "tts-1"),

		ChromePath:        envStr("CHROME_PATH", ""),
		VideoWidth:        envInt("VIDEO_WIDTH", 1280),
		VideoHeight:       envInt("VIDEO_HEIGHT", 720),
		VideoFPS:          envInt("VIDEO_FPS", 30),
		Tick:              envDuration("TICK", 10*time.Millisecond),
		TransitionTimeout: envDuration("TRANSITION_TIMEOUT", 5*time.Second),
		RecordGrace:       envDuration("RECORD_GRACE", 30*time.Second),
		ClientTimeout:     envDuration("CLIENT_TIMEOUT", 30*time.Second),

		Fade:          envDuration("FADE", 5*time.Millisecond),
		SyncTolerance: time.Duration(envFloat("SYNC_TOLERANCE", 0.3) * float64(time.Second)),

		SynthConcurrency:   envInt("SYNTH_CONCURRENCY", 4),
		BatchConcurrency:   envInt("BATCH_CONCURRENCY", 2),
		BrowserConcurrency: envInt("BROWSER_CONCURRENCY", 1),

		LedgerMongoURI: envStr("LEDGER_MONGO_URI", ""),
		LedgerDatabase: envStr("LEDGER_MONGO_DB", "examcast"),

		AuditionPort: envInt("AUDITION_PORT", 8090),
	}
}

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("250ms") or bare seconds ("2.5").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
