// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Required credentials (bot token, audio API key) are checked by Validate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultAudioBaseURL points at the OpenAI-compatible audio provider.
const DefaultAudioBaseURL = "https://api.metisai.ir/openai/v1"

type Config struct {
	// Telegram
	BotToken string

	// Audio API
	AudioAPIKey     string
	AudioAPIBaseURL string
	AudioSTTModel   string
	AudioTTSModel   string
	AudioTTSVoice   string
	AudioTimeout    time.Duration

	// Access control
	VIPCode string

	// Polling
	PollLimit    int
	PollTimeout  time.Duration
	FetchBackoff time.Duration

	// Storage
	DataDir string

	// Operational HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail when
// credentials are missing; use Validate() before starting the bot for that.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	cfg.AudioAPIKey = os.Getenv("AUDIO_API_KEY")

	cfg.AudioAPIBaseURL = os.Getenv("AUDIO_API_BASE_URL")
	if cfg.AudioAPIBaseURL == "" {
		cfg.AudioAPIBaseURL = DefaultAudioBaseURL
	}
	cfg.AudioSTTModel = os.Getenv("AUDIO_STT_MODEL")
	if cfg.AudioSTTModel == "" {
		cfg.AudioSTTModel = "whisper-1"
	}
	cfg.AudioTTSModel = os.Getenv("AUDIO_TTS_MODEL")
	if cfg.AudioTTSModel == "" {
		cfg.AudioTTSModel = "tts-1-hd"
	}
	cfg.AudioTTSVoice = os.Getenv("AUDIO_TTS_VOICE")
	if cfg.AudioTTSVoice == "" {
		cfg.AudioTTSVoice = "alloy"
	}

	var err error
	if cfg.AudioTimeout, err = envDuration("AUDIO_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	cfg.VIPCode = os.Getenv("VIP_CODE")
	if cfg.VIPCode == "" {
		cfg.VIPCode = "VIP123"
	}

	if cfg.PollLimit, err = envInt("POLL_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.PollTimeout, err = envDuration("POLL_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchBackoff, err = envDuration("FETCH_BACKOFF", 5*time.Second); err != nil {
		return nil, err
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// Validate checks the credentials the bot cannot run without.
func (c *Config) Validate() error {
	if c.BotToken == "" || c.AudioAPIKey == "" {
		return fmt.Errorf("missing required env: BOT_TOKEN and AUDIO_API_KEY are required")
	}
	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s (want positive duration): %q", key, v)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s (want positive integer): %q", key, v)
	}
	return n, nil
}
