package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. WAKELOOP_LLM_DEFAULT_PROVIDER.
const EnvPrefix = "WAKELOOP"

// Config holds all wakeloop configuration. It is loaded from
// ~/.wakeloop/config.yaml and can be overridden by environment variables.
type Config struct {
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	WakeWord  WakeWordConfig  `mapstructure:"wake_word" yaml:"wake_word"`
	STT       STTConfig       `mapstructure:"stt" yaml:"stt"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	TTS       TTSConfig       `mapstructure:"tts" yaml:"tts"`
	Playback  PlaybackConfig  `mapstructure:"playback" yaml:"playback"`
	Assistant AssistantConfig `mapstructure:"assistant" yaml:"assistant"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// AudioConfig selects devices and the microphone stream format.
type AudioConfig struct {
	// InputDevice and OutputDevice are matched against device names, exactly
	// first and then as a case-insensitive substring. Empty means the default.
	InputDevice  string `mapstructure:"input_device" yaml:"input_device"`
	OutputDevice string `mapstructure:"output_device" yaml:"output_device"`
	// SampleRate is the microphone rate; it must match the wake word engine.
	SampleRate int `mapstructure:"sample_rate" yaml:"sample_rate"`
	// ChunkSamples is the number of samples per microphone read.
	ChunkSamples int `mapstructure:"chunk_samples" yaml:"chunk_samples"`
	// InputFile replaces the microphone with a WAV file (testing and demos).
	InputFile string `mapstructure:"input_file" yaml:"input_file,omitempty"`
}

// WakeWordConfig configures wake word detection.
type WakeWordConfig struct {
	// Provider is "porcupine" or "remote".
	Provider     string        `mapstructure:"provider" yaml:"provider"`
	AccessKey    string        `mapstructure:"access_key" yaml:"access_key,omitempty"`
	ModelPath    string        `mapstructure:"model_path" yaml:"model_path,omitempty"`
	KeywordPaths []string      `mapstructure:"keyword_paths" yaml:"keyword_paths,omitempty"`
	Keywords     []string      `mapstructure:"keywords" yaml:"keywords,omitempty"`
	Sensitivity  float32       `mapstructure:"sensitivity" yaml:"sensitivity"`
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Threshold    float64       `mapstructure:"threshold" yaml:"threshold"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// STTConfig configures speech recognition.
type STTConfig struct {
	// Provider is "google", "stream" or "whisper".
	Provider        string        `mapstructure:"provider" yaml:"provider"`
	Language        string        `mapstructure:"language" yaml:"language"`
	FrameBytes      int           `mapstructure:"frame_bytes" yaml:"frame_bytes"`
	MaxDuration     time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	WhisperModel    string        `mapstructure:"whisper_model" yaml:"whisper_model,omitempty"`
	SilenceRMS      float64       `mapstructure:"silence_rms" yaml:"silence_rms"`
	MinSpeech       time.Duration `mapstructure:"min_speech" yaml:"min_speech"`
	EndSilence      time.Duration `mapstructure:"end_silence" yaml:"end_silence"`
}

// LLMConfig configures the chat model.
type LLMConfig struct {
	// DefaultProvider is a key of Providers.
	DefaultProvider string                    `mapstructure:"default_provider" yaml:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	SystemPrompt    string                    `mapstructure:"system_prompt" yaml:"system_prompt"`
	IdleTimeout     time.Duration             `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	MaxTokens       int                       `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64                   `mapstructure:"temperature" yaml:"temperature"`
}

// ProviderConfig configures one chat provider.
type ProviderConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model    string        `mapstructure:"model" yaml:"model,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	// Provider is "openai" or "google".
	Provider        string  `mapstructure:"provider" yaml:"provider"`
	Model           string  `mapstructure:"model" yaml:"model"`
	Voice           string  `mapstructure:"voice" yaml:"voice"`
	Language        string  `mapstructure:"language" yaml:"language"`
	Endpoint        string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey          string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	CredentialsFile string  `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
	MaxChars        int     `mapstructure:"max_chars" yaml:"max_chars"`
	SpeakingRate    float64 `mapstructure:"speaking_rate" yaml:"speaking_rate"`
	SampleRate      int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	Normalize       bool    `mapstructure:"normalize" yaml:"normalize"`
}

// PlaybackConfig tunes the playback buffer.
type PlaybackConfig struct {
	ChunkBytes      int     `mapstructure:"chunk_bytes" yaml:"chunk_bytes"`
	CapacitySeconds float64 `mapstructure:"capacity_seconds" yaml:"capacity_seconds"`
	// Policy is "unbounded", "block" or "drop-oldest".
	Policy string `mapstructure:"policy" yaml:"policy"`
}

// AssistantConfig tunes the orchestrator.
type AssistantConfig struct {
	// FailFast stops the loop on the first backend error instead of logging
	// it and listening for the next wake word.
	FailFast bool `mapstructure:"fail_fast" yaml:"fail_fast"`
}

// MetricsConfig configures the telemetry listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	// Events exposes the websocket event stream next to /metrics.
	Events bool `mapstructure:"events" yaml:"events"`
}

// JournalConfig configures the turn journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `mapstructure:"level" yaml:"level"`
	// Dir receives one log file per session.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with default values.
func Default() *Config {
	dir := DataDir()

	return &Config{
		Audio: AudioConfig{
			SampleRate:   16000,
			ChunkSamples: 512,
		},
		WakeWord: WakeWordConfig{
			Provider:    "porcupine",
			Keywords:    []string{"jarvis"},
			Sensitivity: 0.5,
			Endpoint:    "ws://127.0.0.1:8880/v1/wakeword/stream",
			Threshold:   0.5,
			Timeout:     5 * time.Second,
		},
		STT: STTConfig{
			Provider:     "google",
			Language:     "en-US",
			FrameBytes:   3200,
			MaxDuration:  15 * time.Second,
			Endpoint:     "ws://127.0.0.1:8880/v1/stt/stream",
			WhisperModel: "whisper-1",
			SilenceRMS:   0.015,
			MinSpeech:    250 * time.Millisecond,
			EndSilence:   800 * time.Millisecond,
		},
		LLM: LLMConfig{
			DefaultProvider: "ollama",
			Providers: map[string]ProviderConfig{
				"ollama": {
					Endpoint: "http://127.0.0.1:11434",
					Model:    "llama3.2",
				},
				"openai": {
					Model: "gpt-4o-mini",
				},
				"groq": {
					Endpoint: "https://api.groq.com/openai/v1",
					Model:    "llama-3.1-8b-instant",
				},
				"gemini": {
					Model: "gemini-2.0-flash",
				},
			},
			SystemPrompt: DefaultSystemPrompt,
			IdleTimeout:  60 * time.Second,
			MaxTokens:    256,
			Temperature:  0.7,
		},
		TTS: TTSConfig{
			Provider:     "openai",
			Model:        "tts-1",
			Voice:        "nova",
			Language:     "en-US",
			MaxChars:     400,
			SpeakingRate: 1.0,
			SampleRate:   24000,
			Normalize:    true,
		},
		Playback: PlaybackConfig{
			ChunkBytes:      48000,
			CapacitySeconds: 30,
			Policy:          "drop-oldest",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
			Events:  true,
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  filepath.Join(dir, "journal.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(dir, "logs"),
		},
	}
}

// DefaultSystemPrompt is the GLaDOS persona. Replies are spoken, so they
// stay short and free of markup.
const DefaultSystemPrompt = "You are GLaDOS from Portal. You answer with the classic GLaDOS sarcasm " +
	"while still remaining credible. You are concise and to the point, and when possible " +
	"your replies reference the Portal games. Your replies are spoken aloud, so never use " +
	"markdown, lists, code blocks or emoji."

// DataDir returns the wakeloop data directory (~/.wakeloop).
func DataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".wakeloop")
}

// DefaultPath returns ~/.wakeloop/config.yaml.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// LoadEnvFiles loads ~/.wakeloop/.env and then ./.env into the process
// environment. Variables already set are never overwritten, and missing
// files are skipped.
func LoadEnvFiles() error {
	for _, p := range []string{filepath.Join(DataDir(), ".env"), ".env"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from the default location.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath())
}

// LoadFromPath reads configuration from path and merges environment
// overrides. If the file doesn't exist it is created with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: WAKELOOP_LLM_DEFAULT_PROVIDER=openai
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Journal.DBPath = expandPath(cfg.Journal.DBPath)
	cfg.Logging.Dir = expandPath(cfg.Logging.Dir)
	cfg.STT.CredentialsFile = expandPath(cfg.STT.CredentialsFile)
	cfg.TTS.CredentialsFile = expandPath(cfg.TTS.CredentialsFile)
	cfg.applySecrets()

	return cfg, nil
}

// applySecrets fills empty keys from the conventional environment variables.
func (c *Config) applySecrets() {
	if c.WakeWord.AccessKey == "" {
		c.WakeWord.AccessKey = os.Getenv("PICOVOICE_ACCESS_KEY")
	}
	if c.STT.CredentialsFile == "" {
		c.STT.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.TTS.CredentialsFile == "" {
		c.TTS.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.STT.APIKey == "" {
		c.STT.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	for name, p := range c.LLM.Providers {
		if p.APIKey == "" {
			p.APIKey = APIKeyFromEnv(name)
			c.LLM.Providers[name] = p
		}
	}
}

// APIKeyFromEnv returns the conventional API key variable for a provider.
func APIKeyFromEnv(provider string) string {
	envVars := map[string]string{
		"openai": "OPENAI_API_KEY",
		"gemini": "GEMINI_API_KEY",
		"groq":   "GROQ_API_KEY",
	}
	if v, ok := envVars[strings.ToLower(provider)]; ok {
		return os.Getenv(v)
	}
	return ""
}

// SaveToPath writes the configuration to path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// Validate checks the configuration for errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Audio.ChunkSamples <= 0 {
		return fmt.Errorf("audio.chunk_samples must be positive")
	}

	if !oneOf(c.WakeWord.Provider, "porcupine", "remote") {
		return fmt.Errorf("invalid wake_word.provider '%s', must be one of: porcupine, remote", c.WakeWord.Provider)
	}
	if c.WakeWord.Sensitivity < 0 || c.WakeWord.Sensitivity > 1 {
		return fmt.Errorf("wake_word.sensitivity must be between 0 and 1")
	}

	if !oneOf(c.STT.Provider, "google", "stream", "whisper") {
		return fmt.Errorf("invalid stt.provider '%s', must be one of: google, stream, whisper", c.STT.Provider)
	}
	if c.STT.FrameBytes <= 0 || c.STT.FrameBytes%2 != 0 {
		return fmt.Errorf("stt.frame_bytes must be a positive even number")
	}

	if c.LLM.DefaultProvider == "" {
		return fmt.Errorf("llm.default_provider cannot be empty")
	}
	if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
		return fmt.Errorf("default provider '%s' not found in providers map", c.LLM.DefaultProvider)
	}
	if c.LLM.IdleTimeout < 0 {
		return fmt.Errorf("llm.idle_timeout cannot be negative")
	}

	if !oneOf(c.TTS.Provider, "openai", "google") {
		return fmt.Errorf("invalid tts.provider '%s', must be one of: openai, google", c.TTS.Provider)
	}
	if c.TTS.MaxChars <= 0 {
		return fmt.Errorf("tts.max_chars must be positive")
	}

	if !oneOf(c.Playback.Policy, "unbounded", "block", "drop-oldest") {
		return fmt.Errorf("invalid playback.policy '%s', must be one of: unbounded, block, drop-oldest", c.Playback.Policy)
	}
	if c.Playback.ChunkBytes <= 0 {
		return fmt.Errorf("playback.chunk_bytes must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
