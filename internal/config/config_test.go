package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LLM.DefaultProvider != "ollama" {
		t.Errorf("expected default provider 'ollama', got '%s'", cfg.LLM.DefaultProvider)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.STT.Language != "en-US" {
		t.Errorf("expected language 'en-US', got '%s'", cfg.STT.Language)
	}
	if cfg.TTS.MaxChars != 400 {
		t.Errorf("expected max chars 400, got %d", cfg.TTS.MaxChars)
	}
	if cfg.Playback.Policy != "drop-oldest" {
		t.Errorf("expected policy 'drop-oldest', got '%s'", cfg.Playback.Policy)
	}
	if cfg.Assistant.FailFast {
		t.Error("expected fail_fast to be off by default")
	}
	if cfg.LLM.IdleTimeout != time.Minute {
		t.Errorf("expected idle timeout 1m, got %v", cfg.LLM.IdleTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath_CreatesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".wakeloop", "config.yaml")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if cfg.STT.MaxDuration != 15*time.Second {
		t.Errorf("expected max duration 15s, got %v", cfg.STT.MaxDuration)
	}

	cfg2, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load existing config: %v", err)
	}
	if cfg2.LLM.DefaultProvider != cfg.LLM.DefaultProvider {
		t.Error("config values changed on reload")
	}
}

func TestLoadFromPath_ParsesDurationStrings(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
stt:
  provider: whisper
  max_duration: 8s
llm:
  default_provider: openai
  idle_timeout: 2m
`
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.STT.MaxDuration != 8*time.Second {
		t.Errorf("expected 8s, got %v", cfg.STT.MaxDuration)
	}
	if cfg.LLM.IdleTimeout != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.LLM.IdleTimeout)
	}
	if cfg.STT.Provider != "whisper" {
		t.Errorf("expected provider 'whisper', got '%s'", cfg.STT.Provider)
	}
	// Values absent from the file keep their defaults.
	if cfg.TTS.Voice != "nova" {
		t.Errorf("expected default voice 'nova', got '%s'", cfg.TTS.Voice)
	}
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := LoadFromPath(configPath); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WAKELOOP_LLM_DEFAULT_PROVIDER", "gemini")
	t.Setenv("WAKELOOP_ASSISTANT_FAIL_FAST", "true")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.DefaultProvider != "gemini" {
		t.Errorf("expected env override 'gemini', got '%s'", cfg.LLM.DefaultProvider)
	}
	if !cfg.Assistant.FailFast {
		t.Error("expected fail_fast from environment")
	}
	if cfg.LLM.Providers["gemini"].APIKey != "g-key" {
		t.Errorf("expected gemini key from GEMINI_API_KEY, got '%s'", cfg.LLM.Providers["gemini"].APIKey)
	}
}

func TestSaveToPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.TTS.Voice = "onyx"
	cfg.Playback.Policy = "block"
	if err := cfg.SaveToPath(configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.TTS.Voice != "onyx" {
		t.Errorf("expected voice 'onyx', got '%s'", loaded.TTS.Voice)
	}
	if loaded.Playback.Policy != "block" {
		t.Errorf("expected policy 'block', got '%s'", loaded.Playback.Policy)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, true},
		{"unknown wake provider", func(c *Config) { c.WakeWord.Provider = "snowboy" }, true},
		{"sensitivity above one", func(c *Config) { c.WakeWord.Sensitivity = 1.5 }, true},
		{"unknown stt provider", func(c *Config) { c.STT.Provider = "vosk" }, true},
		{"odd frame bytes", func(c *Config) { c.STT.FrameBytes = 3201 }, true},
		{"missing default provider", func(c *Config) { c.LLM.DefaultProvider = "anthropic" }, true},
		{"empty default provider", func(c *Config) { c.LLM.DefaultProvider = "" }, true},
		{"unknown tts provider", func(c *Config) { c.TTS.Provider = "polly" }, true},
		{"zero max chars", func(c *Config) { c.TTS.MaxChars = 0 }, true},
		{"unknown policy", func(c *Config) { c.Playback.Policy = "lifo" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"remote wake word", func(c *Config) { c.WakeWord.Provider = "remote" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnvFiles_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(wd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GROQ_API_KEY=from-file\nOPENAI_API_KEY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("GROQ_API_KEY", "")
	os.Unsetenv("GROQ_API_KEY")

	if err := LoadEnvFiles(); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if got := os.Getenv("OPENAI_API_KEY"); got != "from-env" {
		t.Errorf("existing variable overwritten: %s", got)
	}
	if got := os.Getenv("GROQ_API_KEY"); got != "from-file" {
		t.Errorf("expected GROQ_API_KEY from .env, got '%s'", got)
	}
}
