// Package config provides configuration management for wakeloop.
//
// # Configuration File
//
// The configuration lives at ~/.wakeloop/config.yaml and is created with
// defaults on first use. The file structure mirrors the structs in this
// package: audio, wake_word, stt, llm, tts, playback, assistant, metrics,
// journal and logging.
//
// # Environment Variables
//
// Any value can be overridden with the WAKELOOP_ prefix, nested keys joined
// by underscores:
//   - WAKELOOP_LLM_DEFAULT_PROVIDER=openai
//   - WAKELOOP_STT_PROVIDER=whisper
//   - WAKELOOP_LOGGING_LEVEL=debug
//
// Secrets are normally kept out of the YAML file. LoadEnvFiles reads
// ~/.wakeloop/.env and ./.env, and empty keys are then filled from
// OPENAI_API_KEY, GEMINI_API_KEY, GROQ_API_KEY, PICOVOICE_ACCESS_KEY and
// GOOGLE_APPLICATION_CREDENTIALS.
//
// # Usage
//
//	if err := config.LoadEnvFiles(); err != nil {
//	    return err
//	}
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
