// Package wakeword detects the wake phrase in microphone audio.
package wakeword

import (
	"fmt"
	"strings"

	"github.com/normanking/wakeloop/internal/config"
)

// Detector inspects one microphone chunk at a time. Detect reports whether
// the wake phrase ended somewhere in the audio seen so far.
type Detector interface {
	Detect(chunk []byte) (bool, error)
	SampleRate() int
	Name() string
	Close() error
}

// New builds the detector selected by cfg.Provider. sampleRate is the
// microphone rate; it is used by detectors that accept any rate.
func New(cfg config.WakeWordConfig, sampleRate int) (Detector, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "porcupine":
		return NewPorcupine(PorcupineConfig{
			AccessKey:    cfg.AccessKey,
			ModelPath:    cfg.ModelPath,
			KeywordPaths: cfg.KeywordPaths,
			Keywords:     cfg.Keywords,
			Sensitivity:  cfg.Sensitivity,
		})
	case "remote":
		return NewRemote(RemoteConfig{
			Endpoint:   cfg.Endpoint,
			WakeWords:  cfg.Keywords,
			Threshold:  cfg.Threshold,
			SampleRate: sampleRate,
			Timeout:    cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("wakeword: unknown provider: %s", cfg.Provider)
	}
}
