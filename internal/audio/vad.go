package audio

import "time"

// VADState is the classification of one processed frame.
type VADState int

const (
	VADSilence     VADState = iota // No speech seen yet
	VADSpeech                      // Speech in progress (including short pauses)
	VADEndOfSpeech                 // Enough trailing silence after speech
)

// String returns a human-readable state name.
func (s VADState) String() string {
	switch s {
	case VADSilence:
		return "silence"
	case VADSpeech:
		return "speech"
	case VADEndOfSpeech:
		return "end_of_speech"
	default:
		return "unknown"
	}
}

// VADConfig holds energy VAD thresholds.
type VADConfig struct {
	Threshold  float64       // RMS threshold (0-1)
	MinSpeech  time.Duration // Speech shorter than this is treated as noise
	MaxSilence time.Duration // Trailing silence that ends an utterance
}

// DefaultVADConfig returns thresholds tuned for a close-talking microphone.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Threshold:  0.015,
		MinSpeech:  250 * time.Millisecond,
		MaxSilence: 800 * time.Millisecond,
	}
}

// VAD is an RMS-energy endpointer. Time is measured in audio duration, not
// wall clock, so results depend only on the samples fed.
type VAD struct {
	cfg        VADConfig
	sampleRate int

	speech  time.Duration
	silence time.Duration
	active  bool
}

// NewVAD returns an endpointer for mono PCM16 at sampleRate.
func NewVAD(cfg VADConfig, sampleRate int) *VAD {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultVADConfig().Threshold
	}
	if cfg.MaxSilence == 0 {
		cfg.MaxSilence = DefaultVADConfig().MaxSilence
	}
	return &VAD{cfg: cfg, sampleRate: sampleRate}
}

// Process classifies frame and advances the endpointer.
func (v *VAD) Process(frame []byte) VADState {
	d := Duration(frame, v.sampleRate)
	loud := RMS(frame) >= v.cfg.Threshold

	if loud {
		v.speech += d
		v.silence = 0
		if v.speech >= v.cfg.MinSpeech {
			v.active = true
		}
	} else {
		v.silence += d
		if !v.active {
			// A blip that never reached MinSpeech.
			v.speech = 0
		}
	}

	switch {
	case v.active && v.silence >= v.cfg.MaxSilence:
		return VADEndOfSpeech
	case v.active || v.speech > 0:
		return VADSpeech
	default:
		return VADSilence
	}
}

// Active reports whether speech has been confirmed.
func (v *VAD) Active() bool { return v.active }

// Reset clears all state.
func (v *VAD) Reset() {
	v.speech = 0
	v.silence = 0
	v.active = false
}
