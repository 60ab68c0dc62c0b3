package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/wakeloop/internal/assistant"
	"github.com/normanking/wakeloop/internal/audio"
	"github.com/normanking/wakeloop/internal/bus"
	"github.com/normanking/wakeloop/internal/capture"
	"github.com/normanking/wakeloop/internal/chat"
	"github.com/normanking/wakeloop/internal/config"
	"github.com/normanking/wakeloop/internal/device"
	"github.com/normanking/wakeloop/internal/journal"
	"github.com/normanking/wakeloop/internal/llm"
	"github.com/normanking/wakeloop/internal/metrics"
	"github.com/normanking/wakeloop/internal/playback"
	"github.com/normanking/wakeloop/internal/stt"
	"github.com/normanking/wakeloop/internal/tts"
	"github.com/normanking/wakeloop/internal/ui"
	"github.com/normanking/wakeloop/internal/wakeword"
)

// speakerFramesPerBuffer is the output stream's write granularity in samples.
const speakerFramesPerBuffer = 1024

// ═══════════════════════════════════════════════════════════════════════════════
// RUN COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Listen for the wake word and answer (default)",
		Long: `Run the voice loop until interrupted.

Every microphone chunk is checked for the wake word. After a wake word the
following speech is transcribed, sent to the chat model and the reply is
spoken. Speaking over a reply stops it.

With audio.input_file set, the recording is used instead of the microphone
and the command exits after answering it.

Examples:
  wakeloop run
  wakeloop run --monitor
  WAKELOOP_AUDIO_INPUT_FILE=question.wav wakeloop run`,
		RunE: runLoop,
	}
	cmd.Flags().BoolVar(&monitor, "monitor", false, "show the live monitor")
	return cmd
}

// cleanupStack runs registered cleanups in reverse order.
type cleanupStack []func()

func (c *cleanupStack) push(f func()) { *c = append(*c, f) }

func (c cleanupStack) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func runLoop(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cleanup cleanupStack
	defer cleanup.run()

	eventBus := bus.New(bus.DefaultHistorySize)
	cleanup.push(func() { _ = eventBus.Close() })

	collector := metrics.NewCollector(eventBus)
	collector.Start()
	cleanup.push(collector.Stop)

	if err := startTelemetry(c, eventBus, &cleanup); err != nil {
		return err
	}
	if err := startJournal(c, eventBus, &cleanup); err != nil {
		return err
	}

	if err := device.Initialize(); err != nil {
		return err
	}
	cleanup.push(func() { _ = device.Terminate() })

	source, err := openSource(c)
	if err != nil {
		return err
	}
	cleanup.push(func() { _ = source.Close() })

	detector, err := wakeword.New(c.WakeWord, source.SampleRate())
	if err != nil {
		return fmt.Errorf("failed to create wake word detector: %w", err)
	}
	cleanup.push(func() { _ = detector.Close() })

	recognizer, err := stt.New(ctx, c.STT, source.SampleRate())
	if err != nil {
		return fmt.Errorf("failed to create recognizer: %w", err)
	}
	cleanup.push(func() { _ = recognizer.Close() })

	session, _, err := newChatSession(c)
	if err != nil {
		return err
	}

	synth, err := tts.New(ctx, c.TTS)
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}
	cleanup.push(func() { _ = synth.Close() })

	player, err := openPlayer(c, synth.SampleRate(), &cleanup)
	if err != nil {
		return err
	}

	orch, err := assistant.New(assistant.Components{
		Source:     source,
		Detector:   detector,
		Recognizer: recognizer,
		Chat:       session,
		Synth:      synth,
		Player:     player,
	}, assistant.Config{
		FailFast: c.Assistant.FailFast,
		Capture: capture.Options{
			FrameSize:   c.STT.FrameBytes,
			MaxDuration: c.STT.MaxDuration,
		},
	}, eventBus)
	if err != nil {
		return err
	}

	log.Info().
		Str("wake_word", detector.Name()).
		Str("stt", recognizer.Name()).
		Str("llm", session.Provider()).
		Str("tts", synth.Name()).
		Msg("wakeloop ready")

	// A recorded input ends on its own; its reply is still queued then.
	loop := func(ctx context.Context) error {
		if err := orch.Run(ctx); err != nil {
			return err
		}
		if err := player.Drain(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	if monitor {
		m := ui.NewMonitor(eventBus,
			ui.WithDashboard(metrics.NewDashboard(collector)),
			ui.WithPlaybackProbe(player.IsPlaying),
			ui.WithTheme(theme()),
		)
		return ui.RunMonitor(ctx, m, loop)
	}
	return loop(ctx)
}

func startTelemetry(c *config.Config, eventBus *bus.Bus, cleanup *cleanupStack) error {
	if !c.Metrics.Enabled {
		return nil
	}

	var routes []func(*http.ServeMux)
	if c.Metrics.Events {
		observer := bus.NewObserver(eventBus, bus.DefaultObserverConfig())
		cleanup.push(func() { _ = observer.Close() })
		routes = append(routes, observer.Routes)
	}

	srv := metrics.NewServer(c.Metrics.Listen, routes...)
	if err := srv.Start(); err != nil {
		return err
	}
	cleanup.push(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry server shutdown")
		}
	})
	return nil
}

func startJournal(c *config.Config, eventBus *bus.Bus, cleanup *cleanupStack) error {
	if !c.Journal.Enabled {
		return nil
	}
	store, err := journal.Open(c.Journal.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	cleanup.push(func() { _ = store.Close() })

	rec := journal.NewRecorder(store, eventBus)
	cleanup.push(func() { _ = rec.Close() })
	return nil
}

// openSource opens the configured input file, or the microphone.
func openSource(c *config.Config) (assistant.AudioSource, error) {
	if c.Audio.InputFile != "" {
		src, err := audio.OpenFileSource(c.Audio.InputFile, c.Audio.SampleRate, c.Audio.ChunkSamples)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		return src, nil
	}
	mic, err := device.OpenMicrophone(c.Audio.InputDevice, c.Audio.SampleRate, c.Audio.ChunkSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	return mic, nil
}

// openPlayer opens the speaker at rate and starts a playback buffer on it.
func openPlayer(c *config.Config, rate int, cleanup *cleanupStack) (*playback.Buffer, error) {
	speaker, err := device.OpenSpeaker(c.Audio.OutputDevice, rate, speakerFramesPerBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open speaker: %w", err)
	}
	cleanup.push(func() { _ = speaker.Close() })

	player := playback.New(speaker, playbackConfig(c.Playback, rate))
	player.Start()
	cleanup.push(player.Stop)
	return player, nil
}

func playbackConfig(pc config.PlaybackConfig, rate int) playback.Config {
	return playback.Config{
		ChunkSize: pc.ChunkBytes,
		Capacity:  int(pc.CapacitySeconds * float64(rate*audio.BytesPerSample)),
		Policy:    playback.Policy(pc.Policy),
	}
}

// newChatSession returns the session and the metered provider behind it.
func newChatSession(c *config.Config) (*chat.Session, *llm.MetricsProvider, error) {
	provider, err := llm.NewProvider(c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat provider: %w", err)
	}
	session := chat.New(provider, chat.Config{
		SystemPrompt: c.LLM.SystemPrompt,
		Model:        c.LLM.Providers[c.LLM.DefaultProvider].Model,
		IdleTimeout:  c.LLM.IdleTimeout,
		MaxTokens:    c.LLM.MaxTokens,
		Temperature:  c.LLM.Temperature,
	})
	return session, provider, nil
}
