package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/wakeloop/internal/audio"
	"github.com/normanking/wakeloop/internal/capture"
	"github.com/normanking/wakeloop/internal/config"
	"github.com/normanking/wakeloop/internal/device"
	"github.com/normanking/wakeloop/internal/journal"
	"github.com/normanking/wakeloop/internal/stt"
	"github.com/normanking/wakeloop/internal/tts"
	"github.com/normanking/wakeloop/internal/ui"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DEVICES COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long: `List the audio devices PortAudio can open.

audio.input_device and audio.output_device are matched against the NAME
column: an exact name first, then a unique case-insensitive substring.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := device.Initialize(); err != nil {
				return err
			}
			defer device.Terminate()

			infos, err := device.List()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No audio devices found.")
				return nil
			}
			fmt.Println(ui.RenderDevices(infos, ui.NewStyles(theme())))
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SAY COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func sayCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "say [text]",
		Short: "Speak text through the configured synthesizer",
		Long: `Synthesize text and play it, or write it to a WAV file with --out.

Examples:
  wakeloop say "The cake is a lie."
  wakeloop say --out reply.wav "It is 42 degrees outside."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			synth, err := tts.New(ctx, c.TTS)
			if err != nil {
				return fmt.Errorf("failed to create synthesizer: %w", err)
			}
			defer synth.Close()

			pcm, err := synth.Synthesize(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(pcm) == 0 {
				return errors.New("nothing to say")
			}

			if outPath != "" {
				if err := os.WriteFile(outPath, audio.EncodeWAV(pcm, synth.SampleRate()), 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", outPath, err)
				}
				fmt.Printf("Wrote %s (%s of audio)\n", outPath, audio.Duration(pcm, synth.SampleRate()).Round(time.Millisecond))
				return nil
			}

			if err := device.Initialize(); err != nil {
				return err
			}
			var cleanup cleanupStack
			defer cleanup.run()
			cleanup.push(func() { _ = device.Terminate() })

			player, err := openPlayer(c, synth.SampleRate(), &cleanup)
			if err != nil {
				return err
			}
			if err := player.EnqueueContext(ctx, pcm); err != nil {
				return err
			}
			if err := player.Drain(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write a WAV file instead of playing")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CHAT COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [text]",
		Short: "Chat with the configured model by text",
		Long: `Send one message, or start a text conversation when no text is given.
The conversation uses the same system prompt and idle reset as the voice loop.

In a conversation, /reset starts over and /quit (or Ctrl+D) exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, provider, err := newChatSession(c)
			if err != nil {
				return err
			}
			md := ui.NewMarkdown(theme(), 80)

			if len(args) > 0 {
				reply, err := session.Chat(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Println(md.Render(reply))
				return nil
			}

			styles := ui.NewStyles(theme())
			fmt.Println(styles.Logo.Render("wakeloop chat") + styles.Timestamp.Render(" ("+session.Provider()+")"))

			defer func() {
				if st := provider.Stats(); st.Calls > 0 {
					fmt.Println(styles.Timestamp.Render(st.String()))
				}
			}()

			in := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print(styles.UserLabel.Render("> "))
				if !in.Scan() {
					fmt.Println()
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				case "/reset":
					session.Reset()
					fmt.Println(styles.Timestamp.Render("conversation reset"))
					continue
				}

				reply, err := session.Chat(ctx, line)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Println(styles.Error.Render(err.Error()))
					continue
				}
				fmt.Println(md.Render(reply))
			}
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRANSCRIBE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func transcribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a WAV or raw PCM16 file",
		Long: `Run the configured recognizer over a recording, the same way the voice
loop feeds it after a wake word. Raw files are read at audio.sample_rate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src, err := audio.OpenFileSource(args[0], c.Audio.SampleRate, c.Audio.ChunkSamples)
			if err != nil {
				return err
			}
			defer src.Close()

			rec, err := stt.New(ctx, c.STT, src.SampleRate())
			if err != nil {
				return fmt.Errorf("failed to create recognizer: %w", err)
			}
			defer rec.Close()

			session := capture.Start(ctx, rec, capture.Options{
				FrameSize:   c.STT.FrameBytes,
				MaxDuration: c.STT.MaxDuration,
			})
			for {
				chunk, err := src.Read(ctx)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					session.Cancel()
					return err
				}
				session.Feed(chunk)
			}
			session.End()

			if err := session.Wait(ctx); err != nil {
				return err
			}
			if err := session.Err(); err != nil {
				return err
			}
			text, ok := session.Result()
			if !ok {
				return errors.New("no speech recognized")
			}
			fmt.Println(text)
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// JOURNAL COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func journalCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(c.Journal.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			turns, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			today, err := store.Daily(ctx, time.Now().Format("2006-01-02"))
			if err != nil {
				return err
			}

			styles := ui.NewStyles(theme())
			fmt.Println(styles.Logo.Render("Today") + styles.Timestamp.Render(fmt.Sprintf(
				"  %d turns, %d failed, %d barge-ins", today.Turns, today.Failures, today.BargeIns)))
			fmt.Println(styles.RenderHorizontalLine(60))

			if len(turns) == 0 {
				fmt.Println("No turns recorded yet.")
				return nil
			}
			// Recent is newest first; print in conversation order.
			for i := len(turns) - 1; i >= 0; i-- {
				printTurn(styles, turns[i])
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of turns to show")
	return cmd
}

func printTurn(styles ui.Styles, t journal.Turn) {
	meta := fmt.Sprintf("%s  %s", t.CreatedAt.Local().Format("Jan 02 15:04:05"), t.Duration.Round(time.Millisecond))
	if t.BargeIn {
		meta += "  barge-in"
	}
	fmt.Println(styles.Timestamp.Render(meta))
	fmt.Println(styles.UserLabel.Render("You: ") + styles.UserText.Render(t.Transcript))
	if t.Status == journal.StatusFailed {
		fmt.Println(styles.Error.Render(fmt.Sprintf("%s failed: %s", t.ErrorStage, t.ErrorMsg)))
	} else {
		fmt.Println(styles.AssistantLabel.Render("Assistant: ") + styles.AssistantText.Render(t.Reply))
	}
	fmt.Println()
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := requireConfig()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redacted(c))
			if err != nil {
				return err
			}
			header := lipgloss.NewStyle().Bold(true).Render("# " + configPath())
			fmt.Println(header)
			fmt.Print(string(out))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(configPath())
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Long: `Write the default configuration file. Any command creates it on first
use, so on an existing install this resets it and needs --force.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to reset it)", path)
			}
			if err := config.Default().SaveToPath(path); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

// redacted returns a copy of c with every secret masked.
func redacted(c *config.Config) *config.Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 8 {
			return "****"
		}
		return s[:4] + "****"
	}
	out.WakeWord.AccessKey = mask(c.WakeWord.AccessKey)
	out.STT.APIKey = mask(c.STT.APIKey)
	out.TTS.APIKey = mask(c.TTS.APIKey)
	out.LLM.Providers = make(map[string]config.ProviderConfig, len(c.LLM.Providers))
	for name, p := range c.LLM.Providers {
		p.APIKey = mask(p.APIKey)
		out.LLM.Providers[name] = p
	}
	return &out
}
