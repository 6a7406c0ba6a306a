package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aria/pkg/bus"
	"aria/pkg/channel/console"
	"aria/pkg/channel/telegram"
	"aria/pkg/config"
	"aria/pkg/engine"
	"aria/pkg/logger"
	"aria/pkg/skill"
	"aria/pkg/skills/greeting"
	"aria/pkg/skills/system"
	"aria/pkg/skills/timedate"
	"aria/pkg/status"
	"aria/pkg/tts"
	"aria/pkg/ui/chat"
)

const defaultAssistantName = "Aria"

var useChatUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the assistant",
	Long:  "Loads configuration, starts the engine with the built-in skills, and serves the enabled channels until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.run")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, registry, eng := buildAssistant(cfg, slog.Default())
		defer b.Close()

		eng.Start()
		defer eng.Stop()

		errCh := make(chan error, 4)

		speaker := tts.NewSpeaker(b, synthesizerFor(cfg, slog.Default()), slog.Default())
		go func() { errCh <- speaker.Run(runCtx) }()

		if cfg.Status.Enabled {
			server := status.NewServer(cfg.Status, eng, registry, slog.Default())
			go func() { errCh <- server.Run(runCtx) }()
		}

		if cfg.Channels.Telegram.Enabled {
			adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, b, slog.Default())
			if err != nil {
				log.Error("Telegram configuration invalid", "error", err)
				return
			}
			go func() { errCh <- adapter.Run(runCtx) }()
		}

		frontDone := make(chan error, 1)
		switch {
		case useChatUI:
			go func() {
				frontDone <- chat.Run(runCtx, b, func(text string) bool {
					return eng.Submit(text, chat.Source)
				}, assistantName(cfg))
			}()
		case cfg.Channels.Console.Enabled:
			adapter := console.NewAdapter(b, slog.Default())
			go func() { frontDone <- adapter.Run(runCtx) }()
		default:
			// Headless: channels and the status endpoint keep the process alive.
			go func() {
				<-runCtx.Done()
				frontDone <- nil
			}()
		}

		log.Info("Assistant started", "name", assistantName(cfg), "skills", len(registry.Skills()))

		select {
		case <-runCtx.Done():
			<-frontDone
		case err := <-frontDone:
			if err != nil {
				log.Error("Front-end failed", "error", err)
			}
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Assistant runtime failed", "error", err)
			}
		case err := <-eng.Err():
			log.Error("Engine failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&useChatUI, "ui", false, "open the terminal chat window instead of the plain console")
}

// buildAssistant wires the bus, the registry with the built-in skills, and
// the engine.
func buildAssistant(cfg *config.Config, log *slog.Logger) (*bus.Bus, *skill.Registry, *engine.Engine) {
	b := bus.New(log)
	registry := skill.NewRegistry(b, log)

	registry.Load("greeting", greeting.New, skillConfigWithName(cfg, "greeting"))
	registry.Load("time_date", timedate.New, cfg.SkillFor("time_date"))
	registry.Load("system", system.Factory(b), cfg.SkillFor("system"))

	return b, registry, engine.New(b, registry, cfg.Assistant, log)
}

// skillConfigWithName threads the assistant's display name into the greeting
// skill unless it is set explicitly.
func skillConfigWithName(cfg *config.Config, name string) config.SkillConfig {
	skillCfg := cfg.SkillFor(name)
	if skillCfg.StringOption("name", "") == "" && cfg.Assistant.Name != "" {
		if skillCfg.Options == nil {
			skillCfg.Options = make(map[string]any, 1)
		}
		skillCfg.Options["name"] = cfg.Assistant.Name
	}

	return skillCfg
}

func synthesizerFor(cfg *config.Config, log *slog.Logger) tts.Synthesizer {
	if !cfg.TTS.Enabled {
		return tts.Null{}
	}

	synth, err := tts.NewCommand(cfg.TTS, log)
	if err != nil {
		log.Warn("Speech output disabled", "error", err)
		return tts.Null{}
	}

	return synth
}

func assistantName(cfg *config.Config) string {
	if cfg.Assistant.Name != "" {
		return cfg.Assistant.Name
	}

	return defaultAssistantName
}
