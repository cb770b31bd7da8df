// Aegis Desk core service: the event-driven animation and reaction
// engine behind the browser avatar overlay.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aegisdesk/go-aegis/internal/config"
	"github.com/aegisdesk/go-aegis/internal/log"
	"github.com/aegisdesk/go-aegis/pkg/avatar"
	"github.com/aegisdesk/go-aegis/pkg/briefing"
	"github.com/aegisdesk/go-aegis/pkg/hub"
	"github.com/aegisdesk/go-aegis/pkg/model"
	"github.com/aegisdesk/go-aegis/pkg/reaction"
	"github.com/aegisdesk/go-aegis/pkg/schedule"
	"github.com/aegisdesk/go-aegis/pkg/speech"
	"github.com/aegisdesk/go-aegis/pkg/tts"
	"github.com/aegisdesk/go-aegis/pkg/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// A .env file is optional; real deployments set the environment.
		log.Debug("no .env file loaded", "error", err)
	}

	cfg := config.Load()
	log.Init(cfg.LogLevel)
	logger := log.L()

	overlayHub := hub.New("avatar")

	library := model.NewLibrary(cfg.ModelsDir, log.Component("model"))
	if models := library.List(); len(models) > 0 {
		library.Activate(models[0])
	}

	machine := avatar.NewMachine(
		web.AvatarSink{Hub: overlayHub},
		avatar.WithAliases(library),
		avatar.WithLogger(log.Component("avatar")),
	)
	defer machine.Stop()

	synth := buildSynthesizer(cfg)
	defer synth.Close()

	clips := speech.NewStore(speech.DefaultStoreCapacity)
	queue := speech.NewQueue(synth, clips, machine, web.CaptionSink{Hub: overlayHub}, log.Component("speech"))
	defer queue.Close()

	table := reaction.NewTable(
		reaction.NewCommander(machine, queue, log.Component("commander")),
		log.Component("reaction"),
	)
	if err := table.LoadFile(cfg.ReactionsPath()); err != nil {
		// The service runs without rules until a config is posted.
		logger.Warn("reaction rules not loaded", "path", cfg.ReactionsPath(), "error", err)
	}

	var composer web.Composer
	if cfg.OpenAIKey != "" {
		c, err := briefing.NewComposer(cfg.OpenAIKey, log.Component("briefing"))
		if err != nil {
			logger.Warn("briefing composer disabled", "error", err)
		} else {
			composer = c
		}
	} else {
		logger.Info("no OpenAI key, briefings disabled")
	}

	gate := schedule.NewGatekeeper(log.Component("gatekeeper"))

	desk := web.NewDesk(web.DeskDeps{
		Machine:   machine,
		Queue:     queue,
		Hub:       overlayHub,
		Gate:      gate,
		Snapshots: table,
		Briefings: composer,
		Logger:    log.Component("desk"),
	})

	sched := schedule.NewScheduler(desk, log.Component("scheduler"))
	if schedCfg, err := schedule.LoadConfigFile(cfg.SchedulerPath()); err != nil {
		logger.Warn("scheduler config not loaded", "path", cfg.SchedulerPath(), "error", err)
	} else {
		gate.SetRules(schedCfg.Gatekeeper)
		sched.SetRoutines(schedCfg.Routines)
	}
	go sched.Run()
	defer sched.Stop()

	server := web.NewServer(cfg.Port, web.Deps{
		Machine:       machine,
		Table:         table,
		Queue:         queue,
		Clips:         clips,
		Gate:          gate,
		Scheduler:     sched,
		Library:       library,
		Hub:           overlayHub,
		Desk:          desk,
		Briefings:     composer,
		ReactionsPath: cfg.ReactionsPath(),
		SchedulerPath: cfg.SchedulerPath(),
		Logger:        log.Component("web"),
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// buildSynthesizer assembles the TTS chain from configuration:
// VOICEVOX first when a local engine is configured, OpenAI speech as
// fallback, and a silent mock when neither is available so the queue
// still paces captions.
func buildSynthesizer(cfg config.Config) tts.Provider {
	var providers []tts.Provider

	if cfg.VoicevoxURL != "" {
		v, err := tts.NewVoicevox(
			tts.WithBaseURL(cfg.VoicevoxURL),
			tts.WithVoice(cfg.VoicevoxSpeaker),
		)
		if err != nil {
			log.Warn("VOICEVOX synthesizer disabled", "error", err)
		} else {
			providers = append(providers, v)
		}
	}

	if cfg.OpenAIKey != "" {
		o, err := tts.NewOpenAI(tts.WithAPIKey(cfg.OpenAIKey))
		if err != nil {
			log.Warn("OpenAI synthesizer disabled", "error", err)
		} else {
			providers = append(providers, o)
		}
	}

	if len(providers) == 0 {
		log.Warn("no TTS provider configured, using silent synthesis")
		return tts.NewMock()
	}
	if len(providers) == 1 {
		return providers[0]
	}

	chain, err := tts.NewChainWithLogger(log.Component("tts"), providers...)
	if err != nil {
		return providers[0]
	}
	return chain
}
