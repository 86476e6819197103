// Command aural is a dictation tool: a global hotkey toggles a
// realtime speech-to-text session against the configured provider, and
// finished transcripts land in history and on the clipboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.aural.dev/aural/audiocapture"
	"go.aural.dev/aural/config"
	"go.aural.dev/aural/hotkey"
	"go.aural.dev/aural/internal/app"
	"go.aural.dev/aural/internal/types"
	"go.aural.dev/aural/langdetect"
	"go.aural.dev/aural/pcm"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		providerFlag  = flag.String("provider", "", "speech provider (macOS, OpenAI, Gemini, ElevenLabs, Grok)")
		modelFlag     = flag.String("model", "", "provider model id")
		languageFlag  = flag.String("language", "", "ISO-639-1 language code, empty for auto-detect")
		deviceFlag    = flag.String("device", "", "audio input device UID")
		saveFlag      = flag.Bool("save", false, "persist provider/model/language/device to the config file")
		listProviders = flag.Bool("list-providers", false, "print known providers and exit")
		listModels    = flag.Bool("list-models", false, "print the provider's model catalog and exit")
		listDevices   = flag.Bool("list-devices", false, "print audio input devices and exit")
		transcribe    = flag.String("transcribe", "", "transcribe an audio file and exit")
		historyFlag   = flag.Int("history", 0, "print the N most recent dictations and exit")
		noHotkey      = flag.Bool("no-hotkey", false, "start dictating immediately instead of waiting for the hotkey")
		verbose       = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.Debug("starting", "version", version, "commit", commit)

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}
	applyOverrides(cfg, *providerFlag, *modelFlag, *languageFlag, *deviceFlag)
	if *saveFlag {
		if err := cfg.Save(); err != nil {
			fatal("save config: %v", err)
		}
	}

	switch {
	case *listProviders:
		printProviders(cfg)
	case *listDevices:
		printDevices()
	case *listModels:
		printModels(cfg)
	case *transcribe != "":
		transcribeFile(cfg, *transcribe)
	case *historyFlag > 0:
		printHistory(cfg, *historyFlag)
	default:
		runDictation(cfg, *noHotkey)
	}
}

func applyOverrides(cfg *config.Config, provider, model, language, device string) {
	if provider != "" {
		cfg.Provider = types.Provider(provider)
	}
	if model != "" {
		cfg.Model = model
	}
	if language != "" {
		cfg.Language = language
	}
	if device != "" {
		cfg.AudioInputDeviceUID = device
	}
}

func printProviders(cfg *config.Config) {
	for _, p := range types.Providers() {
		info := p.Info()
		marker := " "
		if p == cfg.Provider {
			marker = "*"
		}
		key := "no key needed"
		if info.RequiresAPIKey {
			if cfg.APIKey(p) != "" {
				key = "key configured"
			} else {
				key = "key missing (" + info.EnvVar + ")"
			}
		}
		fmt.Printf("%s %-12s %-14s %s\n", marker, p, key, info.Description)
	}
}

func printModels(cfg *config.Config) {
	svc := app.New(cfg, app.Callbacks{})
	defer svc.Shutdown()

	models, err := svc.Models()
	if err != nil {
		fatal("list models: %v", err)
	}
	for _, m := range models {
		marker := " "
		if m.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %-28s %s\n", marker, m.ID, m.DisplayName)
	}
}

func printDevices() {
	capture, err := audiocapture.New(audiocapture.Config{})
	if err != nil {
		fatal("init audio: %v", err)
	}
	defer capture.Close()

	devices, err := capture.Devices()
	if err != nil {
		fatal("list devices: %v", err)
	}
	for _, d := range devices {
		fmt.Printf("%-40s %s\n", d.UID, d.Name)
	}
}

func transcribeFile(cfg *config.Config, path string) {
	svc := app.New(cfg, app.Callbacks{})
	defer svc.Shutdown()

	if data, err := os.ReadFile(path); err == nil {
		if info, err := pcm.ProbeWAV(data); err == nil {
			slog.Info("transcribing",
				"file", path, "duration", info.Duration, "rate", info.SampleRate)
		}
	}

	rec, err := svc.TranscribeFile(context.Background(), path)
	if err != nil {
		fatal("transcribe: %v", err)
	}
	fmt.Println(rec.Text)
}

func printHistory(cfg *config.Config, limit int) {
	svc := app.New(cfg, app.Callbacks{})
	defer svc.Shutdown()

	records, err := svc.History(limit)
	if err != nil {
		fatal("history: %v", err)
	}
	for _, rec := range records {
		lang := rec.Language
		if name := langdetect.DisplayName(lang); name != "" {
			lang = name
		}
		fmt.Printf("[%s] %s: %s\n", lang, rec.Provider, rec.Text)
	}
}

func runDictation(cfg *config.Config, immediate bool) {
	var listener *hotkey.Listener

	svc := app.New(cfg, app.Callbacks{
		OnPartial: func(text string) {
			fmt.Fprintf(os.Stderr, "\r\033[K… %s", text)
		},
		OnFinal: func(rec types.TranscriptRecord) {
			fmt.Fprintf(os.Stderr, "\r\033[K")
			fmt.Println(rec.Text)
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
		},
		OnState: func(listening bool) {
			if listening {
				fmt.Fprintln(os.Stderr, "listening…")
			} else {
				fmt.Fprintln(os.Stderr, "stopped")
				if listener != nil {
					listener.SetActive(false)
				}
			}
		},
	})
	defer svc.Shutdown()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if immediate {
		if err := svc.StartDictation(context.Background()); err != nil {
			fatal("start dictation: %v", err)
		}
		<-sig
		svc.StopDictation()
		return
	}

	listener = hotkey.NewListener([]string{"ctrl", "shift", "d"})
	go listener.Start()
	defer listener.Stop()
	fmt.Fprintf(os.Stderr, "provider %s ready, press ctrl+shift+d to dictate\n", cfg.Provider)

	for {
		select {
		case ev, ok := <-listener.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case hotkey.EventStart:
				if err := svc.StartDictation(context.Background()); err != nil {
					fmt.Fprintf(os.Stderr, "start dictation: %v\n", err)
					listener.SetActive(false)
				}
			case hotkey.EventStop:
				svc.StopDictation()
			}
		case <-sig:
			svc.StopDictation()
			return
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
