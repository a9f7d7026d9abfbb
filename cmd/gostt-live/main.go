package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-live/internal/audio"
	"github.com/chaz8081/gostt-live/internal/client"
	"github.com/chaz8081/gostt-live/internal/config"
	"github.com/chaz8081/gostt-live/internal/hotkey"
	"github.com/chaz8081/gostt-live/internal/inject"
	"github.com/chaz8081/gostt-live/internal/metrics"
	"github.com/chaz8081/gostt-live/internal/protocol"
	"github.com/chaz8081/gostt-live/internal/publish"
	"github.com/chaz8081/gostt-live/internal/session"
	"github.com/chaz8081/gostt-live/internal/transcript"
	"github.com/chaz8081/gostt-live/internal/transport"
)

// flags holds the command line. Only flags the user actually set
// override the config file.
type flags struct {
	configPath    string
	file          string
	host          string
	port          int
	model         string
	language      string
	translate     bool
	noVAD         bool
	outputSRT     string
	saveRecording bool
	outputWAV     string
	debug         bool
	inject        bool
	hotkey        bool
	mqttBroker    string
	metricsAddr   string
	initConfig    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var f flags
	registerFlags(flag.CommandLine, &f)
	flag.Parse()

	if f.initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
			return 1
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		} else {
			fmt.Printf("Wrote default config to %s\n", path)
		}
		return 0
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: config: %v\n", err)
		return 1
	}
	applyFlags(cfg, flag.CommandLine, &f)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: config validation: %v\n", err)
		return 1
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if f.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Fail before connecting so a typo doesn't occupy a server slot.
	var fileSrc *audio.FileSource
	if f.file != "" {
		fileSrc, err = audio.NewFileSource(f.file, cfg.Audio.ChunkFrames)
		if err != nil {
			if errors.Is(err, audio.ErrFileNotFound) {
				fmt.Fprintf(os.Stderr, "[ERROR]: Audio file not found: %s\n", f.file)
			} else {
				fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
			}
			return 1
		}
	}

	printBanner(cfg, f.file)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("[metrics] server stopped", "error", err)
			}
		}()
	}

	task := protocol.TaskTranscribe
	if cfg.Session.Translate {
		task = protocol.TaskTranslate
	}
	sessOpts := session.Options{
		Language:          cfg.Session.Language,
		Task:              task,
		Model:             cfg.Session.Model,
		UseVAD:            cfg.Session.UseVAD,
		MaxClients:        cfg.Session.MaxClients,
		MaxConnectionTime: cfg.Session.MaxConnectionTime,
		Debug:             f.debug,
		Metrics:           m,
	}
	// Set below for microphone input; a hold-mode hotkey starts it paused.
	var paused *audio.Pausable
	sessOpts.Idle = func() bool { return paused != nil && paused.Paused() }

	// The uid is fixed up front so listeners can tag what they emit.
	sessOpts.UID = uuid.NewString()

	var listeners []transcript.CompletedFunc
	if cfg.Inject.Enabled {
		listeners = append(listeners, inject.OnCompleted(inject.NewInjector(cfg.Inject.Method), slog.Default()))
		slog.Info("[inject] text injector ready", "method", cfg.Inject.Method)
	}
	if cfg.MQTT.Broker != "" {
		pub, err := publish.Connect(publish.Options{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      byte(cfg.MQTT.QoS),
			Retain:   cfg.MQTT.Retain,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
			return 1
		}
		defer pub.Close()
		listeners = append(listeners, pub.OnCompleted(sessOpts.UID))
	}

	topts := transport.DefaultOptions()
	topts.HandshakeTimeout = cfg.Server.HandshakeTimeout

	var wavPath string
	if cfg.Output.SaveRecording {
		wavPath = cfg.Output.WAVPath
	}

	c := client.New(client.Options{
		Host:                   cfg.Server.Host,
		Port:                   cfg.Server.Port,
		Secure:                 cfg.Server.Secure,
		Transport:              topts,
		Session:                sessOpts,
		SRTPath:                cfg.Output.SRTPath,
		WAVPath:                wavPath,
		DisconnectAfterSilence: cfg.Session.DisconnectAfterSilence,
		OnCompleted:            listeners,
	})

	var src audio.Source = fileSrc
	var listener *hotkey.Listener
	if fileSrc == nil {
		rec, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.ChunkFrames)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR]: Failed to initialize audio recorder: %v\n\nCheck that microphone access is granted.\n", err)
			return 1
		}
		defer rec.Close()

		paused = audio.NewPausable(rec, func(held bool) {
			c.Session().SetRecording(!held)
			if held {
				c.Session().Printf("[INFO]: Paused")
			} else {
				c.Session().Printf("[INFO]: Resumed")
			}
		})
		src = paused

		if cfg.Hotkey.Enabled {
			listener = hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.Mode)
			if listener.InitiallyPaused() {
				paused.SetPaused(true)
			}
			go listener.Start()
			go hotkey.Drive(ctx, listener.Events(), paused)
			slog.Info("[hotkey] listener ready", "keys", strings.Join(cfg.Hotkey.Keys, "+"), "mode", cfg.Hotkey.Mode)
		}
	}

	err = c.Run(ctx, src)
	if listener != nil {
		listener.Stop()
	}
	if err != nil {
		switch {
		case errors.Is(err, client.ErrServerFull):
			fmt.Fprintln(os.Stderr, "[ERROR]: Server is full, try again later.")
		default:
			fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		}
		return 1
	}
	if ctx.Err() != nil {
		fmt.Println("\n[INFO]: Interrupted, goodbye!")
	}
	return 0
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

func registerFlags(fs *flag.FlagSet, f *flags) {
	fs.StringVar(&f.configPath, "config", "", "path to config file (default: ~/.config/gostt-live/config.yaml)")
	fs.StringVar(&f.file, "file", "", "transcribe an audio file instead of the microphone")
	fs.StringVar(&f.host, "host", "", "transcription server host")
	fs.IntVar(&f.port, "port", 0, "transcription server port")
	fs.StringVar(&f.model, "model", "", "model the server should use")
	fs.StringVar(&f.language, "language", "", "spoken language code, or \"auto\" to detect")
	fs.BoolVar(&f.translate, "translate", false, "translate to English instead of transcribing")
	fs.BoolVar(&f.noVAD, "no-vad", false, "disable server-side voice activity detection")
	fs.StringVar(&f.outputSRT, "output-srt", "", "subtitle file written on exit")
	fs.BoolVar(&f.saveRecording, "save-recording", false, "save the streamed audio as WAV")
	fs.StringVar(&f.outputWAV, "output-wav", "", "path for --save-recording")
	fs.BoolVar(&f.debug, "debug", false, "verbose logging of protocol traffic")
	fs.BoolVar(&f.inject, "inject", false, "type completed text into the focused application")
	fs.BoolVar(&f.hotkey, "hotkey", false, "enable the global pause/resume hotkey")
	fs.StringVar(&f.mqttBroker, "mqtt-broker", "", "publish completed segments to this MQTT broker")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.BoolVar(&f.initConfig, "init-config", false, "write the default config file and exit")
}

// applyFlags copies explicitly set flags over the config.
func applyFlags(cfg *config.Config, fs *flag.FlagSet, f *flags) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "host":
			cfg.Server.Host = f.host
		case "port":
			cfg.Server.Port = f.port
		case "model":
			cfg.Session.Model = f.model
		case "language":
			cfg.Session.Language = f.language
		case "translate":
			cfg.Session.Translate = f.translate
		case "no-vad":
			cfg.Session.UseVAD = !f.noVAD
		case "output-srt":
			cfg.Output.SRTPath = f.outputSRT
		case "save-recording":
			cfg.Output.SaveRecording = f.saveRecording
		case "output-wav":
			cfg.Output.WAVPath = f.outputWAV
		case "inject":
			cfg.Inject.Enabled = f.inject
		case "hotkey":
			cfg.Hotkey.Enabled = f.hotkey
		case "mqtt-broker":
			cfg.MQTT.Broker = f.mqttBroker
		case "metrics-addr":
			cfg.MetricsAddr = f.metricsAddr
		case "debug":
			if f.debug {
				cfg.LogLevel = "debug"
			}
		}
	})
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, file string) {
	input := "microphone"
	if file != "" {
		input = file
	}
	lang := cfg.Session.Language
	if lang == "" {
		lang = "auto"
	}
	vad := "on"
	if !cfg.Session.UseVAD {
		vad = "off"
	}

	fmt.Println("=== gostt-live ===")
	fmt.Printf("  Server:  %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Model:   %s (language: %s, vad: %s)\n", cfg.Session.Model, lang, vad)
	fmt.Printf("  Input:   %s\n", input)
	if cfg.Output.SRTPath != "" {
		fmt.Printf("  Output:  %s\n", cfg.Output.SRTPath)
	}
	if cfg.Hotkey.Enabled {
		fmt.Printf("  Hotkey:  %s (%s mode)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("==================")
}
