// Command vocalink is a realtime voice client for conversational agent
// servers. It captures microphone audio, streams it to the agent over a
// duplex message channel, and plays the agent's synthesized replies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/vocalink/internal/backend"
	"github.com/MrWong99/vocalink/internal/config"
	"github.com/MrWong99/vocalink/internal/health"
	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/session"
	"github.com/MrWong99/vocalink/internal/transport"
	"github.com/MrWong99/vocalink/pkg/audio/capture"
	"github.com/MrWong99/vocalink/pkg/audio/capture/malgodev"
	"github.com/MrWong99/vocalink/pkg/audio/playback"
	"github.com/MrWong99/vocalink/pkg/audio/playback/otosink"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	sessionID := flag.String("session", "", "session identifier (random UUID when empty)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocalink: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocalink: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}

	slog.Info("vocalink starting",
		"version", version,
		"config", *configPath,
		"agent_url", cfg.Agent.URL,
		"session_id", id,
		"log_level", cfg.LogLevel,
	)

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(ctx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.Default()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Backend side-channel (optional) ───────────────────────────────────────
	var backendClient *backend.Client
	if cfg.Backend.BaseURL != "" {
		backendClient = backend.New(cfg.Backend.BaseURL)
		info, err := backendClient.GetSessionInfo(ctx, id)
		if err != nil {
			slog.Warn("session metadata unavailable", "err", err)
		} else {
			slog.Info("session metadata loaded", "session_id", info.SessionID, "fields", len(info.PatientInfo))
		}
	}

	// ── Session manager ───────────────────────────────────────────────────────
	mgr := session.NewManager(session.Config{
		Dial: func(ctx context.Context, sessionID string) (session.Transport, error) {
			return transport.Dial(ctx, cfg.Agent.URL, sessionID)
		},
		NewCapture: func() (session.Capture, error) {
			dev, err := malgodev.Open(cfg.Audio.CaptureRate)
			if err != nil {
				return nil, err
			}
			return capture.New(dev, capture.Config{
				TargetRate: cfg.Audio.TargetRate,
				ChunkSize:  cfg.Audio.ChunkSize,
				QueueDepth: cfg.Audio.QueueDepth,
			}), nil
		},
		NewPlayer: func(onSpeaking func(bool)) (session.Player, error) {
			sink, err := otosink.New(cfg.Audio.PlaybackRate)
			if err != nil {
				return nil, err
			}
			return playback.NewScheduler(sink, playback.NewStandardDecoder(),
				playback.WithSpeakingFunc(onSpeaking),
				playback.WithDecodeErrorFunc(func() {
					metrics.SegmentDecodeErrors.Add(context.Background(), 1)
				}),
				playback.WithQueueFunc(func(delta int) {
					metrics.PlaybackQueueDepth.Add(context.Background(), int64(delta))
				}),
			), nil
		},
		Backend: backendClient,
		Metrics: metrics,
		OnTranscript: func(text string) {
			fmt.Printf("you: %s\n", text)
		},
		OnStatus: printStatus,
	})

	// ── Debug listener (optional) ─────────────────────────────────────────────
	if cfg.Debug.ListenAddr != "" {
		go serveDebug(cfg.Debug.ListenAddr, mgr)
	}

	// ── Run the call ──────────────────────────────────────────────────────────
	if err := mgr.Start(ctx, id); err != nil {
		slog.Error("session start failed", "err", err)
		return 1
	}
	done := mgr.Done()

	slog.Info("call connected — press Ctrl+C to hang up")

	select {
	case <-ctx.Done():
		stop()
		hangupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mgr.Hangup(hangupCtx); err != nil {
			slog.Error("hangup error", "err", err)
			return 1
		}
	case <-done:
		// The stream ended on its own (server closure or transport failure).
	}

	<-done
	slog.Info("goodbye")
	return 0
}

// serveDebug runs the local diagnostics listener with health probes and the
// Prometheus scrape endpoint.
func serveDebug(addr string, mgr *session.Manager) {
	mux := http.NewServeMux()

	h := health.New(health.Checker{
		Name: "session",
		Check: func(context.Context) error {
			if mgr.State() != session.StateActive {
				return fmt.Errorf("no active session (state=%s)", mgr.State())
			}
			return nil
		},
	})
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	slog.Info("debug listener started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("debug listener stopped", "err", err)
	}
}

// printStatus renders lifecycle transitions as terminal status lines.
func printStatus(st session.Status) {
	switch st.State {
	case session.StateStarting:
		fmt.Println("● connecting…")
	case session.StateActive:
		if st.AgentSpeaking {
			fmt.Println("● agent speaking")
		} else {
			fmt.Println("● listening (mic live)")
		}
	case session.StateClosing:
		fmt.Println("● hanging up…")
	case session.StateIdle:
		fmt.Println("● call ended")
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
