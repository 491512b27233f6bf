// SPDX-License-Identifier: MIT

// Command castbridged is the headless playback daemon: it authenticates
// against the media server, keeps the cast session alive, and exposes a small
// local ops surface for health, metrics and playback control.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/castbridge/castbridge/internal/auth"
	"github.com/castbridge/castbridge/internal/cachecontrol"
	"github.com/castbridge/castbridge/internal/cast"
	"github.com/castbridge/castbridge/internal/cast/go2tvsink"
	"github.com/castbridge/castbridge/internal/config"
	"github.com/castbridge/castbridge/internal/connectivity"
	"github.com/castbridge/castbridge/internal/identity"
	"github.com/castbridge/castbridge/internal/log"
	"github.com/castbridge/castbridge/internal/mediabrowser"
	"github.com/castbridge/castbridge/internal/orchestrator"
	"github.com/castbridge/castbridge/internal/player"
	"github.com/castbridge/castbridge/internal/progress"
	"github.com/castbridge/castbridge/internal/store"
	"github.com/castbridge/castbridge/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (commit: %s, built: %s)\n", version.ClientName, version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("daemon")
	logger.Info().Str("server", cfg.Server.URL).Str("data_dir", cfg.DataDir).Msg("starting")

	ident, err := identity.New(cfg.DataDir, cfg.Device.Name)
	if err != nil {
		logger.Fatal().Err(err).Msg("device identity unavailable")
	}
	logger.Info().Str("device_id", ident.DeviceID()).Str("device_name", ident.DeviceName()).Msg("identity ready")

	checker, err := connectivity.New(cfg.Server.URL, 10*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid server url")
	}
	checker.Start()
	defer checker.Stop()

	// Transport chain: cache policy wraps auth wraps the default transport.
	// The API client only ever sees the assembled pipeline.
	session := mediabrowser.NewSession(cfg.Server.Username, cfg.Server.Password, 0, cfg.Auth.RefreshThreshold)
	authStage := auth.NewTransport(http.DefaultTransport, session, ident, cfg.Auth.RetryBackoff)
	cacheStage := cachecontrol.NewTransport(authStage, checker)
	httpClient := &http.Client{Transport: cacheStage, Timeout: cfg.Server.Timeout}

	client := mediabrowser.New(cfg.Server.URL, httpClient)
	session.Bind(client)

	if _, err := mediabrowser.WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, session.Refresh(ctx)
	}); err != nil {
		logger.Fatal().Err(err).Msg("initial authentication failed")
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		logger.Fatal().Err(err).Msg("state store unavailable")
	}
	defer func() { _ = st.Close() }()

	prog := progress.NewManager(progressReporter{client}, st, cfg.Progress.ReportInterval)

	castMgr := cast.NewManager(cast.Options{
		Discovery:       go2tvsink.NewDiscovery(),
		Factory:         go2tvsink.Factory{},
		API:             client,
		Store:           st,
		BaseURL:         client.BaseURL(),
		Token:           session.Token,
		AutoReconnect:   cfg.Cast.AutoReconnect,
		ReconnectWindow: cfg.Cast.ReconnectWindow,
	})
	defer castMgr.Close()

	orch := orchestrator.New(orchestrator.Options{
		API:          client,
		NewPlayer:    func() player.Player { return player.NewClock() },
		Progress:     prog,
		Cast:         castMgr,
		BaseURL:      client.BaseURL(),
		Token:        session.Token,
		PollInterval: cfg.Progress.PollInterval,
	})
	defer orch.Release()

	go func() {
		castMgr.AwaitInitialization(ctx)
		castMgr.AttemptAutoReconnect(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.Ops.Listen,
		Handler:           opsRouter(orch, castMgr, checker, session),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("listen", cfg.Ops.Listen).Msg("ops endpoint up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("ops endpoint failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Release flushes the final progress report before the store closes.
	orch.Release()
	logger.Info().Msg("stopped")
}

// progressReporter adapts the typed API client to the progress manager's
// reporting boundary.
type progressReporter struct {
	client *mediabrowser.Client
}

func (r progressReporter) ReportProgress(ctx context.Context, itemID, sessionID string, positionMS, durationMS int64, watched bool) error {
	return r.client.ReportProgress(ctx, mediabrowser.ProgressReport{
		ItemID:     itemID,
		SessionID:  sessionID,
		PositionMS: positionMS,
		DurationMS: durationMS,
		IsWatched:  watched,
	})
}

func (r progressReporter) ReportStopped(ctx context.Context, itemID, sessionID string, positionMS int64) error {
	return r.client.ReportStopped(ctx, mediabrowser.ProgressReport{
		ItemID:     itemID,
		SessionID:  sessionID,
		PositionMS: positionMS,
	})
}

func (r progressReporter) ResumePositionMS(ctx context.Context, itemID string) (int64, error) {
	return r.client.ResumePositionMS(ctx, itemID)
}

type statusPayload struct {
	Playback     orchestrator.Status `json:"playback"`
	Cast         cast.State          `json:"cast"`
	Connectivity connectivity.State  `json:"connectivity"`
}

func opsRouter(orch *orchestrator.Orchestrator, castMgr *cast.Manager, checker *connectivity.Checker, session *mediabrowser.Session) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !session.IsAuthenticated() || !checker.Online() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, statusPayload{
			Playback:     orch.Status(),
			Cast:         castMgr.State(),
			Connectivity: checker.State(),
		})
	})

	r.Post("/play/{itemID}", func(w http.ResponseWriter, req *http.Request) {
		startMS := orchestrator.NoExplicitStart
		if raw := req.URL.Query().Get("position_ms"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed < 0 {
				http.Error(w, "invalid position_ms", http.StatusBadRequest)
				return
			}
			startMS = parsed
		}
		if err := orch.Play(req.Context(), chi.URLParam(req, "itemID"), startMS); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, orch.Status())
	})

	r.Post("/pause", func(w http.ResponseWriter, _ *http.Request) {
		orch.Pause()
		writeJSON(w, orch.Status())
	})

	r.Post("/resume", func(w http.ResponseWriter, _ *http.Request) {
		orch.Resume()
		writeJSON(w, orch.Status())
	})

	r.Post("/stop", func(w http.ResponseWriter, _ *http.Request) {
		orch.Stop()
		writeJSON(w, orch.Status())
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("ops")
		logger.Warn().Err(err).Msg("response encode failed")
	}
}
