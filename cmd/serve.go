package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/slack"
)

var servePort int

// runStarter starts background runs and reports how many are in flight.
type runStarter interface {
	slack.Starter
	Active() int
}

// routerConfig holds what the HTTP routes need besides the dispatcher.
type routerConfig struct {
	SigningSecret  string
	APIKey         string
	AllowedOrigins []string
	Defaults       slack.Defaults
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the Slack slash command endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(env.Dispatcher, routerConfig{
			SigningSecret:  cfg.Slack.SigningSecret,
			APIKey:         cfg.Server.APIKey,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Defaults:       commandDefaults(cfg.Loop),
		})

		err = startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if derr := env.Dispatcher.Shutdown(shutdownCtx); derr != nil {
			zap.L().Warn("runs cancelled at shutdown", zap.Error(derr))
		}
		return err
	},
}

// buildRouter wires the HTTP routes. The Slack endpoint authenticates by
// request signature; /api routes by bearer key when one is configured.
func buildRouter(runs runStarter, rc routerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		active := 0
		if runs != nil {
			active = runs.Active()
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_runs": active})
	})

	r.Method(http.MethodPost, "/slack/commands",
		slack.NewHandler(slack.NewVerifier(rc.SigningSecret), runs, rc.Defaults))

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: rc.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(requireAPIKey(rc.APIKey))
		r.Post("/search", searchHandler(runs, rc.Defaults))
	})

	return r
}

// searchHandler accepts a JSON search request and starts it in the
// background.
func searchHandler(runs runStarter, d slack.Defaults) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.SearchRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.TargetCount == 0 {
			req.TargetCount = d.TargetCount
		}
		if req.MaxProcessed == 0 {
			req.MaxProcessed = max(d.MaxProcessed, req.TargetCount)
		}
		if len(req.Keywords) == 0 && len(req.Industries) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "keywords or industries are required"})
			return
		}
		req.Origin = model.Origin{}

		runID, err := runs.Start(req)
		switch {
		case errors.Is(err, slack.ErrBusy):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "all run slots busy"})
		case err != nil:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "run_id": runID})
		}
	}
}

func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		want := []byte("Bearer " + key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodOptions &&
				subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// resolvePort prefers the flag value over config.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves h on port until ctx is done, then shuts down.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
