package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/quickanswer/internal/answer"
	"github.com/sells-group/quickanswer/internal/model"
)

const missingQuery = `Missing query parameter "q"`

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve answers over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := answer.Build(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		router := buildRouter(svc, cfg.Server.CORSOrigins)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port), cfg.Server.WriteTimeout)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the config value.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

type errorResponse struct {
	Error string `json:"error"`
}

type scrapeRequest struct {
	Q string `json:"q"`
}

func buildRouter(svc asker, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"breakers": svc.Health(),
		})
	})

	scrape := handleScrape(svc)
	r.Get("/api/scrape", scrape)
	r.Post("/api/scrape", scrape)

	return r
}

// handleScrape answers ?q=, or a JSON {"q": ...} body on POST. A found answer
// is 200, no answer 404, and a cancelled session 503.
func handleScrape(svc asker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" && r.Method == http.MethodPost && r.Body != nil {
			var req scrapeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				q = strings.TrimSpace(req.Q)
			}
		}
		if q == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: missingQuery})
			return
		}

		res, err := svc.Ask(r.Context(), q)
		if err != nil {
			if errors.Is(err, model.ErrEmptyQuery) {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: missingQuery})
				return
			}
			zap.L().Error("serve: ask failed", zap.String("query", q), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}

		status := http.StatusOK
		switch {
		case res.Success:
		case res.Cancelled():
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusNotFound
		}
		writeJSON(w, status, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("serve: write response", zap.Error(err))
	}
}

// startServer serves handler on port until ctx is done, then drains
// in-flight requests.
func startServer(ctx context.Context, handler http.Handler, port int, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})
	return g.Wait()
}
