package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
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

	"github.com/vandy-research/roster-cli/internal/model"
	"github.com/vandy-research/roster-cli/internal/report"
	"github.com/vandy-research/roster-cli/internal/roster"
	"github.com/vandy-research/roster-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve roster coverage and audit data over HTTP",
	Long:  "Read-only JSON API over the latest snapshot and the pass-run audit store, for dashboards and the profile-generation consumer.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/report", func(w http.ResponseWriter, _ *http.Request) {
			ds, ok := latestSnapshot(w)
			if !ok {
				return
			}
			writeJSON(w, http.StatusOK, report.Compute(ds))
		})

		r.Get("/api/unmatched", func(w http.ResponseWriter, _ *http.Request) {
			ds, ok := latestSnapshot(w)
			if !ok {
				return
			}
			writeJSON(w, http.StatusOK, report.Unmatched(ds))
		})

		r.Get("/api/failures", func(w http.ResponseWriter, _ *http.Request) {
			ds, ok := latestSnapshot(w)
			if !ok {
				return
			}
			writeJSON(w, http.StatusOK, report.Failures(ds))
		})

		r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := st.ListRuns(req.Context(), store.RunFilter{
				Stage: model.Stage(req.URL.Query().Get("stage")),
				Limit: 50,
			})
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/api/records/{id}/events", func(w http.ResponseWriter, req *http.Request) {
			events, err := st.ListEvents(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, events)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server", zap.Int("port", port))
		return serveUntilDone(ctx, &http.Server{Handler: r}, ln)
	},
}

// serveUntilDone serves until the context is cancelled, then drains in-flight
// requests. The signal context is already cancelled by the time shutdown
// starts, so the drain gets its own timeout context.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server serve")
	}
	<-done
	return nil
}

// latestSnapshot loads the most advanced snapshot, writing a 404 when the
// pipeline has not produced one yet. Snapshots are re-read per request so a
// pass finishing in another process is visible immediately.
func latestSnapshot(w http.ResponseWriter) (*model.Dataset, bool) {
	ds, _, err := roster.LoadLatest(cfg.Data.Dir)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot available"})
		return nil, false
	}
	return ds, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
