package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/monitoring"
	"github.com/anivertis/market-pipeline/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only reporting API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newMux(st),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newMux builds the reporting routes over the store.
func newMux(st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/prices/{asset}", func(w http.ResponseWriter, r *http.Request) {
		rows, err := st.ListPrices(r.Context(), r.PathValue("asset"), queryLimit(r))
		if err != nil {
			serveError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("GET /api/metrics/{group}", func(w http.ResponseWriter, r *http.Request) {
		metrics, err := st.ListMetrics(r.Context(), r.PathValue("group"), queryLimit(r))
		if err != nil {
			serveError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, metrics)
	})

	mux.HandleFunc("GET /api/sources/health", func(w http.ResponseWriter, r *http.Request) {
		snap, err := monitoring.NewCollector(st).Snapshot(r.Context())
		if err != nil {
			serveError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return mux
}

// queryLimit reads ?limit, defaulting to 100 and capping at 1000.
func queryLimit(r *http.Request) int {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func serveError(w http.ResponseWriter, err error) {
	zap.L().Error("query failed", zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
