// Package healthcheck runs the small HTTP listener exposing liveness
// and prometheus metrics. It is glue, not part of the command core.
package healthcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NormalizeListen(addr string) string {
	return strings.TrimSpace(addr)
}

// StartServer listens on addr and serves /healthz and /metrics until
// Shutdown is called or ctx is done. Empty addr disables the listener.
func StartServer(ctx context.Context, logger *slog.Logger, addr string, component string) (*http.Server, error) {
	addr = NormalizeListen(addr)
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"component": component,
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Warn("health_server_error", "addr", addr, "error", serveErr.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = server.Shutdown(shutdownCtx)
		cancel()
	}()
	logger.Info("health_server_start", "addr", listener.Addr().String(), "component", component)
	return server, nil
}
