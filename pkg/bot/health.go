package bot

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthServer answers uptime checks on / and /health.
type HealthServer struct {
	addr  string
	check func(ctx context.Context) error
	log   *zap.Logger
	mux   *http.ServeMux
}

// NewHealthServer creates a HealthServer on addr. A non-nil check turns a
// failing dependency into 503.
func NewHealthServer(addr string, check func(ctx context.Context) error, log *zap.Logger) *HealthServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &HealthServer{addr: addr, check: check, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.check(ctx); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNAVAILABLE"))
			return
		}
	}
	_, _ = w.Write([]byte("OK"))
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *HealthServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("health server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
