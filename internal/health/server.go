package health

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Server exposes the liveness endpoint. It answers whether the process
// is alive and nothing more; it is deliberately decoupled from sweep
// state.
type Server struct {
	srv *http.Server
}

func NewServer(addr string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    addr,
			Handler: Handler(),
		},
	}
}

// Handler returns the liveness routes.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

// Start serves until Shutdown is called. http.ErrServerClosed is the
// normal shutdown outcome and is not reported as an error.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
