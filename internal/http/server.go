package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
)

// Server envuelve http.Server con apagado ordenado.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start bloquea hasta que el listener cierre. ErrServerClosed no es error.
func (s *Server) Start() error {
	logger.L().Info("http server listening", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drena las conexiones en curso antes de cerrar.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
