package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/config"
)

// RelayService is the relay surface the handlers depend on.
type RelayService interface {
	RelayDelegateAction(ctx context.Context, signed *chain.SignedDelegateAction) (*chain.ExecutionOutcome, error)
}

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
	APIV1Relay *echo.Group
}

// Server is a central struct keeping the live relayer's dependencies.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config  config.Service
	Chain   chain.Provider
	Relayer RelayService
}

// NewServer creates an uninitialized server; components are attached by the
// relayer command, routes by router Init.
func NewServer(cfg config.Service) *Server {
	return &Server{Config: cfg}
}

// Ready reports whether every component is attached.
func (s *Server) Ready() bool {
	return s.Echo != nil && s.Router != nil && s.Chain != nil && s.Relayer != nil
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if err := s.Echo.Start(s.Config.Relayer.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Warn().Msg("Shutting down relayer server")

	if s.Echo != nil {
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	return nil
}
