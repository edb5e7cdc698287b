package common

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github/fastauth/go-migrate/internal/api"
)

const statusNotReady = 521

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

// getReadyHandler reports whether every server component is attached and
// the chain is reachable through the active endpoint.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Ready() {
			return c.String(statusNotReady, "Not ready.")
		}

		if _, err := s.Chain.MaxBlockHeight(c.Request().Context()); err != nil {
			return c.String(statusNotReady, "Not ready.")
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
