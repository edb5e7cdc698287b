package router

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github/fastauth/go-migrate/internal/api"
	"github/fastauth/go-migrate/internal/api/handlers/common"
	"github/fastauth/go-migrate/internal/api/handlers/relay"
)

// Init attaches the echo instance, middlewares and all routes.
func Init(s *api.Server) {
	s.Echo = echo.New()
	s.Echo.HideBanner = true
	s.Echo.HidePort = true

	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestID())

	s.Router = &api.Router{
		Root:       s.Echo.Group(""),
		Management: s.Echo.Group("/-"),
		APIV1Relay: s.Echo.Group("/api/v1/relay"),
	}

	s.Router.Root.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.Router.Routes = []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetReadyRoute(s),
		relay.PostRelayRoute(s),
	}
}
