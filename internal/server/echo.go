package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/loykin/inspectr/internal/registry"
	"github.com/loykin/inspectr/internal/session"
)

// RegisterEcho mounts the status endpoints on an existing echo instance, for
// hosts that embed the daemon into an echo application instead of running the
// standalone gin server.
func RegisterEcho(e *echo.Echo, basePath string, reg *registry.Registry, ses *session.Session) {
	bp := sanitizeBase(basePath)
	g := e.Group(bp)
	g.GET("/processes", func(c echo.Context) error {
		return c.JSON(http.StatusOK, reg.List())
	})
	g.GET("/session", func(c echo.Context) error {
		return c.JSON(http.StatusOK, ses.View())
	})
	g.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, okResp{OK: true})
	})
}
