package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/inspectr/internal/registry"
	"github.com/loykin/inspectr/internal/session"
)

// Router provides embeddable read-only HTTP handlers for inspecting daemon
// state. Endpoints:
//
//	GET {basePath}/processes   list of managed debuggees
//	GET {basePath}/session     current debug session view
//	GET {basePath}/healthz     liveness probe
//
// All mutation goes through the tool-call surface; the HTTP API observes.
type Router struct {
	reg      *registry.Registry
	ses      *session.Session
	basePath string
}

// NewRouter constructs a Router with configurable basePath.
// Example basePath: "/debug" results in /debug/processes, /debug/session.
func NewRouter(reg *registry.Registry, ses *session.Session, basePath string) *Router {
	return &Router{reg: reg, ses: ses, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/processes", r.handleProcesses)
	group.GET("/session", r.handleSession)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Shutdown or Close.
func NewServer(addr, basePath string, reg *registry.Registry, ses *session.Session) (*http.Server, error) {
	r := NewRouter(reg, ses, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

func (r *Router) handleProcesses(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.List())
}

func (r *Router) handleSession(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ses.View())
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type okResp struct {
	OK bool `json:"ok"`
}
