// Package httpapi exposes the two inbound webhook endpoints over Echo v5,
// the way the teacher's pkg/api wires its session endpoints: thin handlers
// that bind/validate the transport envelope and delegate everything else to
// a single service-shaped collaborator (here, the pipeline orchestrator).
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipeline"
)

// maxWebhookBodyBytes bounds the webhook body size the same way the
// teacher bounds alert submissions, ahead of any per-adapter field checks.
const maxWebhookBodyBytes = 2 * 1024 * 1024

// Processor is the subset of *pipeline.Orchestrator the HTTP layer depends
// on, so handlers can be tested against a fake.
type Processor interface {
	Process(ctx context.Context, sourceType domain.SourceType, payload []byte) error
}

var _ Processor = (*pipeline.Orchestrator)(nil)

// Server is the HTTP API server for the ingestion webhooks.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	processor  Processor
	validate   *validatorAdapter
}

// NewServer builds a Server and registers its routes.
func NewServer(processor Processor) *Server {
	e := echo.New()
	s := &Server{echo: e, processor: processor, validate: newValidatorAdapter()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(maxWebhookBodyBytes))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/webhooks")
	v1.POST("/chat", s.chatWebhookHandler)
	v1.POST("/email", s.emailWebhookHandler)
}

// securityHeaders mirrors the teacher's middleware.go convention of a small
// hand-written header-setting MiddlewareFunc rather than pulling in a
// third-party security-headers package for two static headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			return next(c)
		}
	}
}

// Start starts the HTTP server on addr (non-blocking for callers using a
// goroutine; blocking for ListenAndServe itself).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, for
// tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Time: time.Now().UTC()})
}
