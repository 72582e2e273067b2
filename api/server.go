// Package api serves the recommendation engine and the conversation
// store over HTTP, with a websocket stream of appended events.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/ashare/eventstore"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/pkg/logging"
	"github.com/rustyeddy/ashare/provider"
	"github.com/rustyeddy/ashare/recommend"
)

const ShutdownTimeout = 5 * time.Second

// Recommender runs one recommendation.
type Recommender interface {
	Run(ctx context.Context, req recommend.Request) (*recommend.Payload, error)
}

type Options struct {
	Addr        string
	Recommender Recommender
	// Store enables the /api/chat routes.
	Store *eventstore.Store
	// Health reports the data providers. Nil hides the route.
	Health func(ctx context.Context) []provider.Health
	Logger *slog.Logger
}

type Server struct {
	engine *gin.Engine
	srv    *http.Server
	rec    Recommender
	store  *eventstore.Store
	health func(ctx context.Context) []provider.Health
	hub    *Hub
	log    *slog.Logger

	// running admits one recommendation at a time.
	running sync.Mutex
}

func New(opt Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	log := logging.OrDefault(opt.Logger)
	engine.Use(gin.Recovery())
	engine.Use(loggerMiddleware(log))

	s := &Server{
		engine: engine,
		rec:    opt.Recommender,
		store:  opt.Store,
		health: opt.Health,
		hub:    NewHub(log),
		log:    log,
		srv: &http.Server{
			Addr:              opt.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.routes()
	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	if s.health != nil {
		api.GET("/providers/health", s.getProviderHealth)
	}
	if s.rec != nil {
		api.POST("/recommend", s.postRecommend)
	}
	if s.store == nil {
		return
	}

	chat := api.Group("/chat")
	{
		chat.POST("/events", s.postEvent)
		chat.POST("/sync", s.postSync)
		chat.GET("/search", s.getSearch)
		chat.POST("/import", s.postImport)
		chat.GET("/ws", s.hub.Serve)

		chat.GET("/conversations", s.getConversations)
		chat.GET("/conversations/:id/events", s.getEvents)
		chat.GET("/conversations/:id/export", s.getExport)
		chat.DELETE("/conversations/:id", s.deleteConversation)
		chat.POST("/conversations/:id/read", s.postRead)
	}
}

// ListenAndServe blocks until the server stops. A shutdown is not an
// error.
func (s *Server) ListenAndServe() error {
	s.log.Info("api listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains requests for up to ShutdownTimeout and closes every
// websocket.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

func loggerMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("api request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, eventstore.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrBadData), errors.Is(err, errs.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrConcurrencyBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}
