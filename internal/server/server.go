// Package server exposes the marketplace over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/catalog"
	"github.com/spigell/joblink/internal/notify"
	"github.com/spigell/joblink/internal/profiles"
	"github.com/spigell/joblink/internal/ratelimit"
	"github.com/spigell/joblink/internal/workflow"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultApplyLimit     = 3
	defaultApplyWindow    = time.Minute
	shutdownTimeout       = 15 * time.Second
)

// Services are the stores the handlers delegate to.
type Services struct {
	Profiles *profiles.Store
	Catalog  *catalog.Catalog
	Workflow *workflow.Workflow
	Inbox    *notify.Inbox
	Limiter  ratelimit.Limiter
}

type Options struct {
	Logger         *zap.Logger
	RequestTimeout time.Duration
	AllowOrigins   []string
	ApplyLimit     int
	ApplyWindow    time.Duration
	// Health reports the readiness of backing services such as the database.
	Health func(ctx context.Context) error
}

type Server struct {
	svc    Services
	opts   Options
	logger *zap.Logger
	engine *gin.Engine
}

var registerTagNames sync.Once

func New(svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ApplyLimit <= 0 {
		opts.ApplyLimit = defaultApplyLimit
	}
	if opts.ApplyWindow <= 0 {
		opts.ApplyWindow = defaultApplyWindow
	}
	if svc.Limiter == nil {
		svc.Limiter = ratelimit.NewMemory()
	}
	if svc.Inbox == nil {
		svc.Inbox = notify.NewInbox(0)
	}

	registerTagNames.Do(useJSONFieldNames)

	s := &Server{svc: svc, opts: opts, logger: opts.Logger}
	s.engine = s.routes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.timeout())

	config := cors.DefaultConfig()
	if len(s.opts.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.opts.AllowOrigins
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	r.Use(cors.New(config))

	api := r.Group("/api/v1")
	{
		api.GET("/health", s.health)

		api.POST("/profiles", s.createProfile)
		api.GET("/profiles/:id", s.getProfile)
		api.PUT("/profiles/:id/skills", s.updateSkills)
		api.PUT("/profiles/:id/rating", s.updateRating)
		api.DELETE("/profiles/:id", s.deactivateProfile)
		api.GET("/profiles/:id/summary", s.employerSummary)

		api.POST("/jobs", s.postJob)
		api.GET("/jobs", s.searchJobs)
		api.GET("/jobs/ranked", s.rankedJobs)
		api.GET("/jobs/:id", s.getJob)
		api.PUT("/jobs/:id", s.editJob)
		api.POST("/jobs/:id/fill", s.fillJob)
		api.DELETE("/jobs/:id", s.archiveJob)
		api.GET("/jobs/:id/applications/count", s.jobApplicationCount)

		api.POST("/applications", s.apply)
		api.PATCH("/applications/:id", s.updateApplication)
		api.GET("/applications", s.listApplications)

		api.GET("/notifications", s.notifications)
	}

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) timeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// useJSONFieldNames makes validation errors report json keys instead of Go
// field names.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
}
