package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"golang.org/x/time/rate"

	"github.com/medimeet/appointment-api/internal/handler/prometheus"
	"github.com/medimeet/appointment-api/internal/middleware"
	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/metrics"
	"github.com/medimeet/appointment-api/pkg/validator"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// DoctorHandler also mounts the admin review routes.
type DoctorHandler interface {
	Handler
	RegisterAdminRoutes(*gin.RouterGroup)
}

type HealthHandler interface {
	RegisterRoutes(gin.IRouter)
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth        Handler
	Onboarding  Handler
	Doctor      DoctorHandler
	Appointment Handler
	Video       Handler
	Health      HealthHandler
	Metrics     *prometheus.Handler
}

type Config struct {
	Mode           string
	RequestTimeout time.Duration
	RateLimit      rate.Limit
	RateBurst      int
	RateLimited    bool
	CORSConfig     middleware.CORSConfig
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	log *logger.Logger,
	m *metrics.Metrics,
	config Config,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	binding.Validator = validator.New()

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Metrics(m),
		middleware.SecurityHeaders(),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(middleware.DefaultMaxBodySize),
		middleware.Timeout(config.RequestTimeout),
	)

	if config.RateLimited {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() *gin.Engine {
	if r.handlers.Metrics != nil {
		r.engine.GET("/metrics", r.handlers.Metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.handlers.Health.RegisterRoutes(api)

	// Public routes
	r.handlers.Auth.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.setupProtectedRoutes(protected)

	return r.engine
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	r.handlers.Onboarding.RegisterRoutes(rg)
	r.handlers.Doctor.RegisterRoutes(rg)
	r.handlers.Appointment.RegisterRoutes(rg)
	r.handlers.Video.RegisterRoutes(rg)

	admin := rg.Group("")
	admin.Use(r.auth.RequireRole(model.RoleAdmin))
	r.handlers.Doctor.RegisterAdminRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
