package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/bouwupdate/intake-api/internal/handler/prometheus"
	"github.com/bouwupdate/intake-api/internal/middleware"
	"github.com/bouwupdate/intake-api/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	metrics *prometheus.Handler
	limiter *middleware.RateLimiter

	health   Handler
	webhook  Handler
	operator []Handler
}

type RouterConfig struct {
	Mode string
	// RateLimit of zero disables rate limiting.
	RateLimit   rate.Limit
	RateBurst   int
	MaxBodySize int64
}

// Handlers groups the route owners by who may call them.
type Handlers struct {
	Health  Handler
	Webhook Handler
	// Operator routes sit behind bearer-token auth.
	Operator []Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	metrics *prometheus.Handler,
	handlers Handlers,
	log *logger.Logger,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		metrics:  metrics,
		health:   handlers.Health,
		webhook:  handlers.Webhook,
		operator: handlers.Operator,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
		metrics.Middleware(),
	)
	if config.MaxBodySize > 0 {
		engine.Use(middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: config.MaxBodySize}))
	}
	if config.RateLimit > 0 {
		r.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
	}

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.metrics.Handler())
	if r.health != nil {
		r.health.RegisterRoutes(&r.engine.RouterGroup)
	}

	public := r.engine.Group("")
	if r.limiter != nil {
		public.Use(r.limiter.RateLimit())
	}
	if r.webhook != nil {
		r.webhook.RegisterRoutes(public)
	}

	api := public.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	api.Use(r.auth.Authenticate())
	for _, h := range r.operator {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
