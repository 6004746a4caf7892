package http

import (
	"context"
	"log/slog"

	"github.com/geocoder89/accountgate/internal/config"
	"github.com/geocoder89/accountgate/internal/http/handlers"
	"github.com/geocoder89/accountgate/internal/http/middlewares"
	"github.com/geocoder89/accountgate/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Deps struct {
	Directory handlers.AccountDirectory
	// Ping backs /readyz; nil means always ready.
	Ping func(ctx context.Context) error
	Prom *observability.Prom
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))

	// health
	h := handlers.NewHealthHandler(deps.Ping)
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/readyz", h.Readyz)

	if deps.Prom != nil {
		r.GET("/metrics", gin.WrapH(deps.Prom.Handler()))
	}

	accounts := handlers.NewAccountsHandler(deps.Directory, log)

	api := r.Group("/api")
	api.Use(middlewares.RequireJSON())
	{
		api.POST("/register", accounts.Register)
		api.POST("/login", accounts.Login)

		// administrative
		api.GET("/users", accounts.List)
		api.PATCH("/users/:email", accounts.SetGate)
		api.DELETE("/users/:email", accounts.Remove)
	}

	return r
}
