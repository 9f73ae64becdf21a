package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/metrics"
	"github.com/mamadbah2/stockapp/internal/server/handlers"
	"github.com/mamadbah2/stockapp/internal/server/middleware"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
)

// Handlers groups the page handlers mounted by New.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Dashboard *handlers.DashboardHandler
	Products  *handlers.ProductHandler
	Movements *handlers.MovementHandler
	Export    *handlers.ExportHandler
}

// Options carries the shared pieces the middlewares need.
type Options struct {
	Sessions *session.Manager
	Renderer render.HTMLRender
	Cookie   middleware.CookieOptions
	// Metrics is optional; nil disables instrumentation and /metrics.
	Metrics *metrics.Metrics
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, opts Options, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	r.HTMLRender = opts.Renderer

	r.StaticFS("/static", web.Static())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.HTML(http.StatusNotFound, web.PageError, web.Page{
			Title:   "Page introuvable",
			Content: web.ErrorView{Message: "La page demandée n'existe pas."},
		})
	})

	pages := r.Group("/",
		middleware.SessionCookie(opts.Cookie),
		middleware.Reauthenticate(opts.Sessions, logger),
		middleware.CSRF(opts.Sessions, logger),
	)
	pages.GET("/", h.Auth.Root)

	auth := pages.Group("/auth", middleware.RedirectAuthenticated(opts.Sessions, logger))
	auth.GET("/login", h.Auth.ShowLogin)
	auth.POST("/login", h.Auth.Login)
	auth.GET("/register", h.Auth.ShowRegister)
	auth.POST("/register", h.Auth.Register)

	app := pages.Group("/", middleware.RequireSession(opts.Sessions, logger))
	app.POST("/logout", h.Auth.Logout)
	app.GET("/dashboard", h.Dashboard.Show)

	app.GET("/products", h.Products.List)
	app.POST("/products", h.Products.Create)
	app.POST("/products/:id", h.Products.Update)
	app.POST("/products/:id/delete", h.Products.Delete)

	app.GET("/supplies", h.Movements.ListSupplies)
	app.POST("/supplies", h.Movements.CreateSupply)
	app.GET("/outputs", h.Movements.ListOutputs)
	app.POST("/outputs", h.Movements.CreateOutput)

	app.GET("/export/:resource", h.Export.Download)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("request completed", fields...)
	}
}
