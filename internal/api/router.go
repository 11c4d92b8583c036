package api

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/config"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/service"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/ws"
)

// bodySlack covers base64 inflation and multipart framing on top of the
// raw image limit.
const bodySlack = 1 << 20

type Dependencies struct {
	Service *service.DetectionService
	// Hub fans detection events out to call subscribers. A hub is created
	// when nil.
	Hub    *ws.Hub
	Models handler.ModelInfo
	// DB is probed by /ready. Leave nil when no store is configured.
	DB handler.Pinger
}

type Router struct {
	app         *fiber.App
	cfg         *config.Config
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
	cancelHub   context.CancelFunc
}

func NewRouter(cfg *config.Config, logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "FaceGuard API",
		BodyLimit:    cfg.MaxImageSize*4/3 + bodySlack,
	})

	return &Router{
		app:    app,
		cfg:    cfg,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.cfg.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	healthHandler := handler.NewHealthHandler(r.deps.Models, r.deps.DB)
	r.app.Get("/", healthHandler.Root)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps.Hub == nil {
		r.deps.Hub = ws.NewHub()
	}
	hubCtx, hubCancel := context.WithCancel(context.Background())
	r.cancelHub = hubCancel
	go r.deps.Hub.Run(hubCtx)

	detect := []fiber.Handler{}
	if r.cfg.RateLimitEnabled() {
		r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Max:    r.cfg.RateLimitMax,
			Window: r.cfg.RateLimitWindow,
		})
		detect = append(detect, r.rateLimiter.Handler())
	}

	detectHandler := handler.NewDetectHandler(r.deps.Service, r.cfg.MaxImageSize, r.logger)
	r.app.Post("/detect", append(detect, detectHandler.Detect)...)
	r.app.Post("/detect-base64", append(detect, detectHandler.DetectBase64)...)

	callsHandler := handler.NewCallsHandler(r.deps.Service)
	r.app.Get("/detections/:id", callsHandler.GetDetection)
	r.app.Get("/calls/:call_id/detections", callsHandler.ListByCall)

	r.app.Get("/ws/calls/:call_id", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))

	r.logger.Info("routes registered",
		"store", r.deps.Service.HasStore(),
		"rate_limit", r.rateLimiter != nil,
		"cors", strings.Split(r.cfg.CORSOrigins, ","),
	)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop WebSocket hub
	if r.cancelHub != nil {
		r.cancelHub()
	}

	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
