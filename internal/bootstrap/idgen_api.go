package bootstrap

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"idgen_server/adapter/in/http"
	"idgen_server/config"
	"idgen_server/infra/middleware"
	"idgen_server/pkg/logger"
)

// InitLogger configures the default logger from cfg.
func InitLogger(cfg *config.Config) {
	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.IsDevelopment() && cfg.LogLevel == "" {
		level = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   level,
		Service: "idgen-api",
		Backend: logger.ParseBackend(cfg.LogBackend),
	})
}

func NewAPI(cfg *config.Config) (*fiber.App, *Dependencies, func(), error) {
	InitLogger(cfg)

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, nil, err
	}

	app := NewApp(cfg, deps)
	logger.WithNodeID(cfg.SnowflakeNodeID).Info("API server initialized")
	return app, deps, cleanup, nil
}

// NewApp builds the fiber app and mounts every route.
func NewApp(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          64 * 1024,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		allowOrigins = "*"
		allowCredentials = false
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	var health *http.HealthHandler
	if deps.Redis != nil {
		var leaseState http.LeaseState
		if deps.Lease != nil {
			leaseState = deps.Lease
		}
		health = http.NewHealthHandlerWithDeps(cfg.InstanceID, deps.Redis, redisConfig(cfg).PoolSize, leaseState)
	} else {
		health = http.NewHealthHandler(cfg.InstanceID)
	}
	health.Register(app)

	api := app.Group("/api/v1")
	if deps.Protector != nil {
		api.Use(middleware.RateLimit(deps.Protector))
	}

	nodeBits := cfg.SnowflakeConfig().Normalized().NodeIDBits
	http.NewIDHandler(deps.Service, nodeBits).Register(api)

	auth := middleware.JWTAuth(cfg.JWTSecret, deps.Blacklist)
	http.NewGeneratorHandler(deps.Service, deps.Metrics, nodeBits).
		Register(api, auth, middleware.RequireRole(middleware.RoleAdmin))
	http.NewAuthHandler(deps.Blacklist).Register(api, auth)

	return app
}
