// Package server wires the HTTP API, the websocket endpoint, and the
// background delivery workers into one runnable unit.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"parley/internal/auth"
	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/delivery"
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/ratelimit"
	"parley/internal/realtime"
	"parley/internal/repository"
	"parley/internal/service"
	"parley/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

// Server owns every long-lived component of the chat backend.
type Server struct {
	cfg   *config.Config
	app   *fiber.App
	db    *database.DB
	redis *redis.Client

	tokens   *auth.TokenIssuer
	sessions *session.Store
	limiter  *ratelimit.Limiter

	hub    *realtime.Hub
	router *realtime.Router
	queue  *delivery.Queue
	worker *delivery.Worker

	users    *service.UserService
	chats    *service.ChatService
	contacts *service.ContactService
	messages *service.MessageService

	userRepo repository.UserRepository

	workerCancel context.CancelFunc
}

// New connects to the external stores and builds a fully wired server.
func New(cfg *config.Config) (*Server, error) {
	cache.InitRedis(cfg.RedisURL)
	rdb := cache.GetClient()

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}

	return NewWithDeps(cfg, db, rdb), nil
}

// NewWithDeps builds a server on top of already established connections.
// Tests use it with sqlite and miniredis.
func NewWithDeps(cfg *config.Config, db *database.DB, rdb *redis.Client) *Server {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()[:8]
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		redis:    rdb,
		tokens:   auth.NewTokenIssuer(cfg),
		sessions: session.NewStore(db, rdb),
		limiter:  ratelimit.NewLimiter(rdb),
	}

	presence := realtime.NewPresenceRegistry(rdb, realtime.PresenceConfig{NodeID: nodeID})
	bridge := realtime.NewBridge(rdb, nodeID)
	s.hub = realtime.NewHub(presence, bridge)
	s.hub.OnDisconnect = s.onSocketDisconnect

	s.queue = delivery.NewQueue(rdb, nodeID)

	s.userRepo = repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)
	contactRepo := repository.NewContactRepository(db)

	s.users = service.NewUserService(s.userRepo)
	s.chats = service.NewChatService(db, chatRepo, s.userRepo, contactRepo, s.hub)
	s.contacts = service.NewContactService(contactRepo, s.userRepo)
	s.messages = service.NewMessageService(db, chatRepo, messageRepo, deliveryRepo, s.queue, s.hub)

	typing := realtime.NewTypingTracker(rdb)
	s.router = realtime.NewRouter(s.hub, typing, s.limiter, s.messages)

	s.worker = delivery.NewWorker(s.queue, deliveryRepo, presence, s.hub, 0)

	s.app = s.buildApp()
	s.registerRoutes()
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Hub exposes the socket manager for tests.
func (s *Server) Hub() *realtime.Hub { return s.hub }

func (s *Server) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "parley",
		ErrorHandler: s.errorHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.FrontendOrigin,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	prom := middleware.InitMetrics("parley")
	prom.RegisterAt(app, "/metrics")
	app.Use(middleware.MetricsMiddleware(prom))
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.StructuredLogger())

	app.Get("/monitor", monitor.New())
	return app
}

// errorHandler renders every error that escapes a handler through the shared
// taxonomy.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(models.ErrorResponse{
			Error:      "HTTPError",
			Message:    fiberErr.Message,
			StatusCode: fiberErr.Code,
		})
	}
	appErr := models.AsAppError(err)
	if appErr.Kind == models.KindInternal {
		middleware.Logger.ErrorContext(c.UserContext(), "Unhandled error",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
	}
	return models.RespondWithError(c, err)
}

// Start launches the bridge consumer, presence wiring, and the delivery
// workers, then serves until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel

	if err := s.hub.StartWiring(ctx); err != nil {
		middleware.Logger.Warn("Bridge subscription unavailable",
			slog.String("error", err.Error()))
	}
	if s.redis != nil {
		if err := s.worker.Start(ctx); err != nil {
			middleware.Logger.Warn("Delivery workers unavailable",
				slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.cfg.Port))
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown stops accepting traffic, drains sockets and workers, and closes
// the app.
func (s *Server) Shutdown(ctx context.Context) error {
	middleware.Logger.Info("Server shutting down")

	if s.workerCancel != nil {
		s.workerCancel()
	}
	_ = s.hub.Shutdown(ctx)
	s.worker.Wait()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}

// onSocketDisconnect releases the session's socket binding after the hub has
// dropped the client.
func (s *Server) onSocketDisconnect(c *realtime.Client) {
	if c.SessionID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sessions.DetachSocket(ctx, c.SessionID, c.SocketID); err != nil {
		middleware.Logger.Warn("Failed to detach socket from session",
			slog.Uint64("session_id", uint64(c.SessionID)),
			slog.String("error", err.Error()))
	}
}
