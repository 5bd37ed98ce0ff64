package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/domain"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	requestTimeout = 60 * time.Second
	drainTimeout   = 10 * time.Second
)

type Server struct {
	*http.Server
	config   *config.Config
	logger   *zap.Logger
	db       *sql.DB
	redis    *redis.Client
	notifier notification.Sender
	checkout service.CheckoutService
}

// NewServer wires repositories, services and handlers onto one chi router.
func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB) (*Server, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	notifier, err := newNotifier(cfg.Notify, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		db:       db,
		redis:    redisClient,
		notifier: notifier,
	}

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      s.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 10*time.Second,
	}

	return s, nil
}

func newNotifier(cfg config.NotifyConfig, logger *zap.Logger) (notification.Sender, error) {
	switch cfg.Driver {
	case "kafka":
		producer, err := notification.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		logger.Info("Order confirmations go to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
		return notification.NewKafkaSender(producer, cfg.KafkaTopic, logger), nil
	case "", "log":
		return notification.NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
	}
}

func (s *Server) routes() http.Handler {
	cfg, logger := s.config, s.logger

	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack(requestTimeout)...)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))

	router.Get("/health", s.health)

	// Repositories
	userRepo := repository.NewUserRepository(s.db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(s.db)
	categoryRepo := repository.NewCategoryRepository(s.db)
	productRepo := repository.NewProductRepository(s.db)
	cartRepo := repository.NewCartRepository(s.db)
	orderRepo := repository.NewOrderRepository(s.db)
	txManager := repository.NewTxManager(s.db, logger)

	// Services
	shipping := domain.ShippingPolicy{
		FreeThreshold: cfg.Shipping.FreeThreshold,
		FlatFee:       cfg.Shipping.FlatFee,
	}
	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey: cfg.Payment.StripeSecretKey,
		Timeout:   cfg.Payment.Timeout,
	}, logger)

	userService := service.NewUserService(userRepo, refreshTokenRepo, service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		RefreshTTL: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
	}, logger)
	catalogService := service.NewCatalogService(categoryRepo, productRepo,
		cache.NewCategoryCache(s.redis, cfg.Redis.CategoryTTL), logger)
	cartService := service.NewCartService(cartRepo, productRepo, shipping, logger)
	checkoutService := service.NewCheckoutService(userRepo, cartRepo, txManager, gateway, s.notifier, shipping,
		service.CheckoutConfig{
			Currency:   cfg.Payment.Currency,
			NotifyFrom: cfg.Notify.From,
		}, logger)
	orderService := service.NewOrderService(orderRepo)
	s.checkout = checkoutService

	// Middleware
	auth := custommiddleware.AuthMiddleware(userService, logger)
	admin := custommiddleware.RequireAdmin(logger)
	checkoutLimit := custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.CheckoutRequests,
		Window:            cfg.RateLimit.CheckoutWindow,
		KeyPrefix:         "storefront:ratelimit:checkout",
	}, logger)

	// Routes
	transport.NewUserHandler(userService, logger).RegisterRoutes(router, auth)
	transport.NewCatalogHandler(catalogService, logger).RegisterRoutes(router)
	transport.NewCartHandler(cartService, logger).RegisterRoutes(router, auth)
	transport.NewOrderHandler(checkoutService, orderService, logger).RegisterRoutes(router, auth, checkoutLimit)
	transport.NewAdminHandler(catalogService, logger).RegisterRoutes(router, auth, admin)

	return router
}

// health reports 503 only when the database is unreachable. A redis outage
// shows up in the body but keeps the 200.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "up", "redis": "up"}
	code := http.StatusOK

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("Health check: database down", zap.Error(err))
		status["status"], status["database"] = "unavailable", "down"
		code = http.StatusServiceUnavailable
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Health check: redis down", zap.Error(err))
		status["redis"] = "down"
	}

	custommiddleware.RespondWithJSON(w, code, status)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Confirmations still in flight go out before the producer closes.
	if s.checkout != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := s.checkout.Drain(ctx); err != nil {
			s.logger.Warn("Order confirmations still pending at shutdown", zap.Error(err))
		}
		cancel()
	}

	if closer, ok := s.notifier.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close notification producer", zap.Error(err))
		}
	}

	if err := s.redis.Close(); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
