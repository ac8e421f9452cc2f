package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bsm/redislock"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stablepay-io/ms-go-notify/app/chain"
	"github.com/stablepay-io/ms-go-notify/app/controller"
	"github.com/stablepay-io/ms-go-notify/app/repository"
	"github.com/stablepay-io/ms-go-notify/app/service"
	"github.com/stablepay-io/ms-go-notify/app/types"
	"github.com/stablepay-io/ms-go-notify/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for payment intents, webhook endpoints, and delivery queries.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, notifyService, _, cleanup := mustCreateNotifyService()
	defer cleanup()

	paymentController := controller.NewPaymentController(notifyService)
	endpointController := controller.NewWebhookEndpointController(notifyService)
	eventController := controller.NewEventController(notifyService)

	e := setupHTTPServer(paymentController, endpointController, eventController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	endpointController *controller.WebhookEndpointController,
	eventController *controller.EventController,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(requireRequestID())

	e.GET("/health", paymentController.Health)

	payments := e.Group("/payments")
	payments.POST("", paymentController.CreatePayment)
	payments.GET("", paymentController.ListPayments)
	payments.GET("/:id", paymentController.GetPayment)

	endpoints := e.Group("/webhook-endpoints")
	endpoints.POST("", endpointController.CreateEndpoint)
	endpoints.GET("", endpointController.ListEndpoints)
	endpoints.GET("/:id", endpointController.GetEndpoint)
	endpoints.PUT("/:id", endpointController.UpdateEndpoint)
	endpoints.POST("/:id/revoke", endpointController.RevokeEndpoint)

	events := e.Group("/events")
	events.GET("", eventController.ListEvents)
	events.GET("/:id", eventController.GetEvent)
	events.GET("/:id/deliveries", eventController.ListEventDeliveries)

	e.GET("/deliveries", eventController.ListDeliveries)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func mustCreateNotifyService() (*config.Config, *service.NotifyService, *redislock.Client, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	paymentRepo := repository.NewPaymentRepository(db)
	eventRepo := repository.NewEventRepository(db)
	endpointRepo := repository.NewWebhookEndpointRepository(db)
	deliveryRepo := repository.NewEventDeliveryRepository(db)
	tokenRepo := repository.NewApiTokenRepository(db)

	var source chain.Source
	if cfg.Chain.RPCURL != "" {
		rpc, err := ethclient.Dial(cfg.Chain.RPCURL)
		if err != nil {
			_ = db.Close()
			logrus.WithError(err).Fatal("Failed to connect to chain RPC")
		}
		source = chain.NewEthereumSource(rpc, chain.EthereumConfig{
			TokenContracts: map[string]string{
				"USDC": cfg.Chain.USDCContract,
				"USDT": cfg.Chain.USDTContract,
			},
			LookbackBlocks: cfg.Chain.LookbackBlocks,
		})
	} else {
		logrus.Warn("CHAIN_RPC_URL not set; payments will only fail by timeout")
	}

	var redisClient *redis.Client
	var locker *redislock.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = redislock.New(redisClient)
	}

	notifyService := service.NewNotifyService(
		paymentRepo,
		eventRepo,
		endpointRepo,
		deliveryRepo,
		tokenRepo,
		source,
		cfg.Monitoring,
		cfg.Webhooks,
	)

	cleanup := func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis client")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, notifyService, locker, cleanup
}
