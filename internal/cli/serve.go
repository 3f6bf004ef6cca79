package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coffeeshop/shop/internal/auth"
	"github.com/coffeeshop/shop/internal/cache"
	"github.com/coffeeshop/shop/internal/catalog"
	"github.com/coffeeshop/shop/internal/events"
	"github.com/coffeeshop/shop/internal/health"
	shophttp "github.com/coffeeshop/shop/internal/http"
	"github.com/coffeeshop/shop/internal/poller"
	"github.com/coffeeshop/shop/internal/repository"
	"github.com/coffeeshop/shop/internal/service"
	"github.com/coffeeshop/shop/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type ServeOptions struct {
	*RootOptions
	SkipMigrations bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health server",
		Long: `Run the storefront HTTP API on HTTP_PORT and the gRPC health service on
GRPC_PORT. Pending migrations are applied first unless --skip-migrations is set.
When KAFKA_BROKERS is set, cart and product events are published and catalog
events evict cached products.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipMigrations, "skip-migrations", false, "do not apply migrations on start")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, logger := opts.Config, opts.Logger

	tp, err := telemetry.InitTracerProvider(ctx, "coffee-shop", cfg.OTLPEndpoint)
	if err != nil {
		return wrap("init tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return wrap("connect mongodb", err)
	}
	defer db.Client().Disconnect(context.Background())
	logger.Info("connected to mongodb", "database", cfg.MongoDBName)

	if !opts.SkipMigrations {
		if err := repository.RunMigrations(db); err != nil {
			return wrap("run migrations", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, product reads will go to mongodb", "addr", cfg.RedisAddr, "error", err)
	}

	productCache := cache.NewRedisCache(redisClient)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(logger, cfg.KafkaBrokers...)

		p := poller.NewPoller(productCache, logger, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers)
	}
	defer publisher.Close()

	productRepo := repository.NewMongoProductRepository(db)
	lookup := catalog.NewLookup(productRepo, productCache, logger)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)

	carts := service.NewCartService(repository.NewMongoCartRepository(db), lookup, publisher, logger)
	products := service.NewProductService(productRepo, lookup, publisher, logger)
	accounts := service.NewAuthService(repository.NewMongoUserRepository(db), tokens, logger)

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, health.NewService(logger, map[string]health.Pinger{
		"mongodb": health.PingFunc(func(ctx context.Context) error {
			return db.Client().Ping(ctx, readpref.Primary())
		}),
		"redis": health.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}, "mongodb"))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return wrap("listen grpc", err)
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: shophttp.NewRouter(shophttp.RouterConfig{
			Carts:          carts,
			Products:       products,
			Auth:           accounts,
			RequestTimeout: cfg.RequestTimeout,
			CORSOrigins:    cfg.CORSOrigins,
			ImagesDir:      cfg.ImagesDir,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc health server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- wrap("serve grpc", err)
		}
	}()
	go func() {
		logger.Info("http server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- wrap("serve http", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	logger.Info("server exited")
	return runErr
}
