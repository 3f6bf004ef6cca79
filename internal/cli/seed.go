package cli

import (
	"context"
	"os"

	"github.com/coffeeshop/shop/internal/auth"
	"github.com/coffeeshop/shop/internal/cache"
	"github.com/coffeeshop/shop/internal/catalog"
	"github.com/coffeeshop/shop/internal/events"
	"github.com/coffeeshop/shop/internal/repository"
	"github.com/coffeeshop/shop/internal/seed"
	"github.com/coffeeshop/shop/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SeedOptions struct {
	*RootOptions
	File string
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample catalog and accounts",
		Long: `Replace all products with the sample coffee catalog and create the sample
admin and user accounts if they do not exist yet. Replaced products are evicted
from Redis and announced on Kafka when KAFKA_BROKERS is set.

Example:
  shop seed
  shop seed --file ./my-catalog.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadSeedData(opts.File)
			if err != nil {
				return err
			}

			cfg, logger := opts.Config, opts.Logger
			db, err := repository.ConnectMongoDB(cmd.Context(), cfg.MongoURI, cfg.MongoDBName)
			if err != nil {
				return wrap("connect mongodb", err)
			}
			defer db.Client().Disconnect(cmd.Context())

			if err := repository.RunMigrations(db); err != nil {
				return wrap("run migrations", err)
			}

			productRepo := repository.NewMongoProductRepository(db)
			invalidator, closeCache := seedInvalidator(cmd.Context(), opts.RootOptions, productRepo)
			defer closeCache()

			var publisher events.Publisher = events.NopPublisher{}
			if len(cfg.KafkaBrokers) > 0 {
				publisher = events.NewKafkaPublisher(logger, cfg.KafkaBrokers...)
			}
			defer publisher.Close()

			products := service.NewProductService(productRepo, invalidator, publisher, logger)
			accounts := service.NewAuthService(repository.NewMongoUserRepository(db), auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL), logger)
			return seed.Run(cmd.Context(), data, products, accounts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "seed YAML file (defaults to the built-in catalog)")

	return cmd
}

func loadSeedData(path string) (*seed.Data, error) {
	if path == "" {
		return seed.Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap("read seed file", err)
	}
	return seed.Parse(raw)
}

// seedInvalidator evicts replaced products from the server's Redis cache.
// Eviction is skipped when Redis does not answer.
func seedInvalidator(ctx context.Context, opts *RootOptions, repo repository.ProductRepository) (service.CacheInvalidator, func()) {
	cfg, logger := opts.Config, opts.Logger
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, cached products will not be evicted", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return noCache{}, func() {}
	}
	lookup := catalog.NewLookup(repo, cache.NewRedisCache(client), logger)
	return lookup, func() { client.Close() }
}

type noCache struct{}

func (noCache) Invalidate(context.Context, primitive.ObjectID) {}
