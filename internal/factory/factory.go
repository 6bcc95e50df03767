package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"authz-service/internal/bucketing"
	"authz-service/internal/client"
	"authz-service/internal/config"
	"authz-service/internal/ratelimit"
	redisrepo "authz-service/internal/repository/redis"
	"authz-service/internal/service"
	"authz-service/internal/token"
	"authz-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient   *client.RedisClient
	kafkaProducer *client.KafkaProducer

	// Managers
	bucketingManager *bucketing.Manager
	codec            *token.Codec
	limiter          *ratelimit.Evaluator

	// Repositories
	rateLimitStore  *redisrepo.RateLimitStore
	revocationStore *redisrepo.RevocationStore

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("rate_limit_fail_open", cfg.RateLimit.FailOpen),
	)

	return factory, nil
}

// initializeClients initializes external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("redis health check: %w", err)
		}
		util.Warn("Redis health check failed", util.ErrorField(err))
	} else {
		util.Info("Redis client initialized and healthy")
	}

	// Kafka is optional; audit events are dropped when it is unavailable
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	return nil
}

// initializeManagers wires the token codec, bucketing, and the rate limit
// evaluator on top of the Redis-backed counter store.
func (f *Factory) initializeManagers() error {
	f.bucketingManager = bucketing.NewManager(f.config.RateLimit.Buckets)

	codec, err := token.NewCodec(token.Config{
		Secret:     []byte(f.config.Token.Secret),
		AccessTTL:  f.config.Token.AccessTTL,
		RefreshTTL: f.config.Token.RefreshTTL,
		Issuer:     f.config.Token.Issuer,
	})
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}
	f.codec = codec

	f.rateLimitStore = redisrepo.NewRateLimitStore(f.redisClient, f.bucketingManager)
	f.revocationStore = redisrepo.NewRevocationStore(f.redisClient)

	limiter, err := ratelimit.NewEvaluator(
		f.rateLimitStore,
		f.config.RateLimit.Rules,
		ratelimit.Options{
			FailOpen:     f.config.RateLimit.FailOpen,
			CheckTimeout: f.config.RateLimit.CheckTimeout,
		},
		util.Get(),
	)
	if err != nil {
		return fmt.Errorf("rate limit evaluator: %w", err)
	}
	f.limiter = limiter

	util.Info("Managers initialized successfully",
		util.Int("buckets", f.bucketingManager.Buckets()),
		util.Int("rate_limit_rules", len(f.config.RateLimit.Rules)),
	)
	return nil
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var audit service.AuditPublisher
		if f.kafkaProducer != nil {
			audit = f.kafkaProducer
		}
		f.serviceFactory = service.NewServiceFactory(
			f.codec,
			f.revocationStore,
			f.limiter,
			nil,
			audit,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.codec == nil {
		healthErrors["token_codec"] = fmt.Errorf("token codec not initialized")
	}
	if f.limiter == nil {
		healthErrors["rate_limiter"] = fmt.Errorf("rate limit evaluator not initialized")
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) BucketingManager() *bucketing.Manager {
	return f.bucketingManager
}
