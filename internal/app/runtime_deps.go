package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/authcore/internal/audit"
	audithttp "github.com/odyssey-erp/authcore/internal/audit/http"
	"github.com/odyssey-erp/authcore/internal/bootstrap"
	"github.com/odyssey-erp/authcore/internal/observability"
	"github.com/odyssey-erp/authcore/internal/platform/cache"
	"github.com/odyssey-erp/authcore/internal/platform/db"
	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/roles"
	"github.com/odyssey-erp/authcore/internal/shared"
	"github.com/odyssey-erp/authcore/internal/users"
	"github.com/odyssey-erp/authcore/jobs"
)

// RuntimeOptions tunes NewRuntime for the calling binary.
type RuntimeOptions struct {
	// Migrate applies pending migrations after connecting.
	Migrate bool
	// OptionalRedis lets CLI tools run without Redis; cache invalidation and
	// the queue sink are then disabled.
	OptionalRedis bool
}

// Runtime holds the wired authorization core shared by the server, the
// worker and authctl.
type Runtime struct {
	Config     *Config
	Logger     *slog.Logger
	DB         *sql.DB
	Redis      *redis.Client
	Metrics    *observability.Metrics
	Store      *rbac.SQLStore
	Users      *users.Service
	Resolver   *rbac.Resolver
	AuditRepo  *audit.SQLRepository
	Audit      *audit.Logger
	AuditQuery *audit.Service
	Roles      *roles.Manager
	Bootstrap  *bootstrap.SuperAdmin

	userRepo  *users.Repository
	queue     *asynq.Client
	inspector *asynq.Inspector
}

// NewRuntime opens the database and Redis and wires every component.
func NewRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, opts RuntimeOptions) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}
	rt.DB = conn
	if opts.Migrate {
		if err := db.Migrate(conn, cfg.DBDriver); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
	}

	client, err := cache.New(ctx, cache.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  cfg.RBACCacheTimeout,
		WriteTimeout: cfg.RBACCacheTimeout,
	})
	switch {
	case err == nil:
		rt.Redis = client
	case opts.OptionalRedis:
		logger.Warn("redis unavailable; cache invalidation and queue sink disabled", slog.Any("error", err))
	default:
		_ = rt.Close()
		return nil, fmt.Errorf("app: connect redis: %w", err)
	}

	rt.Store = rbac.NewSQLStore(conn, cfg.RBACStoreTimeout)
	rt.userRepo = users.NewRepository(conn, cfg.RBACStoreTimeout)
	rt.Users = users.NewService(rt.userRepo)

	var permCache rbac.Cache
	switch {
	case cfg.RBACCacheBackend == CacheBackendMemory:
		permCache = rbac.NewMemoryCache(cfg.RBACCacheSize, cfg.RBACCacheTTL)
	case rt.Redis != nil:
		permCache = rbac.NewRedisCache(rt.Redis)
	}
	rt.Resolver = rbac.NewResolver(rt.Store, permCache, rbac.ResolverConfig{
		TTL:          cfg.RBACCacheTTL,
		CacheTimeout: cfg.RBACCacheTimeout,
		StoreTimeout: cfg.RBACStoreTimeout,
		Logger:       logger,
		Metrics:      rt.Metrics,
	})

	rt.AuditRepo = audit.NewRepository(conn, cfg.RBACStoreTimeout)
	var sink audit.Sink = rt.AuditRepo
	sinkName := AuditSinkDB
	if cfg.AuditSink == AuditSinkQueue && rt.Redis != nil {
		rt.queue = jobs.NewClient(rt.redisOpt())
		sink = audit.NewQueueSink(rt.queue, jobs.QueueAudit)
		sinkName = AuditSinkQueue
	}
	rt.Audit = audit.NewLogger(sink, audit.LoggerConfig{
		SinkName: sinkName,
		RecordIP: cfg.AuditRecordIP,
		Logger:   logger,
		Metrics:  rt.Metrics,
	})
	rt.AuditQuery = audit.NewService(rt.AuditRepo, cfg.AuditQueryMaxLimit)

	rt.Roles = roles.NewManager(roles.Config{
		Store:       rt.Store,
		Users:       rt.userRepo,
		Invalidator: rt.Resolver,
		Audit:       rt.Audit,
		Logger:      logger,
		Metrics:     rt.Metrics,
	})
	rt.Bootstrap = bootstrap.NewSuperAdmin(bootstrap.Config{
		Identifier:  cfg.BootstrapAdminIdentifier,
		Users:       rt.Users,
		Store:       rt.Store,
		Invalidator: rt.Resolver,
		Audit:       rt.Audit,
		Logger:      logger,
	})
	return rt, nil
}

func (rt *Runtime) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: rt.Config.RedisAddr, Password: rt.Config.RedisPassword, DB: rt.Config.RedisDB}
}

// RedisOpt returns the asynq connection options for the configured Redis.
func (rt *Runtime) RedisOpt() asynq.RedisClientOpt {
	return rt.redisOpt()
}

// Middleware returns the authorization middleware configured for this runtime.
func (rt *Runtime) Middleware() rbac.Middleware {
	return rbac.Middleware{
		Enabled:            rt.Config.RBACEnabled,
		MissingPermissions: rbac.MissingPolicy(rt.Config.RBACMissingPermissions),
		Audit:              rt.Audit,
		Logger:             rt.Logger,
		Metrics:            rt.Metrics,
	}
}

// Handler builds the HTTP surface. Redis is required for sessions.
func (rt *Runtime) Handler() (http.Handler, error) {
	if rt.Redis == nil {
		return nil, errors.New("app: sessions require redis")
	}
	sessions := shared.NewSessionManager(rt.Redis, rt.Config.SessionCookie, rt.Config.SessionSecret, rt.Config.SessionTTL, rt.Config.IsProduction())
	csrf := shared.NewCSRFManager(rt.Config.CSRFSecret)
	mw := rt.Middleware()

	params := RouterParams{
		Logger:             rt.Logger,
		Config:             rt.Config,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		Resolver:           rt.Resolver,
		PermissionsHandler: rbac.NewPermissionsHandler(rt.Logger, rt.Store, rt.Resolver, csrf, mw),
		RolesHandler:       roles.NewHandler(rt.Logger, rt.Roles, mw),
		UsersHandler:       users.NewHandler(rt.Logger, rt.Users, mw),
		AuditHandler:       audithttp.NewHandler(rt.Logger, rt.AuditQuery, mw),
		Metrics:            rt.Metrics,
		Ready:              rt.Ready,
	}
	if rt.queue != nil {
		if rt.inspector == nil {
			rt.inspector = asynq.NewInspector(rt.redisOpt())
		}
		params.JobHandler = jobs.NewHandler(rt.inspector, rt.Logger)
	}
	return NewRouter(params), nil
}

// Ready pings the database and Redis.
func (rt *Runtime) Ready(ctx context.Context) error {
	if err := rt.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("app: database: %w", err)
	}
	if rt.Redis != nil {
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("app: redis: %w", err)
		}
	}
	return nil
}

// Close releases connections.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.inspector != nil {
		errs = append(errs, rt.inspector.Close())
	}
	if rt.queue != nil {
		errs = append(errs, rt.queue.Close())
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	return errors.Join(errs...)
}
