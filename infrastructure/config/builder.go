package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/ideaflow/application"
	"github.com/felixgeelhaar/ideaflow/domain/audit"
	domainconfig "github.com/felixgeelhaar/ideaflow/domain/config"
	"github.com/felixgeelhaar/ideaflow/domain/idea"
	infraaudit "github.com/felixgeelhaar/ideaflow/infrastructure/audit"
	"github.com/felixgeelhaar/ideaflow/infrastructure/logging"
	"github.com/felixgeelhaar/ideaflow/infrastructure/resilience"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/badger"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/memory"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/redis"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/sqlite"
	"github.com/felixgeelhaar/ideaflow/infrastructure/telemetry"
)

// Runtime holds the components built from a configuration.
type Runtime struct {
	Config  *domainconfig.AppConfig
	Service *application.IdeaService
	Store   idea.Store
	Audit   audit.Log
	Logger  *bolt.Logger
	Tracing *telemetry.TracerProvider
	Metrics *telemetry.MeterProvider

	closers []func(context.Context) error
}

// Close releases everything the runtime opened, newest first.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for _, c := range slices.Backward(r.closers) {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) onClose(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	logOutput       io.Writer
	telemetryOutput io.Writer
	serviceVersion  string
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) BuildOption {
	return func(o *buildOptions) {
		o.logOutput = w
	}
}

// WithTelemetryOutput sends stdout-exported spans and metrics to w.
func WithTelemetryOutput(w io.Writer) BuildOption {
	return func(o *buildOptions) {
		o.telemetryOutput = w
	}
}

// WithServiceVersion sets the version reported in trace resources.
func WithServiceVersion(v string) BuildOption {
	return func(o *buildOptions) {
		o.serviceVersion = v
	}
}

// Build opens the configured store and audit log and wires the idea
// service over them. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *domainconfig.AppConfig, opts ...BuildOption) (_ *Runtime, err error) {
	if cfg == nil {
		cfg = domainconfig.Default()
	}
	if errs := domainconfig.NewValidator().Validate(cfg); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %w", domainconfig.ErrValidationFailed, errs)
	}

	o := buildOptions{logOutput: os.Stderr, serviceVersion: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{
		Config: cfg,
		Logger: logging.New(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: o.logOutput,
		}),
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	tc := cfg.Telemetry.Tracing
	tracingCfg := telemetry.DefaultTracingConfig()
	tracingCfg.Enabled = tc.Enabled
	if tc.Exporter != "" {
		tracingCfg.Exporter = telemetry.ExporterType(tc.Exporter)
	}
	tracingCfg.Endpoint = tc.Endpoint
	tracingCfg.Insecure = tc.Insecure
	if tc.SampleRate > 0 {
		tracingCfg.SampleRate = tc.SampleRate
	}
	tracingCfg.ServiceName = cfg.Name
	tracingCfg.Output = o.telemetryOutput

	rt.Tracing, err = telemetry.NewTracerProvider(ctx, tracingCfg, o.serviceVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: tracing: %w", domainconfig.ErrBuildFailed, err)
	}
	rt.onClose(rt.Tracing.Shutdown)

	mc := cfg.Telemetry.Metrics
	meterCfg := telemetry.DefaultMeterConfig()
	meterCfg.Enabled = mc.Enabled
	if mc.Exporter != "" {
		meterCfg.Exporter = telemetry.ExporterType(mc.Exporter)
	}
	meterCfg.Endpoint = mc.Endpoint
	meterCfg.Insecure = mc.Insecure
	if mc.Interval > 0 {
		meterCfg.Interval = time.Duration(mc.Interval)
	}
	meterCfg.ServiceName = cfg.Name
	meterCfg.Output = o.telemetryOutput

	rt.Metrics, err = telemetry.NewMeterProvider(ctx, meterCfg, o.serviceVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: metrics: %w", domainconfig.ErrBuildFailed, err)
	}
	rt.onClose(rt.Metrics.Shutdown)

	backend, err := openBackend(ctx, rt, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: storage %s: %w", domainconfig.ErrBuildFailed, cfg.Storage.Backend, err)
	}
	rt.Store = backend.store

	rt.Audit, err = openAuditLog(cfg.Audit, backend)
	if err != nil {
		return nil, fmt.Errorf("%w: audit %s: %w", domainconfig.ErrBuildFailed, cfg.Audit.Backend, err)
	}
	rt.onClose(func(context.Context) error { return rt.Audit.Close() })

	metricsCfg := telemetry.DefaultMetricsConfig()
	metricsCfg.MeterProvider = rt.Metrics.Provider()
	metrics := telemetry.NewMetricsProvider(metricsCfg)
	if err := metrics.Error(); err != nil {
		rt.Logger.Warn().Str("component", "config").Str("error", err.Error()).Msg("metrics unavailable")
	}

	rt.Service, err = application.NewIdeaService(rt.Store,
		application.WithAuditLog(rt.Audit),
		application.WithLogger(rt.Logger),
		application.WithMetrics(metrics),
		application.WithTracer(rt.Tracing.Tracer("github.com/felixgeelhaar/ideaflow")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainconfig.ErrBuildFailed, err)
	}

	logging.NewEvent(rt.Logger.Debug()).
		Add(
			logging.Component("config"),
			logging.Backend(cfg.Storage.Backend),
			logging.Str("audit_backend", cfg.Audit.Backend),
		).
		Msg("runtime built")

	return rt, nil
}

// backend is an opened idea store plus the handles an SQL audit log can
// share with it.
type backend struct {
	store    idea.Store
	sqliteDB func() (audit.Log, error)
	postgres func() audit.Log
}

func openBackend(ctx context.Context, rt *Runtime, cfg *domainconfig.AppConfig) (*backend, error) {
	s := cfg.Storage
	switch s.Backend {
	case domainconfig.BackendMemory:
		return &backend{store: memory.NewIdeaStore()}, nil

	case domainconfig.BackendSQLite:
		var opts []sqlite.Option
		if s.SQLite.DSN != "" {
			opts = append(opts, sqlite.WithDSN(s.SQLite.DSN))
		}
		if s.SQLite.JournalMode != "" {
			opts = append(opts, sqlite.WithJournalMode(s.SQLite.JournalMode))
		}
		if s.SQLite.BusyTimeout > 0 {
			opts = append(opts, sqlite.WithBusyTimeout(int(s.SQLite.BusyTimeout.Duration()/time.Millisecond)))
		}
		store, err := sqlite.NewIdeaStore(sqlite.DefaultConfig(), opts...)
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { return store.Close() })
		return &backend{
			store:    store,
			sqliteDB: func() (audit.Log, error) { return sqlite.NewAuditLogFromDB(store.DB()) },
		}, nil

	case domainconfig.BackendPostgres:
		pgCfg := postgresConfig(s.Postgres)
		pool, err := postgres.NewPool(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool, pgCfg.Schema); err != nil {
			return nil, err
		}
		return &backend{
			store:    postgres.NewIdeaStore(pool, pgCfg.Schema),
			postgres: func() audit.Log { return postgres.NewAuditLog(pool, pgCfg.Schema) },
		}, nil

	case domainconfig.BackendRedis:
		redisCfg := redis.DefaultConfig()
		if s.Redis.Address != "" {
			redisCfg.Address = s.Redis.Address
		}
		if s.Redis.KeyPrefix != "" {
			redisCfg.KeyPrefix = s.Redis.KeyPrefix
		}
		client, err := redis.NewClient(redisCfg, redis.WithPassword(s.Redis.Password), redis.WithDB(s.Redis.DB))
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { return client.Close() })
		return &backend{store: redis.NewIdeaStore(client, redisCfg.KeyPrefix)}, nil

	case domainconfig.BackendBadger:
		opts := []badger.Option{badger.WithLogger(badger.NewLogger(rt.Logger))}
		if s.Badger.InMemory {
			opts = append(opts, badger.WithInMemory())
		}
		if s.Badger.Dir != "" {
			opts = append(opts, badger.WithDir(s.Badger.Dir))
		}
		if s.Badger.SyncWrites {
			opts = append(opts, badger.WithSyncWrites())
		}
		if s.Badger.KeyPrefix != "" {
			opts = append(opts, badger.WithKeyPrefix(s.Badger.KeyPrefix))
		}
		store, err := badger.NewIdeaStore(badger.DefaultConfig(), opts...)
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { return store.Close() })
		return &backend{store: store}, nil

	case domainconfig.BackendMongoDB:
		var opts []mongodb.ConfigOption
		opts = append(opts, mongodb.WithURI(s.MongoDB.URI))
		if s.MongoDB.Database != "" {
			opts = append(opts, mongodb.WithDatabase(s.MongoDB.Database))
		}
		if s.MongoDB.Collection != "" {
			opts = append(opts, mongodb.WithCollection(s.MongoDB.Collection))
		}
		client, err := mongodb.NewClient(ctx, mongodb.DefaultConfig(), opts...)
		if err != nil {
			return nil, err
		}
		rt.onClose(client.Close)
		if err := client.CreateIndexes(ctx); err != nil {
			return nil, err
		}
		return &backend{store: mongodb.NewIdeaStore(client)}, nil

	case domainconfig.BackendDynamoDB:
		var opts []dynamodb.ConfigOption
		if s.DynamoDB.Region != "" {
			opts = append(opts, dynamodb.WithRegion(s.DynamoDB.Region))
		}
		if s.DynamoDB.Endpoint != "" {
			opts = append(opts, dynamodb.WithEndpoint(s.DynamoDB.Endpoint))
		}
		if s.DynamoDB.Table != "" {
			opts = append(opts, dynamodb.WithTableName(s.DynamoDB.Table))
		}
		if s.DynamoDB.AccessKeyID != "" {
			opts = append(opts, dynamodb.WithStaticCredentials(s.DynamoDB.AccessKeyID, s.DynamoDB.SecretAccessKey))
		}
		client, err := dynamodb.NewClient(ctx, dynamodb.DefaultConfig(), opts...)
		if err != nil {
			return nil, err
		}
		if s.DynamoDB.CreateTable {
			if err := client.CreateIdeasTable(ctx); err != nil {
				return nil, err
			}
		}
		return &backend{store: dynamodb.NewIdeaStore(client)}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", s.Backend)
	}
}

func postgresConfig(c domainconfig.PostgresConfig) postgres.Config {
	cfg := postgres.DefaultConfig()
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.Database != "" {
		cfg.Database = c.Database
	}
	if c.User != "" {
		cfg.User = c.User
	}
	cfg.Password = c.Password
	if c.SSLMode != "" {
		cfg.SSLMode = c.SSLMode
	}
	if c.Schema != "" {
		cfg.Schema = c.Schema
	}
	if c.MaxConns > 0 {
		cfg.MaxConns = int32(c.MaxConns)
	}
	return cfg
}

func openAuditLog(cfg domainconfig.AuditConfig, b *backend) (audit.Log, error) {
	var log audit.Log
	switch cfg.Backend {
	case domainconfig.AuditMemory:
		return infraaudit.NewMemoryLog(), nil
	case domainconfig.AuditJSONL:
		l, err := infraaudit.OpenJSONFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		log = l
	case domainconfig.AuditSQLite:
		if b.sqliteDB == nil {
			return nil, errors.New("sqlite audit log requires the sqlite store")
		}
		l, err := b.sqliteDB()
		if err != nil {
			return nil, err
		}
		log = l
	case domainconfig.AuditPostgres:
		if b.postgres == nil {
			return nil, errors.New("postgres audit log requires the postgres store")
		}
		log = b.postgres()
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}

	if !cfg.Resilience.Enabled {
		return log, nil
	}
	return infraaudit.NewResilientLog(log, resilienceConfig(cfg.Resilience)), nil
}

func resilienceConfig(c domainconfig.ResilienceConfig) resilience.Config {
	return resilience.Config{
		FailureThreshold: c.FailureThreshold,
		OpenTimeout:      c.OpenTimeout.Duration(),
		MaxAttempts:      c.MaxAttempts,
		InitialDelay:     c.InitialDelay.Duration(),
		Timeout:          c.Timeout.Duration(),
	}.Merge()
}
