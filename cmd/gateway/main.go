package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bitechdev/ServeSpec/pkg/config"
	"github.com/bitechdev/ServeSpec/pkg/content"
	"github.com/bitechdev/ServeSpec/pkg/cursor"
	"github.com/bitechdev/ServeSpec/pkg/errortracking"
	"github.com/bitechdev/ServeSpec/pkg/handler"
	"github.com/bitechdev/ServeSpec/pkg/logger"
	"github.com/bitechdev/ServeSpec/pkg/metrics"
	"github.com/bitechdev/ServeSpec/pkg/middleware"
	"github.com/bitechdev/ServeSpec/pkg/security"
	"github.com/bitechdev/ServeSpec/pkg/server"
	"github.com/bitechdev/ServeSpec/pkg/spec"
	"github.com/bitechdev/ServeSpec/pkg/storage"
	"github.com/bitechdev/ServeSpec/pkg/storage/collectionstore"
	"github.com/bitechdev/ServeSpec/pkg/storage/keystore"
	"github.com/bitechdev/ServeSpec/pkg/tracing"
)

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	var opts []config.Option
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}

	cfgMgr := config.NewManagerWithOptions(opts...)
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}

	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}
	logger.Info("ServeSpec gateway starting")

	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		logger.Error("Failed to initialize error tracking: %v", err)
		os.Exit(1)
	}
	logger.InitErrorTracking(tracker)

	if cfg.Metrics.Enabled {
		metrics.SetProvider(metrics.NewPrometheusProvider())
	}

	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Endpoint:       cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing: %v", err)
		os.Exit(1)
	}

	doc, err := spec.Load(cfg.Spec.Path)
	if err != nil {
		logger.Error("Failed to load the API document: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	adapter, closeAdapter, err := initAdapter(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize the storage adapter: %v", err)
		os.Exit(1)
	}

	verifier, err := initVerifier(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize token verification: %v", err)
		os.Exit(1)
	}

	codec, err := initCursorCodec(cfg)
	if err != nil {
		logger.Error("Failed to initialize the cursor codec: %v", err)
		os.Exit(1)
	}

	h := handler.New(doc, adapter, codec, cfg.Server.BaseURL)
	h.RegisterFormatter(&content.CSVFormatter{})

	router := mux.NewRouter()
	h.RegisterRoutes(router)

	if cfg.Metrics.Enabled {
		router.Handle("/metrics", metrics.GetProvider().Handler()).Methods(http.MethodGet)
	}

	var chain http.Handler = router
	chain = security.Middleware(verifier)(chain)
	chain = middleware.CORS(cfg.CORS)(chain)
	chain = middleware.SecurityHeaders(chain)
	chain = tracing.Middleware(chain)
	if provider, ok := metrics.GetProvider().(*metrics.PrometheusProvider); ok {
		chain = provider.Middleware(chain)
	}
	chain = middleware.PanicRecovery(chain)

	gs := server.NewGracefulServer(server.Config{
		Addr:            cfg.Server.Addr,
		Handler:         chain,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DrainTimeout:    cfg.Server.DrainTimeout,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
	})

	router.HandleFunc("/healthz", gs.HealthCheckHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", gs.ReadinessHandler()).Methods(http.MethodGet)

	gs.OnShutdown(func(ctx context.Context) error { return closeAdapter(ctx) })
	gs.OnShutdown(func(ctx context.Context) error { return shutdownTracer(ctx) })
	gs.OnShutdown(func(context.Context) error { return logger.CloseErrorTracking() })

	if err := gs.ListenAndServe(); err != nil {
		logger.Error("Server failed: %v", err)
		os.Exit(1)
	}
}

// initAdapter selects the storage backend from configuration: "keystore"
// runs on SQLite or PostgreSQL depending on the DSN, "collectionstore" on
// MongoDB.
func initAdapter(ctx context.Context, cfg *config.Config) (storage.Adapter, func(context.Context) error, error) {
	switch cfg.Database.Type {
	case "keystore":
		var sqldb *sql.DB
		var db *bun.DB
		var err error

		if strings.HasPrefix(cfg.Database.DSN, "postgres://") || strings.HasPrefix(cfg.Database.DSN, "postgresql://") {
			sqldb, err = sql.Open("pgx", cfg.Database.DSN)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open postgres connection: %w", err)
			}
			db = bun.NewDB(sqldb, pgdialect.New())
		} else {
			sqldb, err = sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
			}
			db = bun.NewDB(sqldb, sqlitedialect.New())
		}

		adapter := keystore.New(db, cfg.Audit.LogsName)
		if err := adapter.Init(ctx); err != nil {
			return nil, nil, err
		}
		return adapter, func(context.Context) error { return db.Close() }, nil

	case "collectionstore":
		client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.Database.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to reach mongodb: %w", err)
		}

		adapter := collectionstore.New(client.Database(cfg.Database.Database), cfg.Audit.LogsName)
		return adapter, client.Disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unknown database type '%s'", cfg.Database.Type)
	}
}

func initVerifier(ctx context.Context, cfg *config.Config) (security.Verifier, error) {
	if !cfg.OAuth.Configured() {
		logger.Warn("OAuth is not configured; requests are served without authentication")
		return nil, nil
	}

	return security.NewOIDCVerifier(ctx, security.OIDCConfig{
		Issuer:   cfg.OAuth.Issuer,
		Audience: cfg.OAuth.Audience,
		JWKSURL:  cfg.OAuth.JWKSURL,
		UPNClaim: cfg.OAuth.UPNClaim,
	})
}

func initCursorCodec(cfg *config.Config) (*cursor.Codec, error) {
	if !cfg.KMS.Configured() {
		return cursor.NewCodec(nil), nil
	}

	kms, err := cursor.NewLocalKMS(cfg.KMS.Project, cfg.KMS.Location, cfg.KMS.Keyring, cfg.KMS.Key)
	if err != nil {
		return nil, err
	}
	return cursor.NewCodec(kms), nil
}
