package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	jww "github.com/spf13/jwalterweatherman"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"collab-lab/internal/config"
	"collab-lab/internal/db"
	"collab-lab/internal/handlers"
	"collab-lab/internal/middleware"
	"collab-lab/internal/models"
	"collab-lab/internal/observability"
	"collab-lab/internal/presence"
	"collab-lab/internal/rabbitmq"
	"collab-lab/internal/relay"
	"collab-lab/internal/repositories"
	"collab-lab/internal/store"
	"collab-lab/internal/store/filestore"
	"collab-lab/internal/store/pgstore"
	"collab-lab/internal/store/redisstore"
	"collab-lab/internal/sweeper"
	"collab-lab/internal/syncer"
	"collab-lab/internal/telemetry"
	"collab-lab/internal/ws"
)

const serviceName = "collab-lab"

func main() {
	cfg, err := config.Load()
	if err != nil {
		jww.FATAL.Fatalf("failed to load config: %v", err)
	}
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		jww.FATAL.Fatalf("failed to set up tracing: %v", err)
	}

	b := &backends{cfg: cfg}
	defer b.close()

	kv, err := b.keyedStore(ctx)
	if err != nil {
		jww.FATAL.Fatalf("failed to open store: %v", err)
	}
	blobs, err := b.blobStore(ctx)
	if err != nil {
		jww.FATAL.Fatalf("failed to open blob store: %v", err)
	}

	transport, closeTransport, err := relayTransport(cfg)
	if err != nil {
		jww.FATAL.Fatalf("failed to set up relay: %v", err)
	}
	defer closeTransport()

	users := repositories.NewUserRepo(kv)
	groups := repositories.NewGroupRepo(kv)
	messages := repositories.NewMessageRepo(kv)

	tracker, err := presence.NewTracker(users, cfg.Presence.HeartbeatInterval, cfg.Presence.OnlineWindow, nil)
	if err != nil {
		jww.FATAL.Fatalf("invalid presence settings: %v", err)
	}

	deps := syncer.Deps{
		Store:     kv,
		Blobs:     blobs,
		Users:     users,
		Groups:    groups,
		Messages:  messages,
		Presence:  tracker,
		Transport: transport,
		Config: syncer.Config{
			MessageTTL:     cfg.Sync.MessageTTL,
			PollInterval:   cfg.Sync.PollInterval,
			BackoffInitial: cfg.Relay.BackoffInitial,
			BackoffMax:     cfg.Relay.BackoffMax,
			PlanLimits: models.PlanLimits{
				models.PlanFree:    cfg.Plans.Free,
				models.PlanPro:     cfg.Plans.Pro,
				models.PlanPremium: cfg.Plans.Premium,
				models.PlanGuest:   cfg.Plans.Guest,
			},
		},
	}
	if transport != nil {
		deps.Publisher = relay.NewPublisher(transport, cfg.Relay.PublishRate)
	}
	manager := syncer.NewManager(deps)
	defer manager.Close()

	expiry := sweeper.New(messages, blobs, cfg.Sync.SweepInterval, nil)
	go expiry.Run(ctx)

	eventPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.AuditExchange)
	defer eventPublisher.Close()
	observability.SetPublisher(eventPublisher)
	audit := telemetry.NewAuditEmitter(eventPublisher, cfg.AMQP.AuditRoutingKey, serviceName, cfg.Environment)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"store":       cfg.Store.Backend,
			"relay":       cfg.Relay.Backend,
			"events_mode": rabbitmq.PublisherMode(eventPublisher),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	identity := middleware.Identity(users)
	handlers.RegisterRoutes(router, identity,
		handlers.NewUserHandler(manager, users, tracker),
		handlers.NewGroupHandler(manager, audit),
		handlers.NewMessageHandler(manager, audit),
	)
	handlers.RegisterDebugRoutes(router, audit, expiry, cfg.DebugRoutes)

	hub := ws.NewHub()
	router.GET("/ws/groups/:group_id", identity, ws.NewGroupWebSocketHandler(hub, manager, tracker).Handle)
	if cfg.Relay.ServerEnabled {
		relayServer := ws.NewRelayServer(hub)
		router.POST("/relay/:topic", relayServer.Publish)
		router.GET("/relay/:topic/ws", relayServer.Stream)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		jww.INFO.Printf("collab-lab listening port=%s store=%s blobs=%s relay=%s",
			cfg.Port, cfg.Store.Backend, cfg.Store.BlobBackend, cfg.Relay.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			jww.FATAL.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	jww.INFO.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		jww.WARN.Printf("http shutdown: %v", err)
	}
	manager.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		jww.WARN.Printf("tracing shutdown: %v", err)
	}
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		jww.SetStdoutThreshold(jww.LevelDebug)
	case "warn":
		jww.SetStdoutThreshold(jww.LevelWarn)
	case "error":
		jww.SetStdoutThreshold(jww.LevelError)
	default:
		jww.SetStdoutThreshold(jww.LevelInfo)
	}
}

// backends opens the shared Redis and Postgres connections at most once,
// whichever of the stores ends up needing them.
type backends struct {
	cfg *config.Config
	rdb *redis.Client
	sql *sqlx.DB
}

func (b *backends) redis(ctx context.Context) (*redis.Client, error) {
	if b.rdb != nil {
		return b.rdb, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     b.cfg.Redis.Addr,
		Password: b.cfg.Redis.Password,
		DB:       b.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	jww.INFO.Printf("redis connected addr=%s", b.cfg.Redis.Addr)
	b.rdb = rdb
	return rdb, nil
}

func (b *backends) postgres() (*sqlx.DB, error) {
	if b.sql != nil {
		return b.sql, nil
	}
	database, err := db.Connect(b.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	b.sql = database
	return database, nil
}

func (b *backends) keyedStore(ctx context.Context) (store.KeyedStore, error) {
	switch b.cfg.Store.Backend {
	case "redis":
		rdb, err := b.redis(ctx)
		if err != nil {
			return nil, err
		}
		s := redisstore.New(rdb)
		go func() {
			if err := s.Listen(ctx); err != nil {
				jww.ERROR.Printf("redis change feed stopped: %v", err)
			}
		}()
		return s, nil
	case "postgres":
		database, err := b.postgres()
		if err != nil {
			return nil, err
		}
		s := pgstore.New(database)
		go func() {
			if err := s.Listen(ctx, b.cfg.Database.DSN); err != nil {
				jww.ERROR.Printf("pg change feed stopped: %v", err)
			}
		}()
		return s, nil
	}
	return store.NewMemoryStore(), nil
}

func (b *backends) blobStore(ctx context.Context) (store.BlobStore, error) {
	switch b.cfg.Store.BlobBackend {
	case "redis":
		rdb, err := b.redis(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.NewBlobStore(rdb), nil
	case "postgres":
		database, err := b.postgres()
		if err != nil {
			return nil, err
		}
		return pgstore.NewBlobStore(database), nil
	case "file":
		return filestore.Open(b.cfg.Store.BlobDir, b.cfg.Store.BlobPassword)
	}
	return store.NewMemoryBlobStore(), nil
}

func (b *backends) close() {
	if b.rdb != nil {
		b.rdb.Close()
	}
	if b.sql != nil {
		b.sql.Close()
	}
}

func relayTransport(cfg *config.Config) (relay.Transport, func(), error) {
	noop := func() {}
	switch cfg.Relay.Backend {
	case "local":
		return relay.NewMemoryTransport(), noop, nil
	case "ws":
		return relay.NewWSTransport(cfg.Relay.URL), noop, nil
	case "amqp":
		t, err := rabbitmq.NewTransport(cfg.AMQP.URL, cfg.AMQP.RelayExchange)
		if err != nil {
			return nil, noop, err
		}
		return t, func() { t.Close() }, nil
	}
	return nil, noop, nil
}
