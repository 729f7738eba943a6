package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"chat-gateway/internal/config"
	"chat-gateway/internal/db"
	"chat-gateway/internal/health"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/presence"
	"chat-gateway/internal/rabbitmq"
	"chat-gateway/internal/relay"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/service"
	"chat-gateway/internal/telemetry"
	"chat-gateway/internal/ws"
)

const (
	serviceName      = "chat-gateway"
	auditRoutingKey  = "audit_logs.chat"
	shutdownTimeout  = 15 * time.Second
	healthInterval   = 15 * time.Second
	presenceTTL      = 90 * time.Second
	presenceRefresh  = 30 * time.Second
	storeOpenTimeout = 15 * time.Second
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("chat gateway stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "reason", rabbitmq.PublisherNoopReason(publisher))

	events := observability.NewEvents(publisher, logger)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, serviceName, cfg.Env)
	bridge := relay.NewBridge(logger)
	svc := service.New(store, service.Options{
		Notifier: bridge,
		Events:   events,
		Audit:    audit,
		Logger:   logger,
	})

	auth, err := ws.NewAuthenticator(cfg, svc)
	if err != nil {
		return fmt.Errorf("websocket auth: %w", err)
	}

	listeners := []presence.Listener{observability.PresenceMetrics{}, observability.PresenceEvents{Events: events}}
	var mirror *presence.RedisMirror
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		mirror = presence.NewRedisMirror(rdb, presenceTTL, logger)
		if err := mirror.Reset(ctx); err != nil {
			logger.Warn("presence mirror reset failed", "error", err)
		}
		listeners = append(listeners, mirror)
	}

	gateway := ws.NewGateway(svc, auth, ws.Options{
		PingInterval:    cfg.WSPingInterval,
		PongTimeout:     cfg.WSPongTimeout,
		EventsPerSecond: cfg.WSEventsPerSecond,
		AllowedOrigins:  cfg.AllowedOrigins,
		Listeners:       listeners,
		Events:          events,
		Logger:          logger,
	})
	if err := bridge.Attach(gateway); err != nil {
		return fmt.Errorf("attach relay: %w", err)
	}

	router := newRouter(routerDeps{
		cfg:     cfg,
		svc:     svc,
		gateway: gateway,
		audit:   audit,
		store:   store,
		log:     logger,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthSrv := health.NewServer(store, healthInterval, logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		return fmt.Errorf("listen grpc health: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpSrv.Addr, "store", cfg.StoreDriver, "ws_auth", cfg.WSAuthMode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := healthSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		healthSrv.Watch(gctx)
		return nil
	})
	if mirror != nil {
		g.Go(func() error {
			return mirror.Run(gctx, gateway.Presence(), presenceRefresh)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		if err := gateway.Shutdown(shutdownCtx); err != nil {
			logger.Warn("websocket shutdown", "error", err)
		}
		healthSrv.Shutdown()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (repositories.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return repositories.Store{}, fmt.Errorf("connect postgres: %w", err)
		}
		return repositories.NewPostgresStore(database), nil
	default:
		database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return repositories.Store{}, fmt.Errorf("connect mongodb: %w", err)
		}
		return repositories.NewMongoStore(database), nil
	}
}
