// Command broker runs the chat-completion broker: an OpenAI-compatible HTTP
// surface in front of a pool of worker connections that automate
// third-party chat UIs.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/chatrelay/broker/health"
	"github.com/chatrelay/broker/internal/config"
	"github.com/chatrelay/broker/internal/debuglog"
	"github.com/chatrelay/broker/internal/dispatcher"
	"github.com/chatrelay/broker/internal/healthsvc"
	"github.com/chatrelay/broker/internal/httpapi"
	"github.com/chatrelay/broker/internal/registry"
	"github.com/chatrelay/broker/internal/rendezvous"
	"github.com/chatrelay/broker/internal/session"
	"github.com/chatrelay/broker/llm"
	presencereg "github.com/chatrelay/broker/registry"
	"github.com/chatrelay/broker/queue"
)

func main() {
	logger := slog.Default()

	cfg := config.DefaultConfig()
	if path := os.Getenv("BROKER_CONFIG_FILE"); path != "" {
		fileCfg, err := config.Load(path)
		if err != nil {
			logger.Error("failed to load config file", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("broker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	meterProvider := metric.NewMeterProvider()
	defer meterProvider.Shutdown(context.Background())
	otel.SetMeterProvider(meterProvider)
	meter := meterProvider.Meter("github.com/chatrelay/broker")

	reg := registry.New(cfg.MaxWorkers, uuid.NewString)
	if err := reg.InstrumentWith(meter); err != nil {
		logger.Warn("failed to instrument registry metrics", "error", err)
	}

	table := rendezvous.New()

	var logSink *debuglog.Sink
	if cfg.DebugLogRedisURL != "" {
		redisHost, redisPort := splitHostPort(cfg.DebugLogRedisURL, 6379)
		checkCtx, checkCancel := context.WithTimeout(ctx, 3*time.Second)
		status := health.NetworkCheck(checkCtx, redisHost, redisPort)
		checkCancel()
		if status.IsUnhealthy() {
			logger.Warn("debug-log redis endpoint unreachable at startup, continuing in memory-only mode", "detail", status.Message)
		}
		redisClient, err := queue.NewRedisClient(queue.RedisOptions{URL: cfg.DebugLogRedisURL})
		if err != nil {
			logger.Warn("failed to construct debug-log redis client, falling back to memory-only", "error", err)
			logSink = debuglog.New(1000, nil, logger)
		} else {
			logSink = debuglog.New(1000, redisClient, logger)
		}
	} else {
		logSink = debuglog.New(1000, nil, logger)
	}

	disp := dispatcher.New(reg, table, dispatcher.Config{
		AcquireWait:  cfg.AcquireWait,
		ResponseWait: cfg.ResponseWait,
	}, uuid.NewString)

	var healthServer *healthsvc.Server
	if cfg.GRPCHealthPort > 0 {
		hs, err := healthsvc.New(cfg.GRPCHealthPort)
		if err != nil {
			return err
		}
		healthServer = hs
		go func() {
			if err := healthServer.Serve(ctx); err != nil {
				logger.Error("grpc health server stopped with error", "error", err)
			}
		}()
		go healthServer.RunRefreshLoop(ctx, cfg.LivenessWindow/2, func() healthsvc.WorkerCounts {
			counts := reg.Snapshot()
			return healthsvc.WorkerCounts{Total: counts.Total, Idle: counts.Idle, Busy: counts.Busy}
		})
	}

	var presence *presencereg.Client
	if len(cfg.EtcdEndpoints) > 0 {
		var err error
		presence, err = presencereg.NewClient(presencereg.Config{
			Endpoints: cfg.EtcdEndpoints,
			Namespace: "chatrelay",
			TTL:       30,
		})
		if err != nil {
			logger.Warn("failed to connect presence registry, continuing without it", "error", err)
		} else {
			info := presencereg.ServiceInfo{
				Kind:       "broker",
				Name:       "chat-broker",
				Version:    "1.0.0",
				InstanceID: uuid.NewString(),
				Endpoint:   cfg.ListenAddress,
				Metadata: map[string]string{
					"max_workers":    strconv.Itoa(cfg.MaxWorkers),
					"listen_address": cfg.ListenAddress,
				},
				StartedAt: time.Now(),
			}
			if err := presence.Register(ctx, info); err != nil {
				logger.Warn("failed to register presence", "error", err)
			}
			defer func() {
				dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer dcancel()
				_ = presence.Deregister(dctx, info)
				_ = presence.Close()
			}()
		}
	}

	handler := httpapi.New(
		func(r *http.Request, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return disp.Dispatch(r.Context(), req)
		},
		statsSource{reg: reg, table: table},
	)

	router := handler.Router()
	router.HandleFunc("/ws", upgradeWorker(reg, table, cfg.HeartbeatInterval, logSink, logger))

	httpServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
	}

	evictCtx, evictCancel := context.WithCancel(ctx)
	defer evictCancel()
	go runEvictionLoop(evictCtx, reg, table, cfg.LivenessWindow, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("broker listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown did not complete cleanly", "error", err)
		}
		if healthServer != nil {
			healthServer.Stop()
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// runEvictionLoop periodically sweeps workers whose heartbeat has gone
// stale and cancels any rendezvous slots still assigned to them, at half
// the liveness window per the broker's numerics.
func runEvictionLoop(ctx context.Context, reg *registry.Registry, table *rendezvous.Table, livenessWindow time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(livenessWindow / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := reg.EvictStale(time.Now(), livenessWindow)
			for _, id := range evicted {
				table.CancelForWorker(id)
				logger.Info("evicted stale worker", "worker_id", id)
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func upgradeWorker(reg *registry.Registry, table *rendezvous.Table, heartbeatInterval time.Duration, logSink *debuglog.Sink, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		sess := session.New(conn, reg, table, heartbeatInterval, logSink)
		sess.SetStrayNotifier(logSink)
		go func() {
			if err := sess.Run(r.Context()); err != nil {
				logger.Info("worker session ended", "error", err)
			}
		}()
	}
}

type statsSource struct {
	reg   *registry.Registry
	table *rendezvous.Table
}

func (s statsSource) Stats() httpapi.Stats {
	counts := s.reg.Snapshot()
	return httpapi.Stats{
		TotalWorkers:    counts.Total,
		IdleWorkers:     counts.Idle,
		BusyWorkers:     counts.Busy,
		PendingRequests: s.table.Pending(),
	}
}

// splitHostPort parses a redis:// URL or bare host:port as host/port,
// falling back to defaultPort when no port is present.
func splitHostPort(addr string, defaultPort int) (string, int) {
	addr = strings.TrimPrefix(addr, "redis://")
	addr = strings.TrimPrefix(addr, "rediss://")
	if slash := strings.Index(addr, "/"); slash >= 0 {
		addr = addr[:slash]
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}
