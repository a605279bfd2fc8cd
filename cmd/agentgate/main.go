package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"

	"github.com/clearmesh/agentgate/adapters/chain"
	"github.com/clearmesh/agentgate/adapters/events"
	"github.com/clearmesh/agentgate/adapters/skills"
	"github.com/clearmesh/agentgate/adapters/store"
	"github.com/clearmesh/agentgate/ports"
	"github.com/clearmesh/agentgate/service"
	transport "github.com/clearmesh/agentgate/transport/http"
)

const (
	version       = "0.3.0"
	sweepInterval = time.Minute
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisURL := env("REDIS_URL", "redis://localhost:6379/0")
	listenAddr := env("LISTEN_ADDR", ":9000")

	// The Redis backend is optional: when it is unreachable the process
	// runs on the in-process store alone. That mode is single-process only
	// and loses state on restart.
	fallback := store.NewMemoryStore()
	var st ports.Store = fallback
	var redisClient *redis.Client
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if client, err := store.DialRedis(dialCtx, redisURL); err != nil {
		logger.Warn("redis unreachable, running on in-process storage only", "error", err)
	} else {
		redisClient = client
		st = store.NewFailoverStore(store.NewRedisStore(client), fallback, logger)
	}
	cancel()

	var publisher message.Publisher
	if redisClient != nil {
		p, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewSlogLogger(logger),
		)
		if err != nil {
			logger.Error("failed to create redis publisher", "error", err)
			os.Exit(1)
		}
		publisher = p
	} else {
		publisher = gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	}
	eventPub := events.NewWatermillPublisher(publisher)

	var registry ports.ChainRegistry = chain.Disabled{}
	if rpcURL := os.Getenv("ETH_RPC_URL"); rpcURL != "" {
		contractAddr := os.Getenv("REGISTRY_ADDR")
		r, err := chain.NewRegistry(ctx, rpcURL, contractAddr)
		if err != nil {
			logger.Warn("chain registry disabled", "error", err)
		} else {
			defer r.Close()
			registry = r
		}
	}

	challenges := service.NewChallengeService(st, logger)
	sessions := service.NewSessionService(st, eventPub, logger)
	tasks := service.NewTaskService(st, eventPub, logger)
	resolver := service.NewAccessResolver(sessions)

	skillRegistry := skills.NewRegistry()
	skills.RegisterBuiltin(skillRegistry)

	router := transport.SetupRouter(transport.Deps{
		Card:       transport.AgentCard{Name: "agentgate", Version: version},
		Resolver:   resolver,
		Challenges: challenges,
		Sessions:   sessions,
		Tasks:      tasks,
		Executor:   skillRegistry,
		Registry:   registry,
	})

	// Retention sweep for the in-process store; cancelled on shutdown.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tasks.CleanupExpired(ctx)
			}
		}
	}()

	server := &http.Server{Addr: listenAddr, Handler: router}
	go func() {
		logger.Info("listening", "addr", listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
