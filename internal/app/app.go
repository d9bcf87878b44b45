package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tunesync/server/internal/broadcast"
	"github.com/tunesync/server/internal/catalog"
	"github.com/tunesync/server/internal/controller"
	blobRedis "github.com/tunesync/server/internal/repository/blob/redis"
	"github.com/tunesync/server/internal/repository/connection/inmemory"
	historyRedis "github.com/tunesync/server/internal/repository/history/redis"
	roomRedis "github.com/tunesync/server/internal/repository/room/redis"
	"github.com/tunesync/server/internal/service/room"
	"github.com/tunesync/server/pkg/ctxlogger"
	"github.com/tunesync/server/pkg/redisclient"
)

type AppConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	LogLevel       string        `json:"log_level"`
	QueueLimit     int           `json:"queue_limit"`
	RoomExpiration time.Duration `json:"room_expiration"`
	CatalogBaseURL string        `json:"catalog_base_url"`
	RedisPort      int           `json:"redis_port"`
	RedisHost      string        `json:"redis_host"`
	RedisPassword  string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be greater than 0")
	}
	if cfg.RoomExpiration < time.Minute {
		return fmt.Errorf("room expiration must be at least a minute")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	clock := clockwork.NewRealClock()

	roomRepo := roomRedis.NewRepo(rc, cfg.RoomExpiration)
	historyRepo := historyRedis.NewRepo(rc, cfg.RoomExpiration)
	blobRepo := blobRedis.NewRepo(rc, cfg.RoomExpiration)
	connectionRepo := inmemory.NewRepo()

	localIndex := catalog.NewLocalIndex(rc, cfg.RoomExpiration)
	var catalogService *catalog.Service
	if cfg.CatalogBaseURL != "" {
		catalogService = catalog.NewService(localIndex, catalog.NewRemoteSource(cfg.CatalogBaseURL), logger)
	} else {
		catalogService = catalog.NewService(localIndex, nil, logger)
	}

	bus := broadcast.NewBus(rc, connectionRepo, logger)
	defer bus.Close()

	roomService := room.NewService(roomRepo, historyRepo, catalogService, bus, clock, logger, room.Config{
		QueueLimit: cfg.QueueLimit,
	})
	controller := controller.NewController(roomService, catalogService, blobRepo, connectionRepo, clock, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	go func() {
		if err := bus.RunRelay(serverCtx); err != nil {
			logger.WarnContext(serverCtx, "event relay stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	slog.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
