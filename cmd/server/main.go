package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/db"
	"github.com/suPer8Hu/gopherchat/internal/fanout"
	"github.com/suPer8Hu/gopherchat/internal/httpapi"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/gopherchat/internal/logging"
	"github.com/suPer8Hu/gopherchat/internal/presence"
	"github.com/suPer8Hu/gopherchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/gopherchat/internal/store/redisstore"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("%v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		stdlog.Fatalf("%v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	var rds *redisstore.Store
	if cfg.RedisAddr != "" {
		rds = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			if cfg.FanoutBackend == config.FanoutRedis {
				return err
			}
			// the limiter fails open, keep going
			log.Warn("redis unavailable", zap.Error(err))
		}
	}

	router := presence.NewRouter(log, presence.Options{
		QueueSize: cfg.DeliveryQueueSize,
		Workers:   cfg.DeliveryWorkers,
		Timeout:   cfg.DeliveryTimeout,
	})
	router.Start(ctx)

	var (
		notifier chat.Notifier = router
		bg       sync.WaitGroup
	)
	bus, err := openBus(cfg, rds)
	if err != nil {
		return err
	}
	if bus != nil {
		defer bus.Close()
		pub := fanout.NewPublisher(bus, log, cfg.DeliveryQueueSize, cfg.DeliveryTimeout)
		notifier = pub

		bg.Add(2)
		go func() {
			defer bg.Done()
			_ = pub.Run(ctx)
		}()
		go func() {
			defer bg.Done()
			relay(ctx, bus, router, log)
		}()
	}
	log.Info("fanout configured", zap.String("backend", cfg.FanoutBackend))

	chats := chat.NewService(chat.NewRepo(gdb), notifier, log, cfg.MaxContentLength)
	h := handlers.NewHandler(gdb, cfg, chats, router, log)

	var limiter middleware.Limiter
	if rds != nil {
		limiter = rds
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg, limiter, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// hijacked websockets are not tracked by Shutdown
	router.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	router.Wait()
	bg.Wait()
	return nil
}

func openBus(cfg config.Config, rds *redisstore.Store) (fanout.Bus, error) {
	switch cfg.FanoutBackend {
	case config.FanoutRedis:
		return rds.Bus(cfg.FanoutChannel), nil
	case config.FanoutRabbitMQ:
		return rabbitmq.NewBus(cfg.RabbitURL, cfg.RabbitExchange)
	default:
		return nil, nil
	}
}

// relay keeps the bus subscription alive until ctx is done.
func relay(ctx context.Context, bus fanout.Bus, to chat.Notifier, log *zap.Logger) {
	for {
		err := fanout.Relay(ctx, bus, to, log)
		if ctx.Err() != nil {
			return
		}
		log.Warn("relay stopped, resubscribing", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
