package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minicorr/internal/config"
	"minicorr/internal/handlers"
	"minicorr/internal/logger"
	"minicorr/internal/mqtt"
	"minicorr/internal/poller"
	"minicorr/internal/protocol"
	"minicorr/internal/repository"
	"minicorr/internal/repository/db"
	"minicorr/internal/server"
	"minicorr/internal/service"
	"minicorr/internal/simulator"
)

const (
	shutdownTimeout  = 10 * time.Second
	mqttRetryDelay   = 5 * time.Second
	autoConnectDelay = 200 * time.Millisecond
)

func main() {
	// load configs/config.yml plus MINICORR_* overrides
	cfg, err := config.Load("configs", ".")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.LogLevel)

	// open DB
	sqlDB, err := openDB(cfg.DBPath, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Simulator.Enabled {
		startSimulator(ctx, cfg.Simulator.Addr, log)
	}

	var sinks []poller.Sink
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewPublisher(cfg.MQTT, log)
		sinks = append(sinks, publisher.Sink())
		go func() {
			if err := publisher.Connect(ctx, mqttRetryDelay); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("mqtt connect failed", "err", err)
			}
		}()
	}

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	client := protocol.NewClient(cfg.Device.Client)
	services := service.NewService(repos, client, service.Options{
		Monitoring: service.MonitoringOptions{
			Poller:    cfg.Monitoring.Poller,
			SampleDir: cfg.Monitoring.SampleDir,
			Sinks:     sinks,
			Base:      ctx,
		},
		LogDir: cfg.Logging.Dir,
		Logger: log,
	})
	if err := services.Restore(ctx); err != nil {
		log.Warnw("failed to restore device state", "err", err)
	}
	if cfg.Logging.Enabled {
		if _, err := services.StartFile(ctx); err != nil {
			log.Errorw("failed to start event log", "err", err)
		}
	}
	if cfg.Device.AutoConnect {
		go autoConnect(ctx, services, cfg.Device, log)
	}

	apiHandler := handlers.NewHandler(services, log, handlers.Defaults{
		Host:               cfg.Device.Host,
		Port:               cfg.Device.Port,
		MonitoringInterval: cfg.Monitoring.Interval,
	})

	// start HTTP server
	srv := server.New(cfg.HTTP)
	runHTTPServer(srv, cfg.HTTPPort, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, services, publisher, log)
}

// openDB initializes the SQLite database.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "minicorr.db")
		path = "minicorr.db"
	}
	return db.InitDB(path)
}

// startSimulator serves a fake device for local runs without hardware.
func startSimulator(ctx context.Context, addr string, log *logger.Logger) {
	sim, err := simulator.Listen(addr, simulator.NewDevice())
	if err != nil {
		log.Fatalw("failed to start simulator", "err", err, "addr", addr)
	}
	host, port := sim.Addr()
	log.Infow("simulator listening", "host", host, "port", port)
	go func() {
		if err := sim.Serve(ctx); err != nil {
			log.Errorw("simulator stopped", "err", err)
		}
	}()
}

func autoConnect(ctx context.Context, services *service.Service, dev config.Device, log *logger.Logger) {
	// let an in-process simulator start accepting
	select {
	case <-ctx.Done():
		return
	case <-time.After(autoConnectDelay):
	}
	if _, err := services.Connect(ctx, dev.Host, dev.Port); err != nil {
		log.Warnw("auto connect failed", "err", err)
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service,
	publisher *mqtt.Publisher, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// allow in-flight requests to complete
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	// close the event log, then the device session
	services.Shutdown(ctx)

	// stop background goroutines
	cancel()

	if publisher != nil {
		publisher.Disconnect()
	}
}
