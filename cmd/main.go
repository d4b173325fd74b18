package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solar_dashboard/internal/broker"
	"solar_dashboard/internal/config"
	"solar_dashboard/internal/handlers"
	"solar_dashboard/internal/logger"
	"solar_dashboard/internal/repository"
	"solar_dashboard/internal/repository/db"
	"solar_dashboard/internal/server"
	"solar_dashboard/internal/service"
	"solar_dashboard/internal/topic"
)

const shutdownTimeout = 10 * time.Second

// @title        Solar Dashboard API
// @version      1.0
// @description  Charge controller telemetry and smart plug control over MQTT.
// @BasePath     /
func main() {
	// load config.yml
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel, logger.FormatConsole).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level, cfg.Log.Format)

	// open DB
	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	transport := newTransport(cfg, log)
	services := service.NewService(repos, cfg, transport, log)
	router := topic.NewRouter(services.Dispatcher, log)

	apiHandler := handlers.NewHandler(services, handlers.ViewConfig{
		CostPerKWh: cfg.CostPerKWh,
		Interval:   cfg.WS.Interval,
	}, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// broker connection loop, or the simulated devices
	brokerDone := make(chan struct{})
	go func() {
		defer close(brokerDone)
		if err := transport.run(ctx, router, services.Status); err != nil {
			log.Errorw("transport_stopped", "err", err)
		}
	}()

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, services, brokerDone, log)
}

// transport is the MQTT side of the dashboard: the broker or the simulator.
type transport struct {
	service.Publisher
	run func(ctx context.Context, router *topic.Router, status *service.DashboardService) error
}

func newTransport(cfg *config.Config, log *logger.Logger) transport {
	if cfg.Simulator.Enabled {
		log.Warnw("simulator_enabled", "tick", cfg.Simulator.Tick)
		sim := service.NewSimulatorService(cfg, log)
		return transport{Publisher: sim, run: func(ctx context.Context, router *topic.Router, status *service.DashboardService) error {
			sim.Attach(router, status)
			return sim.Run(ctx, cfg.Simulator.Tick)
		}}
	}
	mgr := broker.NewManager(cfg.MQTT, log)
	return transport{Publisher: mgr, run: func(ctx context.Context, router *topic.Router, status *service.DashboardService) error {
		mgr.Attach(router, status)
		return mgr.Run(ctx)
	}}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "addr", server.Addr(port))
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, brokerDone <-chan struct{}, log *logger.Logger) {
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

	// let running toggle cycles publish before the broker goes away
	services.Wait()

	// stop background goroutines
	cancel()
	select {
	case <-brokerDone:
	case <-ctx.Done():
		log.Warnw("transport_shutdown_timeout")
	}
}
