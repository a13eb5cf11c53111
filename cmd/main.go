package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"device_sync/internal/config"
	"device_sync/internal/handlers"
	"device_sync/internal/logger"
	"device_sync/internal/models"
	"device_sync/internal/notify"
	"device_sync/internal/push"
	"device_sync/internal/repository"
	"device_sync/internal/repository/db"
	"device_sync/internal/server"
	"device_sync/internal/service"
	"device_sync/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// load config.yml
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.LogLevel)

	// open DB
	sqlDB, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	seedCredentials(repos, cfg, log)

	hub := notify.NewHub(log.Named("notify"))
	api := transport.NewDeviceAPI(transport.NewClient(cfg.Backend.BaseURL, repos.Credentials, log.Named("transport")))
	engine := service.NewEngine(service.Options{
		API:      api,
		Notifier: hub,
		Opener:   logOpener{log: log.Named("export")},
		Logger:   log.Named("engine"),
		Timeouts: service.Timeouts(cfg.Backend.Timeouts),
		AutoRefresh: models.AutoRefreshConfig{
			Enabled:    cfg.Refresh.Enabled,
			IntervalMs: cfg.Refresh.Interval.Milliseconds(),
		},
	})
	if ch := newPushChannel(cfg, repos, log); ch != nil {
		engine.AttachPush(push.NewListener(ch, engine, hub, log.Named("push")))
	}

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		log.Fatalw("failed to start engine", "err", err)
	}

	apiHandler := handlers.NewHandler(engine, service.NewTokenAuth(cfg.JWTSecret), hub, log.Named("http"))

	// start HTTP server
	srv := server.New()
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, engine, log)
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg config.Config, log *logger.Logger) (*sql.DB, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		dbPath = "app.db"
	}
	return db.InitDB(dbPath)
}

// seedCredentials stores the configured backend token, if any.
func seedCredentials(repos *repository.Repository, cfg config.Config, log *logger.Logger) {
	if cfg.Credentials.Token == "" {
		return
	}
	if err := repos.Credentials.SetToken(context.Background(), cfg.Credentials.Token); err != nil {
		log.Errorw("failed to store backend token", "err", err)
	}
}

func newPushChannel(cfg config.Config, repos *repository.Repository, log *logger.Logger) push.Channel {
	switch cfg.Push.Transport {
	case "ws":
		header := http.Header{}
		if token, err := repos.Credentials.Token(context.Background()); err == nil && token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		return push.NewWSChannel(cfg.Push.URL, header, log.Named("push.ws"))
	case "mqtt":
		return push.NewMQTTChannel(push.MQTTConfig{
			Broker:   cfg.Push.MQTT.Broker,
			ClientID: cfg.Push.MQTT.ClientID,
			Prefix:   cfg.Push.MQTT.Prefix,
		}, log.Named("push.mqtt"))
	}
	log.Infow("push channel disabled")
	return nil
}

// logOpener records export URLs. HTTP clients are redirected to them instead.
type logOpener struct {
	log *logger.Logger
}

func (o logOpener) Open(url string) error {
	o.log.Infow("export_url_ready", "url", url)
	return nil
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, engine *service.Engine, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop polling and push before closing the listener
	engine.Stop()
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
