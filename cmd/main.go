package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"orderbot/internal/classifier"
	"orderbot/internal/config"
	"orderbot/internal/events"
	httpapi "orderbot/internal/http"
	"orderbot/internal/messenger"
	"orderbot/internal/repository"
	"orderbot/internal/service"

	_ "orderbot/docs"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to read .env")
	}

	app := &cli.App{
		Name:   "orderbot",
		Usage:  "Messenger order-taking bot",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the webhook and admin HTTP server",
				Action: serve,
			},
			{
				Name:      "migrate",
				Usage:     "apply database migrations",
				ArgsUsage: "up|down",
				Action:    migrateDB,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("orderbot failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	return cfg, nil
}

func migrateDB(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required for migrate")
	}
	direction := c.Args().First()
	if direction == "" {
		direction = "up"
	}
	db, err := repository.OpenMySQL(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	return repository.Migrate(db.DB, direction)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := c.Context

	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			if err := cl.Close(); err != nil {
				log.WithError(err).Warn("close failed")
			}
		}
	}()

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	var dispatcher events.Dispatcher = events.LogDispatcher{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kd := events.NewKafkaDispatcher(brokers, cfg.KafkaTopic)
		closers = append(closers, kd)
		dispatcher = kd
		log.WithFields(log.Fields{"brokers": brokers, "topic": cfg.KafkaTopic}).Info("order events go to kafka")
	}

	var cls classifier.Classifier
	if cfg.OpenAIAPIKey != "" {
		cls = classifier.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		log.WithField("model", cfg.OpenAIModel).Info("llm classifier enabled")
	}

	sender := messenger.NewClient(cfg.GraphAPIURL, cfg.SendTimeout)

	deps := httpapi.Deps{
		Classifier:  cls,
		VerifyToken: cfg.VerifyToken,
		AdminToken:  cfg.AdminToken,
		Debug:       cfg.Debug,
	}
	if store != nil {
		orders := service.NewOrderService(store, dispatcher)
		router := service.NewRouter(
			service.NewCatalog(store.Products),
			service.NewCustomerService(store.Customers),
			orders,
			cls,
		)
		deps.Products = service.NewProductService(store.Products)
		deps.Orders = orders
		deps.Webhook = service.NewWebhookProcessor(store.Channels, router, sender, cfg.PageAccessToken)
	} else {
		log.Warn("DATABASE_DSN is not set: webhook deliveries will be acknowledged and dropped")
	}
	if cfg.VerifyToken == "" {
		log.Warn("VERIFY_TOKEN is not set: webhook verification will be rejected")
	}

	srv := startServer(":"+cfg.Port, httpapi.NewServer(deps).Engine())
	waitForKillSignal(getKillSignalChan())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
	return nil
}

// openStore returns a nil store when MySQL is selected without a DSN.
func openStore(ctx context.Context, cfg *config.Config) (*repository.Store, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := repository.NewMemoryStore()
		if err := applySeed(ctx, cfg.SeedFile, mem); err != nil {
			return nil, nil, err
		}
		log.Info("using in-memory store")
		return repository.NewMemoryBackend(mem), nil, nil
	case config.StoreDriverMySQL:
		if !cfg.StoreConfigured() {
			return nil, nil, nil
		}
		db, err := repository.OpenMySQL(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		sqlStore := repository.NewSQLStore(db)
		if err := applySeed(ctx, cfg.SeedFile, repository.NewSQLSeed(sqlStore)); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("using mysql store")
		return repository.NewSQLBackend(sqlStore), db, nil
	default:
		return nil, nil, errors.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func applySeed(ctx context.Context, path string, target repository.SeedTarget) error {
	if path == "" {
		return nil
	}
	seed, err := repository.LoadSeed(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("file", path).Warn("seed file not found, starting with empty catalog")
			return nil
		}
		return err
	}
	if err := seed.Apply(ctx, target); err != nil {
		return errors.Wrap(err, "apply seed")
	}
	log.WithFields(log.Fields{"file": path, "shops": len(seed.Shops)}).Info("seed applied")
	return nil
}

func startServer(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		log.WithField("addr", addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()
	return srv
}

func getKillSignalChan() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

func waitForKillSignal(ch <-chan os.Signal) {
	switch <-ch {
	case os.Interrupt:
		log.Info("Got SIGINT...")
	case syscall.SIGTERM:
		log.Info("Got SIGTERM...")
	}
}
