package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/flitdev/flit/internal/auth"
	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/database"
	"github.com/flitdev/flit/internal/events"
	"github.com/flitdev/flit/internal/files"
	"github.com/flitdev/flit/internal/handlers"
	"github.com/flitdev/flit/internal/logger"
	"github.com/flitdev/flit/internal/messages"
	"github.com/flitdev/flit/internal/realtime"
	"github.com/flitdev/flit/internal/routes"
	"github.com/flitdev/flit/internal/storage"
	"github.com/go-chi/chi/v5"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.Options{Env: cfg.Env, Level: cfg.LogLevel, Format: cfg.LogFormat})

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			logger.Warn("configuration problem", "error", err)
		}
		if cfg.Env == "production" {
			log.Fatalf("Refusing to start with invalid configuration in production")
		}
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"storage_backend", cfg.StorageBackend,
		"max_file_size_mb", float64(cfg.MaxFileSize)/(1024*1024),
	)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	backend, err := storage.NewBackendFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	tokens := auth.NewMemoryTokenStore()
	hub := realtime.NewHub()

	bus := events.NewBus(256)
	defer bus.Close()
	go forwardEvents(bus, hub)

	fileService := files.NewService(db, cfg, backend)
	messageService := messages.NewService(db, bus)

	r := chi.NewRouter()
	handlers.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	routes.Setup(r, routes.Deps{
		DB:       db,
		Cfg:      cfg,
		Backend:  backend,
		Files:    fileService,
		Messages: messageService,
		Tokens:   tokens,
		Hub:      hub,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	logger.Info("starting flit server",
		"address", addr,
		"environment", cfg.Env,
		"version", handlers.Version,
	)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// forwardEvents drains the ledger's event bus into the websocket hub. It
// exits when the bus closes.
func forwardEvents(bus *events.Bus, hub *realtime.Hub) {
	for ev := range bus.Events() {
		switch ev.Kind {
		case events.KindNewMessage:
			hub.BroadcastNewMessage(ev.Payload)
		case events.KindMessageDeleted:
			if payload, ok := ev.Payload.(events.MessageDeletedPayload); ok {
				hub.BroadcastMessageDeleted(payload.MessageID)
			}
		default:
			logger.Warn("unhandled event kind", "kind", string(ev.Kind))
		}
	}
}
