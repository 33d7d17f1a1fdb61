// Package main is the entry point for the Stall Rush game server.
// It only handles dependency injection, the game loop, and the HTTP surface.
// NO game rules belong here.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stallrush/server/internal/config"
	"github.com/stallrush/server/internal/domain/facility"
	"github.com/stallrush/server/internal/engine"
	"github.com/stallrush/server/internal/events"
	"github.com/stallrush/server/internal/infra/storage"
	"github.com/stallrush/server/internal/network"
	"github.com/stallrush/server/internal/platform/logger"
	"github.com/stallrush/server/internal/platform/metrics"
)

// SQLitePersisterAdapter translates domain events to storage events.
type SQLitePersisterAdapter struct {
	repo *storage.SQLiteEventRepository
}

func (a *SQLitePersisterAdapter) Append(event events.GameEvent) error {
	payloadBytes, _ := json.Marshal(event.Payload)
	var payloadMap map[string]interface{}
	json.Unmarshal(payloadBytes, &payloadMap)

	storageEvent := storage.GameEvent{
		ID:        event.ID,
		SessionID: event.SessionID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		Payload:   payloadMap,
	}
	return a.repo.Append(context.Background(), storageEvent)
}

// highScoreAdapter exposes the SQLite high-score repository under the
// engine's narrower store interface.
type highScoreAdapter struct {
	repo *storage.SQLiteHighScoreRepository
}

func (a *highScoreAdapter) HighScore(ctx context.Context) (int, error) {
	return a.repo.Get(ctx)
}

func (a *highScoreAdapter) SaveHighScore(ctx context.Context, score int) error {
	return a.repo.Set(ctx, score)
}

func main() {
	configPath := flag.String("config", "", "path to TOML config file (defaults apply when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("[RUSH-SERVER] Invalid configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("[RUSH-SERVER] Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Initializing Stall Rush authoritative server", "db", cfg.Database.Path)

	db, err := storage.InitSQLite(cfg.Database.Path)
	if err != nil {
		appLogger.Error("Failed to initialize SQLite", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	eventRepo := storage.NewSQLiteEventRepository(db)
	scoreRepo := storage.NewSQLiteHighScoreRepository(db)

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(&SQLitePersisterAdapter{repo: eventRepo})

	appLogger.Info("Bootstrapping Engine...")
	eng := engine.NewEngine(cfg, eventLog, &highScoreAdapter{repo: scoreRepo}, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(appLogger)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	go gameLoop(ctx, cfg, eng, hub, appLogger)

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r, appLogger)
	})

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(eng.Snapshot(time.Now()))
	})

	mux.HandleFunc("/api/session/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		type requestParams struct {
			Difficulty int `json:"difficulty"`
		}
		var req requestParams
		json.NewDecoder(r.Body).Decode(&req)

		eng.Start(req.Difficulty, time.Now())
		writeOK(w)
	})

	mux.HandleFunc("/api/session/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		eng.Pause()
		writeOK(w)
	})

	mux.HandleFunc("/api/session/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		eng.Resume(time.Now())
		writeOK(w)
	})

	mux.HandleFunc("/api/session/menu", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		eng.ReturnToMenu()
		writeOK(w)
	})

	mux.HandleFunc("/api/assign", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		type requestParams struct {
			Kind  string `json:"kind"`
			Index int    `json:"index"`
		}
		var req requestParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		kind, ok := facility.ParseKind(req.Kind)
		if !ok {
			http.Error(w, "Unknown facility kind", http.StatusBadRequest)
			return
		}
		if !eng.IsAssignmentValid(kind, req.Index) {
			http.Error(w, "Facility not available", http.StatusConflict)
			return
		}

		if err := eng.ApplyAssignment(kind, req.Index, time.Now()); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())

	server := &http.Server{
		Addr:    cfg.Server.BindAddress,
		Handler: mux,
	}

	go func() {
		appLogger.Info("HTTP API & WS server listening", "addr", cfg.Server.BindAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", "err", err)
			os.Exit(1)
		}
	}()

	appLogger.Info("Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP shutdown error", "err", err)
	}
}

// loadConfig falls back to defaults when no config path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

// gameLoop drives the engine: it is the only goroutine that calls engine
// methods, so every player command and every tick is serialized here.
func gameLoop(ctx context.Context, cfg *config.Config, eng *engine.Engine, hub *network.Hub, appLogger *logger.Logger) {
	ticker := time.NewTicker(cfg.Server.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			appLogger.Info("Game loop shutting down.")
			return
		case cmd := <-hub.Commands():
			dispatchCommand(eng, cmd, appLogger)
		case <-ticker.C:
			started := time.Now()
			eng.Tick(started)
			metrics.Get().RecordTick(time.Since(started))
			hub.BroadcastSnapshot(eng.Snapshot(time.Now()))
		}
	}
}

func dispatchCommand(eng *engine.Engine, cmd network.Command, appLogger *logger.Logger) {
	now := time.Now()
	switch cmd.Action {
	case "start":
		eng.Start(cmd.Difficulty, now)
	case "pause":
		eng.Pause()
	case "resume":
		eng.Resume(now)
	case "menu":
		eng.ReturnToMenu()
	case "assign":
		kind, ok := facility.ParseKind(cmd.Kind)
		if !ok {
			appLogger.Warn("Assign command with unknown kind", "kind", cmd.Kind)
			return
		}
		if !eng.IsAssignmentValid(kind, cmd.Index) {
			metrics.Get().RecordAssignment(false)
			return
		}
		if err := eng.ApplyAssignment(kind, cmd.Index, now); err != nil {
			appLogger.Warn("Assignment rejected", "kind", cmd.Kind, "index", cmd.Index, "err", err)
		}
	default:
		appLogger.Warn("Unknown command action", "action", cmd.Action)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Dev-friendly: render clients run on their own origin.
	},
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *network.Hub, w http.ResponseWriter, r *http.Request, log *logger.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade websocket connection", "err", err)
		return
	}

	client := network.NewClient(hub, conn)
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
