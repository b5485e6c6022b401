// CareLane gateway server — receives channel events, runs the per-patient
// processing pipeline against diaries, and serves the HTTP and WebSocket API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carelane/carelane/pkg/agent"
	"github.com/carelane/carelane/pkg/api"
	"github.com/carelane/carelane/pkg/blob"
	"github.com/carelane/carelane/pkg/config"
	"github.com/carelane/carelane/pkg/diary"
	"github.com/carelane/carelane/pkg/diarystore"
	"github.com/carelane/carelane/pkg/dispatch"
	"github.com/carelane/carelane/pkg/gateway"
	"github.com/carelane/carelane/pkg/heartbeat"
	"github.com/carelane/carelane/pkg/identity"
	"github.com/carelane/carelane/pkg/push"
	"github.com/carelane/carelane/pkg/queue"
	"github.com/carelane/carelane/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildBlobStore opens the configured diary store backend.
func buildBlobStore(ctx context.Context, cfg *config.StoreConfig) (blob.Store, error) {
	switch cfg.Backend {
	case config.StoreBackendSQLite:
		return blob.NewSQLiteStore(cfg.SQLitePath)
	case config.StoreBackendGCS:
		return blob.NewGCSStore(ctx, cfg.GCSBucket)
	default:
		return blob.NewMemoryStore(), nil
	}
}

// rebuildIdentityIndex loads every stored diary and rebuilds the contact
// index. Best-effort: the process serves traffic either way, adapters just
// cannot attribute bare contacts until the next diary save.
func rebuildIdentityIndex(ctx context.Context, store *diarystore.Store, resolver *identity.Resolver) {
	ids, err := store.ListAllPatientIDs(ctx)
	if err != nil {
		slog.Warn("Identity index rebuild failed", "error", err)
		return
	}

	diaries := make([]*diary.PatientDiary, 0, len(ids))
	for _, id := range ids {
		d, _, err := store.Load(ctx, id)
		if err != nil {
			slog.Warn("Identity index: diary load failed", "patient_id", id, "error", err)
			continue
		}
		diaries = append(diaries, d)
	}
	resolver.Rebuild(diaries)
	if len(diaries) > 0 {
		slog.Info("Identity index rebuilt",
			"patients", len(diaries), "contacts", resolver.Size())
	}
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting CareLane gateway",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the diary store
	backend, err := buildBlobStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("Failed to open blob store",
			"backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Error("Error closing blob store", "error", err)
		}
	}()

	store := diarystore.New(backend)
	store.SetOpTimeout(cfg.Store.OpTimeout)
	slog.Info("Diary store ready", "backend", cfg.Store.Backend)

	// 3. Outbound channels, gated by the channels.enabled config list.
	// Email, SMS and WhatsApp run log-only until their adapters are
	// deployed; websocket is wired in step 5.
	registry := dispatch.NewRegistry()
	for _, ch := range []string{dispatch.ChannelEmail, dispatch.ChannelSMS, dispatch.ChannelWhatsApp} {
		if cfg.Channels.IsEnabled(ch) {
			registry.Register(ch, dispatch.NewLogDispatcher(ch))
		}
	}

	// 4. Gateway and agent roster
	gw := gateway.New(cfg.Gateway, store, registry)
	for name, ag := range agent.StubSet(cfg.Gateway.AssessmentTimeout) {
		gw.RegisterAgent(name, ag)
	}
	slog.Info("Agents registered", "agents", gw.AgentNames())

	// 5. Live push: every event log entry is broadcast to WebSocket
	// subscribers, and agent responses on the websocket channel go out
	// through the hub.
	hub := push.NewHub(push.NewLogCatchup(gw), 10*time.Second)
	pub := push.NewPublisher(hub)
	gw.SetEventLoggedHook(pub.PublishLogEntry)
	if cfg.Channels.IsEnabled(dispatch.ChannelWebsocket) {
		registry.Register(dispatch.ChannelWebsocket, push.NewDispatcher(pub))
	}
	slog.Info("Outbound channels registered", "channels", registry.Channels())

	// 6. Queue manager (per-patient FIFO workers in front of the gateway)
	q := queue.NewManager(cfg.Queue, gw)
	if err := q.Start(ctx); err != nil {
		slog.Error("Failed to start queue manager", "error", err)
		os.Exit(1)
	}

	// 7. Identity index, refreshed after every diary save. The same hook
	// keeps the heartbeat scheduler's monitoring set current.
	resolver := identity.NewResolver()
	rebuildIdentityIndex(ctx, store, resolver)

	sched := heartbeat.NewScheduler(cfg.Heartbeat, store, q)
	gw.SetDiarySavedHook(func(patientID string, d *diary.PatientDiary) {
		resolver.UpdateForPatient(patientID, d)
		if d.Monitoring.MonitoringActive {
			sched.Register(patientID, d.Monitoring.AppointmentDate)
		}
	})
	sched.Start(ctx)

	// 8. HTTP server
	httpServer := api.NewServer(cfg.Server, api.Deps{
		Gateway:   gw,
		Store:     store,
		Queue:     q,
		Heartbeat: sched,
		Resolver:  resolver,
		Hub:       hub,
	})

	// 9. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening",
			"host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("CareLane gateway started",
		"store_backend", cfg.Store.Backend,
		"heartbeat_enabled", cfg.Heartbeat.Enabled)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop emitting first, then stop intake, then
	// let background diary saves finish, then close the HTTP listener.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	sched.Stop()

	queueDone := make(chan struct{})
	go func() {
		q.Stop()
		close(queueDone)
	}()
	select {
	case <-queueDone:
		slog.Info("Queue manager stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Queue shutdown timeout exceeded, pending events dropped")
	}

	drained := make(chan struct{})
	go func() {
		gw.DrainBackground()
		close(drained)
	}()
	select {
	case <-drained:
		slog.Info("Background diary saves drained")
	case <-shutdownCtx.Done():
		slog.Warn("Diary save drain timeout exceeded")
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
