package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/maloquacious/sheetkeep/internal/migrate"
	"github.com/maloquacious/sheetkeep/internal/store"
	"github.com/maloquacious/sheetkeep/internal/store/sqlite"
	"github.com/spf13/cobra"
)

var (
	shutdownTO time.Duration
	exitAfter  time.Duration
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Migrate and recover the datastore, then serve health and admin endpoints",
		RunE:  runServe,
	}
	serveCmd.Flags().Int("port", 0, "public HTTP port (default from config)")
	serveCmd.Flags().Int("admin-port", 0, "admin HTTP port, loopback only (default from config)")
	serveCmd.Flags().DurationVar(&shutdownTO, "shutdown-timeout", 15*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().DurationVar(&exitAfter, "exit-after", 0, "optional runtime; if set, server exits after this duration (testing)")
	return serveCmd
}

// host is the startup state the admin endpoints report on.
type host struct {
	mu        sync.Mutex
	store     *sqlite.SQLiteStore
	migration migrate.Result
	fatal     error
	recovered int64
}

func (h *host) ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fatal != nil {
		return false
	}
	state, err := h.store.CheckState()
	return err == nil && state == store.StateReady
}

// startup runs once before anything else writes to the store.
func (h *host) startup(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := migrateStore(ctx, h.store)
	h.migration, h.fatal = result, err
	if err != nil {
		log.Error("datastore needs manual intervention: %v", err)
		return
	}
	if !result.Success {
		log.Error("migration failed, continuing at schema v%d: %v", result.ToVersion, result.Err)
		return
	}

	recovered, err := h.store.RecoverStuckSubmissions(ctx, cfg.StuckAfter)
	if err != nil {
		log.Error("failed to recover stuck entries: %v", err)
		return
	}
	h.recovered = recovered
	if recovered == 0 {
		log.Info("no stuck entries to recover")
	}
}

func (h *host) status(ctx context.Context) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	resp := map[string]any{
		"version":         version.String(),
		"schemaExpected":  sqlite.CurrentSchemaVersion,
		"buildDate":       buildDate,
		"time":            time.Now().UTC().Format(time.RFC3339),
		"mode":            "running",
		"migration":       resultJSON(h.migration, h.fatal),
		"recoveredOnBoot": h.recovered,
	}
	if v, err := migrate.CurrentVersion(ctx, h.store); err == nil {
		resp["schemaVersion"] = v
	}
	if h.fatal != nil {
		resp["mode"] = "maintenance"
	} else if busy, err := h.store.SubmissionInProgress(ctx); err == nil {
		resp["submissionInProgress"] = busy
	}
	return resp
}

// runServe migrates the store, then starts both the public and admin servers with graceful shutdown.
func runServe(cmd *cobra.Command, args []string) error {
	port, adminPort := cfg.Port, cfg.AdminPort
	if p, _ := cmd.Flags().GetInt("port"); p > 0 {
		port = p
	}
	if p, _ := cmd.Flags().GetInt("admin-port"); p > 0 {
		adminPort = p
	}

	s, err := openStore(true)
	if err != nil {
		return err
	}
	h := &host{store: s}
	h.startup(cmd.Context())

	publicMux := http.NewServeMux()
	adminMux := http.NewServeMux()

	publicMux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	publicMux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !h.ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	adminMux.Handle("/admin/status", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.status(r.Context()))
	})))

	adminMux.Handle("/admin/shutdown", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "shutting down"})
		go func() {
			// give the response a moment to flush
			time.Sleep(200 * time.Millisecond)
			proc, _ := os.FindProcess(os.Getpid())
			_ = proc.Signal(os.Interrupt)
		}()
	})))

	publicSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: publicMux,
	}

	// Bind admin to 127.0.0.1 only (loopback enforcement)
	adminListener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", adminPort))
	if err != nil {
		s.Close()
		return fmt.Errorf("admin listener bind failed (loopback only): %w", err)
	}
	adminSrv := &http.Server{
		Handler: adminMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 2)

	go func() {
		log.Info("public server listening on :%d", port)
		if err := publicSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("public server error: %w", err)
		}
	}()

	go func() {
		log.Info("admin server listening on 127.0.0.1:%d (JSON-only)", adminPort)
		if err := adminSrv.Serve(adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	if exitAfter > 0 {
		go func() {
			log.Info("exit-after timer set: %s", exitAfter)
			time.Sleep(exitAfter)
			stop()
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTO)
	defer cancel()

	_ = publicSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	if err := s.Close(); err != nil {
		log.Warn("failed to close datastore: %v", err)
	}
	log.Info("shutdown complete")
	return nil
}

// jsonOnly enforces JSON-only contract for admin routes.
func jsonOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		if !strings.Contains(accept, "application/json") && accept != "" {
			writeJSONError(w, http.StatusNotAcceptable, "not_acceptable", "Accept must include application/json")
			return
		}
		if r.Method != http.MethodGet && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": msg,
	})
}
