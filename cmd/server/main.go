package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/prlgl/prlgl"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON or YAML)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Local .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg := prlgl.DefaultConfig()
	if *configPath != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			slog.Error("loading config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	applyEnvOverrides(&cfg)

	apiKey := os.Getenv("PRLGL_API_KEY")
	corsOrigins := os.Getenv("PRLGL_CORS_ORIGINS")

	engine, err := prlgl.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine)
	defer h.closeSessions()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", h.handleCreateSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/documents", h.handleIndexDocument)
	mux.HandleFunc("GET /sessions/{id}/documents", h.handleListDocuments)
	mux.HandleFunc("POST /sessions/{id}/analyze", h.handleAnalyzeClause)
	mux.HandleFunc("POST /sessions/{id}/institutions", h.handleExtractInstitutions)
	mux.HandleFunc("POST /analyze", h.handleOneShotAnalyze)
	mux.HandleFunc("POST /contracts", h.handleDraftContract)
	mux.HandleFunc("GET /jurisdictions", h.handleListJurisdictions)
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("PUT /chat/knowledge", h.handleUpdateKnowledge)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // indexing a large PDF can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// loadConfigFile reads a JSON or YAML config file into cfg, selected by
// extension.
func loadConfigFile(path string, cfg *prlgl.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// applyEnvOverrides layers PRLGL_* environment variables over the file
// config, then falls back to well-known provider key variables.
func applyEnvOverrides(cfg *prlgl.Config) {
	overrides := map[string]*string{
		"PRLGL_STORAGE_DIR":          &cfg.StorageDir,
		"PRLGL_CHAT_PROVIDER":        &cfg.Chat.Provider,
		"PRLGL_CHAT_MODEL":           &cfg.Chat.Model,
		"PRLGL_CHAT_BASE_URL":        &cfg.Chat.BaseURL,
		"PRLGL_CHAT_API_KEY":         &cfg.Chat.APIKey,
		"PRLGL_EMBED_PROVIDER":       &cfg.Embedding.Provider,
		"PRLGL_EMBED_MODEL":          &cfg.Embedding.Model,
		"PRLGL_EMBED_BASE_URL":       &cfg.Embedding.BaseURL,
		"PRLGL_EMBED_API_KEY":        &cfg.Embedding.APIKey,
		"PRLGL_COMPLIANCE_RULES":     &cfg.ComplianceRulesPath,
		"PRLGL_AUDIT_CHECKLIST":      &cfg.AuditChecklistPath,
		"PRLGL_JURISDICTIONAL_RULES": &cfg.JurisdictionalRulesPath,
		"PRLGL_INSTITUTIONS":         &cfg.InstitutionsPath,
	}
	for name, target := range overrides {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}

	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = providerKeyFromEnv(cfg.Chat.Provider)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = providerKeyFromEnv(cfg.Embedding.Provider)
	}
}

func providerKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	}
	return ""
}
