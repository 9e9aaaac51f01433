package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"blockflow/internal/autotrigger"
	"blockflow/internal/blockstore"
	"blockflow/internal/config"
	"blockflow/internal/deps"
	"blockflow/internal/engine"
	"blockflow/internal/handler"
	"blockflow/internal/history"
	"blockflow/internal/llm"
	"blockflow/internal/template"
	"blockflow/internal/tree"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var store *blockstore.Store
	if cfg.StoreDSN != "" {
		store, err = blockstore.NewPostgres(cfg.StoreDSN)
		if err != nil {
			log.Fatalf("open postgres store: %v", err)
		}
	} else {
		store = blockstore.New(cfg.StorePath)
	}
	defer store.Close()

	hist := history.NewStore(cfg.HistoryTTL)
	if cfg.Archive.Enabled {
		archive, err := history.NewArchive(history.ArchiveConfig{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			log.Printf("history archive disabled: %v", err)
		} else {
			hist = hist.WithArchive(archive)
		}
	}

	registry, err := template.NewRegistry(cfg.TemplateDir)
	if err != nil {
		log.Fatalf("load templates: %v", err)
	}
	if cfg.TemplateWatch {
		watcher, err := template.NewWatcher(registry)
		if err != nil {
			log.Printf("template watch disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	var gen llm.Generator
	if cfg.LLM.APIKey != "" {
		gen, err = llm.NewGeminiGenerator(context.Background(), cfg.LLM.Model)
		if err != nil {
			log.Fatalf("init gemini: %v", err)
		}
	} else {
		log.Printf("GEMINI_API_KEY not set; using fake generator")
		gen = llm.NewFakeGenerator()
	}
	defer gen.Close()

	resolver := deps.NewResolver(store)
	mutator := tree.NewMutator(store, hist)
	eng := engine.New(store, resolver, gen, engine.NewBroker())
	chain := autotrigger.NewChain(store, resolver, autotrigger.NewSettings(cfg.AutonomyDefault), eng)
	eng.SetOnSettled(chain.OnBlockSettled)

	expander := template.NewExpander(store, registry)

	mux := http.NewServeMux()
	handler.New(store, mutator, eng, chain, expander, registry).Register(mux)

	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: h2c.NewHandler(withCORS(mux), &http2.Server{}),
	}

	go func() {
		log.Printf("Starting API server on %s (env=%s)", cfg.Port, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// Simple CORS middleware
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
