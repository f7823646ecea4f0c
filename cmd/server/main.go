package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/soaringjerry/truthpref/internal/api"
	"github.com/soaringjerry/truthpref/internal/config"
	dbstore "github.com/soaringjerry/truthpref/internal/db"
	"github.com/soaringjerry/truthpref/internal/logger"
	"github.com/soaringjerry/truthpref/internal/middleware"
	"github.com/soaringjerry/truthpref/internal/services"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for the given admin password and exit")
	flag.Parse()

	if *hashPassword != "" {
		h, err := services.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, log, cfg)
	if err != nil {
		log.Fatal("open store", "driver", cfg.DBDriver, "error", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("close store", "error", cerr)
		}
	}()

	var auth *middleware.Authenticator
	if cfg.AdminPasswordHash != "" {
		auth, err = middleware.NewAuthenticator(cfg.JWTSecret)
		if err != nil {
			log.Fatal("init authenticator", "error", err)
		}
	} else {
		log.Info("admin endpoints disabled, no password hash configured")
	}

	mux := http.NewServeMux()
	api.NewRouter(store, auth, log, api.RouterConfig{
		ExpectedAnswers:   cfg.ExpectedAnswers,
		AdminPasswordHash: cfg.AdminPasswordHash,
		Commit:            cfg.Commit,
		BuildTime:         cfg.BuildTime,
	}).Register(mux)

	if cfg.StaticDir != "" {
		mux.Handle("/", spaHandler(cfg.StaticDir))
	}

	handler := middleware.Chain(mux,
		middleware.SecureHeaders,
		middleware.CORS(cfg.Origins()),
		middleware.NoStore,
		middleware.RequestLogger(log),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("truthpref server listening", "addr", cfg.Addr, "driver", cfg.DBDriver, "commit", cfg.Commit)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
}

func openStore(ctx context.Context, log *logger.Logger, cfg config.Config) (api.Store, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		s, err := api.NewMemoryStoreFromPath(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := dbstore.NewPostgresStore(ctx, cfg.PostgresDSN, cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		if err := MigrateIfNeeded(ctx, log, cfg.SnapshotPath, cfg.SQLitePath, cfg.MigrationsDir); err != nil {
			return nil, fmt.Errorf("snapshot import: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		s, err := dbstore.NewStore(cfg.SQLitePath, cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// spaHandler serves files from dir and falls back to index.html for paths
// that name no file, so client-side routes survive a reload.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		p := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		info, err := os.Stat(p)
		if err != nil || (info.IsDir() && !fileExists(filepath.Join(p, "index.html"))) {
			http.ServeFile(w, r, index)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
