package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cognicore/docasm/internal/server"
	"github.com/cognicore/docasm/pkg/docasm"
	"github.com/cognicore/docasm/pkg/docasm/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional)")
		dbPath     = flag.String("db", "", "SQLite database for runs (optional)")
		addr       = flag.String("addr", "", "Listen address override")
		debug      = flag.Bool("debug", false, "Run gin in debug mode")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.Loader{
		ConfigPath: *configPath,
		Lookup:     os.LookupEnv,
		Logger:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		StorePath:  *dbPath,
	}
	components, err := loader.Load(ctx)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	engine := docasm.New(docasm.Options{
		Assembler: components.Assembler,
		Store:     components.Store,
		Workers:   components.Config.Assembler.Workers,
	})
	defer engine.Close()

	cfg := components.Config.Server
	listen := cfg.Addr
	if *addr != "" {
		listen = *addr
	}

	srv := server.New(server.Options{
		Engine:    engine,
		Logger:    logger,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		MaxRows:   cfg.MaxRows,
	})

	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", listen, "cleanup_mode", string(components.Assembler.Mode()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
