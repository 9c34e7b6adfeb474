package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messer/internal/config"
	"messer/internal/database"
	"messer/internal/logger"
	"messer/internal/redisclient"
	"messer/internal/server"
	"messer/internal/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GlobalConfig

	logger.Init(cfg.Log.Level, *dev)
	defer logger.Sync()
	if !*dev {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB(cfg.Database.MySQL.DSN, database.LogLevel(cfg.Log.Level))
	if err != nil {
		logger.Fatal("init database", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("database handle", err)
	}
	defer sqlDB.Close()

	if err := redisclient.InitRedis(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB); err != nil {
		logger.Warn("continuing without redis", "error", err)
	}
	defer redisclient.CloseRedis()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := service.NewManager(ctx, cfg, db, redisclient.GetRedisClient())

	tlsCfg := server.NewTLSConfig(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, cfg.Server.TLS.Enabled)
	if err := tlsCfg.ValidateCertificates(); err != nil {
		logger.Warn("tls disabled, falling back to http", "error", err)
		tlsCfg = server.NewTLSConfig("", "", false)
	}
	srv := tlsCfg.NewHTTPServer(fmt.Sprintf(":%d", cfg.Server.Port), mgr.Router())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tlsCfg.Serve(srv)
	})
	g.Go(func() error {
		// losing the listener only disables external logout
		if err := mgr.RunRevocation(gctx); err != nil {
			logger.Error("revocation listener stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		mgr.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		return
	}
	logger.Info("server stopped")
}
