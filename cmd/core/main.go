package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	http_adapter "github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/in/http"
	memory_adapter "github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/pkg/locker"
	"github.com/JoeShih716/go-account-ledger/pkg/metrics"
	"github.com/JoeShih716/go-account-ledger/pkg/mysql"
	"github.com/JoeShih716/go-account-ledger/pkg/wal"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Ledger struct {
		// Backend: "memory" (記憶體 + WAL) 或 "mysql"
		Backend string `yaml:"backend"`
		WALPath string `yaml:"wal_path"`
		// LockWaitSeconds: 等待帳戶鎖的上限 (秒)，超過回傳 busy
		LockWaitSeconds int `yaml:"lock_wait_seconds"`
	} `yaml:"ledger"`
	MySQL mysql.Config `yaml:"mysql"`
}

func main() {
	// 1. 載入設定
	cfg := loadConfig()

	// 2. 初始化 Logger
	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	// 3. 依設定初始化帳本後端 (Driven Adapter)
	var usedLedger usecase.Ledger
	switch cfg.Ledger.Backend {
	case "memory":
		walFile, err := wal.New(cfg.Ledger.WALPath)
		if err != nil {
			logger.Fatal("failed to init wal", zap.Error(err))
		}
		defer walFile.Close()

		memLedger, err := memory_adapter.NewMemoryLedger(
			locker.NewManager(time.Duration(cfg.Ledger.LockWaitSeconds)*time.Second),
			walFile,
			logger,
		)
		if err != nil {
			logger.Fatal("failed to init memory ledger", zap.Error(err))
		}
		usedLedger = memLedger
		logger.Info("using memory ledger", zap.String("wal", cfg.Ledger.WALPath))
	case "mysql":
		dbClient, err := mysql.NewClient(cfg.MySQL)
		if err != nil {
			logger.Fatal("failed to connect to mysql", zap.Error(err))
		}
		defer dbClient.Close()

		sqlLedger := mysql_adapter.NewMySQLLedger(dbClient)
		if err := sqlLedger.Migrate(); err != nil {
			logger.Fatal("failed to migrate schema", zap.Error(err))
		}
		usedLedger = sqlLedger
		logger.Info("using mysql ledger", zap.String("host", cfg.MySQL.Host))
	default:
		logger.Fatal("invalid ledger backend", zap.String("backend", cfg.Ledger.Backend))
	}

	// 4. 指標與 UseCase
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	ledgerMetrics := metrics.New("ledger", registry)

	coreUseCase := usecase.NewCoreUseCase(usedLedger, ledgerMetrics)

	// 5. HTTP Adapter (Driving Adapter)
	apiServer := http_adapter.NewServer(coreUseCase, logger)
	apiServer.Router().Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      apiServer.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// 6. 啟動 + Graceful Shutdown
	go func() {
		logger.Info("starting http server", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("server exited")
}

func loadConfig() Config {
	var cfg Config

	cfgData, err := os.ReadFile("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	// 補全預設配置 (如果 yaml 沒寫)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "memory"
	}
	if cfg.Ledger.WALPath == "" {
		cfg.Ledger.WALPath = "wal.log"
	}
	if cfg.Ledger.LockWaitSeconds == 0 {
		cfg.Ledger.LockWaitSeconds = int(locker.DefaultWait / time.Second)
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	return cfg
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	return logger
}
