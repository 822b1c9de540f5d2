package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/api"
	"chatrelay/internal/auth"
	"chatrelay/internal/chat"
	"chatrelay/internal/chatgpt"
	"chatrelay/internal/messagestore"
	"chatrelay/pkg/config"
	"chatrelay/pkg/db"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("unknown LOG_LEVEL %q, keeping info", cfg.LogLevel)
	} else {
		logrus.SetLevel(level)
	}

	database, err := db.NewDB(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	messageStoreRepo := messagestore.NewRepository(database)
	if err := messageStoreRepo.Migrate(context.Background()); err != nil {
		logrus.Fatalf("failed to prepare database schema: %v", err)
	}
	messageStoreService := messagestore.NewService(messageStoreRepo)

	chatgptService := chatgpt.NewService(cfg)
	chatService := chat.NewService(messageStoreService, chatgptService, cfg.MessageQuota)
	gate := auth.NewGate(cfg.AccessPassword)

	apiHandler := api.NewHandler(chatService, messageStoreService, gate)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(apiHandler, cfg.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":  server.Addr,
			"model": cfg.OpenAIModel,
			"quota": cfg.MessageQuota,
		}).Info("server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("server shutdown: %v", err)
	}

	logrus.Info("server stopped")
}
