package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"taskboard-api/internal/auth"
	"taskboard-api/internal/config"
	"taskboard-api/internal/database"
	"taskboard-api/internal/lifecycle"
	"taskboard-api/internal/realtime"
	"taskboard-api/internal/routes"
	"taskboard-api/internal/service"
	"taskboard-api/internal/store"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(&env.ServerEnv)

	if env.InsecureSecret() {
		if env.Env != "local" {
			slog.Error("TASKBOARD_JWT_SECRET must be set outside local")
			os.Exit(1)
		}
		slog.Warn("using the development JWT secret")
	}
	if env.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Init database
	db := mustOpen(&env.DatabaseEnv)

	users := store.NewUserRepository(db)
	dir := store.NewDirectory(users, env.AssigneeCacheTTL)
	hub := realtime.NewHub()
	taskService := service.NewTaskService(store.NewTaskRepository(db), users, dir, lifecycle.NewEngine(), hub)
	userService := service.NewUserService(users, dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go dir.Run(ctx, env.AssigneeCacheTTL)

	if err := userService.EnsureAdmin(ctx, &env.SeedEnv); err != nil {
		slog.Error("failed to seed admin user", "error", err)
		os.Exit(1)
	}

	// Setup the routes (public and protected routes)
	ginRoutes := routes.SetupRoutes(routes.Deps{
		Tasks:      taskService,
		Users:      userService,
		Issuer:     auth.NewIssuer(&env.AuthEnv),
		Hub:        hub,
		CORSOrigin: env.CORSOrigin,
	})

	srv := &http.Server{
		Addr:              ":" + env.HTTPPort,
		Handler:           ginRoutes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "env", env.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func setupLogger(env *config.ServerEnv) {
	opts := &slog.HandlerOptions{Level: env.SlogLevel()}
	var handler slog.Handler
	if env.Env == "local" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func mustOpen(env *config.DatabaseEnv) *gorm.DB {
	db, err := database.Open(env)
	if err != nil {
		slog.Error("failed to open database", "path", env.Path, "error", err)
		os.Exit(1)
	}
	return db
}
