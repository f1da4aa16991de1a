package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forum-feed/internal/config"
	"forum-feed/internal/database"
	"forum-feed/internal/handlers"
	"forum-feed/internal/repos"
	"forum-feed/internal/scheduler"
	"forum-feed/internal/service"

	"github.com/urfave/cli/v3"
)

func main() {
	root := &cli.Command{
		Name:  "forum-feed",
		Usage: "Microblog feed backend for forum users",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
		},
		Flags: serveFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServer(ctx, cmd)
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (overrides SERVER_ADDR)"},
		&cli.StringFlag{Name: "db-path", Usage: "SQLite database path (overrides DATABASE_PATH)"},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP and websocket server",
		Flags:  serveFlags(),
		Action: runServer,
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-path", Usage: "SQLite database path (overrides DATABASE_PATH)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			db, err := database.InitDB(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.RunMigrations(ctx, db); err != nil {
				return err
			}
			version, err := database.MigrationVersion(ctx, db)
			if err != nil {
				return err
			}
			fmt.Printf("database %s at version %d\n", cfg.DatabasePath, version)
			return nil
		},
	}
}

// loadConfig reads the environment and applies command-line overrides
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("addr") {
		cfg.ServerAddr = cmd.String("addr")
	}
	if cmd.IsSet("db-path") {
		cfg.DatabasePath = cmd.String("db-path")
	}
	return cfg, nil
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db); err != nil {
		return err
	}

	hub := handlers.NewHub()
	svc := service.New(repos.NewSQLiteRepos(db), hub, service.Options{
		AdminIDs:         cfg.AdminIDs,
		MaxContentLength: cfg.MaxContentLength,
		DefaultPageSize:  cfg.PostsPerPage,
		MaxPageSize:      cfg.MaxPageSize,
		TopUsersLimit:    cfg.TopUsersLimit,
		UserPostsLimit:   cfg.UserPostsLimit,
		Timeout:          cfg.StoreTimeout,
	})
	handler := handlers.NewHandler(svc, hub, cfg.AllowedOrigins)

	// start hub run loop for safe broadcasting
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	sched, err := scheduler.Start(svc, cfg.NotificationSweep, cfg.NotificationRetention)
	if err != nil {
		return err
	}
	defer sched.Stop()

	// ================= SERVER =================
	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server running at %s (%d admins)", cfg.ServerAddr, len(cfg.AdminIDs))
		errCh <- server.ListenAndServe()
	}()

	// ================= SHUTDOWN =================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
	return nil
}
