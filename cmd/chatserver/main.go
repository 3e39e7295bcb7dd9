// Command chatserver runs the chat persistence API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xiaoshi569/nextchat/internal/config"
	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/secret"
	httpapi "github.com/xiaoshi569/nextchat/internal/server/http"
	"github.com/xiaoshi569/nextchat/internal/server/repos"
	"github.com/xiaoshi569/nextchat/internal/server/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:          "chatserver",
		Short:        "Chat session persistence server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml or json)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})

	var email, username, password string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin account and default system settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if email != "" {
				cfg.Admin.Email = email
			}
			if username != "" {
				cfg.Admin.Username = username
			}
			if password != "" {
				cfg.Admin.Password = password
			}
			return runSeed(cmd.Context(), cfg)
		},
	}
	seed.Flags().StringVar(&email, "email", "", "admin email (default admin.email)")
	seed.Flags().StringVar(&username, "username", "", "admin username (default admin.username)")
	seed.Flags().StringVar(&password, "password", "", "admin password (default admin.password)")
	root.AddCommand(seed)

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return db.Close()
		},
	})
	return root
}

func loadConfig(file string) (config.Server, error) {
	cfg, err := config.LoadServer(file)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func openDB(ctx context.Context, cfg config.Server) (*repos.DB, error) {
	db, err := repos.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func newLogger(cfg config.Server) *logging.Logger {
	return logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

func serve(ctx context.Context, cfg config.Server) error {
	logger := newLogger(cfg)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	box, err := secret.New(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	authSvc := services.NewAuthService(db, services.AuthConfig{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenTTL:      cfg.TokenTTL(),
		AllowRegister: cfg.AllowRegister,
	})
	router := httpapi.NewRouter(httpapi.Deps{
		DB:           db,
		Auth:         authSvc,
		Chat:         services.NewChatService(db),
		Admin:        services.NewAdminService(db, box),
		Logger:       logger,
		AllowOrigins: cfg.CORS.AllowOrigins,
	})
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("server listening on :%s (%s)", cfg.Port, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Infof("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runSeed(ctx context.Context, cfg config.Server) error {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		return errors.New("admin email and password are required")
	}
	logger := newLogger(cfg)
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	authSvc := services.NewAuthService(db, services.AuthConfig{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenTTL:      cfg.TokenTTL(),
		AllowRegister: cfg.AllowRegister,
	})
	u, created, err := authSvc.Seed(ctx, cfg.Admin.Email, cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		return err
	}
	if created {
		logger.Infof("admin %s created", u.Email)
	} else {
		logger.Infof("admin %s already exists", u.Email)
	}
	return nil
}
