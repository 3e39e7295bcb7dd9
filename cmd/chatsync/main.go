// Command chatsync keeps a local session store in step with a chat server
// and exposes it over a local HTTP control API.
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

	"github.com/xiaoshi569/nextchat/internal/auth"
	"github.com/xiaoshi569/nextchat/internal/config"
	"github.com/xiaoshi569/nextchat/internal/handlers"
	"github.com/xiaoshi569/nextchat/internal/httpserver"
	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/remote"
	"github.com/xiaoshi569/nextchat/internal/state"
	"github.com/xiaoshi569/nextchat/internal/syncengine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:          "chatsync",
		Short:        "Sync local chat sessions with a chat server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml or json)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the sync engine and the local control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClient(configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	})

	var email, password string
	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClient(configFile)
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv(config.EnvPrefix + "_PASSWORD")
			}
			mgr, err := newAuth(cfg, logging.Discard())
			if err != nil {
				return err
			}
			id, err := mgr.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed (%s): %w", remote.Classify(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", id.Username, id.Email)
			return nil
		},
	}
	login.Flags().StringVar(&email, "email", "", "account email")
	login.Flags().StringVar(&password, "password", "", "account password (or NEXTCHAT_PASSWORD)")
	_ = login.MarkFlagRequired("email")
	root.AddCommand(login)

	root.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClient(configFile)
			if err != nil {
				return err
			}
			mgr, err := newAuth(cfg, logging.Discard())
			if err != nil {
				return err
			}
			mgr.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	})
	return root
}

func newAuth(cfg config.Client, logger *logging.Logger) (*auth.Manager, error) {
	creds, err := auth.NewStore(cfg.Credentials.Path, logger)
	if err != nil {
		return nil, err
	}
	client := remote.NewClient(remote.NewHTTPClient(cfg.RequestTimeout()), cfg.Remote.BaseURL, creds)
	return auth.NewManager(creds, client, logger), nil
}

func run(ctx context.Context, cfg config.Client) error {
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := auth.NewStore(cfg.Credentials.Path, logger)
	if err != nil {
		return err
	}
	client := remote.NewClient(remote.NewHTTPClient(cfg.RequestTimeout()), cfg.Remote.BaseURL, creds)
	mgr := auth.NewManager(creds, client, logger)

	store, err := state.Open(state.WithPersistence(cfg.State.Path), state.WithLogger(logger))
	if err != nil {
		return err
	}
	engine := syncengine.New(store, client, syncengine.Config{
		GuardInterval: cfg.GuardInterval(),
		SettleDelay:   cfg.SettleDelay(),
		MirrorStat:    cfg.Sync.MirrorStat,
	}, syncengine.WithLogger(logger.With("component", "sync")))

	// A persisted token is checked before the engine may pull with it.
	if id, ok := mgr.Restore(ctx); ok {
		logger.Infof("restored session for %s", id.Email)
	}
	obs := syncengine.NewObserver(engine, creds, store, logger)
	obs.Start()

	router := httpserver.NewRouter(&handlers.Control{
		Store:  store,
		Engine: engine,
		Creds:  creds,
		Auth:   mgr,
		Logger: logger,
	})
	srv := &http.Server{Addr: cfg.Listen, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("control API listening on %s, server %s", cfg.Listen, cfg.Remote.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		obs.Stop()
		flush(shutdownCtx, engine, creds, logger)
		engine.Close()
		return err
	})
	return g.Wait()
}

// flush pushes a change still waiting in the debounce window. The engine
// holds it back if the sign-in's pull never succeeded.
func flush(ctx context.Context, engine *syncengine.Engine, creds *auth.Store, logger *logging.Logger) {
	st := engine.Status()
	if !st.PushPending || !creds.IsAuthenticated() {
		return
	}
	results := engine.Push(ctx)
	logger.Infof("pushed %d sessions before exit", len(results))
}
