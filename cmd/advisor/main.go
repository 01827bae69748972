// Command advisor is the terminal chat widget for the fin-advisor backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/cache"
	"github.com/zhouzirui/fin-advisor/backend/internal/client"
	"github.com/zhouzirui/fin-advisor/backend/internal/config"
	"github.com/zhouzirui/fin-advisor/backend/internal/logging"
	"github.com/zhouzirui/fin-advisor/backend/internal/widget"
)

var (
	// Global flags
	configPath string
	serverURL  string
	cachePath  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "Chat with the financial advisory assistant",
	Long: `advisor is a terminal chat widget for the fin-advisor backend.

Guest conversations are kept in a local cache and moved to your account
when you sign in. Run without arguments to start a chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "widget config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "backend URL, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "local cache file, overrides the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(chatCmd, loginCmd, logoutCmd, resetCmd, historyCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the widget wiring shared by every command.
type app struct {
	cfg        *config.WidgetConfig
	logger     *zap.Logger
	api        *client.Client
	cache      *cache.FileStore
	reconciler *widget.Reconciler
	session    *widget.Session
}

func loadConfig() (*config.WidgetConfig, error) {
	cfg, err := config.LoadWidget(configPath)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if cachePath != "" {
		cfg.CachePath = cachePath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func newApp(cfg *config.WidgetConfig) (*app, error) {
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		return nil, err
	}

	api, err := client.New(cfg.ServerURL, nil)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewFileStore(cfg.CachePath, logger)
	if err != nil {
		return nil, err
	}

	reconciler, err := widget.NewReconciler(api, store, widget.ReconcilerOptions{
		GuestDomain:  cfg.GuestDomain,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	session, err := widget.NewSession(api, reconciler, store, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		api:        api,
		cache:      store,
		reconciler: reconciler,
		session:    session,
	}, nil
}

// close waits for in-flight writes so a short command does not drop them.
func (a *app) close() {
	a.reconciler.Wait()
	_ = a.logger.Sync()
}

func withApp(fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
