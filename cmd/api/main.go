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

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/fin-advisor/backend/internal/config"
	"github.com/zhouzirui/fin-advisor/backend/internal/handler"
	"github.com/zhouzirui/fin-advisor/backend/internal/logging"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/profile"
	"github.com/zhouzirui/fin-advisor/backend/internal/service/advisor"
	"github.com/zhouzirui/fin-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/service/user"
	"github.com/zhouzirui/fin-advisor/backend/internal/store"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/gormstore"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/memory"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fin-advisor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using system environment only", zap.Error(envErr))
	}

	st, err := openStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("conversation store ready", zap.String("driver", cfg.Store.Driver))

	profiles := profile.NewMemoryStore(profile.Seed())
	selected, ok := profiles.Select(cfg.AI.ProfileID)
	if !ok {
		return fmt.Errorf("no advisor profile available")
	}
	if cfg.AI.ProfileID != "" && selected.ID != cfg.AI.ProfileID {
		logger.Warn("unknown ADVISOR_PROFILE, using the default advisor",
			zap.String("requested", cfg.AI.ProfileID), zap.String("profile", selected.ID))
	}

	var chatModel model.ChatModel
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			logger.Warn("failed to initialize chat model, advisor will answer with the fallback message",
				zap.String("provider", cfg.AI.Provider), zap.Error(err))
			chatModel = nil
		} else {
			logger.Info("chat model initialized", zap.String("provider", cfg.AI.Provider), zap.String("model", cfg.AI.Model))
		}
	} else {
		logger.Warn("advisor credentials not configured, advisor will answer with the fallback message",
			zap.String("provider", cfg.AI.Provider))
	}

	advisorSvc, err := advisor.NewService(ctx, chatModel, advisor.Options{
		Timeout:      cfg.AI.Timeout,
		HistoryLimit: cfg.AI.HistoryLimit,
		Profile:      selected,
	}, logger)
	if err != nil {
		return err
	}

	userSvc := user.NewService(st, logger)
	if cfg.Admin.Enabled() {
		created, err := userSvc.Seed(ctx, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			return err
		}
		if created {
			logger.Info("seeded admin user", zap.String("email", cfg.Admin.Email))
		}
	}

	router := handler.NewRouter(handler.Services{
		Profiles:       profiles,
		Advisor:        advisorSvc,
		Chat:           chat.NewService(st, logger),
		Users:          userSvc,
		AdvisorEnabled: chatModel != nil,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("fin-advisor backend listening", zap.String("addr", cfg.Server.Addr))
	return runServer(ctx, srv, cfg.Server.ShutdownTimeout, logger)
}

func openStore(cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreSQLite:
		return gormstore.Open(cfg.SQLitePath, logger)
	case config.StorePostgres:
		return postgres.Open(cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
