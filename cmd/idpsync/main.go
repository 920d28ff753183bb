package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/claims"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/management"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/retry"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/rule"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/ruleconfig"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/pkg/utilities"
)

const (
	exitOK           = 0
	exitError        = 1
	exitUsage        = 2
	exitNotConfirmed = 3
)

func main() {
	os.Exit(runMain(os.Args[1:]))
}

// runMain returns the process exit code so deferred cleanup runs before exit.
func runMain(args []string) int {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		fmt.Fprint(os.Stderr, usage)
		return exitUsage
	}

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return exitError
	}
	defer func() { _ = lg.Sync() }()
	sugar := lg.Sugar().With("run_id", utilities.NewRunID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, sugar)
	if err != nil {
		sugar.Errorw("startup failed", "err", err)
		return exitError
	}
	defer cleanup()

	return exitCode(sugar, run(ctx, a, args))
}

func exitCode(logger *zap.SugaredLogger, err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usage)
		return exitUsage
	case errors.Is(err, errNotConfirmed), user.IsTimeout(err):
		logger.Warnw("reconciliation not confirmed", "err", err)
		return exitNotConfirmed
	default:
		logger.Errorw("command failed", "err", err)
		return exitError
	}
}

// newApp wires the provider client and services from the environment.
func newApp(ctx context.Context, logger *zap.SugaredLogger) (*app, func(), error) {
	cfg, err := config.ProviderConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := []token.Option{}
	if rc := cache.ConfigFromEnv(); rc.Addr != "" {
		rdb, err := cache.New(ctx, rc)
		if err != nil {
			// the shared cache is an optimization; run with the in-process cache only
			logger.Warnw("redis unavailable, token cache is process-local", "addr", rc.Addr, "err", err)
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			opts = append(opts, token.WithStore(cache.NewTokenStore(rdb, cfg.ClientID)))
		}
	}

	supplier, err := token.NewSupplier(token.Config{
		TokenURL:     cfg.TokenURL(),
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Audience:     cfg.ManagementAudience(),
		TTL:          cfg.TokenTTL,
	}, logger, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	client, err := management.NewClient(management.Config{BaseURL: cfg.ManagementURL()}, supplier, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	poller := retry.New(cfg.PollInterval, cfg.PollTimeout)
	users := user.NewService(client, user.Config{
		Connection:      cfg.Connection,
		EmailDomain:     cfg.EmailDomain,
		PageSize:        cfg.PageSize,
		ConfirmInterval: cfg.PollInterval,
		ConfirmTimeout:  cfg.PollTimeout,
	}, poller, logger)

	a := &app{
		cfg:         cfg,
		logger:      logger,
		out:         os.Stdout,
		users:       users,
		rules:       rule.NewService(client, cfg.PageSize, logger),
		ruleConfigs: ruleconfig.NewService(client, logger),
		clients:     client,
		claims: claims.NewReader(claims.Config{
			UserMetadataNamespace: cfg.UserMetadataNamespace,
			AppMetadataNamespace:  cfg.AppMetadataNamespace,
		}),
		declarations: func() (*config.Declarations, error) {
			return config.LoadDeclarations(cfg.DeclarationsFile)
		},
		localStore: func(ctx context.Context) (user.LocalStore, func(), error) {
			db, err := database.Connect(ctx, database.ConfigFromEnv())
			if err != nil {
				return nil, nil, err
			}
			r := userrepo.NewUserRepo(db)
			if err := r.EnsureTable(ctx); err != nil {
				db.Close()
				return nil, nil, err
			}
			return r, func() { _ = db.Close() }, nil
		},
	}
	return a, cleanup, nil
}
