package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/claims"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/rule"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/ruleconfig"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user/entity"
)

const usage = `usage: idpsync <command> [flags]

  users count
  users seed -n N [-confirm] [-connection C] [-email-verified]
  users reconcile -desired N [-confirm]
  users await -desired N [-pause D]
  users purge
  users mirror
  users purge-local
  rules plan | apply [-dry-run] | teardown [-dry-run]
  rule-configs plan | apply [-dry-run] | teardown [-dry-run]
  clients oidc-check [-client-id ID]
  claims -id-token TOKEN
  serve
`

var (
	errUsage        = errors.New("usage")
	errNotConfirmed = errors.New("reconciliation not confirmed")
)

type oidcChecker interface {
	OIDCConformant(ctx context.Context, clientID string) (bool, error)
}

type app struct {
	cfg          config.ProviderConfig
	logger       *zap.SugaredLogger
	out          io.Writer
	users        *user.Service
	rules        *rule.Service
	ruleConfigs  *ruleconfig.Service
	clients      oidcChecker
	claims       *claims.Reader
	declarations func() (*config.Declarations, error)
	localStore   func(ctx context.Context) (user.LocalStore, func(), error)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func run(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "users":
		return runUsers(ctx, a, args[1:])
	case "rules":
		return runRules(ctx, a, args[1:])
	case "rule-configs":
		return runRuleConfigs(ctx, a, args[1:])
	case "clients":
		return runClients(ctx, a, args[1:])
	case "claims":
		return runClaims(a, args[1:])
	case "serve":
		return serve(ctx, a)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func runUsers(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := newFlags("users " + args[0])
	switch args[0] {
	case "count":
		n, err := a.users.Count(ctx)
		if err != nil {
			return err
		}
		return a.print(map[string]int{"count": n})

	case "seed":
		n := fs.Int("n", 1, "users to create")
		confirm := fs.Bool("confirm", false, "poll until every created user is readable")
		connection := fs.String("connection", "", "connection override")
		verified := fs.Bool("email-verified", false, "mark emails verified")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		o := entity.UserOverrides{Connection: *connection}
		if *verified {
			o.EmailVerified = verified
		}
		var created []entity.SeededUser
		var err error
		if *confirm {
			created, err = a.users.CreateManyAndConfirm(ctx, *n, o)
		} else {
			created, err = a.users.CreateMany(ctx, *n, o)
		}
		if perr := a.print(created); perr != nil && err == nil {
			err = perr
		}
		return err

	case "reconcile":
		desired := fs.Int("desired", -1, "desired user total")
		confirm := fs.Bool("confirm", false, "poll the count after creating")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if *desired < 0 {
			return fmt.Errorf("%w: -desired is required", errUsage)
		}
		ok, err := a.users.ReconcileCount(ctx, *desired)
		if err != nil {
			return err
		}
		if !ok && *confirm {
			if err := a.users.AwaitCount(ctx, *desired, a.cfg.PollInterval, a.cfg.PollTimeout); err != nil {
				return err
			}
			ok = true
		}
		if err := a.print(map[string]any{"desired": *desired, "confirmed": ok}); err != nil {
			return err
		}
		if !ok {
			return errNotConfirmed
		}
		return nil

	case "await":
		desired := fs.Int("desired", -1, "desired user total")
		pause := fs.Duration("pause", 0, "wait before polling")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		if *desired < 0 {
			return fmt.Errorf("%w: -desired is required", errUsage)
		}
		return a.users.PauseAndConfirmCount(ctx, *pause, *desired)

	case "purge":
		ok, err := a.users.DeleteAllWithConfirmation(ctx)
		if err != nil {
			return err
		}
		if err := a.print(map[string]bool{"empty": ok}); err != nil {
			return err
		}
		if !ok {
			return errNotConfirmed
		}
		return nil

	case "mirror", "purge-local":
		store, closeStore, err := a.localStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		var changed int64
		if args[0] == "mirror" {
			n, err := a.users.Mirror(ctx, store)
			if err != nil {
				return err
			}
			changed = int64(n)
		} else {
			if changed, err = a.users.PurgeLocal(ctx, store); err != nil {
				return err
			}
		}
		local, err := store.Count(ctx)
		if err != nil {
			return err
		}
		key := "mirrored"
		if args[0] == "purge-local" {
			key = "purged"
		}
		return a.print(map[string]int64{key: changed, "local_count": int64(local)})
	}
	return fmt.Errorf("%w: unknown users command %q", errUsage, args[0])
}

func runRules(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := newFlags("rules " + args[0])
	dryRun := fs.Bool("dry-run", false, "compute and report without mutating")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	decl, err := a.declarations()
	if err != nil {
		return err
	}
	switch args[0] {
	case "plan":
		plan, err := a.rules.Plan(ctx, decl.DesiredRules())
		if err != nil {
			return err
		}
		return a.print(plan)
	case "apply":
		res, err := a.rules.Reconcile(ctx, decl.DesiredRules(), *dryRun)
		if perr := a.print(res); perr != nil && err == nil {
			err = perr
		}
		return err
	case "teardown":
		res, err := a.rules.Teardown(ctx, decl.RuleNames(), *dryRun)
		if err != nil {
			return err
		}
		return a.print(res)
	}
	return fmt.Errorf("%w: unknown rules command %q", errUsage, args[0])
}

func runRuleConfigs(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := newFlags("rule-configs " + args[0])
	dryRun := fs.Bool("dry-run", false, "compute and report without mutating")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	decl, err := a.declarations()
	if err != nil {
		return err
	}
	switch args[0] {
	case "plan":
		plan, err := a.ruleConfigs.Plan(ctx, decl.RuleConfigs)
		if err != nil {
			return err
		}
		return a.print(plan)
	case "apply":
		plan, err := a.ruleConfigs.Apply(ctx, decl.RuleConfigs, *dryRun)
		if err != nil {
			return err
		}
		return a.print(map[string]any{"dry_run": *dryRun, "plan": plan})
	case "teardown":
		removed, err := a.ruleConfigs.Teardown(ctx, decl.RuleConfigKeys(), *dryRun)
		if err != nil {
			return err
		}
		return a.print(map[string]any{"dry_run": *dryRun, "removed": removed})
	}
	return fmt.Errorf("%w: unknown rule-configs command %q", errUsage, args[0])
}

func runClients(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || args[0] != "oidc-check" {
		return errUsage
	}
	fs := newFlags("clients oidc-check")
	clientID := fs.String("client-id", a.cfg.ClientID, "application client id")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	ok, err := a.clients.OIDCConformant(ctx, *clientID)
	if err != nil {
		return err
	}
	return a.print(map[string]any{"client_id": *clientID, "oidc_conformant": ok})
}

func runClaims(a *app, args []string) error {
	fs := newFlags("claims")
	idToken := fs.String("id-token", "", "id_token to decode")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *idToken == "" {
		return fmt.Errorf("%w: -id-token is required", errUsage)
	}
	p, err := a.claims.ProfileFromIDToken(*idToken)
	if err != nil {
		return err
	}
	return a.print(p)
}

// serve exposes the read-only ops endpoints until ctx is cancelled.
func serve(ctx context.Context, a *app) error {
	decl, err := a.declarations()
	if err != nil {
		return err
	}
	handler := router.RegisterRoutes(a.logger, router.Handlers{
		Users:       user.NewHandler(a.users, a.logger),
		Rules:       rule.NewHandler(a.rules, decl.DesiredRules(), a.logger),
		RuleConfigs: ruleconfig.NewHandler(a.ruleConfigs, decl.RuleConfigs, a.logger),
		Claims:      claims.NewHandler(a.claims, a.logger),
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infow("ops server listening", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		a.logger.Warnw("http server shutdown failed", "err", err)
	}
	return nil
}
