package user

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/management"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/retry"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/pkg/utilities"
)

const DefaultConnection = "Username-Password-Authentication"

// Directory is the remote user directory. Absent users are reported with an
// error matching management.ErrNotFound.
type Directory interface {
	ListUsers(ctx context.Context, offset, limit int) (paging.Page[entity.RemoteUser], error)
	GetUser(ctx context.Context, userID string) (*entity.RemoteUser, error)
	CreateUser(ctx context.Context, spec entity.UserSpec) (*entity.RemoteUser, error)
	DeleteUser(ctx context.Context, userID string) error
}

// LocalStore holds local copies of remote users. It is only used for
// mirroring and cleanup, never for reconciliation decisions.
type LocalStore interface {
	Upsert(ctx context.Context, u entity.RemoteUser) error
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type Config struct {
	Connection  string
	EmailDomain string
	PageSize    int
	// ConfirmInterval and ConfirmTimeout bound per-user create/delete
	// confirmation polls.
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
	// PauseInterval and PauseTimeout bound the count poll that follows
	// PauseAndConfirmCount's pause.
	PauseInterval time.Duration
	PauseTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Connection:      DefaultConnection,
		EmailDomain:     "example.com",
		PageSize:        paging.DefaultPageSize,
		ConfirmInterval: 5 * time.Second,
		ConfirmTimeout:  300 * time.Second,
		PauseInterval:   time.Second,
		PauseTimeout:    60 * time.Second,
	}
}

// Service drives bulk changes to the remote directory and confirms them
// against its eventually consistent reads. It runs one operation at a time.
type Service struct {
	dir    Directory
	cfg    Config
	poller *retry.Poller
	logger *zap.SugaredLogger
}

// NewService builds a Service. A nil poller polls on the real clock using the
// configured confirmation interval and timeout.
func NewService(dir Directory, cfg Config, poller *retry.Poller, logger *zap.SugaredLogger) *Service {
	def := DefaultConfig()
	if cfg.Connection == "" {
		cfg.Connection = def.Connection
	}
	if cfg.EmailDomain == "" {
		cfg.EmailDomain = def.EmailDomain
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = def.ConfirmInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.PauseInterval <= 0 {
		cfg.PauseInterval = def.PauseInterval
	}
	if cfg.PauseTimeout <= 0 {
		cfg.PauseTimeout = def.PauseTimeout
	}
	if poller == nil {
		poller = retry.New(cfg.ConfirmInterval, cfg.ConfirmTimeout)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{dir: dir, cfg: cfg, poller: poller, logger: logger}
}

// Users lazily enumerates the remote directory.
func (s *Service) Users(ctx context.Context) iter.Seq2[entity.RemoteUser, error] {
	return paging.New(s.dir.ListUsers, s.cfg.PageSize).All(ctx)
}

// ListAll collects every remote user.
func (s *Service) ListAll(ctx context.Context) ([]entity.RemoteUser, error) {
	return paging.Collect(ctx, s.dir.ListUsers, s.cfg.PageSize)
}

// Count enumerates the directory and returns how many users it yielded.
func (s *Service) Count(ctx context.Context) (int, error) {
	n := 0
	for _, err := range s.Users(ctx) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*entity.RemoteUser, error) {
	return s.dir.GetUser(ctx, userID)
}

// NewSpec returns a create request with generated credentials and the
// engine defaults: configured connection, unverified email, no verification
// mail, empty metadata.
func (s *Service) NewSpec() (entity.UserSpec, error) {
	pw, err := utilities.NewSeedPassword()
	if err != nil {
		return entity.UserSpec{}, err
	}
	return entity.UserSpec{
		Connection:    s.cfg.Connection,
		Email:         utilities.NewSeedEmail(s.cfg.EmailDomain),
		Password:      pw,
		EmailVerified: false,
		VerifyEmail:   false,
		UserMetadata:  entity.Metadata{},
		AppMetadata:   entity.Metadata{},
	}, nil
}

// Create issues a single create call built from the defaults plus overrides.
func (s *Service) Create(ctx context.Context, o entity.UserOverrides) (entity.SeededUser, error) {
	spec, err := s.NewSpec()
	if err != nil {
		return entity.SeededUser{}, err
	}
	spec = o.Apply(spec)
	created, err := s.dir.CreateUser(ctx, spec)
	if err != nil {
		return entity.SeededUser{}, fmt.Errorf("create user %s: %w", spec.Email, err)
	}
	s.logger.Infow("created remote user", "user_id", created.UserID, "email", spec.Email, "connection", spec.Connection)
	return entity.Merge(spec, *created), nil
}

// CreateMany creates n users one after another. On error the users created
// so far are returned with it.
func (s *Service) CreateMany(ctx context.Context, n int, o entity.UserOverrides) ([]entity.SeededUser, error) {
	if n < 0 {
		return nil, ErrInvalidCount
	}
	out := make([]entity.SeededUser, 0, n)
	for i := 0; i < n; i++ {
		u, err := s.Create(ctx, o)
		if err != nil {
			return out, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Delete removes one user. Deleting a user that is already gone succeeds.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.dir.DeleteUser(ctx, userID); err != nil {
		if management.IsNotFound(err) {
			s.logger.Debugw("user already absent", "user_id", userID)
			return nil
		}
		return fmt.Errorf("delete user %s: %w", userID, err)
	}
	s.logger.Infow("deleted remote user", "user_id", userID)
	return nil
}

// ReconcileCount tops the directory up to desired users and reports whether
// a fresh listing then shows exactly desired. It never deletes.
func (s *Service) ReconcileCount(ctx context.Context, desired int) (bool, error) {
	if desired < 0 {
		return false, ErrInvalidCount
	}
	current, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	if missing := desired - current; missing > 0 {
		s.logger.Infow("reconciling user count", "current", current, "desired", desired, "creating", missing)
		if _, err := s.CreateMany(ctx, missing, entity.UserOverrides{}); err != nil {
			return false, err
		}
	} else if missing < 0 {
		s.logger.Warnw("directory holds more users than desired", "current", current, "desired", desired)
	}
	after, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return after == desired, nil
}

// ConfirmCount polls until the directory lists exactly desired users.
func (s *Service) ConfirmCount(ctx context.Context, desired int, interval, timeout time.Duration) bool {
	err := s.AwaitCount(ctx, desired, interval, timeout)
	if err != nil {
		s.logger.Warnw("user count not confirmed", "desired", desired, "err", err)
	}
	return err == nil
}

// AwaitCount is ConfirmCount returning why it failed: a *ReconciliationTimeout
// carrying the last observed count. Listing errors are retried until the
// budget runs out and the last one is wrapped in the timeout.
func (s *Service) AwaitCount(ctx context.Context, desired int, interval, timeout time.Duration) error {
	last := -1
	var lastErr error
	ok := s.poller.With(interval, timeout).Until(ctx, func(ctx context.Context) bool {
		n, err := s.Count(ctx)
		if err != nil {
			s.logger.Warnw("count users failed, retrying", "desired", desired, "err", err)
			lastErr = err
			return false
		}
		last, lastErr = n, nil
		s.logger.Debugw("observed user count", "count", n, "desired", desired)
		return n == desired
	})
	if !ok {
		return &ReconciliationTimeout{Operation: "confirm user count", Desired: desired, LastObserved: last, LastErr: lastErr}
	}
	return nil
}

// DeleteAndConfirm deletes userID and polls until reading it reports not
// found. Other read errors are retried within the confirm budget.
func (s *Service) DeleteAndConfirm(ctx context.Context, userID string) error {
	if err := s.Delete(ctx, userID); err != nil {
		return err
	}
	var lastErr error
	ok := s.poller.With(s.cfg.ConfirmInterval, s.cfg.ConfirmTimeout).Until(ctx, func(ctx context.Context) bool {
		_, err := s.dir.GetUser(ctx, userID)
		switch {
		case err == nil:
			lastErr = nil
			return false
		case management.IsNotFound(err):
			return true
		default:
			s.logger.Warnw("confirm delete read failed, retrying", "user_id", userID, "err", err)
			lastErr = err
			return false
		}
	})
	if !ok {
		return &ReconciliationTimeout{
			Operation:    "confirm user deleted",
			Desired:      userID + " absent",
			LastObserved: userID + " present",
			LastErr:      lastErr,
		}
	}
	return nil
}

// DeleteAllWithConfirmation deletes every listed user, confirming each delete
// is visible before the next, then reports whether a fresh listing is empty.
func (s *Service) DeleteAllWithConfirmation(ctx context.Context) (bool, error) {
	users, err := s.ListAll(ctx)
	if err != nil {
		return false, err
	}
	s.logger.Infow("deleting all remote users with confirmation", "count", len(users))
	for _, u := range users {
		if err := s.DeleteAndConfirm(ctx, u.UserID); err != nil {
			return false, err
		}
	}
	remaining, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	s.logger.Infow("users remaining after delete", "count", remaining)
	return remaining == 0, nil
}

// CreateAndConfirm creates one user and polls until it can be read back.
func (s *Service) CreateAndConfirm(ctx context.Context, o entity.UserOverrides) (entity.SeededUser, error) {
	created, err := s.CreateManyAndConfirm(ctx, 1, o)
	if err != nil {
		return entity.SeededUser{}, err
	}
	return created[0], nil
}

// CreateManyAndConfirm creates n users then polls until every one of them can
// be read back.
func (s *Service) CreateManyAndConfirm(ctx context.Context, n int, o entity.UserOverrides) ([]entity.SeededUser, error) {
	created, err := s.CreateMany(ctx, n, o)
	if err != nil {
		return created, err
	}
	pending := make(map[string]struct{}, len(created))
	for _, u := range created {
		pending[u.UserID] = struct{}{}
	}
	var lastErr error
	ok := s.poller.With(s.cfg.ConfirmInterval, s.cfg.ConfirmTimeout).Until(ctx, func(ctx context.Context) bool {
		lastErr = nil
		for id := range pending {
			_, err := s.dir.GetUser(ctx, id)
			switch {
			case err == nil:
				delete(pending, id)
			case management.IsNotFound(err):
			default:
				s.logger.Warnw("confirm create read failed, retrying", "user_id", id, "err", err)
				lastErr = err
			}
		}
		return len(pending) == 0
	})
	if !ok {
		return created, &ReconciliationTimeout{
			Operation:    "confirm users created",
			Desired:      len(created),
			LastObserved: len(created) - len(pending),
			LastErr:      lastErr,
		}
	}
	s.logger.Infow("confirmed created users", "count", len(created))
	return created, nil
}

// PauseAndConfirmCount waits for pause and then polls for desired users on
// the pause interval and timeout.
func (s *Service) PauseAndConfirmCount(ctx context.Context, pause time.Duration, desired int) error {
	clock := s.poller.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s.logger.Infow("pausing before count confirmation", "pause", pause.String(), "desired", desired)
	if pause > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(pause):
		}
	}
	return s.AwaitCount(ctx, desired, s.cfg.PauseInterval, s.cfg.PauseTimeout)
}

// Mirror copies every remote user into store and returns how many were written.
func (s *Service) Mirror(ctx context.Context, store LocalStore) (int, error) {
	n := 0
	for u, err := range s.Users(ctx) {
		if err != nil {
			return n, err
		}
		if err := store.Upsert(ctx, u); err != nil {
			return n, fmt.Errorf("mirror user %s: %w", u.UserID, err)
		}
		n++
	}
	s.logger.Infow("mirrored remote users", "count", n)
	return n, nil
}

// PurgeLocal deletes every local record. Test-support cleanup only.
func (s *Service) PurgeLocal(ctx context.Context, store LocalStore) (int64, error) {
	n, err := store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Infow("purged local user records", "count", n)
	return n, nil
}
