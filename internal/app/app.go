// Package app assembles the client: the loop, the token store, the HTTP
// clients and the services sharing them.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/imagefeed/internal/config"
	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/events"
	"github.com/and161185/imagefeed/internal/httpclient"
	"github.com/and161185/imagefeed/internal/limiter"
	"github.com/and161185/imagefeed/internal/loop"
	"github.com/and161185/imagefeed/internal/migrate"
	"github.com/and161185/imagefeed/internal/model"
	"github.com/and161185/imagefeed/internal/repository/postgres"
	"github.com/and161185/imagefeed/internal/service"
	"github.com/and161185/imagefeed/internal/tokenstore"
)

// App is a fully wired client.
type App struct {
	Loop    *loop.Loop
	Tokens  *tokenstore.Store
	Bus     *events.Bus
	Auth    *service.AuthSession
	Profile *service.ProfileStore
	Avatar  *service.AvatarResolver
	Feed    *service.FeedStore

	api      *httpclient.Client
	authz    *httpclient.Client
	log      *zap.Logger
	closeFns []func()
}

type options struct {
	doer      httpclient.Doer
	persister tokenstore.Persister
	limiter   limiter.Limiter
}

// Option customizes New.
type Option func(*options)

// WithDoer replaces the HTTP transport of both clients.
func WithDoer(d httpclient.Doer) Option { return func(o *options) { o.doer = d } }

// WithPersister overrides the persister selected from the configuration.
func WithPersister(p tokenstore.Persister) Option { return func(o *options) { o.persister = p } }

// WithLimiter overrides the API rate limiter.
func WithLimiter(l limiter.Limiter) Option { return func(o *options) { o.limiter = l } }

// New wires the client and restores a persisted token. The loop is not
// started; call Run.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	a := &App{log: log, Bus: events.NewBus()}

	p := o.persister
	if p == nil {
		var err error
		if p, err = a.openPersister(ctx, cfg.Store); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Tokens = tokenstore.New(p, log.Named("tokens"))
	a.closeFns = append(a.closeFns, a.Tokens.Close)
	if err := a.Tokens.Restore(ctx); err != nil {
		log.Warn("restore token", zap.Error(err))
	}

	a.Loop = loop.New(log.Named("loop"))

	lim := o.limiter
	if lim == nil {
		lim = limiter.PerHour(cfg.API.RatePerHour)
	}
	common := []httpclient.Option{
		httpclient.WithLogger(log.Named("http")),
		httpclient.WithTimeout(cfg.API.Timeout),
	}
	if o.doer != nil {
		common = append(common, httpclient.WithDoer(o.doer))
	}

	api, err := httpclient.New(cfg.API.BaseURL, a.Tokens, a.Loop, append(common, httpclient.WithLimiter(lim))...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("api client: %w", err)
	}
	authz, err := httpclient.New(cfg.OAuth.AuthURL, nil, a.Loop, common...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("auth client: %w", err)
	}
	a.api, a.authz = api, authz

	a.Auth = service.NewAuthSession(a.Loop, authz, a.Tokens, cfg.OAuth, log.Named("auth"))
	a.Profile = service.NewProfileStore(a.Loop, api, log.Named("profile"))
	a.Avatar = service.NewAvatarResolver(a.Loop, api, a.Tokens, a.Bus, log.Named("avatar"))
	a.Feed = service.NewFeedStore(a.Loop, api, a.Bus, cfg.Feed.PerPage, log.Named("feed"))
	return a, nil
}

func (a *App) openPersister(ctx context.Context, sc config.StoreConfig) (tokenstore.Persister, error) {
	if sc.DSN == "" {
		path := sc.TokenFile
		if path == "" {
			path = tokenstore.DefaultPath()
		}
		a.log.Debug("token file", zap.String("path", path), zap.Bool("encrypted", sc.Passphrase != ""))
		return tokenstore.NewFile(path, sc.Passphrase), nil
	}

	if err := migrate.Up(ctx, sc.DSN); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := postgres.New(ctx, sc.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.closeFns = append(a.closeFns, db.Close)
	return postgres.NewCredentialsRepo(db, postgres.DefaultSlot), nil
}

// Run drives the loop until ctx is done.
func (a *App) Run(ctx context.Context) error { return a.Loop.Run(ctx) }

// Wait blocks until every request started so far has been delivered. Flush
// the loop first so requests posted before the call have started.
func (a *App) Wait() {
	a.api.Wait()
	a.authz.Wait()
}

// Close persists the latest token state and releases storage resources.
// Call it after Run has returned.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// Bootstrap loads the signed-in user's profile and then their avatar. done
// receives the profile once both steps settled; an avatar failure is logged
// and does not fail the bootstrap. Without a token done gets
// errs.ErrUnauthorized.
func (a *App) Bootstrap(done func(model.Profile, error)) {
	token, ok := a.Tokens.Get()
	if !ok {
		done(model.Profile{}, errs.ErrUnauthorized)
		return
	}
	a.Profile.Reset()
	a.Profile.Fetch(token, func(p model.Profile, err error) {
		if err != nil {
			done(model.Profile{}, err)
			return
		}
		a.Avatar.Fetch(p.Username, func(_ string, err error) {
			if err != nil {
				a.log.Warn("avatar unavailable", zap.String("username", p.Username), zap.Error(err))
			}
			done(p, nil)
		})
	})
}

// Logout forgets the token and every cached user-specific state. done runs
// on the loop once everything has been reset.
func (a *App) Logout(done func()) {
	a.Auth.SignOut(nil)
	a.Profile.Reset()
	a.Avatar.Reset()
	a.Feed.Reset()
	if done == nil {
		return
	}
	if !a.Loop.Post(done) {
		done()
	}
}
