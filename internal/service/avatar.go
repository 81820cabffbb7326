package service

import (
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/events"
	"github.com/and161185/imagefeed/internal/httpclient"
	"github.com/and161185/imagefeed/internal/loop"
	"github.com/and161185/imagefeed/internal/wire"
)

// ErrEmptyUsername is returned when resolving an avatar without a username.
var ErrEmptyUsername = errors.New("empty username")

// AvatarResolver resolves the large avatar URL of a user.
type AvatarResolver struct {
	loop   loop.Poster
	client *httpclient.Client
	tokens httpclient.TokenSource
	bus    *events.Bus
	log    *zap.Logger

	url atomic.Pointer[string]

	// loop-owned
	call *httpclient.Call
}

// NewAvatarResolver constructs a resolver publishing to bus.
func NewAvatarResolver(lp loop.Poster, client *httpclient.Client, tokens httpclient.TokenSource, bus *events.Bus, log *zap.Logger) *AvatarResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &AvatarResolver{loop: lp, client: client, tokens: tokens, bus: bus, log: log}
}

// Fetch resolves username's avatar. Every call supersedes the previous one.
// On success the URL is cached and a ProfileImageChanged event is published.
func (a *AvatarResolver) Fetch(username string, done func(string, error)) {
	onLoop(a.loop, func() { a.fetch(username, done) }, func(err error) { finish(done, "", err) })
}

func (a *AvatarResolver) fetch(username string, done func(string, error)) {
	a.call.Cancel()
	a.call = nil

	if username == "" {
		finish(done, "", ErrEmptyUsername)
		return
	}
	if _, ok := a.tokens.Get(); !ok {
		finish(done, "", fmt.Errorf("fetch avatar: %w", errs.ErrUnauthorized))
		return
	}

	var call *httpclient.Call
	call = httpclient.Fetch(a.client, httpclient.Request{Path: "/users/" + url.PathEscape(username)},
		func(rec wire.UserRecord, err error) {
			if a.call == call {
				a.call = nil
			}
			if err != nil {
				a.log.Warn("avatar fetch failed", zap.String("username", username), zap.Error(err))
				finish(done, "", fmt.Errorf("fetch avatar: %w", err))
				return
			}
			u := rec.ProfileImage.Large
			a.url.Store(&u)
			finish(done, u, nil)
			a.bus.ProfileImageChanged.Publish(events.ProfileImageChanged{URL: u})
		})
	a.call = call
}

// URL returns the cached avatar URL. Safe from any goroutine.
func (a *AvatarResolver) URL() (string, bool) {
	u := a.url.Load()
	if u == nil {
		return "", false
	}
	return *u, true
}

// Reset drops the cached URL and abandons a fetch in flight.
func (a *AvatarResolver) Reset() {
	onLoop(a.loop, func() {
		a.call.Cancel()
		a.call = nil
		a.url.Store(nil)
	}, nil)
}
