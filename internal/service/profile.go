package service

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/and161185/imagefeed/internal/convert"
	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/httpclient"
	"github.com/and161185/imagefeed/internal/loop"
	"github.com/and161185/imagefeed/internal/model"
	"github.com/and161185/imagefeed/internal/wire"
)

const profilePath = "/me"

// ProfileStore fetches and caches the signed-in user's profile.
type ProfileStore struct {
	loop   loop.Poster
	client *httpclient.Client
	log    *zap.Logger

	profile atomic.Pointer[model.Profile]

	// loop-owned
	fetchedFor string // token of the last successful fetch
	call       *httpclient.Call
}

// NewProfileStore constructs an empty store.
func NewProfileStore(lp loop.Poster, client *httpclient.Client, log *zap.Logger) *ProfileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileStore{loop: lp, client: client, log: log}
}

// Fetch loads the profile visible to token.
//
// If the cached profile was fetched with the same token, Fetch does nothing
// and done is not called. Otherwise an in-flight fetch is superseded and its
// callback dropped.
func (p *ProfileStore) Fetch(token string, done func(model.Profile, error)) {
	onLoop(p.loop, func() { p.fetch(token, done) }, func(err error) { finish(done, model.Profile{}, err) })
}

func (p *ProfileStore) fetch(token string, done func(model.Profile, error)) {
	if token == "" {
		finish(done, model.Profile{}, fmt.Errorf("fetch profile: %w", errs.ErrUnauthorized))
		return
	}
	if token == p.fetchedFor {
		return
	}

	p.call.Cancel()
	p.fetchedFor = ""

	var call *httpclient.Call
	call = httpclient.Fetch(p.client, httpclient.Request{Path: profilePath, Bearer: token},
		func(rec wire.ProfileRecord, err error) {
			if p.call == call {
				p.call = nil
			}
			if err != nil {
				p.log.Warn("profile fetch failed", zap.Error(err))
				finish(done, model.Profile{}, fmt.Errorf("fetch profile: %w", err))
				return
			}
			prof := convert.Profile(rec)
			p.profile.Store(&prof)
			p.fetchedFor = token
			finish(done, prof, nil)
		})
	p.call = call
}

// Profile returns the cached profile. Safe from any goroutine.
func (p *ProfileStore) Profile() (model.Profile, bool) {
	prof := p.profile.Load()
	if prof == nil {
		return model.Profile{}, false
	}
	return *prof, true
}

// Reset drops the cached profile and abandons a fetch in flight.
func (p *ProfileStore) Reset() {
	onLoop(p.loop, func() {
		p.call.Cancel()
		p.call = nil
		p.fetchedFor = ""
		p.profile.Store(nil)
	}, nil)
}
