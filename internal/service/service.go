// Package service contains the client's stateful services: the OAuth2 code
// exchange, the profile and avatar caches, and the photo feed.
//
// Every service owns its state on the loop. Public methods only post work to
// the loop and return; callbacks are invoked on the loop. A callback may be
// nil when the caller does not care about the outcome.
package service

import (
	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/loop"
	"github.com/and161185/imagefeed/internal/model"
)

// TokenStore is the bearer token holder shared by the services.
type TokenStore interface {
	Get() (string, bool)
	SetCredentials(c model.Credentials)
	Clear()
}

// onLoop posts fn. If the loop has stopped, fail is called on the caller's
// goroutine with errs.ErrStopped.
func onLoop(lp loop.Poster, fn func(), fail func(error)) {
	if lp.Post(fn) {
		return
	}
	if fail != nil {
		fail(errs.ErrStopped)
	}
}
