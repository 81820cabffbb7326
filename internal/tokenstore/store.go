// Package tokenstore keeps the single bearer token used by the client.
//
// The current token lives in memory behind an atomic pointer, so reads are
// safe from any goroutine. Writes reach the optional Persister from a
// background writer, so Set and Clear never wait on storage. When writes pile
// up only the latest state is persisted. Persistence failures are logged;
// they never fail Set or Clear.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/model"
)

const persistTimeout = 5 * time.Second

// Persister stores credentials across process restarts.
type Persister interface {
	// Load returns the stored credentials or errs.ErrNotFound.
	Load(ctx context.Context) (model.Credentials, error)
	// Save replaces the stored credentials.
	Save(ctx context.Context, c model.Credentials) error
	// Clear removes stored credentials. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// write is a pending persister update. A nil c means Clear.
type write struct {
	c   *model.Credentials
	seq uint64
}

// Store is the process-wide token holder.
type Store struct {
	cur atomic.Pointer[model.Credentials]
	p   Persister
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	pending  *write
	queued   uint64 // seq of the latest write handed to the writer
	written  uint64 // seq of the latest write the writer finished
	progress chan struct{}
	kick     chan struct{}
	quit     chan struct{}
	stopped  chan struct{}
	closing  sync.Once
}

// New constructs a store. p may be nil for a memory-only store. A store with
// a persister runs a writer goroutine until Close.
func New(p Persister, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		p:        p,
		log:      log,
		now:      time.Now,
		progress: make(chan struct{}),
		kick:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if p == nil {
		close(s.stopped)
		return s
	}
	go s.writer()
	return s
}

// Restore loads persisted credentials. Expired credentials are discarded and
// removed from the persister. A missing record is not an error.
func (s *Store) Restore(ctx context.Context) error {
	if s.p == nil {
		return nil
	}
	c, err := s.p.Load(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if !c.Valid(s.now()) {
		s.log.Info("stored token expired", zap.Time("expires_at", c.ExpiresAt))
		if err := s.p.Clear(ctx); err != nil {
			s.log.Warn("clear expired credentials", zap.Error(err))
		}
		return nil
	}
	s.cur.Store(&c)
	return nil
}

// Get returns the current token if one is set and not expired.
func (s *Store) Get() (string, bool) {
	c, ok := s.Credentials()
	if !ok {
		return "", false
	}
	return c.AccessToken, true
}

// Credentials returns the current credentials if they are still valid.
func (s *Store) Credentials() (model.Credentials, bool) {
	c := s.cur.Load()
	if c == nil || !c.Valid(s.now()) {
		return model.Credentials{}, false
	}
	return *c, true
}

// Set stores token, taking its expiry from the token itself when it is a JWT.
func (s *Store) Set(token string) {
	s.SetCredentials(model.Credentials{AccessToken: token, ExpiresAt: ExpiryOf(token)})
}

// SetCredentials stores c. Last writer wins.
func (s *Store) SetCredentials(c model.Credentials) {
	s.cur.Store(&c)
	s.enqueue(&c)
}

// Clear forgets the token in memory and in the persister.
func (s *Store) Clear() {
	s.cur.Store(nil)
	s.enqueue(nil)
}

func (s *Store) enqueue(c *model.Credentials) {
	if s.p == nil {
		return
	}
	s.mu.Lock()
	s.queued++
	s.pending = &write{c: c, seq: s.queued}
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Sync waits until every write made before the call has reached the
// persister, successfully or not.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	target := s.queued
	s.mu.Unlock()
	for {
		s.mu.Lock()
		if s.written >= target {
			s.mu.Unlock()
			return nil
		}
		ch := s.progress
		s.mu.Unlock()

		select {
		case <-ch:
		case <-s.stopped:
			s.mu.Lock()
			done := s.written >= target
			s.mu.Unlock()
			if !done {
				return errors.New("token store closed")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close persists the latest pending write and stops the writer. Writes made
// after Close stay in memory only.
func (s *Store) Close() {
	if s.p == nil {
		return
	}
	s.closing.Do(func() { close(s.quit) })
	<-s.stopped
}

func (s *Store) writer() {
	defer close(s.stopped)
	for {
		select {
		case <-s.kick:
			s.flushPending()
		case <-s.quit:
			s.flushPending()
			return
		}
	}
}

func (s *Store) flushPending() {
	s.mu.Lock()
	w := s.pending
	s.pending = nil
	s.mu.Unlock()
	if w == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if w.c != nil {
		if err := s.p.Save(ctx, *w.c); err != nil {
			s.log.Warn("persist credentials", zap.Error(err))
		}
	} else if err := s.p.Clear(ctx); err != nil {
		s.log.Warn("clear persisted credentials", zap.Error(err))
	}

	s.mu.Lock()
	s.written = w.seq
	close(s.progress)
	s.progress = make(chan struct{})
	s.mu.Unlock()
}

// ExpiryOf returns the exp claim of a JWT-shaped token without verifying it.
// Opaque tokens, and JWTs without exp, yield the zero time.
func ExpiryOf(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
