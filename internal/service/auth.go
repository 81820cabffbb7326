package service

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/and161185/imagefeed/internal/config"
	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/httpclient"
	"github.com/and161185/imagefeed/internal/loop"
	"github.com/and161185/imagefeed/internal/model"
	"github.com/and161185/imagefeed/internal/tokenstore"
	"github.com/and161185/imagefeed/internal/wire"
)

const (
	authorizePath = "/oauth/authorize"
	tokenPath     = "/oauth/token"

	// NativeRedirectPath is where the authorization server lands out-of-band redirects.
	NativeRedirectPath = "/oauth/authorize/native"
)

// ErrEmptyCode is returned for an empty authorization code.
var ErrEmptyCode = errors.New("empty authorization code")

// AuthSession exchanges authorization codes for access tokens.
type AuthSession struct {
	loop   loop.Poster
	client *httpclient.Client
	tokens TokenStore
	oauth  oauth2.Config
	log    *zap.Logger

	// loop-owned
	lastCode string
	pending  *httpclient.Call
}

// NewAuthSession constructs the session. client must target the authorization server.
func NewAuthSession(lp loop.Poster, client *httpclient.Client, tokens TokenStore, cfg config.OAuthConfig, log *zap.Logger) *AuthSession {
	if log == nil {
		log = zap.NewNop()
	}
	base := strings.TrimRight(cfg.AuthURL, "/")
	return &AuthSession{
		loop:   lp,
		client: client,
		tokens: tokens,
		log:    log,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + authorizePath,
				TokenURL: base + tokenPath,
			},
		},
	}
}

// AuthorizeURL is the page where the user grants access and receives a code.
func (s *AuthSession) AuthorizeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// ExchangeCode trades code for an access token and stores it.
//
// Re-submitting the code of the last exchange while a token is held fails
// with errs.ErrDuplicateRequest without contacting the server: codes are
// single-use. Any other call supersedes an exchange still in flight.
func (s *AuthSession) ExchangeCode(code string, done func(token string, err error)) {
	onLoop(s.loop, func() { s.exchange(code, done) }, func(err error) { finish(done, "", err) })
}

func (s *AuthSession) exchange(code string, done func(string, error)) {
	if code == "" {
		finish(done, "", ErrEmptyCode)
		return
	}
	if code == s.lastCode {
		if _, ok := s.tokens.Get(); ok {
			s.log.Info("authorization code already exchanged")
			finish(done, "", fmt.Errorf("exchange code: %w", errs.ErrDuplicateRequest))
			return
		}
	}

	s.pending.Cancel()
	s.lastCode = code

	q := url.Values{
		"client_id":     {s.oauth.ClientID},
		"client_secret": {s.oauth.ClientSecret},
		"redirect_uri":  {s.oauth.RedirectURL},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	}
	var call *httpclient.Call
	call = httpclient.Fetch(s.client, httpclient.Request{Method: http.MethodPost, Path: tokenPath, Query: q},
		func(resp wire.TokenResponse, err error) {
			if s.pending == call {
				s.pending = nil
			}
			if err == nil && resp.AccessToken == "" {
				err = &httpclient.DecodingError{Err: errors.New("missing access_token")}
			}
			if err != nil {
				s.lastCode = ""
				s.log.Warn("code exchange failed", zap.Error(err))
				finish(done, "", fmt.Errorf("exchange code: %w", err))
				return
			}
			s.tokens.SetCredentials(credentialsFrom(resp))
			s.log.Info("signed in", zap.String("token_type", resp.TokenType), zap.String("scope", resp.Scope))
			finish(done, resp.AccessToken, nil)
		})
	s.pending = call
}

// SignOut abandons any exchange in flight and forgets the token.
func (s *AuthSession) SignOut(done func()) {
	onLoop(s.loop, func() {
		s.pending.Cancel()
		s.pending = nil
		s.lastCode = ""
		s.tokens.Clear()
		if done != nil {
			done()
		}
	}, func(error) {
		s.tokens.Clear()
		if done != nil {
			done()
		}
	})
}

// CodeFromRedirect extracts the authorization code from the out-of-band
// redirect URL. Any other URL yields false.
func CodeFromRedirect(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Path != NativeRedirectPath {
		return "", false
	}
	code := u.Query().Get("code")
	return code, code != ""
}

func credentialsFrom(resp wire.TokenResponse) model.Credentials {
	c := model.Credentials{AccessToken: resp.AccessToken}
	if resp.ExpiresIn > 0 {
		issued := time.Now()
		if resp.CreatedAt > 0 {
			issued = time.Unix(resp.CreatedAt, 0)
		}
		c.ExpiresAt = issued.Add(time.Duration(resp.ExpiresIn) * time.Second)
		return c
	}
	c.ExpiresAt = tokenstore.ExpiryOf(resp.AccessToken)
	return c
}

func finish[T any](done func(T, error), v T, err error) {
	if done != nil {
		done(v, err)
	}
}
