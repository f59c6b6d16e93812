package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	DefaultOAuthURL = "https://oauth.ring.com/oauth/token"
	oauthClientID   = "ring_official_android"
	oauthScope      = "client"
)

// ErrNoCredentials is returned when neither a stored token, a refresh
// token nor a username/password pair is available.
var ErrNoCredentials = errors.New("no credentials available")

// TokenStore persists OAuth tokens as JSON.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore returns a store backed by path. An empty path disables persistence.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load reads the stored token.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	if s.path == "" {
		return nil, os.ErrNotExist
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return &tok, nil
}

// Save writes tok, replacing any stored token.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// Credentials are the ways a session can be bootstrapped, tried in order:
// stored token, refresh token, username and password.
type Credentials struct {
	RefreshToken string
	Username     string
	Password     string
}

// Authenticator produces http clients that attach and refresh OAuth tokens.
type Authenticator struct {
	config *oauth2.Config
	store  *TokenStore
	log    logrus.FieldLogger
}

// NewAuthenticator creates an authenticator against tokenURL.
func NewAuthenticator(tokenURL string, store *TokenStore) *Authenticator {
	if tokenURL == "" {
		tokenURL = DefaultOAuthURL
	}
	return &Authenticator{
		config: &oauth2.Config{
			ClientID: oauthClientID,
			Scopes:   []string{oauthScope},
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store: store,
		log:   logrus.WithField("module", "auth"),
	}
}

// Token returns the initial token from the store or the credentials.
func (a *Authenticator) Token(ctx context.Context, creds Credentials) (*oauth2.Token, error) {
	if tok, err := a.store.Load(); err == nil && tok.RefreshToken != "" {
		a.log.Debug("using stored token")
		return tok, nil
	}
	if creds.RefreshToken != "" {
		// expired on purpose so the first request refreshes it
		return &oauth2.Token{RefreshToken: creds.RefreshToken}, nil
	}
	if creds.Username != "" && creds.Password != "" {
		tok, err := a.config.PasswordCredentialsToken(ctx, creds.Username, creds.Password)
		if err != nil {
			return nil, fmt.Errorf("password login: %w", err)
		}
		if err := a.store.Save(tok); err != nil {
			a.log.WithError(err).Warn("failed to persist token")
		}
		return tok, nil
	}
	return nil, ErrNoCredentials
}

// Client returns an http client that refreshes tok as needed and
// persists every new token.
func (a *Authenticator) Client(ctx context.Context, tok *oauth2.Token) *http.Client {
	src := &persistingTokenSource{
		base:  a.config.TokenSource(ctx, tok),
		store: a.store,
		last:  tok.AccessToken,
		log:   a.log,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src))
}

type persistingTokenSource struct {
	base  oauth2.TokenSource
	store *TokenStore
	log   logrus.FieldLogger

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		p.log.Debug("token refreshed")
		if err := p.store.Save(tok); err != nil {
			p.log.WithError(err).Warn("failed to persist refreshed token")
		}
	}
	return tok, nil
}
