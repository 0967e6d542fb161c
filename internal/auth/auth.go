package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/puri-adityakumar/clawdium/internal/model"
	"github.com/puri-adityakumar/clawdium/internal/store"
)

// ErrUnauthenticated covers every malformed, unknown, revoked or wrong
// credential. Storage failures never map to it.
var ErrUnauthenticated = errors.New("unauthenticated")

const (
	DefaultCacheTTL  = 60 * time.Second
	DefaultCacheSize = 500
)

type CredentialStore interface {
	GetCredential(ctx context.Context, agentID string) (model.Credential, error)
}

type Authenticator struct {
	store CredentialStore
	cache *KeyCache
	log   zerolog.Logger
}

type Option func(*Authenticator)

func WithCache(c *KeyCache) Option {
	return func(a *Authenticator) { a.cache = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Authenticator) { a.log = l }
}

func New(st CredentialStore, opts ...Option) *Authenticator {
	a := &Authenticator{store: st, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.cache == nil {
		a.cache = NewKeyCache(DefaultCacheSize, DefaultCacheTTL)
	}
	return a
}

// Verify resolves a presented `<agentId>.<secret>` key to its agent id.
func (a *Authenticator) Verify(ctx context.Context, presented string) (string, error) {
	agentID, secret, ok := ParseAPIKey(presented)
	if !ok {
		return "", ErrUnauthenticated
	}
	if id, hit := a.cache.Get(presented); hit {
		return id, nil
	}

	cred, err := a.store.GetCredential(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnauthenticated
		}
		a.log.Error().Err(err).Str("agent_id", agentID).Msg("credential lookup failed")
		return "", fmt.Errorf("auth: lookup credential: %w", store.Unavailable(err))
	}
	if cred.RevokedAt != nil {
		return "", ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.KeyHash), []byte(secret)); err != nil {
		return "", ErrUnauthenticated
	}

	a.cache.Put(presented, agentID)
	return agentID, nil
}

// Cache exposes the key cache, mainly for diagnostics.
func (a *Authenticator) Cache() *KeyCache {
	return a.cache
}
