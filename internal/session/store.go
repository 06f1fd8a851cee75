// Package session holds the Token Store: the single owner of the persisted
// session record {token, role, email} of one browser session.
package session

import (
	"context"
	"errors"
	"log"

	"github.com/ghassenk/jewelstore/internal/models"
	"github.com/ghassenk/jewelstore/internal/token"
)

// Persisted keys of the session record.
const (
	KeyToken = "authToken"
	KeyRole  = "role"
	KeyEmail = "email"
)

var ErrEmptyToken = errors.New("session token is empty")

// Record is the persisted session triple.
type Record struct {
	Token string      `json:"-"`
	Role  models.Role `json:"role"`
	Email string      `json:"email"`
}

// Store is the injectable session service consumed by the challenge machine,
// the auth context and the route guards.
type Store interface {
	Login(ctx context.Context, rec Record) error
	Logout(ctx context.Context) error
	// CurrentRole decodes the role claim of the stored token. It returns false
	// when no token is stored or the token cannot be decoded.
	CurrentRole(ctx context.Context) (models.Role, bool)
	IsAuthenticated(ctx context.Context) bool
	Current(ctx context.Context) (Record, bool)
}

// TokenStore implements Store on top of a Storage scope.
type TokenStore struct {
	storage Storage
	logger  *log.Logger
}

var _ Store = (*TokenStore)(nil)

// NewTokenStore creates a Token Store over storage.
func NewTokenStore(storage Storage, logger *log.Logger) *TokenStore {
	if logger == nil {
		logger = log.Default()
	}
	return &TokenStore{storage: storage, logger: logger}
}

// Login persists the record in a single overwrite of all three keys.
func (s *TokenStore) Login(ctx context.Context, rec Record) error {
	if rec.Token == "" {
		return ErrEmptyToken
	}
	return s.storage.SetAll(ctx, map[string]string{
		KeyToken: rec.Token,
		KeyRole:  string(rec.Role),
		KeyEmail: rec.Email,
	})
}

// Logout clears every key of the session in one operation.
func (s *TokenStore) Logout(ctx context.Context) error {
	return s.storage.Clear(ctx)
}

func (s *TokenStore) CurrentRole(ctx context.Context) (models.Role, bool) {
	tok := s.Token(ctx)
	if tok == "" {
		return "", false
	}
	role, err := token.DecodeRole(tok)
	if err != nil {
		s.logger.Printf("WARN: decode stored token: %v", err)
		return "", false
	}
	return role, true
}

func (s *TokenStore) IsAuthenticated(ctx context.Context) bool {
	return s.Token(ctx) != ""
}

func (s *TokenStore) Current(ctx context.Context) (Record, bool) {
	tok := s.Token(ctx)
	if tok == "" {
		return Record{}, false
	}
	rec := Record{Token: tok}
	if role, ok := s.get(ctx, KeyRole); ok {
		rec.Role = models.Role(role)
	}
	if email, ok := s.get(ctx, KeyEmail); ok {
		rec.Email = email
	}
	return rec, true
}

// Token returns the stored token, or "" when there is none.
func (s *TokenStore) Token(ctx context.Context) string {
	tok, _ := s.get(ctx, KeyToken)
	return tok
}

// Watch forwards change events from other handles on the same session.
// Storages that cannot observe other handles return a no-op stop func.
func (s *TokenStore) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	w, ok := s.storage.(Watcher)
	if !ok {
		return func() {}, nil
	}
	return w.Watch(ctx, fn)
}

func (s *TokenStore) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		s.logger.Printf("ERROR: read session key %s: %v", key, err)
		return "", false
	}
	return v, ok
}
