package session

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghassenk/jewelstore/internal/models"
	"github.com/ghassenk/jewelstore/internal/token"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func signedToken(t *testing.T, role models.Role) string {
	t.Helper()
	signed, _, err := token.NewIssuer("test-secret", time.Hour).Issue(&models.User{ID: "u-1", Email: "a@b.com", Role: role})
	require.NoError(t, err)
	return signed
}

func TestTokenStore_LoginPersistsRecord(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewTokenStore(storage, quietLogger())

	tok := signedToken(t, models.RoleAdmin)
	require.NoError(t, store.Login(ctx, Record{Token: tok, Role: models.RoleAdmin, Email: "a@b.com"}))

	assert.True(t, store.IsAuthenticated(ctx))
	role, ok := store.CurrentRole(ctx)
	assert.True(t, ok)
	assert.Equal(t, models.RoleAdmin, role)

	rec, ok := store.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, tok, rec.Token)
	assert.Equal(t, "a@b.com", rec.Email)
	assert.Equal(t, 3, storage.Len())
}

func TestTokenStore_LoginRejectsEmptyToken(t *testing.T) {
	store := NewTokenStore(NewMemoryStorage(), quietLogger())
	err := store.Login(context.Background(), Record{Role: models.RoleUser})
	assert.ErrorIs(t, err, ErrEmptyToken)
	assert.False(t, store.IsAuthenticated(context.Background()))
}

func TestTokenStore_LogoutClearsAllKeys(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewTokenStore(storage, quietLogger())

	require.NoError(t, store.Login(ctx, Record{Token: signedToken(t, models.RoleUser), Role: models.RoleUser, Email: "a@b.com"}))
	require.NoError(t, store.Logout(ctx))

	assert.Equal(t, 0, storage.Len())
	assert.False(t, store.IsAuthenticated(ctx))
	_, ok := store.CurrentRole(ctx)
	assert.False(t, ok)
}

func TestTokenStore_CurrentRoleSwallowsDecodeFailure(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore(NewMemoryStorage(), quietLogger())
	require.NoError(t, store.Login(ctx, Record{Token: "garbage", Role: models.RoleAdmin}))

	role, ok := store.CurrentRole(ctx)
	assert.False(t, ok)
	assert.Empty(t, role)
	// The token is still present, so the session counts as authenticated.
	assert.True(t, store.IsAuthenticated(ctx))
}

type failingStorage struct{}

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("boom")
}
func (failingStorage) SetAll(context.Context, map[string]string) error { return errors.New("boom") }
func (failingStorage) Clear(context.Context) error                     { return errors.New("boom") }

func TestTokenStore_ReadErrorsMeanUnauthenticated(t *testing.T) {
	store := NewTokenStore(failingStorage{}, quietLogger())
	assert.False(t, store.IsAuthenticated(context.Background()))
	_, ok := store.Current(context.Background())
	assert.False(t, ok)
}

func TestTokenStore_WatchWithoutWatcherIsNoop(t *testing.T) {
	store := NewTokenStore(NewMemoryStorage(), quietLogger())
	stop, err := store.Watch(context.Background(), func(Change) { t.Fatal("unexpected change") })
	require.NoError(t, err)
	stop()
}
