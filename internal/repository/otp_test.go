package repository

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghassenk/jewelstore/internal/models"
)

func newTestOTPStore(t *testing.T, resend time.Duration) (*OTPStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewOTPStore(client, 10*time.Minute, resend, 5), mr
}

func TestOTPStore_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestOTPStore(t, 0)

	code, exp, err := s.Issue(ctx, models.PurposeUserLogin, "a@b.com")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)

	key := otpKey(models.PurposeUserLogin, "a@b.com")
	assert.NotEqual(t, code, mr.HGet(key, "hash"), "code is stored hashed")
	assert.Equal(t, 10*time.Minute, mr.TTL(key))

	// Scoped by purpose.
	assert.ErrorIs(t, s.Verify(ctx, models.PurposeAdminLogin, "a@b.com", code), ErrOTPNotFound)

	require.NoError(t, s.Verify(ctx, models.PurposeUserLogin, "a@b.com", code))
	assert.ErrorIs(t, s.Verify(ctx, models.PurposeUserLogin, "a@b.com", code), ErrOTPNotFound, "codes are single use")
}

func TestOTPStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestOTPStore(t, 0)

	code, _, err := s.Issue(ctx, models.PurposeUserLogin, "a@b.com")
	require.NoError(t, err)
	mr.FastForward(11 * time.Minute)
	assert.ErrorIs(t, s.Verify(ctx, models.PurposeUserLogin, "a@b.com", code), ErrOTPNotFound)
}

func TestOTPStore_TooManyAttempts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestOTPStore(t, 0)

	code, _, err := s.Issue(ctx, models.PurposeAdminLogin, "a@b.com")
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, s.Verify(ctx, models.PurposeAdminLogin, "a@b.com", wrong), ErrInvalidOTP)
	}
	assert.ErrorIs(t, s.Verify(ctx, models.PurposeAdminLogin, "a@b.com", wrong), ErrTooManyOTPAttempts)
	assert.ErrorIs(t, s.Verify(ctx, models.PurposeAdminLogin, "a@b.com", code), ErrOTPNotFound)
}

func TestOTPStore_ResendThrottle(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestOTPStore(t, 30*time.Second)

	first, _, err := s.Issue(ctx, models.PurposeUserLogin, "a@b.com")
	require.NoError(t, err)

	_, _, err = s.Issue(ctx, models.PurposeUserLogin, "a@b.com")
	assert.ErrorIs(t, err, ErrResendTooSoon)

	// Other identities are unaffected.
	_, _, err = s.Issue(ctx, models.PurposeUserLogin, "c@d.com")
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)
	second, _, err := s.Issue(ctx, models.PurposeUserLogin, "a@b.com")
	require.NoError(t, err)
	if first != second {
		assert.ErrorIs(t, s.Verify(ctx, models.PurposeUserLogin, "a@b.com", first), ErrInvalidOTP, "a new code replaces the old one")
	}
	require.NoError(t, s.Verify(ctx, models.PurposeUserLogin, "a@b.com", second))
}

func TestOTPStore_Blacklist(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestOTPStore(t, 0)

	ok, err := s.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Blacklist(ctx, "jti-1", time.Minute))
	ok, _ = s.IsBlacklisted(ctx, "jti-1")
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, _ = s.IsBlacklisted(ctx, "jti-1")
	assert.False(t, ok)

	require.NoError(t, s.Blacklist(ctx, "jti-2", 0))
	ok, _ = s.IsBlacklisted(ctx, "jti-2")
	assert.False(t, ok)
}

func TestOTPStore_ConcurrentVerifySucceedsOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestOTPStore(t, 0)
	code, _, err := s.Issue(ctx, models.PurposeAdminLogin, "a@b.com")
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	var start, wg sync.WaitGroup
	start.Add(1)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			errs <- s.Verify(ctx, models.PurposeAdminLogin, "a@b.com", code)
		}()
	}
	start.Done()
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrOTPNotFound)
	}
	assert.Equal(t, 1, ok)
}

func TestOTPStore_StaleHashIsNotConsumed(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestOTPStore(t, 0)
	_, _, err := s.Issue(ctx, models.PurposeUserLogin, "a@b.com")
	require.NoError(t, err)
	key := otpKey(models.PurposeUserLogin, "a@b.com")

	n, err := consumeOTP.Run(ctx, s.redis, []string{key}, hashOTP("a@b.com", "000000")).Int()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, mr.Exists(key), "a newer code survives")
}

func TestOTPStore_AttemptOnConsumedCodeLeavesNoKey(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestOTPStore(t, 0)
	code, _, err := s.Issue(ctx, models.PurposeUserLogin, "a@b.com")
	require.NoError(t, err)
	key := otpKey(models.PurposeUserLogin, "a@b.com")
	require.NoError(t, s.Verify(ctx, models.PurposeUserLogin, "a@b.com", code))

	n, err := countOTPAttempt.Run(ctx, s.redis, []string{key}).Int()
	require.NoError(t, err)
	assert.Equal(t, -1, n)
	assert.False(t, mr.Exists(key))
}
