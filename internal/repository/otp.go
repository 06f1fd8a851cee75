package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghassenk/jewelstore/internal/models"
)

var (
	ErrOTPNotFound        = errors.New("otp not found or expired")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrTooManyOTPAttempts = errors.New("too many invalid otp attempts")
	ErrResendTooSoon      = errors.New("otp requested too recently")
)

const (
	otpPrefix       = "otp:"
	throttlePrefix  = "otp:throttle:"
	blacklistPrefix = "blacklist:"
)

// OTPStore keeps one-time codes and revoked token ids in Redis. Codes are
// stored hashed, scoped by purpose and email.
type OTPStore struct {
	redis          *redis.Client
	ttl            time.Duration
	resendInterval time.Duration
	maxAttempts    int
	now            func() time.Time
}

// NewOTPStore creates a Redis-backed OTP store.
func NewOTPStore(client *redis.Client, ttl, resendInterval time.Duration, maxAttempts int) *OTPStore {
	return &OTPStore{
		redis:          client,
		ttl:            ttl,
		resendInterval: resendInterval,
		maxAttempts:    maxAttempts,
		now:            time.Now,
	}
}

// consumeOTP deletes the code only if it still holds the hash that was
// checked, so one code yields at most one success.
var consumeOTP = redis.NewScript(`
if redis.call("HGET", KEYS[1], "hash") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// countOTPAttempt increments the attempt counter of a live code and returns
// -1 when the code is gone, leaving no key behind.
var countOTPAttempt = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], "hash") == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

func otpKey(purpose models.Purpose, email string) string {
	return otpPrefix + string(purpose) + ":" + email
}

func hashOTP(email, code string) string {
	sum := sha256.Sum256([]byte(email + ":" + code))
	return hex.EncodeToString(sum[:])
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue creates a fresh code for (purpose, email), replacing any previous one.
// It fails with ErrResendTooSoon when called again within the resend interval.
func (s *OTPStore) Issue(ctx context.Context, purpose models.Purpose, email string) (string, time.Time, error) {
	if s.resendInterval > 0 {
		ok, err := s.redis.SetNX(ctx, throttlePrefix+string(purpose)+":"+email, "1", s.resendInterval).Result()
		if err != nil {
			return "", time.Time{}, fmt.Errorf("otp throttle: %w", err)
		}
		if !ok {
			return "", time.Time{}, ErrResendTooSoon
		}
	}

	code, err := generateOTPCode()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate otp: %w", err)
	}

	key := otpKey(purpose, email)
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, "hash", hashOTP(email, code), "attempts", 0)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("store otp: %w", err)
	}
	return code, s.now().Add(s.ttl), nil
}

// Verify checks code against the stored hash. A match consumes the code. Each
// mismatch counts as an attempt, and the code is discarded once the attempt
// limit is reached.
func (s *OTPStore) Verify(ctx context.Context, purpose models.Purpose, email, code string) error {
	key := otpKey(purpose, email)
	vals, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}
	stored, ok := vals["hash"]
	if !ok {
		return ErrOTPNotFound
	}
	attempts, _ := strconv.Atoi(vals["attempts"])
	if attempts >= s.maxAttempts {
		s.redis.Del(ctx, key)
		return ErrTooManyOTPAttempts
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(hashOTP(email, code))) == 1 {
		consumed, err := consumeOTP.Run(ctx, s.redis, []string{key}, stored).Int()
		if err != nil {
			return fmt.Errorf("consume otp: %w", err)
		}
		if consumed == 0 {
			// Used, replaced or expired since it was read.
			return ErrOTPNotFound
		}
		return nil
	}

	n, err := countOTPAttempt.Run(ctx, s.redis, []string{key}).Int()
	if err != nil {
		return fmt.Errorf("count otp attempt: %w", err)
	}
	if n < 0 {
		return ErrOTPNotFound
	}
	if n >= s.maxAttempts {
		s.redis.Del(ctx, key)
		return ErrTooManyOTPAttempts
	}
	return ErrInvalidOTP
}

// Blacklist revokes a token id until ttl elapses.
func (s *OTPStore) Blacklist(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, blacklistPrefix+tokenID, "1", ttl).Err()
}

// IsBlacklisted reports whether tokenID has been revoked.
func (s *OTPStore) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, blacklistPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
