package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/portunus-id/portunus/jwt"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalid covers bad signature, expiry, kind mismatch and revocation alike.
	ErrInvalid = errors.New("invalid token")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUnknownKind is returned by Issue for a kind with no configured lifetime.
	ErrUnknownKind = errors.New("unknown token kind")
)

type policy struct {
	ledgered  bool
	revocable bool
}

var policies = map[jwt.Kind]policy{
	jwt.KindAccess:      {ledgered: false, revocable: true},
	jwt.KindRefresh:     {ledgered: true, revocable: true},
	jwt.KindReset:       {ledgered: true, revocable: true},
	jwt.KindChangeEmail: {ledgered: false, revocable: true},
	jwt.KindMFA:         {ledgered: false, revocable: false},
}

// DefaultLifetimes returns the per-kind token lifetimes.
func DefaultLifetimes() map[jwt.Kind]time.Duration {
	return map[jwt.Kind]time.Duration{
		jwt.KindAccess:      5 * time.Minute,
		jwt.KindRefresh:     30 * time.Minute,
		jwt.KindReset:       5 * time.Minute,
		jwt.KindChangeEmail: 30 * time.Minute,
		jwt.KindMFA:         15 * time.Minute,
	}
}

// Token is a freshly minted token and the claims it was signed with.
type Token struct {
	Raw    string
	Claims jwt.Claims
}

// ID returns the token jti.
func (t Token) ID() string {
	return t.Claims.ID
}

// ExpiresAt returns the token expiry.
func (t Token) ExpiresAt() time.Time {
	if t.Claims.ExpiresAt == nil {
		return time.Time{}
	}
	return t.Claims.ExpiresAt.Time
}

// IssueOption adjusts claims before signing.
type IssueOption func(*jwt.Claims)

// WithParent binds an access token to the refresh token it was derived from.
// The access token never outlives its parent, so revoking the parent covers
// it for its whole life.
func WithParent(refreshJTI string, parentExpiry time.Time) IssueOption {
	return func(c *jwt.Claims) {
		c.SID = refreshJTI
		if c.ExpiresAt != nil && !parentExpiry.IsZero() && parentExpiry.Before(c.ExpiresAt.Time) {
			c.ExpiresAt = gjwt.NewNumericDate(parentExpiry)
		}
	}
}

// WithEmail carries the target address of a change-email token.
func WithEmail(email string) IssueOption {
	return func(c *jwt.Claims) { c.Email = email }
}

// Ledger mints, verifies and revokes tokens.
type Ledger struct {
	redis     redis.UniversalClient
	manager   *jwt.Manager
	prefix    string
	lifetimes map[jwt.Kind]time.Duration
	maxLedger time.Duration
}

// Blacklist keys outlive the token by the verification leeway.
const revokeAllScript = `
local now = tonumber(ARGV[1])
local prefix = ARGV[2]
local grace = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - grace)
local entries = redis.call("ZRANGE", KEYS[1], 0, -1, "WITHSCORES")
local revoked = 0
for i = 1, #entries, 2 do
  local ttl = tonumber(entries[i + 1]) - now + grace
  if ttl > 0 then
    if redis.call("SET", prefix .. entries[i], "1", "NX", "EX", ttl) then
      revoked = revoked + 1
    end
  end
end
redis.call("DEL", KEYS[1])
return revoked
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// New creates a Ledger. A nil or partial lifetimes map is completed from
// DefaultLifetimes.
func New(rdb redis.UniversalClient, manager *jwt.Manager, prefix string, lifetimes map[jwt.Kind]time.Duration) *Ledger {
	if prefix == "" {
		prefix = "portunus"
	}
	merged := DefaultLifetimes()
	for k, v := range lifetimes {
		if v > 0 {
			merged[k] = v
		}
	}
	var maxLedger time.Duration
	for k, v := range merged {
		if policies[k].ledgered && v > maxLedger {
			maxLedger = v
		}
	}
	return &Ledger{
		redis:     rdb,
		manager:   manager,
		prefix:    prefix,
		lifetimes: merged,
		maxLedger: maxLedger,
	}
}

func (l *Ledger) outstandingKey(userID string) string {
	return l.prefix + ":out:" + userID
}

func (l *Ledger) blacklistPrefix() string {
	return l.prefix + ":bl:"
}

func (l *Ledger) blacklistKey(jti string) string {
	return l.blacklistPrefix() + jti
}

// Lifetime returns the configured lifetime of kind.
func (l *Ledger) Lifetime(kind jwt.Kind) time.Duration {
	return l.lifetimes[kind]
}

// Issue mints a token of kind bound to userID and records it as
// outstanding when the kind is ledgered.
func (l *Ledger) Issue(ctx context.Context, userID string, kind jwt.Kind, opts ...IssueOption) (Token, error) {
	lifetime, ok := l.lifetimes[kind]
	if !ok || userID == "" {
		return Token{}, ErrUnknownKind
	}

	now := l.manager.Now()
	claims := jwt.Claims{
		Kind: kind,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	for _, opt := range opts {
		opt(&claims)
	}

	raw, err := l.manager.Sign(claims)
	if err != nil {
		return Token{}, err
	}

	if policies[kind].ledgered {
		key := l.outstandingKey(userID)
		_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, key, redis.Z{Score: float64(claims.ExpiresAt.Unix()), Member: claims.ID})
			pipe.Expire(ctx, key, l.maxLedger)
			return nil
		})
		if err != nil {
			return Token{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return Token{Raw: raw, Claims: claims}, nil
}

// Verify checks signature, expiry, kind and revocation. It never revokes.
func (l *Ledger) Verify(ctx context.Context, raw string, kind jwt.Kind) (*jwt.Claims, error) {
	claims, err := l.manager.Parse(raw)
	if err != nil {
		return nil, ErrInvalid
	}
	if claims.Kind != kind {
		return nil, ErrInvalid
	}
	if !policies[kind].revocable {
		return claims, nil
	}

	keys := []string{l.blacklistKey(claims.ID)}
	if kind == jwt.KindAccess {
		if claims.SID == "" {
			return nil, ErrInvalid
		}
		keys = append(keys, l.blacklistKey(claims.SID))
	}

	n, err := l.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n > 0 {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Revoke blacklists a single token until it can no longer verify. It reports
// true only for the call that moved the token from valid to revoked.
// Malformed, expired or non-revocable input is a no-op.
func (l *Ledger) Revoke(ctx context.Context, raw string) (bool, error) {
	claims, err := l.manager.ParseIgnoringExpiry(raw)
	if err != nil {
		return false, nil
	}
	if !policies[claims.Kind].revocable || claims.ExpiresAt == nil {
		return false, nil
	}

	ttl := claims.ExpiresAt.Time.Sub(l.manager.Now()) + l.manager.Leeway()
	if ttl <= 0 {
		return false, nil
	}
	// sub-second remainders still need a live key
	if ttl < time.Second {
		ttl = time.Second
	}

	set, err := l.redis.SetNX(ctx, l.blacklistKey(claims.ID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if policies[claims.Kind].ledgered {
		if err := l.redis.ZRem(ctx, l.outstandingKey(claims.Subject), claims.ID).Err(); err != nil {
			return set, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return set, nil
}

// RevokeAll blacklists every unexpired outstanding token of userID and
// clears the outstanding set. It returns how many tokens it revoked.
func (l *Ledger) RevokeAll(ctx context.Context, userID string) (int, error) {
	now := l.manager.Now().Unix()
	res, err := revokeAllLua.Run(
		ctx,
		l.redis,
		[]string{l.outstandingKey(userID)},
		now,
		l.blacklistPrefix(),
		int64(l.manager.Leeway()/time.Second),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res, nil
}

// Outstanding counts the live ledger entries of userID.
func (l *Ledger) Outstanding(ctx context.Context, userID string) (int, error) {
	now := l.manager.Now().Unix()
	n, err := l.redis.ZCount(ctx, l.outstandingKey(userID), "("+strconv.FormatInt(now, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}
