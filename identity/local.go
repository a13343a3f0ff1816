package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	phoneauth "github.com/stayhq/phoneauth"
)

const (
	accountKeyPrefix = "ida"
	resetKeyPrefix   = "idr"
	resetTTL         = 15 * time.Minute
)

// Config tunes the local provider.
type Config struct {
	// TokenSecret signs HS256 session tokens. Required, >= 32 bytes.
	TokenSecret []byte
	// TokenTTL bounds session token validity.
	TokenTTL time.Duration
	// ReauthWindow is how recent the last sign-in must be for identity
	// deletion. Older sessions get ErrReauthenticationRequired.
	ReauthWindow time.Duration
}

func defaultLocalConfig() Config {
	return Config{
		TokenTTL:     time.Hour,
		ReauthWindow: 5 * time.Minute,
	}
}

// Local is a Redis-backed IdentityProvider. Like the client SDKs it
// stands in for, it tracks a single current session per instance and
// fans session changes out to subscribers.
type Local struct {
	redis  *redis.Client
	config Config

	mu          sync.Mutex
	current     *phoneauth.Principal
	lastAuth    time.Time
	token       string
	nextSub     uint64
	subscribers map[uint64]func(*phoneauth.Principal)
}

var _ phoneauth.IdentityProvider = (*Local)(nil)

// NewLocal builds a provider on redisClient. Zero-valued cfg fields get
// defaults; TokenSecret has none.
func NewLocal(redisClient *redis.Client, cfg Config) (*Local, error) {
	if redisClient == nil {
		return nil, errors.New("redis client required")
	}
	if len(cfg.TokenSecret) < 32 {
		return nil, errors.New("token secret must be >= 32 bytes")
	}
	def := defaultLocalConfig()
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.ReauthWindow <= 0 {
		cfg.ReauthWindow = def.ReauthWindow
	}

	return &Local{
		redis:       redisClient,
		config:      cfg,
		subscribers: make(map[uint64]func(*phoneauth.Principal)),
	}, nil
}

func accountKey(email string) string {
	return accountKeyPrefix + ":" + strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount registers an email/password identity and signs it in,
// matching the auto-login behavior of the hosted providers this package
// stands in for.
func (l *Local) CreateAccount(ctx context.Context, email, password string) (*phoneauth.Principal, error) {
	if email == "" || password == "" {
		return nil, phoneauth.ErrInvalidCredentials
	}

	encoded, err := hashPassword(password)
	if err != nil {
		return nil, phoneauth.ErrInvalidCredentials
	}

	principalID := uuid.NewString()
	created, err := l.redis.HSetNX(ctx, accountKey(email), "principal_id", principalID).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", phoneauth.ErrBackendUnavailable, err)
	}
	if !created {
		return nil, phoneauth.ErrPrincipalExists
	}

	if err := l.redis.HSet(ctx, accountKey(email),
		"password_hash", encoded,
		"email", strings.ToLower(strings.TrimSpace(email)),
	).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", phoneauth.ErrBackendUnavailable, err)
	}

	principal := &phoneauth.Principal{
		ID:    principalID,
		Email: strings.ToLower(strings.TrimSpace(email)),
	}
	if err := l.establishSession(principal); err != nil {
		return nil, err
	}
	return principal, nil
}

// SignInWithPassword authenticates an email/password identity.
func (l *Local) SignInWithPassword(ctx context.Context, email, password string) (*phoneauth.Principal, error) {
	if email == "" || password == "" {
		return nil, phoneauth.ErrInvalidCredentials
	}

	fields, err := l.redis.HGetAll(ctx, accountKey(email)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", phoneauth.ErrBackendUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, phoneauth.ErrInvalidCredentials
	}

	ok, err := verifyPassword(password, fields["password_hash"])
	if err != nil || !ok {
		return nil, phoneauth.ErrInvalidCredentials
	}

	principal := &phoneauth.Principal{
		ID:          fields["principal_id"],
		Email:       fields["email"],
		PhoneNumber: fields["phone_number"],
	}
	if err := l.establishSession(principal); err != nil {
		return nil, err
	}
	return principal, nil
}

// SignInAnonymous starts a guest session with a fresh principal ID.
func (l *Local) SignInAnonymous(ctx context.Context) (*phoneauth.Principal, error) {
	principal := &phoneauth.Principal{
		ID:        uuid.NewString(),
		Anonymous: true,
	}
	if err := l.establishSession(principal); err != nil {
		return nil, err
	}
	return principal, nil
}

// SignOut clears the current session and notifies subscribers with nil.
func (l *Local) SignOut(ctx context.Context) error {
	l.mu.Lock()
	l.current = nil
	l.token = ""
	l.lastAuth = time.Time{}
	subs := l.snapshotSubscribers()
	l.mu.Unlock()

	for _, fn := range subs {
		fn(nil)
	}
	return nil
}

// SendPasswordReset issues a reset ticket for email. Delivery is out of
// scope; the ticket lands in Redis for the host application to pick up.
func (l *Local) SendPasswordReset(ctx context.Context, email string) error {
	fields, err := l.redis.HGetAll(ctx, accountKey(email)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", phoneauth.ErrBackendUnavailable, err)
	}
	if len(fields) == 0 {
		return phoneauth.ErrUserNotFound
	}

	ticket := uuid.NewString()
	key := resetKeyPrefix + ":" + ticket
	if err := l.redis.Set(ctx, key, fields["principal_id"], resetTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", phoneauth.ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteIdentity removes the identity behind the current session. A
// session older than the reauth window is refused with
// ErrReauthenticationRequired, mirroring the recent-login demand of
// hosted providers.
func (l *Local) DeleteIdentity(ctx context.Context, principalID string) error {
	l.mu.Lock()
	current := l.current
	lastAuth := l.lastAuth
	l.mu.Unlock()

	if current == nil || current.ID != principalID {
		return phoneauth.ErrUserNotFound
	}
	if time.Since(lastAuth) > l.config.ReauthWindow {
		return phoneauth.ErrReauthenticationRequired
	}

	if current.Email != "" {
		if err := l.redis.Del(ctx, accountKey(current.Email)).Err(); err != nil {
			return fmt.Errorf("%w: %v", phoneauth.ErrBackendUnavailable, err)
		}
	}

	return l.SignOut(ctx)
}

// OnSessionChange subscribes fn to session transitions. fn receives the
// new principal, or nil on sign-out.
func (l *Local) OnSessionChange(fn func(*phoneauth.Principal)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subscribers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subscribers, id)
		l.mu.Unlock()
	}
}

// CurrentToken returns the HS256 session token for the active session,
// or "" when signed out.
func (l *Local) CurrentToken() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

// Current returns the active principal, or nil.
func (l *Local) Current() *phoneauth.Principal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	clone := *l.current
	return &clone
}

// RecordPhoneNumber stores a verified phone number on the account record
// so subsequent sign-ins report it on the principal.
func (l *Local) RecordPhoneNumber(ctx context.Context, email, phoneNumber string) error {
	if email == "" {
		return phoneauth.ErrUserNotFound
	}
	if err := l.redis.HSet(ctx, accountKey(email), "phone_number", phoneNumber).Err(); err != nil {
		return fmt.Errorf("%w: %v", phoneauth.ErrBackendUnavailable, err)
	}

	l.mu.Lock()
	if l.current != nil && l.current.Email == strings.ToLower(strings.TrimSpace(email)) {
		l.current.PhoneNumber = phoneNumber
	}
	l.mu.Unlock()
	return nil
}

func (l *Local) establishSession(principal *phoneauth.Principal) error {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principal.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(l.config.TokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.config.TokenSecret)
	if err != nil {
		return err
	}

	l.mu.Lock()
	clone := *principal
	l.current = &clone
	l.lastAuth = now
	l.token = token
	subs := l.snapshotSubscribers()
	l.mu.Unlock()

	for _, fn := range subs {
		fn(principal)
	}
	return nil
}

// ParseToken validates a session token and returns the principal ID.
func (l *Local) ParseToken(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return l.config.TokenSecret, nil
	})
	if err != nil || !token.Valid {
		return "", phoneauth.ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", phoneauth.ErrInvalidCredentials
	}
	return claims.Subject, nil
}

func (l *Local) snapshotSubscribers() []func(*phoneauth.Principal) {
	out := make([]func(*phoneauth.Principal), 0, len(l.subscribers))
	for _, fn := range l.subscribers {
		out = append(out, fn)
	}
	return out
}
