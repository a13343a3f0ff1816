package phoneauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// mockIdentity is a scriptable IdentityProvider for engine tests.
type mockIdentity struct {
	mu           sync.Mutex
	principal    *Principal
	signInErr    error
	createErr    error
	deleteErr    error
	resetErr     error
	anonErr      error
	signOutCount int
	deleted      []string
	resets       []string
	subscribers  []func(*Principal)
}

func (m *mockIdentity) SignInWithPassword(_ context.Context, email, _ string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signInErr != nil {
		return nil, m.signInErr
	}
	if m.principal == nil {
		return &Principal{ID: "principal-1", Email: email}, nil
	}
	clone := *m.principal
	return &clone, nil
}

func (m *mockIdentity) CreateAccount(_ context.Context, email, _ string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.principal == nil {
		return &Principal{ID: "principal-1", Email: email}, nil
	}
	clone := *m.principal
	return &clone, nil
}

func (m *mockIdentity) SignInAnonymous(context.Context) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.anonErr != nil {
		return nil, m.anonErr
	}
	return &Principal{ID: "guest-1", Anonymous: true}, nil
}

func (m *mockIdentity) SignOut(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signOutCount++
	return nil
}

func (m *mockIdentity) SendPasswordReset(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resets = append(m.resets, email)
	return nil
}

func (m *mockIdentity) DeleteIdentity(_ context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, principalID)
	return nil
}

func (m *mockIdentity) OnSessionChange(fn func(*Principal)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
	idx := len(m.subscribers) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.subscribers) {
			m.subscribers[idx] = nil
		}
	}
}

// fire simulates an identity session transition.
func (m *mockIdentity) fire(p *Principal) {
	m.mu.Lock()
	subs := make([]func(*Principal), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn(p)
		}
	}
}

func (m *mockIdentity) signOuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signOutCount
}

// scriptedSession accepts a single known code.
type scriptedSession struct {
	mu       sync.Mutex
	code     string
	result   *VerifiedResult
	err      error
	confirms int
}

func (s *scriptedSession) Confirm(_ context.Context, code string) (*VerifiedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirms++
	if s.err != nil {
		return nil, s.err
	}
	if code != s.code {
		return nil, ErrInvalidCode
	}
	if s.result != nil {
		clone := *s.result
		return &clone, nil
	}
	return &VerifiedResult{}, nil
}

func (s *scriptedSession) confirmCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirms
}

type spyDispatch struct {
	mu        sync.Mutex
	calls     int
	sendErr   error
	session   *scriptedSession
	lastPhone string
}

func (d *spyDispatch) SendCode(_ context.Context, phoneNumber string) (ChallengeSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.lastPhone = phoneNumber
	if d.sendErr != nil {
		return nil, d.sendErr
	}
	return d.session, nil
}

func (d *spyDispatch) sendCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type spyNative struct {
	available bool
	startErr  error
	session   *scriptedSession
	calls     int
}

func (n *spyNative) Available() bool { return n.available }

func (n *spyNative) StartVerification(_ context.Context, _ string) (ChallengeSession, error) {
	n.calls++
	if n.startErr != nil {
		return nil, n.startErr
	}
	return n.session, nil
}

type spyInteractive struct {
	session       *scriptedSession
	beginErr      error
	calls         int
	lastContainer string
}

func (i *spyInteractive) Begin(_ context.Context, containerID, _ string) (ChallengeSession, error) {
	i.calls++
	i.lastContainer = containerID
	if i.beginErr != nil {
		return nil, i.beginErr
	}
	return i.session, nil
}

// testHarness bundles an engine with its collaborators.
type testHarness struct {
	engine      *Engine
	mr          *miniredis.Miniredis
	rdb         *redis.Client
	identity    *mockIdentity
	dispatch    *spyDispatch
	interactive *spyInteractive
	profiles    ProfileStore
}

func testEngineConfig() Config {
	cfg := defaultConfig()
	cfg.OTP.ResendCooldown = 30 * time.Second
	cfg.OTP.CodeTTL = 5 * time.Minute
	cfg.OTP.MaxAttempts = 3
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestHarness(t *testing.T, mutate func(cfg *Config, b *Builder)) *testHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	h := &testHarness{
		mr:          mr,
		rdb:         rdb,
		identity:    &mockIdentity{},
		dispatch:    &spyDispatch{session: &scriptedSession{code: "123456"}},
		interactive: &spyInteractive{session: &scriptedSession{code: "123456"}},
	}
	h.profiles = NewRedisProfileStore(rdb)

	cfg := testEngineConfig()

	builder := New().
		WithRedis(rdb).
		WithIdentityProvider(h.identity).
		WithProfileStore(h.profiles).
		WithInteractiveProvider(h.interactive).
		WithServerDispatchProvider(h.dispatch)

	if mutate != nil {
		mutate(&cfg, builder)
	}
	builder.WithConfig(cfg)

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	h.engine = engine
	return h
}
