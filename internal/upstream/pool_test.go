package upstream

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(t *testing.T, strategy Strategy, clock *fakeClock, creds map[string][]string) *CredentialPool {
	t.Helper()
	pool, err := NewCredentialPool(PoolConfig{
		Strategy:    strategy,
		Cooldown:    300 * time.Second,
		Credentials: creds,
		Now:         clock.Now,
	}, discardLogger())
	require.NoError(t, err)
	return pool
}

func TestNewCredentialPool(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		pool, err := NewCredentialPool(PoolConfig{}, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, StrategyExhaustion, pool.Strategy())
		assert.Equal(t, DefaultCooldown, pool.cooldown)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		t.Parallel()
		_, err := NewCredentialPool(PoolConfig{Strategy: "random"}, discardLogger())
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("negative cooldown", func(t *testing.T) {
		t.Parallel()
		_, err := NewCredentialPool(PoolConfig{Cooldown: -time.Second}, discardLogger())
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("credentials are copied", func(t *testing.T) {
		t.Parallel()
		creds := []string{"a", "b"}
		pool, err := NewCredentialPool(PoolConfig{Credentials: map[string][]string{"openai": creds}}, discardLogger())
		require.NoError(t, err)
		creds[0] = "changed"
		assert.Equal(t, []string{"a", "b"}, pool.ListUsable("openai"))
	})
}

func TestCredentialPool_CooldownExpires(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pool := newTestPool(t, StrategyExhaustion, clock, map[string][]string{
		"openai": {"key-a", "key-b"},
	})

	until := pool.Penalize("openai", "key-a")
	assert.Equal(t, clock.Now().Add(300*time.Second), until)
	assert.Equal(t, []string{"key-b"}, pool.ListUsable("openai"))

	got, ok := pool.CooldownUntil("openai", "key-a")
	assert.True(t, ok)
	assert.Equal(t, until, got)

	clock.Advance(299 * time.Second)
	assert.Equal(t, []string{"key-b"}, pool.ListUsable("openai"), "still cooling one second before expiry")

	clock.Advance(time.Second)
	assert.Equal(t, []string{"key-a", "key-b"}, pool.ListUsable("openai"), "credential reappears after cooldown")

	_, ok = pool.CooldownUntil("openai", "key-a")
	assert.False(t, ok)
}

func TestCredentialPool_Clear(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pool := newTestPool(t, StrategyExhaustion, clock, map[string][]string{
		"openai": {"key-a"},
	})

	pool.Penalize("openai", "key-a")
	assert.False(t, pool.HasUsable("openai"))

	pool.Clear("openai", "key-a")
	assert.True(t, pool.HasUsable("openai"))

	// Clearing an unknown provider is a no-op.
	assert.NotPanics(t, func() { pool.Clear("google", "key-a") })
}

func TestCredentialPool_CooldownIsPerProvider(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pool := newTestPool(t, StrategyExhaustion, clock, map[string][]string{
		"openai": {"shared"},
		"google": {"shared"},
	})

	pool.Penalize("openai", "shared")
	assert.Empty(t, pool.ListUsable("openai"))
	assert.Equal(t, []string{"shared"}, pool.ListUsable("google"))
}

func TestCredentialPool_ExhaustionKeepsConfiguredOrder(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pool := newTestPool(t, StrategyExhaustion, clock, map[string][]string{
		"openai": {"key-a", "key-b", "key-c"},
	})

	for i := 0; i < 5; i++ {
		pool.MarkSuccess("openai", "key-a")
		assert.Equal(t, []string{"key-a", "key-b", "key-c"}, pool.ListUsable("openai"))
	}

	pool.Penalize("openai", "key-b")
	assert.Equal(t, []string{"key-a", "key-c"}, pool.ListUsable("openai"))
}

func TestCredentialPool_RoundRobinFairness(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	creds := []string{"key-a", "key-b", "key-c", "key-d"}
	pool := newTestPool(t, StrategyRoundRobin, clock, map[string][]string{"openai": creds})

	seen := make(map[string]int)
	for i := 0; i < len(creds); i++ {
		usable := pool.ListUsable("openai")
		require.Len(t, usable, len(creds))
		first := usable[0]
		seen[first]++
		pool.MarkSuccess("openai", first)
	}

	for _, cred := range creds {
		assert.Equal(t, 1, seen[cred], "credential %s should lead exactly once per cycle", cred)
	}

	// The next cycle starts over at the first credential.
	assert.Equal(t, "key-a", pool.ListUsable("openai")[0])
}

func TestCredentialPool_RoundRobinSkipsCoolingCredentials(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pool := newTestPool(t, StrategyRoundRobin, clock, map[string][]string{
		"openai": {"key-a", "key-b", "key-c"},
	})

	pool.MarkSuccess("openai", "key-a")
	assert.Equal(t, []string{"key-b", "key-c", "key-a"}, pool.ListUsable("openai"))

	pool.Penalize("openai", "key-b")
	assert.Equal(t, []string{"key-c", "key-a"}, pool.ListUsable("openai"))
}

func TestCredentialPool_RoundRobinAdvancesPastSucceedingCredential(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pool := newTestPool(t, StrategyRoundRobin, clock, map[string][]string{
		"openai": {"key-a", "key-b", "key-c"},
	})

	pool.Penalize("openai", "key-a")
	usable := pool.ListUsable("openai")
	require.Equal(t, []string{"key-b", "key-c"}, usable)

	pool.MarkSuccess("openai", usable[0])
	assert.Equal(t, []string{"key-c", "key-b"}, pool.ListUsable("openai"))

	clock.Advance(time.Hour)
	assert.Equal(t, []string{"key-c", "key-a", "key-b"}, pool.ListUsable("openai"),
		"the next call starts after the credential that succeeded")

	pool.MarkSuccess("openai", "unknown")
	assert.Equal(t, "key-c", pool.ListUsable("openai")[0], "unknown credentials leave the offset alone")
}

func TestCredentialPool_UnknownProvider(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, StrategyRoundRobin, newFakeClock(), nil)
	assert.Empty(t, pool.ListUsable("openai"))
	assert.False(t, pool.HasUsable("openai"))
	assert.Equal(t, 0, pool.Size("openai"))
	assert.NotPanics(t, func() { pool.MarkSuccess("openai", "key") })
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	fp := Fingerprint("sk-secret-value")
	assert.Equal(t, fp, Fingerprint("sk-secret-value"), "fingerprint must be stable")
	assert.NotEqual(t, fp, Fingerprint("sk-other-value"))
	assert.NotContains(t, fp, "secret")
	assert.Len(t, fp, len("cred-")+12)
}
