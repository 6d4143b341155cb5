package upstream

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Strategy is the credential ordering strategy.
type Strategy string

const (
	// StrategyExhaustion always lists credentials in configured order.
	StrategyExhaustion Strategy = "exhaustion"
	// StrategyRoundRobin rotates the starting credential after every success.
	StrategyRoundRobin Strategy = "round-robin"
)

// DefaultCooldown is the cooldown applied when PoolConfig.Cooldown is zero.
const DefaultCooldown = 300 * time.Second

// PoolConfig configures a CredentialPool.
type PoolConfig struct {
	Strategy Strategy
	Cooldown time.Duration
	// Credentials maps a provider name to its credentials in configured order.
	Credentials map[string][]string
	// Now overrides the clock. Tests use it to move past cooldowns.
	Now func() time.Time
}

// CredentialPool tracks which credentials of each provider are usable.
// Cooldown state lives in memory only and resets on restart.
// It is safe for concurrent use.
type CredentialPool struct {
	mu          sync.Mutex
	strategy    Strategy
	cooldown    time.Duration
	credentials map[string][]string
	offsets     map[string]int
	// cooldowns is keyed by provider and then by credential fingerprint.
	cooldowns map[string]map[string]time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// NewCredentialPool creates a pool from cfg.
func NewCredentialPool(cfg PoolConfig, logger *slog.Logger) (*CredentialPool, error) {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyExhaustion
	}
	if strategy != StrategyExhaustion && strategy != StrategyRoundRobin {
		return nil, fmt.Errorf("%w: unknown key strategy %q", ErrInvalidConfig, cfg.Strategy)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("%w: cooldown must not be negative", ErrInvalidConfig)
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	creds := make(map[string][]string, len(cfg.Credentials))
	for provider, list := range cfg.Credentials {
		creds[provider] = append([]string(nil), list...)
	}

	return &CredentialPool{
		strategy:    strategy,
		cooldown:    cooldown,
		credentials: creds,
		offsets:     make(map[string]int),
		cooldowns:   make(map[string]map[string]time.Time),
		now:         now,
		logger:      logger.With("component", "credential_pool"),
	}, nil
}

// Strategy returns the ordering strategy in use.
func (p *CredentialPool) Strategy() Strategy {
	return p.strategy
}

// ListUsable returns the credentials of provider that are not in cooldown,
// in strategy order. An empty result means the provider is exhausted.
func (p *CredentialPool) ListUsable(provider string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := p.credentials[provider]
	if len(all) == 0 {
		return nil
	}

	start := 0
	if p.strategy == StrategyRoundRobin {
		start = p.offsets[provider] % len(all)
	}

	now := p.now()
	usable := make([]string, 0, len(all))
	for i := range all {
		cred := all[(start+i)%len(all)]
		if p.coolingLocked(provider, cred, now) {
			continue
		}
		usable = append(usable, cred)
	}
	return usable
}

// HasUsable reports whether provider has at least one credential outside of
// cooldown.
func (p *CredentialPool) HasUsable(provider string) bool {
	return len(p.ListUsable(provider)) > 0
}

// Penalize puts a credential into cooldown and returns when it ends.
func (p *CredentialPool) Penalize(provider, credential string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	until := p.now().Add(p.cooldown)
	table, ok := p.cooldowns[provider]
	if !ok {
		table = make(map[string]time.Time)
		p.cooldowns[provider] = table
	}
	table[Fingerprint(credential)] = until

	p.logger.Warn("credential placed in cooldown",
		"provider", provider,
		"credential", Fingerprint(credential),
		"cooldown_until", until)
	return until
}

// Clear removes any cooldown entry for a credential.
func (p *CredentialPool) Clear(provider, credential string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked(provider, credential)
}

// MarkSuccess clears the credential's cooldown and, under round-robin,
// moves the provider's starting offset to the credential after it.
func (p *CredentialPool) MarkSuccess(provider, credential string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearLocked(provider, credential)
	if p.strategy != StrategyRoundRobin {
		return
	}
	all := p.credentials[provider]
	for i, cred := range all {
		if cred == credential {
			p.offsets[provider] = (i + 1) % len(all)
			return
		}
	}
}

// CooldownUntil returns the end of a credential's cooldown, if it has one.
func (p *CredentialPool) CooldownUntil(provider, credential string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.coolingLocked(provider, credential, p.now()) {
		return time.Time{}, false
	}
	return p.cooldowns[provider][Fingerprint(credential)], true
}

// Size returns the number of configured credentials for provider.
func (p *CredentialPool) Size(provider string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.credentials[provider])
}

func (p *CredentialPool) clearLocked(provider, credential string) {
	if table, ok := p.cooldowns[provider]; ok {
		delete(table, Fingerprint(credential))
	}
}

// coolingLocked reports whether a credential is in cooldown and drops the
// entry once it has expired.
func (p *CredentialPool) coolingLocked(provider, credential string, now time.Time) bool {
	table, ok := p.cooldowns[provider]
	if !ok {
		return false
	}
	key := Fingerprint(credential)
	until, ok := table[key]
	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}
	delete(table, key)
	return false
}

// Fingerprint returns a short, stable identifier for a credential that is
// safe to log.
func Fingerprint(credential string) string {
	sum := blake2b.Sum256([]byte(credential))
	return "cred-" + hex.EncodeToString(sum[:6])
}
