// Package profile supplies the account data position sizing depends on.
package profile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/models"
)

var ErrNoBalance = errors.New("available balance is not configured")

type Provider interface {
	Profile(ctx context.Context) (models.UserProfile, error)
}

// ConfigProvider reads the profile from the trading section of a config
// snapshot.
type ConfigProvider struct {
	mu  sync.RWMutex
	cfg config.Config
}

func NewConfigProvider(cfg *config.Config) *ConfigProvider {
	return &ConfigProvider{cfg: *cfg}
}

// Set replaces the snapshot.
func (p *ConfigProvider) Set(cfg config.Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *ConfigProvider) Profile(_ context.Context) (models.UserProfile, error) {
	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()

	if cfg.AvailableBalance <= 0 {
		return models.UserProfile{}, ErrNoBalance
	}
	return models.UserProfile{
		AvailableBalance:    cfg.AvailableBalance,
		MaxLeverage:         cfg.MaxLeverage,
		DefaultPositionSize: cfg.DefaultPositionSize,
		DefaultExchange:     cfg.DefaultExchange,
		DefaultSymbol:       cfg.DefaultSymbol,
		DefaultInterval:     cfg.DefaultInterval,
	}, nil
}

// Cached fetches from the wrapped provider at most once per TTL.
// Failed fetches are not cached.
type Cached struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu        sync.Mutex
	profile   models.UserProfile
	fetchedAt time.Time
	valid     bool
}

func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{next: next, ttl: ttl, now: time.Now}
}

func (c *Cached) Profile(ctx context.Context) (models.UserProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && (c.ttl <= 0 || c.now().Sub(c.fetchedAt) < c.ttl) {
		return c.profile, nil
	}
	p, err := c.next.Profile(ctx)
	if err != nil {
		return models.UserProfile{}, err
	}
	c.profile = p
	c.fetchedAt = c.now()
	c.valid = true
	return p, nil
}

// Invalidate drops the cached profile so the next call fetches again.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// Live is the cached config profile of a running process. It follows config
// reloads through Apply.
type Live struct {
	*Cached
	source *ConfigProvider
}

func NewLive(cfg *config.Config) *Live {
	src := NewConfigProvider(cfg)
	return &Live{
		Cached: NewCached(src, time.Duration(cfg.ProfileCacheSeconds)*time.Second),
		source: src,
	}
}

// Apply takes the new config when ch touches an account field and drops the
// cached profile. It reports whether the profile was refreshed.
func (l *Live) Apply(ch config.Change) bool {
	if !ch.Touches(config.AccountKeys...) {
		return false
	}
	l.source.Set(ch.New)
	l.Invalidate()
	return true
}
