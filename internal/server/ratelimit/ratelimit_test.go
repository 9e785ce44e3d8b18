package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.Now
	return l, clock
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(&Config{
		Enabled:         true,
		EndpointConfigs: []EndpointConfig{{Path: "/validate", Method: "POST", Limit: 60, Window: time.Minute, Burst: 3}},
	})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("10.0.0.1", "/validate", "POST")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 60, info.Limit)
		assert.Equal(t, 2-i, info.Remaining)
	}

	allowed, info := l.Allow("10.0.0.1", "/validate", "POST")
	assert.False(t, allowed)
	assert.Equal(t, time.Second, info.RetryAfter)
	assert.Equal(t, clock.Now().Add(3*time.Second), info.ResetTime)

	clock.Advance(time.Second)
	allowed, _ = l.Allow("10.0.0.1", "/validate", "POST")
	assert.True(t, allowed, "one token refills per second")
	allowed, _ = l.Allow("10.0.0.1", "/validate", "POST")
	assert.False(t, allowed)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Hour})
	defer l.Stop()

	allowed, _ := l.Allow("a", "/rules", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("a", "/rules", "GET")
	assert.False(t, allowed)

	allowed, _ = l.Allow("b", "/rules", "GET")
	assert.True(t, allowed, "other client")
	allowed, _ = l.Allow("a", "/rules/2026", "GET")
	assert.True(t, allowed, "other path")
}

func TestLimiter_Lists(t *testing.T) {
	l, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Hour,
		Whitelist:     map[string]bool{"trusted": true},
		Blacklist:     map[string]bool{"banned": true},
	})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		allowed, info := l.Allow("trusted", "/compare", "POST")
		assert.True(t, allowed)
		assert.Zero(t, info.Limit)
	}
	allowed, _ := l.Allow("banned", "/health", "GET")
	assert.False(t, allowed)
}

func TestLimiter_UnlimitedCases(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *Config
		path   string
		method string
	}{
		{"disabled", &Config{Enabled: false, DefaultLimit: 1, DefaultWindow: time.Hour}, "/validate", "POST"},
		{"health", &Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Hour}, "/health", "GET"},
		{"no default", &Config{Enabled: true}, "/rules", "GET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(tt.cfg)
			defer l.Stop()
			for i := 0; i < 10; i++ {
				allowed, _ := l.Allow("c", tt.path, tt.method)
				require.True(t, allowed)
			}
		})
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 50, DefaultWindow: time.Hour})
	defer l.Stop()

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/rules", "GET"); ok {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), allowed)
}

func TestLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute, IdleTTL: time.Hour})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow(fmt.Sprintf("client-%d", i), "/rules", "GET")
	}
	clock.Advance(30 * time.Minute)
	l.Allow("client-0", "/rules", "GET")
	clock.Advance(45 * time.Minute)

	assert.Equal(t, 2, l.cleanup())
	assert.Len(t, l.buckets, 1)
}

func TestLimiter_StopTwice(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, CleanupInterval: time.Millisecond})
	l.Stop()
	assert.NotPanics(t, l.Stop)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/runs/", Method: "GET", Limit: 5},
		{Path: "/runs/latest", Method: "GET", Limit: 1},
		{Path: "/validate", Method: "POST", Limit: 2},
	}

	tests := []struct {
		path, method string
		want         int
		found        bool
	}{
		{"/validate", "POST", 2, true},
		{"/validate", "GET", 0, false},
		{"/runs/latest", "GET", 1, true},
		{"/runs/1234", "GET", 5, true},
		{"/health", "GET", 0, true},
		{"/rules", "GET", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if !tt.found {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Limit)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_DEFAULT_LIMIT", "42")
	t.Setenv("RATE_LIMIT_DEFAULT_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 10.0.0.2,")
	t.Setenv("RATE_LIMIT_VALIDATE_PER_HOUR", "7")

	cfg := LoadConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 42, cfg.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.DefaultWindow)
	assert.Equal(t, map[string]bool{"10.0.0.1": true, "10.0.0.2": true}, cfg.Whitelist)
	assert.Equal(t, 7, MatchEndpoint("/validate", "POST", cfg.EndpointConfigs).Limit)

	t.Setenv("RATE_LIMIT_ENABLED", "false")
	assert.False(t, LoadConfig().Enabled)
}
