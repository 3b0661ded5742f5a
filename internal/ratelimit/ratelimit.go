package ratelimit

import (
	"sync"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
)

// Config holds the reservation request limits.
type Config struct {
	Window     time.Duration `mapstructure:"window"`
	MaxPerUser int           `mapstructure:"max_per_user"`
	MaxPerIP   int           `mapstructure:"max_per_ip"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		Window:     time.Minute,
		MaxPerUser: 10,
		MaxPerIP:   60,
	}
}

// Limiter implements a simple in-memory fixed window rate limiter
type Limiter struct {
	mu       sync.RWMutex
	counters map[string]*counter
	window   time.Duration
	max      int
	clock    clock.Clock
	stop     chan struct{}
	once     sync.Once
}

type counter struct {
	count     int
	expiresAt time.Time
}

// NewLimiter creates a new rate limiter with the specified window and max requests
func NewLimiter(window time.Duration, max int, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	l := &Limiter{
		counters: make(map[string]*counter),
		window:   window,
		max:      max,
		clock:    clk,
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow checks if a request for the given key is allowed
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	c, exists := l.counters[key]

	if !exists || now.After(c.expiresAt) {
		l.counters[key] = &counter{
			count:     1,
			expiresAt: now.Add(l.window),
		}
		return true
	}

	if c.count >= l.max {
		return false
	}

	c.count++
	return true
}

// GetRemaining returns the number of remaining requests for the given key
func (l *Limiter) GetRemaining(key string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, exists := l.counters[key]
	if !exists || l.clock.Now().After(c.expiresAt) {
		return l.max
	}

	remaining := l.max - c.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stop ends the cleanup goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// cleanup periodically removes expired counters
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	for key, c := range l.counters {
		if now.After(c.expiresAt) {
			delete(l.counters, key)
		}
	}
}

// ReservationLimiter limits reservation requests per user and per client IP.
type ReservationLimiter struct {
	user *Limiter
	ip   *Limiter
}

// New creates a reservation limiter. Zero config values fall back to DefaultConfig.
func New(c *Config, clk clock.Clock) *ReservationLimiter {
	cfg := DefaultConfig()
	if c != nil {
		if c.Window > 0 {
			cfg.Window = c.Window
		}
		if c.MaxPerUser > 0 {
			cfg.MaxPerUser = c.MaxPerUser
		}
		if c.MaxPerIP > 0 {
			cfg.MaxPerIP = c.MaxPerIP
		}
	}
	return &ReservationLimiter{
		user: NewLimiter(cfg.Window, cfg.MaxPerUser, clk),
		ip:   NewLimiter(cfg.Window, cfg.MaxPerIP, clk),
	}
}

// CheckReservation verifies if a reservation request from userId and ip is allowed.
func (m *ReservationLimiter) CheckReservation(userId, ip string) error {
	if ip != "" && !m.ip.Allow(ip) {
		return gerr.RateLimited
	}
	if !m.user.Allow(userId) {
		return gerr.RateLimited
	}
	return nil
}

// Remaining returns the reservation requests userId has left in the current window.
func (m *ReservationLimiter) Remaining(userId string) int {
	return m.user.GetRemaining(userId)
}

func (m *ReservationLimiter) Stop() {
	m.user.Stop()
	m.ip.Stop()
}
