// Package token issues and redeems single-use socket tokens.
package token

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"
)

const (
	// Length is the number of characters in a token.
	Length = 64

	// DefaultMaxAge is how long an issued token stays redeemable.
	DefaultMaxAge = 60 * time.Second

	// DefaultCleanupInterval is how often expired tokens are swept.
	DefaultCleanupInterval = 10 * time.Second

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Errors
var (
	ErrUnknownToken = errors.New("unknown token")
	ErrExpiredToken = errors.New("token expired")
)

// Config configures a Store.
type Config struct {
	MaxAge          time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the default store settings.
func DefaultConfig() Config {
	return Config{
		MaxAge:          DefaultMaxAge,
		CleanupInterval: DefaultCleanupInterval,
	}
}

type entry struct {
	user     string
	issuedAt time.Time
}

// Store holds issued tokens until they are redeemed or expire.
type Store struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	tokens map[string]entry
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty Store.
func NewStore(cfg Config, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	s := &Store{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		tokens: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate issues a new token for user.
func (s *Store) Generate(user string) (string, error) {
	tok, err := randomString(Length)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.tokens[tok] = entry{user: user, issuedAt: s.now()}
	s.mu.Unlock()

	return tok, nil
}

// Validate redeems tok and returns the user it was issued to. A token can
// be redeemed once; expired tokens are rejected and discarded.
func (s *Store) Validate(tok string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tokens[tok]
	if !ok {
		return "", ErrUnknownToken
	}
	delete(s.tokens, tok)

	if s.now().Sub(e.issuedAt) > s.cfg.MaxAge {
		return "", ErrExpiredToken
	}
	return e.user, nil
}

// Cleanup discards expired tokens and returns how many were removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for tok, e := range s.tokens {
		if now.Sub(e.issuedAt) > s.cfg.MaxAge {
			delete(s.tokens, tok)
			removed++
		}
	}
	return removed
}

// Len returns the number of outstanding tokens.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Run sweeps expired tokens every CleanupInterval until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 {
				s.logger.Debug("expired tokens removed", "count", n)
			}
		}
	}
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
