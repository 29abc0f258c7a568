// Package limiter provides rate limiting and budget enforcement for LLM API calls with token bucket algorithms.
package limiter

import (
	"fmt"
	"sync"
	"time"

	"codeswarm/pkg/config"
)

// Limiter manages rate limiting across providers plus a shared daily budget.
type Limiter struct {
	providers  map[string]*ProviderLimiter
	resetTimer *time.Timer
	mu         sync.RWMutex

	budgetMu       sync.Mutex
	dailyBudgetUSD float64 // 0 means unlimited
	spentTodayUSD  float64
}

// ProviderLimiter enforces token and concurrency limits for a single API provider.
//
//nolint:govet // Struct layout optimization not critical for this use case
type ProviderLimiter struct {
	lastRefill         time.Time
	mu                 sync.Mutex
	name               string
	maxTokensPerMinute int
	maxConcurrency     int
	currentTokens      int
	inFlight           int
}

var (
	// ErrRateLimit is returned when token rate limits are exceeded.
	ErrRateLimit = fmt.Errorf("rate limit exceeded")
	// ErrBudgetExceeded is returned when the daily budget limit is exceeded.
	ErrBudgetExceeded = fmt.Errorf("daily budget exceeded")
	// ErrConcurrencyLimit is returned when concurrent request limits are exceeded.
	ErrConcurrencyLimit = fmt.Errorf("concurrency limit exceeded")
)

// NewLimiter creates a rate limiter from the loaded configuration. Each known
// provider gets a token bucket sized to its tokens-per-minute limit.
func NewLimiter(cfg *config.Config) *Limiter {
	l := &Limiter{
		providers: make(map[string]*ProviderLimiter),
	}

	if cfg != nil && cfg.Resilience != nil {
		l.dailyBudgetUSD = cfg.Resilience.DailyBudgetUSD
	}

	for _, provider := range []string{
		config.ProviderAnthropic,
		config.ProviderOpenAI,
		config.ProviderGoogle,
		config.ProviderOllama,
	} {
		limits := config.GetProviderLimits(provider)
		l.providers[provider] = &ProviderLimiter{
			name:               provider,
			maxTokensPerMinute: limits.TokensPerMinute,
			maxConcurrency:     limits.MaxConcurrency,
			currentTokens:      limits.TokensPerMinute, // Start with full bucket
			lastRefill:         time.Now(),
		}
	}

	// Schedule daily reset at midnight.
	l.scheduleDailyReset()

	return l
}

// ReserveTokens attempts to reserve the specified number of tokens for the given provider.
func (l *Limiter) ReserveTokens(provider string, tokens int) error {
	pl, err := l.provider(provider)
	if err != nil {
		return err
	}
	return pl.ReserveTokens(tokens)
}

// Acquire reserves a concurrent request slot for a provider.
func (l *Limiter) Acquire(provider string) error {
	pl, err := l.provider(provider)
	if err != nil {
		return err
	}
	return pl.Acquire()
}

// Release frees a concurrent request slot for a provider.
func (l *Limiter) Release(provider string) error {
	pl, err := l.provider(provider)
	if err != nil {
		return err
	}
	return pl.Release()
}

// SpendBudget records spend against the shared daily budget. It fails when the
// spend would push the day over the limit. A zero budget means unlimited.
func (l *Limiter) SpendBudget(costUSD float64) error {
	l.budgetMu.Lock()
	defer l.budgetMu.Unlock()

	if l.dailyBudgetUSD > 0 && l.spentTodayUSD+costUSD > l.dailyBudgetUSD {
		return ErrBudgetExceeded
	}

	l.spentTodayUSD += costUSD
	return nil
}

// BudgetStatus returns today's spend and the configured daily limit.
func (l *Limiter) BudgetStatus() (spentUSD, limitUSD float64) {
	l.budgetMu.Lock()
	defer l.budgetMu.Unlock()
	return l.spentTodayUSD, l.dailyBudgetUSD
}

// GetStatus returns the current token bucket level and in-flight count for a provider.
func (l *Limiter) GetStatus(provider string) (tokens, inFlight int, err error) {
	pl, err := l.provider(provider)
	if err != nil {
		return 0, 0, err
	}
	return pl.GetStatus()
}

// ResetDaily resets the budget and refills all provider buckets.
func (l *Limiter) ResetDaily() {
	l.budgetMu.Lock()
	l.spentTodayUSD = 0
	l.budgetMu.Unlock()

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, pl := range l.providers {
		pl.Reset()
	}
}

// Close stops the limiter and releases resources.
func (l *Limiter) Close() {
	if l.resetTimer != nil {
		l.resetTimer.Stop()
	}
}

func (l *Limiter) provider(provider string) (*ProviderLimiter, error) {
	l.mu.RLock()
	pl, exists := l.providers[provider]
	l.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	return pl, nil
}

// ReserveTokens reserves tokens from the rate limit bucket.
func (pl *ProviderLimiter) ReserveTokens(tokens int) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	// Refill tokens based on time elapsed.
	pl.refillTokens()

	if pl.maxTokensPerMinute > 0 && pl.currentTokens < tokens {
		return ErrRateLimit
	}

	pl.currentTokens -= tokens
	return nil
}

// Acquire reserves a concurrent request slot.
func (pl *ProviderLimiter) Acquire() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.maxConcurrency > 0 && pl.inFlight >= pl.maxConcurrency {
		return ErrConcurrencyLimit
	}

	pl.inFlight++
	return nil
}

// Release frees a concurrent request slot.
func (pl *ProviderLimiter) Release() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.inFlight <= 0 {
		return fmt.Errorf("no in-flight requests to release for provider %s", pl.name)
	}

	pl.inFlight--
	return nil
}

// GetStatus returns the current token bucket level and in-flight count.
func (pl *ProviderLimiter) GetStatus() (tokens, inFlight int, err error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.refillTokens()
	return pl.currentTokens, pl.inFlight, nil
}

// Reset refills the token bucket and clears in-flight tracking.
func (pl *ProviderLimiter) Reset() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.currentTokens = pl.maxTokensPerMinute
	pl.inFlight = 0
	pl.lastRefill = time.Now()
}

func (pl *ProviderLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(pl.lastRefill)

	if elapsed >= time.Minute {
		// Refill tokens for each minute that has passed.
		minutes := int(elapsed / time.Minute)
		refillAmount := minutes * pl.maxTokensPerMinute

		// Cap at maximum.
		pl.currentTokens += refillAmount
		if pl.currentTokens > pl.maxTokensPerMinute {
			pl.currentTokens = pl.maxTokensPerMinute
		}

		// Update refill time to the last complete minute.
		pl.lastRefill = pl.lastRefill.Add(time.Duration(minutes) * time.Minute)
	}
}

func (l *Limiter) scheduleDailyReset() {
	now := time.Now()

	// Calculate next midnight in local time.
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	timeUntilMidnight := time.Until(nextMidnight)

	l.resetTimer = time.AfterFunc(timeUntilMidnight, func() {
		l.ResetDaily()

		// Schedule the next reset (24 hours from now)
		l.resetTimer = time.AfterFunc(24*time.Hour, func() {
			l.scheduleDailyReset() // Reschedule for next day
		})
	})
}
