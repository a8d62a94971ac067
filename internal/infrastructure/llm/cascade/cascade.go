package cascade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/infrastructure/resilience"
)

// maxCacheEntries bounds the prompt cache. The cache resets wholesale when
// full; repeated questions dominate the hit rate long before that.
const maxCacheEntries = 512

// Provider is one text backend in the fallback order.
type Provider interface {
	Name() string
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
}

// Cascade tries providers in order, starting at the cursor the caller passes
// in. The returned cursor names the provider that answered, so the next call
// starts on a known-good backend while failures rotate the start forward.
// The cascade itself holds no rotation state.
type Cascade struct {
	providers  []Provider
	executor   *resilience.Executor
	classifier resilience.ErrorClassifier
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

func New(providers []Provider, executor *resilience.Executor, classifier resilience.ErrorClassifier, limiter *rate.Limiter, logger *slog.Logger) *Cascade {
	return &Cascade{
		providers:  providers,
		executor:   executor,
		classifier: classifier,
		limiter:    limiter,
		logger:     logger,
		cache:      make(map[string]string),
	}
}

// Generate answers the prompt with the first provider that succeeds, walking
// one full rotation from the cursor. Cached prompts return without touching
// any provider and keep the cursor unchanged.
func (c *Cascade) Generate(ctx context.Context, prompt string, cursor int) (string, int, error) {
	if len(c.providers) == 0 {
		return "", cursor, domain.WrapError(domain.ErrTemporary, "generate", errNoProviders)
	}

	key := promptKey(prompt)
	if answer, ok := c.cached(key); ok {
		return answer, cursor, nil
	}

	start := cursor % len(c.providers)
	if start < 0 {
		start += len(c.providers)
	}

	var lastErr error
	for i := 0; i < len(c.providers); i++ {
		pos := (start + i) % len(c.providers)
		provider := c.providers[pos]

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", pos, err
			}
		}

		var answer string
		err := c.executor.Execute(ctx, "generate/"+provider.Name(), func(ctx context.Context) error {
			out, genErr := provider.GenerateFromPrompt(ctx, prompt)
			if genErr != nil {
				return genErr
			}
			answer = out
			return nil
		}, c.classifier)
		if err == nil {
			c.store(key, answer)
			return answer, pos, nil
		}

		lastErr = err
		c.logger.Warn("generation provider failed, rotating",
			"provider", provider.Name(), "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	return "", start, domain.WrapError(domain.ErrTemporary, "generate", lastErr)
}

func (c *Cascade) cached(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	answer, ok := c.cache[key]
	return answer, ok
}

func (c *Cascade) store(key, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cache) >= maxCacheEntries {
		c.cache = make(map[string]string, maxCacheEntries)
	}
	c.cache[key] = answer
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

var errNoProviders = fmt.Errorf("no generation providers configured")
