// Package suggest generates keyword ideas for a seed term and caches them.
package suggest

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/hash/sha256"
	"github.com/JakeFAU/creator-discovery/internal/metrics"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// DefaultTTL is used when the service is built without a TTL.
const DefaultTTL = 5 * time.Minute

// ErrEmptySeed is returned when the seed sanitizes to nothing.
var ErrEmptySeed = errors.New("seed is required")

// Generator produces raw keyword ideas for a seed.
type Generator interface {
	Generate(ctx context.Context, seed string, platform scraping.Platform) ([]string, error)
}

// Request asks for suggestions.
type Request struct {
	Seed     string
	Platform scraping.Platform
	Plan     string
}

// Response carries sanitized suggestions.
type Response struct {
	Keywords []string `json:"keywords"`
	Cached   bool     `json:"cached"`
}

// Service consults the cache before calling the generator.
type Service struct {
	generator Generator
	cache     Cache
	ttl       time.Duration
	logger    *zap.Logger
}

// NewService builds a Service. A nil cache disables caching.
func NewService(generator Generator, cache Cache, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{generator: generator, cache: cache, ttl: ttl, logger: logger.Named("suggest")}
}

// CacheKey derives the cache key for a normalized seed, platform, and plan.
func CacheKey(seed string, platform scraping.Platform, plan string) string {
	return "suggest:" + sha256.Key(seed, string(platform), plan)
}

// Suggest returns at most scraping.MaxKeywords sanitized keywords for req.
// Cache failures are logged and treated as misses.
func (s *Service) Suggest(ctx context.Context, req Request) (Response, error) {
	seed := strings.ToLower(scraping.SanitizeKeyword(req.Seed))
	if seed == "" {
		return Response{}, ErrEmptySeed
	}
	key := CacheKey(seed, req.Platform, req.Plan)

	if s.cache != nil {
		keywords, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("suggestion cache read failed", zap.Error(err))
		}
		metrics.ObserveSuggestionCache(ok)
		if ok {
			return Response{Keywords: keywords, Cached: true}, nil
		}
	}

	raw, err := s.generator.Generate(ctx, seed, req.Platform)
	if err != nil {
		return Response{}, err
	}
	keywords := scraping.SanitizeKeywords(raw)
	if len(keywords) > scraping.MaxKeywords {
		keywords = keywords[:scraping.MaxKeywords]
	}

	if s.cache != nil && len(keywords) > 0 {
		if err := s.cache.Set(ctx, key, keywords, s.ttl); err != nil {
			s.logger.Warn("suggestion cache write failed", zap.Error(err))
		}
	}
	return Response{Keywords: keywords}, nil
}
