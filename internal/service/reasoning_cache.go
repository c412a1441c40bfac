package service

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	crewdotel "github.com/crewforge/crewd/internal/adapter/otel"
	"github.com/crewforge/crewd/internal/port/cache"
	"github.com/crewforge/crewd/internal/port/reasoning"
)

// CachedReasoning decorates a reasoning port with response caching for the
// deterministic planning operations (goal analysis and decomposition).
// Execution and review are never cached: their inputs embed live worker
// output and feedback. Cache failures degrade to a direct call.
type CachedReasoning struct {
	inner reasoning.Port
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachedReasoning wraps inner with a response cache.
func NewCachedReasoning(inner reasoning.Port, c cache.Cache, ttl time.Duration, log *slog.Logger) *CachedReasoning {
	return &CachedReasoning{inner: inner, cache: c, ttl: ttl, log: log}
}

// AnalyzeGoal serves repeated analyses of the same goal from cache.
func (c *CachedReasoning) AnalyzeGoal(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.cached(ctx, "analyze_goal", req, c.inner.AnalyzeGoal)
}

// FormTeam is not cached: formation retries must reach the provider.
func (c *CachedReasoning) FormTeam(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.traced(ctx, "form_team", req, c.inner.FormTeam)
}

// Decompose serves repeated decompositions of the same goal from cache.
func (c *CachedReasoning) Decompose(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.cached(ctx, "decompose", req, c.inner.Decompose)
}

// Review is never cached.
func (c *CachedReasoning) Review(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.traced(ctx, "review", req, c.inner.Review)
}

// Execute is never cached.
func (c *CachedReasoning) Execute(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.traced(ctx, "execute", req, c.inner.Execute)
}

// traced spans a provider call without caching it.
func (c *CachedReasoning) traced(
	ctx context.Context,
	op string,
	req reasoning.Request,
	call func(context.Context, reasoning.Request) (json.RawMessage, error),
) (json.RawMessage, error) {
	ctx, span := crewdotel.StartReasoningSpan(ctx, op)
	defer span.End()
	return call(ctx, req)
}

func (c *CachedReasoning) cached(
	ctx context.Context,
	op string,
	req reasoning.Request,
	call func(context.Context, reasoning.Request) (json.RawMessage, error),
) (json.RawMessage, error) {
	key := cacheKey(op, req)

	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		c.log.Debug("reasoning cache hit", "op", op)
		return json.RawMessage(data), nil
	}

	ctx, span := crewdotel.StartReasoningSpan(ctx, op)
	defer span.End()

	raw, err := call(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, []byte(raw), c.ttl); err != nil {
		c.log.Warn("reasoning cache set failed", "op", op, "error", err)
	}
	return raw, nil
}

func cacheKey(op string, req reasoning.Request) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(op))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.System))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.User))
	return fmt.Sprintf("reasoning:%s:%x", op, h.Sum64())
}
