package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// InvalidateIP removes every rate limit key for ip, including per-endpoint ones.
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	rl.dropFallback(func(key string) bool {
		return key == ipKey(ip) || (strings.HasPrefix(key, "ratelimit:endpoint:") && strings.HasSuffix(key, ":"+ip))
	})

	if !rl.redisClient.IsEnabled() {
		slog.Info("Invalidated IP rate limits (in-memory)", "ip", ip)
		return nil
	}

	if err := rl.deleteByPattern(ctx, ipKey(ip)); err != nil {
		return err
	}
	return rl.deleteByPattern(ctx, fmt.Sprintf("ratelimit:endpoint:*:%s", ip))
}

// InvalidateAll removes all rate limit keys (emergency use only)
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	count := rl.dropFallback(func(string) bool { return true })

	if !rl.redisClient.IsEnabled() {
		slog.Warn("Invalidated all rate limits (in-memory)", "count", count)
		return nil
	}

	pattern := "ratelimit:*"
	slog.Warn("Invalidating ALL rate limits", "pattern", pattern)
	return rl.deleteByPattern(ctx, pattern)
}

func (rl *RateLimiter) dropFallback(match func(key string) bool) int {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	n := 0
	for key := range rl.fallbackLimiters {
		if match(key) {
			delete(rl.fallbackLimiters, key)
			n++
		}
	}
	return n
}

// deleteByPattern deletes all Redis keys matching a pattern
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.GetClient()

	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("Deleted rate limit keys by pattern", "pattern", pattern, "count", deletedCount)
	return nil
}
