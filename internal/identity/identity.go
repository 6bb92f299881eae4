// Package identity resolves bearer API keys to callers
package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"owly-api/internal/shared"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Verifier interface {
	Verify(ctx context.Context, token string) (*shared.CallerMetadata, error)
}

// KeyVerifier looks API keys up in the read replica and caches hits in redis.
type KeyVerifier struct {
	rdb   *sql.DB
	redis *redis.Client
	log   *zap.SugaredLogger
}

func NewKeyVerifier(rdb *sql.DB, redisClient *redis.Client, log *zap.SugaredLogger) *KeyVerifier {
	return &KeyVerifier{rdb: rdb, redis: redisClient, log: log}
}

func cacheKey(apiKey string) string {
	return fmt.Sprintf("v1:caller:apikey:%s", apiKey)
}

func (v *KeyVerifier) Verify(ctx context.Context, apiKey string) (*shared.CallerMetadata, error) {
	if apiKey == "" {
		return nil, shared.ErrMissingAuth
	}

	var caller shared.CallerMetadata
	callerCacheKey := cacheKey(apiKey)
	cached, err := v.redis.Get(ctx, callerCacheKey).Result()
	switch {
	case err == nil:
		uerr := json.Unmarshal([]byte(cached), &caller)
		if uerr == nil && caller.CallerID != "" {
			caller.APIKey = apiKey
			return &caller, nil
		}
		v.log.Errorw("Error unmarshalling caller info cache", "error", uerr)
		caller = shared.CallerMetadata{}
	case !errors.Is(err, redis.Nil):
		v.log.Warnw("Caller cache unavailable", "error", err)
	}
	v.log.Debugw("Caller cache miss", "key", callerCacheKey)

	var callerID uint64
	err = v.rdb.QueryRowContext(ctx, `
		SELECT
		caller.id,
		caller.email
		FROM caller
		INNER JOIN api_key ON caller.id = api_key.caller_id
		WHERE api_key.id = ? AND api_key.revoked = 0
		`, apiKey).Scan(&callerID, &caller.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			v.log.Warnw("Invalid or revoked API key")
			return nil, shared.ErrUnauthorized
		}
		v.log.Errorw("Database error during API key validation", "error", err)
		return nil, errors.Join(shared.ErrUnauthorized, err)
	}
	caller.CallerID = fmt.Sprintf("%d", callerID)
	caller.APIKey = apiKey

	go func(c shared.CallerMetadata) {
		payload, err := json.Marshal(c)
		if err != nil {
			v.log.Errorw("Error marshalling caller info", "error", err)
			return
		}
		if err := v.redis.Set(context.Background(), callerCacheKey, payload, shared.CallerInfoCacheTTL).Err(); err != nil {
			v.log.Warnw("Failed caching caller info", "error", err)
		}
	}(caller)
	return &caller, nil
}
