package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openclaw/oauth-bridge-go/internal/model"
	redisclient "github.com/openclaw/oauth-bridge-go/internal/redis"
)

// consumeStateScript checks and consumes a state hash in one step.
// Timestamps are unix milliseconds.
var consumeStateScript = redis.NewScript(`
local key = KEYS[1]
local provider = ARGV[1]
local now = tonumber(ARGV[2])
local retention = tonumber(ARGV[3])

if redis.call('EXISTS', key) == 0 then
    return 'not_found'
end

local fields = redis.call('HMGET', key, 'provider', 'status', 'expires_at')
if fields[1] ~= provider then
    return 'provider_mismatch'
end
if fields[2] == 'consumed' then
    return 'consumed'
end
if fields[2] == 'expired' or now > tonumber(fields[3]) then
    redis.call('HSET', key, 'status', 'expired')
    return 'expired'
end

redis.call('HSET', key, 'status', 'consumed', 'consumed_at', now)
redis.call('EXPIRE', key, retention)
return 'ok'
`)

type redisOAuthStateRepo struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisOAuthStateRepository stores states as hashes. A key lives for its TTL
// plus retention, so expired and consumed states stay inspectable for a while.
func NewRedisOAuthStateRepository(client *redis.Client, retention time.Duration) OAuthStateRepository {
	return &redisOAuthStateRepo{client: client, retention: retention}
}

func (r *redisOAuthStateRepo) Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error) {
	key := redisclient.StateKey(params.State)
	userID := ""
	if params.UserID != nil {
		userID = *params.UserID
	}
	payload := params.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", params.ID,
			"state", params.State,
			"provider", params.Provider,
			"user_id", userID,
			"payload", string(payload),
			"client_ip", params.ClientIP,
			"user_agent", params.UserAgent,
			"status", string(model.StateStatusValid),
			"expires_at", params.ExpiresAt.UnixMilli(),
			"consumed_at", "",
			"created_at", params.CreatedAt.UnixMilli(),
		)
		pipe.Expire(ctx, key, params.ExpiresAt.Sub(params.CreatedAt)+r.retention)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model.OAuthState{
		ID:        params.ID,
		State:     params.State,
		Provider:  params.Provider,
		UserID:    params.UserID,
		Payload:   payload,
		ClientIP:  params.ClientIP,
		UserAgent: params.UserAgent,
		Status:    model.StateStatusValid,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: params.CreatedAt,
	}, nil
}

func (r *redisOAuthStateRepo) Consume(ctx context.Context, state, provider string, now time.Time) (*model.OAuthState, error) {
	key := redisclient.StateKey(state)
	outcome, err := consumeStateScript.Run(
		ctx,
		r.client,
		[]string{key},
		provider,
		now.UnixMilli(),
		int64(r.retention.Seconds()),
	).Text()
	if err != nil {
		return nil, err
	}

	switch outcome {
	case "ok":
	case "not_found":
		return nil, ErrStateNotFound
	case "provider_mismatch":
		return nil, ErrStateProviderMismatch
	case "consumed":
		return nil, ErrStateConsumed
	case "expired":
		return nil, ErrStateExpired
	default:
		return nil, errors.New("unexpected consume outcome: " + outcome)
	}

	s, err := r.FindByState(ctx, state)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrStateNotFound
	}
	return s, nil
}

func (r *redisOAuthStateRepo) FindByState(ctx context.Context, state string) (*model.OAuthState, error) {
	fields, err := r.client.HGetAll(ctx, redisclient.StateKey(state)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 || fields["id"] == "" {
		return nil, nil
	}
	return stateFromHash(fields)
}

// MarkExpired is a no-op: Consume flips expired hashes lazily and Redis evicts
// keys once retention passes.
func (r *redisOAuthStateRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (r *redisOAuthStateRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func stateFromHash(fields map[string]string) (*model.OAuthState, error) {
	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, err
	}
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		return nil, err
	}

	s := &model.OAuthState{
		ID:        fields["id"],
		State:     fields["state"],
		Provider:  fields["provider"],
		Payload:   []byte(fields["payload"]),
		ClientIP:  fields["client_ip"],
		UserAgent: fields["user_agent"],
		Status:    model.StateStatus(fields["status"]),
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}
	if userID := fields["user_id"]; userID != "" {
		s.UserID = &userID
	}
	if raw := fields["consumed_at"]; raw != "" {
		consumedAt, err := parseMillis(raw)
		if err != nil {
			return nil, err
		}
		s.ConsumedAt = &consumedAt
	}
	return s, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
