package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
	"github.com/openclaw/deviceauth-go/internal/model"
	redisclient "github.com/openclaw/deviceauth-go/internal/redis"
)

// sweepBatchSize bounds the work done by a single sweep script invocation.
const sweepBatchSize = 500

// createGrantScript writes both indices and the expiry entry, or nothing.
var createGrantScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
    return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PXAT', ARGV[2])
redis.call('SET', KEYS[2], ARGV[3], 'PXAT', ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[3])
return 1
`)

// transitionGrantScript returns {0} not found, {2} expired, {3} already used, {1, json} on success.
var transitionGrantScript = redis.NewScript(`
local deviceId = redis.call('GET', KEYS[1])
if not deviceId then
    return {0}
end
local grantKey = ARGV[5] .. deviceId
local raw = redis.call('GET', grantKey)
if not raw then
    redis.call('DEL', KEYS[1])
    return {0}
end
local g = cjson.decode(raw)
if tonumber(g.expiresAtMs) <= tonumber(ARGV[1]) then
    redis.call('DEL', grantKey, KEYS[1])
    redis.call('ZREM', KEYS[2], deviceId)
    return {2}
end
if g.status ~= 'pending' then
    return {3}
end
g.status = ARGV[2]
g.approverId = ARGV[3]
if ARGV[4] ~= '' then
    g.credentialRef = ARGV[4]
end
local encoded = cjson.encode(g)
redis.call('SET', grantKey, encoded, 'KEEPTTL')
return {1, encoded}
`)

// consumeGrantScript deletes the grant only if it is unexpired at ARGV[4] and its
// status matches ARGV[1]. An empty ARGV[1] deletes unconditionally. Expired
// grants are always removed and report 0.
var consumeGrantScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
    redis.call('ZREM', KEYS[2], ARGV[3])
    return 0
end
local g = cjson.decode(raw)
local expired = tonumber(g.expiresAtMs) <= tonumber(ARGV[4])
if not expired and ARGV[1] ~= '' and g.status ~= ARGV[1] then
    return 0
end
local codeKey = ARGV[2] .. g.pairingCode
if redis.call('GET', codeKey) == ARGV[3] then
    redis.call('DEL', codeKey)
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[3])
if expired then
    return 0
end
return 1
`)

// sweepGrantsScript removes up to ARGV[2] grants whose expiry score is at or before ARGV[1].
var sweepGrantsScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
    local grantKey = ARGV[3] .. id
    local raw = redis.call('GET', grantKey)
    if raw then
        local g = cjson.decode(raw)
        local codeKey = ARGV[4] .. g.pairingCode
        if redis.call('GET', codeKey) == id then
            redis.call('DEL', codeKey)
        end
        redis.call('DEL', grantKey)
    end
    redis.call('ZREM', KEYS[1], id)
end
return #ids
`)

// redisGrant is the stored form. Timestamps are unix milliseconds encoded as
// strings so the Lua scripts can compare them without float rounding.
type redisGrant struct {
	DeviceID      string            `json:"deviceId"`
	PairingCode   string            `json:"pairingCode"`
	Status        model.GrantStatus `json:"status"`
	ApproverID    *string           `json:"approverId,omitempty"`
	CredentialRef *string           `json:"credentialRef,omitempty"`
	CreatedAtMs   int64             `json:"createdAtMs,string"`
	ExpiresAtMs   int64             `json:"expiresAtMs,string"`
}

func toRedisGrant(g *model.Grant) redisGrant {
	return redisGrant{
		DeviceID:      g.DeviceID,
		PairingCode:   g.PairingCode,
		Status:        g.Status,
		ApproverID:    g.ApproverID,
		CredentialRef: g.CredentialRef,
		CreatedAtMs:   g.CreatedAt.UnixMilli(),
		ExpiresAtMs:   g.ExpiresAt.UnixMilli(),
	}
}

func (g redisGrant) toModel() *model.Grant {
	return &model.Grant{
		DeviceID:      g.DeviceID,
		PairingCode:   g.PairingCode,
		Status:        g.Status,
		ApproverID:    g.ApproverID,
		CredentialRef: g.CredentialRef,
		CreatedAt:     time.UnixMilli(g.CreatedAtMs),
		ExpiresAt:     time.UnixMilli(g.ExpiresAtMs),
	}
}

type redisGrantRepo struct {
	client *redis.Client
	now    func() time.Time
}

var _ GrantRepository = (*redisGrantRepo)(nil)

// NewRedisGrantRepository returns a store shared by every instance pointing at the
// same Redis. The scripts touch keys derived at runtime, so Redis Cluster is not supported.
func NewRedisGrantRepository(client *redis.Client, opts ...GrantRepositoryOption) GrantRepository {
	o := buildGrantRepoOptions(opts)
	return &redisGrantRepo{client: client, now: o.now}
}

func (r *redisGrantRepo) Create(ctx context.Context, grant *model.Grant) error {
	data, err := json.Marshal(toRedisGrant(grant))
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}

	created, err := createGrantScript.Run(ctx, r.client,
		[]string{
			redisclient.GrantKey(grant.DeviceID),
			redisclient.GrantCodeKey(grant.PairingCode),
			redisclient.GrantExpiryKey,
		},
		string(data), grant.ExpiresAt.UnixMilli(), grant.DeviceID,
	).Int()
	if err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	if created == 0 {
		return apperrors.CodeCollision()
	}
	return nil
}

func (r *redisGrantRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.Grant, error) {
	raw, err := r.client.Get(ctx, redisclient.GrantKey(deviceID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get grant: %w", err)
	}

	var stored redisGrant
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal grant: %w", err)
	}

	grant := stored.toModel()
	if grant.IsExpired(r.now()) {
		if err := r.Delete(ctx, deviceID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return grant, nil
}

func (r *redisGrantRepo) FindByPairingCode(ctx context.Context, code string) (*model.Grant, error) {
	deviceID, err := r.client.Get(ctx, redisclient.GrantCodeKey(code)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pairing code: %w", err)
	}

	grant, err := r.FindByDeviceID(ctx, deviceID)
	if err != nil || grant == nil {
		return nil, err
	}
	if grant.PairingCode != code {
		return nil, nil
	}
	return grant, nil
}

func (r *redisGrantRepo) Transition(ctx context.Context, params model.TransitionGrantParams) (*model.Grant, error) {
	credentialRef := ""
	if params.CredentialRef != nil {
		credentialRef = *params.CredentialRef
	}

	result, err := transitionGrantScript.Run(ctx, r.client,
		[]string{redisclient.GrantCodeKey(params.PairingCode), redisclient.GrantExpiryKey},
		r.now().UnixMilli(), string(params.To), params.ApproverID, credentialRef, redisclient.GrantKeyPrefix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("transition grant: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("transition grant: empty script result")
	}

	status, _ := result[0].(int64)
	switch status {
	case 0:
		return nil, apperrors.NotFound("Pairing code")
	case 2:
		return nil, apperrors.Expired()
	case 3:
		return nil, apperrors.AlreadyUsed()
	}

	encoded, ok := result[1].(string)
	if !ok {
		return nil, fmt.Errorf("transition grant: unexpected script result")
	}
	var stored redisGrant
	if err := json.Unmarshal([]byte(encoded), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal grant: %w", err)
	}
	return stored.toModel(), nil
}

func (r *redisGrantRepo) Consume(ctx context.Context, deviceID string, status model.GrantStatus) (bool, error) {
	return r.consume(ctx, deviceID, string(status))
}

func (r *redisGrantRepo) Delete(ctx context.Context, deviceID string) error {
	_, err := r.consume(ctx, deviceID, "")
	return err
}

func (r *redisGrantRepo) consume(ctx context.Context, deviceID, status string) (bool, error) {
	deleted, err := consumeGrantScript.Run(ctx, r.client,
		[]string{redisclient.GrantKey(deviceID), redisclient.GrantExpiryKey},
		status, redisclient.GrantCodeKeyPrefix(), deviceID, r.now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("consume grant: %w", err)
	}
	return deleted == 1, nil
}

func (r *redisGrantRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		removed, err := sweepGrantsScript.Run(ctx, r.client,
			[]string{redisclient.GrantExpiryKey},
			now.UnixMilli(), sweepBatchSize, redisclient.GrantKeyPrefix(), redisclient.GrantCodeKeyPrefix(),
		).Int64()
		if err != nil {
			return total, fmt.Errorf("sweep grants: %w", err)
		}
		total += removed
		if removed < sweepBatchSize {
			return total, nil
		}
	}
}

func (r *redisGrantRepo) Count(ctx context.Context) (int, error) {
	minScore := fmt.Sprintf("(%d", r.now().UnixMilli())
	count, err := r.client.ZCount(ctx, redisclient.GrantExpiryKey, minScore, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count grants: %w", err)
	}
	return int(count), nil
}
