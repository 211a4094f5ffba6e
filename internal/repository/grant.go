package repository

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
	"github.com/openclaw/deviceauth-go/internal/model"
)

// GrantRepository stores in-flight grants keyed by device id with a
// secondary index by pairing code. Both indices are always written and
// removed together.
type GrantRepository interface {
	// Create fails with CODE_COLLISION if the device id or pairing code is in use.
	Create(ctx context.Context, grant *model.Grant) error
	// FindByDeviceID returns nil when absent. Expired grants are removed and reported as absent.
	FindByDeviceID(ctx context.Context, deviceID string) (*model.Grant, error)
	FindByPairingCode(ctx context.Context, code string) (*model.Grant, error)
	// Transition moves a pending grant to a terminal status.
	// Fails with NOT_FOUND, EXPIRED or ALREADY_USED.
	Transition(ctx context.Context, params model.TransitionGrantParams) (*model.Grant, error)
	// Consume deletes the grant only if it is unexpired and currently in status.
	// Exactly one concurrent caller observes true.
	Consume(ctx context.Context, deviceID string, status model.GrantStatus) (bool, error)
	Delete(ctx context.Context, deviceID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// Count returns the number of unexpired grants.
	Count(ctx context.Context) (int, error)
}

type GrantRepositoryOption func(*grantRepoOptions)

type grantRepoOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) GrantRepositoryOption {
	return func(o *grantRepoOptions) {
		o.now = now
	}
}

func buildGrantRepoOptions(opts []GrantRepositoryOption) grantRepoOptions {
	o := grantRepoOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type memoryGrantRepo struct {
	mu       sync.Mutex
	byDevice map[string]*model.Grant
	byCode   map[string]string
	now      func() time.Time
}

var _ GrantRepository = (*memoryGrantRepo)(nil)

// NewMemoryGrantRepository returns a process-local store for single-instance deployments.
func NewMemoryGrantRepository(opts ...GrantRepositoryOption) GrantRepository {
	o := buildGrantRepoOptions(opts)
	return &memoryGrantRepo{
		byDevice: make(map[string]*model.Grant),
		byCode:   make(map[string]string),
		now:      o.now,
	}
}

func (r *memoryGrantRepo) Create(ctx context.Context, grant *model.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.byDevice[grant.DeviceID]; ok {
		if !existing.IsExpired(now) {
			return apperrors.CodeCollision()
		}
		r.removeLocked(existing.DeviceID)
	}
	if deviceID, ok := r.byCode[grant.PairingCode]; ok {
		if existing := r.byDevice[deviceID]; existing != nil && !existing.IsExpired(now) {
			return apperrors.CodeCollision()
		}
		r.removeLocked(deviceID)
	}

	stored := *grant
	r.byDevice[stored.DeviceID] = &stored
	r.byCode[stored.PairingCode] = stored.DeviceID
	return nil
}

func (r *memoryGrantRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activeLocked(deviceID), nil
}

func (r *memoryGrantRepo) FindByPairingCode(ctx context.Context, code string) (*model.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deviceID, ok := r.byCode[code]
	if !ok {
		return nil, nil
	}
	return r.activeLocked(deviceID), nil
}

func (r *memoryGrantRepo) Transition(ctx context.Context, params model.TransitionGrantParams) (*model.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deviceID, ok := r.byCode[params.PairingCode]
	if !ok {
		return nil, apperrors.NotFound("Pairing code")
	}
	grant, ok := r.byDevice[deviceID]
	if !ok {
		delete(r.byCode, params.PairingCode)
		return nil, apperrors.NotFound("Pairing code")
	}
	if grant.IsExpired(r.now()) {
		r.removeLocked(deviceID)
		return nil, apperrors.Expired()
	}
	if grant.Status != model.GrantStatusPending {
		return nil, apperrors.AlreadyUsed()
	}

	approverID := params.ApproverID
	grant.Status = params.To
	grant.ApproverID = &approverID
	grant.CredentialRef = params.CredentialRef

	result := *grant
	return &result, nil
}

func (r *memoryGrantRepo) Consume(ctx context.Context, deviceID string, status model.GrantStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	grant := r.activeLocked(deviceID)
	if grant == nil || grant.Status != status {
		return false, nil
	}
	r.removeLocked(deviceID)
	return true, nil
}

func (r *memoryGrantRepo) Delete(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(deviceID)
	return nil
}

func (r *memoryGrantRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for deviceID, grant := range r.byDevice {
		if grant.IsExpired(now) {
			r.removeLocked(deviceID)
			count++
		}
	}
	return count, nil
}

func (r *memoryGrantRepo) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	count := 0
	for _, grant := range r.byDevice {
		if !grant.IsExpired(now) {
			count++
		}
	}
	return count, nil
}

// activeLocked returns a copy of the grant, evicting it if expired.
func (r *memoryGrantRepo) activeLocked(deviceID string) *model.Grant {
	grant, ok := r.byDevice[deviceID]
	if !ok {
		return nil
	}
	if grant.IsExpired(r.now()) {
		r.removeLocked(deviceID)
		return nil
	}
	result := *grant
	return &result
}

func (r *memoryGrantRepo) removeLocked(deviceID string) {
	grant, ok := r.byDevice[deviceID]
	if !ok {
		return
	}
	delete(r.byDevice, deviceID)
	if r.byCode[grant.PairingCode] == deviceID {
		delete(r.byCode, grant.PairingCode)
	}
}
