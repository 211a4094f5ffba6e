package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/deviceauth-go/internal/audit"
	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
	"github.com/openclaw/deviceauth-go/internal/model"
	"github.com/openclaw/deviceauth-go/internal/repository"
	"github.com/openclaw/deviceauth-go/internal/util"
)

const maxCodeAttempts = 10

// ProfileLookup turns a credential reference into the account, its
// workspaces and the credential to hand to the device.
type ProfileLookup interface {
	Resolve(ctx context.Context, accountID string) (*model.Profile, error)
}

type GrantServiceConfig struct {
	TTL             time.Duration
	PollInterval    time.Duration
	VerificationURL string
}

type GrantServiceOption func(*GrantService)

func WithServiceClock(now func() time.Time) GrantServiceOption {
	return func(s *GrantService) {
		s.now = now
	}
}

func WithCodeGenerator(gen CodeGenerator) GrantServiceOption {
	return func(s *GrantService) {
		s.codes = gen
	}
}

// GrantService runs the pairing lifecycle: begin, approve or deny, redeem.
type GrantService struct {
	grants   repository.GrantRepository
	profiles ProfileLookup
	codes    CodeGenerator
	cfg      GrantServiceConfig
	locks    *keyedMutex
	now      func() time.Time
}

func NewGrantService(
	grants repository.GrantRepository,
	profiles ProfileLookup,
	cfg GrantServiceConfig,
	opts ...GrantServiceOption,
) *GrantService {
	s := &GrantService{
		grants:   grants,
		profiles: profiles,
		codes:    NewCodeGenerator(),
		cfg:      cfg,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin creates a pending grant and returns what the device needs to show
// and poll with.
func (s *GrantService) Begin(ctx context.Context) (*model.PairingStart, error) {
	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		deviceID, code, err := s.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate codes: %w", err)
		}

		now := s.now()
		grant := &model.Grant{
			DeviceID:    deviceID,
			PairingCode: code,
			Status:      model.GrantStatusPending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.cfg.TTL),
		}

		err = s.grants.Create(ctx, grant)
		if apperrors.HasCode(err, apperrors.ErrCodeCodeCollision) {
			lastErr = err
			log.Debug().Int("attempt", attempt+1).Msg("pairing code collision, regenerating")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create grant: %w", err)
		}

		log.Info().
			Str("code", util.MaskCode(code)).
			Time("expiresAt", grant.ExpiresAt).
			Msg("pairing started")

		return &model.PairingStart{
			DeviceID:                deviceID,
			PairingCode:             code,
			VerificationURL:         s.cfg.VerificationURL,
			VerificationURLComplete: s.completeURL(code),
			ExpiresIn:               int(s.cfg.TTL / time.Second),
			Interval:                int(s.cfg.PollInterval / time.Second),
		}, nil
	}

	log.Error().Int("attempts", maxCodeAttempts).Msg("could not allocate a unique pairing code")
	return nil, lastErr
}

func (s *GrantService) completeURL(code string) string {
	u, err := url.Parse(s.cfg.VerificationURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}

// Approve records approverID's consent. The approver's own account becomes
// the credential reference resolved at redemption.
func (s *GrantService) Approve(ctx context.Context, pairingCode, approverID string) (*model.Grant, error) {
	if approverID == "" {
		return nil, apperrors.Unauthenticated("Approval requires an authenticated account")
	}

	code := NormalizePairingCode(pairingCode)
	if code == "" {
		return nil, apperrors.MissingRequired("pairingCode")
	}

	credentialRef := approverID
	grant, err := s.grants.Transition(ctx, model.TransitionGrantParams{
		PairingCode:   code,
		To:            model.GrantStatusApproved,
		ApproverID:    approverID,
		CredentialRef: &credentialRef,
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			log.Warn().
				Str("code", util.MaskCode(code)).
				Str("approverId", approverID).
				Str("reason", string(apperrors.GetCode(err))).
				Msg("approve rejected")
			return nil, err
		}
		return nil, fmt.Errorf("approve grant: %w", err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventPairingApprove,
		AccountID: approverID,
		DeviceID:  grant.DeviceID,
	})
	return grant, nil
}

// Deny refuses a pairing. Unknown, expired and already-decided codes report
// success so that deny cannot be used to probe for live codes.
func (s *GrantService) Deny(ctx context.Context, pairingCode, approverID string) error {
	if approverID == "" {
		return apperrors.Unauthenticated("Denial requires an authenticated account")
	}

	code := NormalizePairingCode(pairingCode)
	grant, err := s.grants.Transition(ctx, model.TransitionGrantParams{
		PairingCode: code,
		To:          model.GrantStatusDenied,
		ApproverID:  approverID,
	})
	switch {
	case err == nil:
		audit.Log(ctx, audit.Event{
			Type:      audit.EventPairingDeny,
			AccountID: approverID,
			DeviceID:  grant.DeviceID,
		})
		return nil
	case apperrors.HasCode(err, apperrors.ErrCodeNotFound),
		apperrors.HasCode(err, apperrors.ErrCodeExpired),
		apperrors.HasCode(err, apperrors.ErrCodeAlreadyUsed):
		log.Debug().
			Str("code", util.MaskCode(code)).
			Str("reason", string(apperrors.GetCode(err))).
			Msg("deny ignored")
		return nil
	default:
		return fmt.Errorf("deny grant: %w", err)
	}
}

// Redeem is polled by the device. Approved and denied grants are consumed by
// exactly one caller; every later or concurrent caller sees expired.
func (s *GrantService) Redeem(ctx context.Context, deviceID string) (*model.Redemption, error) {
	if deviceID == "" {
		return expiredRedemption(), nil
	}

	unlock := s.locks.Lock(deviceID)
	defer unlock()

	grant, err := s.grants.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("find grant: %w", err)
	}
	if grant == nil {
		return expiredRedemption(), nil
	}
	if grant.IsExpired(s.now()) {
		if err := s.grants.Delete(ctx, deviceID); err != nil {
			return nil, fmt.Errorf("delete expired grant: %w", err)
		}
		return expiredRedemption(), nil
	}

	switch grant.Status {
	case model.GrantStatusPending:
		return &model.Redemption{Outcome: model.OutcomePending}, nil

	case model.GrantStatusDenied:
		consumed, err := s.grants.Consume(ctx, deviceID, model.GrantStatusDenied)
		if err != nil {
			return nil, fmt.Errorf("consume denied grant: %w", err)
		}
		if !consumed {
			return expiredRedemption(), nil
		}
		audit.Log(ctx, audit.Event{Type: audit.EventGrantDenied, DeviceID: deviceID})
		return &model.Redemption{Outcome: model.OutcomeDenied}, nil

	case model.GrantStatusApproved:
		return s.issue(ctx, grant)

	default:
		return nil, fmt.Errorf("grant %s has unknown status %q", util.MaskToken(deviceID), grant.Status)
	}
}

// issue resolves the profile before consuming so that a lookup failure
// leaves the grant redeemable.
func (s *GrantService) issue(ctx context.Context, grant *model.Grant) (*model.Redemption, error) {
	ref := grant.CredentialRef
	if ref == nil {
		ref = grant.ApproverID
	}
	if ref == nil || *ref == "" {
		return nil, apperrors.Internal("approved grant has no credential reference")
	}

	profile, err := s.profiles.Resolve(ctx, *ref)
	if err != nil {
		log.Error().Err(err).Str("accountId", *ref).Msg("profile lookup failed during redemption")
		return nil, apperrors.External("profile lookup", err)
	}
	if profile == nil {
		log.Error().Str("accountId", *ref).Msg("approver account not found during redemption")
		return nil, apperrors.External("profile lookup", errors.New("account not found"))
	}

	consumed, err := s.grants.Consume(ctx, grant.DeviceID, model.GrantStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("consume approved grant: %w", err)
	}
	if !consumed {
		return expiredRedemption(), nil
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventCredentialIssued,
		AccountID: profile.Account.ID,
		DeviceID:  grant.DeviceID,
	})

	workspaces := profile.Workspaces
	if workspaces == nil {
		workspaces = []model.Workspace{}
	}
	return &model.Redemption{
		Outcome: model.OutcomeIssued,
		Credential: &model.IssuedCredential{
			Credential: profile.Credential,
			Account:    profile.Account,
			Workspaces: workspaces,
		},
	}, nil
}

func expiredRedemption() *model.Redemption {
	return &model.Redemption{Outcome: model.OutcomeExpired}
}
