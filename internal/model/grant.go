package model

import "time"

type GrantStatus string

const (
	GrantStatusPending  GrantStatus = "pending"
	GrantStatusApproved GrantStatus = "approved"
	GrantStatusDenied   GrantStatus = "denied"
)

// Grant tracks one in-progress device pairing attempt.
type Grant struct {
	DeviceID      string      `json:"deviceId"`
	PairingCode   string      `json:"pairingCode"`
	Status        GrantStatus `json:"status"`
	ApproverID    *string     `json:"approverId,omitempty"`
	CredentialRef *string     `json:"credentialRef,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	ExpiresAt     time.Time   `json:"expiresAt"`
}

// IsExpired reports whether the grant's lifetime has ended at now.
func (g *Grant) IsExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

type Outcome string

const (
	OutcomePending Outcome = "authorization_pending"
	OutcomeDenied  Outcome = "access_denied"
	OutcomeExpired Outcome = "expired"
	OutcomeIssued  Outcome = "issued"
)

// Terminal reports whether a client should stop polling after this outcome.
func (o Outcome) Terminal() bool {
	return o != OutcomePending
}

type Redemption struct {
	Outcome    Outcome
	Credential *IssuedCredential
}

type IssuedCredential struct {
	Credential string      `json:"credential"`
	Account    Account     `json:"account"`
	Workspaces []Workspace `json:"workspaces"`
}

type PairingStart struct {
	DeviceID                string `json:"deviceId"`
	PairingCode             string `json:"pairingCode"`
	VerificationURL         string `json:"verificationUrl"`
	VerificationURLComplete string `json:"verificationUrlComplete,omitempty"`
	ExpiresIn               int    `json:"expiresIn"`
	Interval                int    `json:"interval"`
}

type TransitionGrantParams struct {
	PairingCode   string
	To            GrantStatus
	ApproverID    string
	CredentialRef *string
}
