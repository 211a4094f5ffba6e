package model

import "time"

// StoredCredential is the client-side persisted result of a successful pairing.
type StoredCredential struct {
	Credential string      `json:"credential"`
	Account    Account     `json:"account"`
	Workspaces []Workspace `json:"workspaces"`
	IssuedAt   time.Time   `json:"issuedAt"`
}
