package model

import (
	"time"
)

type Account struct {
	ID                string     `db:"id" json:"id"`
	Email             string     `db:"email" json:"email"`
	Name              string     `db:"name" json:"name"`
	APITokenHash      *string    `db:"api_token_hash" json:"-"`
	APITokenEncrypted *string    `db:"api_token_encrypted" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
	DisabledAt        *time.Time `db:"disabled_at" json:"disabledAt,omitempty"`
}

type WorkspaceRole string

const (
	WorkspaceRoleOwner  WorkspaceRole = "owner"
	WorkspaceRoleMember WorkspaceRole = "member"
	WorkspaceRoleViewer WorkspaceRole = "viewer"
)

type Workspace struct {
	ID   string        `db:"id" json:"id"`
	Name string        `db:"name" json:"name"`
	Role WorkspaceRole `db:"role" json:"role"`
}

// Profile is what the profile lookup returns for a credential reference.
type Profile struct {
	Account    Account
	Workspaces []Workspace
	Credential string
}
