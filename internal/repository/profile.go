package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/deviceauth-go/internal/model"
	"github.com/openclaw/deviceauth-go/internal/util"
)

// ProfileRepository resolves a credential reference (an account id) into the
// account, its workspaces and its long-lived API credential.
type ProfileRepository interface {
	Resolve(ctx context.Context, accountID string) (*model.Profile, error)
}

type profileRepo struct {
	db            sqlxDB
	accounts      AccountRepository
	encryptionKey string
}

// NewProfileRepository reads credentials from accounts.api_token_encrypted.
// With an empty encryptionKey the column is read as plaintext, which
// config validation only allows outside production.
func NewProfileRepository(db *sqlx.DB, encryptionKey string) ProfileRepository {
	return &profileRepo{
		db:            db,
		accounts:      NewAccountRepository(db),
		encryptionKey: encryptionKey,
	}
}

func (r *profileRepo) Resolve(ctx context.Context, accountID string) (*model.Profile, error) {
	account, err := r.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, nil
	}
	if account.APITokenEncrypted == nil || *account.APITokenEncrypted == "" {
		return nil, fmt.Errorf("account %s has no credential", accountID)
	}

	credential := *account.APITokenEncrypted
	if r.encryptionKey != "" {
		credential, err = util.Decrypt(r.encryptionKey, credential)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential: %w", err)
		}
	}

	workspaces := []model.Workspace{}
	err = r.db.SelectContext(ctx, &workspaces, `
		SELECT w.id, w.name, m.role
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.account_id = $1
		ORDER BY w.name
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	return &model.Profile{
		Account:    *account,
		Workspaces: workspaces,
		Credential: credential,
	}, nil
}
