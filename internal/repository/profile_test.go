package repository

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/deviceauth-go/internal/database"
	"github.com/openclaw/deviceauth-go/internal/model"
	"github.com/openclaw/deviceauth-go/internal/util"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(databaseURL)
	if err != nil {
		t.Skipf("database not reachable: %v", err)
	}
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE workspace_members, workspaces, accounts`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db.DB
}

func seedAccount(t *testing.T, db *sqlx.DB, id, token string) {
	t.Helper()

	encrypted, err := util.Encrypt(testEncryptionKey, token)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO accounts (id, email, name, api_token_hash, api_token_encrypted)
		VALUES ($1, $2, $3, $4, $5)
	`, id, strings.ToLower(id)+"@example.com", "User "+id, util.HashToken(token), encrypted)
	require.NoError(t, err)
}

func TestAccountRepository_FindByTokenHash(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acct-1", "token-one")

	repo := NewAccountRepository(db)

	account, err := repo.FindByTokenHash(ctx, util.HashToken("token-one"))
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "acct-1", account.ID)

	account, err = repo.FindByTokenHash(ctx, util.HashToken("wrong"))
	require.NoError(t, err)
	assert.Nil(t, account)

	_, err = db.Exec(`UPDATE accounts SET disabled_at = NOW() WHERE id = 'acct-1'`)
	require.NoError(t, err)
	account, err = repo.FindByTokenHash(ctx, util.HashToken("token-one"))
	require.NoError(t, err)
	assert.Nil(t, account, "disabled accounts cannot authenticate")
}

func TestProfileRepository_Resolve(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, "acct-1", "token-one")

	_, err := db.Exec(`INSERT INTO workspaces (id, name) VALUES ('ws-b', 'Beta'), ('ws-a', 'Alpha')`)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO workspace_members (workspace_id, account_id, role)
		VALUES ('ws-a', 'acct-1', 'owner'), ('ws-b', 'acct-1', 'viewer')
	`)
	require.NoError(t, err)

	repo := NewProfileRepository(db, testEncryptionKey)

	t.Run("returns decrypted credential and workspaces", func(t *testing.T) {
		profile, err := repo.Resolve(ctx, "acct-1")
		require.NoError(t, err)
		require.NotNil(t, profile)

		assert.Equal(t, "token-one", profile.Credential)
		assert.Equal(t, "acct-1", profile.Account.ID)
		require.Len(t, profile.Workspaces, 2)
		assert.Equal(t, "Alpha", profile.Workspaces[0].Name)
		assert.Equal(t, model.WorkspaceRoleOwner, profile.Workspaces[0].Role)
	})

	t.Run("unknown account", func(t *testing.T) {
		profile, err := repo.Resolve(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, profile)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		wrong := NewProfileRepository(db, strings.Repeat("ff", 32))
		_, err := wrong.Resolve(ctx, "acct-1")
		assert.Error(t, err)
	})
}
