package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/deviceauth-go/internal/model"
)

type stubDB struct {
	err   error
	email string
}

func (s *stubDB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if s.err != nil {
		return s.err
	}
	dest.(*model.Account).Email = s.email
	return nil
}

func (s *stubDB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errors.New("not implemented")
}

func (s *stubDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errors.New("not implemented")
}

func TestGetOptional(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the row", func(t *testing.T) {
		account, err := getOptional[model.Account](ctx, &stubDB{email: "ana@example.com"}, "SELECT 1")
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, "ana@example.com", account.Email)
	})

	t.Run("missing row is nil without error", func(t *testing.T) {
		account, err := getOptional[model.Account](ctx, &stubDB{err: sql.ErrNoRows}, "SELECT 1")
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		_, err := getOptional[model.Account](ctx, &stubDB{err: sql.ErrConnDone}, "SELECT 1")
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}
