package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
	"github.com/openclaw/deviceauth-go/internal/httputil"
	"github.com/openclaw/deviceauth-go/internal/model"
	"github.com/openclaw/deviceauth-go/internal/util"
)

type mockAccountRepo struct {
	findByTokenHashFunc func(ctx context.Context, tokenHash string) (*model.Account, error)
	findByIDFunc        func(ctx context.Context, id string) (*model.Account, error)
}

func (m *mockAccountRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Account, error) {
	if m.findByTokenHashFunc != nil {
		return m.findByTokenHashFunc(ctx, tokenHash)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func TestAuthMiddleware(t *testing.T) {
	testAccount := &model.Account{ID: "acc-123", Email: "a@example.com"}
	validToken := "valid-token"
	validTokenHash := util.HashToken(validToken)

	accountRepo := &mockAccountRepo{
		findByTokenHashFunc: func(ctx context.Context, tokenHash string) (*model.Account, error) {
			if tokenHash == validTokenHash {
				return testAccount, nil
			}
			return nil, nil
		},
	}

	t.Run("allows request with valid bearer token", func(t *testing.T) {
		middleware := NewAuthMiddleware(accountRepo)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := GetAccount(r.Context())
			require.NotNil(t, account)
			assert.Equal(t, "acc-123", account.ID)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/v1/device/approve", nil)
		req.Header.Set("Authorization", "Bearer "+validToken)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		middleware := NewAuthMiddleware(accountRepo)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("POST", "/v1/device/approve", nil)
		req.Header.Set("Authorization", "bearer "+validToken)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ignores query token", func(t *testing.T) {
		middleware := NewAuthMiddleware(accountRepo)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/v1/device/approve?token="+validToken, nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects request without token", func(t *testing.T) {
		middleware := NewAuthMiddleware(&mockAccountRepo{})
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/v1/device/approve", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body httputil.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, apperrors.ErrCodeUnauthenticated, body.Code)
	})

	t.Run("rejects request with invalid token", func(t *testing.T) {
		middleware := NewAuthMiddleware(accountRepo)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/v1/device/approve", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns 500 on database error", func(t *testing.T) {
		failing := &mockAccountRepo{
			findByTokenHashFunc: func(ctx context.Context, tokenHash string) (*model.Account, error) {
				return nil, errors.New("database error")
			},
		}

		middleware := NewAuthMiddleware(failing)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/v1/device/approve", nil)
		req.Header.Set("Authorization", "Bearer "+validToken)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetAccount(t *testing.T) {
	t.Run("returns account from context", func(t *testing.T) {
		ctx := WithAccount(context.Background(), &model.Account{ID: "test-id"})

		result := GetAccount(ctx)

		require.NotNil(t, result)
		assert.Equal(t, "test-id", result.ID)
	})

	t.Run("returns nil when no account in context", func(t *testing.T) {
		assert.Nil(t, GetAccount(context.Background()))
	})
}
