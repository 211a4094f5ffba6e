package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/openclaw/deviceauth-go/internal/model"
)

// KeyringStore keeps the credential in the OS keyring (macOS Keychain,
// Windows Credential Manager, Linux Secret Service) as a JSON blob.
type KeyringStore struct {
	service string
	user    string
}

var _ Store = (*KeyringStore)(nil)

func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

func (k *KeyringStore) Read(ctx context.Context) (*model.StoredCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var cred model.StoredCredential
	if err := json.Unmarshal([]byte(blob), &cred); err != nil {
		return nil, fmt.Errorf("parse keyring entry for service %s, user %s: %w", k.service, k.user, err)
	}
	if cred.Credential == "" {
		return nil, ErrNotFound
	}
	return &cred, nil
}

func (k *KeyringStore) Write(ctx context.Context, cred *model.StoredCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blob, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return keyring.Set(k.service, k.user, string(blob))
}

func (k *KeyringStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
