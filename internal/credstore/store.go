// Package credstore persists the credential a device receives after pairing.
package credstore

import (
	"context"
	"errors"

	"github.com/openclaw/deviceauth-go/internal/model"
)

// ErrNotFound is returned by Read when nothing has been stored.
var ErrNotFound = errors.New("no stored credential")

// Store reads and writes the local credential.
type Store interface {
	// Read returns ErrNotFound if nothing is stored.
	Read(ctx context.Context) (*model.StoredCredential, error)
	Write(ctx context.Context, cred *model.StoredCredential) error
	// Delete removes the credential. Deleting a missing credential is not an error.
	Delete(ctx context.Context) error
}
