// Package cliconfig holds the deviceauth CLI configuration.
package cliconfig

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/openclaw/deviceauth-go/internal/credstore"
)

// StorageType selects where the issued credential is kept.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeKeyring StorageType = "keyring"
)

const (
	DefaultServerURL  = "http://localhost:8080"
	DefaultLogLevel   = "info"
	DefaultStorage    = StorageTypeFile
	keyringServiceKey = "deviceauth-credential"
)

// CredentialsConfig describes how to build the credential store.
type CredentialsConfig struct {
	Storage     StorageType `json:"storage" validate:"required,oneof=file keyring"`
	File        string      `json:"file,omitempty"`
	KeyringUser string      `json:"keyring_user,omitempty"`
}

// NewStore creates the configured credential store.
func (c *CredentialsConfig) NewStore() (credstore.Store, error) {
	var (
		store credstore.Store
		err   error
	)
	switch c.Storage {
	case StorageTypeFile:
		store, err = credstore.NewFileStore(c.File)
	case StorageTypeKeyring:
		store, err = credstore.NewKeyringStore(keyringServiceKey, c.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

type Config struct {
	ServerURL   string            `json:"server_url" validate:"required,url"`
	LogLevel    string            `json:"log_level" validate:"oneof=debug info warn error"`
	NoBrowser   bool              `json:"no_browser"`
	Credentials CredentialsConfig `json:"credentials"`
}

// ApplyDefaults fills unset fields, including the per-user credential location.
func (c *Config) ApplyDefaults() error {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Credentials.Storage == "" {
		c.Credentials.Storage = DefaultStorage
	}

	switch c.Credentials.Storage {
	case StorageTypeFile:
		if c.Credentials.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("credentials.file required (auto-detect failed: %w)", err)
			}
			c.Credentials.File = filepath.Join(configDir, "deviceauth", "credentials.json")
		}
	case StorageTypeKeyring:
		if c.Credentials.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("credentials.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Credentials.KeyringUser = currentUser.Username
		}
	}

	return nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Credentials.Storage {
	case StorageTypeFile:
		if c.Credentials.File == "" {
			return errors.New("file path required for file storage")
		}
	case StorageTypeKeyring:
		if c.Credentials.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
