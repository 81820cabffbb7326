package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/imagefeed/internal/crypto/clientcrypto"
	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/model"
)

// sealAAD binds sealed blobs to this file format.
var sealAAD = []byte("imagefeed/token/v1")

// ErrPassphraseRequired is returned when loading an encrypted file without a passphrase.
var ErrPassphraseRequired = errors.New("token file is encrypted: passphrase required")

type tokenFile struct {
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Salt        []byte    `json:"salt,omitempty"`
	Sealed      []byte    `json:"sealed,omitempty"`
}

// File persists credentials as JSON. With a passphrase the credentials are
// sealed with a key derived from it; the salt is stored alongside.
type File struct {
	path       string
	passphrase []byte
}

var _ Persister = (*File)(nil)

// NewFile constructs a file persister. An empty passphrase stores the token in clear.
func NewFile(path, passphrase string) *File {
	f := &File{path: path}
	if passphrase != "" {
		f.passphrase = []byte(passphrase)
	}
	return f
}

// DefaultDir is $XDG_CONFIG_HOME/imagefeed, falling back to ~/.config/imagefeed.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "imagefeed")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "imagefeed")
}

// DefaultPath is the token file inside DefaultDir.
func DefaultPath() string { return filepath.Join(DefaultDir(), "token.json") }

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load implements Persister.
func (f *File) Load(_ context.Context) (model.Credentials, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Credentials{}, errs.ErrNotFound
	}
	if err != nil {
		return model.Credentials{}, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return model.Credentials{}, fmt.Errorf("parse token file: %w", err)
	}

	if len(tf.Sealed) > 0 {
		if f.passphrase == nil {
			return model.Credentials{}, ErrPassphraseRequired
		}
		key := clientcrypto.DeriveKey(f.passphrase, tf.Salt)
		pt, err := clientcrypto.Open(key, sealAAD, tf.Sealed)
		if err != nil {
			return model.Credentials{}, fmt.Errorf("open token file: %w", err)
		}
		var inner tokenFile
		if err := json.Unmarshal(pt, &inner); err != nil {
			return model.Credentials{}, fmt.Errorf("parse sealed token: %w", err)
		}
		tf = inner
	}

	if tf.AccessToken == "" {
		return model.Credentials{}, errs.ErrNotFound
	}
	return model.Credentials{AccessToken: tf.AccessToken, ExpiresAt: tf.ExpiresAt}, nil
}

// Save implements Persister. The file is replaced atomically.
func (f *File) Save(_ context.Context, c model.Credentials) error {
	tf := tokenFile{AccessToken: c.AccessToken, ExpiresAt: c.ExpiresAt}

	if f.passphrase != nil {
		plain, err := json.Marshal(tf)
		if err != nil {
			return err
		}
		salt, err := clientcrypto.Rand(clientcrypto.SaltLen)
		if err != nil {
			return err
		}
		sealed, err := clientcrypto.Seal(clientcrypto.DeriveKey(f.passphrase, salt), sealAAD, plain)
		if err != nil {
			return fmt.Errorf("seal token: %w", err)
		}
		tf = tokenFile{Salt: salt, Sealed: sealed}
	}

	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".token-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Clear implements Persister.
func (f *File) Clear(_ context.Context) error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
