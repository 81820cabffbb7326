// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/imagefeed/internal/model"
)

// CredentialsRepository stores the bearer token of the single signed-in account.
type CredentialsRepository interface {
	// Load returns stored credentials or errs.ErrNotFound.
	Load(ctx context.Context) (model.Credentials, error)
	// Save upserts the credentials.
	Save(ctx context.Context, c model.Credentials) error
	// Clear deletes the credentials; deleting nothing is not an error.
	Clear(ctx context.Context) error
}
