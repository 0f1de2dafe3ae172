// Package accounts declares the server-side repository contract for account
// records in persistent storage.
package accounts

import (
	"context"

	"github.com/viewtube/accounts/internal/server/models"
)

// Patch describes a partial account update. Nil fields are left untouched.
type Patch struct {
	FullName      *string
	Email         *string
	AvatarURL     *string
	CoverImageURL *string
	PasswordHash  *string
}

// Repository defines the storage operations the session service depends on.
// Implementations must report a missing row as common.ErrorNotFound,
// distinctly from I/O failure, and a username/email collision on Create as
// common.ErrorAlreadyExists.
type Repository interface {
	// Create inserts a new account and returns it with storage-assigned
	// fields (id, timestamps) populated.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// FindByID returns the account with the given id.
	FindByID(ctx context.Context, id string) (*models.Account, error)

	// FindByUsernameOrEmail returns the account whose username or email
	// equals login (callers normalize the value first).
	FindByUsernameOrEmail(ctx context.Context, login string) (*models.Account, error)

	// UpdateFields applies a partial update and returns the updated account.
	UpdateFields(ctx context.Context, id string, patch Patch) (*models.Account, error)

	// SetRefreshToken overwrites the account's refresh token slot.
	// An empty token clears the slot.
	SetRefreshToken(ctx context.Context, id string, token string) error

	// RotateRefreshToken atomically replaces the stored refresh token with
	// next, but only if the stored value still equals presented. When the
	// compare fails (the token was already rotated, cleared, or never
	// belonged to this account) it returns common.ErrorNotFound without
	// modifying the row. This is the compare-and-set that keeps concurrent
	// refreshes from both succeeding with the same superseded token.
	RotateRefreshToken(ctx context.Context, id string, presented string, next string) error
}
