package models

import "time"

// Account is the persistent user record. Username and email are stored
// lower-cased and trimmed, and are unique across all accounts. PasswordHash
// is always set. RefreshToken holds the single currently-valid refresh token,
// or "" when the account has no live session.
type Account struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	AvatarURL     string
	CoverImageURL string
	PasswordHash  string
	RefreshToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RedactedAccount is the caller-facing view of an Account with the
// credential fields stripped. Every response serializes this, never Account.
type RedactedAccount struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Redacted returns the account without password hash and refresh token.
func (a *Account) Redacted() *RedactedAccount {
	return &RedactedAccount{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FullName:      a.FullName,
		AvatarURL:     a.AvatarURL,
		CoverImageURL: a.CoverImageURL,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}
