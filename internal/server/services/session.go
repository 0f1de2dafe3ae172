// Package services contains server-side business logic. This file implements
// SessionService, which owns the credential and session lifecycle:
// registration, login/logout, refresh-token rotation, and profile updates.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viewtube/accounts/internal/common"
	"github.com/viewtube/accounts/internal/dbx"
	"github.com/viewtube/accounts/internal/logging"
	"github.com/viewtube/accounts/internal/server/auth"
	"github.com/viewtube/accounts/internal/server/config"
	"github.com/viewtube/accounts/internal/server/media"
	"github.com/viewtube/accounts/internal/server/models"
	"github.com/viewtube/accounts/internal/server/password"
	"github.com/viewtube/accounts/internal/server/repositories/accounts"
	"github.com/viewtube/accounts/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterParams carries the registration input. Avatar is required; the
// cover image is optional (empty path means none was sent).
type RegisterParams struct {
	FullName       string
	Username       string
	Email          string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// SessionService orchestrates the hasher, token layer, account storage and
// the media collaborator. Invariant it owns: at most one live refresh token
// per account (the single slot on the accounts row).
type SessionService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	hasher                       *password.Hasher
	uploader                     media.Uploader
	logger                       logging.Logger
	accessTokenSecret            []byte
	refreshTokenSecret           []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewSessionService constructs a SessionService using repositories and server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, hasher *password.Hasher,
	uploader media.Uploader, logger logging.Logger, cfg *config.Config) *SessionService {
	return &SessionService{
		db:                           db,
		repomanager:                  m,
		hasher:                       hasher,
		uploader:                     uploader,
		logger:                       logger.With("module", "session_service"),
		accessTokenSecret:            []byte(cfg.AccessTokenSecret),
		refreshTokenSecret:           []byte(cfg.RefreshTokenSecret),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Register validates the input, uploads the required avatar (and optional
// cover image), and persists the new account with an empty refresh-token
// slot. If any upload fails, no account row is created.
func (s *SessionService) Register(ctx context.Context, p RegisterParams) (*models.RedactedAccount, error) {
	fullName := strings.TrimSpace(p.FullName)
	username := normalizeLogin(p.Username)
	email := normalizeLogin(p.Email)

	if fullName == "" || username == "" || email == "" || strings.TrimSpace(p.Password) == "" {
		return nil, fmt.Errorf("%w: all fields are required", common.ErrorValidation)
	}
	if p.AvatarPath == "" {
		return nil, fmt.Errorf("%w: avatar file is required", common.ErrorValidation)
	}

	repo := s.repomanager.Accounts(s.db)

	for _, login := range []string{username, email} {
		if _, err := repo.FindByUsernameOrEmail(ctx, login); err == nil {
			return nil, common.ErrorAlreadyExists
		} else if !errors.Is(err, common.ErrorNotFound) {
			return nil, storageError(err)
		}
	}

	avatarURL, err := s.uploader.Upload(ctx, p.AvatarPath)
	if err != nil {
		return nil, err
	}

	var coverImageURL string
	if p.CoverImagePath != "" {
		coverImageURL, err = s.uploader.Upload(ctx, p.CoverImagePath)
		if err != nil {
			return nil, err
		}
	}

	hashed, err := s.hasher.Hash(p.Password)
	if err != nil {
		return nil, err
	}

	account, err := repo.Create(ctx, &models.Account{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
		PasswordHash:  hashed,
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID)
	return account.Redacted(), nil
}

// Login verifies credentials against the stored hash and, on success, mints a
// token pair and persists the refresh token into the account's single slot.
// Overwriting the slot implicitly logs out any previous session.
func (s *SessionService) Login(ctx context.Context, login, plaintext string) (*TokenPair, *models.RedactedAccount, error) {
	login = normalizeLogin(login)
	if login == "" {
		return nil, nil, fmt.Errorf("%w: username or email is required", common.ErrorValidation)
	}

	repo := s.repomanager.Accounts(s.db)

	account, err := repo.FindByUsernameOrEmail(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorNotFound
		}
		return nil, nil, storageError(err)
	}

	ok, err := s.hasher.Verify(plaintext, account.PasswordHash)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, common.ErrorInvalidCredentials
	}

	pair, err := s.generateTokenPair(account)
	if err != nil {
		return nil, nil, err
	}

	if err := repo.SetRefreshToken(ctx, account.ID, pair.RefreshToken); err != nil {
		return nil, nil, storageError(err)
	}

	return pair, account.Redacted(), nil
}

// Logout clears the account's refresh-token slot. Logging out an already
// logged-out account is not an error.
func (s *SessionService) Logout(ctx context.Context, accountID string) error {
	repo := s.repomanager.Accounts(s.db)
	if err := repo.SetRefreshToken(ctx, accountID, ""); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return storageError(err)
	}
	return nil
}

// RefreshTokens validates a presented refresh token, rotates the stored slot
// atomically, and returns a fresh pair. A token that no longer matches the
// slot (already rotated, cleared by logout, or forged) yields
// common.ErrTokenReused, forcing re-authentication.
func (s *SessionService) RefreshTokens(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		return nil, fmt.Errorf("%w: missing refresh token", common.ErrorUnauthorized)
	}

	claims, err := auth.VerifyRefreshToken(presented, s.refreshTokenSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	repo := s.repomanager.Accounts(s.db)

	account, err := repo.FindByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: unknown account", common.ErrorUnauthorized)
		}
		return nil, storageError(err)
	}

	pair, err := s.generateTokenPair(account)
	if err != nil {
		return nil, err
	}

	// Compare-and-set closes the replay window: of two concurrent refreshes
	// with the same token, exactly one update matches the stored value.
	if err := repo.RotateRefreshToken(ctx, account.ID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrTokenReused
		}
		return nil, storageError(err)
	}

	return pair, nil
}

// ChangePassword verifies the old password and persists a hash of the new
// one. The refresh-token slot is cleared in the same transaction, so
// outstanding sessions on other devices cannot outlive the old credential.
func (s *SessionService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	repo := s.repomanager.Accounts(s.db)

	account, err := repo.FindByID(ctx, accountID)
	if err != nil {
		return storageError(err)
	}

	ok, err := s.hasher.Verify(oldPassword, account.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorInvalidCredentials
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepo := s.repomanager.Accounts(tx)
		if _, err := txRepo.UpdateFields(ctx, accountID, accounts.Patch{PasswordHash: &hashed}); err != nil {
			return err
		}
		return txRepo.SetRefreshToken(ctx, accountID, "")
	})
	if err != nil {
		return storageError(err)
	}

	s.logger.Info(ctx, "password changed", "account_id", accountID)
	return nil
}

// CurrentAccount returns the redacted account for an authenticated id.
func (s *SessionService) CurrentAccount(ctx context.Context, accountID string) (*models.RedactedAccount, error) {
	account, err := s.repomanager.Accounts(s.db).FindByID(ctx, accountID)
	if err != nil {
		return nil, storageError(err)
	}
	return account.Redacted(), nil
}

// UpdateAccount changes full name and email. Both are required.
func (s *SessionService) UpdateAccount(ctx context.Context, accountID, fullName, email string) (*models.RedactedAccount, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalizeLogin(email)
	if fullName == "" || email == "" {
		return nil, fmt.Errorf("%w: full name and email are required", common.ErrorValidation)
	}

	account, err := s.repomanager.Accounts(s.db).UpdateFields(ctx, accountID, accounts.Patch{
		FullName: &fullName,
		Email:    &email,
	})
	if err != nil {
		return nil, storageError(err)
	}
	return account.Redacted(), nil
}

// UpdateAvatar uploads a replacement avatar and persists its URL.
func (s *SessionService) UpdateAvatar(ctx context.Context, accountID, localPath string) (*models.RedactedAccount, error) {
	return s.updateImage(ctx, accountID, localPath, func(url string) accounts.Patch {
		return accounts.Patch{AvatarURL: &url}
	})
}

// UpdateCoverImage uploads a replacement cover image and persists its URL.
func (s *SessionService) UpdateCoverImage(ctx context.Context, accountID, localPath string) (*models.RedactedAccount, error) {
	return s.updateImage(ctx, accountID, localPath, func(url string) accounts.Patch {
		return accounts.Patch{CoverImageURL: &url}
	})
}

// --- helpers below ---

func (s *SessionService) updateImage(ctx context.Context, accountID, localPath string, patch func(url string) accounts.Patch) (*models.RedactedAccount, error) {
	if localPath == "" {
		return nil, fmt.Errorf("%w: image file is required", common.ErrorValidation)
	}

	url, err := s.uploader.Upload(ctx, localPath)
	if err != nil {
		return nil, err
	}

	account, err := s.repomanager.Accounts(s.db).UpdateFields(ctx, accountID, patch(url))
	if err != nil {
		return nil, storageError(err)
	}
	return account.Redacted(), nil
}

func (s *SessionService) generateTokenPair(account *models.Account) (*TokenPair, error) {
	access, err := auth.GenerateAccessToken(account, s.accessTokenSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := auth.GenerateRefreshToken(account.ID, s.refreshTokenSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func normalizeLogin(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// storageError keeps business sentinels intact and wraps anything else as a
// collaborator failure so no driver detail leaks to callers.
func storageError(err error) error {
	if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorAlreadyExists) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrorDependency, err)
}
