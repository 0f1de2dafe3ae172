package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/viewtube/accounts/internal/common"
	"github.com/viewtube/accounts/internal/dbx"
	"github.com/viewtube/accounts/internal/logging"
	"github.com/viewtube/accounts/internal/server/config"
	"github.com/viewtube/accounts/internal/server/models"
	"github.com/viewtube/accounts/internal/server/password"
	accountsrepo "github.com/viewtube/accounts/internal/server/repositories/accounts"
	"github.com/viewtube/accounts/internal/server/repositories/repomanager"
)

// --- fakes ---

// fakeAccountsRepo keeps accounts in memory and implements the same
// compare-and-set semantics as the Postgres repository.
type fakeAccountsRepo struct {
	accounts map[string]*models.Account
	nextID   int

	createErr error
	findErr   error
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{accounts: map[string]*models.Account{}}
}

func (f *fakeAccountsRepo) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.accounts {
		if existing.Username == a.Username || existing.Email == a.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.nextID++
	a.ID = string(rune('0' + f.nextID))
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeAccountsRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAccountsRepo) FindByUsernameOrEmail(ctx context.Context, login string) (*models.Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, a := range f.accounts {
		if a.Username == login || a.Email == login {
			copied := *a
			return &copied, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) UpdateFields(ctx context.Context, id string, patch accountsrepo.Patch) (*models.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if patch.FullName != nil {
		a.FullName = *patch.FullName
	}
	if patch.Email != nil {
		a.Email = *patch.Email
	}
	if patch.AvatarURL != nil {
		a.AvatarURL = *patch.AvatarURL
	}
	if patch.CoverImageURL != nil {
		a.CoverImageURL = *patch.CoverImageURL
	}
	if patch.PasswordHash != nil {
		a.PasswordHash = *patch.PasswordHash
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAccountsRepo) SetRefreshToken(ctx context.Context, id string, token string) error {
	a, ok := f.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.RefreshToken = token
	return nil
}

func (f *fakeAccountsRepo) RotateRefreshToken(ctx context.Context, id string, presented string, next string) error {
	a, ok := f.accounts[id]
	if !ok || a.RefreshToken != presented {
		return common.ErrorNotFound
	}
	a.RefreshToken = next
	return nil
}

// fakeRepoManagerAdapter satisfies repomanager.RepositoryManager.
type fakeRepoManagerAdapter struct {
	repo *fakeAccountsRepo
}

func (m *fakeRepoManagerAdapter) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *fakeRepoManagerAdapter) Accounts(db dbx.DBTX) accountsrepo.Repository { return m.repo }

var _ repomanager.RepositoryManager = (*fakeRepoManagerAdapter)(nil)

type fakeUploader struct {
	err   error
	calls []string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath string) (string, error) {
	f.calls = append(f.calls, localPath)
	if f.err != nil {
		return "", f.err
	}
	return "http://cdn.example/media/" + localPath, nil
}

// --- helpers ---

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newService(t *testing.T, repo *fakeAccountsRepo, up *fakeUploader) *SessionService {
	t.Helper()
	s, _ := newServiceWithDB(t, repo, up)
	return s
}

// newServiceWithDB exposes the sqlmock handle for tests that exercise
// transactional paths.
func newServiceWithDB(t *testing.T, repo *fakeAccountsRepo, up *fakeUploader) (*SessionService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		AccessTokenSecret:            "acc",
		RefreshTokenSecret:           "ref",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	return NewSessionService(db, &fakeRepoManagerAdapter{repo: repo}, password.NewHasher(4), up, testLogger(), cfg), mock
}

func registered(t *testing.T, s *SessionService, repo *fakeAccountsRepo) *models.RedactedAccount {
	t.Helper()
	acc, err := s.Register(context.Background(), RegisterParams{
		FullName:   "Alice Example",
		Username:   "alice",
		Email:      "a@x.com",
		Password:   "pw123",
		AvatarPath: "avatar.png",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return acc
}

// --- tests ---

func TestRegister_Success(t *testing.T) {
	repo := newFakeAccountsRepo()
	up := &fakeUploader{}
	s := newService(t, repo, up)

	acc := registered(t, s, repo)

	if acc.Username != "alice" || acc.Email != "a@x.com" {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if acc.AvatarURL == "" {
		t.Fatalf("avatar URL must be set")
	}

	stored := repo.accounts[acc.ID]
	if stored.PasswordHash == "" || stored.PasswordHash == "pw123" {
		t.Fatalf("password must be stored hashed")
	}
	if stored.RefreshToken != "" {
		t.Fatalf("fresh account must have an empty refresh slot")
	}
}

func TestRegister_NormalizesAndValidates(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})

	acc, err := s.Register(context.Background(), RegisterParams{
		FullName:   "  Bob Example  ",
		Username:   "  BoB ",
		Email:      " B@X.com ",
		Password:   "pw",
		AvatarPath: "a.png",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if acc.Username != "bob" || acc.Email != "b@x.com" || acc.FullName != "Bob Example" {
		t.Fatalf("expected normalized fields, got %+v", acc)
	}

	_, err = s.Register(context.Background(), RegisterParams{
		FullName: "   ", Username: "x", Email: "y@z.com", Password: "pw", AvatarPath: "a.png",
	})
	if !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("expected ErrorValidation for blank full name, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	registered(t, s, repo)

	_, err := s.Register(context.Background(), RegisterParams{
		FullName: "Alice Two", Username: "alice2", Email: "a@x.com",
		Password: "pw456", AvatarPath: "b.png",
	})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("expected ErrorAlreadyExists on email collision, got %v", err)
	}
}

func TestRegister_MissingAvatar(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})

	_, err := s.Register(context.Background(), RegisterParams{
		FullName: "Alice", Username: "alice", Email: "a@x.com", Password: "pw",
	})
	if !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("expected ErrorValidation, got %v", err)
	}
}

func TestRegister_UploadFailurePersistsNothing(t *testing.T) {
	repo := newFakeAccountsRepo()
	up := &fakeUploader{err: common.ErrorDependency}
	s := newService(t, repo, up)

	_, err := s.Register(context.Background(), RegisterParams{
		FullName: "Alice", Username: "alice", Email: "a@x.com",
		Password: "pw", AvatarPath: "a.png",
	})
	if !errors.Is(err, common.ErrorDependency) {
		t.Fatalf("expected ErrorDependency, got %v", err)
	}
	if len(repo.accounts) != 0 {
		t.Fatalf("no account may be persisted when the avatar upload fails")
	}
}

func TestLogin_SuccessPersistsReturnedRefreshToken(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	acc := registered(t, s, repo)

	pair, redacted, err := s.Login(context.Background(), "alice", "pw123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected a full token pair")
	}
	if redacted.ID != acc.ID {
		t.Fatalf("unexpected account in response")
	}
	if repo.accounts[acc.ID].RefreshToken != pair.RefreshToken {
		t.Fatalf("stored refresh token must equal the returned one")
	}
}

func TestLogin_ByEmail(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	registered(t, s, repo)

	if _, _, err := s.Login(context.Background(), " A@X.com ", "pw123"); err != nil {
		t.Fatalf("login by email must work with unnormalized input: %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	registered(t, s, repo)

	_, _, err := s.Login(context.Background(), "alice", "nope")
	if !errors.Is(err, common.ErrorInvalidCredentials) {
		t.Fatalf("expected ErrorInvalidCredentials, got %v", err)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})

	_, _, err := s.Login(context.Background(), "ghost", "pw")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestLogin_OverwritesPreviousSession(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	acc := registered(t, s, repo)

	first, _, err := s.Login(context.Background(), "alice", "pw123")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, _, err := s.Login(context.Background(), "alice", "pw123")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if repo.accounts[acc.ID].RefreshToken != second.RefreshToken {
		t.Fatalf("slot must hold the newest refresh token")
	}

	// the first session's token is now superseded
	if _, err := s.RefreshTokens(context.Background(), first.RefreshToken); !errors.Is(err, common.ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused for the overwritten token, got %v", err)
	}
}

func TestRefresh_RotationSucceedsExactlyOnce(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	acc := registered(t, s, repo)

	pair, _, err := s.Login(context.Background(), "alice", "pw123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	next, err := s.RefreshTokens(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh must succeed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("rotation must mint a different refresh token")
	}
	if repo.accounts[acc.ID].RefreshToken != next.RefreshToken {
		t.Fatalf("slot must hold the rotated token")
	}

	_, err = s.RefreshTokens(context.Background(), pair.RefreshToken)
	if !errors.Is(err, common.ErrTokenReused) {
		t.Fatalf("second use of the same token must fail with ErrTokenReused, got %v", err)
	}
}

func TestRefresh_MissingToken(t *testing.T) {
	s := newService(t, newFakeAccountsRepo(), &fakeUploader{})

	_, err := s.RefreshTokens(context.Background(), "")
	if !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected ErrorUnauthorized, got %v", err)
	}
}

func TestRefresh_GarbageToken(t *testing.T) {
	s := newService(t, newFakeAccountsRepo(), &fakeUploader{})

	_, err := s.RefreshTokens(context.Background(), "not.a.jwt")
	if !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected ErrorUnauthorized, got %v", err)
	}
}

func TestLogout_InvalidatesRefreshToken(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	acc := registered(t, s, repo)

	pair, _, err := s.Login(context.Background(), "alice", "pw123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	if err := s.Logout(context.Background(), acc.ID); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if repo.accounts[acc.ID].RefreshToken != "" {
		t.Fatalf("logout must clear the refresh slot")
	}

	// idempotent
	if err := s.Logout(context.Background(), acc.ID); err != nil {
		t.Fatalf("second logout must not fail: %v", err)
	}

	if _, err := s.RefreshTokens(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused after logout, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	repo := newFakeAccountsRepo()
	s, mock := newServiceWithDB(t, repo, &fakeUploader{})
	acc := registered(t, s, repo)

	if _, _, err := s.Login(context.Background(), "alice", "pw123"); err != nil {
		t.Fatalf("Login error: %v", err)
	}

	// the wrong old password must be rejected before any transaction starts
	if err := s.ChangePassword(context.Background(), acc.ID, "wrong", "new-pw"); !errors.Is(err, common.ErrorInvalidCredentials) {
		t.Fatalf("expected ErrorInvalidCredentials for wrong old password, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectCommit()
	if err := s.ChangePassword(context.Background(), acc.ID, "pw123", "new-pw"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet db expectations: %v", err)
	}

	if repo.accounts[acc.ID].RefreshToken != "" {
		t.Fatalf("password change must clear outstanding refresh tokens")
	}

	if _, _, err := s.Login(context.Background(), "alice", "pw123"); !errors.Is(err, common.ErrorInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, _, err := s.Login(context.Background(), "alice", "new-pw"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestCurrentAccount(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	acc := registered(t, s, repo)

	got, err := s.CurrentAccount(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("CurrentAccount error: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected account: %+v", got)
	}

	if _, err := s.CurrentAccount(context.Background(), "ghost"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestUpdateAccount(t *testing.T) {
	repo := newFakeAccountsRepo()
	s := newService(t, repo, &fakeUploader{})
	acc := registered(t, s, repo)

	got, err := s.UpdateAccount(context.Background(), acc.ID, "Alice B.", " NEW@X.com ")
	if err != nil {
		t.Fatalf("UpdateAccount error: %v", err)
	}
	if got.FullName != "Alice B." || got.Email != "new@x.com" {
		t.Fatalf("unexpected update result: %+v", got)
	}

	if _, err := s.UpdateAccount(context.Background(), acc.ID, "", "new@x.com"); !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("expected ErrorValidation, got %v", err)
	}
}

func TestUpdateAvatarAndCover(t *testing.T) {
	repo := newFakeAccountsRepo()
	up := &fakeUploader{}
	s := newService(t, repo, up)
	acc := registered(t, s, repo)

	got, err := s.UpdateAvatar(context.Background(), acc.ID, "new-avatar.png")
	if err != nil {
		t.Fatalf("UpdateAvatar error: %v", err)
	}
	if got.AvatarURL != "http://cdn.example/media/new-avatar.png" {
		t.Fatalf("unexpected avatar url: %q", got.AvatarURL)
	}

	got, err = s.UpdateCoverImage(context.Background(), acc.ID, "cover.png")
	if err != nil {
		t.Fatalf("UpdateCoverImage error: %v", err)
	}
	if got.CoverImageURL != "http://cdn.example/media/cover.png" {
		t.Fatalf("unexpected cover url: %q", got.CoverImageURL)
	}

	if _, err := s.UpdateAvatar(context.Background(), acc.ID, ""); !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("expected ErrorValidation for empty path, got %v", err)
	}
}
