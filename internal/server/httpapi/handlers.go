package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/viewtube/accounts/internal/common"
	"github.com/viewtube/accounts/internal/server/models"
	"github.com/viewtube/accounts/internal/server/services"
)

// SessionManager is the slice of the session service the HTTP layer drives.
type SessionManager interface {
	Register(ctx context.Context, p services.RegisterParams) (*models.RedactedAccount, error)
	Login(ctx context.Context, login, password string) (*services.TokenPair, *models.RedactedAccount, error)
	Logout(ctx context.Context, accountID string) error
	RefreshTokens(ctx context.Context, presented string) (*services.TokenPair, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	CurrentAccount(ctx context.Context, accountID string) (*models.RedactedAccount, error)
	UpdateAccount(ctx context.Context, accountID, fullName, email string) (*models.RedactedAccount, error)
	UpdateAvatar(ctx context.Context, accountID, localPath string) (*models.RedactedAccount, error)
	UpdateCoverImage(ctx context.Context, accountID, localPath string) (*models.RedactedAccount, error)
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type authPayload struct {
	User         *models.RedactedAccount `json:"user,omitempty"`
	AccessToken  string                  `json:"accessToken"`
	RefreshToken string                  `json:"refreshToken"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, fmt.Errorf("%w: invalid multipart body", common.ErrorValidation))
		return
	}

	avatarPath, err := s.spoolFormFile(r, "avatar")
	if err != nil {
		writeError(w, err)
		return
	}
	coverPath, err := s.spoolFormFile(r, "coverImage")
	if err != nil {
		removeIfPresent(avatarPath)
		writeError(w, err)
		return
	}
	// uploads consumed by the service are already gone; this catches early exits
	defer removeIfPresent(avatarPath, coverPath)

	account, err := s.sessions.Register(r.Context(), services.RegisterParams{
		FullName:       r.FormValue("fullName"),
		Username:       r.FormValue("username"),
		Email:          r.FormValue("email"),
		Password:       r.FormValue("password"),
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account, "User registered successfully")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", common.ErrorValidation))
		return
	}

	login := req.Username
	if login == "" {
		login = req.Email
	}

	pair, account, err := s.sessions.Login(r.Context(), login, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	s.setAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	writeJSON(w, http.StatusOK, authPayload{
		User:         account,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "User logged in successfully")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context(), accountIDFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}

	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, struct{}{}, "User logged out")
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" && r.Body != nil {
		var req refreshRequest
		// body is optional for cookie clients; decode errors just leave token empty
		_ = json.NewDecoder(r.Body).Decode(&req)
		token = req.RefreshToken
	}

	pair, err := s.sessions.RefreshTokens(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	s.setAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	writeJSON(w, http.StatusOK, authPayload{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "Access token refreshed")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", common.ErrorValidation))
		return
	}

	err := s.sessions.ChangePassword(r.Context(), accountIDFromContext(r.Context()), req.OldPassword, req.NewPassword)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{}, "Password changed successfully")
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.sessions.CurrentAccount(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account, "Current user fetched successfully")
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", common.ErrorValidation))
		return
	}

	account, err := s.sessions.UpdateAccount(r.Context(), accountIDFromContext(r.Context()), req.FullName, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account, "Account details updated successfully")
}

func (s *Server) handleUpdateAvatar(w http.ResponseWriter, r *http.Request) {
	s.handleImageUpdate(w, r, "avatar", s.sessions.UpdateAvatar, "Avatar updated successfully")
}

func (s *Server) handleUpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	s.handleImageUpdate(w, r, "coverImage", s.sessions.UpdateCoverImage, "Cover image updated successfully")
}

func (s *Server) handleImageUpdate(w http.ResponseWriter, r *http.Request, field string,
	update func(ctx context.Context, accountID, localPath string) (*models.RedactedAccount, error), message string) {

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, fmt.Errorf("%w: invalid multipart body", common.ErrorValidation))
		return
	}

	path, err := s.spoolFormFile(r, field)
	if err != nil {
		writeError(w, err)
		return
	}
	defer removeIfPresent(path)

	account, err := update(r.Context(), accountIDFromContext(r.Context()), path)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account, message)
}
