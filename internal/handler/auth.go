package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/auth"
	"github.com/dorholt/larder/internal/middleware"
	"github.com/dorholt/larder/internal/model"
	"github.com/dorholt/larder/internal/store"
)

type AuthHandler struct {
	users      *store.UserStore
	households *store.HouseholdStore
	tokens     *auth.Tokens
	logger     *slog.Logger
}

func NewAuthHandler(us *store.UserStore, hs *store.HouseholdStore, tokens *auth.Tokens, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: us, households: hs, tokens: tokens, logger: logger}
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, userID int64, remember bool) error {
	token, err := h.tokens.Sign(userID, remember)
	if err != nil {
		return err
	}
	middleware.SetSessionCookie(w, token, remember)
	return nil
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Remember bool   `json:"remember"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, h.logger, apperr.New(apperr.Validation, "username and password required"))
		return
	}

	user, err := h.users.GetByUsername(req.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil || user.Archived || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		writeError(w, h.logger, apperr.New(apperr.Authentication, "invalid username or password"))
		return
	}

	if err := h.issueSession(w, user.ID, req.Remember); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		JoinCode    string `json:"join_code"`
		Remember    bool   `json:"remember"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Username == "" || req.DisplayName == "" || req.Password == "" {
		writeError(w, h.logger, apperr.New(apperr.Validation, "username, display name, and password required"))
		return
	}

	// A join code must resolve before the user row exists.
	var householdID *int64
	if req.JoinCode != "" {
		household, err := h.households.GetByJoinCode(req.JoinCode)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if household == nil {
			writeError(w, h.logger, apperr.New(apperr.NotFound, "invalid join code"))
			return
		}
		householdID = &household.ID
	}

	digest, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Without a join code the new user gets a household of their own,
	// created in the same transaction as the user row.
	var user *model.User
	if householdID != nil {
		user, err = h.users.Create(req.Username, req.DisplayName, digest, householdID, model.RoleMember)
	} else {
		user, err = h.users.CreateWithHousehold(req.Username, req.DisplayName, digest)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.issueSession(w, user.ID, req.Remember); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// Session resolves the current session and renews the cookie.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.Authentication, "not authenticated"))
		return
	}

	user, err := h.users.GetByID(p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil || user.Archived {
		middleware.ClearSessionCookie(w)
		writeError(w, h.logger, apperr.New(apperr.Authentication, "not authenticated"))
		return
	}

	if err := h.issueSession(w, user.ID, p.Remember); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) JoinHousehold(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req struct {
		JoinCode string `json:"join_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JoinCode == "" {
		writeError(w, h.logger, apperr.New(apperr.Validation, "join_code required"))
		return
	}

	household, err := h.households.Join(p.UserID, req.JoinCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"household": household})
}

func (h *AuthHandler) CreateHousehold(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	// Body is optional; an empty name falls back to the default.
	json.NewDecoder(r.Body).Decode(&req)

	household, err := h.households.CreateForUser(p.UserID, strings.TrimSpace(req.Name))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"household": household})
}

func (h *AuthHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, h.logger, apperr.New(apperr.Validation, "username required"))
		return
	}

	if err := h.households.RemoveMember(p.UserID, req.Username); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed_username": req.Username})
}

func (h *AuthHandler) DissolveHousehold(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	if err := h.households.Dissolve(p.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "household dissolved"})
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req struct {
		DisplayName *string `json:"display_name"`
		OldPassword string  `json:"old_password"`
		NewPassword *string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}

	patch := store.ProfilePatch{DisplayName: req.DisplayName}

	if req.NewPassword != nil {
		if req.OldPassword == "" {
			writeError(w, h.logger, apperr.New(apperr.Validation, "old_password required to change password"))
			return
		}
		user, err := h.users.GetByID(p.UserID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if user == nil || !auth.VerifyPassword(req.OldPassword, user.PasswordHash) {
			writeError(w, h.logger, apperr.New(apperr.Authentication, "old password incorrect"))
			return
		}
		digest, err := auth.HashPassword(*req.NewPassword)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		patch.NewPasswordHash = &digest
	}

	user, err := h.users.UpdateProfile(p.UserID, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// DeleteAccount hard-deletes the caller's own account. The path id must be
// the caller's, and the body must re-type the username as confirmation.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if id != p.UserID {
		writeError(w, h.logger, apperr.New(apperr.Forbidden, "can only delete your own account"))
		return
	}

	var req struct {
		ConfirmUsername string `json:"confirm_username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid JSON"))
		return
	}

	if err := h.users.DeleteAccount(p.UserID, req.ConfirmUsername); err != nil {
		writeError(w, h.logger, err)
		return
	}

	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

func (h *AuthHandler) Members(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	members, err := h.households.ListMembers(householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *AuthHandler) HouseholdSummary(w http.ResponseWriter, r *http.Request) {
	householdID, err := parseIDParam(r, "householdID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := requireHousehold(r, householdID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	summary, err := h.households.Summary(householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if summary == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "household not found"))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
