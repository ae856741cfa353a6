package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/auth"
)

// clientIP prefers a proxy-supplied address over the raw socket peer,
// matching how the rate limiter's network-address axis expects to key.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

type handler struct {
	auth          *auth.Orchestrator
	passwordReset *auth.PasswordReset
	cookieName    string
	cookieDomain  string
	cookieSecure  bool
	cookieSame    string
	sessionTTL    time.Duration
}

func (h *handler) setSessionCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, BuildSessionCookie(h.cookieName, value, h.cookieDomain, h.cookieSame, h.cookieSecure, ttl))
}

func (h *handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, BuildDeletionCookie(h.cookieName, h.cookieDomain, h.cookieSame, h.cookieSecure))
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !readJSON(w, r, &req) {
		return
	}
	user, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": user.ID, "email": user.Email})
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"two_factor_code,omitempty"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}
	result, err := h.auth.Login(r.Context(), auth.LoginInput{
		Email:          req.Email,
		Password:       req.Password,
		TwoFactorCode:  req.TwoFactorCode,
		NetworkAddress: clientIP(r),
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.setSessionCookie(w, result.CookieValue, h.sessionTTL)
	writeJSON(w, http.StatusOK, map[string]any{"expires_at": result.ExpiresAt})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	userID, _ := UserFromContext(r.Context())
	var userIDPtr *string
	if userID != "" {
		userIDPtr = &userID
	}
	if err := h.auth.Logout(r.Context(), sessionID, userIDPtr); err != nil {
		writeError(w, r, err)
		return
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": user.ID, "email": user.Email})
}

type passwordResetRequestBody struct {
	Email string `json:"email"`
}

func (h *handler) passwordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequestBody
	if !readJSON(w, r, &req) {
		return
	}
	_ = h.passwordReset.Request(r.Context(), req.Email, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type passwordResetValidateBody struct {
	Token string `json:"token"`
}

func (h *handler) passwordResetValidate(w http.ResponseWriter, r *http.Request) {
	var req passwordResetValidateBody
	if !readJSON(w, r, &req) {
		return
	}
	email, err := h.passwordReset.Validate(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email": email})
}

type passwordResetConfirmBody struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *handler) passwordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmBody
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.passwordReset.Confirm(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *handler) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	userID, user, ok := h.mustUser(w, r)
	if !ok {
		return
	}
	result, err := h.auth.TwoFactorSetup(r.Context(), userID, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":           result.Secret,
		"provisioning_uri": result.ProvisioningURI,
		"backup_codes":     result.BackupCodes,
	})
}

// mustUser resolves the authenticated user id and email, writing an
// Unauthorized response and returning ok=false if either lookup fails.
func (h *handler) mustUser(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return "", "", false
	}
	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return "", "", false
	}
	return userID, user.Email, true
}

type twoFactorCodeBody struct {
	Code string `json:"code"`
}

func (h *handler) twoFactorVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	var req twoFactorCodeBody
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.auth.TwoFactorVerify(r.Context(), userID, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *handler) twoFactorStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	status, err := h.auth.TwoFactorStatus(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":                status.Enabled,
		"has_backup_codes":       status.HasBackupCodes,
		"backup_codes_remaining": status.BackupCodesRemaining,
	})
}

type twoFactorDisableBody struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

func (h *handler) twoFactorDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	var req twoFactorDisableBody
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.auth.TwoFactorDisableStandard(r.Context(), userID, req.Password, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *handler) twoFactorRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	var req twoFactorCodeBody
	if !readJSON(w, r, &req) {
		return
	}
	codes, err := h.auth.TwoFactorRegenerateBackupCodes(r.Context(), userID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

type emergencyDisableRequestBody struct {
	Email string `json:"email"`
}

func (h *handler) twoFactorEmergencyDisableRequest(w http.ResponseWriter, r *http.Request) {
	var req emergencyDisableRequestBody
	if !readJSON(w, r, &req) {
		return
	}
	_ = h.auth.TwoFactorEmergencyDisableRequest(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type emergencyDisableConfirmBody struct {
	Token string `json:"token"`
}

func (h *handler) twoFactorEmergencyDisableConfirm(w http.ResponseWriter, r *http.Request) {
	var req emergencyDisableConfirmBody
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.auth.TwoFactorEmergencyDisableConfirm(r.Context(), req.Token); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// deleteUser destroys the caller's own account. chi's {id} path segment must
// match the authenticated session's user id; any other id is Forbidden, not
// NotFound, so a caller can't probe which ids exist.
func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	callerID, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	targetID := chi.URLParam(r, "id")
	if err := h.auth.DeleteAccount(r.Context(), callerID, targetID); err != nil {
		writeError(w, r, err)
		return
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *handler) unlock(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID := r.URL.Query().Get("user")
	if token == "" || userID == "" {
		writeError(w, r, apperr.New(apperr.KindBadRequest, "token and user are required"))
		return
	}
	if err := h.auth.Unlock(r.Context(), userID, token); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
