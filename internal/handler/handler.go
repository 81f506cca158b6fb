package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	service "github.com/ndiakov/auth-service/internal/services"
	pkgerrors "github.com/ndiakov/auth-service/pkg/errors"
)

const refreshCookieName = "refresh_token"

type Handler struct {
	service    service.AuthService
	refreshTTL time.Duration
}

func NewHandler(s service.AuthService, refreshTTL time.Duration) *Handler {
	return &Handler{service: s, refreshTTL: refreshTTL}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/auth/signup", h.SignUp).Methods("POST")
	r.HandleFunc("/auth/signin", h.SignIn).Methods("POST")
	r.HandleFunc("/auth/refresh", h.Refresh).Methods("POST")
	r.HandleFunc("/auth/logout", h.Logout).Methods("POST")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/ping", h.Ping).Methods("GET")
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	username, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, "user '"+username+"' successfully registered.", nil)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	tokens, err := h.service.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    tokens.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
	})
	h.writeSuccess(w, http.StatusOK,
		"user '"+tokens.Username+"' has successfully logged in.",
		map[string]string{"access_token": tokens.AccessToken})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	rotated, err := h.service.Refresh(r.Context(), refreshCookieValue(r))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	// Max-age is the time left until the original expiry anchor, so the
	// renewed cookie never outlives the session it belongs to.
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    rotated.RefreshToken,
		Path:     "/",
		MaxAge:   int(rotated.RemainingTTL.Seconds()),
		HttpOnly: true,
	})
	h.writeSuccess(w, http.StatusOK, "", map[string]string{
		"access_token":  rotated.AccessToken,
		"refresh_token": rotated.RefreshToken,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	username, err := h.service.Logout(r.Context(), refreshCookieValue(r))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:    refreshCookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
	})
	h.writeSuccess(w, http.StatusOK, "user '"+username+"' successfully logout.", nil)
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, http.StatusOK, "pong", nil)
}

func refreshCookieValue(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pkgerrors.ErrUserNotFound),
		errors.Is(err, pkgerrors.ErrRefreshTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInvalidCredentials),
		errors.Is(err, pkgerrors.ErrNoRefreshToken),
		errors.Is(err, pkgerrors.ErrAlreadyLoggedOut):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrRefreshTokenExpired),
		errors.Is(err, pkgerrors.ErrRefreshSignatureInvalid),
		errors.Is(err, pkgerrors.ErrSubjectMismatch):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrUsernameExists):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	body := map[string]interface{}{
		"success": true,
		"code":    status,
	}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    status,
			"message": err.Error(),
		},
	})
}
