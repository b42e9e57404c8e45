// Package httpx serves the browser side of QR login: the URL printed into a
// QR code points here, and a successful scan ends with a session cookie and
// a redirect into the portal.
package httpx

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/atiera/qrlogin/internal/common"
	"github.com/atiera/qrlogin/internal/logging"
	"github.com/atiera/qrlogin/internal/server/services"
)

// Handler serves the QR login endpoint.
type Handler struct {
	login    *services.LoginService
	logger   logging.Logger
	appURL   string
	secure   bool
	validity time.Duration
}

// NewHandler creates a Handler. Cookies are marked Secure when appURL is an
// https URL.
func NewHandler(login *services.LoginService, logger logging.Logger, appURL string, validity time.Duration) *Handler {
	return &Handler{
		login:    login,
		logger:   logger.With("module", "http"),
		appURL:   strings.TrimRight(appURL, "/"),
		secure:   strings.HasPrefix(strings.ToLower(appURL), "https://"),
		validity: validity,
	}
}

// NewServeMux registers the routes and wraps them with logging and recovery
// middleware.
func NewServeMux(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /qr-login", h.QRLogin)
	mux.HandleFunc("POST /qr-login", h.QRLogin)
	mux.HandleFunc("GET /healthz", h.Health)

	wrapped := recoveryMiddleware(h.logger, mux)
	wrapped = loggingMiddleware(h.logger, wrapped)

	return wrapped
}

// QRLogin reads the token from the "t" query parameter or the "token" form
// field, signs the owner in and redirects to the portal area of their role.
func (h *Handler) QRLogin(w http.ResponseWriter, r *http.Request) {
	// neither the token-bearing request nor its redirect may be cached
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")

	token := r.URL.Query().Get("t")
	if token == "" && r.Method == http.MethodPost {
		token = r.PostFormValue("token")
	}

	sess, err := h.login.Login(r.Context(), token, services.Origin{
		IP:        remoteIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		status, msg := errorResponse(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "qr login failed", "error", err)
		}
		http.Error(w, msg, status)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    sess.AccessToken,
		Path:     "/",
		MaxAge:   int(h.validity.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.appURL+sess.Redirect, http.StatusSeeOther)
}

// Health reports that the process is serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrMissingQRToken):
		return http.StatusBadRequest, "Missing QR token"
	case errors.Is(err, common.ErrInvalidQRToken):
		return http.StatusUnauthorized, "Invalid or expired QR token"
	case errors.Is(err, common.ErrAccountInactive):
		return http.StatusForbidden, "Account is not active"
	case errors.Is(err, common.ErrQRLoginNotAllowed):
		return http.StatusForbidden, "QR login is not available for this account"
	case errors.Is(err, common.ErrPersistence):
		return http.StatusServiceUnavailable, "Service temporarily unavailable, try again"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
