package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/feedbackportal/internal/backend"
	"github.com/pavelanni/feedbackportal/internal/handler/views"
	appI18n "github.com/pavelanni/feedbackportal/internal/i18n"
	"github.com/pavelanni/feedbackportal/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	// googleCSRFName is the double-submit cookie and form field Google
	// Identity Services sets when it posts a credential to the login URI.
	googleCSRFName = "g_csrf_token"
	csrfTokenBytes = 32
)

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// validCSRFToken reports whether s looks like a token this portal issued.
func validCSRFToken(s string) bool {
	b, err := base64.URLEncoding.DecodeString(s)
	return err == nil && len(b) == csrfTokenBytes
}

func tokensEqual(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// csrfToken returns the browser's token, issuing one only when the cookie is
// missing or malformed. The token stays fixed for the browser so forms outside
// an htmx-swapped fragment keep working.
func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && validCSRFToken(cookie.Value) {
		return cookie.Value, nil
	}
	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}
	h.setCSRFCookie(w, token)
	return token, nil
}

func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}

			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}

			if !tokensEqual(formToken, cookie.Value) {
				slog.Warn("CSRF token mismatch")
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}
		h.serveWithCSRF(w, r, next)
	})
}

func (h *Handler) serveWithCSRF(w http.ResponseWriter, r *http.Request, next http.Handler) {
	token, err := h.csrfToken(w, r)
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	ctx := model.ContextWithCSRFToken(r.Context(), token)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// googleLoginCSRF guards the login URI Google Identity Services posts to.
// That cross-site post carries Google's own g_csrf_token pair instead of the
// portal's, so it is checked here; any other post falls back to the portal check.
func (h *Handler) googleLoginCSRF(next http.Handler) http.Handler {
	portal := h.csrfMiddleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		formToken := r.FormValue(googleCSRFName)
		if formToken == "" {
			portal.ServeHTTP(w, r)
			return
		}
		cookie, err := r.Cookie(googleCSRFName)
		if err != nil || cookie.Value == "" || !tokensEqual(formToken, cookie.Value) {
			slog.Warn("Google CSRF token mismatch")
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		h.serveWithCSRF(w, r, next)
	})
}

// requireAuth is middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			h.redirectToLogin(w, r)
			return
		}

		authSess, err := h.store.GetAuthSession(cookie.Value)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			h.redirectToLogin(w, r)
			return
		}
		if authSess == nil {
			h.redirectToLogin(w, r)
			return
		}

		ctx := model.ContextWithIdentity(r.Context(), &model.Identity{
			SessionID:   authSess.ID,
			Email:       authSess.Email,
			StudentID:   authSess.StudentID,
			StudentName: authSess.StudentName,
			Semester:    authSess.Semester,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	loginPath := h.path("/login")
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.identity.Mode() == IdentityHeader {
		if _, err := h.identity.Email(r); err == nil {
			h.login(w, r)
			return
		}
	}
	h.render(w, r, http.StatusOK, views.LoginPage(h.loginData("")))
}

func (h *Handler) loginData(errMsg string) views.LoginData {
	return views.LoginData{
		Mode:           h.identity.Mode(),
		GoogleClientID: h.config.GoogleClient,
		Error:          errMsg,
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r)
}

// login resolves the request's verified email to a student and opens a session.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	email, err := h.identity.Email(r)
	if err != nil {
		slog.Warn("identity check failed", "mode", h.identity.Mode(), "error", err)
		h.renderLoginError(w, r)
		return
	}

	student, err := h.backend.StudentByEmail(r.Context(), email)
	if errors.Is(err, backend.ErrStudentNotFound) {
		slog.Info("unregistered email refused", "email", email)
		h.render(w, r, http.StatusForbidden, views.AccessDeniedPage(email))
		return
	}
	if err != nil {
		slog.Error("failed to resolve student", "email", email, "error", err)
		h.renderLoginError(w, r)
		return
	}

	token, err := h.store.CreateAuthSession(email, student)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("student signed in", "student_id", student.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		_ = h.store.DeleteAuthSession(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusUnauthorized, views.LoginPage(h.loginData(appI18n.T(r.Context(), "LoginFailed"))))
}
