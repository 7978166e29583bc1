package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/httputil"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin issues a token and also sets it as an HTTP-only cookie for
// browser clients.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_error", ErrMsgValidationFailed,
			map[string]string{"email": "email and password are required"})
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.log.Info("login failed", "email", auth.NormalizeEmail(req.Email))
			httputil.WriteError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
			return
		}
		writeError(w, s.log, err, "login")
		return
	}

	if s.logins != nil {
		s.logins.Reset(s.logins.ClientIP(r))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteOK(w, res)
}

// handleLogout clears the session cookie. Bearer tokens stay valid until
// they expire.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteNoContent(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	u, err := s.auth.Me(r.Context(), claims)
	if err != nil {
		writeError(w, s.log, err, "get current user")
		return
	}
	httputil.WriteOK(w, u)
}
