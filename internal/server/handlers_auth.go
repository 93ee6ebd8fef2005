package server

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/anchor-vcs/anchor/internal/auth"
	"github.com/anchor-vcs/anchor/internal/fingerprint"
	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/pathutil"
)

const refreshCookieName = "refresh_token"

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(auth.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

// issueSession mints an access token and a refresh cookie for the user.
func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, username string, stepUp bool) {
	fpt := fingerprint.FromRequest(r)
	access, err := s.tokens.Issue(username, fpt, stepUp)
	if err != nil {
		writeError(w, err)
		return
	}
	refresh, err := s.refresh.Issue(username, fpt)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setRefreshCookie(w, refresh)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, TokenType: "bearer", Username: username})
}

// verifyCredentials checks a username/password pair, honoring the guest
// account when enabled.
func (s *Server) verifyCredentials(username, password string) error {
	if username == "guest" {
		if !s.cfg.GuestEnabled {
			return errclass.ErrUnauthenticated.WithMessage("invalid credentials")
		}
		if password != "guest" {
			return errclass.ErrUnauthenticated.WithMessage("invalid credentials")
		}
		return nil
	}
	return s.users.VerifyPassword(username, password)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.verifyCredentials(req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	if req.Username != "guest" {
		tf, err := s.users.TwoFactor(req.Username)
		if err != nil {
			writeError(w, err)
			return
		}
		if tf.Enabled {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":   "2fa_required",
				"username": req.Username,
			})
			return
		}
	}
	s.issueSession(w, r, req.Username, false)
}

func (s *Server) handleLogin2FA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.verifyCredentials(req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.VerifyTwoFactor(req.Username, req.Code); err != nil {
		writeError(w, err)
		return
	}
	s.issueSession(w, r, req.Username, false)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeError(w, errclass.ErrUnauthenticated.WithMessage("missing refresh cookie"))
		return
	}
	fpt := fingerprint.FromRequest(r)
	username, next, err := s.refresh.Rotate(cookie.Value, fpt)
	if err != nil {
		s.clearRefreshCookie(w)
		writeError(w, err)
		return
	}
	access, err := s.tokens.Issue(username, fpt, false)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setRefreshCookie(w, next)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, TokenType: "bearer", Username: username})
}

// handleStepUp re-verifies the password (and TOTP code if enabled) and
// returns an access token carrying a fresh step-up assertion.
func (s *Server) handleStepUp(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var req struct {
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	username := claims.Username()
	if err := s.verifyCredentials(username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	if username != "guest" {
		if err := s.users.VerifyTwoFactor(username, req.Code); err != nil {
			writeError(w, err)
			return
		}
	}
	access, err := s.tokens.Issue(username, fingerprint.FromRequest(r), true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, TokenType: "bearer", Username: username})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if err := s.refresh.Revoke(cookie.Value); err != nil {
			writeError(w, err)
			return
		}
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleSSHChallenge(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if err := pathutil.ValidateName(username); err != nil {
		writeError(w, err)
		return
	}
	if !s.users.Exists(username) {
		writeError(w, errclass.ErrNotFound.WithMessagef("user %s", username))
		return
	}
	challenge, err := s.challenges.Issue(username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}

// handleSSHLogin verifies a signature over the previously issued challenge
// against any of the user's registered keys.
func (s *Server) handleSSHLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Signature string `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	challenge, err := s.challenges.Take(req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeError(w, errclass.ErrInvalid.WithMessage("signature must be base64"))
		return
	}
	keys, err := s.users.ListKeys(req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, key := range keys {
		if auth.VerifySSHSignature(key.Key, []byte(challenge), sig) == nil {
			s.issueSession(w, r, req.Username, false)
			return
		}
	}
	writeError(w, errclass.ErrUnauthenticated.WithMessage("signature verification failed"))
}
