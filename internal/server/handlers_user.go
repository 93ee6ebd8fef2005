package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.users.Profile(claimsFrom(r).Username())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var profile model.Profile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, err)
		return
	}
	username := claimsFrom(r).Username()
	if err := s.users.UpdateProfile(username, &profile); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleChangeUsername renames the account. All refresh tokens under the
// old name die with it; the caller must log in again.
func (s *Server) handleChangeUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewUsername string `json:"new_username"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	username := claimsFrom(r).Username()
	if err := s.users.Rename(username, req.NewUsername); err != nil {
		writeError(w, err)
		return
	}
	if err := s.refresh.RevokeAllUser(username); err != nil {
		writeError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"username": req.NewUsername})
}

// handleChangePassword rotates the password and revokes every session.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, errclass.ErrInvalid.WithMessage("password must be at least 8 characters"))
		return
	}
	username := claimsFrom(r).Username()
	if err := s.users.VerifyPassword(username, req.CurrentPassword); err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.SetPassword(username, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	if err := s.refresh.RevokeAllUser(username); err != nil {
		writeError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.users.ListKeys(claimsFrom(r).Username())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Key   string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	key, err := s.users.AddKey(claimsFrom(r).Username(), req.Title, req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteKey(claimsFrom(r).Username(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	tf, err := s.users.TwoFactor(claimsFrom(r).Username())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": tf.Enabled})
}

func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	url, err := s.users.SetupTwoFactor(claimsFrom(r).Username())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"otpauth_url": url})
}

func (s *Server) handleTwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.EnableTwoFactor(claimsFrom(r).Username(), req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

func (s *Server) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DisableTwoFactor(claimsFrom(r).Username()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}
