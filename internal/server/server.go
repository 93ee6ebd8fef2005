// Package server wires the snapshot engine, user accounts, and the session
// core into the HTTP API.
package server

import (
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/anchor-vcs/anchor/internal/auth"
	"github.com/anchor-vcs/anchor/internal/authz"
	"github.com/anchor-vcs/anchor/internal/lock"
	"github.com/anchor-vcs/anchor/internal/snapshot"
	"github.com/anchor-vcs/anchor/internal/users"
	"github.com/anchor-vcs/anchor/pkg/config"
)

// Server holds the wired application state behind the HTTP handlers.
type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	engine     *snapshot.Engine
	users      *users.Manager
	tokens     *auth.TokenIssuer
	refresh    *auth.RefreshStore
	challenges *auth.ChallengeStore
	limiter    *ipLimiter
}

// New constructs a server over the data root described by cfg.
func New(cfg *config.Config, log *logrus.Logger) (*Server, error) {
	refresh, err := auth.NewRefreshStore(filepath.Join(cfg.Root, "refresh_tokens.json"), log)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:        cfg,
		log:        log,
		engine:     snapshot.NewEngine(cfg.Root, lock.NewManager(), log),
		users:      users.NewManager(cfg.Root),
		tokens:     auth.NewTokenIssuer(cfg.Secret),
		refresh:    refresh,
		challenges: auth.NewChallengeStore(),
		limiter:    newIPLimiter(cfg.RateLimit),
	}, nil
}

// Handler builds the routed HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Session endpoints.
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/login/2fa", s.handleLogin2FA).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/step-up", s.requireAuth(s.handleStepUp)).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.requireAuth(s.handleLogout)).Methods(http.MethodPost)
	r.HandleFunc("/auth/ssh-challenge", s.handleSSHChallenge).Methods(http.MethodGet)
	r.HandleFunc("/auth/ssh-login", s.handleSSHLogin).Methods(http.MethodPost)

	// Repositories.
	r.HandleFunc("/repos/", s.requireStepUp(authz.CreateRepo, s.handleCreateRepo)).Methods(http.MethodPost)
	r.HandleFunc("/repos/", s.requirePerm(authz.ReadRepo, s.handleListRepos)).Methods(http.MethodGet)
	r.HandleFunc("/repos/{name}", s.requirePerm(authz.ReadRepo, s.handleGetRepo)).Methods(http.MethodGet)
	r.HandleFunc("/repos/{name}/history", s.requirePerm(authz.ReadSnapshot, s.handleHistory)).Methods(http.MethodGet)
	r.HandleFunc("/repos/{name}/diff", s.requirePerm(authz.ReadSnapshot, s.handleDiff)).Methods(http.MethodGet)
	r.HandleFunc("/repos/{name}/tree/{sid}", s.requirePerm(authz.ReadSnapshot, s.handleTree)).Methods(http.MethodGet)
	r.HandleFunc("/repos/{name}/file/{sid}/{path:.*}", s.requirePerm(authz.ReadSnapshot, s.handleFile)).Methods(http.MethodGet)
	r.HandleFunc("/repos/{name}/archive", s.requirePerm(authz.ReadSnapshot, s.handleArchive)).Methods(http.MethodGet)
	r.HandleFunc("/repos/{name}/save", s.requirePerm(authz.WriteRepo, s.handleSave)).Methods(http.MethodPost)
	r.HandleFunc("/repos/{name}/upload", s.requirePerm(authz.WriteRepo, s.handleUpload)).Methods(http.MethodPost)
	r.HandleFunc("/repos/{name}/favorite", s.requirePerm(authz.WriteRepo, s.handleFavorite)).Methods(http.MethodPatch)
	r.HandleFunc("/repos/{name}/stats", s.requirePerm(authz.ReadRepo, s.handleStats)).Methods(http.MethodGet)

	// Account endpoints.
	r.HandleFunc("/users/me/profile", s.requirePerm(authz.ReadProfile, s.handleGetProfile)).Methods(http.MethodGet)
	r.HandleFunc("/users/me/profile", s.requirePerm(authz.WriteProfile, s.handleUpdateProfile)).Methods(http.MethodPut)
	r.HandleFunc("/users/me/username", s.requireStepUp(authz.WriteProfile, s.handleChangeUsername)).Methods(http.MethodPut)
	r.HandleFunc("/users/me/password", s.requireStepUp(authz.WriteProfile, s.handleChangePassword)).Methods(http.MethodPut)
	r.HandleFunc("/users/me/keys", s.requirePerm(authz.ManageKeys, s.handleListKeys)).Methods(http.MethodGet)
	r.HandleFunc("/users/me/keys", s.requireStepUp(authz.ManageKeys, s.handleAddKey)).Methods(http.MethodPost)
	r.HandleFunc("/users/me/keys/{id}", s.requireStepUp(authz.ManageKeys, s.handleDeleteKey)).Methods(http.MethodDelete)

	// Two-factor endpoints.
	r.HandleFunc("/users/me/2fa", s.requirePerm(authz.ReadProfile, s.handleTwoFactorStatus)).Methods(http.MethodGet)
	r.HandleFunc("/users/me/2fa/setup", s.requirePerm(authz.WriteProfile, s.handleTwoFactorSetup)).Methods(http.MethodPost)
	r.HandleFunc("/users/me/2fa/enable", s.requirePerm(authz.WriteProfile, s.handleTwoFactorEnable)).Methods(http.MethodPost)
	r.HandleFunc("/users/me/2fa/disable", s.requireStepUp(authz.WriteProfile, s.handleTwoFactorDisable)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Code: "E_NOT_FOUND", Message: "no such endpoint"}})
	})

	var h http.Handler = r
	h = limitBody(h)
	h = s.rateLimit(h)
	h = secureHeaders(h)
	h = s.requestLogger(h)
	return h
}
