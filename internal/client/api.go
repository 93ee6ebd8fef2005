package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/fsutil"
	"github.com/anchor-vcs/anchor/pkg/model"
)

// Session is the persisted login state shared by all working trees.
type Session struct {
	ServerURL    string `json:"server_url"`
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionPath returns the session file location under the home directory.
func SessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".anchor-session.json"), nil
}

// LoadSession reads the persisted session; a missing file is an empty one.
func LoadSession() (*Session, error) {
	path, err := SessionPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Session{}, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &sess, nil
}

// Save persists the session with owner-only permissions.
func (s *Session) Save() error {
	path, err := SessionPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0o600)
}

// API talks to an anchor server, transparently refreshing the access token
// once when a request comes back 401.
type API struct {
	session *Session
	http    *http.Client
}

// NewAPI builds an API client over the persisted session.
func NewAPI(session *Session) *API {
	return &API{
		session: session,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// BaseURL returns the server the session is bound to.
func (a *API) BaseURL() string { return a.session.ServerURL }

func (a *API) newRequest(method, path string, body io.Reader, contentType string) (*http.Request, error) {
	if a.session.ServerURL == "" {
		return nil, errclass.ErrInvalid.WithMessage("not logged in, run login first")
	}
	req, err := http.NewRequest(method, strings.TrimSuffix(a.session.ServerURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "anchor-cli/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if a.session.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.session.AccessToken)
	}
	return req, nil
}

// do sends a request with retry on transient connection failures and a
// single token refresh on 401. Bodies must be replayable, hence bodyFn.
func (a *API) do(method, path string, contentType string, bodyFn func() (io.Reader, error)) (*http.Response, error) {
	send := func() (*http.Response, error) {
		var body io.Reader
		if bodyFn != nil {
			var err error
			body, err = bodyFn()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		req, err := a.newRequest(method, path, body, contentType)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return a.http.Do(req)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	resp, err := backoff.RetryWithData(send, policy)
	if err != nil {
		return nil, errclass.ErrInternal.WithMessagef("request %s %s: %v", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && a.session.RefreshToken != "" {
		resp.Body.Close()
		if err := a.refreshTokens(); err != nil {
			return nil, err
		}
		resp, err = backoff.RetryWithData(send, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
		if err != nil {
			return nil, errclass.ErrInternal.WithMessagef("request %s %s: %v", method, path, err)
		}
	}
	return resp, nil
}

// refreshTokens rotates the refresh token and stores the new pair.
func (a *API) refreshTokens() error {
	req, err := a.newRequest(http.MethodPost, "/auth/refresh", nil, "")
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: a.session.RefreshToken})
	resp, err := a.http.Do(req)
	if err != nil {
		return errclass.ErrInternal.WithMessagef("refresh session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errclass.ErrUnauthenticated.WithMessage("session expired, log in again")
	}
	var tr struct {
		AccessToken string `json:"access_token"`
		Username    string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return errclass.ErrInternal.WithMessagef("parse refresh response: %v", err)
	}
	a.session.AccessToken = tr.AccessToken
	a.captureRefreshCookie(resp)
	return a.session.Save()
}

func (a *API) captureRefreshCookie(resp *http.Response) {
	for _, c := range resp.Cookies() {
		if c.Name == "refresh_token" && c.Value != "" {
			a.session.RefreshToken = c.Value
		}
	}
}

// apiError converts a non-2xx response into the mapped error class.
func apiError(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	message := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		message = body.Error.Message
	}
	class := &errclass.AnchorError{Code: "E_REMOTE", Status: resp.StatusCode, Message: message}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errclass.ErrNotFound.WithMessage(message)
	case http.StatusUnauthorized:
		return errclass.ErrUnauthenticated.WithMessage(message)
	case http.StatusForbidden:
		return errclass.ErrForbidden.WithMessage(message)
	case http.StatusConflict:
		return errclass.ErrConflict.WithMessage(message)
	case http.StatusBadRequest:
		return errclass.ErrInvalid.WithMessage(message)
	case http.StatusTooManyRequests:
		return errclass.ErrRateLimited.WithMessage(message)
	}
	return class
}

func (a *API) getJSON(path string, v any) error {
	resp, err := a.do(http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (a *API) postJSON(path string, req, v any) error {
	bodyFn := func() (io.Reader, error) {
		data, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
	resp, err := a.do(http.MethodPost, path, "application/json", bodyFn)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Login performs a password login against server and persists the session.
// When the account has two-factor enabled, the returned bool is true and
// the caller must follow up with LoginTwoFactor.
func (a *API) Login(server, username, password string) (bool, error) {
	a.session.ServerURL = strings.TrimSuffix(server, "/")
	var raw map[string]any
	if err := a.postJSONCapture("/auth/login", map[string]string{
		"username": username, "password": password,
	}, &raw); err != nil {
		return false, err
	}
	if raw["status"] == "2fa_required" {
		return true, nil
	}
	return false, a.storeLogin(raw, username)
}

// LoginTwoFactor completes a two-factor login.
func (a *API) LoginTwoFactor(username, password, code string) error {
	var raw map[string]any
	if err := a.postJSONCapture("/auth/login/2fa", map[string]string{
		"username": username, "password": password, "code": code,
	}, &raw); err != nil {
		return err
	}
	return a.storeLogin(raw, username)
}

func (a *API) storeLogin(raw map[string]any, username string) error {
	access, _ := raw["access_token"].(string)
	if access == "" {
		return errclass.ErrInternal.WithMessage("login response missing access token")
	}
	a.session.AccessToken = access
	a.session.Username = username
	return a.session.Save()
}

// loginRequest posts and captures the refresh cookie, used by Login paths.
func (a *API) postJSONCapture(path string, req any, raw *map[string]any) error {
	bodyFn := func() (io.Reader, error) {
		data, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
	resp, err := a.do(http.MethodPost, path, "application/json", bodyFn)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	a.captureRefreshCookie(resp)
	return json.NewDecoder(resp.Body).Decode(raw)
}

// SSHLogin authenticates by signing the server's challenge with signFn.
func (a *API) SSHLogin(server, username string, signFn func(challenge []byte) (string, error)) error {
	a.session.ServerURL = strings.TrimSuffix(server, "/")
	var ch struct {
		Challenge string `json:"challenge"`
	}
	if err := a.getJSON("/auth/ssh-challenge?username="+url.QueryEscape(username), &ch); err != nil {
		return err
	}
	signature, err := signFn([]byte(ch.Challenge))
	if err != nil {
		return err
	}
	var raw map[string]any
	if err := a.postJSONCapture("/auth/ssh-login", map[string]string{
		"username": username, "signature": signature,
	}, &raw); err != nil {
		return err
	}
	return a.storeLogin(raw, username)
}

// StepUp exchanges a password (+optional TOTP code) for an elevated token.
func (a *API) StepUp(password, code string) error {
	var tr struct {
		AccessToken string `json:"access_token"`
	}
	if err := a.postJSON("/auth/step-up", map[string]string{
		"password": password, "code": code,
	}, &tr); err != nil {
		return err
	}
	a.session.AccessToken = tr.AccessToken
	return a.session.Save()
}

// Logout revokes the refresh family and clears the local session. Server
// errors are ignored: the local session is wiped regardless.
func (a *API) Logout() error {
	if a.session.ServerURL != "" && a.session.AccessToken != "" {
		if req, err := a.newRequest(http.MethodPost, "/auth/logout", nil, ""); err == nil {
			if a.session.RefreshToken != "" {
				req.AddCookie(&http.Cookie{Name: "refresh_token", Value: a.session.RefreshToken})
			}
			if resp, err := a.http.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}
	*a.session = Session{}
	return a.session.Save()
}

// ListRepos fetches repository metadata from the server.
func (a *API) ListRepos() ([]model.RepoMeta, error) {
	var repos []model.RepoMeta
	if err := a.getJSON("/repos/", &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// CreateRepo creates a repository server-side.
func (a *API) CreateRepo(name string, isPublic bool) error {
	return a.postJSON("/repos/", map[string]any{"name": name, "is_public": isPublic}, nil)
}

// SetFavorite toggles the favorite flag on a repository.
func (a *API) SetFavorite(name string, favorite bool) error {
	path := fmt.Sprintf("/repos/%s/favorite?is_favorite=%t", url.PathEscape(name), favorite)
	resp, err := a.do(http.MethodPatch, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// History fetches the ordered snapshot list for a repository.
func (a *API) History(repo string) ([]*model.Snapshot, error) {
	var history []*model.Snapshot
	if err := a.getJSON("/repos/"+url.PathEscape(repo)+"/history", &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Stats fetches repository statistics.
func (a *API) Stats(repo string) (*model.RepoStats, error) {
	var stats model.RepoStats
	if err := a.getJSON("/repos/"+url.PathEscape(repo)+"/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// DownloadArchive streams a repository archive to a temp file and returns
// its path. Caller removes the file.
func (a *API) DownloadArchive(repo, ref string) (string, error) {
	path := "/repos/" + url.PathEscape(repo) + "/archive"
	if ref != "" {
		path += "?ref=" + url.QueryEscape(ref)
	}
	resp, err := a.do(http.MethodGet, path, "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	tmp, err := os.CreateTemp("", "anchor-fetch-*.zip")
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("create temp file: %v", err)
	}
	_, err = io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", errclass.ErrInternal.WithMessagef("download archive: %v", err)
	}
	return tmp.Name(), nil
}

// Upload pushes a zip of the working tree with a commit message and returns
// the snapshot id the server assigned.
func (a *API) Upload(repo, message, zipPath string) (model.SnapshotID, error) {
	// The multipart body is built once so the boundary in the content type
	// matches every (possibly retried) send.
	zipData, err := os.ReadFile(zipPath)
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("read archive: %v", err)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("message", message); err != nil {
		return "", errclass.ErrInternal.WithMessagef("build upload: %v", err)
	}
	fw, err := mw.CreateFormFile("archive", filepath.Base(zipPath))
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("build upload: %v", err)
	}
	if _, err := fw.Write(zipData); err != nil {
		return "", errclass.ErrInternal.WithMessagef("build upload: %v", err)
	}
	if err := mw.Close(); err != nil {
		return "", errclass.ErrInternal.WithMessagef("build upload: %v", err)
	}
	body := buf.Bytes()
	bodyFn := func() (io.Reader, error) { return bytes.NewReader(body), nil }

	resp, err := a.do(http.MethodPost, "/repos/"+url.PathEscape(repo)+"/upload", mw.FormDataContentType(), bodyFn)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var out struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errclass.ErrInternal.WithMessagef("parse upload response: %v", err)
	}
	return model.SnapshotID(out.SnapshotID), nil
}
