package client

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchor-vcs/anchor/internal/server"
	"github.com/anchor-vcs/anchor/internal/users"
	"github.com/anchor-vcs/anchor/pkg/config"
	"github.com/anchor-vcs/anchor/pkg/errclass"
)

// newSyncEnv starts a real server and returns a logged-in API client for
// alice. The session file lands in a throwaway home directory.
func newSyncEnv(t *testing.T) *API {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := config.Default()
	cfg.Root = t.TempDir()
	cfg.Secret = "sync-test-secret-0123456789"
	cfg.RateLimit = 6000

	log := logrus.New()
	log.SetOutput(io.Discard)

	s, err := server.New(cfg, log)
	require.NoError(t, err)

	um := users.NewManager(cfg.Root)
	require.NoError(t, um.Create("alice", "alicepw"))

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	api := NewAPI(&Session{})
	needs2FA, err := api.Login(srv.URL, "alice", "alicepw")
	require.NoError(t, err)
	require.False(t, needs2FA)
	return api
}

func createRemoteRepo(t *testing.T, api *API, name string) {
	t.Helper()
	require.NoError(t, api.StepUp("alicepw", ""))
	require.NoError(t, api.CreateRepo(name, true))
}

func TestLoginPersistsSession(t *testing.T) {
	api := newSyncEnv(t)
	assert.Equal(t, "alice", api.session.Username)
	assert.NotEmpty(t, api.session.AccessToken)
	assert.NotEmpty(t, api.session.RefreshToken)

	sess, err := LoadSession()
	require.NoError(t, err)
	assert.Equal(t, api.session.AccessToken, sess.AccessToken)
}

func TestExpiredAccessTokenRefreshes(t *testing.T) {
	api := newSyncEnv(t)
	createRemoteRepo(t, api, "demo")

	// Wreck the access token: the next call comes back 401, the client
	// rotates the refresh token and retries once.
	api.session.AccessToken = "garbage"
	repos, err := api.ListRepos()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "demo", repos[0].Name)
	assert.NotEqual(t, "garbage", api.session.AccessToken)
}

func TestLogoutClearsSession(t *testing.T) {
	api := newSyncEnv(t)
	serverURL := api.BaseURL()
	refresh := api.session.RefreshToken
	require.NoError(t, api.Logout())
	assert.Empty(t, api.session.AccessToken)
	assert.Empty(t, api.session.RefreshToken)

	// The revoked family no longer rotates.
	api.session.ServerURL = serverURL
	api.session.RefreshToken = refresh
	_, err := api.ListRepos()
	assert.ErrorIs(t, err, errclass.ErrUnauthenticated)
}

func TestPushAssignsLocalCommitID(t *testing.T) {
	api := newSyncEnv(t)
	createRemoteRepo(t, api, "demo")

	r := initReplica(t)
	require.NoError(t, r.SetRemoteURL(DefaultRemote, api.BaseURL()+"/demo"))

	local := commitFile(t, r, "readme.md", "# demo\n", "initial import")
	pushed, err := r.Push(api, DefaultRemote)
	require.NoError(t, err)
	// Client and server hash the same tree and parent, so the server
	// assigns the id the client already computed.
	assert.Equal(t, local, pushed)

	remoteRef, err := r.Store.ReadRef("refs/remotes/" + DefaultRemote + "/main")
	require.NoError(t, err)
	assert.Equal(t, local, remoteRef)

	// A second commit pushes under the first as parent.
	local2 := commitFile(t, r, "readme.md", "# demo v2\n", "update readme")
	pushed2, err := r.Push(api, DefaultRemote)
	require.NoError(t, err)
	assert.Equal(t, local2, pushed2)

	history, err := api.History("demo")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, local2, history[0].SnapshotID)
	assert.Equal(t, local, history[1].SnapshotID)
}

func TestCloneRoundTrip(t *testing.T) {
	api := newSyncEnv(t)
	createRemoteRepo(t, api, "demo")

	src := initReplica(t)
	require.NoError(t, src.SetRemoteURL(DefaultRemote, api.BaseURL()+"/demo"))
	// Push after each commit so the server's chain mirrors the local one.
	commitFile(t, src, "a.txt", "alpha", "add a")
	_, err := src.Push(api, DefaultRemote)
	require.NoError(t, err)
	head := commitFile(t, src, "b/nested.txt", "beta", "add nested")
	_, err = src.Push(api, DefaultRemote)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "demo")
	clone, err := Clone(api, "demo", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "b", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))

	cloneHead, err := clone.ResolveHEAD()
	require.NoError(t, err)
	assert.Equal(t, head, cloneHead)

	url, err := clone.RemoteURL(DefaultRemote)
	require.NoError(t, err)
	assert.Equal(t, api.BaseURL()+"/demo", url)

	// History came along and the status starts clean.
	log, err := clone.Log()
	require.NoError(t, err)
	assert.Len(t, log, 2)
	st, err := clone.WorkStatus()
	require.NoError(t, err)
	assert.True(t, st.Clean())

	// HEAD's root tree resolves locally.
	_, tree, err := clone.Show("HEAD")
	require.NoError(t, err)
	assert.Contains(t, tree.Entries, "b/nested.txt")
}

func TestFetchAndPull(t *testing.T) {
	api := newSyncEnv(t)
	createRemoteRepo(t, api, "demo")

	src := initReplica(t)
	require.NoError(t, src.SetRemoteURL(DefaultRemote, api.BaseURL()+"/demo"))
	commitFile(t, src, "f.txt", "v1", "first")
	_, err := src.Push(api, DefaultRemote)
	require.NoError(t, err)

	clone, err := Clone(api, "demo", filepath.Join(t.TempDir(), "demo"))
	require.NoError(t, err)

	// Advance the remote from the source replica.
	newer := commitFile(t, src, "f.txt", "v2", "second")
	_, err = src.Push(api, DefaultRemote)
	require.NoError(t, err)

	// Fetch moves the remote-tracking ref without touching the worktree.
	fetched, err := clone.Fetch(api, DefaultRemote)
	require.NoError(t, err)
	assert.Equal(t, newer, fetched)
	data, err := os.ReadFile(filepath.Join(clone.Root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	remoteRef, err := clone.Store.ReadRef("refs/remotes/" + DefaultRemote + "/main")
	require.NoError(t, err)
	assert.Equal(t, newer, remoteRef)

	// Pull rewrites the worktree and re-stages it.
	require.NoError(t, clone.Pull(api, DefaultRemote))
	data, err = os.ReadFile(filepath.Join(clone.Root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	st, err := clone.WorkStatus()
	require.NoError(t, err)
	assert.True(t, st.Clean())
}

func TestStatsAndFavorite(t *testing.T) {
	api := newSyncEnv(t)
	createRemoteRepo(t, api, "demo")

	r := initReplica(t)
	require.NoError(t, r.SetRemoteURL(DefaultRemote, api.BaseURL()+"/demo"))
	commitFile(t, r, "f.txt", "x", "first")
	_, err := r.Push(api, DefaultRemote)
	require.NoError(t, err)

	stats, err := api.Stats("demo")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SnapshotCount)
	assert.Equal(t, 1, stats.FileCount)

	require.NoError(t, api.SetFavorite("demo", true))
	repos, err := api.ListRepos()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.True(t, repos[0].IsFavorite)
}

func TestPushWithoutRemoteConfigured(t *testing.T) {
	api := newSyncEnv(t)
	r := initReplica(t)
	commitFile(t, r, "f.txt", "x", "first")
	_, err := r.Push(api, DefaultRemote)
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}
