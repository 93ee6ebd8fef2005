package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
)

func initReplica(t *testing.T) *Replica {
	t.Helper()
	r, err := Init(t.TempDir())
	require.NoError(t, err)
	return r
}

func writeWorkFile(t *testing.T, r *Replica, rel, content string) {
	t.Helper()
	target := filepath.Join(r.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte(content), 0o644))
}

func TestInitAndOpen(t *testing.T) {
	r := initReplica(t)

	branch, err := r.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	// Open finds the replica from a nested directory.
	nested := filepath.Join(r.Root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	found, err := Open(nested)
	require.NoError(t, err)
	assert.Equal(t, r.Root, found.Root)

	_, err = Init(r.Root)
	assert.ErrorIs(t, err, errclass.ErrConflict)

	_, err = Open(t.TempDir())
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestAddAndCommit(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "hello.txt", "hi\n")
	writeWorkFile(t, r, "sub/deep.txt", "deep")

	require.NoError(t, r.Add([]string{"."}))
	idx, err := r.ReadIndex()
	require.NoError(t, err)
	assert.Len(t, idx, 2)
	assert.Equal(t, model.ComputeBlobID([]byte("hi\n")), idx["hello.txt"])

	id, err := r.Commit("first", false)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	head, err := r.ResolveHEAD()
	require.NoError(t, err)
	assert.Equal(t, id, head)

	snap, err := r.Store.GetSnapshot(id)
	require.NoError(t, err)
	assert.Equal(t, "first", snap.Message)
	assert.Nil(t, snap.Parent)
}

func TestCommitNothingStaged(t *testing.T) {
	r := initReplica(t)
	_, err := r.Commit("empty", false)
	assert.ErrorIs(t, err, errclass.ErrInvalid)
}

func TestCommitIdempotent(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "a.txt", "a")
	require.NoError(t, r.Add([]string{"a.txt"}))

	id1, err := r.Commit("one", false)
	require.NoError(t, err)
	// Unchanged tree: the re-commit returns the current HEAD id, HEAD does
	// not move, and no extra reflog entry appears.
	id2, err := r.Commit("two", false)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	head, err := r.ResolveHEAD()
	require.NoError(t, err)
	assert.Equal(t, id1, head)
	entries, err := r.Reflog()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCommitAllRehashesAndDrops(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "keep.txt", "v1")
	writeWorkFile(t, r, "gone.txt", "bye")
	require.NoError(t, r.Add([]string{"."}))
	_, err := r.Commit("first", false)
	require.NoError(t, err)

	writeWorkFile(t, r, "keep.txt", "v2")
	require.NoError(t, os.Remove(filepath.Join(r.Root, "gone.txt")))

	id, err := r.Commit("second", true)
	require.NoError(t, err)

	snap, err := r.Store.GetSnapshot(id)
	require.NoError(t, err)
	tree, err := r.Store.GetTree(snap.RootTree)
	require.NoError(t, err)
	assert.Len(t, tree.Entries, 1)
	assert.Equal(t, model.ComputeBlobID([]byte("v2")), tree.Entries["keep.txt"].ID)
}

func TestStatusClassification(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "same.txt", "same")
	writeWorkFile(t, r, "changed.txt", "before")
	writeWorkFile(t, r, "deleted.txt", "x")
	require.NoError(t, r.Add([]string{"."}))

	writeWorkFile(t, r, "changed.txt", "after")
	writeWorkFile(t, r, "new.txt", "untracked")
	require.NoError(t, os.Remove(filepath.Join(r.Root, "deleted.txt")))

	st, err := r.WorkStatus()
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, []string{"changed.txt"}, st.Modified)
	assert.Equal(t, []string{"new.txt"}, st.Untracked)
	assert.Equal(t, []string{"deleted.txt"}, st.Deleted)
	assert.Equal(t, []string{"same.txt"}, st.Unchanged)
	assert.False(t, st.Clean())
}

func TestLogFollowsParents(t *testing.T) {
	r := initReplica(t)
	var ids []model.SnapshotID
	for _, content := range []string{"1", "2", "3"} {
		writeWorkFile(t, r, "f.txt", content)
		require.NoError(t, r.Add([]string{"f.txt"}))
		id, err := r.Commit("c"+content, false)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	log, err := r.Log()
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, ids[2], log[0].SnapshotID)
	assert.Equal(t, ids[0], log[2].SnapshotID)
}

func TestDiffWorktreeAndStaged(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "f.txt", "line1\nline2\n")
	require.NoError(t, r.Add([]string{"f.txt"}))
	_, err := r.Commit("base", false)
	require.NoError(t, err)

	// Nothing changed: both diffs are empty.
	text, err := r.DiffWorktree()
	require.NoError(t, err)
	assert.Empty(t, text)
	text, err = r.DiffStaged()
	require.NoError(t, err)
	assert.Empty(t, text)

	// Working change shows up in the worktree diff only.
	writeWorkFile(t, r, "f.txt", "line1\nline2 changed\n")
	text, err = r.DiffWorktree()
	require.NoError(t, err)
	assert.Contains(t, text, "-line2")
	assert.Contains(t, text, "+line2 changed")
	assert.Contains(t, text, "a/f.txt")

	// After staging, it moves to the staged diff.
	require.NoError(t, r.Add([]string{"f.txt"}))
	text, err = r.DiffWorktree()
	require.NoError(t, err)
	assert.Empty(t, text)
	text, err = r.DiffStaged()
	require.NoError(t, err)
	assert.Contains(t, text, "+line2 changed")
}

func TestReflog(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "f.txt", "1")
	require.NoError(t, r.Add([]string{"f.txt"}))
	id1, err := r.Commit("first", false)
	require.NoError(t, err)
	writeWorkFile(t, r, "f.txt", "2")
	require.NoError(t, r.Add([]string{"f.txt"}))
	id2, err := r.Commit("second", false)
	require.NoError(t, err)

	lines, err := r.Reflog()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	// Newest first.
	assert.Contains(t, lines[0], string(id2))
	assert.Contains(t, lines[0], "commit: second")
	assert.Contains(t, lines[1], string(id1))
}

func TestConfigAndRemotes(t *testing.T) {
	r := initReplica(t)

	require.NoError(t, r.SetRemoteURL("origin", "http://localhost:8001/demo"))
	require.NoError(t, r.SetRemoteURL("backup", "http://backup:8001/demo"))

	url, err := r.RemoteURL("origin")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8001/demo", url)

	remotes, err := r.Remotes()
	require.NoError(t, err)
	assert.Equal(t, []string{"backup", "origin"}, remotes)

	url, err = r.RemoteURL("nope")
	require.NoError(t, err)
	assert.Empty(t, url)
}
