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

// commitFile stages one file and commits, returning the snapshot id.
func commitFile(t *testing.T, r *Replica, rel, content, message string) model.SnapshotID {
	t.Helper()
	writeWorkFile(t, r, rel, content)
	require.NoError(t, r.Add([]string{rel}))
	id, err := r.Commit(message, false)
	require.NoError(t, err)
	return id
}

func TestResolveRevision(t *testing.T) {
	r := initReplica(t)
	id1 := commitFile(t, r, "f.txt", "1", "first")
	id2 := commitFile(t, r, "f.txt", "2", "second")
	id3 := commitFile(t, r, "f.txt", "3", "third")

	cases := []struct {
		rev  string
		want model.SnapshotID
	}{
		{"HEAD", id3},
		{"HEAD~1", id2},
		{"HEAD~2", id1},
		{"main", id3},
		{"main~1", id2},
		{string(id2), id2},
		{string(id3) + "~1", id2},
	}
	for _, tc := range cases {
		got, err := r.ResolveRevision(tc.rev)
		require.NoError(t, err, tc.rev)
		assert.Equal(t, tc.want, got, tc.rev)
	}

	_, err := r.ResolveRevision("HEAD~3")
	assert.ErrorIs(t, err, errclass.ErrNotFound)
	_, err = r.ResolveRevision("HEAD~x")
	assert.ErrorIs(t, err, errclass.ErrInvalid)
	_, err = r.ResolveRevision("no-such-branch")
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestBranchLifecycle(t *testing.T) {
	r := initReplica(t)
	id := commitFile(t, r, "f.txt", "1", "first")

	require.NoError(t, r.CreateBranch("feature"))
	branches, err := r.Branches()
	require.NoError(t, err)
	assert.Equal(t, []string{"feature", "main"}, branches)

	got, err := r.ResolveRevision("feature")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	assert.ErrorIs(t, r.CreateBranch("feature"), errclass.ErrConflict)
	assert.ErrorIs(t, r.DeleteBranch("main"), errclass.ErrInvalid)
	require.NoError(t, r.DeleteBranch("feature"))
	assert.ErrorIs(t, r.DeleteBranch("feature"), errclass.ErrNotFound)
}

func TestBranchBeforeFirstCommit(t *testing.T) {
	r := initReplica(t)
	assert.ErrorIs(t, r.CreateBranch("early"), errclass.ErrInvalid)
}

func TestCheckout(t *testing.T) {
	r := initReplica(t)
	id1 := commitFile(t, r, "f.txt", "1", "first")
	commitFile(t, r, "f.txt", "2", "second")

	// Branch checkout moves the symbolic ref.
	require.NoError(t, r.Checkout("feature", true))
	branch, err := r.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "feature", branch)

	// Snapshot checkout detaches HEAD.
	require.NoError(t, r.Checkout(string(id1), false))
	branch, err = r.CurrentBranch()
	require.NoError(t, err)
	assert.Empty(t, branch)
	head, err := r.ResolveHEAD()
	require.NoError(t, err)
	assert.Equal(t, id1, head)

	require.NoError(t, r.Checkout("main", false))
	branch, err = r.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestMergeFastForward(t *testing.T) {
	r := initReplica(t)
	commitFile(t, r, "f.txt", "1", "first")

	// Advance a feature branch two commits past main.
	require.NoError(t, r.Checkout("feature", true))
	commitFile(t, r, "f.txt", "2", "second")
	target := commitFile(t, r, "g.txt", "new", "third")

	require.NoError(t, r.Checkout("main", false))
	merged, err := r.Merge("feature")
	require.NoError(t, err)
	assert.Equal(t, target, merged)

	head, err := r.ResolveHEAD()
	require.NoError(t, err)
	assert.Equal(t, target, head)

	// The working tree now matches the merged snapshot.
	data, err := os.ReadFile(filepath.Join(r.Root, "g.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestMergeDivergedRejected(t *testing.T) {
	r := initReplica(t)
	commitFile(t, r, "f.txt", "base", "base")

	require.NoError(t, r.Checkout("feature", true))
	commitFile(t, r, "f.txt", "theirs", "theirs")

	require.NoError(t, r.Checkout("main", false))
	commitFile(t, r, "f.txt", "ours", "ours")

	_, err := r.Merge("feature")
	assert.ErrorIs(t, err, errclass.ErrInvalid)

	_, err = r.Merge("nonexistent")
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestMergeAlreadyUpToDate(t *testing.T) {
	r := initReplica(t)
	id := commitFile(t, r, "f.txt", "1", "first")
	require.NoError(t, r.CreateBranch("feature"))

	merged, err := r.Merge("feature")
	require.NoError(t, err)
	assert.Equal(t, id, merged)
}

func TestResetModes(t *testing.T) {
	r := initReplica(t)
	id1 := commitFile(t, r, "f.txt", "v1", "first")
	commitFile(t, r, "f.txt", "v2", "second")

	// Soft: only HEAD moves, index and file keep v2.
	require.NoError(t, r.Reset("HEAD~1", ResetSoft))
	head, err := r.ResolveHEAD()
	require.NoError(t, err)
	assert.Equal(t, id1, head)
	idx, err := r.ReadIndex()
	require.NoError(t, err)
	assert.Equal(t, model.ComputeBlobID([]byte("v2")), idx["f.txt"])

	// Mixed: the index rewinds, the file stays.
	require.NoError(t, r.Reset(string(id1), ResetMixed))
	idx, err = r.ReadIndex()
	require.NoError(t, err)
	assert.Equal(t, model.ComputeBlobID([]byte("v1")), idx["f.txt"])
	data, err := os.ReadFile(filepath.Join(r.Root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	// Hard: the file rewinds too.
	require.NoError(t, r.Reset(string(id1), ResetHard))
	data, err = os.ReadFile(filepath.Join(r.Root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestResetPath(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "a.txt", "a1")
	writeWorkFile(t, r, "b.txt", "b1")
	require.NoError(t, r.Add([]string{"."}))
	_, err := r.Commit("first", false)
	require.NoError(t, err)

	writeWorkFile(t, r, "a.txt", "a2")
	writeWorkFile(t, r, "b.txt", "b2")
	require.NoError(t, r.Add([]string{"."}))

	require.NoError(t, r.ResetPath("HEAD", "a.txt"))
	idx, err := r.ReadIndex()
	require.NoError(t, err)
	assert.Equal(t, model.ComputeBlobID([]byte("a1")), idx["a.txt"])
	assert.Equal(t, model.ComputeBlobID([]byte("b2")), idx["b.txt"])

	assert.ErrorIs(t, r.ResetPath("HEAD", "missing.txt"), errclass.ErrNotFound)
}

func TestRestore(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "f.txt", "staged")
	require.NoError(t, r.Add([]string{"f.txt"}))

	writeWorkFile(t, r, "f.txt", "scribbled over")
	require.NoError(t, r.Restore("f.txt"))
	data, err := os.ReadFile(filepath.Join(r.Root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "staged", string(data))

	assert.ErrorIs(t, r.Restore("untracked.txt"), errclass.ErrNotFound)
}

func TestClean(t *testing.T) {
	r := initReplica(t)
	writeWorkFile(t, r, "tracked.txt", "t")
	require.NoError(t, r.Add([]string{"tracked.txt"}))
	writeWorkFile(t, r, "junk1.txt", "x")
	writeWorkFile(t, r, "junk2.txt", "y")

	// Dry run lists but keeps.
	removed, err := r.Clean(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"junk1.txt", "junk2.txt"}, removed)
	_, err = os.Stat(filepath.Join(r.Root, "junk1.txt"))
	assert.NoError(t, err)

	removed, err = r.Clean(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"junk1.txt", "junk2.txt"}, removed)
	_, err = os.Stat(filepath.Join(r.Root, "junk1.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(r.Root, "tracked.txt"))
	assert.NoError(t, err)
}

func TestShow(t *testing.T) {
	r := initReplica(t)
	id := commitFile(t, r, "f.txt", "content", "the commit")

	snap, tree, err := r.Show("HEAD")
	require.NoError(t, err)
	assert.Equal(t, id, snap.SnapshotID)
	assert.Equal(t, "the commit", snap.Message)
	assert.Contains(t, tree.Entries, "f.txt")

	_, _, err = r.Show("bogus")
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestBlame(t *testing.T) {
	r := initReplica(t)
	first := commitFile(t, r, "a.txt", "a1", "add a")
	second := commitFile(t, r, "b.txt", "b1", "add b")
	third := commitFile(t, r, "a.txt", "a2", "change a")

	snap, err := r.Blame("a.txt")
	require.NoError(t, err)
	assert.Equal(t, third, snap.SnapshotID)

	// b.txt was last touched in the second commit.
	snap, err = r.Blame("b.txt")
	require.NoError(t, err)
	assert.Equal(t, second, snap.SnapshotID)

	// Rewind past the change: a.txt is attributed to its introduction.
	require.NoError(t, r.Reset(string(first), ResetSoft))
	snap, err = r.Blame("a.txt")
	require.NoError(t, err)
	assert.Equal(t, first, snap.SnapshotID)

	_, err = r.Blame("never-existed.txt")
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}
