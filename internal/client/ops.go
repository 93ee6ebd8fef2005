package client

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
	"github.com/anchor-vcs/anchor/pkg/pathutil"
)

// ResolveRevision turns a user revision into a snapshot id. Supported
// forms: "HEAD", a branch name, a snapshot id, and any of those with a ~N
// suffix walking N parents back.
func (r *Replica) ResolveRevision(rev string) (model.SnapshotID, error) {
	base := rev
	back := 0
	if i := strings.Index(rev, "~"); i >= 0 {
		base = rev[:i]
		n, err := strconv.Atoi(rev[i+1:])
		if err != nil || n < 0 {
			return "", errclass.ErrInvalid.WithMessagef("bad revision suffix: %s", rev)
		}
		back = n
	}

	var id model.SnapshotID
	switch {
	case base == "" || base == "HEAD":
		head, err := r.ResolveHEAD()
		if err != nil {
			return "", err
		}
		id = head
	default:
		branchID, err := r.Store.ReadRef("refs/heads/" + base)
		if err != nil {
			return "", err
		}
		if branchID != "" {
			id = branchID
		} else if r.Store.HasSnapshot(model.SnapshotID(base)) {
			id = model.SnapshotID(base)
		} else {
			return "", errclass.ErrNotFound.WithMessagef("revision %s", rev)
		}
	}
	if id == "" {
		return "", errclass.ErrNotFound.WithMessage("no commits yet")
	}

	for i := 0; i < back; i++ {
		snap, err := r.Store.GetSnapshot(id)
		if err != nil {
			return "", err
		}
		id = snap.ParentID()
		if id == "" {
			return "", errclass.ErrNotFound.WithMessagef("revision %s goes past the root", rev)
		}
	}
	return id, nil
}

// CreateBranch points a new branch at the current HEAD.
func (r *Replica) CreateBranch(name string) error {
	if err := pathutil.ValidateName(name); err != nil {
		return err
	}
	existing, err := r.Store.ReadRef("refs/heads/" + name)
	if err != nil {
		return err
	}
	if existing != "" {
		return errclass.ErrConflict.WithMessagef("branch %s already exists", name)
	}
	head, err := r.ResolveHEAD()
	if err != nil {
		return err
	}
	if head == "" {
		return errclass.ErrInvalid.WithMessage("cannot branch before the first commit")
	}
	return r.Store.WriteRef("refs/heads/"+name, head)
}

// DeleteBranch removes a branch ref. The checked-out branch is protected.
func (r *Replica) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if name == current {
		return errclass.ErrInvalid.WithMessagef("cannot delete the checked-out branch %s", name)
	}
	id, err := r.Store.ReadRef("refs/heads/" + name)
	if err != nil {
		return err
	}
	if id == "" {
		return errclass.ErrNotFound.WithMessagef("branch %s", name)
	}
	return r.Store.RemoveRef("refs/heads/" + name)
}

// Checkout moves HEAD to a branch or, for a snapshot id, detaches it.
// The working tree is left alone: only the pointer moves.
func (r *Replica) Checkout(arg string, create bool) error {
	if create {
		if err := r.CreateBranch(arg); err != nil {
			return err
		}
		return r.SetHEADBranch(arg)
	}
	branchID, err := r.Store.ReadRef("refs/heads/" + arg)
	if err != nil {
		return err
	}
	if branchID != "" {
		return r.SetHEADBranch(arg)
	}
	id, err := r.ResolveRevision(arg)
	if err != nil {
		return err
	}
	return r.SetHEADDetached(id)
}

// Merge fast-forwards the current branch to another branch. If HEAD is an
// ancestor of the target, the ref advances and the working tree and index
// are rewritten from the target tree; anything else is unsupported.
func (r *Replica) Merge(branch string) (model.SnapshotID, error) {
	target, err := r.Store.ReadRef("refs/heads/" + branch)
	if err != nil {
		return "", err
	}
	if target == "" {
		return "", errclass.ErrNotFound.WithMessagef("branch %s", branch)
	}
	head, err := r.ResolveHEAD()
	if err != nil {
		return "", err
	}
	if head == target {
		return head, nil
	}

	// Walk the target's ancestry looking for HEAD.
	ancestor := false
	for id := target; id != ""; {
		snap, err := r.Store.GetSnapshot(id)
		if err != nil {
			break
		}
		if snap.ParentID() == head {
			ancestor = true
			break
		}
		id = snap.ParentID()
	}
	if head != "" && !ancestor {
		return "", errclass.ErrInvalid.WithMessagef("merge of diverged branches is not supported, %s is not a fast-forward", branch)
	}

	if err := r.restoreTreeFromSnapshot(target, true); err != nil {
		return "", err
	}
	if err := r.AdvanceHEAD(target, "merge: fast-forward to "+branch); err != nil {
		return "", err
	}
	return target, nil
}

// ResetMode selects how much state Reset rewrites.
type ResetMode int

const (
	// ResetSoft moves HEAD only.
	ResetSoft ResetMode = iota
	// ResetMixed moves HEAD and rewrites the index.
	ResetMixed
	// ResetHard moves HEAD, rewrites the index, and restores files.
	ResetHard
)

// Reset moves HEAD to a revision. Mixed also rebuilds the index from the
// target tree; hard additionally rewrites the files themselves.
func (r *Replica) Reset(rev string, mode ResetMode) error {
	id, err := r.ResolveRevision(rev)
	if err != nil {
		return err
	}
	if err := r.AdvanceHEAD(id, "reset: moving to "+rev); err != nil {
		return err
	}
	if mode == ResetSoft {
		return nil
	}
	return r.restoreTreeFromSnapshot(id, mode == ResetHard)
}

// ResetPath restores a single path's index entry from a revision's tree.
func (r *Replica) ResetPath(rev, path string) error {
	id, err := r.ResolveRevision(rev)
	if err != nil {
		return err
	}
	snap, err := r.Store.GetSnapshot(id)
	if err != nil {
		return err
	}
	tree, err := r.Store.GetTree(snap.RootTree)
	if err != nil {
		return err
	}
	entry, ok := tree.Entries[path]
	if !ok {
		return errclass.ErrNotFound.WithMessagef("path %s in %s", path, rev)
	}
	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}
	idx[path] = entry.ID
	return r.WriteIndex(idx)
}

// Restore rewrites a working-tree file from its staged blob.
func (r *Replica) Restore(path string) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}
	blobID, ok := idx[path]
	if !ok {
		return errclass.ErrNotFound.WithMessagef("path %s is not tracked", path)
	}
	data, err := r.Store.GetBlob(blobID)
	if err != nil {
		return err
	}
	target := filepath.Join(r.Root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}
	return os.WriteFile(target, data, 0o644)
}

// restoreTreeFromSnapshot rewrites the index from the snapshot's tree; with
// files set, the blobs are written into the working tree as well.
func (r *Replica) restoreTreeFromSnapshot(id model.SnapshotID, files bool) error {
	snap, err := r.Store.GetSnapshot(id)
	if err != nil {
		return err
	}
	tree, err := r.Store.GetTree(snap.RootTree)
	if err != nil {
		return err
	}
	idx := Index{}
	for rel, entry := range tree.Entries {
		idx[rel] = entry.ID
		if !files {
			continue
		}
		data, err := r.Store.GetBlob(entry.ID)
		if err != nil {
			return err
		}
		target := filepath.Join(r.Root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", rel, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return r.WriteIndex(idx)
}

// Clean lists (and unless dryRun, deletes) untracked files.
func (r *Replica) Clean(dryRun bool) ([]string, error) {
	st, err := r.WorkStatus()
	if err != nil {
		return nil, err
	}
	removed := append([]string(nil), st.Untracked...)
	sort.Strings(removed)
	if dryRun {
		return removed, nil
	}
	for _, rel := range removed {
		if err := os.Remove(filepath.Join(r.Root, filepath.FromSlash(rel))); err != nil {
			return nil, fmt.Errorf("remove %s: %w", rel, err)
		}
	}
	return removed, nil
}

// Show returns the snapshot object for a revision plus its tree.
func (r *Replica) Show(rev string) (*model.Snapshot, *model.Tree, error) {
	if rev == "" {
		rev = "HEAD"
	}
	id, err := r.ResolveRevision(rev)
	if err != nil {
		return nil, nil, err
	}
	snap, err := r.Store.GetSnapshot(id)
	if err != nil {
		return nil, nil, err
	}
	tree, err := r.Store.GetTree(snap.RootTree)
	if err != nil {
		return nil, nil, err
	}
	return snap, tree, nil
}

// GC is a placeholder: objects unreachable from any ref would be eligible,
// but nothing deletes them yet.
// TODO: sweep unreachable objects once remote-tracking refs participate in
// reachability.
func (r *Replica) GC() (int, error) {
	return 0, nil
}
