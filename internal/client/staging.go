package client

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/anchor-vcs/anchor/internal/snapshot"
	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
	"github.com/anchor-vcs/anchor/pkg/pathutil"
)

// Add stages paths: each file is hashed, stored as a blob, and recorded in
// the index. A path naming a directory stages everything under it; "."
// stages the whole working tree.
func (r *Replica) Add(paths []string) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}
	for _, p := range paths {
		targets, err := r.expandPath(p)
		if err != nil {
			return err
		}
		for _, rel := range targets {
			if err := r.stageFile(idx, rel); err != nil {
				return err
			}
		}
	}
	return r.WriteIndex(idx)
}

// expandPath turns a user-supplied path into working-tree relative files.
func (r *Replica) expandPath(p string) ([]string, error) {
	if p == "." {
		return r.WorkFiles()
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.Root, p)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errclass.ErrNotFound.WithMessagef("path %s", p)
	}
	if !info.IsDir() {
		rel, err := filepath.Rel(r.Root, abs)
		if err != nil {
			return nil, err
		}
		return []string{filepath.ToSlash(rel)}, nil
	}
	all, err := r.WorkFiles()
	if err != nil {
		return nil, err
	}
	relDir, err := filepath.Rel(r.Root, abs)
	if err != nil {
		return nil, err
	}
	prefix := filepath.ToSlash(relDir) + "/"
	var out []string
	for _, f := range all {
		if len(f) > len(prefix) && f[:len(prefix)] == prefix {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *Replica) stageFile(idx Index, rel string) error {
	if err := pathutil.ValidateRelPath(rel); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(rel)))
	if err != nil {
		return errclass.ErrNotFound.WithMessagef("path %s", rel)
	}
	id, err := r.Store.PutBlob(data)
	if err != nil {
		return err
	}
	idx[rel] = id
	return nil
}

// Commit builds a tree from the index and writes a snapshot, advancing the
// current branch. With all set, tracked files are re-hashed first and
// entries whose files are gone leave the index. The snapshot id comes from
// the same formula the server uses, so a later push assigns the same id.
func (r *Replica) Commit(message string, all bool) (model.SnapshotID, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return "", err
	}
	if all {
		for rel := range idx {
			path := filepath.Join(r.Root, filepath.FromSlash(rel))
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					delete(idx, rel)
					continue
				}
				return "", fmt.Errorf("read %s: %w", rel, err)
			}
			id, err := r.Store.PutBlob(data)
			if err != nil {
				return "", err
			}
			idx[rel] = id
		}
		if err := r.WriteIndex(idx); err != nil {
			return "", err
		}
	}
	if len(idx) == 0 {
		return "", errclass.ErrInvalid.WithMessage("nothing to commit")
	}

	tree := model.NewTree()
	for rel, blobID := range idx {
		tree.Entries[rel] = model.TreeEntry{ID: blobID, Type: model.EntryTypeBlob}
	}
	treeID, err := r.Store.PutTree(tree)
	if err != nil {
		return "", err
	}

	parent, err := r.ResolveHEAD()
	if err != nil {
		return "", err
	}
	// Re-committing an unchanged tree is a no-op: HEAD already records this
	// exact tree.
	if parent != "" {
		if head, err := r.Store.GetSnapshot(parent); err == nil && head.RootTree == treeID {
			return parent, nil
		}
	}
	id := model.ComputeSnapshotID(treeID, parent)
	if r.Store.HasSnapshot(id) {
		// Identical tree and parent: the commit already exists.
		return id, nil
	}
	snap := &model.Snapshot{
		SnapshotID: id,
		RootTree:   treeID,
		Message:    message,
		Timestamp:  model.NowTimestamp(),
	}
	if parent != "" {
		p := parent
		snap.Parent = &p
	}
	if err := r.Store.PutSnapshot(snap); err != nil {
		return "", err
	}
	if err := r.AdvanceHEAD(id, "commit: "+message); err != nil {
		return "", err
	}
	return id, nil
}

// Status is the classification of the working tree against the index.
type Status struct {
	Branch    string
	Detached  model.SnapshotID
	Modified  []string
	Untracked []string
	Deleted   []string
	Unchanged []string
}

// Clean reports whether nothing differs from the index.
func (s *Status) Clean() bool {
	return len(s.Modified) == 0 && len(s.Untracked) == 0 && len(s.Deleted) == 0
}

// WorkStatus classifies every path in the working tree and index.
func (r *Replica) WorkStatus() (*Status, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}
	files, err := r.WorkFiles()
	if err != nil {
		return nil, err
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		return nil, err
	}
	st := &Status{Branch: branch}
	if branch == "" {
		_, detached, err := r.HEAD()
		if err != nil {
			return nil, err
		}
		st.Detached = detached
	}

	seen := make(map[string]bool, len(files))
	for _, rel := range files {
		seen[rel] = true
		staged, tracked := idx[rel]
		if !tracked {
			st.Untracked = append(st.Untracked, rel)
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		if model.ComputeBlobID(data) == staged {
			st.Unchanged = append(st.Unchanged, rel)
		} else {
			st.Modified = append(st.Modified, rel)
		}
	}
	for rel := range idx {
		if !seen[rel] {
			st.Deleted = append(st.Deleted, rel)
		}
	}
	sort.Strings(st.Deleted)
	return st, nil
}

// Log follows parents from HEAD through the local snapshot store, newest
// first. A missing parent stops the walk.
func (r *Replica) Log() ([]*model.Snapshot, error) {
	head, err := r.ResolveHEAD()
	if err != nil {
		return nil, err
	}
	return snapshot.WalkHistory(r.Store, head)
}

// Blame finds, for each line-owning commit, the newest commit in HEAD's
// history where the path's blob changed relative to its parent.
func (r *Replica) Blame(path string) (*model.Snapshot, error) {
	history, err := r.Log()
	if err != nil {
		return nil, err
	}
	for _, snap := range history {
		tree, err := r.Store.GetTree(snap.RootTree)
		if err != nil {
			return nil, err
		}
		entry, ok := tree.Entries[path]
		if !ok {
			continue
		}
		parentID := snap.ParentID()
		if parentID == "" {
			return snap, nil
		}
		parent, err := r.Store.GetSnapshot(parentID)
		if err != nil {
			return snap, nil
		}
		parentTree, err := r.Store.GetTree(parent.RootTree)
		if err != nil {
			return nil, err
		}
		if pe, ok := parentTree.Entries[path]; !ok || pe.ID != entry.ID {
			return snap, nil
		}
	}
	return nil, errclass.ErrNotFound.WithMessagef("path %s has no history", path)
}
