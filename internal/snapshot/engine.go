// Package snapshot implements the server-side snapshot engine: building
// trees from working directories, writing snapshots, traversing history,
// computing diffs, and exporting archives.
package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/anchor-vcs/anchor/internal/lock"
	"github.com/anchor-vcs/anchor/internal/store"
	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
)

// Names at the top of a repository directory that belong to the store
// itself and never enter a tree.
var internalEntries = map[string]bool{
	"objects":   true,
	"refs":      true,
	"meta.json": true,
	"repo.lock": true,
	".anchor":   true,
}

// Engine performs snapshot operations over the repositories under root.
type Engine struct {
	root  string
	locks *lock.Manager
	log   *logrus.Logger
}

// NewEngine creates a snapshot engine rooted at the repositories directory.
func NewEngine(root string, locks *lock.Manager, log *logrus.Logger) *Engine {
	return &Engine{root: root, locks: locks, log: log}
}

// RepoPath returns the directory of a named repository.
func (e *Engine) RepoPath(name string) string {
	return filepath.Join(e.root, name)
}

// Exists reports whether a repository directory is present.
func (e *Engine) Exists(name string) bool {
	_, err := os.Stat(e.RepoPath(name))
	return err == nil
}

// InitRepo creates a repository: object directories, an empty main ref, and
// meta.json. Re-initializing an existing repository is a conflict.
func (e *Engine) InitRepo(name string, meta *model.RepoMeta) error {
	repoPath := e.RepoPath(name)
	if _, err := os.Stat(repoPath); err == nil {
		return errclass.ErrConflict.WithMessagef("repository %s already exists", name)
	}
	for _, dir := range []string{
		filepath.Join(repoPath, "objects", "blobs"),
		filepath.Join(repoPath, "objects", "trees"),
		filepath.Join(repoPath, "objects", "snapshots"),
		filepath.Join(repoPath, "refs"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errclass.ErrInternal.WithMessagef("create repo layout: %v", err)
		}
	}
	s := store.Open(repoPath)
	if err := s.WriteRef("refs/main", ""); err != nil {
		return errclass.ErrInternal.WithMessagef("create main ref: %v", err)
	}
	if err := e.WriteMeta(name, meta); err != nil {
		return err
	}
	e.log.WithField("repo", name).Info("repository initialized")
	return nil
}

// Store returns the object store for a repository, or NotFound if the
// repository does not exist.
func (e *Engine) Store(name string) (*store.Store, error) {
	if !e.Exists(name) {
		return nil, errclass.ErrNotFound.WithMessagef("repository %s", name)
	}
	return store.Open(e.RepoPath(name)), nil
}

// Save builds a snapshot of workDir and advances refs/main, all under the
// repository lock. Two consecutive saves of an unchanged workDir yield the
// same snapshot id.
func (e *Engine) Save(repo, message, workDir string) (model.SnapshotID, error) {
	s, err := e.Store(repo)
	if err != nil {
		return "", err
	}

	guard, err := e.locks.Acquire(s.Root())
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("acquire repo lock: %v", err)
	}
	defer guard.Release()

	parent, err := s.ReadRef("refs/main")
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("read main ref: %v", err)
	}

	tree, err := BuildTree(s, workDir)
	if err != nil {
		return "", err
	}
	treeID, err := s.PutTree(tree)
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("write tree: %v", err)
	}

	// Saving an unchanged tree is idempotent: the head already records this
	// exact tree, so no snapshot is written and the ref stays put.
	if parent != "" {
		if head, err := s.GetSnapshot(parent); err == nil && head.RootTree == treeID {
			return parent, nil
		}
	}

	// The parent enters the id as the empty string for a root snapshot but
	// is stored as null in the object.
	id := model.ComputeSnapshotID(treeID, parent)
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
	if err := s.PutSnapshot(snap); err != nil {
		return "", errclass.ErrInternal.WithMessagef("write snapshot: %v", err)
	}

	// Objects are all on disk; only now may the ref move.
	if err := s.WriteRef("refs/main", id); err != nil {
		return "", errclass.ErrInternal.WithMessagef("advance main ref: %v", err)
	}

	e.log.WithFields(logrus.Fields{
		"repo":     repo,
		"snapshot": id,
		"files":    len(tree.Entries),
	}).Info("snapshot saved")
	return id, nil
}

// BuildTree walks workDir and stores every regular file as a blob, returning
// the flat tree mapping slash-separated relative paths to blob entries.
// Store-internal names at the top level are skipped so a repository
// directory can be snapshotted in place.
func BuildTree(s *store.Store, workDir string) (*model.Tree, error) {
	tree := model.NewTree()
	err := filepath.Walk(workDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if rel != "." && internalEntries[info.Name()] && filepath.Dir(path) == workDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if internalEntries[info.Name()] && filepath.Dir(path) == workDir {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		blobID, err := s.PutBlob(data)
		if err != nil {
			return err
		}
		tree.Entries[filepath.ToSlash(rel)] = model.TreeEntry{
			ID:   blobID,
			Type: model.EntryTypeBlob,
		}
		return nil
	})
	if err != nil {
		return nil, errclass.ErrInternal.WithMessagef("walk %s: %v", workDir, err)
	}
	return tree, nil
}

// History returns snapshots from the main ref back to the root, newest
// first. A missing parent object terminates the walk rather than failing:
// a truncated chain is still useful history.
func (e *Engine) History(repo string) ([]*model.Snapshot, error) {
	s, err := e.Store(repo)
	if err != nil {
		return nil, err
	}
	head, err := s.ReadRef("refs/main")
	if err != nil {
		return nil, errclass.ErrInternal.WithMessagef("read main ref: %v", err)
	}
	return WalkHistory(s, head)
}

// WalkHistory follows parent pointers from the given snapshot id.
func WalkHistory(s *store.Store, from model.SnapshotID) ([]*model.Snapshot, error) {
	history := []*model.Snapshot{}
	for id := from; id != ""; {
		snap, err := s.GetSnapshot(id)
		if err != nil {
			if errors.Is(err, errclass.ErrNotFound) {
				break
			}
			return nil, err
		}
		history = append(history, snap)
		id = snap.ParentID()
	}
	return history, nil
}

// Diff compares the root trees of two snapshots by path. Paths only in the
// newer tree are added, paths only in the older are removed, and paths in
// both with differing blob ids are modified. Lists come back sorted.
func (e *Engine) Diff(repo string, from, to model.SnapshotID) (*model.DiffResult, error) {
	s, err := e.Store(repo)
	if err != nil {
		return nil, err
	}
	fromTree, err := treeOf(s, from)
	if err != nil {
		return nil, err
	}
	toTree, err := treeOf(s, to)
	if err != nil {
		return nil, err
	}
	return DiffTrees(fromTree, toTree), nil
}

// DiffTrees computes the path-level difference between two flat trees.
func DiffTrees(from, to *model.Tree) *model.DiffResult {
	res := &model.DiffResult{Added: []string{}, Removed: []string{}, Modified: []string{}}
	for path, entry := range to.Entries {
		old, ok := from.Entries[path]
		switch {
		case !ok:
			res.Added = append(res.Added, path)
		case old.ID != entry.ID:
			res.Modified = append(res.Modified, path)
		}
	}
	for path := range from.Entries {
		if _, ok := to.Entries[path]; !ok {
			res.Removed = append(res.Removed, path)
		}
	}
	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	sort.Strings(res.Modified)
	return res
}

func treeOf(s *store.Store, id model.SnapshotID) (*model.Tree, error) {
	snap, err := s.GetSnapshot(id)
	if err != nil {
		return nil, err
	}
	return s.GetTree(snap.RootTree)
}

// ResolveRef turns a ref string into a snapshot id: the literal id of an
// existing snapshot, or "main"/"" for the current main ref.
func (e *Engine) ResolveRef(repo, ref string) (model.SnapshotID, error) {
	s, err := e.Store(repo)
	if err != nil {
		return "", err
	}
	if ref == "" || ref == "main" {
		head, err := s.ReadRef("refs/main")
		if err != nil {
			return "", errclass.ErrInternal.WithMessagef("read main ref: %v", err)
		}
		if head == "" {
			return "", errclass.ErrNotFound.WithMessagef("repository %s has no snapshots", repo)
		}
		return head, nil
	}
	id := model.SnapshotID(ref)
	if !s.HasSnapshot(id) {
		return "", errclass.ErrNotFound.WithMessagef("snapshot %s", ref)
	}
	return id, nil
}

// GetFile returns the blob contents recorded for path at the given snapshot.
func (e *Engine) GetFile(repo string, id model.SnapshotID, path string) ([]byte, error) {
	s, err := e.Store(repo)
	if err != nil {
		return nil, err
	}
	tree, err := treeOf(s, id)
	if err != nil {
		return nil, err
	}
	entry, ok := tree.Entries[path]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("path %s in snapshot %s", path, id)
	}
	return s.GetBlob(entry.ID)
}

// Stats reports the snapshot count and the file count of the latest tree.
func (e *Engine) Stats(repo string) (*model.RepoStats, error) {
	s, err := e.Store(repo)
	if err != nil {
		return nil, err
	}
	count, err := s.SnapshotCount()
	if err != nil {
		return nil, errclass.ErrInternal.WithMessagef("count snapshots: %v", err)
	}
	stats := &model.RepoStats{SnapshotCount: count}
	head, err := s.ReadRef("refs/main")
	if err != nil {
		return nil, errclass.ErrInternal.WithMessagef("read main ref: %v", err)
	}
	if head != "" {
		tree, err := treeOf(s, head)
		if err != nil {
			return nil, err
		}
		stats.FileCount = len(tree.Entries)
	}
	return stats, nil
}
