// Package store implements the content-addressed object store: blobs, trees,
// snapshots, and refs on disk under a repository root. The server and the
// client replica share this layout, so ids computed on either side agree.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/fsutil"
	"github.com/anchor-vcs/anchor/pkg/jsonutil"
	"github.com/anchor-vcs/anchor/pkg/model"
)

// Store is an object store rooted at a repository directory.
type Store struct {
	root string
}

// Open returns a store over an existing repository directory.
func Open(root string) *Store {
	return &Store{root: root}
}

// Root returns the repository directory.
func (s *Store) Root() string { return s.root }

// BlobPath returns the sharded on-disk path for a blob id. The two-level
// sharding (id[0:2]/id[2:4]) keeps directory listings bounded.
func (s *Store) BlobPath(id model.BlobID) string {
	h := string(id)
	return filepath.Join(s.root, "objects", "blobs", h[:2], h[2:4], h+".blob")
}

// TreePath returns the on-disk path for a tree id.
func (s *Store) TreePath(id model.TreeID) string {
	return filepath.Join(s.root, "objects", "trees", string(id)+".json")
}

// SnapshotPath returns the on-disk path for a snapshot id.
func (s *Store) SnapshotPath(id model.SnapshotID) string {
	return filepath.Join(s.root, "objects", "snapshots", string(id)+".json")
}

// PutBlob writes data under its content address and returns the id.
// Writing bytes that already exist is a no-op: content equals identity, so
// the existing file is already correct.
func (s *Store) PutBlob(data []byte) (model.BlobID, error) {
	id := model.ComputeBlobID(data)
	path := s.BlobPath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := fsutil.AtomicWrite(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", id, err)
	}
	return id, nil
}

// GetBlob reads blob bytes by id.
func (s *Store) GetBlob(id model.BlobID) ([]byte, error) {
	data, err := os.ReadFile(s.BlobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("blob %s", id)
		}
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return data, nil
}

// HasBlob reports whether a blob exists in the store.
func (s *Store) HasBlob(id model.BlobID) bool {
	_, err := os.Stat(s.BlobPath(id))
	return err == nil
}

// PutTree stores a tree under the hash of its canonical JSON encoding.
// Idempotent for identical trees.
func (s *Store) PutTree(t *model.Tree) (model.TreeID, error) {
	data, err := jsonutil.CanonicalMarshal(t)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	id := model.TreeID(hex.EncodeToString(sum[:]))

	path := s.TreePath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create trees dir: %w", err)
	}
	if err := fsutil.AtomicWrite(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write tree %s: %w", id, err)
	}
	return id, nil
}

// GetTree reads a tree by id.
func (s *Store) GetTree(id model.TreeID) (*model.Tree, error) {
	data, err := os.ReadFile(s.TreePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("tree %s", id)
		}
		return nil, fmt.Errorf("read tree %s: %w", id, err)
	}
	var t model.Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tree %s: %w", id, err)
	}
	if t.Entries == nil {
		t.Entries = make(map[string]model.TreeEntry)
	}
	return &t, nil
}

// PutSnapshot stores a snapshot object under its precomputed id.
func (s *Store) PutSnapshot(snap *model.Snapshot) error {
	path := s.SnapshotPath(snap.SnapshotID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshots dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := fsutil.AtomicWrite(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.SnapshotID, err)
	}
	return nil
}

// GetSnapshot reads a snapshot by id.
func (s *Store) GetSnapshot(id model.SnapshotID) (*model.Snapshot, error) {
	data, err := os.ReadFile(s.SnapshotPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("snapshot %s", id)
		}
		return nil, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// HasSnapshot reports whether a snapshot object exists.
func (s *Store) HasSnapshot(id model.SnapshotID) bool {
	_, err := os.Stat(s.SnapshotPath(id))
	return err == nil
}

// ReadRef returns the snapshot id a ref points to, or "" when the ref is
// empty or absent. ref is a slash-separated path such as "refs/main" or
// "refs/heads/feature".
func (s *Store) ReadRef(ref string) (model.SnapshotID, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read ref %s: %w", ref, err)
	}
	return model.SnapshotID(strings.TrimSpace(string(data))), nil
}

// WriteRef atomically points a ref at a snapshot id. Callers must have
// written every object the snapshot references first: readers are lock-free
// and rely on a visible ref always naming a complete object graph.
func (s *Store) WriteRef(ref string, id model.SnapshotID) error {
	path := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ref dir: %w", err)
	}
	if err := fsutil.AtomicWrite(path, []byte(id), 0o644); err != nil {
		return fmt.Errorf("write ref %s: %w", ref, err)
	}
	return nil
}

// RemoveRef deletes a ref file. Missing refs are not an error.
func (s *Store) RemoveRef(ref string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove ref %s: %w", ref, err)
	}
	return nil
}

// ListRefs returns the names of refs directly under the given directory,
// e.g. ListRefs("refs/heads") lists branches.
func (s *Store) ListRefs(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(dir)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read refs dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// SnapshotCount returns the number of snapshot objects in the store.
func (s *Store) SnapshotCount() (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "objects", "snapshots"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read snapshots dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n, nil
}
