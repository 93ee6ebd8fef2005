// Package client implements the local working-copy side: a .anchor replica
// of the server's object store plus the staging index, branches, and the
// offline subcommand operations built on them.
package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anchor-vcs/anchor/internal/store"
	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/fsutil"
	"github.com/anchor-vcs/anchor/pkg/model"
)

// AnchorDir is the replica directory name at the working-tree root.
const AnchorDir = ".anchor"

// Names never staged or pushed.
var ignoredEntries = map[string]bool{
	AnchorDir: true,
	".git":    true,
}

// Replica is an opened working copy: the working tree plus its .anchor
// object store.
type Replica struct {
	// Root is the working-tree root.
	Root string
	// Dir is the .anchor directory.
	Dir string
	// Store is the local object store, laid out exactly like the server's.
	Store *store.Store
}

// Init creates a fresh .anchor replica in root: object directories, an
// empty index, and HEAD pointing at refs/heads/main.
func Init(root string) (*Replica, error) {
	dir := filepath.Join(root, AnchorDir)
	if _, err := os.Stat(dir); err == nil {
		return nil, errclass.ErrConflict.WithMessagef("%s already exists", dir)
	}
	for _, sub := range []string{
		filepath.Join(dir, "objects", "blobs"),
		filepath.Join(dir, "objects", "trees"),
		filepath.Join(dir, "objects", "snapshots"),
		filepath.Join(dir, "refs", "heads"),
		filepath.Join(dir, "refs", "remotes"),
		filepath.Join(dir, "logs"),
	} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("create replica layout: %w", err)
		}
	}
	r := &Replica{Root: root, Dir: dir, Store: store.Open(dir)}
	if err := r.SetHEADBranch("main"); err != nil {
		return nil, err
	}
	if err := r.WriteIndex(Index{}); err != nil {
		return nil, err
	}
	if err := r.WriteConfig(map[string]string{}); err != nil {
		return nil, err
	}
	return r, nil
}

// Open locates the replica for the current directory, walking parents until
// a .anchor directory is found.
func Open(start string) (*Replica, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	for {
		anchor := filepath.Join(dir, AnchorDir)
		if info, err := os.Stat(anchor); err == nil && info.IsDir() {
			return &Replica{Root: dir, Dir: anchor, Store: store.Open(anchor)}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, errclass.ErrNotFound.WithMessage("not inside an anchor working tree")
		}
		dir = parent
	}
}

const headSymbolicPrefix = "ref: "

// HEAD returns the symbolic branch ref ("refs/heads/x") or, when detached,
// the snapshot id HEAD sits on.
func (r *Replica) HEAD() (ref string, detached model.SnapshotID, err error) {
	data, err := os.ReadFile(filepath.Join(r.Dir, "HEAD"))
	if err != nil {
		return "", "", fmt.Errorf("read HEAD: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if strings.HasPrefix(content, headSymbolicPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(content, headSymbolicPrefix)), "", nil
	}
	return "", model.SnapshotID(content), nil
}

// CurrentBranch returns the checked-out branch name, or "" when detached.
func (r *Replica) CurrentBranch() (string, error) {
	ref, _, err := r.HEAD()
	if err != nil {
		return "", err
	}
	if ref == "" {
		return "", nil
	}
	return strings.TrimPrefix(ref, "refs/heads/"), nil
}

// SetHEADBranch points HEAD symbolically at a branch.
func (r *Replica) SetHEADBranch(name string) error {
	content := headSymbolicPrefix + "refs/heads/" + name + "\n"
	return fsutil.AtomicWrite(filepath.Join(r.Dir, "HEAD"), []byte(content), 0o644)
}

// SetHEADDetached points HEAD directly at a snapshot.
func (r *Replica) SetHEADDetached(id model.SnapshotID) error {
	return fsutil.AtomicWrite(filepath.Join(r.Dir, "HEAD"), []byte(string(id)+"\n"), 0o644)
}

// ResolveHEAD returns the snapshot id HEAD refers to, "" when the current
// branch has no commits yet.
func (r *Replica) ResolveHEAD() (model.SnapshotID, error) {
	ref, detached, err := r.HEAD()
	if err != nil {
		return "", err
	}
	if ref == "" {
		return detached, nil
	}
	return r.Store.ReadRef(ref)
}

// AdvanceHEAD moves the current branch (or detached HEAD) to id and appends
// a reflog entry.
func (r *Replica) AdvanceHEAD(id model.SnapshotID, action string) error {
	old, err := r.ResolveHEAD()
	if err != nil {
		return err
	}
	ref, _, err := r.HEAD()
	if err != nil {
		return err
	}
	if ref == "" {
		if err := r.SetHEADDetached(id); err != nil {
			return err
		}
	} else if err := r.Store.WriteRef(ref, id); err != nil {
		return err
	}
	return r.AppendReflog(old, id, action)
}

// AppendReflog records a HEAD movement in logs/HEAD.
func (r *Replica) AppendReflog(old, new model.SnapshotID, action string) error {
	oldStr := string(old)
	if oldStr == "" {
		oldStr = strings.Repeat("0", 7)
	}
	line := fmt.Sprintf("%s %s %s %s\n", oldStr, new, model.NowTimestamp(), action)
	f, err := os.OpenFile(filepath.Join(r.Dir, "logs", "HEAD"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open reflog: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("append reflog: %w", err)
	}
	return f.Close()
}

// Reflog returns logs/HEAD lines, newest first.
func (r *Replica) Reflog() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(r.Dir, "logs", "HEAD"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	return lines, nil
}

// Index is the staging area: relative path to blob id.
type Index map[string]model.BlobID

// ReadIndex loads the staging index.
func (r *Replica) ReadIndex() (Index, error) {
	data, err := os.ReadFile(filepath.Join(r.Dir, "index"))
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	if idx == nil {
		idx = Index{}
	}
	return idx, nil
}

// WriteIndex persists the staging index atomically.
func (r *Replica) WriteIndex(idx Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return fsutil.AtomicWrite(filepath.Join(r.Dir, "index"), data, 0o644)
}

// ReadConfig loads the replica's key/value configuration.
func (r *Replica) ReadConfig() (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(r.Dir, "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg map[string]string
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg == nil {
		cfg = map[string]string{}
	}
	return cfg, nil
}

// WriteConfig persists the replica configuration atomically.
func (r *Replica) WriteConfig(cfg map[string]string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return fsutil.AtomicWrite(filepath.Join(r.Dir, "config"), data, 0o644)
}

// RemoteURL returns the configured URL for a remote, or "".
func (r *Replica) RemoteURL(remote string) (string, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	return cfg["remote."+remote+".url"], nil
}

// SetRemoteURL records a remote's URL in the configuration.
func (r *Replica) SetRemoteURL(remote, url string) error {
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg["remote."+remote+".url"] = url
	return r.WriteConfig(cfg)
}

// Remotes lists configured remote names, sorted.
func (r *Replica) Remotes() ([]string, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return nil, err
	}
	var names []string
	for key := range cfg {
		if strings.HasPrefix(key, "remote.") && strings.HasSuffix(key, ".url") {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(key, "remote."), ".url"))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Branches lists local branch names, sorted.
func (r *Replica) Branches() ([]string, error) {
	names, err := r.Store.ListRefs("refs/heads")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// WorkFiles returns the relative slash paths of every regular file in the
// working tree, skipping the replica and .git directories.
func (r *Replica) WorkFiles() ([]string, error) {
	var files []string
	err := filepath.Walk(r.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if ignoredEntries[info.Name()] && path != r.Root {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(r.Root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk working tree: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
