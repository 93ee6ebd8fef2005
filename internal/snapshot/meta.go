package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/fsutil"
	"github.com/anchor-vcs/anchor/pkg/model"
)

// ReadMeta loads a repository's meta.json.
func (e *Engine) ReadMeta(repo string) (*model.RepoMeta, error) {
	if !e.Exists(repo) {
		return nil, errclass.ErrNotFound.WithMessagef("repository %s", repo)
	}
	data, err := os.ReadFile(filepath.Join(e.RepoPath(repo), "meta.json"))
	if err != nil {
		if os.IsNotExist(err) {
			// Repositories created before metadata tracking.
			return &model.RepoMeta{Name: repo}, nil
		}
		return nil, errclass.ErrInternal.WithMessagef("read meta: %v", err)
	}
	var meta model.RepoMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errclass.ErrInternal.WithMessagef("parse meta: %v", err)
	}
	return &meta, nil
}

// WriteMeta persists a repository's meta.json atomically.
func (e *Engine) WriteMeta(repo string, meta *model.RepoMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errclass.ErrInternal.WithMessagef("marshal meta: %v", err)
	}
	path := filepath.Join(e.RepoPath(repo), "meta.json")
	if err := fsutil.AtomicWrite(path, data, 0o644); err != nil {
		return errclass.ErrInternal.WithMessagef("write meta: %v", err)
	}
	return nil
}

// ListRepos returns metadata for every repository under the root, sorted by
// name. The users directory and the refresh token store live alongside
// repositories and are excluded by name.
func (e *Engine) ListRepos() ([]*model.RepoMeta, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.RepoMeta{}, nil
		}
		return nil, errclass.ErrInternal.WithMessagef("read repos root: %v", err)
	}
	var repos []*model.RepoMeta
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "users" {
			continue
		}
		meta, err := e.ReadMeta(entry.Name())
		if err != nil {
			e.log.WithField("repo", entry.Name()).WithError(err).Warn("skipping unreadable repository")
			continue
		}
		repos = append(repos, meta)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
	return repos, nil
}
