package snapshot

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
	"github.com/anchor-vcs/anchor/pkg/pathutil"
	"github.com/anchor-vcs/anchor/pkg/ziputil"
)

// SaveArchive extracts an uploaded zip into a scratch directory and saves a
// snapshot of it. The scratch directory is removed on every exit path.
func (e *Engine) SaveArchive(repo, message, zipPath string) (model.SnapshotID, error) {
	workDir, err := os.MkdirTemp("", "anchor-upload-")
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("create scratch dir: %v", err)
	}
	defer os.RemoveAll(workDir)

	if err := ziputil.Extract(zipPath, workDir); err != nil {
		return "", err
	}
	return e.Save(repo, message, workDir)
}

// CreateArchive materializes the snapshot's tree into a scratch directory
// and zips it. The caller removes the returned zip after streaming it.
func (e *Engine) CreateArchive(repo string, id model.SnapshotID) (string, error) {
	s, err := e.Store(repo)
	if err != nil {
		return "", err
	}
	tree, err := treeOf(s, id)
	if err != nil {
		return "", err
	}

	workDir, err := os.MkdirTemp("", "anchor-archive-")
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("create scratch dir: %v", err)
	}
	defer os.RemoveAll(workDir)

	for path, entry := range tree.Entries {
		if err := pathutil.ValidateRelPath(path); err != nil {
			return "", err
		}
		data, err := s.GetBlob(entry.ID)
		if err != nil {
			return "", err
		}
		target := filepath.Join(workDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", errclass.ErrInternal.WithMessagef("create %s: %v", path, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return "", errclass.ErrInternal.WithMessagef("write %s: %v", path, err)
		}
	}

	zipPath := filepath.Join(os.TempDir(), "anchor-"+uuid.NewString()+".zip")
	if err := ziputil.Create(zipPath, workDir); err != nil {
		os.Remove(zipPath)
		return "", errclass.ErrInternal.WithMessagef("create archive: %v", err)
	}
	return zipPath, nil
}
