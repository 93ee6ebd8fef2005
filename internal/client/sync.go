package client

import (
	"os"
	"path/filepath"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
	"github.com/anchor-vcs/anchor/pkg/ziputil"
)

// DefaultRemote is the remote recorded by clone.
const DefaultRemote = "origin"

// Clone downloads a repository into dest: extract the latest archive,
// initialize the replica, import the full history, and point main at it.
func Clone(api *API, repo, dest string) (*Replica, error) {
	if dest == "" {
		dest = repo
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, errclass.ErrInternal.WithMessagef("create %s: %v", dest, err)
	}

	zipPath, err := api.DownloadArchive(repo, "")
	if err != nil {
		return nil, err
	}
	defer os.Remove(zipPath)
	if err := ziputil.Extract(zipPath, dest); err != nil {
		return nil, err
	}

	r, err := Init(dest)
	if err != nil {
		return nil, err
	}
	if err := r.SetRemoteURL(DefaultRemote, api.BaseURL()+"/"+repo); err != nil {
		return nil, err
	}

	head, err := r.ImportHistory(api, repo)
	if err != nil {
		return nil, err
	}
	if head != "" {
		if err := r.Store.WriteRef("refs/heads/main", head); err != nil {
			return nil, err
		}
		if err := r.Store.WriteRef("refs/remotes/"+DefaultRemote+"/main", head); err != nil {
			return nil, err
		}
		if err := r.AppendReflog("", head, "clone: from "+api.BaseURL()); err != nil {
			return nil, err
		}
	}

	// Stage everything so status starts clean, and store the resulting
	// tree so HEAD's root tree resolves locally.
	if err := r.Add([]string{"."}); err != nil {
		return nil, err
	}
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}
	tree := model.NewTree()
	for rel, blobID := range idx {
		tree.Entries[rel] = model.TreeEntry{ID: blobID, Type: model.EntryTypeBlob}
	}
	if _, err := r.Store.PutTree(tree); err != nil {
		return nil, err
	}
	return r, nil
}

// ImportHistory persists any snapshot objects from the server's history
// listing that the local store is missing. Returns the newest id, or "".
func (r *Replica) ImportHistory(api *API, repo string) (model.SnapshotID, error) {
	history, err := api.History(repo)
	if err != nil {
		return "", err
	}
	for _, snap := range history {
		if r.Store.HasSnapshot(snap.SnapshotID) {
			continue
		}
		if err := r.Store.PutSnapshot(snap); err != nil {
			return "", err
		}
	}
	if len(history) == 0 {
		return "", nil
	}
	return history[0].SnapshotID, nil
}

// repoNameFromConfig derives the server repo name from the remote URL, the
// trailing path segment.
func (r *Replica) repoNameFromConfig(remote string) (string, error) {
	url, err := r.RemoteURL(remote)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", errclass.ErrNotFound.WithMessagef("remote %s is not configured", remote)
	}
	return filepath.Base(url), nil
}

// Push zips the working tree and uploads it with the HEAD commit's message.
// The server recomputes the snapshot id with the shared formula, so a clean
// push comes back with the id of the local HEAD commit.
func (r *Replica) Push(api *API, remote string) (model.SnapshotID, error) {
	repo, err := r.repoNameFromConfig(remote)
	if err != nil {
		return "", err
	}

	message := "push"
	head, err := r.ResolveHEAD()
	if err != nil {
		return "", err
	}
	if head != "" {
		if snap, err := r.Store.GetSnapshot(head); err == nil {
			message = snap.Message
		}
	}

	zipPath := filepath.Join(os.TempDir(), "anchor-push-"+filepath.Base(r.Root)+".zip")
	if err := ziputil.Create(zipPath, r.Root, AnchorDir, ".git"); err != nil {
		return "", errclass.ErrInternal.WithMessagef("zip working tree: %v", err)
	}
	defer os.Remove(zipPath)

	id, err := api.Upload(repo, message, zipPath)
	if err != nil {
		return "", err
	}
	if err := r.Store.WriteRef("refs/remotes/"+remote+"/main", id); err != nil {
		return "", err
	}
	return id, nil
}

// Pull downloads the latest archive and extracts it over the working tree.
func (r *Replica) Pull(api *API, remote string) error {
	repo, err := r.repoNameFromConfig(remote)
	if err != nil {
		return err
	}
	zipPath, err := api.DownloadArchive(repo, "")
	if err != nil {
		return err
	}
	defer os.Remove(zipPath)
	if err := ziputil.Extract(zipPath, r.Root); err != nil {
		return err
	}
	if _, err := r.Fetch(api, remote); err != nil {
		return err
	}
	// Re-stage so the index matches what was pulled.
	return r.Add([]string{"."})
}

// Fetch imports unseen snapshot objects and advances the remote-tracking
// ref, recording the movement in the reflog.
func (r *Replica) Fetch(api *API, remote string) (model.SnapshotID, error) {
	repo, err := r.repoNameFromConfig(remote)
	if err != nil {
		return "", err
	}
	head, err := r.ImportHistory(api, repo)
	if err != nil {
		return "", err
	}
	if head == "" {
		return "", nil
	}
	ref := "refs/remotes/" + remote + "/main"
	old, err := r.Store.ReadRef(ref)
	if err != nil {
		return "", err
	}
	if err := r.Store.WriteRef(ref, head); err != nil {
		return "", err
	}
	if old != head {
		if err := r.AppendReflog(old, head, "fetch: "+remote); err != nil {
			return "", err
		}
	}
	return head, nil
}
