package server

import (
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/anchor-vcs/anchor/pkg/errclass"
	"github.com/anchor-vcs/anchor/pkg/model"
	"github.com/anchor-vcs/anchor/pkg/pathutil"
)

// repoName validates the {name} path variable before it touches the disk.
func repoName(r *http.Request) (string, error) {
	name := mux.Vars(r)["name"]
	if err := pathutil.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		IsPublic bool   `json:"is_public"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := pathutil.ValidateName(req.Name); err != nil {
		writeError(w, err)
		return
	}
	meta := &model.RepoMeta{
		Name:      req.Name,
		CreatedAt: model.NowTimestamp(),
		IsPublic:  req.IsPublic,
	}
	if err := s.engine.InitRepo(req.Name, meta); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.engine.ListRepos()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	meta, err := s.engine.ReadMeta(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.engine.History(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	from := model.SnapshotID(r.URL.Query().Get("from"))
	to := model.SnapshotID(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, errclass.ErrInvalid.WithMessage("from and to are required"))
		return
	}
	diff, err := s.engine.Diff(name, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.engine.ResolveRef(name, mux.Vars(r)["sid"])
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := s.engine.Store(name)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := st.GetSnapshot(id)
	if err != nil {
		writeError(w, err)
		return
	}
	tree, err := st.GetTree(snap.RootTree)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	path := vars["path"]
	if err := pathutil.ValidateRelPath(path); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.engine.ResolveRef(name, vars["sid"])
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := s.engine.GetFile(name, id, path)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.engine.ResolveRef(name, r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	zipPath, err := s.engine.CreateArchive(name, id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer os.Remove(zipPath)

	f, err := os.Open(zipPath)
	if err != nil {
		writeError(w, errclass.ErrInternal.WithMessagef("open archive: %v", err))
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.zip"`)
	io.Copy(w, f)
}

// handleSave snapshots a server-side directory. The directory must already
// be under the repository root; the request only supplies the message.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.engine.Save(name, req.Message, s.engine.RepoPath(name))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": string(id)})
}

// handleUpload accepts a multipart zip plus a message and saves a snapshot
// of the archive contents.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, errclass.ErrInvalid.WithMessagef("parse multipart form: %v", err))
		return
	}
	message := r.FormValue("message")
	file, _, err := r.FormFile("archive")
	if err != nil {
		writeError(w, errclass.ErrInvalid.WithMessage("archive file is required"))
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "anchor-upload-*.zip")
	if err != nil {
		writeError(w, errclass.ErrInternal.WithMessagef("create temp file: %v", err))
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		writeError(w, errclass.ErrInternal.WithMessagef("spool upload: %v", err))
		return
	}

	id, err := s.engine.SaveArchive(name, message, tmp.Name())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": string(id)})
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	isFavorite, err := strconv.ParseBool(r.URL.Query().Get("is_favorite"))
	if err != nil {
		writeError(w, errclass.ErrInvalid.WithMessage("is_favorite must be true or false"))
		return
	}
	meta, err := s.engine.ReadMeta(name)
	if err != nil {
		writeError(w, err)
		return
	}
	meta.IsFavorite = isFavorite
	if err := s.engine.WriteMeta(name, meta); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	name, err := repoName(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.engine.Stats(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
