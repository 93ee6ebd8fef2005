package model

// RepoMeta is the mutable repository metadata stored in meta.json.
type RepoMeta struct {
	Name       string `json:"name"`
	CreatedAt  string `json:"created_at"`
	IsPublic   bool   `json:"is_public"`
	IsFavorite bool   `json:"is_favorite"`
}

// DiffResult is the path-level difference between two snapshots.
// A path present in both trees with different blob ids is modified.
type DiffResult struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// RepoStats summarizes a repository for the stats endpoint.
type RepoStats struct {
	SnapshotCount int `json:"snapshot_count"`
	FileCount     int `json:"file_count"`
}
