// Package model defines the shared object and record types for Anchor.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// BlobID is the SHA-256 of a blob's bytes, lowercase hex.
type BlobID string

// TreeID is the SHA-256 of a tree's canonical JSON encoding, lowercase hex.
type TreeID string

// SnapshotID is a commit identifier of the form "s_<decimal>".
type SnapshotID string

// ShortID returns the first 7 characters for display.
func (id SnapshotID) ShortID() string {
	s := string(id)
	if len(s) >= 7 {
		return s[:7]
	}
	return s
}

func (id SnapshotID) String() string { return string(id) }

// TreeEntry is a single entry in a tree object. The only supported type
// is "blob"; directories are implied by path separators in the entry keys.
type TreeEntry struct {
	ID   BlobID `json:"id"`
	Type string `json:"type"`
}

// EntryTypeBlob is the only entry type in the v1 object format.
const EntryTypeBlob = "blob"

// Tree is a flat mapping from slash-separated relative path to entry.
// Its identity is the SHA-256 of its canonical JSON encoding.
type Tree struct {
	Entries map[string]TreeEntry `json:"entries"`
}

// NewTree returns an empty tree with a non-nil entry map.
func NewTree() *Tree {
	return &Tree{Entries: make(map[string]TreeEntry)}
}

// Snapshot is the commit object: a root tree plus lineage and metadata.
// Parent is nil for the first snapshot of a repository.
type Snapshot struct {
	SnapshotID SnapshotID  `json:"snapshot_id"`
	RootTree   TreeID      `json:"root_tree"`
	Parent     *SnapshotID `json:"parent"`
	Message    string      `json:"message"`
	Timestamp  string      `json:"timestamp"`
}

// ParentID returns the parent id or "" for a root snapshot.
func (s *Snapshot) ParentID() SnapshotID {
	if s.Parent == nil {
		return ""
	}
	return *s.Parent
}

// ComputeBlobID hashes blob bytes into their content address.
func ComputeBlobID(data []byte) BlobID {
	sum := sha256.Sum256(data)
	return BlobID(hex.EncodeToString(sum[:]))
}

// ComputeSnapshotID derives a snapshot id from the root tree id and the
// parent snapshot id ("" when there is no parent). The id is the first
// 8 hex nibbles of sha256(treeID+parent) read as an integer, in decimal,
// prefixed with "s_". The client computes ids with this exact function so
// that offline commits match the ids the server assigns on push.
func ComputeSnapshotID(treeID TreeID, parent SnapshotID) SnapshotID {
	sum := sha256.Sum256([]byte(string(treeID) + string(parent)))
	prefix := hex.EncodeToString(sum[:])[:8]
	n, _ := strconv.ParseUint(prefix, 16, 64)
	return SnapshotID("s_" + strconv.FormatUint(n, 10))
}

// Timestamp format used in snapshot objects.
const TimestampLayout = "2006-01-02T15:04:05Z"

// NowTimestamp returns the current UTC time in the snapshot object format.
func NowTimestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}
