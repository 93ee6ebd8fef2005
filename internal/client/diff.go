package client

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/anchor-vcs/anchor/pkg/model"
)

// DiffWorktree renders a unified diff of the working tree against the
// index, one hunk set per changed path.
func (r *Replica) DiffWorktree() (string, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return "", err
	}
	st, err := r.WorkStatus()
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, rel := range st.Modified {
		old, err := r.Store.GetBlob(idx[rel])
		if err != nil {
			return "", err
		}
		cur, err := os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", rel, err)
		}
		if err := writeUnified(&out, rel, old, cur); err != nil {
			return "", err
		}
	}
	for _, rel := range st.Deleted {
		old, err := r.Store.GetBlob(idx[rel])
		if err != nil {
			return "", err
		}
		if err := writeUnified(&out, rel, old, nil); err != nil {
			return "", err
		}
	}
	return out.String(), nil
}

// DiffStaged renders a unified diff of the index against HEAD's tree.
func (r *Replica) DiffStaged() (string, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return "", err
	}
	headTree := model.NewTree()
	head, err := r.ResolveHEAD()
	if err != nil {
		return "", err
	}
	if head != "" {
		snap, err := r.Store.GetSnapshot(head)
		if err != nil {
			return "", err
		}
		headTree, err = r.Store.GetTree(snap.RootTree)
		if err != nil {
			return "", err
		}
	}

	paths := make(map[string]bool)
	for rel := range idx {
		paths[rel] = true
	}
	for rel := range headTree.Entries {
		paths[rel] = true
	}
	sorted := make([]string, 0, len(paths))
	for rel := range paths {
		sorted = append(sorted, rel)
	}
	sort.Strings(sorted)

	var out strings.Builder
	for _, rel := range sorted {
		var old, cur []byte
		if entry, ok := headTree.Entries[rel]; ok {
			old, err = r.Store.GetBlob(entry.ID)
			if err != nil {
				return "", err
			}
		}
		if blobID, ok := idx[rel]; ok {
			cur, err = r.Store.GetBlob(blobID)
			if err != nil {
				return "", err
			}
		}
		if string(old) == string(cur) {
			continue
		}
		if err := writeUnified(&out, rel, old, cur); err != nil {
			return "", err
		}
	}
	return out.String(), nil
}

func writeUnified(out *strings.Builder, rel string, old, cur []byte) error {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(cur)),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("diff %s: %w", rel, err)
	}
	out.WriteString(text)
	return nil
}
