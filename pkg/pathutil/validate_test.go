package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anchor-vcs/anchor/pkg/errclass"
)

func TestValidateName(t *testing.T) {
	valid := []string{"demo", "my-repo", "a", "a.b", "a_b", "Repo123"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{
		"",
		"..",
		"../escape",
		"a/b",
		`a\b`,
		"a b",
		"name\x00null",
		"name\twith\tcontrol",
		"users",
		"refresh_tokens",
		".",
		"héllo",
	}
	for _, name := range invalid {
		err := ValidateName(name)
		assert.ErrorIs(t, err, errclass.ErrInvalid, "%q", name)
	}
}

func TestValidateRelPath(t *testing.T) {
	valid := []string{"a.txt", "dir/file.txt", "deep/nested/path/x"}
	for _, p := range valid {
		assert.NoError(t, ValidateRelPath(p), p)
	}

	invalid := []string{"", "/abs", `\abs`, "..", "../up", "dir/../../out"}
	for _, p := range invalid {
		assert.ErrorIs(t, ValidateRelPath(p), errclass.ErrInvalid, "%q", p)
	}
}

func FuzzValidateName(f *testing.F) {
	seeds := []string{
		"", "demo", "..", "../escape", "a/b", `a\b`,
		"name\x00null", "users", "héllo", "a.b-c_d",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, name string) {
		// Must never panic, and must be deterministic.
		err1 := ValidateName(name)
		err2 := ValidateName(name)
		if (err1 == nil) != (err2 == nil) {
			t.Errorf("inconsistent validation for %q: %v vs %v", name, err1, err2)
		}
	})
}

func FuzzValidateRelPath(f *testing.F) {
	seeds := []string{
		"", "a.txt", "dir/file", "/abs", "..", "../up",
		"dir/../../out", "a/./b", "a//b",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, p string) {
		if err := ValidateRelPath(p); err == nil {
			// Accepted paths must never clean to something that
			// escapes the root.
			if p == ".." || len(p) >= 3 && p[:3] == "../" {
				t.Errorf("accepted escaping path %q", p)
			}
		}
	})
}
