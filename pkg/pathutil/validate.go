// Package pathutil provides name and path validation for Anchor.
package pathutil

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/anchor-vcs/anchor/pkg/errclass"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Names a repository or user must never take; they collide with fixed
// entries under the data root.
var reservedNames = map[string]bool{
	"users":          true,
	"refresh_tokens": true,
	".":              true,
	"..":             true,
}

// ValidateName checks a repository, user, or branch name for safety.
func ValidateName(name string) error {
	if name == "" {
		return errclass.ErrInvalid.WithMessage("name must not be empty")
	}

	// NFC normalize before matching
	name = norm.NFC.String(name)

	if strings.Contains(name, "..") {
		return errclass.ErrInvalid.WithMessagef("name must not contain '..': %s", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return errclass.ErrInvalid.WithMessagef("name must not contain separators: %s", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrInvalid.WithMessagef("name must not contain control characters: %q", name)
		}
	}
	if !nameRegex.MatchString(name) {
		return errclass.ErrInvalid.WithMessagef("name must match [a-zA-Z0-9._-]+: %s", name)
	}
	if reservedNames[name] {
		return errclass.ErrInvalid.WithMessagef("name is reserved: %s", name)
	}
	return nil
}

// ValidateRelPath checks a tree entry path: relative, slash-separated,
// no traversal. Used when extracting archives and serving file requests.
func ValidateRelPath(p string) error {
	if p == "" {
		return errclass.ErrInvalid.WithMessage("path must not be empty")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return errclass.ErrInvalid.WithMessagef("path must be relative: %s", p)
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errclass.ErrInvalid.WithMessagef("path escapes root: %s", p)
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return errclass.ErrInvalid.WithMessagef("path escapes root: %s", p)
		}
	}
	return nil
}
