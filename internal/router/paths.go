package router

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deathguppie/kathoros/internal/core"
)

// pathError is a path-gate failure with the reason code the router
// reports. Message wording stays stable so callers can act on it.
type pathError struct {
	reason core.ReasonCode
	msg    string
}

func (e *pathError) Error() string { return e.msg }

// containsPath reports whether p is root or a descendant of root,
// compared by path segments via filepath.Rel. A raw string-prefix
// check would accept sibling directories like /data/projA-evil for
// root /data/projA; this does not.
func containsPath(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveSafePath validates one path argument against the working root
// and the tool's allowed sub-roots.
//
// Order: reject absolute arguments, join under the working root, clean,
// follow symlinks where the target exists, then confirm containment in
// the root and in at least one allowed sub-root.
func resolveSafePath(raw, workingRoot string, allowedRoots []string) (string, error) {
	if raw == "" {
		return "", &pathError{core.ReasonPathTraversal, "empty path argument"}
	}
	if filepath.IsAbs(raw) {
		return "", &pathError{core.ReasonPathAbsolute, fmt.Sprintf("absolute path not allowed: %q", raw)}
	}

	resolved := filepath.Clean(filepath.Join(workingRoot, raw))
	if !containsPath(workingRoot, resolved) {
		return "", &pathError{core.ReasonPathTraversal, fmt.Sprintf("path escapes working root: %q", raw)}
	}

	// Follow symlinks on the existing portion so a link inside the root
	// cannot smuggle access outside it.
	if target, err := filepath.EvalSymlinks(resolved); err == nil {
		if !containsPath(workingRoot, target) {
			return "", &pathError{core.ReasonPathTraversal, fmt.Sprintf("symlink escapes working root: %q", raw)}
		}
		resolved = target
	} else if !os.IsNotExist(err) {
		return "", &pathError{core.ReasonPathTraversal, fmt.Sprintf("cannot resolve path: %q", raw)}
	}

	if len(allowedRoots) > 0 {
		inAllowed := false
		for _, sub := range allowedRoots {
			if containsPath(filepath.Clean(filepath.Join(workingRoot, sub)), resolved) {
				inAllowed = true
				break
			}
		}
		if !inAllowed {
			return "", &pathError{core.ReasonPathTraversal, fmt.Sprintf("path outside allowed roots: %q", raw)}
		}
	}

	return resolved, nil
}

// extractPaths pulls path strings out of a declared path field value.
// Values may be a string, a list of strings, or a list of objects with
// a "path" key.
func extractPaths(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []any:
		var paths []string
		for _, item := range v {
			switch entry := item.(type) {
			case string:
				paths = append(paths, entry)
			case map[string]any:
				if p, ok := entry["path"].(string); ok {
					paths = append(paths, p)
				}
			}
		}
		return paths
	}
	return nil
}

// collectPaths gathers all raw path strings from the declared path
// fields of an argument payload.
func collectPaths(args map[string]any, pathFields []string) []string {
	var paths []string
	for _, field := range pathFields {
		if value, ok := args[field]; ok {
			paths = append(paths, extractPaths(value)...)
		}
	}
	return paths
}
