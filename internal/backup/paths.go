package backup

import (
	"path/filepath"
	"strings"
)

// DefaultForeignPrefix is the location prefix written by callers that do not know the host layout
const DefaultForeignPrefix = "/backups"

// PathResolver maps logical backup locations to filesystem directories.
//
// Locations already under a known root are returned unchanged. Locations in the foreign
// convention "<prefix>/<segment>/..." are rebuilt as "<root>/<segment>". Every other shape
// is returned verbatim and left to fail when the file is opened; ambiguous input is never
// rewritten.
type PathResolver struct {
	root          string
	foreignPrefix string
	knownRoots    []string
}

// NewPathResolver creates a resolver rooted at root
func NewPathResolver(root, foreignPrefix string, acceptedRoots ...string) *PathResolver {
	if foreignPrefix == "" {
		foreignPrefix = DefaultForeignPrefix
	}
	foreignPrefix = "/" + strings.Trim(strings.ReplaceAll(foreignPrefix, "\\", "/"), "/")

	known := []string{filepath.Clean(root)}
	for _, r := range acceptedRoots {
		if strings.TrimSpace(r) != "" {
			known = append(known, filepath.Clean(r))
		}
	}

	return &PathResolver{
		root:          filepath.Clean(root),
		foreignPrefix: foreignPrefix,
		knownRoots:    known,
	}
}

// Root returns the configured backup root
func (r *PathResolver) Root() string {
	return r.root
}

// Resolve returns the directory a location refers to
func (r *PathResolver) Resolve(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return r.root
	}

	if filepath.IsAbs(location) && r.underKnownRoot(location) {
		return location
	}

	normalized := strings.ReplaceAll(location, "\\", "/")
	if normalized == r.foreignPrefix || strings.HasPrefix(normalized, r.foreignPrefix+"/") {
		rest := strings.TrimPrefix(normalized, r.foreignPrefix)
		for _, segment := range strings.Split(rest, "/") {
			if segment == "" || segment == "." || segment == ".." {
				continue
			}
			return filepath.Join(r.root, segment)
		}
		return r.root
	}

	// unrecognized shapes pass through
	return location
}

// DumpPath returns the dump file path for a backup written to location
func (r *PathResolver) DumpPath(location, backupID string) string {
	return filepath.Join(r.Resolve(location), backupID+".sql")
}

func (r *PathResolver) underKnownRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range r.knownRoots {
		if clean == root || strings.HasPrefix(clean, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
