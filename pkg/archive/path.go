// Package archive derives the on-disk directory and file name for a given
// path record. Both functions are pure: no I/O, no global state.
package archive

import (
	"net/url"
	"strings"

	"github.com/txstate-etc/pagers/pkg/domain"
)

// site returns the first "/"-delimited segment of path, or "" if path has
// no segment beyond the leading slash.
func site(path string) string {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Path returns the archive directory for a path record:
// "{dir}/{repo}/{site}/{ext}".
func Path(dir, ext string, p domain.PathInfo) string {
	return dir + "/" + p.RepoType.String() + "/" + site(p.Path) + "/" + ext
}

// Filename returns the percent-encoded archive file name for a path record:
// percent_encode("{repo}{path}") + ".xml". The full qualified path is
// encoded as a single path segment, so "/" becomes "%2F" and spaces become
// "%20", producing a filesystem-safe leaf name with no unencoded slash.
func Filename(p domain.PathInfo) string {
	return url.PathEscape(p.RepoType.String()+p.Path) + ".xml"
}
