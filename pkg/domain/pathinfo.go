package domain

import "time"

// PathInfo identifies one node of interest within a repository: a site
// directory or a leaf node, carrying the node's last-modified timestamp when
// the source document provided one.
//
// Invariants: Path is never empty and, once produced by the tree flattener,
// never contains a "[N]" bracket suffix. LastModified is present iff the
// source node carried a parseable mgnl:lastModified property.
type PathInfo struct {
	RepoType     RepoType
	Path         string
	LastModified *time.Time
}

// RepoConfig names one repository to back up and, optionally, the explicit
// list of sites within it. A nil Sites means "enumerate sites via the
// session client's Sites call"; a non-nil (possibly empty) Sites overrides
// enumeration entirely.
type RepoConfig struct {
	Type  RepoType
	Sites []string
}
