// Package domain holds the value types shared by the tree flattener, the
// session client, and the worker/coordinator pipeline.
package domain

import "fmt"

// FolderNodeType is the node type tag shared by every repository's
// intermediate directory nodes. It is never a RepoType's own leaf type.
const FolderNodeType = "mgnl:folder"

// RepoType is a closed enumeration of the repository kinds known to the
// source content-management server. Each member carries its lowercase wire
// form and the node-type tag that identifies a "leaf" node within it.
type RepoType int

const (
	Dam RepoType = iota
	Website
	Config
	Gatoapps
	Resources
	Usergroups
	Userroles
	Users
)

type repoTypeInfo struct {
	name     string
	leafType string
}

var repoTypes = [...]repoTypeInfo{
	Dam:        {"dam", "mgnl:asset"},
	Website:    {"website", "mgnl:page"},
	Config:     {"config", "mgnl:content"},
	Gatoapps:   {"gatoapps", "mgnl:content"},
	Resources:  {"resources", "mgnl:content"},
	Usergroups: {"usergroups", "mgnl:group"},
	Userroles:  {"userroles", "mgnl:role"},
	Users:      {"users", "mgnl:user"},
}

var repoTypesByName = func() map[string]RepoType {
	m := make(map[string]RepoType, len(repoTypes))
	for rt, info := range repoTypes {
		m[info.name] = RepoType(rt)
	}
	return m
}()

// ParseRepoType parses the lowercase wire form of a RepoType.
func ParseRepoType(s string) (RepoType, error) {
	rt, ok := repoTypesByName[s]
	if !ok {
		return 0, fmt.Errorf("invalid value")
	}
	return rt, nil
}

// String renders the RepoType in its lowercase wire form.
func (r RepoType) String() string {
	if int(r) < 0 || int(r) >= len(repoTypes) {
		return ""
	}
	return repoTypes[r].name
}

// LeafNodeType returns the node-type tag that identifies a leaf node within
// this repository.
func (r RepoType) LeafNodeType() string {
	if int(r) < 0 || int(r) >= len(repoTypes) {
		return ""
	}
	return repoTypes[r].leafType
}
