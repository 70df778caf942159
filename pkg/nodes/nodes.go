// Package nodes flattens a JCR-style JSON node document into the ordered
// list of leaf paths the rest of the pipeline backs up.
package nodes

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/txstate-etc/pagers/pkg/domain"
)

const lastModifiedProperty = "mgnl:lastModified"

// node mirrors one element of the server's nested JSON tree document. It is
// never surfaced outside this package.
type node struct {
	Path       string     `json:"path"`
	Properties []property `json:"properties"`
	Nodes      []node     `json:"nodes"`
	NodeType   string     `json:"type"`
}

type property struct {
	Name   string            `json:"name"`
	Values []json.RawMessage `json:"values"`
}

// BuildPaths parses a single JSON node document and returns the flattened
// leaf list, or nil when the list would be empty.
//
// A node is emitted iff its type matches repoType's leaf node type, or
// includeFolders is set and its type is the folder sentinel. Any subtree
// rooted at a path ending in "]" (an indexed duplicate sibling) is pruned
// entirely. Recursion is depth-first and preserves document order.
func BuildPaths(r io.Reader, repoType domain.RepoType, includeFolders bool) ([]domain.PathInfo, error) {
	var root node
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, err
	}
	infos := root.flatten(repoType, includeFolders)
	if len(infos) == 0 {
		return nil, nil
	}
	return infos, nil
}

// ReducePaths returns the nodes at exactly the given depth below the root
// document, each carrying the maximum last-modified timestamp of itself and
// all of its descendants. Depth 0 is the root node itself. The default
// coordinator wiring does not call this; it exists for callers that need a
// coarser, depth-bounded view of the tree.
func ReducePaths(r io.Reader, repoType domain.RepoType, level int) ([]domain.PathInfo, error) {
	var root node
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, err
	}
	return root.reduceAt(repoType, level), nil
}

func (n node) flatten(repoType domain.RepoType, includeFolders bool) []domain.PathInfo {
	if strings.HasSuffix(n.Path, "]") {
		return nil
	}

	var infos []domain.PathInfo
	if info, ok := n.info(repoType, includeFolders); ok {
		infos = append(infos, info)
	}
	for _, child := range n.Nodes {
		infos = append(infos, child.flatten(repoType, includeFolders)...)
	}
	return infos
}

func (n node) info(repoType domain.RepoType, includeFolders bool) (domain.PathInfo, bool) {
	isLeaf := n.NodeType == repoType.LeafNodeType()
	isFolder := includeFolders && n.NodeType == domain.FolderNodeType
	if !isLeaf && !isFolder {
		return domain.PathInfo{}, false
	}
	return domain.PathInfo{
		RepoType:     repoType,
		Path:         n.Path,
		LastModified: n.lastModified(),
	}, true
}

func (n node) lastModified() *time.Time {
	for _, p := range n.Properties {
		if p.Name != lastModifiedProperty || len(p.Values) == 0 {
			continue
		}
		var last string
		if err := json.Unmarshal(p.Values[len(p.Values)-1], &last); err != nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, last)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}

// maxLastModified returns the latest of this node's own timestamp and all
// descendants', or nil if none carry one.
func (n node) maxLastModified() *time.Time {
	max := n.lastModified()
	for _, child := range n.Nodes {
		if strings.HasSuffix(child.Path, "]") {
			continue
		}
		if cm := child.maxLastModified(); cm != nil && (max == nil || cm.After(*max)) {
			max = cm
		}
	}
	return max
}

func (n node) reduceAt(repoType domain.RepoType, level int) []domain.PathInfo {
	if strings.HasSuffix(n.Path, "]") {
		return nil
	}
	if level == 0 {
		return []domain.PathInfo{{RepoType: repoType, Path: n.Path, LastModified: n.maxLastModified()}}
	}
	var infos []domain.PathInfo
	for _, child := range n.Nodes {
		infos = append(infos, child.reduceAt(repoType, level-1)...)
	}
	return infos
}
