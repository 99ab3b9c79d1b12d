package cargo

import (
	"encoding/json"
	"fmt"
)

// metadata mirrors the subset of `cargo metadata --format-version 1` output
// used here.
type metadata struct {
	Packages         []*Package `json:"packages"`
	WorkspaceMembers []string   `json:"workspace_members"`
	WorkspaceRoot    string     `json:"workspace_root"`
	TargetDirectory  string     `json:"target_directory"`
	Resolve          *struct {
		Nodes []struct {
			ID           string   `json:"id"`
			Dependencies []string `json:"dependencies"`
			Features     []string `json:"features"`
		} `json:"nodes"`
	} `json:"resolve"`
}

// ParseMetadata decodes cargo metadata output into a BuildGraph without
// units. It also returns the resolved dependency ids per package.
func ParseMetadata(data []byte) (*BuildGraph, map[string][]string, error) {
	var md metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, nil, fmt.Errorf("decoding cargo metadata: %w", err)
	}

	members := make(map[string]bool, len(md.WorkspaceMembers))
	for _, id := range md.WorkspaceMembers {
		members[id] = true
	}

	g := &BuildGraph{
		WorkspaceRoot: md.WorkspaceRoot,
		TargetDir:     md.TargetDirectory,
		Packages:      make(map[string]*Package, len(md.Packages)),
	}
	for _, p := range md.Packages {
		p.Member = members[p.ID]
		g.Packages[p.ID] = p
	}

	deps := make(map[string][]string)
	if md.Resolve != nil {
		for _, n := range md.Resolve.Nodes {
			deps[n.ID] = n.Dependencies
		}
	}
	return g, deps, nil
}
