package domain

import (
	"encoding/json"
	"fmt"
)

// ParseRepoConfig parses a REPOS document: a JSON array whose entries are
// either a bare repo-type string (sites are enumerated at backup time via
// the session client's Sites call) or a single-key object mapping a
// repo-type string to an explicit array of site names (enumeration is
// skipped and the given list is used verbatim).
//
//	["dam","website"]
//	[{"dam": ["dam1","dam2"]}, {"website": ["website1"]}]
//	[{"dam": ["dam1","dam2"]}, "website"]
func ParseRepoConfig(data []byte) ([]RepoConfig, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid repo list: %w", err)
	}

	configs := make([]RepoConfig, 0, len(raw))
	for _, entry := range raw {
		var name string
		if err := json.Unmarshal(entry, &name); err == nil {
			rt, err := ParseRepoType(name)
			if err != nil {
				return nil, err
			}
			configs = append(configs, RepoConfig{Type: rt})
			continue
		}

		var obj map[string][]string
		if err := json.Unmarshal(entry, &obj); err != nil {
			return nil, fmt.Errorf("invalid repo list entry type")
		}
		if len(obj) != 1 {
			return nil, fmt.Errorf("malformed repo site entry")
		}
		for name, sites := range obj {
			rt, err := ParseRepoType(name)
			if err != nil {
				return nil, err
			}
			if sites == nil {
				sites = []string{}
			}
			configs = append(configs, RepoConfig{Type: rt, Sites: sites})
		}
	}
	return configs, nil
}
