// Package roster loads the peer roster that seeds the router's
// /network directory (spec §4.6) from a YAML file.
package roster

import (
	"fmt"
	"os"

	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"

	"github.com/universa-net/ledgernode/router"
)

// entry mirrors one roster.yaml list item; Key is base58 so the file
// stays human-editable alongside the ports and addresses.
type entry struct {
	NodeID string `yaml:"node_id"`
	Port   int    `yaml:"port"`
	IP     string `yaml:"ip"`
	Key    string `yaml:"key"`
}

// Load reads a roster YAML file (a list of entries) into a
// router.Roster. A missing path is not an error: it yields an empty
// roster, useful for single-node deployments with no /network peers.
func Load(path string) (router.Roster, error) {
	if path == "" {
		return router.Roster{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return router.Roster{}, nil
		}
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}

	var entries []entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("roster: parse %s: %w", path, err)
	}

	out := make(router.Roster, len(entries))
	for _, e := range entries {
		key, err := base58.Decode(e.Key)
		if err != nil {
			return nil, fmt.Errorf("roster: node %s: bad key encoding: %w", e.NodeID, err)
		}
		out[e.NodeID] = router.NetworkEntry{Port: e.Port, IP: e.IP, Key: key}
	}
	return out, nil
}

// Save writes roster back to path in the same format Load reads,
// used by ledgerauthctl's roster subcommand to add or update an entry.
func Save(path string, r router.Roster) error {
	entries := make([]entry, 0, len(r))
	for id, e := range r {
		entries = append(entries, entry{
			NodeID: id,
			Port:   e.Port,
			IP:     e.IP,
			Key:    base58.Encode(e.Key),
		})
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("roster: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
