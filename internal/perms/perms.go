// Package perms loads the operator permission snapshot sent to the
// orchestrator on every resync.
package perms

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deyoyk/RankedBedwarsV2/internal/protocol"
)

// defaultSnapshot seeds a fresh permission file so operators have a template
// to edit.
var defaultSnapshot = Snapshot{
	"admin":     {},
	"moderator": {},
	"scorer":    {},
}

// Snapshot maps a permission group to its member names.
type Snapshot map[string][]string

// Load reads the permission file. A missing file is created with the default
// group skeleton first.
//
// Postcondition: Returns a non-nil Snapshot or an error.
func Load(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return nil, err
		}
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading permission file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("reading permission file: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parsing permission file %s: %w", path, err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// Envelope converts the snapshot to its wire message.
func (s Snapshot) Envelope() protocol.Permission {
	groups := make(map[string][]string, len(s))
	for group, names := range s {
		if names == nil {
			names = []string{}
		}
		groups[group] = names
	}
	return protocol.Permission{Groups: groups}
}

func writeDefault(path string) error {
	out, err := yaml.Marshal(defaultSnapshot)
	if err != nil {
		return fmt.Errorf("encoding default permission file: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("creating default permission file: %w", err)
	}
	return nil
}
