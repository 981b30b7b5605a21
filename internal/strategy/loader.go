package strategy

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Roster is the on-disk strategy configuration file.
type Roster struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadRoster reads and validates a YAML roster file. Every entry must
// validate and name a known kind; a single bad entry fails the whole load
// so a typo cannot silently drop a strategy.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(r.Strategies))
	for i := range r.Strategies {
		c := &r.Strategies[i]
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("roster entry %d: %w", i, err)
		}
		switch c.Kind {
		case KindMACrossover, KindFixedPrice, KindTimeBreakout:
		default:
			return nil, fmt.Errorf("roster entry %d: unknown kind %q", i, c.Kind)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("roster entry %d: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	log.Printf("roster: loaded %d strategy configs from %s", len(r.Strategies), path)
	return &r, nil
}

// RegisterAll registers every roster entry with the manager.
func (r *Roster) RegisterAll(m *Manager) error {
	for _, cfg := range r.Strategies {
		if err := m.Register(cfg); err != nil {
			return fmt.Errorf("register %s: %w", cfg.Name, err)
		}
	}
	return nil
}
