// Package catalog loads the source list consumed by the orchestrator. The
// catalog is read once per run and treated as immutable afterwards.
package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/anivertis/market-pipeline/internal/model"
)

// File is the on-disk shape of sources.yaml.
type File struct {
	Sources []model.Source `yaml:"sources"`
}

// Load reads and validates the source catalog at path.
func Load(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}

	seen := make(map[string]bool, len(f.Sources))
	for _, s := range f.Sources {
		if s.ID == "" {
			return nil, eris.Errorf("catalog: source %q has no id", s.Name)
		}
		if seen[s.ID] {
			return nil, eris.Errorf("catalog: duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}

	return f.Sources, nil
}

// PartitionByTier splits sources into official, sectoral and media groups.
// Sources with an unknown tier land in media, which runs last.
func PartitionByTier(sources []model.Source) (tier1, tier2, tier3 []model.Source) {
	for _, s := range sources {
		switch s.EffectiveTier() {
		case model.TierOfficial:
			tier1 = append(tier1, s)
		case model.TierSectoral:
			tier2 = append(tier2, s)
		default:
			tier3 = append(tier3, s)
		}
	}
	return tier1, tier2, tier3
}
