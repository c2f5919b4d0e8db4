package model

import "strings"

// Tier is the priority class of a source.
type Tier int

const (
	// TierOfficial covers government agencies, exchanges and price indexes.
	TierOfficial Tier = 1
	// TierSectoral covers industry associations and sector bodies.
	TierSectoral Tier = 2
	// TierMedia covers news portals and syndicated feeds.
	TierMedia Tier = 3
)

// ExtractionMode selects how the browser strategy reads a value off a page.
type ExtractionMode string

const (
	// ModeSingle reads the text of one CSS-selected cell.
	ModeSingle ExtractionMode = "single"
	// ModeTableScan finds the table containing TableMatch, then the row
	// containing RowMatch, and reads ColumnIndex of that row.
	ModeTableScan ExtractionMode = "table_scan"
	// ModeManual returns a caller-supplied literal without touching the network.
	ModeManual ExtractionMode = "manual"
)

// Source is one configured origin of market data. Loaded once per run from
// the catalog and immutable afterwards.
type Source struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Tier  Tier   `yaml:"tier" json:"tier"`
	URL   string `yaml:"url" json:"url"`
	Theme string `yaml:"theme" json:"theme"`

	// Acquisition flags, evaluated by the strategy factory in precedence order.
	IsFeed          bool `yaml:"is_feed,omitempty" json:"is_feed,omitempty"`
	RequiresBrowser bool `yaml:"requires_browser,omitempty" json:"requires_browser,omitempty"`
	IsDocument      bool `yaml:"is_document,omitempty" json:"is_document,omitempty"`

	// Indicator extraction settings (tier 1-2 price sources).
	AssetID        string         `yaml:"asset_id,omitempty" json:"asset_id,omitempty"`
	SourceUnit     string         `yaml:"source_unit,omitempty" json:"source_unit,omitempty"`
	TargetUnit     string         `yaml:"target_unit,omitempty" json:"target_unit,omitempty"`
	ExtractionMode ExtractionMode `yaml:"extraction_mode,omitempty" json:"extraction_mode,omitempty"`
	Selector       string         `yaml:"selector,omitempty" json:"selector,omitempty"`
	TableMatch     string         `yaml:"table_match,omitempty" json:"table_match,omitempty"`
	RowMatch       string         `yaml:"row_match,omitempty" json:"row_match,omitempty"`
	ColumnIndex    int            `yaml:"column_index,omitempty" json:"column_index,omitempty"`
	ManualValue    string         `yaml:"manual_value,omitempty" json:"manual_value,omitempty"`
}

// CanonicalTheme returns the uppercased theme tag, defaulting by tier. The
// dashboard groups cards by this value, so it must never be empty.
func (s Source) CanonicalTheme() string {
	theme := strings.TrimSpace(s.Theme)
	if theme == "" {
		if s.Tier == TierMedia {
			theme = "ECONOMIA"
		} else {
			theme = "GERAL"
		}
	}
	return strings.ToUpper(theme)
}

// EffectiveTier normalizes unknown tiers to media, matching how the
// orchestrator partitions sources that predate the tier field.
func (s Source) EffectiveTier() Tier {
	switch s.Tier {
	case TierOfficial, TierSectoral:
		return s.Tier
	default:
		return TierMedia
	}
}
