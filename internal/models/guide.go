// internal/models/guide.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// GuideSectionKeys lists the fixed ten sections of a regulation guide, in
// document order. Every generated or fallback guide carries exactly these.
var GuideSectionKeys = [10]string{
	"overview",
	"prohibited_items",
	"import_restrictions",
	"certifications",
	"labeling_requirements",
	"customs_procedures",
	"testing_inspection",
	"intellectual_property",
	"shipping_logistics",
	"timeline_costs",
}

// GuideSection is one section of the guide: a summary plus either key points
// or action items.
type GuideSection struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points,omitempty"`
	ActionItems []string `json:"action_items,omitempty"`
}

// RegulationGuide is the ten-section localized export-readiness document for
// one analysis. Fallback marks guides built from the deterministic template
// after generation failed.
type RegulationGuide struct {
	Language    string         `json:"language"`
	CountryCode string         `json:"country_code"`
	GeneratedAt time.Time      `json:"generated_at"`
	Fallback    bool           `json:"fallback,omitempty"`
	Sections    []GuideSection `json:"sections"`
}

// Complete reports whether the guide honors the ten-section contract.
func (g RegulationGuide) Complete() bool {
	if len(g.Sections) != len(GuideSectionKeys) {
		return false
	}
	for i, key := range GuideSectionKeys {
		if g.Sections[i].Key != key {
			return false
		}
	}
	return true
}

// GuideCache is the per-analysis guide cache slot, keyed by language and
// persisted as a JSONB document. Its lifetime is tied to the snapshot: it is
// cleared wholesale whenever the snapshot is replaced.
type GuideCache map[string]RegulationGuide

func (c GuideCache) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *GuideCache) Scan(value interface{}) error {
	return scanJSON(value, c)
}
