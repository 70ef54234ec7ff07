// internal/models/snapshot.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"reflect"
	"sort"
	"time"
)

// SnapshotSchemaVersion tags persisted snapshots so analyses written before a
// format change degrade gracefully instead of failing to deserialize.
const SnapshotSchemaVersion = 1

// EnrichmentSnapshot freezes the enrichment attributes that feed analysis.
type EnrichmentSnapshot struct {
	HSCode              string   `json:"hs_code"`
	ProductNameEN       string   `json:"product_name_en"`
	DescriptionEN       string   `json:"description_en"`
	MarketingHighlights []string `json:"marketing_highlights"`
	CertificationsHeld  []string `json:"certifications_held"`
}

// ProductSnapshot is an immutable copy of a product's export-relevant
// attributes at analysis time. It is owned by exactly one ExportAnalysis and
// is replaced wholesale on reanalysis, never mutated in place.
//
// A zero SchemaVersion marks an analysis that predates snapshots (or an
// unreadable document); such analyses report no product change.
type ProductSnapshot struct {
	SchemaVersion       int                    `json:"schema_version"`
	SnapshotCreatedAt   time.Time              `json:"snapshot_created_at"`
	NameLocal           string                 `json:"name_local"`
	CategoryID          int                    `json:"category_id"`
	DescriptionLocal    string                 `json:"description_local"`
	MaterialComposition string                 `json:"material_composition"`
	Ingredients         []string               `json:"ingredients"`
	ProductionTechnique string                 `json:"production_technique"`
	FinishingType       string                 `json:"finishing_type"`
	QualitySpecs        map[string]interface{} `json:"quality_specs"`
	DurabilityClaim     string                 `json:"durability_claim"`
	PackagingType       string                 `json:"packaging_type"`
	DimensionsLWH       map[string]interface{} `json:"dimensions_l_w_h"`
	WeightNet           float64                `json:"weight_net"`
	WeightGross         float64                `json:"weight_gross"`
	Enrichment          *EnrichmentSnapshot    `json:"enrichment"`
}

func (s ProductSnapshot) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *ProductSnapshot) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// Valid reports whether the snapshot carries a schema version this code
// understands.
func (s ProductSnapshot) Valid() bool {
	return s.SchemaVersion == SnapshotSchemaVersion
}

// CaptureProductSnapshot deep-copies the product's export-relevant attributes
// into a new snapshot stamped with the capture time. Pure; no side effects.
func CaptureProductSnapshot(product *Product) ProductSnapshot {
	snapshot := ProductSnapshot{
		SchemaVersion:       SnapshotSchemaVersion,
		SnapshotCreatedAt:   time.Now().UTC(),
		NameLocal:           product.NameLocal,
		CategoryID:          product.CategoryID,
		DescriptionLocal:    product.DescriptionLocal,
		MaterialComposition: product.MaterialComposition,
		Ingredients:         copyStrings(product.Ingredients),
		ProductionTechnique: product.ProductionTechnique,
		FinishingType:       product.FinishingType,
		QualitySpecs:        copyMap(product.QualitySpecs),
		DurabilityClaim:     product.DurabilityClaim,
		PackagingType:       product.PackagingType,
		DimensionsLWH:       copyMap(product.DimensionsLWH),
		WeightNet:           product.WeightNet,
		WeightGross:         product.WeightGross,
	}

	if product.Enrichment != nil {
		snapshot.Enrichment = &EnrichmentSnapshot{
			HSCode:              product.Enrichment.HSCode,
			ProductNameEN:       product.Enrichment.ProductNameEN,
			DescriptionEN:       product.Enrichment.DescriptionEN,
			MarketingHighlights: copyStrings(product.Enrichment.MarketingHighlights),
			CertificationsHeld:  copyStrings(product.Enrichment.CertificationsHeld),
		}
	}

	return snapshot
}

// HasChanged compares the snapshot field-by-field against the live product.
// List-valued attributes compare content-based, order-insensitive, so
// reordering an ingredient list is not a change. Legacy analyses without a
// readable snapshot always report false.
func (s ProductSnapshot) HasChanged(product *Product) bool {
	if !s.Valid() {
		return false
	}

	if s.NameLocal != product.NameLocal ||
		s.CategoryID != product.CategoryID ||
		s.DescriptionLocal != product.DescriptionLocal ||
		s.MaterialComposition != product.MaterialComposition ||
		s.ProductionTechnique != product.ProductionTechnique ||
		s.FinishingType != product.FinishingType ||
		s.DurabilityClaim != product.DurabilityClaim ||
		s.PackagingType != product.PackagingType ||
		s.WeightNet != product.WeightNet ||
		s.WeightGross != product.WeightGross {
		return true
	}

	if !sameContents(s.Ingredients, product.Ingredients) {
		return true
	}
	if !sameSpecs(s.QualitySpecs, product.QualitySpecs) {
		return true
	}
	if !sameSpecs(s.DimensionsLWH, product.DimensionsLWH) {
		return true
	}

	return s.enrichmentChanged(product.Enrichment)
}

func (s ProductSnapshot) enrichmentChanged(enrichment *ProductEnrichment) bool {
	if s.Enrichment == nil {
		return enrichment != nil
	}
	if enrichment == nil {
		return true
	}

	if s.Enrichment.HSCode != enrichment.HSCode ||
		s.Enrichment.ProductNameEN != enrichment.ProductNameEN ||
		s.Enrichment.DescriptionEN != enrichment.DescriptionEN {
		return true
	}

	return !sameContents(s.Enrichment.MarketingHighlights, enrichment.MarketingHighlights) ||
		!sameContents(s.Enrichment.CertificationsHeld, enrichment.CertificationsHeld)
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// sameContents compares two string lists as multisets.
func sameContents(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// sameSpecs compares JSON maps through a marshal round-trip so numeric types
// coming from the DB (float64) and from live structs compare equal.
func sameSpecs(a, b map[string]interface{}) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(normalizeJSON(a), normalizeJSON(b))
}

func normalizeJSON(m map[string]interface{}) map[string]interface{} {
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	out := make(map[string]interface{}, len(m))
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}
