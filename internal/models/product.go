// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product is catalog data owned by a business. Catalog CRUD is external to
// this service; analyses only read these rows.
type Product struct {
	BaseModel
	BusinessProfileID   uuid.UUID      `json:"business_profile_id" gorm:"type:uuid;not null;index"`
	NameLocal           string         `json:"name_local" gorm:"size:255;not null"`
	CategoryID          int            `json:"category_id" gorm:"index"`
	DescriptionLocal    string         `json:"description_local" gorm:"type:text"`
	MaterialComposition string         `json:"material_composition" gorm:"type:text"`
	Ingredients         pq.StringArray `json:"ingredients" gorm:"type:text[]"`
	ProductionTechnique string         `json:"production_technique" gorm:"size:50"`
	FinishingType       string         `json:"finishing_type" gorm:"size:50"`
	QualitySpecs        JSONB          `json:"quality_specs" gorm:"type:jsonb"`
	DurabilityClaim     string         `json:"durability_claim" gorm:"size:255"`
	PackagingType       string         `json:"packaging_type" gorm:"size:100"`
	DimensionsLWH       JSONB          `json:"dimensions_l_w_h" gorm:"type:jsonb"`
	WeightNet           float64        `json:"weight_net" gorm:"type:decimal(10,3)"`
	WeightGross         float64        `json:"weight_gross" gorm:"type:decimal(10,3)"`

	// Relationships
	BusinessProfile BusinessProfile    `json:"business_profile,omitempty" gorm:"foreignKey:BusinessProfileID"`
	Enrichment      *ProductEnrichment `json:"enrichment,omitempty" gorm:"foreignKey:ProductID"`
	ExportAnalyses  []ExportAnalysis   `json:"export_analyses,omitempty" gorm:"foreignKey:ProductID"`
}

// ProductEnrichment holds the AI-enriched trade attributes a product needs
// before it can be analyzed for export.
type ProductEnrichment struct {
	BaseModel
	ProductID           uuid.UUID      `json:"product_id" gorm:"type:uuid;uniqueIndex;not null"`
	HSCode              string         `json:"hs_code" gorm:"size:16"`
	ProductNameEN       string         `json:"product_name_en" gorm:"size:255"`
	DescriptionEN       string         `json:"description_en" gorm:"type:text"`
	MarketingHighlights pq.StringArray `json:"marketing_highlights" gorm:"type:text[]"`
	CertificationsHeld  pq.StringArray `json:"certifications_held" gorm:"type:text[]"`
}
