// internal/models/analysis.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ComplianceIssue is a single flagged discrepancy between an observed product
// attribute and what a destination country requires.
type ComplianceIssue struct {
	Dimension     Dimension `json:"dimension"`
	RuleKey       string    `json:"rule_key"`
	YourValue     string    `json:"your_value"`
	RequiredValue string    `json:"required_value"`
	Description   string    `json:"description"`
	Severity      Severity  `json:"severity"`
}

// DimensionJudgment is the structured verdict for one compliance dimension.
// Fallback marks judgments substituted after the judgment service failed.
type DimensionJudgment struct {
	Dimension Dimension         `json:"dimension"`
	Status    JudgmentStatus    `json:"status"`
	Score     int               `json:"score"`
	Issues    []ComplianceIssue `json:"issues"`
	Fallback  bool              `json:"fallback,omitempty"`
}

// JudgmentSet holds the three dimension judgments in canonical order,
// persisted as a single JSONB document.
type JudgmentSet struct {
	Ingredient    DimensionJudgment `json:"ingredient"`
	Specification DimensionJudgment `json:"specification"`
	Packaging     DimensionJudgment `json:"packaging"`
}

func (s JudgmentSet) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *JudgmentSet) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// All returns the judgments in canonical order: ingredient, specification,
// packaging.
func (s JudgmentSet) All() [3]DimensionJudgment {
	return [3]DimensionJudgment{s.Ingredient, s.Specification, s.Packaging}
}

// IssueList is the pooled issue list, persisted as a JSONB array.
type IssueList []ComplianceIssue

func (l IssueList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]ComplianceIssue{})
	}
	return json.Marshal(l)
}

func (l *IssueList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// ExportAnalysis is the aggregate tying one product to one destination
// country: the frozen snapshot, the three judgments, the derived score and
// grade, the recommendation text, and the lazily filled guide cache.
type ExportAnalysis struct {
	BaseModel
	ProductID          uuid.UUID       `json:"product_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_analyses_product_country"`
	TargetCountryCode  string          `json:"target_country_code" gorm:"size:2;not null;index;uniqueIndex:idx_analyses_product_country"`
	ReadinessScore     int             `json:"readiness_score" gorm:"default:0;index"`
	StatusGrade        StatusGrade     `json:"status_grade" gorm:"type:varchar(10);default:'medium'"`
	Judgments          JudgmentSet     `json:"judgments" gorm:"type:jsonb"`
	ComplianceIssues   IssueList       `json:"compliance_issues" gorm:"type:jsonb"`
	Recommendations    string          `json:"recommendations" gorm:"type:text"`
	ProductSnapshot    ProductSnapshot `json:"product_snapshot" gorm:"type:jsonb"`
	RegulationGuides   GuideCache      `json:"-" gorm:"type:jsonb;column:regulation_guide_cache"`
	AnalyzedAt         time.Time       `json:"analyzed_at"`

	// Relationships
	Product       Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	TargetCountry Country `json:"target_country,omitempty" gorm:"foreignKey:TargetCountryCode;references:CountryCode"`
}

func (ExportAnalysis) TableName() string {
	return "export_analyses"
}

// SnapshotProductName returns the display name frozen in the snapshot,
// preferring the enriched English name.
func (a *ExportAnalysis) SnapshotProductName() string {
	if !a.ProductSnapshot.Valid() {
		return a.Product.NameLocal
	}
	if a.ProductSnapshot.Enrichment != nil && a.ProductSnapshot.Enrichment.ProductNameEN != "" {
		return a.ProductSnapshot.Enrichment.ProductNameEN
	}
	return a.ProductSnapshot.NameLocal
}

func scanJSON(value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, dst)
}
