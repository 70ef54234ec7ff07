// internal/models/country.go
package models

// Country master data, ISO 3166-1 alpha-2 keyed.
type Country struct {
	CountryCode string `json:"country_code" gorm:"primaryKey;size:2"`
	CountryName string `json:"country_name" gorm:"size:100;not null"`
	Region      string `json:"region" gorm:"size:50;index"`

	// Relationships
	Regulations []RegulationRule `json:"regulations,omitempty" gorm:"foreignKey:CountryCode;references:CountryCode"`
}

// RegulationRule is one entry of the read-only regulation knowledge store:
// a rule category plus the forbidden values / required specs it enforces.
type RegulationRule struct {
	BaseModel
	CountryCode       string       `json:"country_code" gorm:"size:2;not null;index:idx_rules_country_category"`
	RuleCategory      RuleCategory `json:"rule_category" gorm:"type:varchar(30);not null;index:idx_rules_country_category"`
	ForbiddenKeywords string       `json:"forbidden_keywords" gorm:"type:text"`
	RequiredSpecs     string       `json:"required_specs" gorm:"type:text"`
	Description       string       `json:"description" gorm:"type:text"`

	Country Country `json:"-" gorm:"foreignKey:CountryCode;references:CountryCode"`
}
