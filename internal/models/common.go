// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the UUID in application code so the same models work
// on Postgres and on the sqlite driver used in tests.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
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

	return json.Unmarshal(bytes, j)
}

// Enums
type UserRole string

const (
	UserRoleUMKM  UserRole = "umkm"
	UserRoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// RuleCategory tags a regulation rule with the compliance dimension it
// applies to.
type RuleCategory string

const (
	RuleCategoryIngredientBan     RuleCategory = "ingredient_ban"
	RuleCategoryQualityStandard   RuleCategory = "quality_standard"
	RuleCategoryPackagingStandard RuleCategory = "packaging_standard"
)

// Dimension is one of the three compliance dimensions an analysis judges.
type Dimension string

const (
	DimensionIngredient    Dimension = "ingredient"
	DimensionSpecification Dimension = "specification"
	DimensionPackaging     Dimension = "packaging"
)

// Dimensions lists the three dimensions in their canonical output order.
var Dimensions = [3]Dimension{DimensionIngredient, DimensionSpecification, DimensionPackaging}

// RuleCategoryFor maps a dimension to the regulation category it consumes.
func RuleCategoryFor(d Dimension) RuleCategory {
	switch d {
	case DimensionIngredient:
		return RuleCategoryIngredientBan
	case DimensionSpecification:
		return RuleCategoryQualityStandard
	default:
		return RuleCategoryPackagingStandard
	}
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// SeverityRank orders severities for deterministic sorting (critical first).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	default:
		return 2
	}
}

type JudgmentStatus string

const (
	JudgmentStatusPass JudgmentStatus = "pass"
	JudgmentStatusFail JudgmentStatus = "fail"
)

type StatusGrade string

const (
	StatusGradeLow    StatusGrade = "low"
	StatusGradeMedium StatusGrade = "medium"
	StatusGradeHigh   StatusGrade = "high"
)
