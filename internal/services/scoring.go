// internal/services/scoring.go
package services

import (
	"math"

	"github.com/exportready/backend/internal/models"
)

// Dimension weights for the overall readiness score. Ingredient compliance
// weighs heaviest because banned-substance findings are the most common hard
// blocker for small-producer exports.
const (
	weightIngredient    = 0.40
	weightSpecification = 0.30
	weightPackaging     = 0.30
)

// CalculateReadinessScore folds the three dimension scores into a single
// 0-100 readiness score. Inputs are clamped before weighting so a corrupt
// stored judgment can never push the aggregate out of range.
func CalculateReadinessScore(judgments models.JudgmentSet) int {
	weighted := weightIngredient*float64(clampScore(judgments.Ingredient.Score)) +
		weightSpecification*float64(clampScore(judgments.Specification.Score)) +
		weightPackaging*float64(clampScore(judgments.Packaging.Score))
	return int(math.Round(weighted))
}

// StatusGradeFor maps a readiness score to its grade band.
func StatusGradeFor(score int) models.StatusGrade {
	switch {
	case score >= 80:
		return models.StatusGradeHigh
	case score >= 60:
		return models.StatusGradeMedium
	default:
		return models.StatusGradeLow
	}
}
