// internal/services/scoring_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exportready/backend/internal/models"
)

func judgmentSet(ingredient, specification, packaging int) models.JudgmentSet {
	return models.JudgmentSet{
		Ingredient:    models.DimensionJudgment{Dimension: models.DimensionIngredient, Score: ingredient},
		Specification: models.DimensionJudgment{Dimension: models.DimensionSpecification, Score: specification},
		Packaging:     models.DimensionJudgment{Dimension: models.DimensionPackaging, Score: packaging},
	}
}

func TestCalculateReadinessScore(t *testing.T) {
	tests := []struct {
		name                                string
		ingredient, specification, packaging int
		want                                int
	}{
		{"all perfect", 100, 100, 100, 100},
		{"all zero", 0, 0, 0, 0},
		{"weighted mix", 60, 90, 70, 72},
		{"ingredient dominates", 100, 0, 0, 40},
		{"specification weight", 0, 100, 0, 30},
		{"packaging weight", 0, 0, 100, 30},
		{"rounds half up", 85, 75, 70, 78},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateReadinessScore(judgmentSet(tt.ingredient, tt.specification, tt.packaging))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateReadinessScoreClampsCorruptInputs(t *testing.T) {
	assert.Equal(t, 100, CalculateReadinessScore(judgmentSet(500, 150, 120)))
	assert.Equal(t, 0, CalculateReadinessScore(judgmentSet(-10, -50, -1)))
}

func TestStatusGradeBands(t *testing.T) {
	assert.Equal(t, models.StatusGradeLow, StatusGradeFor(0))
	assert.Equal(t, models.StatusGradeLow, StatusGradeFor(59))
	assert.Equal(t, models.StatusGradeMedium, StatusGradeFor(60))
	assert.Equal(t, models.StatusGradeMedium, StatusGradeFor(79))
	assert.Equal(t, models.StatusGradeHigh, StatusGradeFor(80))
	assert.Equal(t, models.StatusGradeHigh, StatusGradeFor(100))
}
