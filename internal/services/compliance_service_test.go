// internal/services/compliance_service_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exportready/backend/internal/models"
)

// stubJudgmentClient returns configured judgments per dimension and records
// the requests it saw.
type stubJudgmentClient struct {
	mu       sync.Mutex
	scores   map[models.Dimension]int
	issues   map[models.Dimension][]models.ComplianceIssue
	failures map[models.Dimension]error
	delays   map[models.Dimension]time.Duration
	requests []JudgmentRequest
}

func (s *stubJudgmentClient) Evaluate(ctx context.Context, req JudgmentRequest) (*models.DimensionJudgment, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if delay, ok := s.delays[req.Dimension]; ok {
		time.Sleep(delay)
	}
	if err, ok := s.failures[req.Dimension]; ok {
		return nil, err
	}

	score := 100
	if v, ok := s.scores[req.Dimension]; ok {
		score = v
	}
	status := models.JudgmentStatusPass
	issues := s.issues[req.Dimension]
	if len(issues) > 0 {
		status = models.JudgmentStatusFail
	}

	return &models.DimensionJudgment{
		Dimension: req.Dimension,
		Status:    status,
		Score:     score,
		Issues:    issues,
	}, nil
}

func testCountry() models.Country {
	return models.Country{CountryCode: "US", CountryName: "United States"}
}

func testSnapshot() models.ProductSnapshot {
	return models.ProductSnapshot{
		SchemaVersion:       models.SnapshotSchemaVersion,
		NameLocal:           "Keranjang Rotan",
		MaterialComposition: "rattan, water hyacinth",
		Ingredients:         []string{"rattan", "lacquer"},
		QualitySpecs:        map[string]interface{}{"moisture": "12%"},
		PackagingType:       "cardboard box",
	}
}

func issueFor(dimension models.Dimension, key string) models.ComplianceIssue {
	return models.ComplianceIssue{
		Dimension:   dimension,
		RuleKey:     key,
		Description: key + " violated",
		Severity:    models.SeverityMajor,
	}
}

func TestEvaluateJudgesAllThreeDimensions(t *testing.T) {
	client := &stubJudgmentClient{
		scores: map[models.Dimension]int{
			models.DimensionIngredient:    90,
			models.DimensionSpecification: 80,
			models.DimensionPackaging:     70,
		},
	}
	evaluator := NewComplianceEvaluator(client, 50)

	set, issues := evaluator.Evaluate(context.Background(), testSnapshot(), testCountry(), nil)

	assert.Equal(t, 90, set.Ingredient.Score)
	assert.Equal(t, 80, set.Specification.Score)
	assert.Equal(t, 70, set.Packaging.Score)
	assert.Empty(t, issues)
	assert.Len(t, client.requests, 3)
}

func TestEvaluatePoolsIssuesInCanonicalOrder(t *testing.T) {
	// Ingredient is the slowest and packaging the fastest, so completion
	// order is the reverse of the canonical order.
	client := &stubJudgmentClient{
		issues: map[models.Dimension][]models.ComplianceIssue{
			models.DimensionIngredient:    {issueFor(models.DimensionIngredient, "ban")},
			models.DimensionSpecification: {issueFor(models.DimensionSpecification, "spec")},
			models.DimensionPackaging:     {issueFor(models.DimensionPackaging, "pack")},
		},
		delays: map[models.Dimension]time.Duration{
			models.DimensionIngredient:    30 * time.Millisecond,
			models.DimensionSpecification: 15 * time.Millisecond,
		},
	}
	evaluator := NewComplianceEvaluator(client, 50)

	_, issues := evaluator.Evaluate(context.Background(), testSnapshot(), testCountry(), nil)

	require.Len(t, issues, 3)
	assert.Equal(t, models.DimensionIngredient, issues[0].Dimension)
	assert.Equal(t, models.DimensionSpecification, issues[1].Dimension)
	assert.Equal(t, models.DimensionPackaging, issues[2].Dimension)
}

func TestEvaluateFallsBackOnlyForFailedDimension(t *testing.T) {
	client := &stubJudgmentClient{
		scores: map[models.Dimension]int{
			models.DimensionIngredient: 95,
			models.DimensionPackaging:  85,
		},
		failures: map[models.Dimension]error{
			models.DimensionSpecification: &TransientError{Err: errors.New("down")},
		},
	}
	evaluator := NewComplianceEvaluator(client, 40)

	set, issues := evaluator.Evaluate(context.Background(), testSnapshot(), testCountry(), nil)

	assert.Equal(t, 95, set.Ingredient.Score)
	assert.False(t, set.Ingredient.Fallback)
	assert.Equal(t, 85, set.Packaging.Score)
	assert.False(t, set.Packaging.Fallback)

	assert.True(t, set.Specification.Fallback)
	assert.Equal(t, 40, set.Specification.Score)
	assert.Equal(t, models.JudgmentStatusFail, set.Specification.Status)

	// Only the fallback dimension contributes the unavailability issue.
	require.Len(t, issues, 1)
	assert.Equal(t, models.DimensionSpecification, issues[0].Dimension)
}

func TestEvaluateFiltersRulesByDimension(t *testing.T) {
	rules := []models.RegulationRule{
		{CountryCode: "US", RuleCategory: models.RuleCategoryIngredientBan, ForbiddenKeywords: "borax"},
		{CountryCode: "US", RuleCategory: models.RuleCategoryQualityStandard, RequiredSpecs: "moisture < 15%"},
		{CountryCode: "US", RuleCategory: models.RuleCategoryPackagingStandard, RequiredSpecs: "ISPM-15"},
		{CountryCode: "US", RuleCategory: models.RuleCategoryIngredientBan, ForbiddenKeywords: "lead paint"},
	}
	client := &stubJudgmentClient{}
	evaluator := NewComplianceEvaluator(client, 50)

	evaluator.Evaluate(context.Background(), testSnapshot(), testCountry(), rules)

	byDimension := make(map[models.Dimension][]models.RegulationRule)
	for _, req := range client.requests {
		byDimension[req.Dimension] = req.Rules
	}

	assert.Len(t, byDimension[models.DimensionIngredient], 2)
	assert.Len(t, byDimension[models.DimensionSpecification], 1)
	assert.Len(t, byDimension[models.DimensionPackaging], 1)
}

func TestEvaluatePayloadsSelectDimensionAttributes(t *testing.T) {
	client := &stubJudgmentClient{}
	evaluator := NewComplianceEvaluator(client, 50)

	evaluator.Evaluate(context.Background(), testSnapshot(), testCountry(), nil)

	for _, req := range client.requests {
		switch req.Dimension {
		case models.DimensionIngredient:
			assert.NotEmpty(t, req.Payload.Ingredients)
			assert.Empty(t, req.Payload.PackagingType)
		case models.DimensionSpecification:
			assert.NotEmpty(t, req.Payload.QualitySpecs)
			assert.Empty(t, req.Payload.Ingredients)
		case models.DimensionPackaging:
			assert.Equal(t, "cardboard box", req.Payload.PackagingType)
			assert.Empty(t, req.Payload.QualitySpecs)
		}
	}
}

func TestEvaluateIsDeterministicAcrossRuns(t *testing.T) {
	client := &stubJudgmentClient{
		scores: map[models.Dimension]int{
			models.DimensionIngredient:    88,
			models.DimensionSpecification: 77,
			models.DimensionPackaging:     66,
		},
		issues: map[models.Dimension][]models.ComplianceIssue{
			models.DimensionIngredient: {issueFor(models.DimensionIngredient, "ban")},
			models.DimensionPackaging:  {issueFor(models.DimensionPackaging, "pack")},
		},
	}
	evaluator := NewComplianceEvaluator(client, 50)

	firstSet, firstIssues := evaluator.Evaluate(context.Background(), testSnapshot(), testCountry(), nil)
	for i := 0; i < 5; i++ {
		set, issues := evaluator.Evaluate(context.Background(), testSnapshot(), testCountry(), nil)
		assert.Equal(t, firstSet, set)
		assert.Equal(t, firstIssues, issues)
	}
}
