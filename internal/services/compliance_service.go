// internal/services/compliance_service.go
package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/exportready/backend/internal/models"
)

// ComplianceEvaluator fans one product snapshot out to per-dimension
// judgments and folds the results back into a deterministic aggregate.
type ComplianceEvaluator struct {
	client     JudgmentClient
	scoreFloor int
}

func NewComplianceEvaluator(client JudgmentClient, scoreFloor int) *ComplianceEvaluator {
	return &ComplianceEvaluator{client: client, scoreFloor: scoreFloor}
}

// Evaluate judges the ingredient, specification and packaging dimensions
// concurrently. A failed judgment call is replaced by the fallback for that
// dimension only; Evaluate itself never fails. The returned issue list pools
// the per-dimension issues in canonical dimension order regardless of which
// goroutine finished first.
func (e *ComplianceEvaluator) Evaluate(ctx context.Context, snapshot models.ProductSnapshot, country models.Country, rules []models.RegulationRule) (models.JudgmentSet, []models.ComplianceIssue) {
	var results [len(models.Dimensions)]models.DimensionJudgment

	g, gctx := errgroup.WithContext(ctx)
	for i, dimension := range models.Dimensions {
		i, dimension := i, dimension
		g.Go(func() error {
			results[i] = e.evaluateDimension(gctx, dimension, snapshot, country, rules)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures become fallbacks

	set := models.JudgmentSet{
		Ingredient:    results[0],
		Specification: results[1],
		Packaging:     results[2],
	}

	var issues []models.ComplianceIssue
	for _, judgment := range set.All() {
		issues = append(issues, judgment.Issues...)
	}
	return set, issues
}

func (e *ComplianceEvaluator) evaluateDimension(ctx context.Context, dimension models.Dimension, snapshot models.ProductSnapshot, country models.Country, rules []models.RegulationRule) models.DimensionJudgment {
	req := JudgmentRequest{
		Dimension:   dimension,
		CountryCode: country.CountryCode,
		CountryName: country.CountryName,
		Payload:     dimensionPayload(dimension, snapshot),
		Rules:       rulesForDimension(dimension, rules),
	}

	judgment, err := e.client.Evaluate(ctx, req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"dimension": dimension,
			"country":   country.CountryCode,
			"error":     err.Error(),
		}).Warn("Dimension judgment failed, using fallback")
		return FallbackJudgment(dimension, e.scoreFloor)
	}

	return *judgment
}

// dimensionPayload selects the snapshot attributes each dimension judges.
func dimensionPayload(dimension models.Dimension, snapshot models.ProductSnapshot) JudgmentPayload {
	payload := JudgmentPayload{ProductName: snapshot.NameLocal}
	if snapshot.Enrichment != nil && snapshot.Enrichment.ProductNameEN != "" {
		payload.ProductName = snapshot.Enrichment.ProductNameEN
	}

	switch dimension {
	case models.DimensionIngredient:
		payload.MaterialComposition = snapshot.MaterialComposition
		payload.Ingredients = snapshot.Ingredients
	case models.DimensionSpecification:
		payload.QualitySpecs = snapshot.QualitySpecs
		payload.DurabilityClaim = snapshot.DurabilityClaim
	case models.DimensionPackaging:
		payload.PackagingType = snapshot.PackagingType
		payload.DimensionsLWH = snapshot.DimensionsLWH
		payload.WeightGross = snapshot.WeightGross
	}
	return payload
}

func rulesForDimension(dimension models.Dimension, rules []models.RegulationRule) []models.RegulationRule {
	category := models.RuleCategoryFor(dimension)
	filtered := make([]models.RegulationRule, 0, len(rules))
	for _, rule := range rules {
		if rule.RuleCategory == category {
			filtered = append(filtered, rule)
		}
	}
	return filtered
}
