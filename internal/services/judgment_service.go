// internal/services/judgment_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/exportready/backend/internal/models"
)

// JudgmentRequest carries one dimension's slice of the snapshot plus the
// country rules filtered to that dimension's category.
type JudgmentRequest struct {
	Dimension   Dimension
	CountryCode string
	CountryName string
	Payload     JudgmentPayload
	Rules       []models.RegulationRule
}

// Dimension aliases the model enum so callers in this package read naturally.
type Dimension = models.Dimension

// JudgmentPayload is the export-relevant attribute subset a dimension judges.
// Only the fields relevant to the request's dimension are populated.
type JudgmentPayload struct {
	ProductName         string                 `json:"product_name"`
	MaterialComposition string                 `json:"material_composition,omitempty"`
	Ingredients         []string               `json:"ingredients,omitempty"`
	QualitySpecs        map[string]interface{} `json:"quality_specs,omitempty"`
	DurabilityClaim     string                 `json:"durability_claim,omitempty"`
	PackagingType       string                 `json:"packaging_type,omitempty"`
	DimensionsLWH       map[string]interface{} `json:"dimensions_l_w_h,omitempty"`
	WeightGross         float64                `json:"weight_gross,omitempty"`
}

// JudgmentClient is the external reasoning capability that turns one
// dimension payload into a structured verdict. Failures are *TransientError
// or *SchemaError; callers substitute FallbackJudgment either way.
type JudgmentClient interface {
	Evaluate(ctx context.Context, req JudgmentRequest) (*models.DimensionJudgment, error)
}

// aiJudgmentClient implements JudgmentClient on top of the chat client.
type aiJudgmentClient struct {
	ai AIClient
}

func NewJudgmentClient(ai AIClient) JudgmentClient {
	return &aiJudgmentClient{ai: ai}
}

const judgmentSystemPrompt = `You are an export-regulation compliance expert for Indonesian small producers.
Judge whether the product attributes comply with the destination country's rules.

RULES:
- Judge only the dimension you are given.
- severity levels: critical (blocks export), major (needs certification or rework), minor (advisory).
- Output MUST be a single JSON object:
  {"status": "pass" or "fail", "score": 0-100, "issues": [{"rule_key": "...", "your_value": "...", "required_value": "...", "description": "...", "severity": "critical|major|minor"}]}
- score 100 means fully compliant; deduct for each issue by severity.
- If there are no issues, return {"status": "pass", "score": 100, "issues": []}.
- Output ONLY the JSON object, no additional text.`

func (c *aiJudgmentClient) Evaluate(ctx context.Context, req JudgmentRequest) (*models.DimensionJudgment, error) {
	prompt, err := buildJudgmentPrompt(req)
	if err != nil {
		return nil, err
	}

	response, err := c.ai.Chat(ctx, judgmentSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	return parseJudgment(req.Dimension, response)
}

func buildJudgmentPrompt(req JudgmentRequest) (string, error) {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal judgment payload: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dimension: %s\n", req.Dimension)
	fmt.Fprintf(&b, "Destination country: %s (%s)\n", req.CountryName, req.CountryCode)
	fmt.Fprintf(&b, "Product attributes: %s\n", payload)

	if len(req.Rules) == 0 {
		b.WriteString("Applicable rules: general import standards only\n")
		return b.String(), nil
	}

	b.WriteString("Applicable rules:\n")
	for _, rule := range req.Rules {
		fmt.Fprintf(&b, "- category=%s", rule.RuleCategory)
		if rule.ForbiddenKeywords != "" {
			fmt.Fprintf(&b, "; forbidden: %s", rule.ForbiddenKeywords)
		}
		if rule.RequiredSpecs != "" {
			fmt.Fprintf(&b, "; required: %s", rule.RequiredSpecs)
		}
		if rule.Description != "" {
			fmt.Fprintf(&b, "; %s", rule.Description)
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// rawJudgment is the loosely-typed wire shape; parseJudgment validates it
// into the domain value object.
type rawJudgment struct {
	Status string   `json:"status"`
	Score  *float64 `json:"score"`
	Issues []struct {
		RuleKey       string `json:"rule_key"`
		YourValue     string `json:"your_value"`
		RequiredValue string `json:"required_value"`
		Description   string `json:"description"`
		Severity      string `json:"severity"`
	} `json:"issues"`
}

func parseJudgment(dimension Dimension, response string) (*models.DimensionJudgment, error) {
	match := jsonObjectPattern.FindString(response)
	if match == "" {
		return nil, &SchemaError{Reason: "no JSON object in judgment response"}
	}

	var raw rawJudgment
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, &SchemaError{Reason: "judgment is not valid JSON"}
	}

	status := models.JudgmentStatus(strings.ToLower(raw.Status))
	if status != models.JudgmentStatusPass && status != models.JudgmentStatusFail {
		return nil, &SchemaError{Reason: fmt.Sprintf("unknown judgment status %q", raw.Status)}
	}
	if raw.Score == nil {
		return nil, &SchemaError{Reason: "judgment score is missing"}
	}

	judgment := &models.DimensionJudgment{
		Dimension: dimension,
		Status:    status,
		Score:     clampScore(int(math.Round(*raw.Score))),
		Issues:    make([]models.ComplianceIssue, 0, len(raw.Issues)),
	}

	for _, issue := range raw.Issues {
		severity := models.Severity(strings.ToLower(issue.Severity))
		switch severity {
		case models.SeverityCritical, models.SeverityMajor, models.SeverityMinor:
		default:
			severity = models.SeverityMinor
		}

		judgment.Issues = append(judgment.Issues, models.ComplianceIssue{
			Dimension:     dimension,
			RuleKey:       issue.RuleKey,
			YourValue:     issue.YourValue,
			RequiredValue: issue.RequiredValue,
			Description:   issue.Description,
			Severity:      severity,
		})
	}

	return judgment, nil
}

// FallbackJudgment is the deterministic stand-in for a dimension whose
// judgment call failed: fail-safe status, the configured score floor, and a
// single minor issue flagging the unavailability.
func FallbackJudgment(dimension Dimension, scoreFloor int) models.DimensionJudgment {
	return models.DimensionJudgment{
		Dimension: dimension,
		Status:    models.JudgmentStatusFail,
		Score:     clampScore(scoreFloor),
		Fallback:  true,
		Issues: []models.ComplianceIssue{
			{
				Dimension:     dimension,
				RuleKey:       "judgment_unavailable",
				YourValue:     "not evaluated",
				RequiredValue: "automated compliance judgment",
				Description:   fmt.Sprintf("The %s compliance check could not be completed; re-run the analysis to get a full judgment.", dimension),
				Severity:      models.SeverityMinor,
			},
		},
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
