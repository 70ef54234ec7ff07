// internal/services/recommendation_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/exportready/backend/internal/models"
)

// RecommendationService turns an analysis outcome into actionable guidance
// for the producer. The narrative comes from the AI; when that call fails the
// deterministic template below takes over so an analysis never ships without
// recommendations.
type RecommendationService struct {
	ai AIClient
}

func NewRecommendationService(ai AIClient) *RecommendationService {
	return &RecommendationService{ai: ai}
}

const recommendationSystemPrompt = `You are an export advisor for Indonesian small producers.
Write practical, prioritized recommendations for fixing the compliance issues found.

RULES:
- Address the most severe issues first.
- Be concrete: name the certification, the label change, the packaging fix.
- Keep it under 300 words, plain prose with a short numbered list.
- If there are no issues, congratulate briefly and suggest next export steps.
- Output plain text only, no JSON, no markdown headers.`

// Generate produces the recommendation narrative for an analysis outcome.
func (s *RecommendationService) Generate(ctx context.Context, country models.Country, score int, issues []models.ComplianceIssue) string {
	prompt, err := buildRecommendationPrompt(country, score, issues)
	if err == nil {
		if text, aiErr := s.ai.Chat(ctx, recommendationSystemPrompt, prompt); aiErr == nil {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				return trimmed
			}
		} else {
			logrus.WithFields(logrus.Fields{
				"country": country.CountryCode,
				"error":   aiErr.Error(),
			}).Warn("Recommendation generation failed, using fallback")
		}
	}

	return FallbackRecommendations(country, issues)
}

func buildRecommendationPrompt(country models.Country, score int, issues []models.ComplianceIssue) (string, error) {
	encoded, err := json.Marshal(issues)
	if err != nil {
		return "", fmt.Errorf("failed to marshal issues: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Destination country: %s (%s)\n", country.CountryName, country.CountryCode)
	fmt.Fprintf(&b, "Readiness score: %d/100\n", score)
	fmt.Fprintf(&b, "Compliance issues found: %s\n", encoded)
	return b.String(), nil
}

// FallbackRecommendations renders the issues themselves as the guidance, most
// severe first, so the producer still sees exactly what to fix.
func FallbackRecommendations(country models.Country, issues []models.ComplianceIssue) string {
	if len(issues) == 0 {
		return fmt.Sprintf("No compliance issues were found for %s. Your product looks export-ready; verify current import procedures with your freight forwarder before shipping.", country.CountryName)
	}

	sorted := make([]models.ComplianceIssue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return models.SeverityRank(sorted[i].Severity) < models.SeverityRank(sorted[j].Severity)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Address the following before exporting to %s:\n", country.CountryName)
	for i, issue := range sorted {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, issue.Severity, issue.Description)
		if issue.RequiredValue != "" {
			fmt.Fprintf(&b, " (required: %s)", issue.RequiredValue)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
