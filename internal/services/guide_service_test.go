// internal/services/guide_service_test.go
package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exportready/backend/internal/models"
)

func generatedGuideJSON() string {
	sections := make([]map[string]interface{}, 0, len(models.GuideSectionKeys))
	for _, key := range models.GuideSectionKeys {
		sections = append(sections, map[string]interface{}{
			"key":          key,
			"title":        strings.Title(strings.ReplaceAll(key, "_", " ")),
			"summary":      "Summary for " + key,
			"key_points":   []string{"point one"},
			"action_items": []string{"do this"},
		})
	}
	body, _ := json.Marshal(map[string]interface{}{"sections": sections})
	return string(body)
}

func TestParseGuideAcceptsCompleteResponse(t *testing.T) {
	guide, err := parseGuide("JP", "en", "Sure, here it is:\n"+generatedGuideJSON())
	require.NoError(t, err)

	assert.True(t, guide.Complete())
	assert.False(t, guide.Fallback)
	assert.Equal(t, "JP", guide.CountryCode)
	assert.Equal(t, "en", guide.Language)
}

func TestParseGuideReordersSections(t *testing.T) {
	// Build the same sections in reverse order; parsing restores canonical order.
	var raw struct {
		Sections []models.GuideSection `json:"sections"`
	}
	require.NoError(t, json.Unmarshal([]byte(generatedGuideJSON()), &raw))
	for i, j := 0, len(raw.Sections)-1; i < j; i, j = i+1, j-1 {
		raw.Sections[i], raw.Sections[j] = raw.Sections[j], raw.Sections[i]
	}
	body, _ := json.Marshal(raw)

	guide, err := parseGuide("JP", "en", string(body))
	require.NoError(t, err)
	assert.True(t, guide.Complete())
}

func TestParseGuideRejectsMissingSection(t *testing.T) {
	var raw struct {
		Sections []models.GuideSection `json:"sections"`
	}
	require.NoError(t, json.Unmarshal([]byte(generatedGuideJSON()), &raw))
	raw.Sections = raw.Sections[:len(raw.Sections)-1]
	body, _ := json.Marshal(raw)

	_, err := parseGuide("JP", "en", string(body))
	require.Error(t, err)

	var schema *SchemaError
	assert.ErrorAs(t, err, &schema)
}

func TestParseGuideRejectsEmptySummaries(t *testing.T) {
	var raw struct {
		Sections []models.GuideSection `json:"sections"`
	}
	require.NoError(t, json.Unmarshal([]byte(generatedGuideJSON()), &raw))
	raw.Sections[0].Summary = "   "
	body, _ := json.Marshal(raw)

	_, err := parseGuide("JP", "en", string(body))
	require.Error(t, err)
}

func TestFallbackGuideHonorsSectionContract(t *testing.T) {
	for _, language := range []string{"en", "id"} {
		t.Run(language, func(t *testing.T) {
			guide := FallbackGuide("DE", "Germany", language)

			assert.True(t, guide.Complete())
			assert.True(t, guide.Fallback)
			assert.Equal(t, language, guide.Language)
			for _, section := range guide.Sections {
				assert.NotEmpty(t, section.Title, section.Key)
				assert.NotEmpty(t, section.Summary, section.Key)
				assert.NotEmpty(t, section.KeyPoints, section.Key)
				assert.Contains(t, fmt.Sprint(guide.Sections), "Germany")
			}
		})
	}
}

func TestFallbackGuideNormalizesUnknownLanguage(t *testing.T) {
	guide := FallbackGuide("DE", "Germany", "fr")
	assert.Equal(t, "en", guide.Language)
	assert.True(t, guide.Complete())
}
