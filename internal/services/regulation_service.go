// internal/services/regulation_service.go
package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/exportready/backend/internal/models"
)

var ErrCountryNotFound = errors.New("country not found")

// RegulationService serves the read-only country and regulation knowledge
// store.
type RegulationService struct {
	db *gorm.DB
}

func NewRegulationService(db *gorm.DB) *RegulationService {
	return &RegulationService{db: db}
}

// ListCountries returns supported destination countries, optionally filtered
// by region or a name search.
func (s *RegulationService) ListCountries(region, search string) ([]models.Country, error) {
	query := s.db.Model(&models.Country{}).Order("country_name ASC")

	if region != "" {
		query = query.Where("region = ?", region)
	}
	if search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
		query = query.Where("LOWER(country_name) LIKE ? OR LOWER(country_code) LIKE ?", pattern, pattern)
	}

	var countries []models.Country
	if err := query.Find(&countries).Error; err != nil {
		return nil, err
	}
	return countries, nil
}

// GetCountry returns one country with its regulation rules preloaded.
func (s *RegulationService) GetCountry(code string) (*models.Country, error) {
	var country models.Country
	err := s.db.Preload("Regulations").First(&country, "country_code = ?", normalizeCountryCode(code)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCountryNotFound
		}
		return nil, err
	}
	return &country, nil
}

// RulesByCategory groups a country's rules by their category for the detail
// response.
func (s *RegulationService) RulesByCategory(code string) (map[models.RuleCategory][]models.RegulationRule, error) {
	country, err := s.GetCountry(code)
	if err != nil {
		return nil, err
	}

	grouped := make(map[models.RuleCategory][]models.RegulationRule)
	for _, rule := range country.Regulations {
		grouped[rule.RuleCategory] = append(grouped[rule.RuleCategory], rule)
	}
	return grouped, nil
}

// RulesFor returns all regulation rules for a country.
func (s *RegulationService) RulesFor(code string) ([]models.RegulationRule, error) {
	var rules []models.RegulationRule
	err := s.db.Where("country_code = ?", normalizeCountryCode(code)).Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func normalizeCountryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
