// internal/handlers/country.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/exportready/backend/internal/services"
	"github.com/exportready/backend/internal/utils"
)

type CountryHandler struct {
	regulationService *services.RegulationService
}

func NewCountryHandler(regulationService *services.RegulationService) *CountryHandler {
	return &CountryHandler{regulationService: regulationService}
}

// GET /countries
func (h *CountryHandler) GetCountries(c *gin.Context) {
	region := c.Query("region")
	search := c.Query("search")

	countries, err := h.regulationService.ListCountries(region, search)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, countries)
}

// GET /countries/:code
func (h *CountryHandler) GetCountry(c *gin.Context) {
	country, err := h.regulationService.GetCountry(c.Param("code"))
	if err != nil {
		if errors.Is(err, services.ErrCountryNotFound) {
			utils.NotFoundResponse(c, "country")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, country)
}

// GET /countries/:code/regulations
func (h *CountryHandler) GetCountryRegulations(c *gin.Context) {
	grouped, err := h.regulationService.RulesByCategory(c.Param("code"))
	if err != nil {
		if errors.Is(err, services.ErrCountryNotFound) {
			utils.NotFoundResponse(c, "country")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, grouped)
}
