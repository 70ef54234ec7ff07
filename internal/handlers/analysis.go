// internal/handlers/analysis.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/exportready/backend/internal/i18n"
	"github.com/exportready/backend/internal/models"
	"github.com/exportready/backend/internal/services"
	"github.com/exportready/backend/internal/utils"
)

type AnalysisHandler struct {
	analysisService *services.AnalysisService
}

func NewAnalysisHandler(analysisService *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService}
}

type CreateAnalysisRequest struct {
	ProductID         string `json:"product_id" validate:"required,uuid"`
	TargetCountryCode string `json:"target_country_code" validate:"required,country_code"`
}

type CompareAnalysesRequest struct {
	ProductID    string   `json:"product_id" validate:"required,uuid"`
	CountryCodes []string `json:"country_codes" validate:"required,min=1,dive,country_code"`
	ForceRefresh bool     `json:"force_refresh"`
}

// POST /analyses
func (h *AnalysisHandler) CreateAnalysis(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req CreateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "product_id"), nil)
		return
	}

	analysis, err := h.analysisService.Create(c.Request.Context(), actor, productID, req.TargetCountryCode)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.CreatedResponse(c, analysis)
}

// GET /analyses
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	listParams := services.ListAnalysesParams{
		Page:        params.Page,
		Limit:       params.Limit,
		CountryCode: params.Country,
		Search:      params.Search,
		StatusGrade: c.Query("status_grade"),
	}

	if minStr := c.Query("min_score"); minStr != "" {
		if min, err := strconv.Atoi(minStr); err == nil {
			listParams.MinScore = &min
		}
	}
	if maxStr := c.Query("max_score"); maxStr != "" {
		if max, err := strconv.Atoi(maxStr); err == nil {
			listParams.MaxScore = &max
		}
	}

	analyses, total, err := h.analysisService.List(actor, listParams)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(analyses, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /analyses/:id
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	analysisID, ok := parseIDParam(c)
	if !ok {
		return
	}

	result, err := h.analysisService.Get(actor, analysisID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// POST /analyses/:id/reanalyze
func (h *AnalysisHandler) ReanalyzeAnalysis(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	analysisID, ok := parseIDParam(c)
	if !ok {
		return
	}

	analysis, err := h.analysisService.Reanalyze(c.Request.Context(), actor, analysisID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, analysis)
}

// DELETE /analyses/:id
func (h *AnalysisHandler) DeleteAnalysis(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	analysisID, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.analysisService.Delete(actor, analysisID); err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": i18n.T(lang, i18n.KeyAnalysisDeleted)})
}

// GET /analyses/:id/guide
func (h *AnalysisHandler) GetRegulationGuide(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	analysisID, ok := parseIDParam(c)
	if !ok {
		return
	}

	language := c.DefaultQuery("lang", utils.GetLangFromContext(c))

	guide, fromCache, err := h.analysisService.GetGuide(c.Request.Context(), actor, analysisID, language)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, guide, gin.H{"from_cache": fromCache})
}

// POST /analyses/compare
func (h *AnalysisHandler) CompareAnalyses(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req CompareAnalysesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "product_id"), nil)
		return
	}

	result, err := h.analysisService.Compare(c.Request.Context(), actor, productID, req.CountryCodes, req.ForceRefresh)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

func (h *AnalysisHandler) respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.Is(err, services.ErrAnalysisNotFound):
		utils.NotFoundResponse(c, "analysis")
	case errors.Is(err, services.ErrProductNotFound):
		utils.NotFoundResponse(c, "product")
	case errors.Is(err, services.ErrCountryNotFound):
		utils.NotFoundResponse(c, "country")
	case errors.Is(err, services.ErrForbidden):
		utils.ForbiddenResponse(c, "")
	case errors.Is(err, services.ErrAnalysisExists):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyAnalysisExists))
	case errors.Is(err, services.ErrEnrichmentRequired):
		utils.UnprocessableResponse(c, "ENRICHMENT_REQUIRED", i18n.T(lang, i18n.KeyProductEnrichmentRequired))
	case errors.Is(err, services.ErrNoCountries):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyAnalysisNoCountries), nil)
	case errors.Is(err, services.ErrTooManyCountries):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyAnalysisTooManyTarget, h.analysisService.MaxCompareCountries()), nil)
	default:
		utils.InternalErrorResponse(c, err.Error())
	}
}

func actorFromContext(c *gin.Context) (services.Actor, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		return services.Actor{}, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return services.Actor{}, false
	}

	role := models.UserRoleUMKM
	if roleStr, ok := utils.GetUserRoleFromContext(c); ok && roleStr == string(models.UserRoleAdmin) {
		role = models.UserRoleAdmin
	}

	return services.Actor{UserID: userID, Role: role}, true
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	lang := utils.GetLangFromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "id"), nil)
		return uuid.Nil, false
	}
	return id, true
}
