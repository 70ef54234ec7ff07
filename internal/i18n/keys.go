// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"
	KeyAccessDenied     = "auth.access_denied"

	// Products
	KeyProductNotFound           = "product.not_found"
	KeyProductEnrichmentRequired = "product.enrichment_required"

	// Countries
	KeyCountryNotFound = "country.not_found"

	// Analyses
	KeyAnalysisCreated       = "analysis.created"
	KeyAnalysisRefreshed     = "analysis.refreshed"
	KeyAnalysisDeleted       = "analysis.deleted"
	KeyAnalysisNotFound      = "analysis.not_found"
	KeyAnalysisExists        = "analysis.exists"
	KeyAnalysisNoCountries   = "analysis.no_countries"
	KeyAnalysisTooManyTarget = "analysis.too_many_countries"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
)
