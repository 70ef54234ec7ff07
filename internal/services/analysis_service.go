// internal/services/analysis_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/exportready/backend/internal/config"
	"github.com/exportready/backend/internal/models"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrEnrichmentRequired = errors.New("product enrichment required before analysis")
	ErrAnalysisExists     = errors.New("analysis already exists for this product and country")
	ErrAnalysisNotFound   = errors.New("analysis not found")
	ErrForbidden          = errors.New("access denied")
	ErrNoCountries        = errors.New("at least one country is required")
	ErrTooManyCountries   = errors.New("too many countries requested")
)

// Actor identifies who is performing an operation. UMKM users only reach
// analyses of products their business profile owns; admins reach everything.
type Actor struct {
	UserID uuid.UUID
	Role   models.UserRole
}

func (a Actor) isAdmin() bool {
	return a.Role == models.UserRoleAdmin
}

// AnalysisResult pairs an analysis with its change-awareness read fields:
// the name the product had when it was analyzed and whether the live product
// has drifted from the stored snapshot.
type AnalysisResult struct {
	Analysis            *models.ExportAnalysis `json:"analysis"`
	SnapshotProductName string                 `json:"snapshot_product_name"`
	ProductChanged      bool                   `json:"product_changed"`
}

// ComparisonEntry is one country's outcome within a comparison run.
type ComparisonEntry struct {
	AnalysisID     uuid.UUID          `json:"analysis_id"`
	CountryCode    string             `json:"country_code"`
	CountryName    string             `json:"country_name"`
	ReadinessScore int                `json:"readiness_score"`
	StatusGrade    models.StatusGrade `json:"status_grade"`
	Judgments      models.JudgmentSet `json:"judgments"`
	Reused         bool               `json:"reused"`
}

// ComparisonResult holds the per-country entries in the order they were
// requested plus the best-scoring destination.
type ComparisonResult struct {
	Entries         []ComparisonEntry `json:"entries"`
	BestCountryCode string            `json:"best_country_code"`
}

// ListAnalysesParams filters and paginates analysis listings.
type ListAnalysesParams struct {
	Page        int
	Limit       int
	CountryCode string
	StatusGrade string
	MinScore    *int
	MaxScore    *int
	Search      string
}

// AnalysisService coordinates the full analysis pipeline: snapshot capture,
// concurrent dimension judgments, scoring, recommendations, and persistence
// under the one-analysis-per-product-and-country rule.
type AnalysisService struct {
	db          *gorm.DB
	evaluator   *ComplianceEvaluator
	recommender *RecommendationService
	regulations *RegulationService
	guides      *GuideService
	cfg         config.AnalysisConfig
}

func NewAnalysisService(db *gorm.DB, evaluator *ComplianceEvaluator, recommender *RecommendationService, regulations *RegulationService, guides *GuideService, cfg config.AnalysisConfig) *AnalysisService {
	return &AnalysisService{
		db:          db,
		evaluator:   evaluator,
		recommender: recommender,
		regulations: regulations,
		guides:      guides,
		cfg:         cfg,
	}
}

// MaxCompareCountries reports the configured comparison size cap.
func (s *AnalysisService) MaxCompareCountries() int {
	return s.cfg.MaxCompareCountries
}

// Create runs a fresh analysis of one product against one destination
// country. The product must be enriched, and no analysis may already exist
// for the pair; Reanalyze is the only way to refresh an existing one.
func (s *AnalysisService) Create(ctx context.Context, actor Actor, productID uuid.UUID, countryCode string) (*models.ExportAnalysis, error) {
	product, err := s.loadOwnedProduct(actor, productID)
	if err != nil {
		return nil, err
	}
	if product.Enrichment == nil {
		return nil, ErrEnrichmentRequired
	}

	country, err := s.regulations.GetCountry(countryCode)
	if err != nil {
		return nil, err
	}

	var existing int64
	err = s.db.Model(&models.ExportAnalysis{}).
		Where("product_id = ? AND target_country_code = ?", product.ID, country.CountryCode).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrAnalysisExists
	}

	snapshot := models.CaptureProductSnapshot(product)
	outcome, err := s.runPipeline(ctx, snapshot, country)
	if err != nil {
		return nil, err
	}

	analysis := &models.ExportAnalysis{
		ProductID:         product.ID,
		TargetCountryCode: country.CountryCode,
		ReadinessScore:    outcome.score,
		StatusGrade:       outcome.grade,
		Judgments:         outcome.judgments,
		ComplianceIssues:  outcome.issues,
		Recommendations:   outcome.recommendations,
		ProductSnapshot:   snapshot,
		AnalyzedAt:        time.Now().UTC(),
	}

	if err := s.db.Create(analysis).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAnalysisExists
		}
		return nil, err
	}

	analysis.TargetCountry = *country
	logrus.WithFields(logrus.Fields{
		"analysis_id": analysis.ID,
		"product_id":  product.ID,
		"country":     country.CountryCode,
		"score":       analysis.ReadinessScore,
	}).Info("Export analysis created")

	return analysis, nil
}

// Get returns one analysis with its change flag against the live product.
func (s *AnalysisService) Get(actor Actor, analysisID uuid.UUID) (*AnalysisResult, error) {
	analysis, err := s.loadOwnedAnalysis(s.db, actor, analysisID)
	if err != nil {
		return nil, err
	}
	return &AnalysisResult{
		Analysis:            analysis,
		SnapshotProductName: analysis.SnapshotProductName(),
		ProductChanged:      analysis.ProductSnapshot.HasChanged(&analysis.Product),
	}, nil
}

// rowLock adds SELECT ... FOR UPDATE on postgres so concurrent reanalyses of
// the same row serialize. sqlite has no row locks; its single writer gives
// the same guarantee.
func rowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// Reanalyze recomputes an existing analysis in place: a fresh snapshot, fresh
// judgments, and a cleared guide cache. The row is locked for the duration so
// concurrent reanalyses serialize.
func (s *AnalysisService) Reanalyze(ctx context.Context, actor Actor, analysisID uuid.UUID) (*models.ExportAnalysis, error) {
	var updated *models.ExportAnalysis

	err := s.db.Transaction(func(tx *gorm.DB) error {
		analysis, err := s.loadOwnedAnalysis(rowLock(tx), actor, analysisID)
		if err != nil {
			return err
		}
		if analysis.Product.Enrichment == nil {
			return ErrEnrichmentRequired
		}

		country, err := s.regulations.GetCountry(analysis.TargetCountryCode)
		if err != nil {
			return err
		}

		snapshot := models.CaptureProductSnapshot(&analysis.Product)
		outcome, err := s.runPipeline(ctx, snapshot, country)
		if err != nil {
			return err
		}

		analysis.ReadinessScore = outcome.score
		analysis.StatusGrade = outcome.grade
		analysis.Judgments = outcome.judgments
		analysis.ComplianceIssues = outcome.issues
		analysis.Recommendations = outcome.recommendations
		analysis.ProductSnapshot = snapshot
		analysis.RegulationGuides = nil
		analysis.AnalyzedAt = time.Now().UTC()

		// The guide cache column must go back to NULL, so the nil map is
		// written explicitly alongside the recomputed fields.
		err = tx.Model(analysis).Updates(map[string]interface{}{
			"readiness_score":        analysis.ReadinessScore,
			"status_grade":           analysis.StatusGrade,
			"judgments":              analysis.Judgments,
			"compliance_issues":      analysis.ComplianceIssues,
			"recommendations":        analysis.Recommendations,
			"product_snapshot":       analysis.ProductSnapshot,
			"regulation_guide_cache": nil,
			"analyzed_at":            analysis.AnalyzedAt,
		}).Error
		if err != nil {
			return err
		}

		updated = analysis
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"analysis_id": updated.ID,
		"score":       updated.ReadinessScore,
	}).Info("Export analysis refreshed")

	return updated, nil
}

// Delete soft-deletes an analysis.
func (s *AnalysisService) Delete(actor Actor, analysisID uuid.UUID) error {
	analysis, err := s.loadOwnedAnalysis(s.db, actor, analysisID)
	if err != nil {
		return err
	}
	return s.db.Delete(analysis).Error
}

// List returns the actor's analyses, newest first, with optional filters.
func (s *AnalysisService) List(actor Actor, params ListAnalysesParams) ([]models.ExportAnalysis, int64, error) {
	query := s.db.Model(&models.ExportAnalysis{}).
		Joins("JOIN products ON products.id = export_analyses.product_id").
		Preload("Product").
		Preload("TargetCountry")

	if !actor.isAdmin() {
		query = query.
			Joins("JOIN business_profiles ON business_profiles.id = products.business_profile_id").
			Where("business_profiles.user_id = ?", actor.UserID)
	}

	if params.CountryCode != "" {
		query = query.Where("export_analyses.target_country_code = ?", normalizeCountryCode(params.CountryCode))
	}
	if params.StatusGrade != "" {
		query = query.Where("export_analyses.status_grade = ?", strings.ToLower(params.StatusGrade))
	}
	if params.MinScore != nil {
		query = query.Where("export_analyses.readiness_score >= ?", *params.MinScore)
	}
	if params.MaxScore != nil {
		query = query.Where("export_analyses.readiness_score <= ?", *params.MaxScore)
	}
	if params.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(params.Search)) + "%"
		query = query.Where("LOWER(products.name_local) LIKE ?", pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var analyses []models.ExportAnalysis
	err := query.
		Order("export_analyses.analyzed_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&analyses).Error
	if err != nil {
		return nil, 0, err
	}

	return analyses, total, nil
}

// Compare analyzes one product against several destination countries off a
// single shared snapshot, so every country judges the identical product
// state. Existing analyses are reused unless forceRefresh is set; fresh and
// refreshed outcomes are persisted. Entries come back in request order.
func (s *AnalysisService) Compare(ctx context.Context, actor Actor, productID uuid.UUID, countryCodes []string, forceRefresh bool) (*ComparisonResult, error) {
	codes := dedupeCountryCodes(countryCodes)
	if len(codes) == 0 {
		return nil, ErrNoCountries
	}
	if len(codes) > s.cfg.MaxCompareCountries {
		return nil, ErrTooManyCountries
	}

	product, err := s.loadOwnedProduct(actor, productID)
	if err != nil {
		return nil, err
	}
	if product.Enrichment == nil {
		return nil, ErrEnrichmentRequired
	}

	// Any invalid code fails the whole comparison up front, before judgment
	// calls are spent on the others.
	countries := make([]*models.Country, len(codes))
	for i, code := range codes {
		country, err := s.regulations.GetCountry(code)
		if err != nil {
			return nil, err
		}
		countries[i] = country
	}

	snapshot := models.CaptureProductSnapshot(product)
	entries := make([]ComparisonEntry, len(codes))
	outcomes := make([]*pipelineOutcome, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	for i := range codes {
		i := i
		g.Go(func() error {
			country := countries[i]

			if !forceRefresh {
				var existing models.ExportAnalysis
				err := s.db.Where("product_id = ? AND target_country_code = ?", product.ID, country.CountryCode).
					First(&existing).Error
				if err == nil {
					entries[i] = ComparisonEntry{
						AnalysisID:     existing.ID,
						CountryCode:    country.CountryCode,
						CountryName:    country.CountryName,
						ReadinessScore: existing.ReadinessScore,
						StatusGrade:    existing.StatusGrade,
						Judgments:      existing.Judgments,
						Reused:         true,
					}
					return nil
				}
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
			}

			outcome, err := s.runPipeline(gctx, snapshot, country)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			entries[i] = ComparisonEntry{
				CountryCode:    country.CountryCode,
				CountryName:    country.CountryName,
				ReadinessScore: outcome.score,
				StatusGrade:    outcome.grade,
				Judgments:      outcome.judgments,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Persistence is sequential after the concurrent judgment phase.
	for i, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		id, err := s.upsertComparison(product.ID, countries[i].CountryCode, snapshot, outcome)
		if err != nil {
			return nil, err
		}
		entries[i].AnalysisID = id
	}

	result := &ComparisonResult{Entries: entries}
	best := -1
	for _, entry := range entries {
		if entry.ReadinessScore > best {
			best = entry.ReadinessScore
			result.BestCountryCode = entry.CountryCode
		}
	}

	logrus.WithFields(logrus.Fields{
		"product_id": product.ID,
		"countries":  codes,
		"best":       result.BestCountryCode,
	}).Info("Export comparison completed")

	return result, nil
}

// GetGuide returns the regulation guide for an analysis in the requested
// language, generating and caching it on first access.
func (s *AnalysisService) GetGuide(ctx context.Context, actor Actor, analysisID uuid.UUID, language string) (*models.RegulationGuide, bool, error) {
	analysis, err := s.loadOwnedAnalysis(s.db, actor, analysisID)
	if err != nil {
		return nil, false, err
	}
	return s.guides.GetOrGenerate(ctx, analysis, language)
}

type pipelineOutcome struct {
	judgments       models.JudgmentSet
	issues          models.IssueList
	score           int
	grade           models.StatusGrade
	recommendations string
}

func (s *AnalysisService) runPipeline(ctx context.Context, snapshot models.ProductSnapshot, country *models.Country) (*pipelineOutcome, error) {
	rules, err := s.regulations.RulesFor(country.CountryCode)
	if err != nil {
		return nil, err
	}

	judgments, issues := s.evaluator.Evaluate(ctx, snapshot, *country, rules)
	score := CalculateReadinessScore(judgments)

	return &pipelineOutcome{
		judgments:       judgments,
		issues:          issues,
		score:           score,
		grade:           StatusGradeFor(score),
		recommendations: s.recommender.Generate(ctx, *country, score, issues),
	}, nil
}

// upsertComparison persists a computed comparison outcome, updating the
// existing row when forceRefresh recomputed one.
func (s *AnalysisService) upsertComparison(productID uuid.UUID, countryCode string, snapshot models.ProductSnapshot, outcome *pipelineOutcome) (uuid.UUID, error) {
	var existing models.ExportAnalysis
	err := s.db.Where("product_id = ? AND target_country_code = ?", productID, countryCode).
		First(&existing).Error

	switch {
	case err == nil:
		updateErr := s.db.Model(&existing).Updates(map[string]interface{}{
			"readiness_score":        outcome.score,
			"status_grade":           outcome.grade,
			"judgments":              outcome.judgments,
			"compliance_issues":      outcome.issues,
			"recommendations":        outcome.recommendations,
			"product_snapshot":       snapshot,
			"regulation_guide_cache": nil,
			"analyzed_at":            time.Now().UTC(),
		}).Error
		return existing.ID, updateErr

	case errors.Is(err, gorm.ErrRecordNotFound):
		analysis := &models.ExportAnalysis{
			ProductID:         productID,
			TargetCountryCode: countryCode,
			ReadinessScore:    outcome.score,
			StatusGrade:       outcome.grade,
			Judgments:         outcome.judgments,
			ComplianceIssues:  outcome.issues,
			Recommendations:   outcome.recommendations,
			ProductSnapshot:   snapshot,
			AnalyzedAt:        time.Now().UTC(),
		}
		if createErr := s.db.Create(analysis).Error; createErr != nil {
			return uuid.Nil, createErr
		}
		return analysis.ID, nil

	default:
		return uuid.Nil, err
	}
}

func (s *AnalysisService) loadOwnedProduct(actor Actor, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := s.db.Preload("Enrichment").Preload("BusinessProfile").
		First(&product, "id = ?", productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	if !actor.isAdmin() && product.BusinessProfile.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return &product, nil
}

func (s *AnalysisService) loadOwnedAnalysis(db *gorm.DB, actor Actor, analysisID uuid.UUID) (*models.ExportAnalysis, error) {
	var analysis models.ExportAnalysis
	err := db.
		Preload("Product").
		Preload("Product.Enrichment").
		Preload("Product.BusinessProfile").
		Preload("TargetCountry").
		First(&analysis, "id = ?", analysisID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, err
	}

	if !actor.isAdmin() && analysis.Product.BusinessProfile.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return &analysis, nil
}

func dedupeCountryCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		normalized := normalizeCountryCode(code)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
