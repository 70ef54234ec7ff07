// internal/services/analysis_service_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/exportready/backend/internal/config"
	"github.com/exportready/backend/internal/models"
)

type AnalysisServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	ai      *stubAIClient
	judge   *stubJudgmentClient
	service *AnalysisService

	owner    models.User
	stranger models.User
	admin    models.User
	product  models.Product
	bare     models.Product // product without enrichment
}

func (s *AnalysisServiceTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(db.AutoMigrate(
		&models.User{},
		&models.BusinessProfile{},
		&models.Product{},
		&models.ProductEnrichment{},
		&models.Country{},
		&models.RegulationRule{},
		&models.ExportAnalysis{},
	))

	s.seed()

	s.ai = &stubAIClient{response: generatedGuideJSON()}
	s.judge = &stubJudgmentClient{
		scores: map[models.Dimension]int{
			models.DimensionIngredient:    90,
			models.DimensionSpecification: 80,
			models.DimensionPackaging:     70,
		},
	}

	cfg := config.AnalysisConfig{FallbackScoreFloor: 50, MaxCompareCountries: 5}
	evaluator := NewComplianceEvaluator(s.judge, cfg.FallbackScoreFloor)
	recommender := NewRecommendationService(s.ai)
	regulations := NewRegulationService(db)
	guides := NewGuideService(db, s.ai)
	s.service = NewAnalysisService(db, evaluator, recommender, regulations, guides, cfg)
}

func (s *AnalysisServiceTestSuite) seed() {
	s.owner = models.User{Email: "owner@example.com", Role: models.UserRoleUMKM, Status: models.UserStatusActive, PasswordHash: "x"}
	s.stranger = models.User{Email: "stranger@example.com", Role: models.UserRoleUMKM, Status: models.UserStatusActive, PasswordHash: "x"}
	s.admin = models.User{Email: "admin@example.com", Role: models.UserRoleAdmin, Status: models.UserStatusActive, PasswordHash: "x"}
	s.Require().NoError(s.db.Create(&s.owner).Error)
	s.Require().NoError(s.db.Create(&s.stranger).Error)
	s.Require().NoError(s.db.Create(&s.admin).Error)

	ownerProfile := models.BusinessProfile{UserID: s.owner.ID, BusinessName: "Rotan Jaya"}
	strangerProfile := models.BusinessProfile{UserID: s.stranger.ID, BusinessName: "Lain Corp"}
	s.Require().NoError(s.db.Create(&ownerProfile).Error)
	s.Require().NoError(s.db.Create(&strangerProfile).Error)

	s.product = models.Product{
		BusinessProfileID:   ownerProfile.ID,
		NameLocal:           "Keranjang Rotan",
		MaterialComposition: "rattan",
		Ingredients:         pq.StringArray{"rattan", "lacquer"},
		PackagingType:       "cardboard box",
		QualitySpecs:        models.JSONB{"moisture": "12%"},
	}
	s.Require().NoError(s.db.Create(&s.product).Error)

	enrichment := models.ProductEnrichment{
		ProductID:     s.product.ID,
		HSCode:        "4602.12",
		ProductNameEN: "Rattan Basket",
	}
	s.Require().NoError(s.db.Create(&enrichment).Error)

	s.bare = models.Product{
		BusinessProfileID: ownerProfile.ID,
		NameLocal:         "Tanpa Enrichment",
	}
	s.Require().NoError(s.db.Create(&s.bare).Error)

	countries := []models.Country{
		{CountryCode: "US", CountryName: "United States", Region: "Americas"},
		{CountryCode: "JP", CountryName: "Japan", Region: "Asia"},
	}
	s.Require().NoError(s.db.Create(&countries).Error)

	rules := []models.RegulationRule{
		{CountryCode: "US", RuleCategory: models.RuleCategoryIngredientBan, ForbiddenKeywords: "borax"},
		{CountryCode: "US", RuleCategory: models.RuleCategoryPackagingStandard, RequiredSpecs: "ISPM-15"},
		{CountryCode: "JP", RuleCategory: models.RuleCategoryQualityStandard, RequiredSpecs: "JIS moisture"},
	}
	s.Require().NoError(s.db.Create(&rules).Error)
}

func (s *AnalysisServiceTestSuite) ownerActor() Actor {
	return Actor{UserID: s.owner.ID, Role: models.UserRoleUMKM}
}

func (s *AnalysisServiceTestSuite) strangerActor() Actor {
	return Actor{UserID: s.stranger.ID, Role: models.UserRoleUMKM}
}

func (s *AnalysisServiceTestSuite) adminActor() Actor {
	return Actor{UserID: s.admin.ID, Role: models.UserRoleAdmin}
}

func (s *AnalysisServiceTestSuite) TestCreateAnalysis() {
	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "us")
	s.Require().NoError(err)

	// 0.40*90 + 0.30*80 + 0.30*70
	s.Equal(81, analysis.ReadinessScore)
	s.Equal(models.StatusGradeHigh, analysis.StatusGrade)
	s.Equal("US", analysis.TargetCountryCode)
	s.True(analysis.ProductSnapshot.Valid())
	s.False(analysis.AnalyzedAt.IsZero())
	s.NotEmpty(analysis.Recommendations)
	s.Equal(models.JudgmentStatusPass, analysis.Judgments.Ingredient.Status)
}

func (s *AnalysisServiceTestSuite) TestCreateDuplicateIsConflict() {
	_, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	_, err = s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.ErrorIs(err, ErrAnalysisExists)
}

func (s *AnalysisServiceTestSuite) TestCreateRequiresEnrichment() {
	_, err := s.service.Create(context.Background(), s.ownerActor(), s.bare.ID, "US")
	s.ErrorIs(err, ErrEnrichmentRequired)
}

func (s *AnalysisServiceTestSuite) TestCreateUnknownCountry() {
	_, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "XX")
	s.ErrorIs(err, ErrCountryNotFound)
}

func (s *AnalysisServiceTestSuite) TestCreateUnknownProduct() {
	_, err := s.service.Create(context.Background(), s.ownerActor(), uuid.New(), "US")
	s.ErrorIs(err, ErrProductNotFound)
}

func (s *AnalysisServiceTestSuite) TestOwnershipChecks() {
	_, err := s.service.Create(context.Background(), s.strangerActor(), s.product.ID, "US")
	s.ErrorIs(err, ErrForbidden)

	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	_, err = s.service.Get(s.strangerActor(), analysis.ID)
	s.ErrorIs(err, ErrForbidden)

	// Admins reach everything.
	result, err := s.service.Get(s.adminActor(), analysis.ID)
	s.Require().NoError(err)
	s.Equal(analysis.ID, result.Analysis.ID)
}

func (s *AnalysisServiceTestSuite) TestCompletesWhenAllJudgmentsFail() {
	s.judge.failures = map[models.Dimension]error{
		models.DimensionIngredient:    &TransientError{Err: errors.New("down")},
		models.DimensionSpecification: &SchemaError{Reason: "garbage"},
		models.DimensionPackaging:     &TransientError{Err: errors.New("down")},
	}
	s.ai.err = &TransientError{Err: errors.New("down")}

	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	s.Equal(50, analysis.ReadinessScore)
	s.Equal(models.StatusGradeLow, analysis.StatusGrade)
	s.True(analysis.Judgments.Ingredient.Fallback)
	s.True(analysis.Judgments.Specification.Fallback)
	s.True(analysis.Judgments.Packaging.Fallback)
	s.NotEmpty(analysis.Recommendations)
}

func (s *AnalysisServiceTestSuite) TestGetReportsProductChange() {
	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	result, err := s.service.Get(s.ownerActor(), analysis.ID)
	s.Require().NoError(err)
	s.False(result.ProductChanged)
	s.Equal("Rattan Basket", result.SnapshotProductName)

	s.Require().NoError(s.db.Model(&s.product).Update("packaging_type", "wooden crate").Error)

	result, err = s.service.Get(s.ownerActor(), analysis.ID)
	s.Require().NoError(err)
	s.True(result.ProductChanged)

	// The frozen name survives live-product edits until a reanalysis.
	s.Require().NoError(s.db.Model(&s.product).Update("name_local", "Keranjang Baru").Error)
	result, err = s.service.Get(s.ownerActor(), analysis.ID)
	s.Require().NoError(err)
	s.Equal("Rattan Basket", result.SnapshotProductName)
}

func (s *AnalysisServiceTestSuite) TestReanalyzeRefreshesEverything() {
	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)
	s.Equal(81, analysis.ReadinessScore)

	// Warm the guide cache, then change the product and the verdicts.
	_, fromCache, err := s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "en")
	s.Require().NoError(err)
	s.False(fromCache)

	s.Require().NoError(s.db.Model(&s.product).Update("packaging_type", "wooden crate").Error)
	s.judge.scores[models.DimensionIngredient] = 50
	time.Sleep(10 * time.Millisecond)

	updated, err := s.service.Reanalyze(context.Background(), s.ownerActor(), analysis.ID)
	s.Require().NoError(err)

	// 0.40*50 + 0.30*80 + 0.30*70
	s.Equal(65, updated.ReadinessScore)
	s.Equal(models.StatusGradeMedium, updated.StatusGrade)
	s.Equal("wooden crate", updated.ProductSnapshot.PackagingType)
	s.True(updated.AnalyzedAt.After(analysis.AnalyzedAt))

	// Snapshot replacement drops the cached guides.
	result, err := s.service.Get(s.ownerActor(), analysis.ID)
	s.Require().NoError(err)
	s.Empty(result.Analysis.RegulationGuides)
	s.False(result.ProductChanged)

	_, fromCache, err = s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "en")
	s.Require().NoError(err)
	s.False(fromCache)
}

func (s *AnalysisServiceTestSuite) TestGuideCacheMissThenHit() {
	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	guide, fromCache, err := s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "en")
	s.Require().NoError(err)
	s.False(fromCache)
	s.True(guide.Complete())
	aiCallsAfterMiss := s.ai.calls

	guide, fromCache, err = s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "en")
	s.Require().NoError(err)
	s.True(fromCache)
	s.True(guide.Complete())
	s.Equal(aiCallsAfterMiss, s.ai.calls)

	// A different language is its own cache slot.
	_, fromCache, err = s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "id")
	s.Require().NoError(err)
	s.False(fromCache)
}

func (s *AnalysisServiceTestSuite) TestGuideFallbackIsNotCached() {
	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	s.ai.err = &TransientError{Err: errors.New("down")}

	guide, fromCache, err := s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "en")
	s.Require().NoError(err)
	s.False(fromCache)
	s.True(guide.Fallback)
	s.True(guide.Complete())

	// Recovery on the next request regenerates instead of serving the fallback.
	s.ai.err = nil
	guide, fromCache, err = s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "en")
	s.Require().NoError(err)
	s.False(fromCache)
	s.False(guide.Fallback)
}

func (s *AnalysisServiceTestSuite) TestCompareSharesOneSnapshot() {
	result, err := s.service.Compare(context.Background(), s.ownerActor(), s.product.ID, []string{"US", "JP"}, false)
	s.Require().NoError(err)
	s.Require().Len(result.Entries, 2)

	// Requested order is preserved.
	s.Equal("US", result.Entries[0].CountryCode)
	s.Equal("JP", result.Entries[1].CountryCode)
	s.False(result.Entries[0].Reused)
	s.False(result.Entries[1].Reused)
	s.NotEqual(uuid.Nil, result.Entries[0].AnalysisID)

	// Both persisted analyses carry the identical frozen snapshot.
	var stored []models.ExportAnalysis
	s.Require().NoError(s.db.Order("target_country_code").Find(&stored).Error)
	s.Require().Len(stored, 2)
	s.Equal(stored[0].ProductSnapshot.SnapshotCreatedAt, stored[1].ProductSnapshot.SnapshotCreatedAt)
}

func (s *AnalysisServiceTestSuite) TestCompareReusesExistingAnalyses() {
	first, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)
	s.Equal(81, first.ReadinessScore)

	s.judge.scores[models.DimensionIngredient] = 40

	result, err := s.service.Compare(context.Background(), s.ownerActor(), s.product.ID, []string{"US", "JP"}, false)
	s.Require().NoError(err)

	// US is served from the stored analysis, JP is computed fresh.
	s.True(result.Entries[0].Reused)
	s.Equal(81, result.Entries[0].ReadinessScore)
	s.Equal(first.ID, result.Entries[0].AnalysisID)
	s.False(result.Entries[1].Reused)
	s.Equal(61, result.Entries[1].ReadinessScore)

	s.Equal("US", result.BestCountryCode)
}

func (s *AnalysisServiceTestSuite) TestCompareForceRefreshRecomputes() {
	first, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	s.judge.scores[models.DimensionIngredient] = 40

	result, err := s.service.Compare(context.Background(), s.ownerActor(), s.product.ID, []string{"US"}, true)
	s.Require().NoError(err)
	s.False(result.Entries[0].Reused)
	s.Equal(61, result.Entries[0].ReadinessScore)
	s.Equal(first.ID, result.Entries[0].AnalysisID)

	var stored models.ExportAnalysis
	s.Require().NoError(s.db.First(&stored, "id = ?", first.ID).Error)
	s.Equal(61, stored.ReadinessScore)
	s.Empty(stored.RegulationGuides)
}

func (s *AnalysisServiceTestSuite) TestCompareValidation() {
	_, err := s.service.Compare(context.Background(), s.ownerActor(), s.product.ID, nil, false)
	s.ErrorIs(err, ErrNoCountries)

	codes := []string{"US", "JP", "SG", "AU", "DE", "NL"}
	_, err = s.service.Compare(context.Background(), s.ownerActor(), s.product.ID, codes, false)
	s.ErrorIs(err, ErrTooManyCountries)

	_, err = s.service.Compare(context.Background(), s.ownerActor(), s.product.ID, []string{"US", "XX"}, false)
	s.ErrorIs(err, ErrCountryNotFound)

	// Duplicates collapse before the cap is applied.
	result, err := s.service.Compare(context.Background(), s.ownerActor(), s.product.ID, []string{"US", "us", "US"}, false)
	s.Require().NoError(err)
	s.Len(result.Entries, 1)
}

func (s *AnalysisServiceTestSuite) TestListAndFilters() {
	_, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)
	s.judge.scores[models.DimensionIngredient] = 40
	_, err = s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "JP")
	s.Require().NoError(err)

	analyses, total, err := s.service.List(s.ownerActor(), ListAnalysesParams{})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(analyses, 2)

	_, total, err = s.service.List(s.ownerActor(), ListAnalysesParams{CountryCode: "jp"})
	s.Require().NoError(err)
	s.Equal(int64(1), total)

	min := 70
	_, total, err = s.service.List(s.ownerActor(), ListAnalysesParams{MinScore: &min})
	s.Require().NoError(err)
	s.Equal(int64(1), total)

	_, total, err = s.service.List(s.ownerActor(), ListAnalysesParams{Search: "keranjang"})
	s.Require().NoError(err)
	s.Equal(int64(2), total)

	// Strangers see nothing, admins see everything.
	_, total, err = s.service.List(s.strangerActor(), ListAnalysesParams{})
	s.Require().NoError(err)
	s.Equal(int64(0), total)

	_, total, err = s.service.List(s.adminActor(), ListAnalysesParams{})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
}

func (s *AnalysisServiceTestSuite) TestDeleteAnalysis() {
	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(s.ownerActor(), analysis.ID))

	_, err = s.service.Get(s.ownerActor(), analysis.ID)
	s.ErrorIs(err, ErrAnalysisNotFound)
}

func (s *AnalysisServiceTestSuite) TestStaleGuideWriteLosesToReanalysis() {
	analysis, err := s.service.Create(context.Background(), s.ownerActor(), s.product.ID, "US")
	s.Require().NoError(err)

	// Load the row the way a slow guide request would, then refresh the
	// analysis underneath it before the guide write lands.
	var stale models.ExportAnalysis
	s.Require().NoError(s.db.First(&stale, "id = ?", analysis.ID).Error)

	_, err = s.service.Reanalyze(context.Background(), s.ownerActor(), analysis.ID)
	s.Require().NoError(err)

	guides := NewGuideService(s.db, s.ai)
	guide, fromCache, err := guides.GetOrGenerate(context.Background(), &stale, "en")
	s.Require().NoError(err)
	s.False(fromCache)
	s.False(guide.Fallback)

	// The guide built against the discarded snapshot is served but must not
	// repopulate the cache the reanalysis cleared.
	var current models.ExportAnalysis
	s.Require().NoError(s.db.First(&current, "id = ?", analysis.ID).Error)
	s.Empty(current.RegulationGuides)

	// The next request off the fresh row caches normally.
	_, fromCache, err = s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "en")
	s.Require().NoError(err)
	s.False(fromCache)
	_, fromCache, err = s.service.GetGuide(context.Background(), s.ownerActor(), analysis.ID, "en")
	s.Require().NoError(err)
	s.True(fromCache)
}

func TestAnalysisServiceSuite(t *testing.T) {
	suite.Run(t, new(AnalysisServiceTestSuite))
}

func TestRowLockByDialect(t *testing.T) {
	base, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := base.DB()
	require.NoError(t, err)

	// Statement building only; nothing executes against the connection.
	pg, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	stmt := rowLock(pg).Where("id = ?", uuid.New()).Find(&models.ExportAnalysis{}).Statement
	assert.Contains(t, stmt.SQL.String(), "FOR UPDATE")

	lite := base.Session(&gorm.Session{DryRun: true})
	stmt = rowLock(lite).Where("id = ?", uuid.New()).Find(&models.ExportAnalysis{}).Statement
	assert.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
}
