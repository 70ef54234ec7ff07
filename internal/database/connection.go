// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/exportready/backend/internal/config"
	"github.com/exportready/backend/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established successfully")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.User{},
		&models.BusinessProfile{},
		&models.Product{},
		&models.ProductEnrichment{},
		&models.Country{},
		&models.RegulationRule{},
		&models.ExportAnalysis{},
		&models.AuditLog{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_role_status ON users(role, status)",

		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_business ON products(business_profile_id)",
		"CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC)",

		// Regulation indexes
		"CREATE INDEX IF NOT EXISTS idx_regulation_rules_country ON regulation_rules(country_code, rule_category)",

		// Analysis indexes
		"CREATE INDEX IF NOT EXISTS idx_export_analyses_product ON export_analyses(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_export_analyses_country ON export_analyses(target_country_code)",
		"CREATE INDEX IF NOT EXISTS idx_export_analyses_score ON export_analyses(readiness_score)",
		"CREATE INDEX IF NOT EXISTS idx_export_analyses_analyzed ON export_analyses(analyzed_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).Warnf("Failed to create index: %s", index)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// SeedCountries loads the country master data and a starter regulation set
// when the countries table is empty.
func SeedCountries(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Country{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count countries: %w", err)
	}
	if count > 0 {
		return nil
	}

	logrus.Info("Seeding country master data...")

	countries := []models.Country{
		{CountryCode: "US", CountryName: "United States", Region: "North America"},
		{CountryCode: "JP", CountryName: "Japan", Region: "East Asia"},
		{CountryCode: "SG", CountryName: "Singapore", Region: "Southeast Asia"},
		{CountryCode: "AU", CountryName: "Australia", Region: "Oceania"},
		{CountryCode: "DE", CountryName: "Germany", Region: "Europe"},
		{CountryCode: "NL", CountryName: "Netherlands", Region: "Europe"},
		{CountryCode: "AE", CountryName: "United Arab Emirates", Region: "Middle East"},
		{CountryCode: "KR", CountryName: "South Korea", Region: "East Asia"},
		{CountryCode: "MY", CountryName: "Malaysia", Region: "Southeast Asia"},
		{CountryCode: "SA", CountryName: "Saudi Arabia", Region: "Middle East"},
	}

	if err := db.Create(&countries).Error; err != nil {
		return fmt.Errorf("failed to seed countries: %w", err)
	}

	rules := []models.RegulationRule{
		{
			CountryCode:       "US",
			RuleCategory:      models.RuleCategoryIngredientBan,
			ForbiddenKeywords: "Rhodamine B, Borax, Formalin",
			Description:       "FDA prohibits non-food-grade colorants and preservatives in consumable goods.",
		},
		{
			CountryCode:   "US",
			RuleCategory:  models.RuleCategoryQualityStandard,
			RequiredSpecs: "Allergen Info, Nutrition Facts, Net Weight",
			Description:   "FDA labeling rules require allergen and nutrition declarations.",
		},
		{
			CountryCode:   "US",
			RuleCategory:  models.RuleCategoryPackagingStandard,
			RequiredSpecs: "Food-grade packaging, Tamper-evident seal",
			Description:   "Consumable imports must use food-contact-safe packaging.",
		},
		{
			CountryCode:       "AU",
			RuleCategory:      models.RuleCategoryPackagingStandard,
			RequiredSpecs:     "ISPM-15",
			ForbiddenKeywords: "Untreated wood",
			Description:       "Wood packaging must carry ISPM-15 heat-treatment certification.",
		},
		{
			CountryCode:       "JP",
			RuleCategory:      models.RuleCategoryIngredientBan,
			ForbiddenKeywords: "Non-RSPO palm oil derivatives",
			Description:       "Importers require RSPO chain-of-custody for palm oil content.",
		},
		{
			CountryCode:   "SG",
			RuleCategory:  models.RuleCategoryQualityStandard,
			RequiredSpecs: "Shelf Life, Storage Conditions",
			Description:   "SFA requires declared shelf life and storage conditions for food imports.",
		},
	}

	if err := db.Create(&rules).Error; err != nil {
		return fmt.Errorf("failed to seed regulation rules: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"countries": len(countries),
		"rules":     len(rules),
	}).Info("Country master data seeded")

	return nil
}
