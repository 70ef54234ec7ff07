// internal/services/guide_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/exportready/backend/internal/models"
)

// GuideService produces the ten-section regulation guide for an analysis and
// manages its per-language cache slot on the analysis row. Cached guides live
// as long as the snapshot they were generated against; reanalysis clears the
// whole cache.
type GuideService struct {
	db *gorm.DB
	ai AIClient
}

func NewGuideService(db *gorm.DB, ai AIClient) *GuideService {
	return &GuideService{db: db, ai: ai}
}

const guideSystemPrompt = `You are an export-regulation researcher writing a country guide for an Indonesian small producer.
Produce a ten-section guide covering the destination country's import regime for the given product.

RULES:
- Sections, in order, with these exact keys: overview, prohibited_items, import_restrictions, certifications, labeling_requirements, customs_procedures, testing_inspection, intellectual_property, shipping_logistics, timeline_costs.
- Each section: {"key": "...", "title": "...", "summary": "...", "key_points": ["..."], "action_items": ["..."]}.
- Write in the requested language.
- Output MUST be a single JSON object: {"sections": [ ...ten sections... ]}.
- Output ONLY the JSON object, no additional text.`

// GetOrGenerate returns the guide for the analysis in the given language,
// serving from the cache slot when a complete guide is already stored. The
// bool result reports a cache hit. Fallback guides are returned but never
// cached, so the next request retries generation.
func (s *GuideService) GetOrGenerate(ctx context.Context, analysis *models.ExportAnalysis, language string) (*models.RegulationGuide, bool, error) {
	language = normalizeLanguage(language)

	if cached, ok := analysis.RegulationGuides[language]; ok && cached.Complete() {
		return &cached, true, nil
	}

	guide, err := s.generate(ctx, analysis, language)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"analysis_id": analysis.ID,
			"country":     analysis.TargetCountryCode,
			"language":    language,
			"error":       err.Error(),
		}).Warn("Guide generation failed, using fallback")
		fallback := FallbackGuide(analysis.TargetCountryCode, countryDisplayName(analysis), language)
		return &fallback, false, nil
	}

	if analysis.RegulationGuides == nil {
		analysis.RegulationGuides = models.GuideCache{}
	}
	analysis.RegulationGuides[language] = *guide

	// The analyzed_at condition keeps a slow generation from re-pinning a
	// guide after a reanalysis replaced the snapshot and cleared the cache.
	res := s.db.Model(analysis).
		Where("analyzed_at = ?", analysis.AnalyzedAt).
		Update("regulation_guide_cache", analysis.RegulationGuides)
	switch {
	case res.Error != nil:
		// Serving the fresh guide matters more than caching it.
		logrus.WithField("analysis_id", analysis.ID).WithError(res.Error).Warn("Failed to persist guide cache")
	case res.RowsAffected == 0:
		logrus.WithFields(logrus.Fields{
			"analysis_id": analysis.ID,
			"language":    language,
		}).Warn("Guide cache not persisted, analysis was refreshed concurrently")
	}

	return guide, false, nil
}

func (s *GuideService) generate(ctx context.Context, analysis *models.ExportAnalysis, language string) (*models.RegulationGuide, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Destination country: %s (%s)\n", countryDisplayName(analysis), analysis.TargetCountryCode)
	fmt.Fprintf(&b, "Product: %s\n", analysis.SnapshotProductName())
	if analysis.ProductSnapshot.Valid() {
		fmt.Fprintf(&b, "Material composition: %s\n", analysis.ProductSnapshot.MaterialComposition)
		fmt.Fprintf(&b, "Packaging: %s\n", analysis.ProductSnapshot.PackagingType)
	}
	fmt.Fprintf(&b, "Language: %s\n", languageName(language))

	response, err := s.ai.Chat(ctx, guideSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	return parseGuide(analysis.TargetCountryCode, language, response)
}

func parseGuide(countryCode, language, response string) (*models.RegulationGuide, error) {
	match := jsonObjectPattern.FindString(response)
	if match == "" {
		return nil, &SchemaError{Reason: "no JSON object in guide response"}
	}

	var raw struct {
		Sections []models.GuideSection `json:"sections"`
	}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, &SchemaError{Reason: "guide is not valid JSON"}
	}

	byKey := make(map[string]models.GuideSection, len(raw.Sections))
	for _, section := range raw.Sections {
		byKey[section.Key] = section
	}

	guide := &models.RegulationGuide{
		Language:    language,
		CountryCode: countryCode,
		GeneratedAt: time.Now().UTC(),
		Sections:    make([]models.GuideSection, 0, len(models.GuideSectionKeys)),
	}
	for _, key := range models.GuideSectionKeys {
		section, ok := byKey[key]
		if !ok || strings.TrimSpace(section.Summary) == "" {
			return nil, &SchemaError{Reason: fmt.Sprintf("guide section %q missing or empty", key)}
		}
		guide.Sections = append(guide.Sections, section)
	}

	return guide, nil
}

func normalizeLanguage(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "id":
		return "id"
	default:
		return "en"
	}
}

func languageName(language string) string {
	if language == "id" {
		return "Bahasa Indonesia"
	}
	return "English"
}

func countryDisplayName(analysis *models.ExportAnalysis) string {
	if analysis.TargetCountry.CountryName != "" {
		return analysis.TargetCountry.CountryName
	}
	return analysis.TargetCountryCode
}

type guideTemplateSection struct {
	title   string
	summary string
	points  []string
}

var guideTemplates = map[string]map[string]guideTemplateSection{
	"en": {
		"overview":              {"Overview", "General import profile for %s: market entry routes, the authorities involved, and what first-time exporters should expect.", []string{"Confirm your HS code before anything else", "Import duty and tax rates depend on the HS classification"}},
		"prohibited_items":      {"Prohibited Items", "Categories of goods %s bans or restricts at the border. Verify none of your materials fall under a ban.", []string{"Check banned substances lists for your raw materials", "Animal- and plant-derived inputs often need extra permits"}},
		"import_restrictions":   {"Import Restrictions", "Quotas, licensing requirements, and conditional-entry rules that may apply to your product category in %s.", []string{"Some categories require an import license held by the buyer", "Quota-managed goods need allocation before shipping"}},
		"certifications":        {"Certifications", "Product certifications and conformity marks commonly required to sell in %s.", []string{"Identify the mandatory conformity scheme for your category", "Factory or process audits may be part of certification"}},
		"labeling_requirements": {"Labeling Requirements", "Language, content, and placement rules for labels on products entering %s.", []string{"Labels usually must be in the destination market language", "Declare origin, materials, and care or usage instructions"}},
		"customs_procedures":    {"Customs Procedures", "Declaration documents and clearance steps at the %s border.", []string{"Prepare commercial invoice, packing list, and certificate of origin", "A licensed customs broker speeds up first shipments"}},
		"testing_inspection":    {"Testing and Inspection", "Pre-shipment or at-border testing regimes %s applies to consumer goods.", []string{"Keep lab test reports for regulated attributes", "Random border inspection can hold a shipment for weeks"}},
		"intellectual_property": {"Intellectual Property", "Trademark and design protection considerations before entering %s.", []string{"Register your brand before your distributor does", "Check your product name is not already a local mark"}},
		"shipping_logistics":    {"Shipping and Logistics", "Freight options, transit expectations, and packaging-for-transport norms on the route to %s.", []string{"Compare sea LCL against air freight for your volumes", "Wood packaging must be ISPM-15 treated"}},
		"timeline_costs":        {"Timeline and Costs", "Typical lead times and cost lines for a first export shipment to %s.", []string{"Budget for duties, broker fees, and certification costs", "Allow extra weeks for first-time document corrections"}},
	},
	"id": {
		"overview":              {"Gambaran Umum", "Profil impor umum untuk %s: jalur masuk pasar, otoritas yang terlibat, dan hal yang perlu diantisipasi eksportir pemula.", []string{"Pastikan kode HS produk Anda terlebih dahulu", "Tarif bea masuk dan pajak bergantung pada klasifikasi HS"}},
		"prohibited_items":      {"Barang Terlarang", "Kategori barang yang dilarang atau dibatasi %s di perbatasan. Pastikan bahan baku Anda tidak termasuk.", []string{"Periksa daftar bahan terlarang untuk bahan baku Anda", "Bahan asal hewan dan tumbuhan sering butuh izin tambahan"}},
		"import_restrictions":   {"Pembatasan Impor", "Kuota, persyaratan lisensi, dan aturan masuk bersyarat yang mungkin berlaku untuk kategori produk Anda di %s.", []string{"Beberapa kategori memerlukan lisensi impor dari pembeli", "Barang berkuota perlu alokasi sebelum pengiriman"}},
		"certifications":        {"Sertifikasi", "Sertifikasi produk dan tanda kesesuaian yang umum disyaratkan untuk berjualan di %s.", []string{"Identifikasi skema kesesuaian wajib untuk kategori Anda", "Audit pabrik bisa menjadi bagian dari sertifikasi"}},
		"labeling_requirements": {"Persyaratan Label", "Aturan bahasa, isi, dan penempatan label untuk produk yang masuk ke %s.", []string{"Label umumnya harus dalam bahasa pasar tujuan", "Cantumkan asal, bahan, dan petunjuk perawatan atau pemakaian"}},
		"customs_procedures":    {"Prosedur Kepabeanan", "Dokumen deklarasi dan tahapan pengeluaran barang di perbatasan %s.", []string{"Siapkan invoice, packing list, dan surat keterangan asal", "Broker kepabeanan berlisensi mempercepat pengiriman pertama"}},
		"testing_inspection":    {"Pengujian dan Inspeksi", "Rezim pengujian pra-pengiriman atau di perbatasan yang diterapkan %s untuk barang konsumen.", []string{"Simpan laporan uji laboratorium untuk atribut yang diatur", "Inspeksi acak di perbatasan dapat menahan kiriman berminggu-minggu"}},
		"intellectual_property": {"Kekayaan Intelektual", "Pertimbangan perlindungan merek dan desain sebelum masuk ke %s.", []string{"Daftarkan merek Anda sebelum distributor melakukannya", "Pastikan nama produk Anda belum menjadi merek lokal"}},
		"shipping_logistics":    {"Pengiriman dan Logistik", "Pilihan kargo, perkiraan transit, dan norma kemasan transportasi pada rute ke %s.", []string{"Bandingkan LCL laut dengan kargo udara untuk volume Anda", "Kemasan kayu wajib perlakuan ISPM-15"}},
		"timeline_costs":        {"Waktu dan Biaya", "Perkiraan waktu dan komponen biaya untuk pengiriman ekspor pertama ke %s.", []string{"Anggarkan bea masuk, jasa broker, dan biaya sertifikasi", "Sediakan waktu ekstra untuk koreksi dokumen pertama kali"}},
	},
}

// FallbackGuide builds the deterministic ten-section guide used when
// generation fails. It honors the same section contract as a generated guide.
func FallbackGuide(countryCode, countryName, language string) models.RegulationGuide {
	language = normalizeLanguage(language)
	templates := guideTemplates[language]

	guide := models.RegulationGuide{
		Language:    language,
		CountryCode: countryCode,
		GeneratedAt: time.Now().UTC(),
		Fallback:    true,
		Sections:    make([]models.GuideSection, 0, len(models.GuideSectionKeys)),
	}
	for _, key := range models.GuideSectionKeys {
		tpl := templates[key]
		guide.Sections = append(guide.Sections, models.GuideSection{
			Key:       key,
			Title:     tpl.title,
			Summary:   fmt.Sprintf(tpl.summary, countryName),
			KeyPoints: copySection(tpl.points),
		})
	}
	return guide
}

func copySection(points []string) []string {
	out := make([]string, len(points))
	copy(out, points)
	return out
}
