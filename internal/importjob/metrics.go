package importjob

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Traffic tiers by monthly visits.
const (
	TierUnknown    = "unknown"
	TierMicro      = "micro"
	TierSmall      = "small"
	TierMedium     = "medium"
	TierLarge      = "large"
	TierEnterprise = "enterprise"
)

// Rates drives the lead and revenue estimates shown in reports.
type Rates struct {
	// IdentifyRate is the share of visitors that can be identified.
	IdentifyRate float64
	// LeadConversionRate is the share of identified visitors that become leads.
	LeadConversionRate float64
	// AvgDealValue is the revenue of one converted lead.
	AvgDealValue float64
}

// Metrics are the derived sizing attributes of a target.
type Metrics struct {
	TrafficTier      string
	CompanySize      string
	EstimatedLeads   int64
	EstimatedRevenue decimal.Decimal
}

type band struct {
	below int64
	tier  string
	size  string
}

var bands = []band{
	{below: 1_000, tier: TierMicro, size: "1-10"},
	{below: 10_000, tier: TierSmall, size: "11-50"},
	{below: 50_000, tier: TierMedium, size: "51-200"},
	{below: 250_000, tier: TierLarge, size: "201-500"},
}

// ComputeMetrics derives tier, size and monthly estimates from visits.
// Revenue is rounded to cents. Zero visits means the figures are unknown.
func ComputeMetrics(visits int64, r Rates) Metrics {
	if visits <= 0 {
		return Metrics{TrafficTier: TierUnknown, CompanySize: TierUnknown, EstimatedRevenue: decimal.Zero}
	}
	m := Metrics{TrafficTier: TierEnterprise, CompanySize: "500+"}
	for _, b := range bands {
		if visits < b.below {
			m.TrafficTier, m.CompanySize = b.tier, b.size
			break
		}
	}

	leads := decimal.NewFromInt(visits).
		Mul(decimal.NewFromFloat(r.IdentifyRate)).
		Mul(decimal.NewFromFloat(r.LeadConversionRate)).
		Round(0)
	m.EstimatedLeads = leads.IntPart()
	m.EstimatedRevenue = leads.Mul(decimal.NewFromFloat(r.AvgDealValue)).Round(2)
	return m
}

// DisplayName tidies a company name from the upload. Names typed entirely
// in one case are title-cased; mixed-case names are kept as written.
func DisplayName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return ""
	}
	if name == strings.ToLower(name) || name == strings.ToUpper(name) {
		return cases.Title(language.English).String(name)
	}
	return name
}

// NormalizeIndustry lowercases the industry column. A blank column stays
// blank so a re-import never clobbers an industry set by enrichment.
func NormalizeIndustry(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "-")
}
