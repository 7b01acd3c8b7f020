package importjob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeMetrics(t *testing.T) {
	rates := Rates{IdentifyRate: 0.2, LeadConversionRate: 0.02, AvgDealValue: 2500}
	tests := []struct {
		name    string
		visits  int64
		tier    string
		size    string
		leads   int64
		revenue string
	}{
		{"unknown", 0, TierUnknown, TierUnknown, 0, "0.00"},
		{"micro", 999, TierMicro, "1-10", 4, "10000.00"},
		{"small", 1_000, TierSmall, "11-50", 4, "10000.00"},
		{"medium", 12_000, TierMedium, "51-200", 48, "120000.00"},
		{"large", 100_000, TierLarge, "201-500", 400, "1000000.00"},
		{"enterprise", 250_000, TierEnterprise, "500+", 1000, "2500000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ComputeMetrics(tt.visits, rates)
			assert.Equal(t, tt.tier, m.TrafficTier)
			assert.Equal(t, tt.size, m.CompanySize)
			assert.Equal(t, tt.leads, m.EstimatedLeads)
			assert.Equal(t, tt.revenue, m.EstimatedRevenue.StringFixed(2))
		})
	}
}

func TestComputeMetrics_RoundsRevenueToCents(t *testing.T) {
	m := ComputeMetrics(5_000, Rates{IdentifyRate: 0.1, LeadConversionRate: 0.03, AvgDealValue: 99.995})
	assert.Equal(t, int64(15), m.EstimatedLeads)
	assert.Equal(t, "1499.93", m.EstimatedRevenue.StringFixed(2))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "", DisplayName("   "))
	assert.Equal(t, "Acme Plumbing", DisplayName("acme   plumbing"))
	assert.Equal(t, "Acme Plumbing", DisplayName("ACME PLUMBING"))
	assert.Equal(t, "McAllister HVAC", DisplayName("McAllister HVAC"))
}

func TestNormalizeIndustry(t *testing.T) {
	assert.Equal(t, "", NormalizeIndustry(" "))
	assert.Equal(t, "real-estate", NormalizeIndustry("Real Estate"))
}
