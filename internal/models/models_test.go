package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.Rank() > SeverityHigh.Rank())
	assert.True(t, SeverityHigh.Rank() > SeverityMedium.Rank())
	assert.True(t, SeverityMedium.Rank() > SeverityLow.Rank())

	assert.True(t, SeverityHigh.AtLeast(SeverityMedium))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))
	assert.False(t, Severity("urgent").AtLeast(SeverityLow))
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity("critical")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, s)

	_, err = ParseSeverity("CRITICAL")
	assert.Error(t, err)
}

func TestRiskLevelRank(t *testing.T) {
	assert.True(t, RiskHigh.Rank() > RiskMedium.Rank())
	assert.True(t, RiskMedium.Rank() > RiskLow.Rank())
	assert.False(t, RiskLevel("extreme").Valid())
}

func TestPendingActionStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusExecuting.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestEventDecode(t *testing.T) {
	raw := `{"specversion":"1.0","id":"e-1","source":"rmn.demand","type":"demand.spike.detected",
		"time":"2026-03-01T10:00:00Z","data":{"deviation_pct":150}}`

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	assert.Equal(t, "rmn.demand/e-1", ev.Key())
	require.NotNil(t, ev.Time)
	assert.Equal(t, 2026, ev.Time.Year())
	assert.Equal(t, float64(150), ev.Data["deviation_pct"])
}
