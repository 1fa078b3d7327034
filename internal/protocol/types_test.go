package protocol

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() *DiagnosisRecord {
	return &DiagnosisRecord{
		Component:       "Brakes",
		Diagnosis:       "Brake Pad Wear - Front Axle",
		ConfidenceScore: 0.87,
		Severity:        SeverityMedium,
		UrgencyLevel:    UrgencyMonth,
		EstimatedCost:   420,
		Recommendations: []string{"Replace brake pads within 1 month", "Check brake fluid level"},
	}
}

func TestDiagnosisRecordDecode(t *testing.T) {
	body := `{
		"id": "9b1c",
		"audio_filename": "recording.wav",
		"component": "Engine",
		"diagnosis": "Timing Belt Wear Detected",
		"confidence_score": 0.91,
		"severity": "high",
		"urgency_level": "week",
		"estimated_cost": 950.5,
		"recommendations": ["a", "b", "c"],
		"created_at": "2026-10-18T09:12:44.123456"
	}`

	var r DiagnosisRecord
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	require.NoError(t, r.Validate())
	assert.Equal(t, SeverityHigh, r.Severity)
	assert.Equal(t, UrgencyWeek, r.UrgencyLevel)
	assert.Equal(t, []string{"a", "b", "c"}, r.Recommendations)
}

func TestDiagnosisRecordValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *DiagnosisRecord)
		ok     bool
	}{
		{"valid", func(r *DiagnosisRecord) {}, true},
		{"confidence above one", func(r *DiagnosisRecord) { r.ConfidenceScore = 1.2 }, false},
		{"confidence NaN", func(r *DiagnosisRecord) { r.ConfidenceScore = math.NaN() }, false},
		{"unknown severity", func(r *DiagnosisRecord) { r.Severity = "severe" }, false},
		{"unknown urgency", func(r *DiagnosisRecord) { r.UrgencyLevel = "tomorrow" }, false},
		{"negative cost", func(r *DiagnosisRecord) { r.EstimatedCost = -1 }, false},
		{"empty component", func(r *DiagnosisRecord) { r.Component = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			if tt.ok {
				assert.NoError(t, r.Validate())
			} else {
				assert.Error(t, r.Validate())
			}
		})
	}
}

func TestWithExplanationCopies(t *testing.T) {
	r := validRecord()
	c := r.WithExplanation("spectral peak near 8kHz")

	assert.Empty(t, r.Explanation)
	assert.Equal(t, "spectral peak near 8kHz", c.Explanation)
	c.Recommendations[0] = "changed"
	assert.Equal(t, "Replace brake pads within 1 month", r.Recommendations[0])
}

func TestHealthSnapshotValidate(t *testing.T) {
	s := &HealthSnapshot{HealthScores: HealthScores{OverallScore: 80, EngineHealth: 90, BrakeHealth: 65, TransmissionHealth: 77, ExhaustHealth: 70}}
	assert.NoError(t, s.Validate())

	s.HealthScores.BrakeHealth = 101
	assert.Error(t, s.Validate())
}

func TestSeverityRankAndBands(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityCritical.Rank())
	assert.Equal(t, -1, Severity("unknown").Rank())
	assert.Equal(t, "THIS WEEK", UrgencyWeek.Label())
	assert.Equal(t, "MONITOR", Urgency("").Label())
	assert.Equal(t, "good", HealthBand(85))
	assert.Equal(t, "fair", HealthBand(70))
	assert.Equal(t, "poor", HealthBand(69))
}
