// Package protocol holds the wire types exchanged with the analysis service
// and the browser bridge.
package protocol

import (
	"fmt"
	"math"
	"slices"
)

// Severity of a diagnosis or alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Urgency says how soon a diagnosed problem should be handled.
type Urgency string

const (
	UrgencyMonitoring Urgency = "monitoring"
	UrgencyMonth      Urgency = "month"
	UrgencyWeek       Urgency = "week"
	UrgencyImmediate  Urgency = "immediate"
)

var (
	severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	urgencies  = []Urgency{UrgencyMonitoring, UrgencyMonth, UrgencyWeek, UrgencyImmediate}
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return slices.Contains(severities, s) }

// Rank orders severities from 0 (low) to 3 (critical); unknown is -1.
func (s Severity) Rank() int { return slices.Index(severities, s) }

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool { return slices.Contains(urgencies, u) }

// Label is the badge text shown next to a diagnosis.
func (u Urgency) Label() string {
	switch u {
	case UrgencyImmediate:
		return "IMMEDIATE"
	case UrgencyWeek:
		return "THIS WEEK"
	case UrgencyMonth:
		return "THIS MONTH"
	default:
		return "MONITOR"
	}
}

// DiagnosisRecord is the analysis result for one submitted audio sample.
// Records are immutable once published; WithExplanation returns a copy.
type DiagnosisRecord struct {
	ID              string   `json:"id,omitempty"`
	AudioFilename   string   `json:"audio_filename,omitempty"`
	Component       string   `json:"component"`
	Diagnosis       string   `json:"diagnosis"`
	ConfidenceScore float64  `json:"confidence_score"`
	Severity        Severity `json:"severity"`
	UrgencyLevel    Urgency  `json:"urgency_level"`
	EstimatedCost   float64  `json:"estimated_cost"`
	Recommendations []string `json:"recommendations"`
	CreatedAt       string   `json:"created_at,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
}

// Validate checks the ranges and enumerations of a record received from
// the service.
func (r *DiagnosisRecord) Validate() error {
	if r.Component == "" {
		return fmt.Errorf("diagnosis record: empty component")
	}
	if math.IsNaN(r.ConfidenceScore) || r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("diagnosis record: confidence_score %g outside [0,1]", r.ConfidenceScore)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("diagnosis record: unknown severity %q", r.Severity)
	}
	if !r.UrgencyLevel.Valid() {
		return fmt.Errorf("diagnosis record: unknown urgency_level %q", r.UrgencyLevel)
	}
	if math.IsNaN(r.EstimatedCost) || r.EstimatedCost < 0 {
		return fmt.Errorf("diagnosis record: estimated_cost %g is negative", r.EstimatedCost)
	}
	return nil
}

// WithExplanation returns a copy of r carrying the explanation text.
func (r *DiagnosisRecord) WithExplanation(text string) *DiagnosisRecord {
	c := *r
	c.Recommendations = slices.Clone(r.Recommendations)
	c.Explanation = text
	return &c
}

// HealthScores are the per-subsystem scores, each 0-100.
type HealthScores struct {
	OverallScore       int    `json:"overall_score"`
	EngineHealth       int    `json:"engine_health"`
	BrakeHealth        int    `json:"brake_health"`
	TransmissionHealth int    `json:"transmission_health"`
	ExhaustHealth      int    `json:"exhaust_health"`
	LastUpdated        string `json:"last_updated,omitempty"`
}

// Alert is one active vehicle alert.
type Alert struct {
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// HealthSnapshot is the aggregate vehicle condition summary.
type HealthSnapshot struct {
	HealthScores      HealthScores      `json:"health_scores"`
	Alerts            []Alert           `json:"alerts"`
	RecentDiagnostics []DiagnosisRecord `json:"recent_diagnostics,omitempty"`
	TotalDiagnostics  int               `json:"total_diagnostics"`
}

// Validate checks that every score is within 0-100.
func (s *HealthSnapshot) Validate() error {
	scores := []struct {
		name  string
		value int
	}{
		{"overall_score", s.HealthScores.OverallScore},
		{"engine_health", s.HealthScores.EngineHealth},
		{"brake_health", s.HealthScores.BrakeHealth},
		{"transmission_health", s.HealthScores.TransmissionHealth},
		{"exhaust_health", s.HealthScores.ExhaustHealth},
	}
	for _, sc := range scores {
		if sc.value < 0 || sc.value > 100 {
			return fmt.Errorf("health snapshot: %s %d outside [0,100]", sc.name, sc.value)
		}
	}
	return nil
}

// HealthBand groups a score for display: "good" (>=85), "fair" (>=70) or "poor".
func HealthBand(score int) string {
	switch {
	case score >= 85:
		return "good"
	case score >= 70:
		return "fair"
	default:
		return "poor"
	}
}

// ErrorBody is the error payload returned by the service on non-2xx.
type ErrorBody struct {
	Detail string `json:"detail"`
}
