// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"whisperer/internal/config"
	"whisperer/internal/history"
	"whisperer/internal/protocol"
	"whisperer/internal/service"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

func newClient(cfg *config.Config) *service.Client {
	return service.New(service.OptionsFromConfig(cfg))
}

func printDiagnosis(w io.Writer, rec *protocol.DiagnosisRecord) {
	fmt.Fprintf(w, "%s: %s\n", strings.ToUpper(rec.Component), rec.Diagnosis)
	fmt.Fprintf(w, "  severity:   %s\n", rec.Severity)
	fmt.Fprintf(w, "  urgency:    %s\n", rec.UrgencyLevel.Label())
	fmt.Fprintf(w, "  confidence: %.0f%%\n", rec.ConfidenceScore*100)
	if rec.EstimatedCost > 0 {
		fmt.Fprintf(w, "  cost:       $%.0f\n", rec.EstimatedCost)
	}
	if len(rec.Recommendations) > 0 {
		fmt.Fprintln(w, "  recommendations:")
		for _, r := range rec.Recommendations {
			fmt.Fprintf(w, "    - %s\n", r)
		}
	}
	if rec.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", rec.Explanation)
	}
}

func printHealth(w io.Writer, s *protocol.HealthSnapshot) {
	hs := s.HealthScores
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SUBSYSTEM", "SCORE", "BAND").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, r := range []struct {
		name  string
		score int
	}{
		{"overall", hs.OverallScore},
		{"engine", hs.EngineHealth},
		{"brakes", hs.BrakeHealth},
		{"transmission", hs.TransmissionHealth},
		{"exhaust", hs.ExhaustHealth},
	} {
		t.Row(r.name, fmt.Sprint(r.score), protocol.HealthBand(r.score))
	}
	fmt.Fprintln(w, t.String())

	if len(s.Alerts) > 0 {
		fmt.Fprintln(w, "alerts:")
		for _, a := range s.Alerts {
			fmt.Fprintf(w, "  [%s] %s\n", a.Severity, a.Message)
		}
	}
	fmt.Fprintf(w, "%d diagnoses on record\n", s.TotalDiagnostics)
}

func recordTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("WHEN", "COMPONENT", "DIAGNOSIS", "SEVERITY", "URGENCY", "CONFIDENCE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func recordRow(when string, r *protocol.DiagnosisRecord) []string {
	return []string{
		when,
		r.Component,
		r.Diagnosis,
		string(r.Severity),
		r.UrgencyLevel.Label(),
		fmt.Sprintf("%.0f%%", r.ConfidenceScore*100),
	}
}

func printRecords(w io.Writer, records []protocol.DiagnosisRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no diagnoses yet")
		return
	}
	t := recordTable()
	for i := range records {
		t.Row(recordRow(records[i].CreatedAt, &records[i])...)
	}
	fmt.Fprintln(w, t.String())
}

func printLocalHistory(ctx context.Context, w io.Writer, path string, limit int) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no diagnoses yet")
		return nil
	}
	t := recordTable()
	for i := range entries {
		t.Row(recordRow(entries[i].StoredAt.Local().Format("2006-01-02 15:04"), &entries[i].Record)...)
	}
	fmt.Fprintln(w, t.String())

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if total > len(entries) {
		fmt.Fprintf(w, "showing %d of %d diagnoses\n", len(entries), total)
	}
	return nil
}
