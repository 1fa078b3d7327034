// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisperer/internal/history"
	"whisperer/internal/protocol"
	"whisperer/internal/service"
)

var testRecord = protocol.DiagnosisRecord{
	ID:              "d1",
	Component:       "brakes",
	Diagnosis:       "Worn brake pads",
	ConfidenceScore: 0.87,
	Severity:        protocol.SeverityHigh,
	UrgencyLevel:    protocol.UrgencyWeek,
	EstimatedCost:   250,
	Recommendations: []string{"Replace front pads"},
	CreatedAt:       "2026-10-17T09:00:00Z",
}

func newTestService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+service.AnalyzePath, func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, `{"detail":"missing file"}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(testRecord)
	})
	mux.HandleFunc("GET "+service.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(protocol.HealthSnapshot{
			HealthScores: protocol.HealthScores{
				OverallScore:       78,
				EngineHealth:       92,
				BrakeHealth:        61,
				TransmissionHealth: 85,
				ExhaustHealth:      88,
			},
			Alerts:           []protocol.Alert{{Type: "brakes", Message: "Brake pads worn", Severity: protocol.SeverityHigh}},
			TotalDiagnostics: 4,
		})
	})
	mux.HandleFunc("GET "+service.HistoryPath, func(w http.ResponseWriter, _ *http.Request) {
		second := testRecord
		second.ID = "d2"
		second.Component = "engine"
		_ = json.NewEncoder(w).Encode([]protocol.DiagnosisRecord{testRecord, second})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	root := NewRootCmd(&out)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHealthCommand(t *testing.T) {
	srv := newTestService(t)

	out, err := execute(t, "health", "--service-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "overall")
	assert.Contains(t, out, "fair")
	assert.Contains(t, out, "poor")
	assert.Contains(t, out, "Brake pads worn")
	assert.Contains(t, out, "4 diagnoses on record")
}

func TestHistoryCommandRemote(t *testing.T) {
	srv := newTestService(t)

	out, err := execute(t, "history", "--service-url", srv.URL, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "brakes")
	assert.Contains(t, out, "THIS WEEK")
	assert.NotContains(t, out, "engine")
}

func TestAnalyzeCommand(t *testing.T) {
	srv := newTestService(t)
	dbPath := filepath.Join(t.TempDir(), "history.db")
	wav := filepath.Join(t.TempDir(), "brakes.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF....WAVE"), 0o644))
	t.Setenv("WHISPERER_HISTORY_PATH", dbPath)

	out, err := execute(t, "analyze", wav, "--service-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "BRAKES: Worn brake pads")
	assert.Contains(t, out, "confidence: 87%")
	assert.Contains(t, out, "Replace front pads")
	assert.Contains(t, out, "Brake noises")

	out, err = execute(t, "history", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "Worn brake pads")
}

func TestAnalyzeCommandMissingFile(t *testing.T) {
	srv := newTestService(t)
	_, err := execute(t, "analyze", "nope.wav", "--service-url", srv.URL, "--no-history")
	require.Error(t, err)
}

func TestLocalHistoryEmpty(t *testing.T) {
	t.Setenv("WHISPERER_HISTORY_PATH", filepath.Join(t.TempDir(), "empty.db"))
	out, err := execute(t, "history", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "no diagnoses yet")
}

func TestLocalHistoryOrder(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "h.db")
	store, err := history.Open(dbPath)
	require.NoError(t, err)
	rec := testRecord
	_, err = store.Insert(context.Background(), &rec)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, printLocalHistory(context.Background(), &out, dbPath, 5))
	assert.Contains(t, out.String(), "Worn brake pads")
	assert.Contains(t, out.String(), "87%")
	assert.NotContains(t, out.String(), "showing")
}

func TestLocalHistoryLimitReportsTotal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "h.db")
	store, err := history.Open(dbPath)
	require.NoError(t, err)
	for range 3 {
		rec := testRecord
		_, err = store.Insert(context.Background(), &rec)
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, printLocalHistory(context.Background(), &out, dbPath, 2))
	assert.Contains(t, out.String(), "showing 2 of 3 diagnoses")
}

func TestFlagsOverrideConfig(t *testing.T) {
	_, err := execute(t, "health", "--channels", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_channels")

	_, err = execute(t, "health", "--service-url", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestFFTSizeFlagRounds(t *testing.T) {
	t.Chdir(t.TempDir())
	root := NewRootCmd(&bytes.Buffer{})
	require.NoError(t, root.ParseFlags([]string{"--fft-size", "300"}))

	cfg, err := (&options{fftSize: 300}).load(root)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Analysis.FFTSize)

	cfg, err = (&options{fftSize: 1 << 20}).load(root)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Analysis.FFTSize)
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute(t, "analyze")
	require.Error(t, err)

	_, err = execute(t, "list", "extra")
	require.Error(t, err)
}
