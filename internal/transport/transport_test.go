// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"whisperer/internal/analysis"
	"whisperer/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceTransport struct {
	mu   sync.Mutex
	sent []any
}

func (s *sliceTransport) Send(data any) error {
	s.mu.Lock()
	s.sent = append(s.sent, data)
	s.mu.Unlock()
	return nil
}

func (s *sliceTransport) Close() error { return nil }

type fixedSource struct{ frame *analysis.FeatureFrame }

func (f *fixedSource) Latest() *analysis.FeatureFrame { return f.frame }

func TestStateEndpoint(t *testing.T) {
	hub := NewHub()
	state := State{
		Recording: "recording",
		Analyzing: true,
		Health:    &protocol.HealthSnapshot{HealthScores: protocol.HealthScores{OverallScore: 85}},
	}
	srv := NewServer("127.0.0.1:0", hub, func() State { return state })
	defer srv.Close()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "recording", got.Recording)
	assert.True(t, got.Analyzing)
	assert.Equal(t, 85, got.Health.HealthScores.OverallScore)
	assert.Nil(t, got.Diagnosis)

	hz, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	hz.Body.Close()
	assert.Equal(t, http.StatusNoContent, hz.StatusCode)
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub()
	srv := NewServer("127.0.0.1:0", hub, func() State { return State{} })
	defer srv.Close()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Send(Message{Type: TypeHealth, Data: map[string]int{"overall_score": 70}}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeHealth, msg.Type)
	assert.Equal(t, 70, msg.Data["overall_score"])

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubSendAfterClose(t *testing.T) {
	hub := NewHub()
	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())
	assert.NoError(t, hub.Send(Message{Type: TypeState}))
}

func TestFrameFeed_RateLimitsAndSkipsRepeats(t *testing.T) {
	src := &fixedSource{}
	out := &sliceTransport{}
	feed := NewFrameFeed(src, out, 30*time.Millisecond, 8000, 256)

	t0 := time.Now()
	feed.Tick(t0)
	assert.Empty(t, out.sent, "no frame")

	values := make([]float64, 128)
	values[32] = 1
	src.frame = &analysis.FeatureFrame{Seq: 1, Values: values}
	feed.Tick(t0)
	feed.Tick(t0.Add(40 * time.Millisecond)) // Same frame.

	src.frame = &analysis.FeatureFrame{Seq: 2, Values: values}
	feed.Tick(t0.Add(10 * time.Millisecond)) // Too soon.
	feed.Tick(t0.Add(60 * time.Millisecond))

	require.Len(t, out.sent, 2)
	msg := out.sent[1].(Message)
	assert.Equal(t, TypeFrame, msg.Type)
	payload := msg.Data.(FramePayload)
	assert.Equal(t, uint64(2), payload.Seq)
	require.Len(t, payload.Bands, 6)
}
