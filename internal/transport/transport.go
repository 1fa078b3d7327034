// SPDX-License-Identifier: MIT

// Package transport publishes live frames and application events to
// browser clients over a websocket bridge.
package transport

import (
	"time"

	"whisperer/internal/analysis"
	"whisperer/internal/protocol"
)

// Transport sends events to remote consumers. Implementations must be safe
// for concurrent use and must not block the caller.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message types sent over the bridge.
const (
	TypeFrame     = "frame"
	TypeDiagnosis = "diagnosis"
	TypeHealth    = "health"
	TypeState     = "state"
	TypeError     = "error"
)

// Message is the envelope of every bridge message.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// FramePayload is the websocket form of a feature frame.
type FramePayload struct {
	Seq    uint64          `json:"seq"`
	At     time.Time       `json:"at"`
	Values []float64       `json:"values"`
	Bands  []analysis.Band `json:"bands,omitempty"`
}

// State is the application state exposed on /api/state and pushed on
// every change.
type State struct {
	Recording string                    `json:"recording"`
	Elapsed   float64                   `json:"elapsed_seconds"`
	Analyzing bool                      `json:"analyzing"`
	Diagnosis *protocol.DiagnosisRecord `json:"diagnosis,omitempty"`
	Health    *protocol.HealthSnapshot  `json:"health,omitempty"`
	Error     string                    `json:"error,omitempty"`
}
