// SPDX-License-Identifier: MIT

// Package service is the HTTP client of the remote analysis service.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whisperer/internal/config"
	applog "whisperer/internal/log"
	"whisperer/internal/protocol"
	"whisperer/pkg/build"

	"github.com/go-resty/resty/v2"
)

// Endpoint paths, relative to the configured base URL.
const (
	AnalyzePath = "/api/analyze-audio"
	HealthPath  = "/api/health-overview"
	HistoryPath = "/api/diagnostics/history"

	uploadField = "file"
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("service returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("service returned %d: %s", e.Status, e.Detail)
}

// Client talks to the analysis service. It is safe for concurrent use.
type Client struct {
	api    *resty.Client // Idempotent GETs, retried.
	upload *resty.Client // Uploads are never retried; the body is a stream.
	base   string
}

// Options configure a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// OptionsFromConfig maps the service configuration to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL: cfg.Service.BaseURL,
		Timeout: cfg.Service.Timeout,
		Retries: cfg.Service.Retries,
	}
}

// New creates a client for the service at opts.BaseURL.
func New(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultServiceTimeout
	}

	newResty := func() *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(opts.Timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", build.UserAgent())
	}

	api := newResty().
		SetRetryCount(max(0, opts.Retries)).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{api: api, upload: newResty(), base: base}
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.base
}

// AnalyzeAudio uploads one audio payload as multipart field "file" and
// returns the validated diagnosis.
func (c *Client) AnalyzeAudio(ctx context.Context, filename string, body io.Reader) (*protocol.DiagnosisRecord, error) {
	var (
		rec     protocol.DiagnosisRecord
		errBody protocol.ErrorBody
	)
	start := time.Now()
	resp, err := c.upload.R().
		SetContext(ctx).
		SetFileReader(uploadField, filename, body).
		SetResult(&rec).
		SetError(&errBody).
		Post(AnalyzePath)
	if err := checkResponse(resp, err, &errBody); err != nil {
		return nil, fmt.Errorf("analyze %q: %w", filename, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("analyze %q: %w", filename, err)
	}
	applog.Debugf("service: analyzed %q in %s (%s, %s)", filename, time.Since(start).Round(time.Millisecond), rec.Component, rec.Severity)
	return &rec, nil
}

// HealthOverview fetches the current vehicle health snapshot.
func (c *Client) HealthOverview(ctx context.Context) (*protocol.HealthSnapshot, error) {
	var (
		snap    protocol.HealthSnapshot
		errBody protocol.ErrorBody
	)
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&snap).
		SetError(&errBody).
		Get(HealthPath)
	if err := checkResponse(resp, err, &errBody); err != nil {
		return nil, fmt.Errorf("health overview: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("health overview: %w", err)
	}
	return &snap, nil
}

// History fetches the most recent diagnoses stored by the service, newest
// first. Records that fail validation are skipped.
func (c *Client) History(ctx context.Context) ([]protocol.DiagnosisRecord, error) {
	var (
		records []protocol.DiagnosisRecord
		errBody protocol.ErrorBody
	)
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&records).
		SetError(&errBody).
		Get(HistoryPath)
	if err := checkResponse(resp, err, &errBody); err != nil {
		return nil, fmt.Errorf("diagnostics history: %w", err)
	}

	valid := records[:0]
	for _, r := range records {
		if err := r.Validate(); err != nil {
			applog.Warnf("service: skipping history entry %s: %v", r.ID, err)
			continue
		}
		valid = append(valid, r)
	}
	return valid, nil
}

func checkResponse(resp *resty.Response, err error, errBody *protocol.ErrorBody) error {
	if err != nil {
		return err
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return &StatusError{Status: resp.StatusCode(), Detail: errBody.Detail}
	}
	return nil
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
