// SPDX-License-Identifier: MIT
/*
Package diagnosis submits recordings to the analysis service and owns the
single published diagnosis.

Only one submission runs at a time; a second one while the first is in
flight is rejected with ErrAnalysisInFlight. A successful result is held back
until the minimum display delay has elapsed since submission, then published,
followed by exactly one health refresh and an entry in the local history.
After Close no late result is applied and no listener is called.
*/
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"whisperer/internal/history"
	applog "whisperer/internal/log"
	"whisperer/internal/protocol"
)

var (
	// ErrUploadFailed wraps any network or service error of a submission.
	// The previous result is kept.
	ErrUploadFailed = errors.New("diagnosis: upload failed")

	// ErrAnalysisInFlight rejects a submission while another is running.
	ErrAnalysisInFlight = errors.New("diagnosis: analysis already in flight")

	// ErrClosed is returned by submissions after Close.
	ErrClosed = errors.New("diagnosis: coordinator closed")
)

// Analyzer uploads one payload and returns the service's diagnosis.
type Analyzer interface {
	AnalyzeAudio(ctx context.Context, filename string, body io.Reader) (*protocol.DiagnosisRecord, error)
}

// Refresher refreshes the health snapshot.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Journal persists published diagnoses.
type Journal interface {
	Insert(ctx context.Context, rec *protocol.DiagnosisRecord) (*history.Entry, error)
	UpdateRecord(ctx context.Context, id string, rec *protocol.DiagnosisRecord) error
}

// EventKind identifies a coordinator event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventCompleted
	EventFailed
	EventExplained
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventExplained:
		return "explained"
	default:
		return "unknown"
	}
}

// Event reports progress of a submission. Record is set for Completed and
// Explained, Err for Failed.
type Event struct {
	Kind     EventKind
	Filename string
	Record   *protocol.DiagnosisRecord
	Err      error
}

// Options configure a Coordinator. Health, Journal and Explainer are
// optional.
type Options struct {
	MinDisplayDelay time.Duration
	Health          Refresher
	Journal         Journal
	Explainer       Explainer

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Coordinator owns the in-flight slot and the published record.
type Coordinator struct {
	analyzer Analyzer
	opts     Options

	analyzing atomic.Bool
	abandoned atomic.Bool
	current   atomic.Pointer[protocol.DiagnosisRecord]

	closeCtx context.Context
	closeFn  context.CancelFunc
	slot     sync.Mutex // Orders acquire against Close.
	wg       sync.WaitGroup

	mu        sync.Mutex
	listeners []func(Event)
}

// NewCoordinator creates a coordinator uploading through a.
func NewCoordinator(a Analyzer, opts Options) *Coordinator {
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.after == nil {
		opts.after = time.After
	}
	if opts.MinDisplayDelay < 0 {
		opts.MinDisplayDelay = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{analyzer: a, opts: opts, closeCtx: ctx, closeFn: cancel}
}

// OnEvent registers a listener. Listeners run on the submission goroutine
// and must not block.
func (c *Coordinator) OnEvent(fn func(Event)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Analyzing reports whether a submission is in flight.
func (c *Coordinator) Analyzing() bool {
	return c.analyzing.Load()
}

// Current returns the published record, nil while analyzing or before the
// first success. The record must not be modified.
func (c *Coordinator) Current() *protocol.DiagnosisRecord {
	return c.current.Load()
}

// Submit starts an asynchronous analysis of body. The outcome is delivered
// to listeners. body must not be used by the caller afterwards.
func (c *Coordinator) Submit(ctx context.Context, filename string, body io.Reader) error {
	if err := c.acquire(); err != nil {
		return err
	}
	go func() {
		defer c.wg.Done()
		if _, err := c.run(ctx, filename, body); err != nil {
			applog.Debugf("diagnosis: submission %q ended: %v", filename, err)
		}
	}()
	return nil
}

// Analyze runs one analysis synchronously with the same rules as Submit.
func (c *Coordinator) Analyze(ctx context.Context, filename string, body io.Reader) (*protocol.DiagnosisRecord, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.wg.Done()
	return c.run(ctx, filename, body)
}

// acquire takes the in-flight slot and registers the submission with the
// wait group. The caller must call wg.Done when it returns.
func (c *Coordinator) acquire() error {
	c.slot.Lock()
	defer c.slot.Unlock()
	if c.abandoned.Load() {
		return ErrClosed
	}
	if !c.analyzing.CompareAndSwap(false, true) {
		return ErrAnalysisInFlight
	}
	c.wg.Add(1)
	return nil
}

func (c *Coordinator) run(parent context.Context, filename string, body io.Reader) (*protocol.DiagnosisRecord, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(c.closeCtx, cancel)
	defer stop()

	started := c.opts.now()
	previous := c.current.Swap(nil)
	c.emit(Event{Kind: EventStarted, Filename: filename})
	applog.Infof("diagnosis: analyzing %q", filename)

	rec, err := c.analyzer.AnalyzeAudio(ctx, filename, body)
	if err != nil {
		c.current.CompareAndSwap(nil, previous)
		c.analyzing.Store(false)
		err = fmt.Errorf("%w: %w", ErrUploadFailed, err)
		if c.abandoned.Load() {
			return nil, err
		}
		applog.Warnf("diagnosis: %v", err)
		c.emit(Event{Kind: EventFailed, Filename: filename, Err: err})
		return nil, err
	}

	if wait := c.opts.MinDisplayDelay - c.opts.now().Sub(started); wait > 0 {
		select {
		case <-c.opts.after(wait):
		case <-ctx.Done():
		}
	}

	if c.abandoned.Load() {
		c.analyzing.Store(false)
		return nil, ErrClosed
	}

	c.current.Store(rec)
	c.analyzing.Store(false)
	applog.Infof("diagnosis: %s - %s (%s, %.0f%%)", rec.Component, rec.Diagnosis, rec.Severity, rec.ConfidenceScore*100)
	c.emit(Event{Kind: EventCompleted, Filename: filename, Record: rec})

	// Follow-up work outlives a cancelled submit context but not Close.
	follow := c.closeCtx

	if c.opts.Health != nil {
		if err := c.opts.Health.Refresh(follow); err != nil {
			applog.Debugf("diagnosis: health refresh after analysis: %v", err)
		}
	}

	var entryID string
	if c.opts.Journal != nil {
		if e, err := c.opts.Journal.Insert(follow, rec); err != nil {
			applog.Warnf("diagnosis: storing history: %v", err)
		} else {
			entryID = e.ID
		}
	}

	if c.opts.Explainer != nil {
		c.explain(follow, rec, filename, entryID)
	}
	return rec, nil
}

func (c *Coordinator) explain(ctx context.Context, rec *protocol.DiagnosisRecord, filename, entryID string) {
	text, err := c.opts.Explainer.Explain(ctx, rec)
	if err != nil {
		applog.Debugf("diagnosis: no explanation: %v", err)
		return
	}
	explained, ok := c.AttachExplanation(rec, text)
	if !ok {
		return
	}
	if c.opts.Journal != nil && entryID != "" {
		if err := c.opts.Journal.UpdateRecord(ctx, entryID, explained); err != nil {
			applog.Warnf("diagnosis: storing explanation: %v", err)
		}
	}
	c.emit(Event{Kind: EventExplained, Filename: filename, Record: explained})
}

// AttachExplanation replaces the published record with a copy carrying
// text, provided target is still the published record. It returns the new
// record and whether it was attached.
func (c *Coordinator) AttachExplanation(target *protocol.DiagnosisRecord, text string) (*protocol.DiagnosisRecord, bool) {
	if target == nil || c.abandoned.Load() {
		return nil, false
	}
	explained := target.WithExplanation(text)
	if !c.current.CompareAndSwap(target, explained) {
		return nil, false
	}
	return explained, true
}

// Close abandons any in-flight submission and waits for it to return.
func (c *Coordinator) Close() error {
	c.slot.Lock()
	c.abandoned.Store(true)
	c.slot.Unlock()
	c.closeFn()
	c.wg.Wait()
	return nil
}

// emit delivers ev unless the coordinator was closed.
func (c *Coordinator) emit(ev Event) {
	if c.abandoned.Load() {
		return
	}
	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
