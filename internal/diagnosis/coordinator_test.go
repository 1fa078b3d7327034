// SPDX-License-Identifier: MIT
package diagnosis

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"whisperer/internal/history"
	"whisperer/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnalyzer blocks until released when gate is set.
type fakeAnalyzer struct {
	mu    sync.Mutex
	rec   *protocol.DiagnosisRecord
	err   error
	gate  chan struct{}
	calls int
	body  string
}

func (f *fakeAnalyzer) AnalyzeAudio(ctx context.Context, _ string, body io.Reader) (*protocol.DiagnosisRecord, error) {
	data, _ := io.ReadAll(body)
	f.mu.Lock()
	f.calls++
	f.body = string(data)
	gate, rec, err := f.gate, f.rec, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rec, err
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type memJournal struct {
	mu      sync.Mutex
	entries map[string]*protocol.DiagnosisRecord
	order   []string
}

func (j *memJournal) Insert(_ context.Context, rec *protocol.DiagnosisRecord) (*history.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.entries == nil {
		j.entries = map[string]*protocol.DiagnosisRecord{}
	}
	id := "e" + string(rune('0'+len(j.order)))
	j.entries[id] = rec
	j.order = append(j.order, id)
	return &history.Entry{ID: id, Record: *rec}, nil
}

func (j *memJournal) UpdateRecord(_ context.Context, id string, rec *protocol.DiagnosisRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[id] = rec
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

func engineRecord() *protocol.DiagnosisRecord {
	return &protocol.DiagnosisRecord{
		Component:       "Engine",
		Diagnosis:       "Timing chain tension",
		ConfidenceScore: 0.82,
		Severity:        protocol.SeverityMedium,
		UrgencyLevel:    protocol.UrgencyMonth,
		EstimatedCost:   300,
		Recommendations: []string{"Schedule inspection"},
	}
}

func TestAnalyze_SuccessPublishesAndRefreshesOnce(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord()}
	h := &countingRefresher{}
	j := &memJournal{}
	c := NewCoordinator(a, Options{Health: h, Journal: j})
	defer c.Close()

	var log eventLog
	c.OnEvent(log.add)

	rec, err := c.Analyze(context.Background(), "engine.wav", strings.NewReader("RIFF"))
	require.NoError(t, err)
	assert.Same(t, rec, c.Current())
	assert.False(t, c.Analyzing())
	assert.Equal(t, 1, h.count())
	assert.Equal(t, "RIFF", a.body)
	assert.Len(t, j.order, 1)
	assert.Equal(t, []EventKind{EventStarted, EventCompleted}, log.kinds())
}

func TestSubmit_RejectsSecondWhileInFlight(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord(), gate: make(chan struct{})}
	h := &countingRefresher{}
	c := NewCoordinator(a, Options{Health: h})
	defer c.Close()

	done := make(chan Event, 4)
	c.OnEvent(func(e Event) {
		if e.Kind == EventCompleted || e.Kind == EventFailed {
			done <- e
		}
	})

	require.NoError(t, c.Submit(context.Background(), "a.wav", strings.NewReader("a")))
	assert.True(t, c.Analyzing())

	err := c.Submit(context.Background(), "b.wav", strings.NewReader("b"))
	assert.ErrorIs(t, err, ErrAnalysisInFlight)
	_, err = c.Analyze(context.Background(), "b.wav", strings.NewReader("b"))
	assert.ErrorIs(t, err, ErrAnalysisInFlight)

	close(a.gate)
	select {
	case e := <-done:
		assert.Equal(t, EventCompleted, e.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not complete")
	}
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, h.count())
}

func TestAnalyze_FailureKeepsPreviousResult(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord()}
	h := &countingRefresher{}
	c := NewCoordinator(a, Options{Health: h})
	defer c.Close()

	first, err := c.Analyze(context.Background(), "a.wav", strings.NewReader("a"))
	require.NoError(t, err)

	a.rec, a.err = nil, errors.New("connection reset")
	_, err = c.Analyze(context.Background(), "b.wav", strings.NewReader("b"))
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.ErrorContains(t, err, "connection reset")
	assert.False(t, c.Analyzing())
	assert.Same(t, first, c.Current())
	assert.Equal(t, 1, h.count(), "no refresh after a failure")
}

func TestAnalyze_ClearsResultWhileInFlight(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord()}
	c := NewCoordinator(a, Options{})
	defer c.Close()
	_, err := c.Analyze(context.Background(), "a.wav", strings.NewReader("a"))
	require.NoError(t, err)

	a.gate = make(chan struct{})
	started := make(chan struct{})
	c.OnEvent(func(e Event) {
		if e.Kind == EventStarted {
			close(started)
		}
	})
	require.NoError(t, c.Submit(context.Background(), "b.wav", strings.NewReader("b")))
	<-started
	assert.Nil(t, c.Current())
	close(a.gate)
}

func TestAnalyze_MinimumDisplayDelay(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord()}
	var waited time.Duration
	c := NewCoordinator(a, Options{
		MinDisplayDelay: 3 * time.Second,
		after: func(d time.Duration) <-chan time.Time {
			waited = d
			ch := make(chan time.Time, 1)
			ch <- time.Time{}
			return ch
		},
	})
	defer c.Close()

	_, err := c.Analyze(context.Background(), "a.wav", strings.NewReader("a"))
	require.NoError(t, err)
	assert.Greater(t, waited, 2*time.Second)
	assert.LessOrEqual(t, waited, 3*time.Second)
}

func TestAnalyze_NoDelayWhenDisabled(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord()}
	c := NewCoordinator(a, Options{
		after: func(time.Duration) <-chan time.Time {
			t.Fatal("delay must not be scheduled")
			return nil
		},
	})
	defer c.Close()
	_, err := c.Analyze(context.Background(), "a.wav", strings.NewReader("a"))
	require.NoError(t, err)
}

func TestClose_AbandonsLateResult(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord(), gate: make(chan struct{})}
	h := &countingRefresher{}
	c := NewCoordinator(a, Options{Health: h})

	var log eventLog
	c.OnEvent(log.add)
	require.NoError(t, c.Submit(context.Background(), "a.wav", strings.NewReader("a")))
	require.Eventually(t, func() bool { return len(log.kinds()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	assert.Nil(t, c.Current())
	assert.Zero(t, h.count())
	assert.Equal(t, []EventKind{EventStarted}, log.kinds())

	assert.ErrorIs(t, c.Submit(context.Background(), "b.wav", strings.NewReader("b")), ErrClosed)
}

func TestClose_RacingSubmitsNeverNotifyAfterClose(t *testing.T) {
	for range 50 {
		c := NewCoordinator(&fakeAnalyzer{rec: engineRecord()}, Options{})

		var (
			closed sync.WaitGroup
			done   = make(chan struct{})
			late   sync.Mutex
			after  int
		)
		var isClosed bool
		c.OnEvent(func(Event) {
			late.Lock()
			if isClosed {
				after++
			}
			late.Unlock()
		})

		closed.Add(1)
		go func() {
			defer closed.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				err := c.Submit(context.Background(), "a.wav", strings.NewReader("a"))
				if errors.Is(err, ErrClosed) {
					return
				}
			}
		}()

		time.Sleep(time.Millisecond)
		require.NoError(t, c.Close())
		late.Lock()
		isClosed = true
		late.Unlock()
		close(done)
		closed.Wait()

		assert.ErrorIs(t, c.Submit(context.Background(), "b.wav", strings.NewReader("b")), ErrClosed)
		late.Lock()
		assert.Zero(t, after, "listener called after Close returned")
		late.Unlock()
	}
}

func TestAnalyze_ContextCancellation(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord(), gate: make(chan struct{})}
	c := NewCoordinator(a, Options{})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Analyze(ctx, "a.wav", strings.NewReader("a"))
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Analyzing())
}

func TestExplanationAttachedLate(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord()}
	j := &memJournal{}
	c := NewCoordinator(a, Options{Journal: j, Explainer: TemplateExplainer{}})
	defer c.Close()

	var log eventLog
	c.OnEvent(log.add)

	rec, err := c.Analyze(context.Background(), "a.wav", strings.NewReader("a"))
	require.NoError(t, err)
	assert.Empty(t, rec.Explanation, "returned record is the one first published")

	cur := c.Current()
	require.NotNil(t, cur)
	assert.Contains(t, cur.Explanation, "82% confidence")
	assert.Equal(t, rec.Diagnosis, cur.Diagnosis)
	assert.Equal(t, cur, j.entries[j.order[0]])
	assert.Equal(t, []EventKind{EventStarted, EventCompleted, EventExplained}, log.kinds())
}

func TestAttachExplanation_IgnoresReplacedRecord(t *testing.T) {
	a := &fakeAnalyzer{rec: engineRecord()}
	c := NewCoordinator(a, Options{})
	defer c.Close()

	old, err := c.Analyze(context.Background(), "a.wav", strings.NewReader("a"))
	require.NoError(t, err)
	a.rec = engineRecord()
	_, err = c.Analyze(context.Background(), "b.wav", strings.NewReader("b"))
	require.NoError(t, err)

	_, ok := c.AttachExplanation(old, "stale")
	assert.False(t, ok)
	assert.Empty(t, c.Current().Explanation)

	_, ok = c.AttachExplanation(nil, "x")
	assert.False(t, ok)
}

func TestExplainerFunc(t *testing.T) {
	e := ExplainerFunc(func(context.Context, *protocol.DiagnosisRecord) (string, error) {
		return "ok", nil
	})
	text, err := e.Explain(context.Background(), engineRecord())
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	_, err = TemplateExplainer{}.Explain(context.Background(), nil)
	assert.Error(t, err)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "started", EventStarted.String())
	assert.Equal(t, "explained", EventExplained.String())
	assert.Equal(t, "unknown", EventKind(9).String())
}
