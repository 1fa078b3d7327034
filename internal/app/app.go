// SPDX-License-Identifier: MIT
/*
Package app wires the capture pipeline together and exposes the user
actions of the interactive front ends.

Ownership:
  - One capture session, tapped by the feature extractor.
  - One frame loop driving extractor, renderer and bridge feed in that order.
  - One diagnosis coordinator, refreshing the health cache and writing the
    local history after each success.
*/
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"whisperer/internal/analysis"
	"whisperer/internal/audio"
	"whisperer/internal/config"
	"whisperer/internal/diagnosis"
	"whisperer/internal/frame"
	"whisperer/internal/health"
	"whisperer/internal/history"
	applog "whisperer/internal/log"
	"whisperer/internal/protocol"
	"whisperer/internal/render"
	"whisperer/internal/service"
	"whisperer/internal/transport"
	"whisperer/internal/transport/udp"
)

// Option customises App construction.
type Option func(*App)

// WithOpener replaces the PortAudio device opener.
func WithOpener(o audio.Opener) Option {
	return func(a *App) { a.opener = o }
}

// WithAnalyzer replaces the service client used for uploads.
func WithAnalyzer(an diagnosis.Analyzer) Option {
	return func(a *App) { a.analyzer = an }
}

// WithHealthFetcher replaces the service client used for health snapshots.
func WithHealthFetcher(f health.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// App is the application controller.
type App struct {
	cfg *config.Config

	opener   audio.Opener
	analyzer diagnosis.Analyzer
	fetcher  health.Fetcher

	Client      *service.Client
	Session     *audio.Session
	Extractor   *analysis.Extractor
	Renderer    *render.Renderer
	Grid        *render.Grid
	Loop        *frame.Loop
	Health      *health.Cache
	Coordinator *diagnosis.Coordinator
	History     *history.Store

	hub       *transport.Hub
	server    *transport.Server
	sender    *udp.Sender
	publisher *udp.Publisher

	ctx    context.Context
	cancel context.CancelFunc

	stopping atomic.Bool
	lastErr  atomic.Pointer[string]

	closeOnce sync.Once
}

// New builds the application from cfg. Nothing is started until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, opener: audio.PortAudioOpener{}}
	for _, o := range opts {
		o(a)
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.Client = service.New(service.OptionsFromConfig(cfg))
	if a.analyzer == nil {
		a.analyzer = a.Client
	}
	if a.fetcher == nil {
		a.fetcher = a.Client
	}

	sessionOpts := audio.OptionsFromConfig(cfg)
	sessionOpts.OnStateChange = a.onCaptureState
	a.Session = audio.NewSession(a.opener, sessionOpts)

	window, err := analysis.ParseWindowFunc(cfg.Analysis.FFTWindow)
	if err != nil {
		applog.Warnf("app: %v, using %s", err, window)
	}
	fft, err := analysis.NewFFTProcessor(cfg.Analysis.FFTSize, cfg.Audio.SampleRate, window)
	if err != nil {
		return nil, a.abort(fmt.Errorf("feature extractor: %w", err))
	}
	a.Extractor = analysis.NewExtractor(fft, a.Session, cfg.Audio.InputChannels)
	a.Session.SetTap(a.Extractor)

	a.Grid = render.NewGrid()
	a.Renderer = render.NewRenderer(a.Grid, a.Extractor, render.OptionsFromConfig(cfg))

	a.Loop = frame.NewLoop(cfg.Analysis.TickInterval)
	a.Loop.Register("extractor", a.Extractor)
	a.Loop.Register("renderer", a.Renderer)
	a.Loop.Register("max-duration", frame.TickFunc(a.enforceMaxDuration))

	a.Health = health.NewCache(a.fetcher)

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, a.abort(err)
		}
		a.History = store
	}

	coordOpts := diagnosis.Options{
		MinDisplayDelay: cfg.Service.MinDisplayDelay,
		Health:          a.Health,
		Explainer:       diagnosis.TemplateExplainer{},
	}
	if a.History != nil {
		coordOpts.Journal = a.History
	}
	a.Coordinator = diagnosis.NewCoordinator(a.analyzer, coordOpts)
	a.Coordinator.OnEvent(a.onDiagnosisEvent)
	a.Health.OnChange(a.onHealthChange)

	if cfg.Transport.HTTPEnabled {
		a.hub = transport.NewHub()
		a.server = transport.NewServer(cfg.Transport.HTTPAddr, a.hub, a.State)
		a.Loop.Register("bridge", transport.NewFrameFeed(a.Extractor, a.hub,
			cfg.Transport.WSFrameInterval, cfg.Audio.SampleRate, cfg.Analysis.FFTSize))
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return nil, a.abort(err)
		}
		a.sender = sender
		if a.publisher, err = udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, a.Extractor); err != nil {
			return nil, a.abort(err)
		}
	}
	return a, nil
}

// Start runs the frame loop and the bridges and fetches the first health
// snapshot in the background.
func (a *App) Start() error {
	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("start bridge: %w", err)
		}
	}
	if a.publisher != nil {
		a.publisher.Start()
	}
	a.Loop.Start()
	go func() {
		if err := a.Health.Refresh(a.ctx); err != nil {
			a.setError(err)
		}
	}()
	return nil
}

// StartRecording acquires the microphone and starts a capture session.
func (a *App) StartRecording() error {
	if err := a.Session.Start(); err != nil {
		if !errors.Is(err, audio.ErrAlreadyRecording) {
			a.setError(err)
		}
		return err
	}
	a.clearError()
	a.Renderer.SetActive(true)
	return nil
}

// StopRecording ends the capture session and submits the recording for
// analysis. It returns the recording, nil when nothing was recording.
func (a *App) StopRecording() (*audio.Recording, error) {
	rec, err := a.Session.Stop()
	if err != nil {
		a.setError(err)
		a.Renderer.SetActive(a.Coordinator.Analyzing())
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if err := a.Coordinator.Submit(a.ctx, rec.Filename, bytes.NewReader(rec.Data)); err != nil {
		a.setError(err)
		a.Renderer.SetActive(a.Coordinator.Analyzing())
		return rec, err
	}
	return rec, nil
}

// ToggleRecording starts or stops recording.
func (a *App) ToggleRecording() error {
	if a.Session.Recording() {
		_, err := a.StopRecording()
		return err
	}
	return a.StartRecording()
}

// AnalyzeFile submits an audio file picked by the user.
func (a *App) AnalyzeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		a.setError(err)
		return err
	}
	if err := a.Coordinator.Submit(a.ctx, filepath.Base(path), bytes.NewReader(data)); err != nil {
		a.setError(err)
		return err
	}
	a.Renderer.SetActive(true)
	return nil
}

// Diagnose analyzes the file at path and waits for the result, including
// its explanation.
func (a *App) Diagnose(ctx context.Context, path string) (*protocol.DiagnosisRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rec, err := a.Coordinator.Analyze(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, err
	}
	if cur := a.Coordinator.Current(); cur != nil {
		rec = cur
	}
	return rec, nil
}

// RefreshHealth fetches a new health snapshot.
func (a *App) RefreshHealth(ctx context.Context) error {
	if err := a.Health.Refresh(ctx); err != nil {
		a.setError(err)
		return err
	}
	return nil
}

// RecentHistory returns the latest locally stored diagnoses.
func (a *App) RecentHistory(ctx context.Context, limit int) ([]history.Entry, error) {
	if a.History == nil {
		return nil, nil
	}
	return a.History.Recent(ctx, limit)
}

// State snapshots the application state.
func (a *App) State() transport.State {
	st := transport.State{
		Recording: a.Session.State().String(),
		Elapsed:   a.Session.Elapsed(time.Now()).Seconds(),
		Analyzing: a.Coordinator.Analyzing(),
		Diagnosis: a.Coordinator.Current(),
		Health:    a.Health.Snapshot(),
	}
	if msg := a.lastErr.Load(); msg != nil {
		st.Error = *msg
	}
	return st
}

// ResizeCells fits the particle field to a terminal area of cols x rows.
func (a *App) ResizeCells(cols, rows int) {
	a.Renderer.Resize(cols*render.CellWidth, rows*render.CellHeight)
}

// Frame returns the last presented particle field, one string per row.
func (a *App) Frame() []string {
	return a.Grid.Lines()
}

// Bridge returns the bound bridge address, empty when disabled.
func (a *App) Bridge() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Close tears everything down. Safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		a.cancel()
		errs = append(errs, a.Loop.Stop())
		errs = append(errs, a.Session.Close())
		errs = append(errs, a.Coordinator.Close())
		errs = append(errs, a.Renderer.Close())
		if a.publisher != nil {
			errs = append(errs, a.publisher.Stop())
		}
		if a.server != nil {
			errs = append(errs, a.server.Close())
		}
		errs = append(errs, a.closeStores())
	})
	return errors.Join(errs...)
}

// abort releases what New built so far.
func (a *App) abort(err error) error {
	a.cancel()
	if a.server != nil {
		_ = a.server.Close()
	}
	_ = a.closeStores()
	return err
}

func (a *App) closeStores() error {
	var errs []error
	if a.sender != nil {
		errs = append(errs, a.sender.Close())
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	return errors.Join(errs...)
}

// enforceMaxDuration stops a recording that reached the configured limit.
// Stopping encodes the recording, so it runs off the frame loop.
func (a *App) enforceMaxDuration(now time.Time) {
	limit := time.Duration(a.cfg.Recording.MaxDuration) * time.Second
	if limit <= 0 || a.Session.Elapsed(now) < limit {
		return
	}
	if !a.stopping.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer a.stopping.Store(false)
		applog.Infof("app: maximum recording duration %s reached", limit)
		if _, err := a.StopRecording(); err != nil {
			applog.Warnf("app: auto stop: %v", err)
		}
	}()
}

func (a *App) onCaptureState(st audio.State) {
	if st == audio.Failed {
		a.Renderer.SetActive(false)
	}
	a.broadcast(transport.TypeState, nil)
}

func (a *App) onDiagnosisEvent(ev diagnosis.Event) {
	switch ev.Kind {
	case diagnosis.EventStarted:
		a.clearError()
		a.Renderer.SetActive(true)
		a.broadcast(transport.TypeState, nil)
	case diagnosis.EventCompleted, diagnosis.EventExplained:
		a.Renderer.SetActive(a.Session.Recording())
		a.broadcast(transport.TypeDiagnosis, ev.Record)
	case diagnosis.EventFailed:
		a.Renderer.SetActive(a.Session.Recording())
		a.setError(ev.Err)
		a.broadcast(transport.TypeError, ev.Err.Error())
	}
}

func (a *App) onHealthChange(s *protocol.HealthSnapshot) {
	a.broadcast(transport.TypeHealth, s)
}

func (a *App) broadcast(kind string, data any) {
	if a.hub == nil {
		return
	}
	if kind == transport.TypeState && data == nil {
		data = a.State()
	}
	_ = a.hub.Send(transport.Message{Type: kind, Data: data})
}

func (a *App) setError(err error) {
	msg := err.Error()
	a.lastErr.Store(&msg)
}

func (a *App) clearError() {
	a.lastErr.Store(nil)
}
