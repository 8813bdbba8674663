package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/config"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyRunning = errors.New("capture already running")
	ErrDeviceLocked   = errors.New("cannot change device while capturing")
)

var errWorkerPanic = errors.New("capture worker panicked")

type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetCapturing(device string)
	SetError()
}

type Config struct {
	Backend       audio.Backend
	Analyzer      *spectrum.Analyzer // Optional - built from Config when nil
	Store         *spectrum.Store    // Optional - built from Config when nil
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// SessionInfo describes the running capture session.
type SessionInfo struct {
	ID        string       `json:"id"`
	Device    audio.Device `json:"device"`
	StartedAt time.Time    `json:"started_at"`
}

// Status is a point-in-time view of the app for display.
type Status struct {
	State     string       `json:"state"`
	Session   *SessionInfo `json:"session,omitempty"`
	Device    string       `json:"configured_device"`
	Stats     audio.Stats  `json:"stats"`
	Updates   uint64       `json:"updates"`
	LastError string       `json:"last_error,omitempty"`
}

type App struct {
	backend  audio.Backend
	analyzer *spectrum.Analyzer
	store    *spectrum.Store
	cfg      *config.Config
	log      zerolog.Logger
	status   StatusUpdater

	readInterval time.Duration
	errorBackoff time.Duration

	mu        sync.Mutex
	state     State
	session   SessionInfo
	capture   *audio.Capture
	cancel    context.CancelFunc
	done      chan struct{}
	lastStats audio.Stats
	lastErr   error
}

func New(cfg Config) (*App, error) {
	if cfg.Backend == nil {
		return nil, errors.New("audio backend is required")
	}
	if cfg.Config == nil {
		cfg.Config = config.Default()
	}
	c := cfg.Config

	analyzer := cfg.Analyzer
	if analyzer == nil {
		var err error
		analyzer, err = spectrum.NewAnalyzer(c.Audio.BlockSize, c.Analyzer.Bins,
			spectrum.WithCompression(c.Analyzer.Compression))
		if err != nil {
			return nil, fmt.Errorf("failed to create analyzer: %w", err)
		}
	}

	store := cfg.Store
	if store == nil {
		store = spectrum.NewStore(analyzer.Bins(), c.Analyzer.Smoothing)
	}
	if store.Len() != analyzer.Bins() {
		return nil, fmt.Errorf("%w: store has %d bins, analyzer %d",
			spectrum.ErrLengthMismatch, store.Len(), analyzer.Bins())
	}

	return &App{
		backend:      cfg.Backend,
		analyzer:     analyzer,
		store:        store,
		cfg:          c,
		log:          cfg.Logger.With().Str("component", "app").Logger(),
		status:       cfg.StatusUpdater,
		readInterval: c.Loop.ReadInterval.Std(),
		errorBackoff: c.Loop.ErrorBackoff.Std(),
	}, nil
}

// SetStatusUpdater attaches the status display after construction; the tray
// needs the app before it can be created.
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// Start selects a device, opens and starts the capture and spawns the worker.
// Device and stream errors are returned synchronously and leave the app idle
// with no stream open.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	device, err := a.startLocked(ctx)
	status := a.status
	a.mu.Unlock()

	if status != nil {
		switch {
		case errors.Is(err, ErrAlreadyRunning):
		case err != nil:
			status.SetError()
		default:
			status.SetCapturing(device)
		}
	}
	return err
}

func (a *App) startLocked(ctx context.Context) (string, error) {
	if a.state != Idle {
		return "", ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.state = Starting

	capture, err := a.openCaptureLocked()
	if err != nil {
		a.state = Idle
		a.lastErr = err
		a.log.Error().Err(err).Msg("Failed to start capture")
		return "", err
	}

	a.store.Reset()
	a.session = SessionInfo{
		ID:        uuid.NewString(),
		Device:    capture.Device(),
		StartedAt: time.Now(),
	}
	a.capture = capture
	a.lastErr = nil

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.done = make(chan struct{})
	a.state = Running

	go a.run(workerCtx, capture, a.done)

	a.log.Info().
		Str("session", a.session.ID).
		Str("device", capture.Device().Name).
		Msg("Capture started")
	return capture.Device().Name, nil
}

func (a *App) openCaptureLocked() (*audio.Capture, error) {
	dev, err := audio.SelectDevice(a.backend, audio.SelectOptions{
		DeviceName: a.cfg.Audio.DeviceID,
		Preferred:  a.cfg.Audio.PreferredDevices,
	})
	if err != nil {
		return nil, err
	}

	capture, err := audio.Open(a.backend, dev, a.cfg.Audio.SampleRate, a.analyzer.BlockSize(), a.log)
	if err != nil {
		return nil, err
	}
	if err := capture.Start(); err != nil {
		capture.Shutdown()
		return nil, err
	}
	return capture, nil
}

// run is the capture worker. It is the only writer to the store.
func (a *App) run(ctx context.Context, capture *audio.Capture, done chan struct{}) {
	var failure error

	defer func() {
		capture.Shutdown()

		a.mu.Lock()
		a.lastStats = capture.Stats()
		a.capture = nil
		a.cancel = nil
		a.state = Idle
		if failure != nil {
			a.lastErr = failure
		}
		status := a.status
		a.mu.Unlock()

		if status != nil {
			if failure != nil {
				status.SetError()
			} else {
				status.SetIdle()
			}
		}
		close(done)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		next, err := a.step(capture)
		if err != nil {
			failure = err
			a.log.Error().Err(err).Msg("Capture worker stopped")
			return
		}
		timer.Reset(next)
	}
}

// step reads, analyzes and publishes one block and returns the delay before
// the next one. Read and analysis failures only lengthen the delay; a
// returned error ends the session.
func (a *App) step(capture *audio.Capture) (next time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errWorkerPanic, r)
		}
	}()

	block, err := capture.ReadBlock()
	if err != nil {
		a.log.Warn().Err(err).Msg("Read error")
		return a.errorBackoff, nil
	}

	v, err := a.analyzer.Analyze(block)
	if err != nil {
		a.log.Warn().Err(err).Msg("Analysis error")
		return a.errorBackoff, nil
	}

	if err := a.store.Publish(v); err != nil {
		a.log.Warn().Err(err).Msg("Publish error")
		return a.errorBackoff, nil
	}
	return a.readInterval, nil
}

// Stop cancels the worker and waits until the stream is released. Stopping
// an idle app is a no-op.
func (a *App) Stop() error {
	a.mu.Lock()
	if a.state == Idle {
		a.mu.Unlock()
		return nil
	}
	a.state = Stopping
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	a.log.Info().Msg("Capture stopped")
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	stopped := make(chan error, 1)
	go func() { stopped <- a.Stop() }()

	select {
	case err := <-stopped:
		return err
	case <-ctx.Done():
		return fmt.Errorf("capture did not stop: %w", ctx.Err())
	}
}

// Toggle starts an idle capture or stops a running one.
func (a *App) Toggle(ctx context.Context) error {
	if a.IsRunning() {
		return a.Stop()
	}
	return a.Start(ctx)
}

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == Running || a.state == Starting
}

// Session returns the current session, if capture is running.
func (a *App) Session() (SessionInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Running {
		return SessionInfo{}, false
	}
	return a.session, true
}

// LastError returns the error that ended or prevented the last session.
func (a *App) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *App) Status() Status {
	a.mu.Lock()
	st := Status{
		State:  a.state.String(),
		Device: a.cfg.Audio.DeviceID,
		Stats:  a.lastStats,
	}
	if a.state == Running {
		session := a.session
		st.Session = &session
		if a.capture != nil {
			st.Stats = a.capture.Stats()
		}
	}
	if a.lastErr != nil {
		st.LastError = a.lastErr.Error()
	}
	a.mu.Unlock()

	st.Updates = a.store.Updates()
	return st
}

// Snapshot returns a copy of the published vector.
func (a *App) Snapshot() spectrum.Vector {
	return a.store.Snapshot()
}

// SnapshotAt returns a copy of the published vector and when it was updated.
func (a *App) SnapshotAt() (spectrum.Vector, time.Time) {
	return a.store.SnapshotAt()
}

// Bin returns one value of the published vector.
func (a *App) Bin(i int) (float64, error) {
	return a.store.Bin(i)
}

func (a *App) Bins() int {
	return a.analyzer.Bins()
}

// Tray actions

func (a *App) ListDevices() ([]audio.Device, error) {
	return audio.ListInputDevices(a.backend)
}

// Device returns the configured device name; empty means automatic.
func (a *App) Device() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Audio.DeviceID
}

func (a *App) SetDevice(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != Idle {
		return ErrDeviceLocked
	}

	a.cfg.Audio.DeviceID = name
	return a.cfg.Save()
}
