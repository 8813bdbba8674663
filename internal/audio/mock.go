package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// MockBackend implements Backend for testing without hardware dependencies
type MockBackend struct {
	mu             sync.Mutex
	devices        []Device
	defaultIndex   int
	enumerateError error
	openError      error
	streams        []*MockStream
	configure      func(*MockStream)
}

// NewMockBackend creates a mock backend with the given devices. The first
// input-capable device becomes the default.
func NewMockBackend(devices ...Device) *MockBackend {
	m := &MockBackend{defaultIndex: -1}
	for i, d := range devices {
		d.Index = i
		m.devices = append(m.devices, d)
		if m.defaultIndex < 0 && d.HasInput() {
			m.defaultIndex = i
		}
	}
	return m
}

// SetDefault sets the default input device by index; -1 means none.
func (m *MockBackend) SetDefault(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultIndex = index
}

// SetEnumerateError makes Devices fail.
func (m *MockBackend) SetEnumerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enumerateError = err
}

// SetOpenError makes OpenInputStream fail.
func (m *MockBackend) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openError = err
}

// OnOpen registers a hook that configures every stream as it is opened.
func (m *MockBackend) OnOpen(fn func(*MockStream)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configure = fn
}

// Devices returns the configured devices.
func (m *MockBackend) Devices() ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enumerateError != nil {
		return nil, m.enumerateError
	}
	result := make([]Device, len(m.devices))
	copy(result, m.devices)
	return result, nil
}

// DefaultInputDevice returns the configured default device.
func (m *MockBackend) DefaultInputDevice() (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.defaultIndex < 0 || m.defaultIndex >= len(m.devices) {
		return Device{}, fmt.Errorf("no default input device")
	}
	d := m.devices[m.defaultIndex]
	d.Default = true
	return d, nil
}

// OpenInputStream creates a mock stream that generates a 440 Hz sine by default.
func (m *MockBackend) OpenInputStream(dev Device, sampleRate float64, blockSize int) (Stream, error) {
	m.mu.Lock()
	if m.openError != nil {
		err := m.openError
		m.mu.Unlock()
		return nil, err
	}

	stream := &MockStream{
		id:         len(m.streams),
		device:     dev,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		open:       true,
	}
	m.streams = append(m.streams, stream)
	configure := m.configure
	m.mu.Unlock()

	if configure != nil {
		configure(stream)
	}
	return stream, nil
}

// Streams returns every stream opened so far.
func (m *MockBackend) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*MockStream, len(m.streams))
	copy(result, m.streams)
	return result
}

// OpenStreams returns the number of streams not yet closed.
func (m *MockBackend) OpenStreams() int {
	m.mu.Lock()
	streams := make([]*MockStream, len(m.streams))
	copy(streams, m.streams)
	m.mu.Unlock()

	count := 0
	for _, s := range streams {
		if s.IsOpen() {
			count++
		}
	}
	return count
}

// MockStream implements Stream for testing
type MockStream struct {
	mu         sync.Mutex
	id         int
	device     Device
	sampleRate float64
	blockSize  int
	open       bool
	active     bool
	reads      int
	startError error
	stopError  error
	closeError error
	readError  error
	readErrors []error
	generator  func(buf []float32, call int)
	stopCalls  int
	closeCalls int
}

// SetStartError configures the stream to return an error on Start().
func (s *MockStream) SetStartError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startError = err
}

// SetStopError configures the stream to return an error on Stop().
func (s *MockStream) SetStopError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopError = err
}

// SetCloseError configures the stream to return an error on Close().
func (s *MockStream) SetCloseError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeError = err
}

// SetReadError makes every Read fail with err until cleared with nil.
func (s *MockStream) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readError = err
}

// QueueReadErrors makes the next reads fail with errs, one per read.
func (s *MockStream) QueueReadErrors(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErrors = append(s.readErrors, errs...)
}

// SetGenerator sets the function that fills each block; call counts reads from 0.
func (s *MockStream) SetGenerator(fn func(buf []float32, call int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generator = fn
}

// Device returns the device the stream was opened on.
func (s *MockStream) Device() Device {
	return s.device
}

func (s *MockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startError != nil {
		return s.startError
	}
	if !s.open {
		return fmt.Errorf("stream not open")
	}
	s.active = true
	return nil
}

func (s *MockStream) Read(buf []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || !s.active {
		return fmt.Errorf("stream not active")
	}
	var overflow bool
	if len(s.readErrors) > 0 {
		err := s.readErrors[0]
		s.readErrors = s.readErrors[1:]
		if errors.Is(err, ErrInputOverflowed) {
			overflow = true
		} else if err != nil {
			return err
		}
	} else if s.readError != nil {
		return s.readError
	}

	call := s.reads
	s.reads++

	if s.generator != nil {
		s.generator(buf, call)
	} else {
		offset := call * len(buf)
		for i := range buf {
			t := float64(offset+i) / s.sampleRate
			buf[i] = float32(0.1 * math.Sin(2*math.Pi*440*t))
		}
	}

	if overflow {
		return ErrInputOverflowed
	}
	return nil
}

func (s *MockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopCalls++
	if s.stopError != nil {
		return s.stopError
	}
	s.active = false
	return nil
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeCalls++
	// The device is released even when the close reports an error.
	s.open = false
	s.active = false
	if s.closeError != nil {
		return s.closeError
	}
	return nil
}

// IsOpen reports whether Close has not yet been called.
func (s *MockStream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// IsActive reports whether the stream is started and not stopped.
func (s *MockStream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Reads returns the number of successful reads.
func (s *MockStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Calls returns how many times Stop and Close were called.
func (s *MockStream) Calls() (stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls, s.closeCalls
}
