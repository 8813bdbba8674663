package audio

import "errors"

var (
	// ErrNoDeviceFound is returned when no usable input device exists.
	ErrNoDeviceFound = errors.New("no usable audio input device found")
	// ErrOpen wraps stream open and start failures.
	ErrOpen = errors.New("failed to open audio stream")
	// ErrRead wraps non-recoverable-per-block read failures.
	ErrRead = errors.New("failed to read audio block")
	// ErrInputOverflowed is reported by backends when the device buffer
	// overflowed before the read. Capture tolerates it.
	ErrInputOverflowed = errors.New("audio input overflowed")
)

// Backend is the audio subsystem the capture pipeline talks to
type Backend interface {
	// Devices enumerates all devices known to the subsystem.
	Devices() ([]Device, error)

	// DefaultInputDevice returns the platform default input device.
	DefaultInputDevice() (Device, error)

	// OpenInputStream opens a mono float32 input stream without starting it.
	OpenInputStream(dev Device, sampleRate float64, blockSize int) (Stream, error)
}

// Stream is one open input stream
type Stream interface {
	Start() error
	// Read fills buf with exactly len(buf) frames.
	Read(buf []float32) error
	Stop() error
	Close() error
}

// Device describes an audio device as reported by enumeration
type Device struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	InputChannels int    `json:"input_channels"`
	Default       bool   `json:"default"`
}

// HasInput reports whether the device can be opened for capture.
func (d Device) HasInput() bool {
	return d.InputChannels > 0
}
