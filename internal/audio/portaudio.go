package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements Backend on top of PortAudio
type PortAudioBackend struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudio initializes PortAudio and returns a backend. Call Close on exit.
func NewPortAudio() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioBackend{initialized: true}, nil
}

// Devices enumerates all PortAudio devices. Entries PortAudio could not
// describe are skipped.
func (p *PortAudioBackend) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	result := make([]Device, 0, len(infos))
	for i, info := range infos {
		if info == nil {
			continue
		}
		result = append(result, Device{
			Index:         i,
			Name:          info.Name,
			InputChannels: info.MaxInputChannels,
		})
	}
	return result, nil
}

// DefaultInputDevice returns PortAudio's default input device.
func (p *PortAudioBackend) DefaultInputDevice() (Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("failed to get default input device: %w", err)
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return Device{}, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for i, d := range infos {
		if d == info {
			return Device{Index: i, Name: info.Name, InputChannels: info.MaxInputChannels, Default: true}, nil
		}
	}
	return Device{Index: -1, Name: info.Name, InputChannels: info.MaxInputChannels, Default: true}, nil
}

// OpenInputStream opens a mono float32 input stream on dev without starting it.
func (p *PortAudioBackend) OpenInputStream(dev Device, sampleRate float64, blockSize int) (Stream, error) {
	info, err := p.lookup(dev)
	if err != nil {
		return nil, err
	}

	buffer := make([]float32, blockSize)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return &portAudioStream{stream: stream, buffer: buffer}, nil
}

// Close terminates PortAudio.
func (p *PortAudioBackend) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

func (p *PortAudioBackend) lookup(dev Device) (*portaudio.DeviceInfo, error) {
	if dev.Index < 0 {
		return portaudio.DefaultInputDevice()
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if dev.Index >= len(infos) || infos[dev.Index] == nil || infos[dev.Index].Name != dev.Name {
		return nil, fmt.Errorf("device not found: %s", dev.Name)
	}
	return infos[dev.Index], nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	buffer []float32
}

func (s *portAudioStream) Start() error {
	return s.stream.Start()
}

func (s *portAudioStream) Read(buf []float32) error {
	err := s.stream.Read()
	if errors.Is(err, portaudio.InputOverflowed) {
		copy(buf, s.buffer)
		return ErrInputOverflowed
	}
	if err != nil {
		return err
	}
	copy(buf, s.buffer)
	return nil
}

func (s *portAudioStream) Stop() error {
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	return s.stream.Close()
}
