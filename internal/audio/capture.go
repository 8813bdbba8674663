package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Stats counts what a capture has read so far
type Stats struct {
	BlocksRead int64 `json:"blocks_read"`
	Overflows  int64 `json:"overflows"`
	ReadErrors int64 `json:"read_errors"`
}

// Capture owns one input stream bound to one device.
// Lifecycle: Open -> Start -> ReadBlock* -> Stop -> Close.
type Capture struct {
	stream     Stream
	device     Device
	sampleRate float64
	blockSize  int
	buf        []float32
	log        zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	closed  bool
	stats   Stats
}

// Open opens a mono float32 stream on dev. The stream is not started.
func Open(b Backend, dev Device, sampleRate float64, blockSize int, log zerolog.Logger) (*Capture, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: block size must be positive, got %d", ErrOpen, blockSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %v", ErrOpen, sampleRate)
	}

	stream, err := b.OpenInputStream(dev, sampleRate, blockSize)
	if err != nil {
		return nil, fmt.Errorf("%w on %q: %v", ErrOpen, dev.Name, err)
	}

	return &Capture{
		stream:     stream,
		device:     dev,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		buf:        make([]float32, blockSize),
		log:        log.With().Str("device", dev.Name).Logger(),
	}, nil
}

// Device returns the device the stream is bound to.
func (c *Capture) Device() Device {
	return c.device
}

// BlockSize returns the number of frames per ReadBlock.
func (c *Capture) BlockSize() int {
	return c.blockSize
}

// Start starts the stream.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: stream already closed", ErrOpen)
	}
	if c.started && !c.stopped {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("%w: start on %q: %v", ErrOpen, c.device.Name, err)
	}

	c.started = true
	c.stopped = false
	c.log.Debug().Float64("rate", c.sampleRate).Int("block", c.blockSize).Msg("Audio stream started")
	return nil
}

// ReadBlock blocks until blockSize frames are available and returns a copy.
// Overflow is tolerated: the block is returned with whatever data the device
// delivered.
func (c *Capture) ReadBlock() ([]float32, error) {
	c.mu.Lock()
	if c.closed || !c.started || c.stopped {
		c.stats.ReadErrors++
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: stream not running", ErrRead)
	}
	c.mu.Unlock()

	// The lock is not held across the blocking device read.
	err := c.stream.Read(c.buf)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil && !errors.Is(err, ErrInputOverflowed) {
		c.stats.ReadErrors++
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	if err != nil {
		c.stats.Overflows++
		c.log.Debug().Int64("overflows", c.stats.Overflows).Msg("Input overflowed, using best-effort block")
	}

	c.stats.BlocksRead++
	block := make([]float32, len(c.buf))
	copy(block, c.buf)
	return block, nil
}

// Stop stops the stream. Calling it more than once is a no-op.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.started || c.stopped {
		return nil
	}

	// Marked stopped even on failure so Close still runs and Stop is not retried.
	c.stopped = true
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	return nil
}

// Close releases the stream and the device. Calling it more than once is a no-op.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}
	return nil
}

// Shutdown stops and closes the stream. Both steps always run; failures are
// logged and never returned.
func (c *Capture) Shutdown() {
	if err := c.Stop(); err != nil {
		c.log.Error().Err(err).Msg("Stream stop failed")
	}
	if err := c.Close(); err != nil {
		c.log.Error().Err(err).Msg("Stream close failed")
	}
	c.log.Debug().Msg("Audio stream released")
}

// Closed reports whether Close has run.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Stats returns a copy of the read counters.
func (c *Capture) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
